package grouping_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"chatline/internal/domain"
	"chatline/internal/grouping"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }

func msg(id string, senderID int64, sec int) domain.Message {
	return domain.Message{ID: id, SenderID: senderID, CreatedAt: at(sec)}
}

func TestBySenderEmpty(t *testing.T) {
	assert.Nil(t, grouping.BySender(nil))
	assert.Nil(t, grouping.BySender([]domain.Message{}))
}

func TestBySenderThresholds(t *testing.T) {
	msgs := []domain.Message{
		msg("m1", 1, 0),   // group 1
		msg("m2", 1, 100), // same group, 100s gap
		msg("m3", 1, 500), // new group, 400s gap from m2
		msg("m4", 2, 500), // new group, sender change regardless of gap
	}

	groups := grouping.BySender(msgs)
	assert.Len(t, groups, 3)

	assert.Equal(t, int64(1), groups[0].SenderID)
	assert.Len(t, groups[0].Messages, 2)
	assert.Equal(t, at(100), groups[0].Timestamp, "group timestamp advances to latest message")

	assert.Equal(t, int64(1), groups[1].SenderID)
	assert.Len(t, groups[1].Messages, 1)

	assert.Equal(t, int64(2), groups[2].SenderID)
	assert.Len(t, groups[2].Messages, 1)
}

func TestBySenderGapMeasuredFromRunningTimestamp(t *testing.T) {
	// Each message is 200s after the previous one; the gap never exceeds the
	// threshold even though the last message is far from the first.
	msgs := []domain.Message{
		msg("m1", 1, 0),
		msg("m2", 1, 200),
		msg("m3", 1, 400),
		msg("m4", 1, 600),
	}

	groups := grouping.BySender(msgs)
	assert.Len(t, groups, 1)
	assert.Len(t, groups[0].Messages, 4)
}

func TestBySenderConcatenationReproducesInput(t *testing.T) {
	msgs := []domain.Message{
		msg("m1", 1, 0),
		msg("m2", 2, 10),
		msg("m3", 2, 20),
		msg("m4", 1, 30),
		msg("m5", 1, 1000),
		msg("m6", 3, 1010),
	}

	groups := grouping.BySender(msgs)

	var flat []domain.Message
	for _, g := range groups {
		flat = append(flat, g.Messages...)
	}
	assert.Equal(t, msgs, flat, "no drop, reorder or duplication")
}

func TestBySenderDeterministic(t *testing.T) {
	msgs := []domain.Message{
		msg("m1", 1, 0),
		msg("m2", 1, 50),
		msg("m3", 2, 60),
	}
	assert.Equal(t, grouping.BySender(msgs), grouping.BySender(msgs))
}

func TestFormatMessageTime(t *testing.T) {
	now := base

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"JustNow", now.Add(-30 * time.Second), "Just now"},
		{"Minutes", now.Add(-5 * time.Minute), "5m ago"},
		{"Hours", now.Add(-3 * time.Hour), "3h ago"},
		{"Days", now.Add(-48 * time.Hour), "05/30/2024"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, grouping.FormatMessageTime(tt.t, now))
		})
	}
}

func TestSeenLabel(t *testing.T) {
	jacq := domain.User{ID: 2, Name: "Jacquenetta"}
	nick := domain.User{ID: 3, Name: "Nickola"}

	t.Run("Unseen", func(t *testing.T) {
		m := domain.Message{Seen: []domain.User{}}
		assert.Equal(t, "Sent", grouping.SeenLabel(m, 1))
	})

	t.Run("SeenOnlyBySelf", func(t *testing.T) {
		m := domain.Message{Seen: []domain.User{{ID: 1, Name: "Me"}}}
		assert.Equal(t, "Sent", grouping.SeenLabel(m, 1))
	})

	t.Run("SeenByOne", func(t *testing.T) {
		m := domain.Message{Seen: []domain.User{jacq}}
		assert.Equal(t, "Seen by Jacquenetta", grouping.SeenLabel(m, 1))
	})

	t.Run("SeenByMany", func(t *testing.T) {
		m := domain.Message{Seen: []domain.User{jacq, nick}}
		assert.Equal(t, "Seen by 2 people", grouping.SeenLabel(m, 1))
	})
}
