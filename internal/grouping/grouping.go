// Package grouping turns a flat, time-ordered message sequence into
// contiguous sender runs for compact display.
package grouping

import (
	"fmt"
	"time"

	"chatline/internal/domain"
)

// GapThreshold is the maximum silence inside a group; a larger gap starts a
// new group even for the same sender.
const GapThreshold = 5 * time.Minute

// Group is a contiguous run of one sender's messages. Timestamp tracks the
// latest message in the run.
type Group struct {
	SenderID  int64
	Messages  []domain.Message
	Timestamp time.Time
}

// BySender scans the sequence once, left to right. A new group starts when
// the sender changes or the gap from the running group timestamp exceeds
// GapThreshold. Deterministic: identical input yields identical groups, which
// keeps rendering keys stable. Concatenating all groups reproduces the input.
func BySender(messages []domain.Message) []Group {
	if len(messages) == 0 {
		return nil
	}

	var groups []Group
	var current *Group

	for _, msg := range messages {
		startNew := current == nil ||
			current.SenderID != msg.SenderID ||
			msg.CreatedAt.Sub(current.Timestamp) > GapThreshold

		if startNew {
			if current != nil {
				groups = append(groups, *current)
			}
			current = &Group{
				SenderID:  msg.SenderID,
				Messages:  []domain.Message{msg},
				Timestamp: msg.CreatedAt,
			}
		} else {
			current.Messages = append(current.Messages, msg)
			current.Timestamp = msg.CreatedAt
		}
	}

	groups = append(groups, *current)
	return groups
}

// FormatMessageTime renders a message timestamp relative to now.
func FormatMessageTime(t, now time.Time) string {
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return t.Format("01/02/2006")
	}
}

// SeenLabel summarizes who has seen the message, from the sender's
// perspective.
func SeenLabel(msg domain.Message, currentUserID int64) string {
	var others []domain.User
	for _, u := range msg.Seen {
		if u.ID != currentUserID {
			others = append(others, u)
		}
	}

	switch len(others) {
	case 0:
		return "Sent"
	case 1:
		return "Seen by " + others[0].Name
	default:
		return fmt.Sprintf("Seen by %d people", len(others))
	}
}
