// Package presence tracks which users currently hold at least one live
// connection to the dev server.
package presence

import (
	"context"
	"sort"
	"sync"
)

// Tracker records connects and disconnects and answers the online set.
// Connect/Disconnect are reference counted: a user with two open tabs stays
// online until both close.
type Tracker interface {
	// Connect records a connection and reports whether the user just came
	// online (first connection).
	Connect(ctx context.Context, userID int64) (cameOnline bool, err error)
	// Disconnect records a closed connection and reports whether the user
	// just went offline (last connection).
	Disconnect(ctx context.Context, userID int64) (wentOffline bool, err error)
	// Online returns the IDs currently online, ascending.
	Online(ctx context.Context) ([]int64, error)
}

// MemoryTracker counts connections in process.
type MemoryTracker struct {
	mu    sync.Mutex
	conns map[int64]int
}

var _ Tracker = (*MemoryTracker)(nil)

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{conns: make(map[int64]int)}
}

func (t *MemoryTracker) Connect(ctx context.Context, userID int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[userID]++
	return t.conns[userID] == 1, nil
}

func (t *MemoryTracker) Disconnect(ctx context.Context, userID int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns[userID] == 0 {
		return false, nil
	}
	t.conns[userID]--
	if t.conns[userID] == 0 {
		delete(t.conns, userID)
		return true, nil
	}
	return false, nil
}

func (t *MemoryTracker) Online(ctx context.Context) ([]int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]int64, 0, len(t.conns))
	for id := range t.conns {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
