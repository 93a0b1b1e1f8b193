package syncer

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/notesync/internal/client/models"
)

// StatusTracker holds the engine status and fans out transitions.
type StatusTracker struct {
	mu   sync.Mutex
	cur  models.Status
	subs map[int]chan models.Status
	next int
	now  func() time.Time
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		cur:  models.Status{State: models.SyncIdle},
		subs: map[int]chan models.Status{},
		now:  time.Now,
	}
}

func (t *StatusTracker) Snapshot() models.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur
}

// Set moves to state. Subscribers that are not keeping up miss transitions.
func (t *StatusTracker) Set(state models.SyncState, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur.State = state
	t.cur.Message = msg
	t.cur.At = t.now()
	t.broadcast()
}

// setIf changes the state only when the current one is not in except.
func (t *StatusTracker) setIf(state models.SyncState, except ...models.SyncState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range except {
		if t.cur.State == s {
			return
		}
	}
	t.cur.State = state
	t.cur.Message = ""
	t.cur.At = t.now()
	t.broadcast()
}

func (t *StatusTracker) SetLastSync(cursor string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur.LastSync = cursor
}

func (t *StatusTracker) broadcast() {
	for _, ch := range t.subs {
		select {
		case ch <- t.cur:
		default:
		}
	}
}

// Subscribe returns a channel of status transitions and a function that
// unsubscribes and closes it.
func (t *StatusTracker) Subscribe() (<-chan models.Status, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next
	t.next++
	ch := make(chan models.Status, 16)
	t.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs, id)
			close(ch)
		})
	}
}
