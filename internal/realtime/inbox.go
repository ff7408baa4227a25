package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notification is a transient user-facing message raised by the bridge.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	RecordID  string    `json:"record_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier receives notifications.
type Notifier interface {
	Notify(Notification)
}

const defaultInboxSize = 100

// Inbox is a bounded in-memory notification queue. When full the oldest
// notification is dropped.
type Inbox struct {
	mu    sync.Mutex
	items []Notification
	limit int
}

// NewInbox returns an inbox holding at most limit notifications.
func NewInbox(limit int) *Inbox {
	if limit <= 0 {
		limit = defaultInboxSize
	}
	return &Inbox{limit: limit}
}

// Notify implements Notifier.
func (i *Inbox) Notify(n Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.items) >= i.limit {
		i.items = append(i.items[:0], i.items[len(i.items)-i.limit+1:]...)
	}
	i.items = append(i.items, n)
}

// List returns pending notifications oldest first without removing them.
func (i *Inbox) List() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Notification(nil), i.items...)
}

// Drain returns and removes all pending notifications.
func (i *Inbox) Drain() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.items
	i.items = nil
	return out
}

// Len returns the number of pending notifications.
func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.items)
}
