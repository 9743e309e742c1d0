package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps subscribers and alerts in process memory. It backs the
// service when no database DSN is configured.
type MemoryStore struct {
	mu          sync.Mutex
	subscribers map[string]Subscriber
	alerts      []AlertRecord
	locks       map[int64]bool
	nextID      int64
	now         func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subscribers: make(map[string]Subscriber),
		locks:       make(map[int64]bool),
		now:         time.Now,
	}
}

// UpsertSubscriber stores or replaces the chat of a username.
func (m *MemoryStore) UpsertSubscriber(_ context.Context, sub Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.UpdatedAt = m.now().UTC()
	m.subscribers[sub.Username] = sub
	return nil
}

// ListSubscribers returns every stored subscriber ordered by username.
func (m *MemoryStore) ListSubscribers(_ context.Context) ([]Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := make([]Subscriber, 0, len(m.subscribers))
	for _, sub := range m.subscribers {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Username < subs[j].Username })
	return subs, nil
}

// InsertAlert appends an alert. Re-inserting an event ID updates its counters.
func (m *MemoryStore) InsertAlert(_ context.Context, alert AlertRecord) (AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.alerts {
		if m.alerts[i].EventID == alert.EventID {
			m.alerts[i].Delivered = alert.Delivered
			m.alerts[i].Muted = alert.Muted
			return m.alerts[i], nil
		}
	}
	m.nextID++
	alert.ID = m.nextID
	alert.CreatedAt = m.now().UTC()
	m.alerts = append(m.alerts, alert)
	return alert, nil
}

// ListRecentAlerts returns up to limit alerts, newest first.
func (m *MemoryStore) ListRecentAlerts(_ context.Context, limit int) ([]AlertRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.alerts) {
		limit = len(m.alerts)
	}
	out := make([]AlertRecord, 0, limit)
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.alerts[i])
	}
	return out, nil
}

// TryAdvisoryLock emulates a non-blocking advisory lock within the process.
func (m *MemoryStore) TryAdvisoryLock(_ context.Context, key int64) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return nil, false, nil
	}
	m.locks[key] = true
	return func() {
		m.mu.Lock()
		delete(m.locks, key)
		m.mu.Unlock()
	}, true, nil
}

var (
	_ SubscriberStore = (*MemoryStore)(nil)
	_ AlertStore      = (*MemoryStore)(nil)
	_ AdvisoryLocker  = (*MemoryStore)(nil)
)
