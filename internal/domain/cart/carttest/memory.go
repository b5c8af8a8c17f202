// internal/domain/cart/carttest/memory.go

// Package carttest provides in-memory collaborators for cart tests.
package carttest

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnavailable is returned by every MemoryStore call while Fail is set
var ErrUnavailable = errors.New("memory store: connection refused")

type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is a key-value store with expiry driven by a settable clock
type MemoryStore struct {
	mu      sync.Mutex
	now     time.Time
	entries map[string]entry
	fail    bool
}

// NewMemoryStore returns an empty store whose clock starts at start
func NewMemoryStore(start time.Time) *MemoryStore {
	return &MemoryStore{
		now:     start,
		entries: make(map[string]entry),
	}
}

// Get implements cart.KeyValueStore
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return "", false, ErrUnavailable
	}
	e, ok := m.entries[key]
	if !ok || !m.now.Before(e.expiresAt) {
		delete(m.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set implements cart.KeyValueStore
func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return ErrUnavailable
	}
	m.entries[key] = entry{value: value, expiresAt: m.now.Add(ttl)}
	return nil
}

// Del implements cart.KeyValueStore
func (m *MemoryStore) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return ErrUnavailable
	}
	delete(m.entries, key)
	return nil
}

// Put stores a raw value, bypassing the cart encoding
func (m *MemoryStore) Put(key, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, expiresAt: m.now.Add(ttl)}
}

// Raw returns the stored value and whether it is live
func (m *MemoryStore) Raw(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || !m.now.Before(e.expiresAt) {
		return "", false
	}
	return e.value, true
}

// TTL returns the remaining lifetime of key
func (m *MemoryStore) TTL(key string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return 0
	}
	return e.expiresAt.Sub(m.now)
}

// Advance moves the clock forward
func (m *MemoryStore) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// SetFail makes every subsequent call fail (or succeed again)
func (m *MemoryStore) SetFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

// Message is one published notification
type Message struct {
	Channel string
	Payload string
}

// Broker is an in-memory pub/sub that also records every publish
type Broker struct {
	mu       sync.Mutex
	messages []Message
	subs     map[string][]chan string
}

// NewBroker returns an empty broker
func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]chan string)}
}

// Publish implements cart.Notifier
func (b *Broker) Publish(_ context.Context, channel, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages = append(b.messages, Message{Channel: channel, Payload: message})
	for _, ch := range b.subs[channel] {
		select {
		case ch <- message:
		default:
			// Slow subscribers miss messages, as with Redis pub/sub
		}
	}
	return nil
}

// Subscribe delivers messages published on channel until ctx is done
func (b *Broker) Subscribe(ctx context.Context, channel string) (<-chan string, error) {
	ch := make(chan string, 16)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, sub := range subs {
			if sub == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch, nil
}

// Messages returns a copy of everything published so far
func (b *Broker) Messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.messages...)
}
