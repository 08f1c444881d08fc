package memory

import (
	"context"
	"sync"
	"time"
)

type conversation struct {
	messages  []Message
	updatedAt time.Time
}

// InMemoryStore provides process-local conversation storage.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	maxMessages   int           // Max messages per conversation
	ttl           time.Duration // Time-to-live for conversations
	now           func() time.Time
	done          chan struct{}
	closeOnce     sync.Once
}

// NewInMemoryStore creates a store and starts its expiry loop. Close stops it.
func NewInMemoryStore(maxMessages int, ttl time.Duration) *InMemoryStore {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &InMemoryStore{
		conversations: make(map[string]*conversation),
		maxMessages:   maxMessages,
		ttl:           ttl,
		now:           time.Now,
		done:          make(chan struct{}),
	}

	go s.cleanupLoop(5 * time.Minute)

	return s
}

// Append implements Store.
func (s *InMemoryStore) Append(_ context.Context, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}

	conv, exists := s.conversations[sessionID]
	if !exists || s.expired(conv, now) {
		conv = &conversation{}
		s.conversations[sessionID] = conv
	}
	conv.messages = append(conv.messages, msg)
	conv.updatedAt = now

	// Trim old messages if exceeding max (keep recent ones)
	if len(conv.messages) > s.maxMessages {
		conv.messages = conv.messages[len(conv.messages)-s.maxMessages:]
	}
	return nil
}

// Recent implements Store.
func (s *InMemoryStore) Recent(_ context.Context, sessionID string, n int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, exists := s.conversations[sessionID]
	if !exists || s.expired(conv, s.now()) {
		return nil, nil
	}

	recent := lastN(conv.messages, n)
	out := make([]Message, len(recent))
	copy(out, recent)
	return out, nil
}

// Clear implements Store.
func (s *InMemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, sessionID)
	return nil
}

// Close stops the expiry loop.
func (s *InMemoryStore) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *InMemoryStore) expired(conv *conversation, now time.Time) bool {
	return now.Sub(conv.updatedAt) > s.ttl
}

// cleanupLoop periodically removes expired conversations.
func (s *InMemoryStore) cleanupLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.done:
			return
		}
	}
}

func (s *InMemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, conv := range s.conversations {
		if s.expired(conv, now) {
			delete(s.conversations, id)
		}
	}
}

var _ Store = (*InMemoryStore)(nil)
