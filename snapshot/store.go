// Package snapshot holds the last-known message per bus topic. It is a
// passive mirror of the bus: the listener is the sole writer, query tools
// and the order engine read from it.
package snapshot

import (
	"sync"

	"github.com/MakaremHind/human-in-loop-warehouse/protocol"
)

// Store keeps two parallel caches per topic: the raw decoded payload
// (diagnostics, back-compat) and the normalized Envelope (typed queries).
// Both are last-write-wins with no history. A topic's raw entry can exist
// without a typed one when normalization rejected the message.
type Store struct {
	mu     sync.RWMutex
	raw    map[string]map[string]any
	typed  map[string]*protocol.Envelope
	mirror *RedisMirror
}

func New() *Store {
	return &Store{
		raw:   make(map[string]map[string]any),
		typed: make(map[string]*protocol.Envelope),
	}
}

// SetMirror attaches an optional external mirror. Mirror writes are
// asynchronous and never block or fail a Store call.
func (s *Store) SetMirror(m *RedisMirror) {
	s.mu.Lock()
	s.mirror = m
	s.mu.Unlock()
}

// Store overwrites the raw snapshot for a topic.
func (s *Store) Store(topic string, payload map[string]any) {
	s.mu.Lock()
	s.raw[topic] = payload
	m := s.mirror
	s.mu.Unlock()

	if m != nil {
		m.Put(topic, payload)
	}
}

// Get returns the last raw payload for a topic. The second return is false
// when no message has ever been seen on the topic.
func (s *Store) Get(topic string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.raw[topic]
	return p, ok
}

// StoreTyped overwrites the normalized snapshot for a topic.
func (s *Store) StoreTyped(topic string, env *protocol.Envelope) {
	s.mu.Lock()
	s.typed[topic] = env
	s.mu.Unlock()
}

// GetTyped returns the last normalized envelope for a topic.
func (s *Store) GetTyped(topic string) (*protocol.Envelope, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.typed[topic]
	return env, ok
}

// Topics returns all topics with a raw snapshot, in no particular order.
func (s *Store) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topics := make([]string, 0, len(s.raw))
	for t := range s.raw {
		topics = append(topics, t)
	}
	return topics
}

// Range calls fn for every raw snapshot until fn returns false. The
// iteration runs over a point-in-time copy so fn may call back into the
// store without deadlocking.
func (s *Store) Range(fn func(topic string, payload map[string]any) bool) {
	s.mu.RLock()
	snap := make(map[string]map[string]any, len(s.raw))
	for t, p := range s.raw {
		snap[t] = p
	}
	s.mu.RUnlock()

	for t, p := range snap {
		if !fn(t, p) {
			return
		}
	}
}

// LoadRaw seeds the raw cache, used for warm starts from the mirror.
// Existing entries win over seeded ones.
func (s *Store) LoadRaw(snapshots map[string]map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, p := range snapshots {
		if _, ok := s.raw[t]; !ok {
			s.raw[t] = p
		}
	}
}
