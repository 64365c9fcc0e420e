package snapshot

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "warebus:snapshot:"
	allTopicsKey = "warebus:snapshots"
)

type mirrorWrite struct {
	topic   string
	payload map[string]any
}

// RedisMirror copies raw snapshot writes into Redis so external tooling can
// inspect the bus view, and warm-starts the in-memory store after a restart.
// It is strictly best-effort: writes are queued and dropped when the queue
// is full, and errors are logged, never surfaced.
type RedisMirror struct {
	client *redis.Client
	writes chan mirrorWrite

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewRedisMirror(client *redis.Client) *RedisMirror {
	return &RedisMirror{
		client: client,
		writes: make(chan mirrorWrite, 256),
		stopCh: make(chan struct{}),
	}
}

// Start begins the write-behind loop.
func (m *RedisMirror) Start() {
	go m.run()
}

// Stop halts the write-behind loop.
func (m *RedisMirror) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Put queues a snapshot write. Drops when the queue is full rather than
// blocking the listener's delivery path.
func (m *RedisMirror) Put(topic string, payload map[string]any) {
	select {
	case m.writes <- mirrorWrite{topic: topic, payload: payload}:
	default:
	}
}

func (m *RedisMirror) run() {
	for {
		select {
		case <-m.stopCh:
			return
		case w := <-m.writes:
			m.write(w)
		}
	}
}

func (m *RedisMirror) write(w mirrorWrite) {
	data, err := json.Marshal(w.payload)
	if err != nil {
		log.Printf("snapshot: mirror marshal %s: %v", w.topic, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pipe := m.client.Pipeline()
	pipe.Set(ctx, keyPrefix+w.topic, data, 0)
	pipe.SAdd(ctx, allTopicsKey, w.topic)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("snapshot: mirror write %s: %v", w.topic, err)
	}
}

// Load reads all mirrored snapshots back, for seeding the in-memory store
// at startup.
func (m *RedisMirror) Load(ctx context.Context) (map[string]map[string]any, error) {
	topics, err := m.client.SMembers(ctx, allTopicsKey).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]any, len(topics))
	for _, topic := range topics {
		data, err := m.client.Get(ctx, keyPrefix+topic).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			log.Printf("snapshot: mirror load %s: %v", topic, err)
			continue
		}
		out[topic] = payload
	}
	return out, nil
}
