// Package listener subscribes to the fixed warehouse topic list and keeps
// the snapshot store current. It is the sole writer into the store.
package listener

import (
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/MakaremHind/human-in-loop-warehouse/messaging"
	"github.com/MakaremHind/human-in-loop-warehouse/protocol"
	"github.com/MakaremHind/human-in-loop-warehouse/snapshot"
)

// Bus is the subset of the messaging client the listener needs.
type Bus interface {
	Subscribe(filter string, handler messaging.MessageHandler) error
	IsConnected() bool
}

// topicAliases maps a subscribed topic to a canonical topic under which a
// convenience copy of the snapshot is also stored. The visualization feed
// embeds the module list that queries expect under the base namespace.
var topicAliases = map[string]string{
	"base_module_visualization": "base_01/base_module_visualization",
}

type Listener struct {
	bus           Bus
	store         *snapshot.Store
	topics        []string
	masterFilters []string
	freshness     time.Duration
	debug         bool

	mu         sync.RWMutex
	lastMaster time.Time

	now func() time.Time
}

type Options struct {
	Topics            []string
	MasterStateTopics []string
	MasterFreshness   time.Duration
	Debug             bool
}

func New(bus Bus, store *snapshot.Store, opts Options) *Listener {
	freshness := opts.MasterFreshness
	if freshness <= 0 {
		freshness = 30 * time.Second
	}
	return &Listener{
		bus:           bus,
		store:         store,
		topics:        opts.Topics,
		masterFilters: opts.MasterStateTopics,
		freshness:     freshness,
		debug:         opts.Debug,
		now:           time.Now,
	}
}

// Start subscribes to every configured topic. A failed subscription is
// logged and skipped; the listener stays useful for the topics that worked.
func (l *Listener) Start() {
	for _, topic := range l.topics {
		if err := l.bus.Subscribe(topic, l.handleMessage); err != nil {
			log.Printf("listener: subscribe %s: %v", topic, err)
		}
	}
}

func (l *Listener) handleMessage(topic string, payload []byte) {
	topic = normalizeTopic(topic)

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		log.Printf("listener: decode %s: %v", topic, err)
		return
	}

	// Raw storage is unconditional; everything after is best-effort.
	l.store.Store(topic, raw)
	alias, hasAlias := topicAliases[topic]
	if hasAlias {
		l.store.Store(alias, raw)
	}

	if l.isMasterTopic(topic) {
		l.mu.Lock()
		l.lastMaster = l.now()
		l.mu.Unlock()
	}

	env, err := protocol.Normalize(raw)
	if err != nil {
		// Status messages are routine chatter; everything else is only
		// interesting when debugging a feed.
		if l.debug && !errors.Is(err, protocol.ErrStatusMessage) {
			log.Printf("listener: ignored message on %s: %v", topic, err)
		}
		return
	}
	l.store.StoreTyped(topic, env)
	if hasAlias {
		l.store.StoreTyped(alias, env)
	}
}

func (l *Listener) isMasterTopic(topic string) bool {
	for _, f := range l.masterFilters {
		if messaging.TopicMatches(f, topic) {
			return true
		}
	}
	return false
}

// BusOnline reports whether the underlying transport is connected.
func (l *Listener) BusOnline() bool {
	return l.bus.IsConnected()
}

// ControllerOnline reports whether a master-controller message was seen
// within the freshness window. A non-positive freshness uses the configured
// default.
func (l *Listener) ControllerOnline(freshness time.Duration) bool {
	if freshness <= 0 {
		freshness = l.freshness
	}
	l.mu.RLock()
	last := l.lastMaster
	l.mu.RUnlock()
	if last.IsZero() {
		return false
	}
	return l.now().Sub(last) <= freshness
}

// LastMasterSeen returns the timestamp of the most recent master message,
// zero if none was ever seen.
func (l *Listener) LastMasterSeen() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastMaster
}

func normalizeTopic(topic string) string {
	return strings.TrimLeft(topic, "/")
}
