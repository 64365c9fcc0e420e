package listener

import (
	"testing"
	"time"

	"github.com/MakaremHind/human-in-loop-warehouse/messaging"
	"github.com/MakaremHind/human-in-loop-warehouse/protocol"
	"github.com/MakaremHind/human-in-loop-warehouse/snapshot"
)

// fakeBus records subscriptions and lets tests inject messages.
type fakeBus struct {
	handlers  map[string]messaging.MessageHandler
	connected bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{handlers: make(map[string]messaging.MessageHandler), connected: true}
}

func (b *fakeBus) Subscribe(filter string, handler messaging.MessageHandler) error {
	b.handlers[filter] = handler
	return nil
}

func (b *fakeBus) IsConnected() bool { return b.connected }

// deliver routes a message the way the broker would: to every subscription
// whose filter matches the topic.
func (b *fakeBus) deliver(topic string, payload []byte) {
	for filter, h := range b.handlers {
		if messaging.TopicMatches(filter, topic) {
			h(topic, payload)
		}
	}
}

func newTestListener(t *testing.T) (*Listener, *fakeBus, *snapshot.Store) {
	t.Helper()
	bus := newFakeBus()
	store := snapshot.New()
	l := New(bus, store, Options{
		Topics: []string{
			"mmh_cam/detected_boxes",
			"base_module_visualization",
			"base_01/uarm_01",
			"master/state",
			"master/logs/#",
		},
		MasterStateTopics: []string{"master/state", "master/logs/#"},
		MasterFreshness:   30 * time.Second,
	})
	l.Start()
	return l, bus, store
}

func TestRawAndTypedStored(t *testing.T) {
	_, bus, store := newTestListener(t)

	bus.deliver("mmh_cam/detected_boxes", []byte(`{
		"boxes": [{"id": 1, "color": "blue", "type": "small",
		           "global_pose": {"x": 1, "y": 2, "z": 0, "roll": 0, "pitch": 0, "yaw": 0}}]
	}`))

	if _, ok := store.Get("mmh_cam/detected_boxes"); !ok {
		t.Error("raw snapshot missing")
	}
	env, ok := store.GetTyped("mmh_cam/detected_boxes")
	if !ok {
		t.Fatal("typed snapshot missing")
	}
	if env.Kind != protocol.KindBoxArray || len(env.Boxes) != 1 {
		t.Errorf("env = %+v", env)
	}
}

func TestMalformedPayloadDropped(t *testing.T) {
	_, bus, store := newTestListener(t)

	bus.deliver("mmh_cam/detected_boxes", []byte(`{not json`))

	if _, ok := store.Get("mmh_cam/detected_boxes"); ok {
		t.Error("malformed payload should not be stored")
	}

	// The listener must survive junk and keep processing.
	bus.deliver("mmh_cam/detected_boxes", []byte(`{"boxes": []}`))
	if _, ok := store.Get("mmh_cam/detected_boxes"); !ok {
		t.Error("listener stopped storing after junk message")
	}
}

func TestUnrecognizedShapeStoresRawOnly(t *testing.T) {
	_, bus, store := newTestListener(t)

	bus.deliver("base_01/uarm_01", []byte(`{"battery": 97, "state": "idle"}`))

	if _, ok := store.Get("base_01/uarm_01"); !ok {
		t.Error("raw snapshot missing for unrecognized shape")
	}
	if _, ok := store.GetTyped("base_01/uarm_01"); ok {
		t.Error("typed snapshot should not exist for unrecognized shape")
	}
}

func TestLeadingSlashNormalized(t *testing.T) {
	bus := newFakeBus()
	store := snapshot.New()
	l := New(bus, store, Options{Topics: []string{"/inventory/boxes"}})
	l.Start()

	// The broker reports the topic with its leading slash intact.
	if h, ok := bus.handlers["/inventory/boxes"]; ok {
		h("/inventory/boxes", []byte(`{"boxes": []}`))
	} else {
		t.Fatal("subscription missing")
	}

	if _, ok := store.Get("inventory/boxes"); !ok {
		t.Error("topic should be stored without the leading slash")
	}
}

func TestVisualizationAlias(t *testing.T) {
	_, bus, store := newTestListener(t)

	bus.deliver("base_module_visualization", []byte(`{
		"modules": [{"namespace": "conveyor_02",
		             "pose": {"x": 0, "y": 0, "z": 0, "roll": 0, "pitch": 0, "yaw": 0}}]
	}`))

	for _, topic := range []string{"base_module_visualization", "base_01/base_module_visualization"} {
		env, ok := store.GetTyped(topic)
		if !ok {
			t.Fatalf("typed snapshot missing under %s", topic)
		}
		if env.Kind != protocol.KindModulePoseArray {
			t.Errorf("%s kind = %q", topic, env.Kind)
		}
	}
}

func TestControllerLivenessWindow(t *testing.T) {
	l, bus, _ := newTestListener(t)

	base := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	now := base
	l.now = func() time.Time { return now }

	if l.ControllerOnline(0) {
		t.Error("controller should be offline before any master message")
	}

	bus.deliver("master/state", []byte(`{"data": "online"}`))
	if !l.ControllerOnline(0) {
		t.Error("controller should be online right after a master message")
	}

	now = base.Add(29 * time.Second)
	if !l.ControllerOnline(0) {
		t.Error("controller should be online within the 30s window")
	}

	now = base.Add(31 * time.Second)
	if l.ControllerOnline(0) {
		t.Error("controller should be offline after the window")
	}

	// Messages on the log subtree also count as heartbeats.
	bus.deliver("master/logs/execute_planned_path", []byte(`{"message": "ok"}`))
	if !l.ControllerOnline(0) {
		t.Error("master log message should refresh liveness")
	}
}

func TestBusOnline(t *testing.T) {
	l, bus, _ := newTestListener(t)
	if !l.BusOnline() {
		t.Error("bus should report online")
	}
	bus.connected = false
	if l.BusOnline() {
		t.Error("bus should report offline")
	}
}
