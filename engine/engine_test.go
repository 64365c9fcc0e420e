package engine

import (
	"path/filepath"
	"testing"

	"github.com/MakaremHind/human-in-loop-warehouse/config"
	"github.com/MakaremHind/human-in-loop-warehouse/protocol"
	"github.com/MakaremHind/human-in-loop-warehouse/store"
)

func TestEventBusSubscribe(t *testing.T) {
	eb := NewEventBus()

	var got []EventType
	eb.Subscribe(func(evt Event) { got = append(got, evt.Type) })

	eb.Emit(Event{Type: EventOrderDispatched})
	eb.Emit(Event{Type: EventBusConnected})

	if len(got) != 2 || got[0] != EventOrderDispatched || got[1] != EventBusConnected {
		t.Errorf("got = %v", got)
	}
}

func TestEventBusTypeFilter(t *testing.T) {
	eb := NewEventBus()

	var got []EventType
	eb.SubscribeTypes(func(evt Event) { got = append(got, evt.Type) }, EventOrderResolved)

	eb.Emit(Event{Type: EventOrderDispatched})
	eb.Emit(Event{Type: EventOrderResolved})

	if len(got) != 1 || got[0] != EventOrderResolved {
		t.Errorf("got = %v", got)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := NewEventBus()

	count := 0
	id := eb.Subscribe(func(Event) { count++ })
	eb.Emit(Event{Type: EventBusConnected})
	eb.Unsubscribe(id)
	eb.Emit(Event{Type: EventBusConnected})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestEventBusMultipleSubscribersPerType(t *testing.T) {
	eb := NewEventBus()

	var order []string
	eb.SubscribeTypes(func(Event) { order = append(order, "first") }, EventOrderResolved)
	eb.SubscribeTypes(func(Event) { order = append(order, "second") }, EventOrderResolved)
	eb.Subscribe(func(Event) { order = append(order, "all") })

	eb.Emit(Event{Type: EventOrderResolved})

	if len(order) != 3 {
		t.Fatalf("delivered to %d handlers, want 3: %v", len(order), order)
	}
	// Delivery follows subscription order regardless of how the handler
	// was registered.
	if order[0] != "first" || order[1] != "second" || order[2] != "all" {
		t.Errorf("order = %v", order)
	}
}

func TestEventBusUnsubscribeTyped(t *testing.T) {
	eb := NewEventBus()

	count := 0
	id := eb.SubscribeTypes(func(Event) { count++ }, EventOrderDispatched, EventOrderResolved)
	other := 0
	eb.SubscribeTypes(func(Event) { other++ }, EventOrderDispatched)

	eb.Emit(Event{Type: EventOrderDispatched})
	eb.Unsubscribe(id)
	eb.Emit(Event{Type: EventOrderDispatched})
	eb.Emit(Event{Type: EventOrderResolved})

	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if other != 2 {
		t.Errorf("other = %d, want 2", other)
	}
}

func TestEventBusTimestampDefaulted(t *testing.T) {
	eb := NewEventBus()

	eb.Subscribe(func(evt Event) {
		if evt.Timestamp.IsZero() {
			t.Error("Emit should stamp events without a timestamp")
		}
	})
	eb.Emit(Event{Type: EventBusConnected})
}

func testJournalEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := store.Open(&config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	e := New(Config{DB: db, LogFunc: t.Logf})
	e.wireEventHandlers()
	return e
}

func TestOrderLifecycleIsJournaled(t *testing.T) {
	e := testJournalEngine(t)
	emitter := &orderEmitter{bus: e.Events}

	req := &protocol.OrderRequest{
		Header:         protocol.OrderHeader{SenderID: "OrderGenerator", CorrelationID: "cid-1"},
		StartingModule: protocol.ModulePose{Namespace: "conveyor_02"},
		Goal:           protocol.ModulePose{Namespace: "container_01"},
		CargoBox:       protocol.CargoBox{ID: 7, Color: "red", Type: "small"},
	}
	emitter.EmitOrderDispatched("cid-1", req)

	rec, err := e.DB().GetOrder("cid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != "dispatched" || rec.GoalModule != "container_01" {
		t.Errorf("record = %+v", rec)
	}

	emitter.EmitOrderResolved("cid-1", &protocol.OrderResponse{
		Header:  protocol.OrderHeader{ModuleID: "mock_handler", CorrelationID: "cid-1"},
		Success: true,
	})
	rec, _ = e.DB().GetOrder("cid-1")
	if rec.Status != "success" || rec.ResponderID != "mock_handler" {
		t.Errorf("after resolve: %+v", rec)
	}
}

func TestSyntheticFailureDoesNotOverwriteCancelledJournal(t *testing.T) {
	e := testJournalEngine(t)
	emitter := &orderEmitter{bus: e.Events}

	req := &protocol.OrderRequest{Header: protocol.OrderHeader{CorrelationID: "cid-2"}}
	emitter.EmitOrderDispatched("cid-2", req)
	emitter.EmitOrderCancelled("cid-2")

	// The engine's own synthetic failure loops back from the bus.
	emitter.EmitOrderResolved("cid-2", &protocol.OrderResponse{
		Header:      protocol.OrderHeader{CorrelationID: "cid-2"},
		Success:     false,
		Republished: true,
	})

	rec, err := e.DB().GetOrder("cid-2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Status != "cancelled" {
		t.Errorf("Status = %q, want cancelled", rec.Status)
	}
}

func TestTimeoutIsJournaled(t *testing.T) {
	e := testJournalEngine(t)
	emitter := &orderEmitter{bus: e.Events}

	emitter.EmitOrderDispatched("cid-3", &protocol.OrderRequest{
		Header: protocol.OrderHeader{CorrelationID: "cid-3"},
	})
	emitter.EmitOrderTimeout("cid-3")

	rec, _ := e.DB().GetOrder("cid-3")
	if rec.Status != "timeout" {
		t.Errorf("Status = %q, want timeout", rec.Status)
	}
}
