package www

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := hashPassword("secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !checkPassword(hash, "secret") {
		t.Error("correct password rejected")
	}
	if checkPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
}

func TestEventHubBroadcast(t *testing.T) {
	hub := NewEventHub()
	hub.Start()
	defer hub.Stop()

	ch := hub.AddClient()
	defer hub.RemoveClient(ch)

	hub.Broadcast("order-update", `{"type":"dispatched"}`)

	select {
	case evt := <-ch:
		if evt.Event != "order-update" {
			t.Errorf("event = %q", evt.Event)
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}
}

func TestBroadcastJSONEscapesPayloads(t *testing.T) {
	hub := NewEventHub()
	hub.Start()
	defer hub.Stop()

	ch := hub.AddClient()
	defer hub.RemoveClient(ch)

	// Module names come off the bus; quotes and backslashes in them must
	// not corrupt the event stream.
	hub.BroadcastJSON("order-update", orderUpdate{
		Type:          "dispatched",
		CorrelationID: `cid-"quoted"\path`,
		Start:         "conveyor_02",
		Goal:          "container_01",
	})

	select {
	case evt := <-ch:
		var got orderUpdate
		if err := json.Unmarshal([]byte(evt.Data), &got); err != nil {
			t.Fatalf("payload is not valid JSON: %v\ndata: %s", err, evt.Data)
		}
		if got.CorrelationID != `cid-"quoted"\path` {
			t.Errorf("correlation id = %q", got.CorrelationID)
		}
		if got.Success != nil {
			t.Errorf("success should be omitted for dispatched updates, got %v", *got.Success)
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}
}

func TestEventHubDropsWhenClientFull(t *testing.T) {
	hub := NewEventHub()
	hub.Start()
	defer hub.Stop()

	ch := hub.AddClient()
	defer hub.RemoveClient(ch)

	// A stalled client must never block the hub.
	for i := 0; i < 200; i++ {
		hub.Broadcast("order-update", "x")
	}
	time.Sleep(50 * time.Millisecond)
	if n := hub.ClientCount(); n != 1 {
		t.Errorf("clients = %d, want 1", n)
	}
}
