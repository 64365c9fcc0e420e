package www

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/MakaremHind/human-in-loop-warehouse/engine"
)

type SSEEvent struct {
	Event string
	Data  string
}

type EventHub struct {
	mu        sync.RWMutex
	clients   map[chan SSEEvent]struct{}
	broadcast chan SSEEvent
	stopChan  chan struct{}
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients:   make(map[chan SSEEvent]struct{}),
		broadcast: make(chan SSEEvent, 256),
		stopChan:  make(chan struct{}),
	}
}

func (h *EventHub) Start() {
	go h.run()
}

func (h *EventHub) Stop() {
	select {
	case h.stopChan <- struct{}{}:
	default:
	}
}

func (h *EventHub) run() {
	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-h.stopChan:
			return
		case evt := <-h.broadcast:
			h.mu.RLock()
			for ch := range h.clients {
				select {
				case ch <- evt:
				default:
					// drop if full
				}
			}
			h.mu.RUnlock()
		case <-keepalive.C:
			h.mu.RLock()
			for ch := range h.clients {
				select {
				case ch <- SSEEvent{Event: "keepalive", Data: "ping"}:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *EventHub) Broadcast(event, data string) {
	select {
	case h.broadcast <- SSEEvent{Event: event, Data: data}:
	default:
	}
}

// BroadcastJSON marshals v and broadcasts it, so payload strings are always
// escaped correctly.
func (h *EventHub) BroadcastJSON(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("sse: marshal %s payload: %v", event, err)
		return
	}
	h.Broadcast(event, string(data))
}

func (h *EventHub) AddClient() chan SSEEvent {
	ch := make(chan SSEEvent, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) RemoveClient(ch chan SSEEvent) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type orderUpdate struct {
	Type          string `json:"type"`
	CorrelationID string `json:"correlation_id"`
	Start         string `json:"start,omitempty"`
	Goal          string `json:"goal,omitempty"`
	Success       *bool  `json:"success,omitempty"`
}

type systemStatus struct {
	Bus        string `json:"bus,omitempty"`
	Controller string `json:"controller,omitempty"`
}

// SetupEngineListeners wires engine events to SSE broadcasts.
func (h *EventHub) SetupEngineListeners(eng *engine.Engine) {
	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.OrderDispatchedEvent)
		h.BroadcastJSON("order-update", orderUpdate{
			Type:          "dispatched",
			CorrelationID: ev.CorrelationID,
			Start:         ev.StartModule,
			Goal:          ev.GoalModule,
		})
	}, engine.EventOrderDispatched)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.OrderResolvedEvent)
		h.BroadcastJSON("order-update", orderUpdate{
			Type:          "resolved",
			CorrelationID: ev.CorrelationID,
			Success:       &ev.Success,
		})
	}, engine.EventOrderResolved)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.OrderCancelledEvent)
		h.BroadcastJSON("order-update", orderUpdate{Type: "cancelled", CorrelationID: ev.CorrelationID})
	}, engine.EventOrderCancelled)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		ev := evt.Payload.(engine.OrderTimeoutEvent)
		h.BroadcastJSON("order-update", orderUpdate{Type: "timeout", CorrelationID: ev.CorrelationID})
	}, engine.EventOrderTimeout)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.BroadcastJSON("system-status", systemStatus{Bus: "connected"})
	}, engine.EventBusConnected)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.BroadcastJSON("system-status", systemStatus{Bus: "disconnected"})
	}, engine.EventBusDisconnected)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.BroadcastJSON("system-status", systemStatus{Controller: "online"})
	}, engine.EventControllerOnline)

	eng.Events.SubscribeTypes(func(evt engine.Event) {
		h.BroadcastJSON("system-status", systemStatus{Controller: "offline"})
	}, engine.EventControllerOffline)
}

// SSEHandler serves the SSE endpoint.
func (h *EventHub) SSEHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.AddClient()
	defer h.RemoveClient(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-ch:
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Event, evt.Data); err != nil {
				log.Printf("sse: write error: %v", err)
				return
			}
			flusher.Flush()
		}
	}
}
