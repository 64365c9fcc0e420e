package engine

import (
	"github.com/MakaremHind/human-in-loop-warehouse/protocol"
)

// orderEmitter bridges the orders package's emitter interface to the EventBus.
type orderEmitter struct {
	bus *EventBus
}

func (e *orderEmitter) EmitOrderDispatched(correlationID string, req *protocol.OrderRequest) {
	e.bus.Emit(Event{Type: EventOrderDispatched, Payload: OrderDispatchedEvent{
		CorrelationID: correlationID,
		SenderID:      req.Header.SenderID,
		StartModule:   req.StartingModule.Namespace,
		GoalModule:    req.Goal.Namespace,
		BoxID:         req.CargoBox.ID,
		BoxColor:      req.CargoBox.Color,
		BoxType:       req.CargoBox.Type,
	}})
}

func (e *orderEmitter) EmitOrderResolved(correlationID string, resp *protocol.OrderResponse) {
	e.bus.Emit(Event{Type: EventOrderResolved, Payload: OrderResolvedEvent{
		CorrelationID: correlationID,
		Success:       resp.Success,
		ResponderID:   resp.Header.ModuleID,
		Republished:   resp.Republished,
	}})
}

func (e *orderEmitter) EmitOrderCancelled(correlationID string) {
	e.bus.Emit(Event{Type: EventOrderCancelled, Payload: OrderCancelledEvent{
		CorrelationID: correlationID,
	}})
}

func (e *orderEmitter) EmitOrderTimeout(correlationID string) {
	e.bus.Emit(Event{Type: EventOrderTimeout, Payload: OrderTimeoutEvent{
		CorrelationID: correlationID,
	}})
}
