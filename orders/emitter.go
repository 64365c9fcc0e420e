package orders

import "github.com/MakaremHind/human-in-loop-warehouse/protocol"

// Emitter receives order lifecycle notifications. Implementations must be
// fast and non-blocking; they run on the dispatch and delivery paths.
type Emitter interface {
	EmitOrderDispatched(correlationID string, req *protocol.OrderRequest)
	EmitOrderResolved(correlationID string, resp *protocol.OrderResponse)
	EmitOrderCancelled(correlationID string)
	EmitOrderTimeout(correlationID string)
}

// NoopEmitter discards all notifications.
type NoopEmitter struct{}

func (NoopEmitter) EmitOrderDispatched(string, *protocol.OrderRequest)  {}
func (NoopEmitter) EmitOrderResolved(string, *protocol.OrderResponse)   {}
func (NoopEmitter) EmitOrderCancelled(string)                           {}
func (NoopEmitter) EmitOrderTimeout(string)                             {}
