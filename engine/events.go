package engine

const (
	EventOrderDispatched EventType = iota + 1
	EventOrderResolved
	EventOrderCancelled
	EventOrderTimeout
	EventBusConnected
	EventBusDisconnected
	EventControllerOnline
	EventControllerOffline
)

// --- Event payloads ---

type OrderDispatchedEvent struct {
	CorrelationID string
	SenderID      string
	StartModule   string
	GoalModule    string
	BoxID         int
	BoxColor      string
	BoxType       string
}

type OrderResolvedEvent struct {
	CorrelationID string
	Success       bool
	ResponderID   string
	Republished   bool
}

type OrderCancelledEvent struct {
	CorrelationID string
}

type OrderTimeoutEvent struct {
	CorrelationID string
}

type ConnectionEvent struct {
	Detail string
}
