package orders

import (
	"errors"

	"github.com/MakaremHind/human-in-loop-warehouse/protocol"
)

// ErrAlreadyResolved is returned by Cancel when a result for the order is
// already recorded. A finished order cannot be cancelled.
var ErrAlreadyResolved = errors.New("order already resolved")

// ErrModuleNotFound is returned by Dispatch when a named start or goal
// module cannot be resolved to a pose. Nothing is published in that case.
var ErrModuleNotFound = errors.New("module not found")

// Status is the terminal state of an awaited order.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Outcome is the result of awaiting an order.
type Outcome struct {
	Status        Status                  `json:"status"`
	CorrelationID string                  `json:"correlation_id"`
	Response      *protocol.OrderResponse `json:"response,omitempty"`
}

// DispatchRequest describes a transport order to publish. Start and Goal
// name modules to resolve from the snapshot; the pose fields override name
// resolution for ad-hoc targets.
type DispatchRequest struct {
	Start     string
	StartPose *protocol.Pose
	Goal      string
	GoalPose  *protocol.Pose

	BoxID    *int
	BoxColor string
	BoxPose  *protocol.Pose
}
