package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrderHeader is the wire header shared by order requests and responses.
// Requests carry sender_id; responses carry module_id and version.
type OrderHeader struct {
	Timestamp     float64 `json:"timestamp"`
	SenderID      string  `json:"sender_id,omitempty"`
	ModuleID      string  `json:"module_id,omitempty"`
	CorrelationID string  `json:"correlation_id"`
	Version       float64 `json:"version,omitempty"`
}

// CargoBox is the wire shape of a cargo box inside an order request.
// Unlike the canonical Box it keeps the legacy "type" and "global_pose"
// field names.
type CargoBox struct {
	ID         int    `json:"id"`
	Color      string `json:"color"`
	Type       string `json:"type"`
	GlobalPose Pose   `json:"global_pose"`
}

// OrderRequest is the wire shape published on the order-request topic.
type OrderRequest struct {
	Header         OrderHeader `json:"header"`
	StartingModule ModulePose  `json:"starting_module"`
	Goal           ModulePose  `json:"goal"`
	CargoBox       CargoBox    `json:"cargo_box"`
}

// OrderResponse is the wire shape of a transport result. Republished is set
// only on the synthetic failure the engine publishes after a cancellation.
type OrderResponse struct {
	Header      OrderHeader `json:"header"`
	Success     bool        `json:"success"`
	Republished bool        `json:"_republished,omitempty"`
}

// NewOrderRequest builds an order request with a fresh correlation id.
// The correlation id is the sole join key to the eventual response.
func NewOrderRequest(senderID string, start, goal ModulePose, cargo CargoBox) *OrderRequest {
	return &OrderRequest{
		Header: OrderHeader{
			Timestamp:     float64(time.Now().UnixNano()) / 1e9,
			SenderID:      senderID,
			CorrelationID: uuid.New().String(),
		},
		StartingModule: start,
		Goal:           goal,
		CargoBox:       cargo,
	}
}

// Encode marshals the request to JSON.
func (r *OrderRequest) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// Encode marshals the response to JSON.
func (r *OrderResponse) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeOrderResponse unmarshals a response payload. The caller is
// responsible for checking the correlation id; responses without one are
// routing noise, not errors.
func DecodeOrderResponse(data []byte) (*OrderResponse, error) {
	var resp OrderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode order response: %w", err)
	}
	return &resp, nil
}
