package protocol

// Pose is a position and orientation in the warehouse frame.
// Units are millimeters and radians.
type Pose struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Box is a detected cargo box in canonical form. The wire shape carries
// "type" and "global_pose"; normalization remaps them to Kind and Pose.
type Box struct {
	ID    int    `json:"id"`
	Color string `json:"color"`
	Kind  string `json:"kind"`
	Pose  Pose   `json:"pose"`
}

// Fiducial is a detected marker (aruco).
type Fiducial struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
	Pose Pose   `json:"pose"`
}

// ModulePose is a warehouse module (conveyor, container, uarm, dock)
// identified by namespace.
type ModulePose struct {
	Namespace string `json:"namespace"`
	Pose      Pose   `json:"pose"`
}

// Region is one cell of the layout height map.
type Region struct {
	TopCorner    Pose    `json:"top_corner"`
	BottomCorner Pose    `json:"bottom_corner"`
	Height       float64 `json:"height"`
}

// OrderResult is a normalized transport order (request or completed order).
type OrderResult struct {
	StartingModule ModulePose `json:"starting_module"`
	Goal           ModulePose `json:"goal"`
	CargoBox       Box        `json:"cargo_box"`
}

// Kind discriminates the payload variant of an Envelope.
type Kind string

const (
	KindBoxArray        Kind = "BoxArray"
	KindFiducialArray   Kind = "FiducialArray"
	KindModulePoseArray Kind = "ModulePoseArray"
	KindRegionArray     Kind = "RegionArray"
	KindOrderResult     Kind = "OrderResult"
)

// Envelope is the canonical typed wrapper around a normalized inbound
// message. Exactly one payload field is populated, selected by Kind.
// Envelopes are immutable after Normalize returns them.
type Envelope struct {
	Header map[string]any `json:"header"`
	Kind   Kind           `json:"kind"`

	Boxes     []Box        `json:"boxes,omitempty"`
	Fiducials []Fiducial   `json:"fiducials,omitempty"`
	Modules   []ModulePose `json:"modules,omitempty"`
	Regions   []Region     `json:"regions,omitempty"`
	Order     *OrderResult `json:"order,omitempty"`
}

// Timestamp returns the header timestamp, or 0 if absent.
func (e *Envelope) Timestamp() float64 {
	if e == nil || e.Header == nil {
		return 0
	}
	ts, _ := e.Header["timestamp"].(float64)
	return ts
}
