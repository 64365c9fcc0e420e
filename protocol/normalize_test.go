package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func decodeRaw(t *testing.T, s string) map[string]any {
	t.Helper()
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	return raw
}

func TestNormalizeBoxes(t *testing.T) {
	raw := decodeRaw(t, `{
		"header": {"timestamp": 1700000000.5},
		"boxes": [
			{"id": 7, "color": "red", "type": "small",
			 "global_pose": {"x": 120, "y": 45, "z": 0, "roll": 0, "pitch": 0, "yaw": 1.57}}
		]
	}`)

	env, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if env.Kind != KindBoxArray {
		t.Errorf("kind = %q, want %q", env.Kind, KindBoxArray)
	}
	if len(env.Boxes) != 1 {
		t.Fatalf("boxes = %d, want 1", len(env.Boxes))
	}
	b := env.Boxes[0]
	if b.ID != 7 || b.Color != "red" {
		t.Errorf("box = %+v", b)
	}
	// Wire "type" must land in Kind, wire "global_pose" in Pose.
	if b.Kind != "small" {
		t.Errorf("kind = %q, want %q", b.Kind, "small")
	}
	if b.Pose.X != 120 || b.Pose.Yaw != 1.57 {
		t.Errorf("pose = %+v", b.Pose)
	}
	if env.Timestamp() != 1700000000.5 {
		t.Errorf("timestamp = %f", env.Timestamp())
	}
}

func TestNormalizeFiducials(t *testing.T) {
	raw := decodeRaw(t, `{
		"fiducials": [
			{"id": 3, "type": "aruco",
			 "relative_pose": {"x": 1, "y": 2, "z": 3, "roll": 0, "pitch": 0, "yaw": 0}}
		]
	}`)

	env, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if env.Kind != KindFiducialArray {
		t.Errorf("kind = %q, want %q", env.Kind, KindFiducialArray)
	}
	if len(env.Fiducials) != 1 {
		t.Fatalf("fiducials = %d, want 1", len(env.Fiducials))
	}
	f := env.Fiducials[0]
	if f.ID != 3 || f.Type != "aruco" || f.Pose.Z != 3 {
		t.Errorf("fiducial = %+v", f)
	}
}

func TestNormalizeModules(t *testing.T) {
	raw := decodeRaw(t, `{
		"modules": [
			{"namespace": "conveyor_02",
			 "pose": {"x": 100, "y": 200, "z": 0, "roll": 0, "pitch": 0, "yaw": 0}},
			{"namespace": "container_01",
			 "pose": {"x": 400, "y": 250, "z": 0, "roll": 0, "pitch": 0, "yaw": 0}}
		]
	}`)

	env, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if env.Kind != KindModulePoseArray {
		t.Errorf("kind = %q, want %q", env.Kind, KindModulePoseArray)
	}
	if len(env.Modules) != 2 {
		t.Fatalf("modules = %d, want 2", len(env.Modules))
	}
	if env.Modules[0].Namespace != "conveyor_02" || env.Modules[1].Pose.X != 400 {
		t.Errorf("modules = %+v", env.Modules)
	}
}

func TestNormalizeRegions(t *testing.T) {
	raw := decodeRaw(t, `{
		"map": [
			{"TopCorner": {"x": 0, "y": 0, "z": 0, "roll": 0, "pitch": 0, "yaw": 0},
			 "BottomCorner": {"x": 500, "y": 500, "z": 0, "roll": 0, "pitch": 0, "yaw": 0},
			 "height": 120}
		]
	}`)

	env, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if env.Kind != KindRegionArray {
		t.Errorf("kind = %q, want %q", env.Kind, KindRegionArray)
	}
	r := env.Regions[0]
	if r.BottomCorner.X != 500 || r.Height != 120 {
		t.Errorf("region = %+v", r)
	}
}

func TestNormalizeOrderResult(t *testing.T) {
	raw := decodeRaw(t, `{
		"header": {"correlation_id": "abc-123"},
		"starting_module": {"namespace": "conveyor_02",
			"pose": {"x": 1, "y": 2, "z": 0, "roll": 0, "pitch": 0, "yaw": 0}},
		"goal": {"namespace": "container_01",
			"pose": {"x": 3, "y": 4, "z": 0, "roll": 0, "pitch": 0, "yaw": 0}},
		"cargo_box": {"id": 7, "color": "red", "type": "small",
			"global_pose": {"x": 5, "y": 6, "z": 0, "roll": 0, "pitch": 0, "yaw": 0}}
	}`)

	env, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if env.Kind != KindOrderResult {
		t.Errorf("kind = %q, want %q", env.Kind, KindOrderResult)
	}
	if env.Order == nil {
		t.Fatal("order payload missing")
	}
	if env.Order.StartingModule.Namespace != "conveyor_02" {
		t.Errorf("start = %+v", env.Order.StartingModule)
	}
	if env.Order.Goal.Namespace != "container_01" {
		t.Errorf("goal = %+v", env.Order.Goal)
	}
	if env.Order.CargoBox.Kind != "small" || env.Order.CargoBox.Pose.X != 5 {
		t.Errorf("cargo = %+v", env.Order.CargoBox)
	}
}

func TestNormalizeStatusMessageRejected(t *testing.T) {
	raw := decodeRaw(t, `{"success": true, "info": "order done"}`)
	_, err := Normalize(raw)
	if !errors.Is(err, ErrStatusMessage) {
		t.Fatalf("err = %v, want ErrStatusMessage", err)
	}
}

func TestNormalizeUnrecognized(t *testing.T) {
	raw := decodeRaw(t, `{"battery": 97, "state": "idle"}`)
	_, err := Normalize(raw)
	if !errors.Is(err, ErrUnrecognized) {
		t.Fatalf("err = %v, want ErrUnrecognized", err)
	}
}

// A message that carries both boxes and order-status fields must classify as
// boxes: shape checks run in fixed priority order.
func TestNormalizePriorityOrder(t *testing.T) {
	raw := decodeRaw(t, `{
		"boxes": [],
		"success": false,
		"info": "ignored"
	}`)
	env, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if env.Kind != KindBoxArray {
		t.Errorf("kind = %q, want %q", env.Kind, KindBoxArray)
	}
}

func TestOrderRequestRoundTrip(t *testing.T) {
	req := NewOrderRequest("OrderGenerator",
		ModulePose{Namespace: "conveyor_02", Pose: Pose{X: 1}},
		ModulePose{Namespace: "container_01", Pose: Pose{X: 2}},
		CargoBox{ID: 7, Color: "red", Type: "small"},
	)
	if req.Header.CorrelationID == "" {
		t.Error("correlation id should not be empty")
	}
	if req.Header.Timestamp == 0 {
		t.Error("timestamp should not be zero")
	}

	data, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// The wire shape keeps the legacy field names.
	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	cargo, _ := wire["cargo_box"].(map[string]any)
	if cargo == nil {
		t.Fatal("cargo_box missing on the wire")
	}
	if _, ok := cargo["type"]; !ok {
		t.Error("cargo_box should carry legacy \"type\" field")
	}
	if _, ok := cargo["global_pose"]; !ok {
		t.Error("cargo_box should carry legacy \"global_pose\" field")
	}
}

func TestDecodeOrderResponse(t *testing.T) {
	data := []byte(`{
		"header": {"timestamp": 1700000001.0, "module_id": "mock_handler",
		           "correlation_id": "abc-123", "version": 1.0},
		"success": true
	}`)
	resp, err := DecodeOrderResponse(data)
	if err != nil {
		t.Fatalf("DecodeOrderResponse: %v", err)
	}
	if resp.Header.CorrelationID != "abc-123" {
		t.Errorf("correlation_id = %q", resp.Header.CorrelationID)
	}
	if !resp.Success || resp.Republished {
		t.Errorf("resp = %+v", resp)
	}
}
