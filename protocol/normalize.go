package protocol

import (
	"errors"
	"fmt"
)

// ErrStatusMessage marks an order-completion-status payload (success + info,
// no order fields). It is not a content message, so the listener can skip
// logging it entirely.
var ErrStatusMessage = errors.New("order completion status message ignored")

// ErrUnrecognized marks a payload that matches none of the known shapes.
var ErrUnrecognized = errors.New("unrecognised message format")

// Normalize converts a raw decoded JSON object into a canonical Envelope.
// Shapes are checked in a fixed priority order: boxes, fiducials, modules,
// map, order-result. The first structural match wins. A success+info shape
// is explicitly rejected with ErrStatusMessage so it is never coerced into
// a content kind.
func Normalize(raw map[string]any) (*Envelope, error) {
	env := &Envelope{Header: objField(raw, "header")}

	switch {
	case has(raw, "boxes"):
		boxes, err := normalizeBoxes(raw["boxes"])
		if err != nil {
			return nil, err
		}
		env.Kind = KindBoxArray
		env.Boxes = boxes

	case has(raw, "fiducials"):
		fids, err := normalizeFiducials(raw["fiducials"])
		if err != nil {
			return nil, err
		}
		env.Kind = KindFiducialArray
		env.Fiducials = fids

	case has(raw, "modules"):
		mods, err := normalizeModules(raw["modules"])
		if err != nil {
			return nil, err
		}
		env.Kind = KindModulePoseArray
		env.Modules = mods

	case has(raw, "map"):
		regions, err := normalizeRegions(raw["map"])
		if err != nil {
			return nil, err
		}
		env.Kind = KindRegionArray
		env.Regions = regions

	case has(raw, "starting_module") && has(raw, "goal") && has(raw, "cargo_box"):
		order, err := normalizeOrder(raw)
		if err != nil {
			return nil, err
		}
		env.Kind = KindOrderResult
		env.Order = order

	case has(raw, "success") && has(raw, "info"):
		return nil, ErrStatusMessage

	default:
		return nil, ErrUnrecognized
	}

	return env, nil
}

func normalizeBoxes(v any) ([]Box, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("boxes: expected array, got %T", v)
	}
	boxes := make([]Box, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("boxes[%d]: expected object, got %T", i, it)
		}
		b, err := boxFrom(m, "global_pose")
		if err != nil {
			return nil, fmt.Errorf("boxes[%d]: %w", i, err)
		}
		boxes = append(boxes, b)
	}
	return boxes, nil
}

func normalizeFiducials(v any) ([]Fiducial, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("fiducials: expected array, got %T", v)
	}
	fids := make([]Fiducial, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("fiducials[%d]: expected object, got %T", i, it)
		}
		pose, err := poseFrom(m["relative_pose"])
		if err != nil {
			return nil, fmt.Errorf("fiducials[%d].relative_pose: %w", i, err)
		}
		fids = append(fids, Fiducial{
			ID:   intField(m, "id"),
			Type: strField(m, "type"),
			Pose: pose,
		})
	}
	return fids, nil
}

func normalizeModules(v any) ([]ModulePose, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("modules: expected array, got %T", v)
	}
	mods := make([]ModulePose, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("modules[%d]: expected object, got %T", i, it)
		}
		mp, err := moduleFrom(m)
		if err != nil {
			return nil, fmt.Errorf("modules[%d]: %w", i, err)
		}
		mods = append(mods, mp)
	}
	return mods, nil
}

func normalizeRegions(v any) ([]Region, error) {
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("map: expected array, got %T", v)
	}
	regions := make([]Region, 0, len(items))
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("map[%d]: expected object, got %T", i, it)
		}
		top, err := poseFrom(m["TopCorner"])
		if err != nil {
			return nil, fmt.Errorf("map[%d].TopCorner: %w", i, err)
		}
		bottom, err := poseFrom(m["BottomCorner"])
		if err != nil {
			return nil, fmt.Errorf("map[%d].BottomCorner: %w", i, err)
		}
		regions = append(regions, Region{
			TopCorner:    top,
			BottomCorner: bottom,
			Height:       f64Field(m, "height"),
		})
	}
	return regions, nil
}

func normalizeOrder(raw map[string]any) (*OrderResult, error) {
	start, err := moduleFromAny(raw["starting_module"])
	if err != nil {
		return nil, fmt.Errorf("starting_module: %w", err)
	}
	goal, err := moduleFromAny(raw["goal"])
	if err != nil {
		return nil, fmt.Errorf("goal: %w", err)
	}
	cargoMap, ok := raw["cargo_box"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cargo_box: expected object, got %T", raw["cargo_box"])
	}
	cargo, err := boxFrom(cargoMap, "global_pose")
	if err != nil {
		return nil, fmt.Errorf("cargo_box: %w", err)
	}
	return &OrderResult{StartingModule: start, Goal: goal, CargoBox: cargo}, nil
}

// boxFrom builds a canonical Box from a wire object, remapping the wire
// "type" field to Kind and the named pose field to Pose.
func boxFrom(m map[string]any, poseKey string) (Box, error) {
	pose, err := poseFrom(m[poseKey])
	if err != nil {
		return Box{}, fmt.Errorf("%s: %w", poseKey, err)
	}
	return Box{
		ID:    intField(m, "id"),
		Color: strField(m, "color"),
		Kind:  strField(m, "type"),
		Pose:  pose,
	}, nil
}

func moduleFromAny(v any) (ModulePose, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return ModulePose{}, fmt.Errorf("expected object, got %T", v)
	}
	return moduleFrom(m)
}

func moduleFrom(m map[string]any) (ModulePose, error) {
	pose, err := poseFrom(m["pose"])
	if err != nil {
		return ModulePose{}, fmt.Errorf("pose: %w", err)
	}
	return ModulePose{Namespace: strField(m, "namespace"), Pose: pose}, nil
}

func poseFrom(v any) (Pose, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Pose{}, fmt.Errorf("expected pose object, got %T", v)
	}
	return Pose{
		X:     f64Field(m, "x"),
		Y:     f64Field(m, "y"),
		Z:     f64Field(m, "z"),
		Roll:  f64Field(m, "roll"),
		Pitch: f64Field(m, "pitch"),
		Yaw:   f64Field(m, "yaw"),
	}, nil
}

func has(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func objField(m map[string]any, key string) map[string]any {
	obj, _ := m[key].(map[string]any)
	if obj == nil {
		obj = map[string]any{}
	}
	return obj
}

func strField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func f64Field(m map[string]any, key string) float64 {
	switch n := m[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

func intField(m map[string]any, key string) int {
	switch n := m[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
