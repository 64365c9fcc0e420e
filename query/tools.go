// Package query provides thin, synchronous, read-only lookups over the
// snapshot store. Every function fails softly: "no data yet" is a normal
// state of an eventually-consistent cache, so absence comes back as
// ErrNotFound, never a panic.
package query

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/MakaremHind/human-in-loop-warehouse/protocol"
	"github.com/MakaremHind/human-in-loop-warehouse/snapshot"
)

// ErrNotFound is the negative result for every lookup in this package.
var ErrNotFound = errors.New("not found")

// ResultSource is the slice of the order engine the tools read from.
type ResultSource interface {
	LastResult() (string, *protocol.OrderResponse, bool)
}

type Options struct {
	BoxTopic         string
	ModulesTopic     string
	RequestTopic     string
	ResponseTopic    string
	MasterStateTopic string
}

// Tools bundles the lookups with their data sources. Orders may be nil when
// no order engine is running; order-related lookups then report ErrNotFound.
type Tools struct {
	store  *snapshot.Store
	orders ResultSource
	opts   Options
}

func New(store *snapshot.Store, orders ResultSource, opts Options) *Tools {
	if opts.BoxTopic == "" {
		opts.BoxTopic = "mmh_cam/detected_boxes"
	}
	if opts.ModulesTopic == "" {
		opts.ModulesTopic = "base_01/base_module_visualization"
	}
	if opts.RequestTopic == "" {
		opts.RequestTopic = "base_01/order_request"
	}
	if opts.ResponseTopic == "" {
		opts.ResponseTopic = "base_01/order_request/response"
	}
	if opts.MasterStateTopic == "" {
		opts.MasterStateTopic = "master/state"
	}
	return &Tools{store: store, orders: orders, opts: opts}
}

// BoxSummary is the pose-free listing shape.
type BoxSummary struct {
	ID    int    `json:"id"`
	Color string `json:"color"`
	Kind  string `json:"kind"`
}

// ListBoxes returns id, color and kind for every detected box. An empty
// slice means no detections have been seen yet.
func (t *Tools) ListBoxes() []BoxSummary {
	boxes := t.boxes()
	out := make([]BoxSummary, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, BoxSummary{ID: b.ID, Color: b.Color, Kind: b.Kind})
	}
	return out
}

// FindBox returns the full box, pose included, for an id.
func (t *Tools) FindBox(id int) (protocol.Box, error) {
	for _, b := range t.boxes() {
		if b.ID == id {
			return b, nil
		}
	}
	return protocol.Box{}, fmt.Errorf("box %d: %w", id, ErrNotFound)
}

// FindBoxByColor returns all boxes matching the color. The match is
// case-insensitive: "RED" finds boxes tagged "red".
func (t *Tools) FindBoxByColor(color string) ([]protocol.Box, error) {
	var matching []protocol.Box
	for _, b := range t.boxes() {
		if strings.EqualFold(b.Color, color) {
			matching = append(matching, b)
		}
	}
	if len(matching) == 0 {
		return nil, fmt.Errorf("box with color %q: %w", color, ErrNotFound)
	}
	return matching, nil
}

// ListModules returns every known module namespace.
func (t *Tools) ListModules() []string {
	mods := t.modules()
	out := make([]string, 0, len(mods))
	for _, m := range mods {
		out = append(out, m.Namespace)
	}
	return out
}

// FindModule returns the module with the given namespace.
func (t *Tools) FindModule(namespace string) (protocol.ModulePose, error) {
	for _, m := range t.modules() {
		if m.Namespace == namespace {
			return m, nil
		}
	}
	return protocol.ModulePose{}, fmt.Errorf("module %q: %w", namespace, ErrNotFound)
}

// ClosestMatch reports which module a point belongs to. Method is
// "footprint" when the point lies inside the module's rectangle (distance
// 0), "distance" when it was assigned to the nearest center.
type ClosestMatch struct {
	Namespace string  `json:"namespace"`
	Method    string  `json:"method"`
	Distance  float64 `json:"distance"`
}

// Per-kind footprint estimates, width x height in mm.
var footprintMM = map[string][2]float64{
	"conveyor":  {450, 150},
	"container": {150, 150},
	"uarm":      {200, 200},
	"dock":      {200, 200},
}

var defaultFootprint = [2]float64{150, 150}

// FindClosestModule determines which module an (x, y) mm point is in.
// Footprint containment wins; the Euclidean center-distance fallback only
// applies when the point is inside no footprint.
func (t *Tools) FindClosestModule(x, y float64) (ClosestMatch, error) {
	mods := t.modules()
	if len(mods) == 0 {
		return ClosestMatch{}, fmt.Errorf("no modules in %s: %w", t.opts.ModulesTopic, ErrNotFound)
	}

	for _, m := range mods {
		fp, ok := footprintMM[moduleKind(m.Namespace)]
		if !ok {
			fp = defaultFootprint
		}
		if math.Abs(x-m.Pose.X) <= fp[0]/2 && math.Abs(y-m.Pose.Y) <= fp[1]/2 {
			return ClosestMatch{Namespace: m.Namespace, Method: "footprint", Distance: 0}, nil
		}
	}

	best := mods[0]
	bestDist := math.Hypot(x-best.Pose.X, y-best.Pose.Y)
	for _, m := range mods[1:] {
		if d := math.Hypot(x-m.Pose.X, y-m.Pose.Y); d < bestDist {
			best, bestDist = m, d
		}
	}
	return ClosestMatch{Namespace: best.Namespace, Method: "distance", Distance: bestDist}, nil
}

func moduleKind(namespace string) string {
	for _, kind := range []string{"conveyor", "container", "uarm", "dock"} {
		if strings.HasPrefix(namespace, kind) {
			return kind
		}
	}
	return "unknown"
}

// PlanPath computes a transport route between two modules. Short hops go
// through the uarm nearest the start; longer ones insert a turtlebot leg
// with a uarm handoff at each end.
func (t *Tools) PlanPath(start, goal string) ([]string, error) {
	mods := t.modules()
	poses := make(map[string]protocol.Pose, len(mods))
	var uarms, docks []protocol.ModulePose
	for _, m := range mods {
		poses[m.Namespace] = m.Pose
		switch moduleKind(m.Namespace) {
		case "uarm":
			uarms = append(uarms, m)
		case "dock":
			docks = append(docks, m)
		}
	}

	startPose, ok := poses[start]
	if !ok {
		return nil, fmt.Errorf("start module %q: %w", start, ErrNotFound)
	}
	goalPose, ok := poses[goal]
	if !ok {
		return nil, fmt.Errorf("goal module %q: %w", goal, ErrNotFound)
	}
	if len(uarms) == 0 {
		return nil, fmt.Errorf("no uarm modules known: %w", ErrNotFound)
	}

	if math.Hypot(startPose.X-goalPose.X, startPose.Y-goalPose.Y) < 500 {
		return []string{start, nearest(uarms, startPose).Namespace, goal}, nil
	}
	if len(docks) == 0 {
		return nil, fmt.Errorf("no dock modules known for a long route: %w", ErrNotFound)
	}
	// Docks anchor the turtlebot leg but do not appear in the path.
	return []string{
		start,
		nearest(uarms, startPose).Namespace,
		"turtlebot_01",
		nearest(uarms, goalPose).Namespace,
		goal,
	}, nil
}

func nearest(mods []protocol.ModulePose, to protocol.Pose) protocol.ModulePose {
	best := mods[0]
	bestDist := math.Hypot(best.Pose.X-to.X, best.Pose.Y-to.Y)
	for _, m := range mods[1:] {
		if d := math.Hypot(m.Pose.X-to.X, m.Pose.Y-to.Y); d < bestDist {
			best, bestDist = m, d
		}
	}
	return best
}

// LastOrder returns the most recently seen normalized order request.
func (t *Tools) LastOrder() (*protocol.OrderResult, error) {
	env, ok := t.store.GetTyped(t.opts.RequestTopic)
	if !ok || env.Kind != protocol.KindOrderResult || env.Order == nil {
		return nil, fmt.Errorf("no recent order: %w", ErrNotFound)
	}
	return env.Order, nil
}

// ListOrders returns every order-response payload currently cached, newest
// first by header timestamp.
func (t *Tools) ListOrders() ([]map[string]any, error) {
	var orders []map[string]any
	t.store.Range(func(topic string, payload map[string]any) bool {
		if strings.HasPrefix(topic, t.opts.ResponseTopic) {
			orders = append(orders, payload)
		}
		return true
	})
	if len(orders) == 0 {
		return nil, fmt.Errorf("no order responses cached: %w", ErrNotFound)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return headerTimestamp(orders[i]) > headerTimestamp(orders[j])
	})
	return orders, nil
}

func headerTimestamp(payload map[string]any) float64 {
	header, _ := payload["header"].(map[string]any)
	if header == nil {
		return 0
	}
	ts, _ := header["timestamp"].(float64)
	return ts
}

// ConfirmLastOrder reports whether the most recently resolved order
// succeeded or failed.
func (t *Tools) ConfirmLastOrder() (string, error) {
	if t.orders == nil {
		return "", fmt.Errorf("no order engine attached: %w", ErrNotFound)
	}
	cid, resp, ok := t.orders.LastResult()
	if !ok {
		return "", fmt.Errorf("no recent order result: %w", ErrNotFound)
	}
	if resp.Success {
		return fmt.Sprintf("Order %s was completed successfully.", cid), nil
	}
	return fmt.Sprintf("Order %s failed or was canceled.", cid), nil
}

// MasterStatus reports whether the upstream controller claims to be online
// in its latest heartbeat. The liveness window check lives in the listener;
// this reads the claim itself.
func (t *Tools) MasterStatus() (bool, string) {
	payload, ok := t.store.Get(t.opts.MasterStateTopic)
	if !ok {
		return false, "no message received from " + t.opts.MasterStateTopic
	}
	status := strings.ToLower(fmt.Sprint(payload["data"]))
	return status == "online", "master state: " + status
}

func (t *Tools) boxes() []protocol.Box {
	env, ok := t.store.GetTyped(t.opts.BoxTopic)
	if !ok || env.Kind != protocol.KindBoxArray {
		return nil
	}
	return env.Boxes
}

func (t *Tools) modules() []protocol.ModulePose {
	env, ok := t.store.GetTyped(t.opts.ModulesTopic)
	if !ok || env.Kind != protocol.KindModulePoseArray {
		return nil
	}
	return env.Modules
}
