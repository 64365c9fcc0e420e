// Package orders is the order dispatch and correlation engine. It publishes
// transport requests onto the bus, tracks them by correlation id, and
// resolves waiters when a matching response arrives on any of the response
// sub-topics.
package orders

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/MakaremHind/human-in-loop-warehouse/messaging"
	"github.com/MakaremHind/human-in-loop-warehouse/protocol"
	"github.com/MakaremHind/human-in-loop-warehouse/snapshot"
)

// Bus is the subset of the messaging client the engine needs.
type Bus interface {
	Publish(topic string, payload []byte) error
	Subscribe(filter string, handler messaging.MessageHandler) error
}

type Options struct {
	RequestTopic  string
	ResponseTopic string // base; the engine subscribes ResponseTopic/#
	ModulesTopic  string
	SenderID      string
	WaitTimeout   time.Duration
}

// Manager owns all correlation state: the pending-wait table, the results
// table and the cancelled set. The response handler is effectively the
// single writer into the results table; all tables share one mutex since
// concurrently in-flight orders are few.
type Manager struct {
	bus     Bus
	store   *snapshot.Store
	emitter Emitter
	opts    Options

	mu         sync.Mutex
	listenerUp bool
	results    map[string]*protocol.OrderResponse
	pending    map[string]chan *protocol.OrderResponse
	cancelled  map[string]struct{}
	currentID  string
	lastID     string // most recently recorded result
}

func NewManager(bus Bus, store *snapshot.Store, emitter Emitter, opts Options) *Manager {
	if opts.RequestTopic == "" {
		opts.RequestTopic = "base_01/order_request"
	}
	if opts.ResponseTopic == "" {
		opts.ResponseTopic = "base_01/order_request/response"
	}
	if opts.ModulesTopic == "" {
		opts.ModulesTopic = "base_01/base_module_visualization"
	}
	if opts.SenderID == "" {
		opts.SenderID = "OrderGenerator"
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 60 * time.Second
	}
	if emitter == nil {
		emitter = NoopEmitter{}
	}
	return &Manager{
		bus:       bus,
		store:     store,
		emitter:   emitter,
		opts:      opts,
		results:   make(map[string]*protocol.OrderResponse),
		pending:   make(map[string]chan *protocol.OrderResponse),
		cancelled: make(map[string]struct{}),
	}
}

// Dispatch resolves the request, publishes it and registers a pending wait.
// It returns the fresh correlation id immediately; use Await to block for
// the outcome. No partial order is ever published: resolution failures
// surface before the publish.
func (m *Manager) Dispatch(req DispatchRequest) (string, error) {
	if err := m.ensureResponseListener(); err != nil {
		return "", fmt.Errorf("start response listener: %w", err)
	}

	start, err := m.resolveEndpoint(req.Start, req.StartPose, "manual_pose_start")
	if err != nil {
		return "", fmt.Errorf("resolve start: %w", err)
	}
	goal, err := m.resolveEndpoint(req.Goal, req.GoalPose, "manual_pose_goal")
	if err != nil {
		return "", fmt.Errorf("resolve goal: %w", err)
	}

	cargo := protocol.CargoBox{ID: 7, Color: "red", Type: "small"}
	if req.BoxID != nil {
		cargo.ID = *req.BoxID
	}
	if req.BoxColor != "" {
		cargo.Color = req.BoxColor
	}
	if req.BoxPose != nil {
		cargo.GlobalPose = *req.BoxPose
	}

	order := protocol.NewOrderRequest(m.opts.SenderID, start, goal, cargo)
	cid := order.Header.CorrelationID

	data, err := order.Encode()
	if err != nil {
		return "", fmt.Errorf("encode order: %w", err)
	}

	// Register the wait before publishing so a response can never arrive
	// ahead of its slot.
	m.mu.Lock()
	m.pending[cid] = make(chan *protocol.OrderResponse, 1)
	m.currentID = cid
	m.mu.Unlock()

	if err := m.bus.Publish(m.opts.RequestTopic, data); err != nil {
		m.mu.Lock()
		delete(m.pending, cid)
		if m.currentID == cid {
			m.currentID = ""
		}
		m.mu.Unlock()
		return "", fmt.Errorf("publish order: %w", err)
	}

	log.Printf("orders: dispatched %s (%s -> %s)", cid, start.Namespace, goal.Namespace)
	m.emitter.EmitOrderDispatched(cid, order)
	return cid, nil
}

// Await blocks until a response bearing the correlation id is observed, the
// timeout elapses, or the order is cancelled. It only ever suspends the
// calling goroutine; the delivery path is never blocked. A non-positive
// timeout uses the configured default.
func (m *Manager) Await(ctx context.Context, cid string, timeout time.Duration) (Outcome, error) {
	if timeout <= 0 {
		timeout = m.opts.WaitTimeout
	}

	m.mu.Lock()
	if _, gone := m.cancelled[cid]; gone {
		m.mu.Unlock()
		return Outcome{Status: StatusCancelled, CorrelationID: cid}, nil
	}
	// The result may already be recorded (response raced ahead of this
	// call); checking under the same lock that guards registration closes
	// the register/arrive race.
	if resp, ok := m.results[cid]; ok {
		m.mu.Unlock()
		return outcomeFor(cid, resp), nil
	}
	ch, ok := m.pending[cid]
	if !ok {
		ch = make(chan *protocol.OrderResponse, 1)
		m.pending[cid] = ch
	}
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp == nil {
			return Outcome{Status: StatusCancelled, CorrelationID: cid}, nil
		}
		return outcomeFor(cid, resp), nil
	case <-timer.C:
		m.deregister(cid, ch)
		// A response squeezing in between timer fire and deregistration
		// still wins.
		select {
		case resp := <-ch:
			if resp != nil {
				return outcomeFor(cid, resp), nil
			}
			return Outcome{Status: StatusCancelled, CorrelationID: cid}, nil
		default:
		}
		m.emitter.EmitOrderTimeout(cid)
		return Outcome{Status: StatusTimeout, CorrelationID: cid}, nil
	case <-ctx.Done():
		m.deregister(cid, ch)
		return Outcome{CorrelationID: cid}, ctx.Err()
	}
}

// DispatchAndAwait is the blocking variant used by higher-level tooling.
func (m *Manager) DispatchAndAwait(ctx context.Context, req DispatchRequest, timeout time.Duration) (Outcome, error) {
	cid, err := m.Dispatch(req)
	if err != nil {
		return Outcome{}, err
	}
	return m.Await(ctx, cid, timeout)
}

// Cancel marks the order so any subsequent real response is suppressed, and
// publishes a synthetic failure on the response topic so every other bus
// observer converges to "failed" rather than "unknown". Fails with
// ErrAlreadyResolved when a result is already recorded.
func (m *Manager) Cancel(cid string) error {
	m.mu.Lock()
	if _, ok := m.results[cid]; ok {
		m.mu.Unlock()
		return fmt.Errorf("cancel %s: %w", cid, ErrAlreadyResolved)
	}
	m.cancelled[cid] = struct{}{}
	if m.currentID == cid {
		m.currentID = ""
	}
	ch, waiting := m.pending[cid]
	if waiting {
		delete(m.pending, cid)
	}
	m.mu.Unlock()

	if waiting {
		ch <- nil
	}

	// Deliberate write-after-cancel: nobody else will answer for this
	// order, so the engine publishes the failure itself.
	synthetic := &protocol.OrderResponse{
		Header: protocol.OrderHeader{
			Timestamp:     float64(time.Now().UnixNano()) / 1e9,
			ModuleID:      m.opts.SenderID,
			CorrelationID: cid,
			Version:       1.0,
		},
		Success:     false,
		Republished: true,
	}
	if data, err := synthetic.Encode(); err != nil {
		log.Printf("orders: encode synthetic failure for %s: %v", cid, err)
	} else if err := m.bus.Publish(m.opts.ResponseTopic, data); err != nil {
		log.Printf("orders: publish synthetic failure for %s: %v", cid, err)
	}

	log.Printf("orders: cancelled %s", cid)
	m.emitter.EmitOrderCancelled(cid)
	return nil
}

// ensureResponseListener lazily starts the single background subscription
// on the response subtree. Safe under concurrent dispatchers; retries on
// the next dispatch if the subscribe fails.
func (m *Manager) ensureResponseListener() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listenerUp {
		return nil
	}
	// One wildcard subscription covers the exact topic, the id-suffixed
	// variants and the rest of the subtree.
	if err := m.bus.Subscribe(m.opts.ResponseTopic+"/#", m.handleResponse); err != nil {
		return err
	}
	m.listenerUp = true
	return nil
}

// handleResponse runs on the background subscription. The response may land
// on the exact response topic, an id-suffixed sub-topic or anywhere in the
// subtree; only the correlation id in the payload body identifies it.
func (m *Manager) handleResponse(topic string, payload []byte) {
	resp, err := protocol.DecodeOrderResponse(payload)
	if err != nil {
		log.Printf("orders: drop malformed response on %s: %v", topic, err)
		return
	}
	cid := resp.Header.CorrelationID
	if cid == "" {
		log.Printf("orders: drop response without correlation id on %s", topic)
		return
	}

	m.mu.Lock()
	if _, gone := m.cancelled[cid]; gone && !resp.Republished {
		m.mu.Unlock()
		log.Printf("orders: ignoring response for cancelled order %s", cid)
		return
	}
	m.results[cid] = resp
	m.lastID = cid
	ch, waiting := m.pending[cid]
	if waiting {
		delete(m.pending, cid)
	}
	m.mu.Unlock()

	if waiting {
		ch <- resp
	}
	m.emitter.EmitOrderResolved(cid, resp)
}

func (m *Manager) deregister(cid string, ch chan *protocol.OrderResponse) {
	m.mu.Lock()
	if cur, ok := m.pending[cid]; ok && cur == ch {
		delete(m.pending, cid)
	}
	m.mu.Unlock()
}

func (m *Manager) resolveEndpoint(namespace string, pose *protocol.Pose, manualName string) (protocol.ModulePose, error) {
	if namespace != "" {
		p, err := m.modulePose(namespace)
		if err != nil {
			return protocol.ModulePose{}, err
		}
		return protocol.ModulePose{Namespace: namespace, Pose: p}, nil
	}
	if pose != nil {
		return protocol.ModulePose{Namespace: manualName, Pose: *pose}, nil
	}
	return protocol.ModulePose{}, fmt.Errorf("neither module name nor pose given: %w", ErrModuleNotFound)
}

func (m *Manager) modulePose(namespace string) (protocol.Pose, error) {
	env, ok := m.store.GetTyped(m.opts.ModulesTopic)
	if !ok || env.Kind != protocol.KindModulePoseArray {
		return protocol.Pose{}, fmt.Errorf("no modules available in %s snapshot: %w", m.opts.ModulesTopic, ErrModuleNotFound)
	}
	for _, mod := range env.Modules {
		if mod.Namespace == namespace {
			return mod.Pose, nil
		}
	}
	return protocol.Pose{}, fmt.Errorf("module %q: %w", namespace, ErrModuleNotFound)
}

// Result returns the recorded response for a correlation id.
func (m *Manager) Result(cid string) (*protocol.OrderResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp, ok := m.results[cid]
	return resp, ok
}

// LastResult returns the most recently recorded response.
func (m *Manager) LastResult() (string, *protocol.OrderResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastID == "" {
		return "", nil, false
	}
	return m.lastID, m.results[m.lastID], true
}

// CurrentOrderID returns the id of the most recently dispatched order that
// has not been cancelled, or "".
func (m *Manager) CurrentOrderID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentID
}

// IsCancelled reports whether the id is in the cancelled set.
func (m *Manager) IsCancelled(cid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.cancelled[cid]
	return ok
}

func outcomeFor(cid string, resp *protocol.OrderResponse) Outcome {
	status := StatusFailure
	if resp.Success {
		status = StatusSuccess
	}
	return Outcome{Status: status, CorrelationID: cid, Response: resp}
}
