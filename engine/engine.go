// Package engine wires the bus listener, the order engine and the journal
// together and fans lifecycle events out to in-process subscribers.
package engine

import (
	"log"
	"time"

	"github.com/MakaremHind/human-in-loop-warehouse/config"
	"github.com/MakaremHind/human-in-loop-warehouse/listener"
	"github.com/MakaremHind/human-in-loop-warehouse/messaging"
	"github.com/MakaremHind/human-in-loop-warehouse/orders"
	"github.com/MakaremHind/human-in-loop-warehouse/query"
	"github.com/MakaremHind/human-in-loop-warehouse/snapshot"
	"github.com/MakaremHind/human-in-loop-warehouse/store"
)

type LogFunc func(format string, args ...any)

type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	DB         *store.DB // nil runs without a journal
	Snapshot   *snapshot.Store
	MsgClient  *messaging.Client
	LogFunc    LogFunc
	Debug      bool
}

type Engine struct {
	cfg        *config.Config
	configPath string
	db         *store.DB
	snap       *snapshot.Store
	msgClient  *messaging.Client
	listener   *listener.Listener
	orders     *orders.Manager
	tools      *query.Tools
	heartbeat  *messaging.Heartbeater
	Events     *EventBus
	logFn      LogFunc
	stopChan   chan struct{}

	busConnected     bool
	controllerOnline bool
}

func New(c Config) *Engine {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = log.Printf
	}
	return &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		db:         c.DB,
		snap:       c.Snapshot,
		msgClient:  c.MsgClient,
		Events:     NewEventBus(),
		logFn:      logFn,
		stopChan:   make(chan struct{}),
	}
}

func (e *Engine) Start() {
	emitter := &orderEmitter{bus: e.Events}

	e.orders = orders.NewManager(e.msgClient, e.snap, emitter, orders.Options{
		RequestTopic:  e.cfg.Orders.RequestTopic,
		ResponseTopic: e.cfg.Orders.ResponseTopic,
		ModulesTopic:  e.cfg.Orders.ModulesTopic,
		SenderID:      e.cfg.Orders.SenderID,
		WaitTimeout:   e.cfg.Orders.WaitTimeout,
	})

	e.listener = listener.New(e.msgClient, e.snap, listener.Options{
		Topics:            e.cfg.Messaging.Topics,
		MasterStateTopics: e.cfg.Messaging.MasterStateTopics,
		MasterFreshness:   e.cfg.Messaging.MasterFreshness,
		Debug:             e.cfg.Debug,
	})
	e.listener.Start()

	e.tools = query.New(e.snap, e.orders, query.Options{
		RequestTopic:  e.cfg.Orders.RequestTopic,
		ResponseTopic: e.cfg.Orders.ResponseTopic,
		ModulesTopic:  e.cfg.Orders.ModulesTopic,
	})

	e.wireEventHandlers()

	if e.cfg.Messaging.HeartbeatTopic != "" {
		e.heartbeat = messaging.NewHeartbeater(e.msgClient, e.cfg.Orders.SenderID,
			e.cfg.Messaging.HeartbeatTopic, e.cfg.Messaging.HeartbeatInterval)
		e.heartbeat.Start()
	}

	e.checkConnectionStatus()
	go e.connectionHealthLoop()

	e.logFn("engine: started")
}

func (e *Engine) Stop() {
	select {
	case e.stopChan <- struct{}{}:
	default:
	}
	if e.heartbeat != nil {
		e.heartbeat.Stop()
	}
	e.logFn("engine: stopped")
}

// Accessors
func (e *Engine) DB() *store.DB               { return e.db }
func (e *Engine) AppConfig() *config.Config   { return e.cfg }
func (e *Engine) ConfigPath() string          { return e.configPath }
func (e *Engine) Orders() *orders.Manager     { return e.orders }
func (e *Engine) Listener() *listener.Listener { return e.listener }
func (e *Engine) Snapshot() *snapshot.Store   { return e.snap }
func (e *Engine) Tools() *query.Tools         { return e.tools }
func (e *Engine) MsgClient() *messaging.Client { return e.msgClient }

// wireEventHandlers journals every order lifecycle transition. Without a
// database the events still flow to other subscribers.
func (e *Engine) wireEventHandlers() {
	if e.db == nil {
		return
	}
	e.Events.SubscribeTypes(func(evt Event) {
		switch p := evt.Payload.(type) {
		case OrderDispatchedEvent:
			err := e.db.RecordDispatch(&store.OrderRecord{
				CorrelationID: p.CorrelationID,
				SenderID:      p.SenderID,
				StartModule:   p.StartModule,
				GoalModule:    p.GoalModule,
				BoxID:         p.BoxID,
				BoxColor:      p.BoxColor,
				BoxType:       p.BoxType,
			})
			if err != nil {
				e.logFn("engine: journal dispatch %s: %v", p.CorrelationID, err)
			}
		case OrderResolvedEvent:
			// The looped-back synthetic failure must not overwrite the
			// "cancelled" verdict already journaled.
			if p.Republished {
				return
			}
			status := "failure"
			if p.Success {
				status = "success"
			}
			if err := e.db.ResolveOrder(p.CorrelationID, status, p.ResponderID); err != nil {
				e.logFn("engine: journal resolve %s: %v", p.CorrelationID, err)
			}
		case OrderCancelledEvent:
			if err := e.db.ResolveOrder(p.CorrelationID, "cancelled", ""); err != nil {
				e.logFn("engine: journal cancel %s: %v", p.CorrelationID, err)
			}
		case OrderTimeoutEvent:
			if err := e.db.ResolveOrder(p.CorrelationID, "timeout", ""); err != nil {
				e.logFn("engine: journal timeout %s: %v", p.CorrelationID, err)
			}
		}
	}, EventOrderDispatched, EventOrderResolved, EventOrderCancelled, EventOrderTimeout)
}

func (e *Engine) checkConnectionStatus() {
	if e.msgClient.IsConnected() {
		if !e.busConnected {
			e.busConnected = true
			e.Events.Emit(Event{Type: EventBusConnected, Payload: ConnectionEvent{Detail: "bus connected"}})
		}
	} else {
		if e.busConnected {
			e.busConnected = false
			e.Events.Emit(Event{Type: EventBusDisconnected, Payload: ConnectionEvent{Detail: "bus disconnected"}})
		}
	}

	if e.listener.ControllerOnline(0) {
		if !e.controllerOnline {
			e.controllerOnline = true
			e.Events.Emit(Event{Type: EventControllerOnline, Payload: ConnectionEvent{Detail: "master controller online"}})
		}
	} else {
		if e.controllerOnline {
			e.controllerOnline = false
			e.Events.Emit(Event{Type: EventControllerOffline, Payload: ConnectionEvent{Detail: "master controller silent"}})
		}
	}
}

func (e *Engine) connectionHealthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			e.checkConnectionStatus()
		}
	}
}
