package messaging

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Heartbeater publishes a periodic presence message so other bus
// participants can apply the same freshness-window liveness check to this
// process that it applies to the master controller.
type Heartbeater struct {
	client   *Client
	senderID string
	topic    string
	interval time.Duration

	startTime time.Time
	stopOnce  sync.Once
	stopCh    chan struct{}
}

type heartbeatMessage struct {
	Header heartbeatHeader `json:"header"`
	Data   string          `json:"data"`
	Uptime int64           `json:"uptime_s"`
}

type heartbeatHeader struct {
	Timestamp float64 `json:"timestamp"`
	SenderID  string  `json:"sender_id"`
}

// NewHeartbeater creates a heartbeater publishing on the given topic.
func NewHeartbeater(client *Client, senderID, topic string, interval time.Duration) *Heartbeater {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Heartbeater{
		client:   client,
		senderID: senderID,
		topic:    topic,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start sends an initial heartbeat and begins the loop.
func (h *Heartbeater) Start() {
	h.startTime = time.Now()
	h.send()
	go h.loop()
}

// Stop halts the heartbeat loop.
func (h *Heartbeater) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

func (h *Heartbeater) send() {
	msg := heartbeatMessage{
		Header: heartbeatHeader{
			Timestamp: float64(time.Now().UnixNano()) / 1e9,
			SenderID:  h.senderID,
		},
		Data:   "online",
		Uptime: int64(time.Since(h.startTime).Seconds()),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("heartbeater: marshal: %v", err)
		return
	}
	if err := h.client.Publish(h.topic, data); err != nil {
		log.Printf("heartbeater: publish: %v", err)
	}
}

func (h *Heartbeater) loop() {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.send()
		}
	}
}
