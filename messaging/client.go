package messaging

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/MakaremHind/human-in-loop-warehouse/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	kafkago "github.com/segmentio/kafka-go"
)

// MessageHandler is called for each inbound message with the concrete topic
// the message arrived on (not the subscription filter).
type MessageHandler func(topic string, payload []byte)

// Client is the unified bus client (MQTT or Kafka).
type Client struct {
	mu       sync.RWMutex
	cfg      *config.MessagingConfig
	backend  string
	mqttConn mqtt.Client
	mqttSubs map[string]MessageHandler
	kafkaW   *kafkago.Writer
	kafkaR   map[string]*kafkago.Reader
}

// NewClient creates a bus client based on config.
func NewClient(cfg *config.MessagingConfig) *Client {
	return &Client{
		cfg:      cfg,
		backend:  cfg.Backend,
		mqttSubs: make(map[string]MessageHandler),
		kafkaR:   make(map[string]*kafkago.Reader),
	}
}

// Connect establishes the bus connection. A broker that is down at startup
// is not fatal: MQTT keeps retrying in the background and IsConnected
// reports false until it succeeds.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.backend {
	case "mqtt":
		return c.connectMQTT()
	case "kafka":
		return c.connectKafka()
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.backend)
	}
}

func (c *Client) connectMQTT() error {
	broker := fmt.Sprintf("tcp://%s:%d", c.cfg.MQTT.Broker, c.cfg.MQTT.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetResumeSubs(true).
		SetOnConnectHandler(func(conn mqtt.Client) {
			// Fires on the first connect and after every broker outage.
			// Replaying here is what keeps subscriptions alive for a
			// broker that was down when Subscribe ran.
			c.resubscribe(conn)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		// Still retrying in the background; not an error.
		log.Printf("messaging: mqtt broker %s not reachable yet, retrying in background", broker)
		c.mqttConn = client
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.mqttConn = client
	return nil
}

func (c *Client) connectKafka() error {
	c.kafkaW = &kafkago.Writer{
		Addr:         kafkago.TCP(c.cfg.Kafka.Brokers...),
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	return nil
}

// Publish sends a message to the given topic.
func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.backend {
	case "mqtt":
		if c.mqttConn == nil || !c.mqttConn.IsConnected() {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqttConn.Publish(topic, 1, false, payload)
		token.Wait()
		return token.Error()
	case "kafka":
		if c.kafkaW == nil {
			return fmt.Errorf("kafka writer not initialized")
		}
		return c.kafkaW.WriteMessages(context.Background(), kafkago.Message{
			Topic: KafkaTopic(topic),
			Value: payload,
		})
	default:
		return fmt.Errorf("unknown backend: %s", c.backend)
	}
}

// PublishEnvelope encodes and publishes a wire payload to the given topic.
func (c *Client) PublishEnvelope(topic string, env interface{ Encode() ([]byte, error) }) error {
	data, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return c.Publish(topic, data)
}

// Subscribe registers a handler for messages matching the topic filter.
// Filters use MQTT syntax (+ single-level, # subtree). Kafka has no
// wildcard subscriptions, so filters are mapped to their literal base topic;
// payload-level correlation handles the rest.
func (c *Client) Subscribe(filter string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.backend {
	case "mqtt":
		// Record before attempting: the OnConnect handler replays every
		// recorded subscription, so a broker that is down right now only
		// delays delivery instead of losing the subscription.
		c.mqttSubs[filter] = handler
		if c.mqttConn == nil || !c.mqttConn.IsConnected() {
			log.Printf("messaging: subscription %s queued until broker connects", filter)
			return nil
		}
		token := c.mqttConn.Subscribe(filter, 1, mqttHandler(handler))
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("messaging: subscribe %s failed, will replay on reconnect: %v", filter, err)
		}
		return nil
	case "kafka":
		topic := KafkaTopic(filter)
		if _, ok := c.kafkaR[topic]; ok {
			return nil
		}
		reader := kafkago.NewReader(kafkago.ReaderConfig{
			Brokers: c.cfg.Kafka.Brokers,
			Topic:   topic,
			GroupID: c.cfg.Kafka.GroupID,
		})
		c.kafkaR[topic] = reader
		go func() {
			for {
				msg, err := reader.ReadMessage(context.Background())
				if err != nil {
					log.Printf("messaging: kafka read %s: %v", topic, err)
					return
				}
				handler(msg.Topic, msg.Value)
			}
		}()
		return nil
	default:
		return fmt.Errorf("unknown backend: %s", c.backend)
	}
}

// resubscribe replays every recorded MQTT subscription against a live
// connection. Called from the OnConnect handler, so it must not take c.mu
// for writing while paho holds its own locks.
func (c *Client) resubscribe(conn mqtt.Client) {
	c.mu.RLock()
	subs := make(map[string]MessageHandler, len(c.mqttSubs))
	for filter, handler := range c.mqttSubs {
		subs[filter] = handler
	}
	c.mu.RUnlock()

	for filter, handler := range subs {
		token := conn.Subscribe(filter, 1, mqttHandler(handler))
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("messaging: resubscribe %s: %v", filter, err)
		}
	}
}

func mqttHandler(handler MessageHandler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	}
}

// IsConnected reports whether the bus client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.backend {
	case "mqtt":
		return c.mqttConn != nil && c.mqttConn.IsConnected()
	case "kafka":
		return c.kafkaW != nil
	default:
		return false
	}
}

// Close shuts down the bus connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mqttConn != nil {
		c.mqttConn.Disconnect(1000)
		c.mqttConn = nil
	}
	if c.kafkaW != nil {
		c.kafkaW.Close()
		c.kafkaW = nil
	}
	for topic, r := range c.kafkaR {
		r.Close()
		delete(c.kafkaR, topic)
	}
}

// KafkaTopic maps an MQTT-style topic filter to the literal Kafka topic:
// everything up to the first wildcard segment.
func KafkaTopic(filter string) string {
	segs := strings.Split(filter, "/")
	for i, seg := range segs {
		if seg == "#" || seg == "+" {
			segs = segs[:i]
			break
		}
	}
	return strings.Join(segs, "/")
}

// TopicMatches reports whether a concrete topic matches an MQTT-style
// filter (+ matches one level, # matches the rest of the tree).
func TopicMatches(filter, topic string) bool {
	fsegs := strings.Split(filter, "/")
	tsegs := strings.Split(topic, "/")
	for i, fseg := range fsegs {
		if fseg == "#" {
			return true
		}
		if i >= len(tsegs) {
			return false
		}
		if fseg != "+" && fseg != tsegs[i] {
			return false
		}
	}
	return len(fsegs) == len(tsegs)
}
