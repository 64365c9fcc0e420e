package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Web       WebConfig       `yaml:"web"`
	Messaging MessagingConfig `yaml:"messaging"`
	Orders    OrdersConfig    `yaml:"orders"`
	Debug     bool            `yaml:"debug"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
}

type MessagingConfig struct {
	Backend string      `yaml:"backend"` // mqtt or kafka
	MQTT    MQTTConfig  `yaml:"mqtt"`
	Kafka   KafkaConfig `yaml:"kafka"`

	// Topics is the fixed subscription list for the bus listener.
	Topics []string `yaml:"topics"`

	// MasterStateTopics are the heartbeat-style topics used for the
	// upstream-controller liveness window.
	MasterStateTopics []string      `yaml:"master_state_topics"`
	MasterFreshness   time.Duration `yaml:"master_freshness"`

	HeartbeatTopic    string        `yaml:"heartbeat_topic"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type OrdersConfig struct {
	RequestTopic  string        `yaml:"request_topic"`
	ResponseTopic string        `yaml:"response_topic"` // base; engine subscribes response_topic/#
	ModulesTopic  string        `yaml:"modules_topic"`  // module pose snapshot used for endpoint lookup
	SenderID      string        `yaml:"sender_id"`
	WaitTimeout   time.Duration `yaml:"wait_timeout"`
}

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "warebus.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "warebus",
				User:     "warebus",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
		},
		Web: WebConfig{
			Host:          "0.0.0.0",
			Port:          8084,
			SessionSecret: "change-me-in-production",
		},
		Messaging: MessagingConfig{
			Backend: "mqtt",
			MQTT: MQTTConfig{
				Broker:   "localhost",
				Port:     1883,
				ClientID: "warebus",
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				GroupID: "warebus",
			},
			Topics:            DefaultTopics(),
			MasterStateTopics: []string{"master/state", "master/logs/#"},
			MasterFreshness:   30 * time.Second,
			HeartbeatTopic:    "warebus/state",
			HeartbeatInterval: 10 * time.Second,
		},
		Orders: OrdersConfig{
			RequestTopic:  "base_01/order_request",
			ResponseTopic: "base_01/order_request/response",
			ModulesTopic:  "base_01/base_module_visualization",
			SenderID:      "OrderGenerator",
			WaitTimeout:   60 * time.Second,
		},
	}
}

// DefaultTopics is the canonical subscription list of the warehouse bus.
func DefaultTopics() []string {
	return []string{
		"/inventory/boxes",
		"mmh_cam/detected_boxes",
		"mmh_cam/detected_markers",
		"base_01/uarm_01",
		"base_01/uarm_02",
		"base_01/conveyor_02",
		"base_module_visualization",
		"height_map",
		"/system/modules",
		"layout/regions",
		"base_01/order_request",
		"base_01/order_result",
		"base_01/order_request/response/#",
		"base_01/+/transport/response",
		"master/state",
		"master/logs/#",
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
