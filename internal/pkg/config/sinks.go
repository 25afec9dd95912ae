package config

import (
	"encoding/json"
	"os"

	pkgerrors "github.com/pkg/errors"
)

// SQL drivers accepted by the tick log.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

// Sinks lists the optional telemetry outputs. A nil section disables that sink.
type Sinks struct {
	NATS    *NATS    `json:"NATS"`
	Mongo   *Mongo   `json:"Mongo"`
	SQL     *SQL     `json:"SQL"`
	Web     *Web     `json:"Web"`
	Webhook *Webhook `json:"Webhook"`
}

// NATS publishes status on <Prefix>.<pid>.
type NATS struct {
	Server string `json:"Server"`
	Prefix string `json:"Prefix"`
}

// Mongo upserts the latest status of every entity.
type Mongo struct {
	URI      string `json:"URI"`
	Port     string `json:"Port"`
	Database string `json:"Database"`
	Timeout  int    `json:"Timeout"` // ms
}

// SQL appends battery status rows each tick.
type SQL struct {
	Driver string `json:"Driver"`
	DSN    string `json:"DSN"`
	Table  string `json:"Table"`
}

// Web serves the HTTP API, the websocket stream and metrics.
type Web struct {
	Address string `json:"Address"`
}

// Webhook posts battery status to <URL>/batteries/<name>/status.
type Webhook struct {
	URL     string `json:"URL"`
	Timeout int    `json:"Timeout"` // ms
}

// LoadSinks reads a sinks file. An empty path returns no sinks.
func LoadSinks(path string) (Sinks, error) {
	if path == "" {
		return Sinks{}, nil
	}
	jsonConfig, err := os.ReadFile(path)
	if err != nil {
		return Sinks{}, pkgerrors.Wrapf(err, "read sinks %s", path)
	}
	return ParseSinks(jsonConfig)
}

// ParseSinks decodes a sinks file and fills defaults.
func ParseSinks(jsonConfig []byte) (Sinks, error) {
	s := Sinks{}
	if err := json.Unmarshal(jsonConfig, &s); err != nil {
		return Sinks{}, pkgerrors.Wrap(err, "decode sinks")
	}
	if s.NATS != nil && s.NATS.Prefix == "" {
		s.NATS.Prefix = "powernet.status"
	}
	if s.Mongo != nil {
		if s.Mongo.Database == "" {
			s.Mongo.Database = "powernet"
		}
		if s.Mongo.Timeout <= 0 {
			s.Mongo.Timeout = 5000
		}
	}
	if s.SQL != nil {
		switch s.SQL.Driver {
		case DriverMySQL, DriverPostgres:
		default:
			return Sinks{}, pkgerrors.Errorf("sql driver %q: want %s or %s", s.SQL.Driver, DriverMySQL, DriverPostgres)
		}
		if s.SQL.Table == "" {
			s.SQL.Table = "battery_ticks"
		}
	}
	if s.Web != nil && s.Web.Address == "" {
		s.Web.Address = ":8080"
	}
	if s.Webhook != nil {
		if s.Webhook.URL == "" {
			return Sinks{}, pkgerrors.New("webhook: URL required")
		}
		if s.Webhook.Timeout <= 0 {
			s.Webhook.Timeout = 2000
		}
	}
	return s, nil
}
