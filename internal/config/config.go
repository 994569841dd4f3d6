// Package config loads the locator's JSON configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigPath is where cmd/aoa looks for a config file when -config is
// not given. A missing file at this path is not an error.
const DefaultConfigPath = "config/aoa.defaults.json"

// Built-in defaults, used for any key the file leaves out.
const (
	DefaultAnchor1ID       = "20BA36977463"
	DefaultAnchor2ID       = "20BA369AFC6B"
	DefaultUDPAddress      = ":5004"
	DefaultListen          = ":8080"
	DefaultSeparation      = 2.0
	DefaultDBPath          = "aoa.db"
	DefaultMQTTTopicPrefix = "aoa"
	DefaultSerialBaud      = 115200
	DefaultStatsInterval   = time.Minute
	DefaultRecorderBuffer  = 256
	maxConfigFileSize      = 1 * 1024 * 1024
)

// Config is the root configuration. Every field is optional; the Get*
// methods return the built-in default when a field is unset.
type Config struct {
	Anchor1ID         *string  `json:"anchor1_id,omitempty"`
	Anchor2ID         *string  `json:"anchor2_id,omitempty"`
	UDPAddress        *string  `json:"udp_address,omitempty"`
	UDPRcvBuf         *int     `json:"udp_rcv_buf,omitempty"`
	ForwardAddress    *string  `json:"forward_address,omitempty"`
	Listen            *string  `json:"listen,omitempty"`
	DefaultSeparation *float64 `json:"default_separation,omitempty"`
	StaleAfter        *string  `json:"stale_after,omitempty"` // duration string like "5s"; "0" disables

	DBPath          *string `json:"db_path,omitempty"`
	MQTTBroker      *string `json:"mqtt_broker,omitempty"`
	MQTTTopicPrefix *string `json:"mqtt_topic_prefix,omitempty"`
	RecorderBuffer  *int    `json:"recorder_buffer,omitempty"`

	SerialPort *string `json:"serial_port,omitempty"`
	SerialBaud *int    `json:"serial_baud,omitempty"`

	// AT commands sent once the serial port is open, e.g. "AT+UDFENABLE=1".
	SerialInitCommands []string `json:"serial_init_commands,omitempty"`

	StatsInterval *string `json:"stats_interval,omitempty"`
}

// Load reads a Config from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads path, returning an empty Config when path is the
// default location and no file exists there.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	cfg, err := Load(path)
	if err != nil && path == DefaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	return cfg, err
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.Anchor1ID != nil && strings.TrimSpace(*c.Anchor1ID) == "" {
		return fmt.Errorf("anchor1_id must not be empty")
	}
	if c.Anchor2ID != nil && strings.TrimSpace(*c.Anchor2ID) == "" {
		return fmt.Errorf("anchor2_id must not be empty")
	}
	if c.GetAnchor1ID() == c.GetAnchor2ID() {
		return fmt.Errorf("anchor1_id and anchor2_id must differ, both are %q", c.GetAnchor1ID())
	}

	if c.DefaultSeparation != nil {
		d := *c.DefaultSeparation
		if math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
			return fmt.Errorf("default_separation must be a positive number, got %v", d)
		}
	}

	for name, v := range map[string]*string{"stale_after": c.StaleAfter, "stats_interval": c.StatsInterval} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}

	for name, v := range map[string]*int{"udp_rcv_buf": c.UDPRcvBuf, "recorder_buffer": c.RecorderBuffer, "serial_baud": c.SerialBaud} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}

	return nil
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func durationOr(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil {
		return def
	}
	return d
}

// GetAnchor1ID returns the id of the anchor at the origin.
func (c *Config) GetAnchor1ID() string { return stringOr(c.Anchor1ID, DefaultAnchor1ID) }

// GetAnchor2ID returns the id of the anchor at (D, 0, 0).
func (c *Config) GetAnchor2ID() string { return stringOr(c.Anchor2ID, DefaultAnchor2ID) }

// GetUDPAddress returns the anchor datagram listen address.
func (c *Config) GetUDPAddress() string { return stringOr(c.UDPAddress, DefaultUDPAddress) }

// GetUDPRcvBuf returns the socket receive buffer size; 0 leaves the OS default.
func (c *Config) GetUDPRcvBuf() int {
	if c.UDPRcvBuf == nil {
		return 0
	}
	return *c.UDPRcvBuf
}

// GetForwardAddress returns where raw datagrams are mirrored; empty disables.
func (c *Config) GetForwardAddress() string { return stringOr(c.ForwardAddress, "") }

// GetListen returns the HTTP listen address.
func (c *Config) GetListen() string { return stringOr(c.Listen, DefaultListen) }

// GetDefaultSeparation returns the anchor separation used when a query
// does not give one.
func (c *Config) GetDefaultSeparation() float64 {
	if c.DefaultSeparation == nil {
		return DefaultSeparation
	}
	return *c.DefaultSeparation
}

// GetStaleAfter returns the reading age limit; 0 disables the check.
func (c *Config) GetStaleAfter() time.Duration { return durationOr(c.StaleAfter, 0) }

// GetDBPath returns the SQLite path; "" disables the SQLite sink.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetMQTTBroker returns the MQTT broker URL; empty disables the MQTT sink.
func (c *Config) GetMQTTBroker() string { return stringOr(c.MQTTBroker, "") }

// GetMQTTTopicPrefix returns the MQTT topic prefix.
func (c *Config) GetMQTTTopicPrefix() string {
	return stringOr(c.MQTTTopicPrefix, DefaultMQTTTopicPrefix)
}

// GetRecorderBuffer returns the telemetry queue length.
func (c *Config) GetRecorderBuffer() int {
	if c.RecorderBuffer == nil || *c.RecorderBuffer == 0 {
		return DefaultRecorderBuffer
	}
	return *c.RecorderBuffer
}

// GetSerialPort returns the serial device path; empty disables the serial source.
func (c *Config) GetSerialPort() string { return stringOr(c.SerialPort, "") }

// GetSerialBaud returns the serial baud rate.
func (c *Config) GetSerialBaud() int {
	if c.SerialBaud == nil || *c.SerialBaud == 0 {
		return DefaultSerialBaud
	}
	return *c.SerialBaud
}

// GetSerialInitCommands returns the start-up AT commands, skipping blank entries.
func (c *Config) GetSerialInitCommands() []string {
	var out []string
	for _, cmd := range c.SerialInitCommands {
		if cmd = strings.TrimSpace(cmd); cmd != "" {
			out = append(out, cmd)
		}
	}
	return out
}

// GetStatsInterval returns how often ingestion stats are logged.
func (c *Config) GetStatsInterval() time.Duration {
	return durationOr(c.StatsInterval, DefaultStatsInterval)
}
