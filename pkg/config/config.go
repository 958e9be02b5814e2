// Package config holds the runtime configuration for a force-link node: which
// role it plays, how it presents itself over the air, and the signal tuning
// knobs. Values come from an optional YAML file layered over struct defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Cfabcher22/forcelink/internal/bleid"
)

// Node roles. RoleBase is a bridge that re-encodes force reports as BASE
// reports instead of forwarding them verbatim.
const (
	RoleSensor  = "sensor"
	RoleBridge  = "bridge"
	RoleBase    = "base"
	RoleMonitor = "monitor"
)

// Config is the full node configuration.
type Config struct {
	// Role selects which pipeline the node runs: sensor, bridge, or monitor.
	Role string `yaml:"role" default:"sensor"`

	LogLevel string `yaml:"log_level" default:"info"`

	Advertise Advertise `yaml:"advertise"`
	Peer      Peer      `yaml:"peer"`
	Signal    Signal    `yaml:"signal"`
	Timing    Timing    `yaml:"timing"`
	Serial    Serial    `yaml:"serial"`
}

// Advertise describes the identity this node exposes as a peripheral.
type Advertise struct {
	Name        string `yaml:"name" default:"GIGA_BLE_UART"`
	ServiceUUID string `yaml:"service_uuid" default:"19B10000-E8F2-537E-4F6C-D104768A1214"`
	CharUUID    string `yaml:"char_uuid" default:"19B10001-E8F2-537E-4F6C-D104768A1214"`
	// MotorCharUUID is the write channel for motor commands, empty to
	// disable it.
	MotorCharUUID string `yaml:"motor_char_uuid"`
}

// Peer describes the upstream device this node hunts for as a central.
type Peer struct {
	Name        string `yaml:"name"`
	ServiceUUID string `yaml:"service_uuid" default:"19B10000-E8F2-537E-4F6C-D104768A1214"`
	CharUUID    string `yaml:"char_uuid" default:"19B10001-E8F2-537E-4F6C-D104768A1214"`
	// MotorCharUUID is the peer's motor command channel, empty when this
	// node sends no commands.
	MotorCharUUID string `yaml:"motor_char_uuid"`
}

// Signal tunes the load-cell conditioning chain.
type Signal struct {
	// CalibrationFactor converts raw counts to pounds.
	CalibrationFactor float64 `yaml:"calibration_factor" default:"1.0"`
	// Scale multiplies the calibrated reading, e.g. 0.5 when two cells
	// share the load.
	Scale    float64 `yaml:"scale" default:"1.0"`
	DeadZone float64 `yaml:"dead_zone" default:"10.0"`
	Alpha    float64 `yaml:"alpha" default:"0.90"`
}

// Timing sets the cooperative loop cadences, all in milliseconds.
type Timing struct {
	TickMs             int `yaml:"tick_ms" default:"10"`
	SampleMs           int `yaml:"sample_ms" default:"50"`
	NotifyMs           int `yaml:"notify_ms" default:"100"`
	NegotiateTimeoutMs int `yaml:"negotiate_timeout_ms" default:"5000"`
}

// Serial configures the PC-facing pseudo-terminal on a monitor node.
type Serial struct {
	// Symlink, when set, is a stable path pointing at the allocated pty.
	Symlink string `yaml:"symlink"`
}

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := new(Config)
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file layered over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for a runnable node.
func (c *Config) Validate() error {
	switch c.Role {
	case RoleSensor, RoleBridge, RoleBase, RoleMonitor:
	default:
		return fmt.Errorf("unknown role %q", c.Role)
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	if c.Role != RoleMonitor {
		pairs := []bleid.AttributePair{{Service: c.Advertise.ServiceUUID, Characteristic: c.Advertise.CharUUID}}
		if c.Advertise.MotorCharUUID != "" {
			pairs = append(pairs, bleid.AttributePair{Service: c.Advertise.ServiceUUID, Characteristic: c.Advertise.MotorCharUUID})
		}
		if _, err := bleid.NewIdentity(c.Advertise.Name, pairs...); err != nil {
			return err
		}
	}

	if c.Role != RoleSensor {
		if _, err := bleid.ValidateUUID(c.Peer.ServiceUUID, c.Peer.CharUUID); err != nil {
			return fmt.Errorf("peer: %w", err)
		}
		if c.Peer.MotorCharUUID != "" {
			if _, err := bleid.ValidateUUID(c.Peer.MotorCharUUID); err != nil {
				return fmt.Errorf("peer: %w", err)
			}
		}
	}

	if c.Signal.CalibrationFactor == 0 {
		return fmt.Errorf("calibration_factor cannot be zero")
	}
	if c.Signal.DeadZone < 0 {
		return fmt.Errorf("dead_zone cannot be negative")
	}
	if c.Signal.Alpha < 0 || c.Signal.Alpha >= 1 {
		return fmt.Errorf("alpha must be in [0, 1)")
	}
	if c.Timing.TickMs <= 0 || c.Timing.SampleMs <= 0 || c.Timing.NotifyMs <= 0 {
		return fmt.Errorf("tick, sample and notify intervals must be positive")
	}
	return nil
}

// AdvertiseIdentity builds the validated peripheral identity.
func (c *Config) AdvertiseIdentity() (bleid.Identity, error) {
	pairs := []bleid.AttributePair{{Service: c.Advertise.ServiceUUID, Characteristic: c.Advertise.CharUUID}}
	if c.Advertise.MotorCharUUID != "" {
		pairs = append(pairs, bleid.AttributePair{Service: c.Advertise.ServiceUUID, Characteristic: c.Advertise.MotorCharUUID})
	}
	return bleid.NewIdentity(c.Advertise.Name, pairs...)
}

func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Timing.TickMs) * time.Millisecond
}

func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Timing.SampleMs) * time.Millisecond
}

func (c *Config) NotifyInterval() time.Duration {
	return time.Duration(c.Timing.NotifyMs) * time.Millisecond
}

func (c *Config) NegotiateTimeout() time.Duration {
	return time.Duration(c.Timing.NegotiateTimeoutMs) * time.Millisecond
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
