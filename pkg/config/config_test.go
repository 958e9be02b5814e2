package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, RoleSensor, cfg.Role)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "GIGA_BLE_UART", cfg.Advertise.Name)
	assert.Equal(t, "19B10000-E8F2-537E-4F6C-D104768A1214", cfg.Advertise.ServiceUUID)
	assert.Equal(t, "19B10001-E8F2-537E-4F6C-D104768A1214", cfg.Advertise.CharUUID)
	assert.Equal(t, 1.0, cfg.Signal.CalibrationFactor)
	assert.Equal(t, 10.0, cfg.Signal.DeadZone)
	assert.Equal(t, 0.90, cfg.Signal.Alpha)
	assert.Equal(t, 10*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, 50*time.Millisecond, cfg.SampleInterval())
	assert.Equal(t, 100*time.Millisecond, cfg.NotifyInterval())
	assert.Equal(t, 5*time.Second, cfg.NegotiateTimeout())

	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.yaml")
	content := `
role: bridge
log_level: debug
advertise:
  name: BRIDGE_01
signal:
  dead_zone: 5.0
  scale: 0.5
timing:
  notify_ms: 200
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, RoleBridge, cfg.Role)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "BRIDGE_01", cfg.Advertise.Name)
	// Unset fields keep their defaults.
	assert.Equal(t, "19B10000-E8F2-537E-4F6C-D104768A1214", cfg.Advertise.ServiceUUID)
	assert.Equal(t, 5.0, cfg.Signal.DeadZone)
	assert.Equal(t, 0.5, cfg.Signal.Scale)
	assert.Equal(t, 200*time.Millisecond, cfg.NotifyInterval())

	assert.NoError(t, cfg.Validate())
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("role: [unterminated"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown role",
			mutate:  func(c *Config) { c.Role = "gateway" },
			wantErr: "unknown role",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.LogLevel = "chatty" },
			wantErr: "invalid log level",
		},
		{
			name:    "empty advertised name",
			mutate:  func(c *Config) { c.Advertise.Name = "" },
			wantErr: "name cannot be empty",
		},
		{
			name:    "advertised name too long",
			mutate:  func(c *Config) { c.Advertise.Name = "A_VERY_LONG_DEVICE_NAME_INDEED" },
			wantErr: "exceeds",
		},
		{
			name:    "bad service UUID",
			mutate:  func(c *Config) { c.Advertise.ServiceUUID = "not-a-uuid" },
			wantErr: "invalid UUID",
		},
		{
			name: "motor char duplicates data char",
			mutate: func(c *Config) {
				c.Advertise.MotorCharUUID = c.Advertise.CharUUID
			},
			wantErr: "duplicate characteristic",
		},
		{
			name: "bridge with bad peer UUID",
			mutate: func(c *Config) {
				c.Role = RoleBridge
				c.Peer.CharUUID = "xyz"
			},
			wantErr: "peer",
		},
		{
			name: "monitor with bad peer motor char",
			mutate: func(c *Config) {
				c.Role = RoleMonitor
				c.Peer.MotorCharUUID = "xyz"
			},
			wantErr: "peer",
		},
		{
			name:    "zero calibration factor",
			mutate:  func(c *Config) { c.Signal.CalibrationFactor = 0 },
			wantErr: "calibration_factor",
		},
		{
			name:    "negative dead zone",
			mutate:  func(c *Config) { c.Signal.DeadZone = -1 },
			wantErr: "dead_zone",
		},
		{
			name:    "alpha out of range",
			mutate:  func(c *Config) { c.Signal.Alpha = 1.0 },
			wantErr: "alpha",
		},
		{
			name:    "zero tick interval",
			mutate:  func(c *Config) { c.Timing.TickMs = 0 },
			wantErr: "must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_BaseRole(t *testing.T) {
	cfg := Default()
	cfg.Role = RoleBase

	assert.NoError(t, cfg.Validate())
}

func TestValidate_MonitorSkipsAdvertise(t *testing.T) {
	cfg := Default()
	cfg.Role = RoleMonitor
	cfg.Advertise.Name = ""

	assert.NoError(t, cfg.Validate())
}

func TestAdvertiseIdentity(t *testing.T) {
	cfg := Default()
	cfg.Advertise.MotorCharUUID = "19B10002-E8F2-537E-4F6C-D104768A1214"

	id, err := cfg.AdvertiseIdentity()
	require.NoError(t, err)
	assert.Equal(t, "GIGA_BLE_UART", id.Name)
	assert.Len(t, id.Pairs, 2)
	assert.Len(t, id.ServiceUUIDs(), 1)
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		want     logrus.Level
	}{
		{
			name:     "creates logger with debug level",
			logLevel: "debug",
			want:     logrus.DebugLevel,
		},
		{
			name:     "creates logger with info level",
			logLevel: "info",
			want:     logrus.InfoLevel,
		},
		{
			name:     "creates logger with warn level",
			logLevel: "warn",
			want:     logrus.WarnLevel,
		},
		{
			name:     "unparseable level falls back to info",
			logLevel: "chatty",
			want:     logrus.InfoLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.want, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
