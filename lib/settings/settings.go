// Package settings holds the wgmobiled daemon configuration: where the RPC
// socket lives, whether metrics are served, and which tunnel profile to
// bring up at start. Settings are read from TOML and may be overridden
// from the environment.
package settings

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-i2p/logger"
	"github.com/pelletier/go-toml/v2"

	"github.com/go-i2p/wgmobile/lib/backend"
)

var log = logger.GetGoI2PLogger()

// Default settings values
const (
	DefaultRPCSocket      = "wgmobiled.sock"
	DefaultMaxConnections = 16
	DefaultLifecycleRate  = 2.0
	DefaultLifecycleBurst = 5
	DefaultMetricsListen  = "127.0.0.1:9469"
	DefaultCallTimeout    = 30 * time.Second
)

// Settings holds all daemon configuration.
type Settings struct {
	Daemon  DaemonSettings  `toml:"daemon"`
	Tunnel  TunnelSettings  `toml:"tunnel"`
	RPC     RPCSettings     `toml:"rpc"`
	Metrics MetricsSettings `toml:"metrics"`
}

// DaemonSettings contains process-wide settings.
type DaemonSettings struct {
	// DataDir holds the socket and any relative profile paths
	DataDir string `toml:"data_dir"`
}

// TunnelSettings configures the single tunnel the daemon manages.
type TunnelSettings struct {
	// Name is the backend tunnel name
	Name string `toml:"name"`
	// MTU is the default interface MTU when a profile sets none
	MTU int `toml:"mtu"`
	// Profile is a TOML tunnel profile connected at start (optional)
	Profile string `toml:"profile,omitempty"`
	// CallTimeout bounds each lifecycle call
	CallTimeout time.Duration `toml:"call_timeout"`
}

// RPCSettings contains RPC server settings.
type RPCSettings struct {
	// Socket is the Unix socket path (relative to DataDir)
	Socket string `toml:"socket"`
	// MaxConnections caps concurrent clients
	MaxConnections int `toml:"max_connections"`
	// LifecycleRate is the sustained lifecycle calls per second
	LifecycleRate float64 `toml:"lifecycle_rate"`
	// LifecycleBurst is how many lifecycle calls may arrive at once
	LifecycleBurst int `toml:"lifecycle_burst"`
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// Default returns Settings with sensible defaults.
func Default() *Settings {
	homeDir, _ := os.UserHomeDir()

	return &Settings{
		Daemon: DaemonSettings{
			DataDir: filepath.Join(homeDir, ".wgmobile"),
		},
		Tunnel: TunnelSettings{
			Name:        backend.DefaultTunnelName,
			MTU:         backend.DefaultMTU,
			CallTimeout: DefaultCallTimeout,
		},
		RPC: RPCSettings{
			Socket:         DefaultRPCSocket,
			MaxConnections: DefaultMaxConnections,
			LifecycleRate:  DefaultLifecycleRate,
			LifecycleBurst: DefaultLifecycleBurst,
		},
		Metrics: MetricsSettings{
			Enabled: false,
			Listen:  DefaultMetricsListen,
		},
	}
}

// Load reads settings from a TOML file. A missing file yields the
// defaults. Environment overrides are applied before validation.
func Load(path string) (*Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.WithField("path", path).Debug("settings file not found, using defaults")
	case err != nil:
		return nil, fmt.Errorf("reading settings file: %w", err)
	default:
		if err := toml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parsing settings file: %w", err)
		}
	}

	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return s, nil
}

// Save writes the settings to a TOML file, creating the parent directory.
func Save(s *Settings, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	return nil
}

// Validate checks the settings for errors.
func (s *Settings) Validate() error {
	if s.Daemon.DataDir == "" {
		return errors.New("daemon.data_dir is required")
	}
	if s.Tunnel.Name == "" {
		return errors.New("tunnel.name is required")
	}
	if s.Tunnel.MTU < 576 || s.Tunnel.MTU > 65535 {
		return errors.New("tunnel.mtu must be between 576 and 65535")
	}
	if s.Tunnel.CallTimeout <= 0 {
		return errors.New("tunnel.call_timeout must be positive")
	}
	if s.RPC.Socket == "" {
		return errors.New("rpc.socket is required")
	}
	if s.RPC.MaxConnections < 1 {
		return errors.New("rpc.max_connections must be at least 1")
	}
	if s.RPC.LifecycleRate <= 0 || s.RPC.LifecycleBurst < 1 {
		return errors.New("rpc.lifecycle_rate and rpc.lifecycle_burst must be positive")
	}
	if s.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(s.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics.listen: %w", err)
		}
	}
	return nil
}

// DataPath resolves p against the data directory unless it is absolute.
func (s *Settings) DataPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.Daemon.DataDir, p)
}

// SocketPath returns the absolute RPC socket path.
func (s *Settings) SocketPath() string {
	return s.DataPath(s.RPC.Socket)
}

// ProfilePath returns the absolute tunnel profile path, or "".
func (s *Settings) ProfilePath() string {
	return s.DataPath(s.Tunnel.Profile)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (s *Settings) EnsureDataDir() error {
	return os.MkdirAll(s.Daemon.DataDir, 0o700)
}

// ApplyEnv overrides settings from WGMOBILE_* variables. lookup is usually
// os.LookupEnv. Durations are given in whole seconds.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("WGMOBILE_DATA_DIR", &s.Daemon.DataDir)
	str("WGMOBILE_TUNNEL_NAME", &s.Tunnel.Name)
	str("WGMOBILE_PROFILE", &s.Tunnel.Profile)
	str("WGMOBILE_RPC_SOCKET", &s.RPC.Socket)
	str("WGMOBILE_METRICS_LISTEN", &s.Metrics.Listen)

	if err := num("WGMOBILE_MTU", &s.Tunnel.MTU); err != nil {
		return err
	}
	if err := num("WGMOBILE_MAX_CONNECTIONS", &s.RPC.MaxConnections); err != nil {
		return err
	}

	secs := -1
	if err := num("WGMOBILE_CALL_TIMEOUT", &secs); err != nil {
		return err
	}
	if secs >= 0 {
		s.Tunnel.CallTimeout = time.Duration(secs) * time.Second
	}

	if v, ok := lookup("WGMOBILE_METRICS"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("WGMOBILE_METRICS: %w", err)
		}
		s.Metrics.Enabled = enabled
	}
	return nil
}
