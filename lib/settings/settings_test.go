package settings

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDefault(t *testing.T) {
	s := Default()
	if err := s.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if s.Tunnel.Name != "WireGuardTunnel" || s.Tunnel.MTU != 1420 {
		t.Errorf("tunnel defaults = %+v", s.Tunnel)
	}
	if s.Metrics.Enabled {
		t.Error("metrics should be off by default")
	}
}

func TestLoadMissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Default(), s); diff != "" {
		t.Errorf("Load() of missing file differs from defaults (-want +got):\n%s", diff)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "settings.toml")

	want := Default()
	want.Daemon.DataDir = "/var/lib/wgmobile"
	want.Tunnel.Profile = "office.toml"
	want.Tunnel.CallTimeout = 10 * time.Second
	want.RPC.MaxConnections = 4
	want.Metrics.Enabled = true

	if err := Save(want, path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("settings file mode = %o, want 600", perm)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	content := "[tunnel]\nname = \"office\"\n\n[metrics]\nenabled = true\nlisten = \"127.0.0.1:9100\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Tunnel.Name != "office" || s.Tunnel.MTU != 1420 {
		t.Errorf("tunnel = %+v, want name override and default mtu", s.Tunnel)
	}
	if !s.Metrics.Enabled || s.Metrics.Listen != "127.0.0.1:9100" {
		t.Errorf("metrics = %+v", s.Metrics)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "bad toml", content: "[tunnel\n", wantErr: "parsing"},
		{name: "bad mtu", content: "[tunnel]\nmtu = 100\n", wantErr: "tunnel.mtu"},
		{name: "bad metrics listen", content: "[metrics]\nenabled = true\nlisten = \"nope\"\n", wantErr: "metrics.listen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "settings.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
	}{
		{name: "no data dir", modify: func(s *Settings) { s.Daemon.DataDir = "" }},
		{name: "no tunnel name", modify: func(s *Settings) { s.Tunnel.Name = "" }},
		{name: "zero timeout", modify: func(s *Settings) { s.Tunnel.CallTimeout = 0 }},
		{name: "no socket", modify: func(s *Settings) { s.RPC.Socket = "" }},
		{name: "no connections", modify: func(s *Settings) { s.RPC.MaxConnections = 0 }},
		{name: "zero rate", modify: func(s *Settings) { s.RPC.LifecycleRate = 0 }},
		{name: "zero burst", modify: func(s *Settings) { s.RPC.LifecycleBurst = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.modify(s)
			if err := s.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

func TestPaths(t *testing.T) {
	s := Default()
	s.Daemon.DataDir = "/data"
	s.Tunnel.Profile = "tunnel.toml"

	if got := s.SocketPath(); got != "/data/wgmobiled.sock" {
		t.Errorf("SocketPath() = %q", got)
	}
	if got := s.ProfilePath(); got != "/data/tunnel.toml" {
		t.Errorf("ProfilePath() = %q", got)
	}
	s.RPC.Socket = "/run/wg.sock"
	if got := s.SocketPath(); got != "/run/wg.sock" {
		t.Errorf("absolute SocketPath() = %q", got)
	}
	s.Tunnel.Profile = ""
	if got := s.ProfilePath(); got != "" {
		t.Errorf("empty ProfilePath() = %q", got)
	}
}

func TestEnsureDataDir(t *testing.T) {
	s := Default()
	s.Daemon.DataDir = filepath.Join(t.TempDir(), "a", "b")
	if err := s.EnsureDataDir(); err != nil {
		t.Fatalf("EnsureDataDir() error = %v", err)
	}
	if info, err := os.Stat(s.Daemon.DataDir); err != nil || !info.IsDir() {
		t.Errorf("data dir not created: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"WGMOBILE_DATA_DIR":        "/tmp/wg",
		"WGMOBILE_TUNNEL_NAME":     "phone",
		"WGMOBILE_MTU":             "1280",
		"WGMOBILE_CALL_TIMEOUT":    "5",
		"WGMOBILE_MAX_CONNECTIONS": "2",
		"WGMOBILE_METRICS":         "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	s := Default()
	if err := s.ApplyEnv(lookup); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if s.Daemon.DataDir != "/tmp/wg" || s.Tunnel.Name != "phone" || s.Tunnel.MTU != 1280 {
		t.Errorf("overrides not applied: %+v", s)
	}
	if s.Tunnel.CallTimeout != 5*time.Second || s.RPC.MaxConnections != 2 || !s.Metrics.Enabled {
		t.Errorf("numeric overrides not applied: %+v", s)
	}

	env = map[string]string{"WGMOBILE_MTU": "big"}
	if err := Default().ApplyEnv(lookup); err == nil || !strings.Contains(err.Error(), "WGMOBILE_MTU") {
		t.Errorf("ApplyEnv() with bad number = %v", err)
	}
	env = map[string]string{"WGMOBILE_METRICS": "maybe"}
	if err := Default().ApplyEnv(lookup); err == nil {
		t.Error("ApplyEnv() with bad bool should fail")
	}
}
