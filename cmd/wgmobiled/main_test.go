package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/go-i2p/wgmobile/lib/backend"
	"github.com/go-i2p/wgmobile/lib/keys"
	"github.com/go-i2p/wgmobile/lib/settings"
	wgtest "github.com/go-i2p/wgmobile/lib/testutil"
)

// execute runs the CLI with args and returns stdout and stderr.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeProfile(t *testing.T, dir string, mutate func(map[string]any)) string {
	t.Helper()
	raw := wgtest.ValidRawConfig(t)
	data, err := toml.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	if mutate != nil {
		var m map[string]any
		if err := toml.Unmarshal(data, &m); err != nil {
			t.Fatal(err)
		}
		mutate(m)
		if data, err = toml.Marshal(m); err != nil {
			t.Fatal(err)
		}
	}
	path := filepath.Join(dir, "tunnel.toml")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGenkeyPubkey(t *testing.T) {
	priv, _, err := execute(t, "", "genkey")
	if err != nil {
		t.Fatalf("genkey error = %v", err)
	}
	want, err := keys.PublicFromPrivate(priv)
	if err != nil {
		t.Fatalf("genkey printed an invalid key %q: %v", priv, err)
	}

	pub, _, err := execute(t, priv, "pubkey")
	if err != nil {
		t.Fatalf("pubkey error = %v", err)
	}
	if strings.TrimSpace(pub) != want {
		t.Errorf("pubkey = %q, want %q", pub, want)
	}

	if _, _, err := execute(t, "not a key", "pubkey"); err == nil {
		t.Error("pubkey with junk input should fail")
	}
}

func TestGenkeyOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "key.json")
	priv, _, err := execute(t, "", "genkey", "--out", path)
	if err != nil {
		t.Fatalf("genkey --out error = %v", err)
	}
	kp, err := keys.Load(path)
	if err != nil {
		t.Fatalf("keys.Load() error = %v", err)
	}
	if kp.Private.String() != strings.TrimSpace(priv) {
		t.Error("saved key differs from printed key")
	}

	pub, _, err := execute(t, "", "pubkey", "--in", path)
	if err != nil {
		t.Fatalf("pubkey --in error = %v", err)
	}
	if strings.TrimSpace(pub) != kp.Public.String() {
		t.Errorf("pubkey --in = %q, want %q", pub, kp.Public.String())
	}

	if _, _, err := execute(t, "", "pubkey", "--in", filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("pubkey --in with a missing file should fail")
	}
}

func TestGenpsk(t *testing.T) {
	out, _, err := execute(t, "", "genpsk")
	if err != nil {
		t.Fatalf("genpsk error = %v", err)
	}
	if _, err := keys.Parse(out); err != nil {
		t.Errorf("genpsk printed %q: %v", out, err)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := writeProfile(t, dir, nil)
		out, _, err := execute(t, "", "validate", path)
		if err != nil {
			t.Fatalf("validate error = %v", err)
		}
		if !strings.HasPrefix(out, "ok: ") || !strings.Contains(out, "203.0.113.5:51820") {
			t.Errorf("validate output = %q", out)
		}
	})

	t.Run("wg-quick", func(t *testing.T) {
		path := writeProfile(t, dir, nil)
		out, _, err := execute(t, "", "validate", "--render", "wg-quick", path)
		if err != nil {
			t.Fatalf("validate error = %v", err)
		}
		if !strings.Contains(out, "[Interface]") || !strings.Contains(out, "Endpoint = 203.0.113.5:51820") {
			t.Errorf("wg-quick output = %q", out)
		}
	})

	t.Run("invalid reports every field", func(t *testing.T) {
		path := writeProfile(t, dir, func(m map[string]any) {
			m["server_port"] = 99999
			m["mtu"] = 10
		})
		_, errOut, err := execute(t, "", "validate", path)
		if err == nil || !strings.Contains(err.Error(), "2 invalid field(s)") {
			t.Fatalf("validate error = %v", err)
		}
		if !strings.Contains(errOut, "serverPort") || !strings.Contains(errOut, "mtu") {
			t.Errorf("stderr = %q", errOut)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, _, err := execute(t, "", "validate", filepath.Join(dir, "nope.toml")); err == nil {
			t.Error("validate of a missing file should fail")
		}
	})
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")

	if _, _, err := execute(t, "", "--config", path, "config", "init"); err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if _, err := settings.Load(path); err != nil {
		t.Fatalf("written settings do not load: %v", err)
	}
	if _, _, err := execute(t, "", "--config", path, "config", "init"); err == nil {
		t.Error("config init over an existing file should fail")
	}
	if _, _, err := execute(t, "", "--config", path, "config", "init", "--force"); err != nil {
		t.Errorf("config init --force error = %v", err)
	}

	out, _, err := execute(t, "", "--config", path, "config", "show")
	if err != nil || !strings.Contains(out, "[rpc]") {
		t.Errorf("config show = %q, %v", out, err)
	}
}

func TestRPCUnknownMethod(t *testing.T) {
	if _, _, err := execute(t, "", "rpc", "bogus"); err == nil || !strings.Contains(err.Error(), "unknown method") {
		t.Errorf("rpc bogus error = %v", err)
	}
}

func testSettings(t *testing.T) *settings.Settings {
	t.Helper()
	dir, err := os.MkdirTemp("", "wgd")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	s := settings.Default()
	s.Daemon.DataDir = dir
	s.Tunnel.CallTimeout = 5 * time.Second
	return s
}

func startDaemon(t *testing.T, s *settings.Settings, mb *wgtest.MockBackend) (cancel func(), done <-chan error) {
	t.Helper()
	d, err := newDaemon(s, mb)
	if err != nil {
		t.Fatalf("newDaemon() error = %v", err)
	}
	ready := make(chan struct{})
	d.onReady = func() { close(ready) }

	ctx, cancelCtx := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.run(ctx) }()

	select {
	case <-ready:
	case err := <-errc:
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon never became ready")
	}
	t.Cleanup(cancelCtx)
	return cancelCtx, errc
}

func TestDaemonRPC(t *testing.T) {
	s := testSettings(t)
	mb := wgtest.NewMockBackend()
	cancel, done := startDaemon(t, s, mb)

	socket := s.SocketPath()
	call := func(args ...string) string {
		t.Helper()
		out, _, err := execute(t, "", append([]string{"rpc", "--socket", socket}, args...)...)
		if err != nil {
			t.Fatalf("rpc %v error = %v", args, err)
		}
		return out
	}

	if out := call("status"); !strings.Contains(out, `"INACTIVE"`) {
		t.Errorf("status before connect = %s", out)
	}
	call("initialize")

	cfg, err := json.Marshal(wgtest.ValidRawConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	profile := filepath.Join(s.Daemon.DataDir, "tunnel.json")
	if err := os.WriteFile(profile, cfg, 0o600); err != nil {
		t.Fatal(err)
	}
	call("connect", profile)

	if out := call("tunnel.status"); !strings.Contains(out, `"ACTIVE"`) {
		t.Errorf("status after connect = %s", out)
	}

	_, _, err = execute(t, "", "rpc", "--socket", socket, "connect", "-")
	if err == nil || !strings.Contains(err.Error(), "config") {
		t.Errorf("connect with empty stdin = %v, want a config error", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	// Shutdown takes a connected tunnel down.
	calls := mb.CallsOf(wgtest.CallSetState)
	if len(calls) != 2 || calls[1].State != backend.StateDown {
		t.Errorf("backend SetState calls = %+v, want UP then DOWN", calls)
	}
}

func TestDaemonAutoConnect(t *testing.T) {
	s := testSettings(t)
	s.Tunnel.Profile = writeProfile(t, s.Daemon.DataDir, nil)
	mb := wgtest.NewMockBackend()
	startDaemon(t, s, mb)

	deadline := time.Now().Add(5 * time.Second)
	for len(mb.CallsOf(wgtest.CallSetState)) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("profile was never connected")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := mb.CallsOf(wgtest.CallSetState)[0].State; got != backend.StateUp {
		t.Errorf("first SetState = %v, want UP", got)
	}
}
