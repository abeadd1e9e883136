package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	apperrors "github.com/go-i2p/wgmobile/lib/errors"
)

func mustKey(t *testing.T) string {
	t.Helper()
	k, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("GeneratePrivateKey() error = %v", err)
	}
	return k.String()
}

func validRaw(t *testing.T) RawConfig {
	t.Helper()
	mtu := 1420
	return RawConfig{
		PrivateKey:    mustKey(t),
		PublicKey:     mustKey(t),
		ServerAddress: "203.0.113.5",
		ServerPort:    intPtr(51820),
		AllowedIPs:    []string{"0.0.0.0/0"},
		DNS:           []string{"8.8.8.8"},
		MTU:           &mtu,
	}
}

func intPtr(v int) *int { return &v }

func TestValidateAcceptsExample(t *testing.T) {
	raw := validRaw(t)
	cfg, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.PrivateKey().String() != raw.PrivateKey {
		t.Error("private key not preserved")
	}
	if cfg.ServerHost() != "203.0.113.5" || cfg.ServerPort() != 51820 {
		t.Errorf("endpoint = %s:%d", cfg.ServerHost(), cfg.ServerPort())
	}
	if got := cfg.AllowedIPs(); len(got) != 1 || got[0] != netip.MustParsePrefix("0.0.0.0/0") {
		t.Errorf("AllowedIPs() = %v", got)
	}
	if got := cfg.DNS(); len(got) != 1 || got[0] != netip.MustParseAddr("8.8.8.8") {
		t.Errorf("DNS() = %v", got)
	}
	if cfg.MTU() != 1420 {
		t.Errorf("MTU() = %d", cfg.MTU())
	}
	if _, ok := cfg.PresharedKey(); ok {
		t.Error("PresharedKey() should be absent")
	}
}

func TestValidateMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawConfig)
		field  string
	}{
		{"private key", func(r *RawConfig) { r.PrivateKey = "" }, FieldPrivateKey},
		{"public key", func(r *RawConfig) { r.PublicKey = "  " }, FieldPublicKey},
		{"server address", func(r *RawConfig) { r.ServerAddress = "" }, FieldServerAddress},
		{"server port", func(r *RawConfig) { r.ServerPort = nil }, FieldServerPort},
		{"allowed ips nil", func(r *RawConfig) { r.AllowedIPs = nil }, FieldAllowedIPs},
		{"allowed ips blank", func(r *RawConfig) { r.AllowedIPs = []string{" "} }, FieldAllowedIPs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw(t)
			tt.mutate(&raw)

			_, err := Validate(raw)
			var ce *apperrors.ConfigError
			if !apperrors.As(err, &ce) {
				t.Fatalf("Validate() error = %v, want ConfigError", err)
			}
			if ce.Reason != apperrors.ReasonMissingField || ce.Field != tt.field {
				t.Errorf("got %s/%s, want missing_field/%s", ce.Reason, ce.Field, tt.field)
			}
		})
	}
}

func TestValidateMissingBeforeFormat(t *testing.T) {
	raw := validRaw(t)
	raw.PrivateKey = "garbage"
	raw.ServerAddress = ""

	_, err := Validate(raw)
	var ce *apperrors.ConfigError
	if !apperrors.As(err, &ce) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if ce.Reason != apperrors.ReasonMissingField || ce.Field != FieldServerAddress {
		t.Errorf("got %s/%s, want missing serverAddress first", ce.Reason, ce.Field)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RawConfig)
		reason apperrors.Reason
		field  string
	}{
		{"short private key", func(r *RawConfig) { r.PrivateKey = "dG9vLXNob3J0" }, apperrors.ReasonInvalidKey, FieldPrivateKey},
		{"public key not base64", func(r *RawConfig) { r.PublicKey = "not*base64" }, apperrors.ReasonInvalidKey, FieldPublicKey},
		{"port too high", func(r *RawConfig) { r.ServerPort = intPtr(99999) }, apperrors.ReasonOutOfRange, FieldServerPort},
		{"port zero", func(r *RawConfig) { r.ServerPort = intPtr(0) }, apperrors.ReasonOutOfRange, FieldServerPort},
		{"port negative", func(r *RawConfig) { r.ServerPort = intPtr(-1) }, apperrors.ReasonOutOfRange, FieldServerPort},
		{"dotted quad out of range", func(r *RawConfig) { r.ServerAddress = "999.1.1.1" }, apperrors.ReasonInvalidAddress, FieldServerAddress},
		{"bad host", func(r *RawConfig) { r.ServerAddress = "bad host!" }, apperrors.ReasonInvalidAddress, FieldServerAddress},
		{"bad cidr", func(r *RawConfig) { r.AllowedIPs = []string{"10.0.0.0/33"} }, apperrors.ReasonInvalidAddress, FieldAllowedIPs},
		{"bad dns", func(r *RawConfig) { r.DNS = []string{"dns.google"} }, apperrors.ReasonInvalidAddress, FieldDNS},
		{"mtu too small", func(r *RawConfig) { r.MTU = intPtr(576) }, apperrors.ReasonOutOfRange, FieldMTU},
		{"mtu too big", func(r *RawConfig) { r.MTU = intPtr(70000) }, apperrors.ReasonOutOfRange, FieldMTU},
		{"bad psk", func(r *RawConfig) { r.PresharedKey = "abc" }, apperrors.ReasonInvalidKey, FieldPresharedKey},
		{"negative keepalive", func(r *RawConfig) { r.PersistentKeepalive = intPtr(-5) }, apperrors.ReasonOutOfRange, FieldPersistentKeepalive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw(t)
			tt.mutate(&raw)

			cfg, err := Validate(raw)
			if cfg != nil {
				t.Error("config should be nil on failure")
			}
			var ce *apperrors.ConfigError
			if !apperrors.As(err, &ce) {
				t.Fatalf("Validate() error = %v, want ConfigError", err)
			}
			if ce.Reason != tt.reason || ce.Field != tt.field {
				t.Errorf("got %s/%s, want %s/%s", ce.Reason, ce.Field, tt.reason, tt.field)
			}
		})
	}
}

func TestValidatePortOutOfRangeDetail(t *testing.T) {
	raw := validRaw(t)
	raw.ServerPort = intPtr(99999)

	_, err := Validate(raw)
	if got, want := err.Error(), "serverPort: value 99999 out of range [1, 65535]"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestValidateNeverEchoesKeys(t *testing.T) {
	secret := "c2VjcmV0LXNlY3JldC1zZWNyZXQtc2VjcmV0LXNlY3JldA=="
	raw := validRaw(t)
	raw.PrivateKey = secret
	raw.PresharedKey = secret

	_, errs := ValidateAll(raw)
	if !errs.HasErrors() {
		t.Fatal("expected errors")
	}
	if strings.Contains(errs.Error(), secret) {
		t.Errorf("error text leaks key material: %s", errs.Error())
	}
}

func TestValidateAllCollects(t *testing.T) {
	raw := validRaw(t)
	raw.ServerPort = intPtr(70000)
	raw.MTU = intPtr(100)
	raw.DNS = []string{"nope"}

	_, errs := ValidateAll(raw)
	if len(errs) != 3 {
		t.Fatalf("len(errs) = %d, want 3: %v", len(errs), errs)
	}

	fields := []string{FieldServerPort, FieldDNS, FieldMTU}
	for i, err := range errs {
		var ce *apperrors.ConfigError
		if !apperrors.As(err, &ce) || ce.Field != fields[i] {
			t.Errorf("errs[%d] = %v, want field %s", i, err, fields[i])
		}
	}
}

func TestValidateNormalizes(t *testing.T) {
	raw := validRaw(t)
	raw.PrivateKey = "  " + raw.PrivateKey + "\n"
	raw.ServerAddress = " [2001:db8::1] "
	raw.AllowedIPs = []string{"10.64.0.2/24", "10.0.0.0/8", "10.64.0.2/24", "192.168.1.7", "fd00::1"}

	cfg, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.ServerHost() != "2001:db8::1" {
		t.Errorf("ServerHost() = %q", cfg.ServerHost())
	}

	want := []netip.Prefix{
		netip.MustParsePrefix("10.64.0.2/24"),
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.7/32"),
		netip.MustParsePrefix("fd00::1/128"),
	}
	got := cfg.AllowedIPs()
	if len(got) != len(want) {
		t.Fatalf("AllowedIPs() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AllowedIPs()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestValidatedConfigReturnsCopies(t *testing.T) {
	cfg, err := Validate(validRaw(t))
	if err != nil {
		t.Fatal(err)
	}
	ips := cfg.AllowedIPs()
	ips[0] = netip.MustParsePrefix("1.2.3.4/32")
	if cfg.AllowedIPs()[0] == ips[0] {
		t.Error("AllowedIPs() exposed internal slice")
	}
}

func TestValidateOptionalFields(t *testing.T) {
	raw := validRaw(t)
	raw.PresharedKey = mustKey(t)
	raw.PersistentKeepalive = intPtr(25)
	raw.ServerAddress = "vpn.example.com"

	cfg, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	psk, ok := cfg.PresharedKey()
	if !ok || psk.String() != raw.PresharedKey {
		t.Error("preshared key not preserved")
	}
	if cfg.PersistentKeepalive() != 25 {
		t.Errorf("PersistentKeepalive() = %d", cfg.PersistentKeepalive())
	}
}

func TestFromMap(t *testing.T) {
	priv, pub := mustKey(t), mustKey(t)

	m := map[string]any{
		"privateKey":    priv,
		"publicKey":     pub,
		"serverAddress": "203.0.113.5",
		"serverPort":    float64(51820),
		"allowedIPs":    []any{"0.0.0.0/0"},
		"dns":           []any{"8.8.8.8"},
		"mtu":           "1420",
		"unknown":       true,
	}

	raw, err := FromMap(m)
	if err != nil {
		t.Fatalf("FromMap() error = %v", err)
	}
	if raw.ServerPort == nil || *raw.ServerPort != 51820 {
		t.Errorf("ServerPort = %v", raw.ServerPort)
	}
	if raw.MTU == nil || *raw.MTU != 1420 {
		t.Errorf("MTU = %v", raw.MTU)
	}
	if len(raw.AllowedIPs) != 1 || raw.AllowedIPs[0] != "0.0.0.0/0" {
		t.Errorf("AllowedIPs = %v", raw.AllowedIPs)
	}
	if _, err := Validate(raw); err != nil {
		t.Errorf("decoded config should validate: %v", err)
	}
}

func TestFromMapWrongShape(t *testing.T) {
	m := map[string]any{
		"privateKey": "x",
		"allowedIPs": map[string]any{"nested": 1},
	}

	_, err := FromMap(m)
	var ce *apperrors.ConfigError
	if !apperrors.As(err, &ce) {
		t.Fatalf("FromMap() error = %v, want ConfigError", err)
	}
	if ce.Reason != apperrors.ReasonInvalidType || ce.Field != FieldAllowedIPs {
		t.Errorf("got %s/%s", ce.Reason, ce.Field)
	}
	if !apperrors.IsConfig(err) {
		t.Error("shape errors should be config errors")
	}
}

func TestFromJSON(t *testing.T) {
	raw, err := FromJSON([]byte(`{"serverAddress":"vpn.example.com","serverPort":51820,"allowedIPs":["10.0.0.0/8"]}`))
	if err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}
	if raw.ServerAddress != "vpn.example.com" || raw.ServerPort == nil || *raw.ServerPort != 51820 {
		t.Errorf("unexpected raw config %+v", raw)
	}

	if _, err := FromJSON([]byte(`[1,2,3]`)); !apperrors.IsConfig(err) {
		t.Errorf("non-object JSON should be a config error, got %v", err)
	}
}

func TestFromMapRejectsFractions(t *testing.T) {
	tests := []struct {
		field string
		value any
	}{
		{FieldServerPort, 51820.9},
		{FieldMTU, 1420.5},
		{FieldPersistentKeepalive, float32(2.5)},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			m := map[string]any{
				"privateKey":    mustKey(t),
				"publicKey":     mustKey(t),
				"serverAddress": "203.0.113.5",
				"serverPort":    float64(51820),
				"allowedIPs":    []any{"0.0.0.0/0"},
			}
			m[tt.field] = tt.value

			_, err := FromMap(m)
			var ce *apperrors.ConfigError
			if !apperrors.As(err, &ce) {
				t.Fatalf("FromMap() error = %v, want ConfigError", err)
			}
			if ce.Reason != apperrors.ReasonInvalidType || ce.Field != tt.field {
				t.Errorf("got %s/%s, want invalid_type/%s", ce.Reason, ce.Field, tt.field)
			}
		})
	}
}

func TestFromJSONPortZeroIsOutOfRange(t *testing.T) {
	payload := `{"privateKey":"` + mustKey(t) + `","publicKey":"` + mustKey(t) +
		`","serverAddress":"203.0.113.5","serverPort":0,"allowedIPs":["0.0.0.0/0"]}`
	raw, err := FromJSON([]byte(payload))
	if err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}

	_, err = Validate(raw)
	var ce *apperrors.ConfigError
	if !apperrors.As(err, &ce) {
		t.Fatalf("Validate() error = %v, want ConfigError", err)
	}
	if ce.Reason != apperrors.ReasonOutOfRange || ce.Field != FieldServerPort {
		t.Errorf("got %s/%s, want out_of_range/serverPort", ce.Reason, ce.Field)
	}
}

func TestLoadProfile(t *testing.T) {
	priv, pub := mustKey(t), mustKey(t)
	path := filepath.Join(t.TempDir(), "tunnel.toml")
	content := `private_key = "` + priv + `"
public_key = "` + pub + `"
server_address = "203.0.113.5"
server_port = 51820
allowed_ips = ["0.0.0.0/0", "::/0"]
dns = ["1.1.1.1"]
mtu = 1380
persistent_keepalive = 25
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	raw, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile() error = %v", err)
	}
	cfg, err := Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.MTU() != 1380 || cfg.PersistentKeepalive() != 25 || len(cfg.AllowedIPs()) != 2 {
		t.Errorf("unexpected profile %+v", raw)
	}

	if _, err := LoadProfile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing profile should fail")
	}
}
