package testutil

import (
	"testing"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/go-i2p/wgmobile/lib/config"
)

// MustKey returns a fresh base64 private key.
func MustKey(tb testing.TB) string {
	tb.Helper()
	k, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		tb.Fatalf("GeneratePrivateKey() error = %v", err)
	}
	return k.String()
}

// ValidRawConfig returns a configuration that passes validation, with
// fresh keys, a literal endpoint, one allowed IP, one DNS server and an
// MTU of 1420.
func ValidRawConfig(tb testing.TB) config.RawConfig {
	tb.Helper()
	mtu := 1420
	return config.RawConfig{
		PrivateKey:    MustKey(tb),
		PublicKey:     MustKey(tb),
		ServerAddress: "203.0.113.5",
		ServerPort:    config.Int(51820),
		AllowedIPs:    []string{"0.0.0.0/0"},
		DNS:           []string{"8.8.8.8"},
		MTU:           &mtu,
	}
}

// ValidConfigMap returns ValidRawConfig in the untyped shape a mobile
// bridge delivers, with numbers as float64.
func ValidConfigMap(tb testing.TB) map[string]any {
	tb.Helper()
	raw := ValidRawConfig(tb)
	return map[string]any{
		"privateKey":    raw.PrivateKey,
		"publicKey":     raw.PublicKey,
		"serverAddress": raw.ServerAddress,
		"serverPort":    float64(*raw.ServerPort),
		"allowedIPs":    []any{raw.AllowedIPs[0]},
		"dns":           []any{raw.DNS[0]},
		"mtu":           float64(*raw.MTU),
	}
}
