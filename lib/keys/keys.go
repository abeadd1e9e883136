// Package keys generates and parses WireGuard key material for tunnel
// profiles. Keys are Curve25519 and travel as standard base64.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-i2p/logger"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"
)

var log = logger.GetGoI2PLogger()

// FingerprintLength is the length of a key fingerprint in bytes.
const FingerprintLength = 8

// Keypair is a WireGuard private key and its public key.
type Keypair struct {
	Private wgtypes.Key
	Public  wgtypes.Key
}

// persistedKeypair is the JSON form written by Save.
type persistedKeypair struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
}

// Generate creates a fresh keypair.
func Generate() (Keypair, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return Keypair{}, fmt.Errorf("generating private key: %w", err)
	}
	return Keypair{Private: priv, Public: priv.PublicKey()}, nil
}

// GeneratePreshared creates a random preshared key.
func GeneratePreshared() (wgtypes.Key, error) {
	k, err := wgtypes.GenerateKey()
	if err != nil {
		return wgtypes.Key{}, fmt.Errorf("generating preshared key: %w", err)
	}
	return k, nil
}

// Parse decodes a base64 key, ignoring surrounding whitespace.
func Parse(s string) (wgtypes.Key, error) {
	k, err := wgtypes.ParseKey(strings.TrimSpace(s))
	if err != nil {
		return wgtypes.Key{}, fmt.Errorf("parsing key: %w", err)
	}
	return k, nil
}

// PublicFromPrivate derives the base64 public key for a base64 private key.
func PublicFromPrivate(private string) (string, error) {
	k, err := Parse(private)
	if err != nil {
		return "", err
	}
	return k.PublicKey().String(), nil
}

// Fingerprint is a short, stable identifier for a public key that is safe
// to log.
func Fingerprint(pub wgtypes.Key) string {
	hash := sha256.Sum256(pub[:])
	return hex.EncodeToString(hash[:FingerprintLength])
}

// Load reads a keypair written by Save and checks that the public key
// matches the private key.
func Load(path string) (Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Keypair{}, fmt.Errorf("reading key file: %w", err)
	}

	var p persistedKeypair
	if err := json.Unmarshal(data, &p); err != nil {
		return Keypair{}, fmt.Errorf("parsing key file: %w", err)
	}

	priv, err := Parse(p.PrivateKey)
	if err != nil {
		return Keypair{}, err
	}
	if p.PublicKey != priv.PublicKey().String() {
		return Keypair{}, errors.New("public key mismatch in key file")
	}
	return Keypair{Private: priv, Public: priv.PublicKey()}, nil
}

// Save writes the keypair as JSON with mode 0600, replacing path
// atomically.
func (kp Keypair) Save(path string) error {
	data, err := json.MarshalIndent(persistedKeypair{
		PrivateKey: kp.Private.String(),
		PublicKey:  kp.Public.String(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling keypair: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming key file: %w", err)
	}

	log.WithField("fingerprint", Fingerprint(kp.Public)).Debug("saved keypair")
	return nil
}
