// Package config turns an untyped, externally supplied tunnel configuration
// into a ValidatedConfig. Validation is pure: no I/O, no logging of field
// values, and deterministic for a given input.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"reflect"
	"strings"

	"github.com/go-i2p/logger"
	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"

	apperrors "github.com/go-i2p/wgmobile/lib/errors"
)

var log = logger.GetGoI2PLogger()

// Field names as they appear in caller payloads and in error reports.
const (
	FieldPrivateKey          = "privateKey"
	FieldPublicKey           = "publicKey"
	FieldServerAddress       = "serverAddress"
	FieldServerPort          = "serverPort"
	FieldAllowedIPs          = "allowedIPs"
	FieldDNS                 = "dns"
	FieldMTU                 = "mtu"
	FieldPresharedKey        = "presharedKey"
	FieldPersistentKeepalive = "persistentKeepalive"
)

// RawConfig is the caller-supplied tunnel configuration. Nothing is checked
// at this layer; see Validate.
type RawConfig struct {
	PrivateKey    string   `mapstructure:"privateKey" json:"privateKey" toml:"private_key"`
	PublicKey     string   `mapstructure:"publicKey" json:"publicKey" toml:"public_key"`
	ServerAddress string   `mapstructure:"serverAddress" json:"serverAddress" toml:"server_address"`
	ServerPort    *int     `mapstructure:"serverPort" json:"serverPort,omitempty" toml:"server_port,omitempty"`
	AllowedIPs    []string `mapstructure:"allowedIPs" json:"allowedIPs" toml:"allowed_ips"`

	// Optional fields
	DNS                 []string `mapstructure:"dns" json:"dns,omitempty" toml:"dns,omitempty"`
	MTU                 *int     `mapstructure:"mtu" json:"mtu,omitempty" toml:"mtu,omitempty"`
	PresharedKey        string   `mapstructure:"presharedKey" json:"presharedKey,omitempty" toml:"preshared_key,omitempty"`
	PersistentKeepalive *int     `mapstructure:"persistentKeepalive" json:"persistentKeepalive,omitempty" toml:"persistent_keepalive,omitempty"`
}

// Int returns a pointer to v, for the numeric RawConfig fields.
func Int(v int) *int { return &v }

// FromMap decodes an untyped key/value payload, as delivered by a
// cross-language bridge, into a RawConfig. Numbers may arrive as float64 or
// numeric strings, but fractional numbers are rejected. A single string is accepted where a list is expected.
// Unknown keys are ignored.
func FromMap(m map[string]any) (RawConfig, error) {
	var raw RawConfig
	if err := decode(m, &raw); err != nil {
		field := offendingField(m)
		log.WithField("field", field).Debug("config payload has a value of the wrong type")
		return RawConfig{}, apperrors.InvalidType(field, expectedShape(field))
	}
	return raw, nil
}

// FromJSON decodes a JSON object into a RawConfig.
func FromJSON(data []byte) (RawConfig, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return RawConfig{}, apperrors.InvalidType("config", "must be a JSON object")
	}
	return FromMap(m)
}

// LoadProfile reads a tunnel profile from a TOML file. Profiles are only ever
// read; the controller keeps no configuration on disk.
func LoadProfile(path string) (RawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RawConfig{}, fmt.Errorf("reading profile: %w", err)
	}

	var raw RawConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return RawConfig{}, fmt.Errorf("parsing profile: %w", err)
	}
	return raw, nil
}

func decode(input any, out *RawConfig) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       rejectFractions,
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

// rejectFractions stops weak decoding from truncating 51820.9 to 51820.
func rejectFractions(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.Int {
		return data, nil
	}
	var f float64
	switch v := data.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	default:
		return data, nil
	}
	if math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not an integer", f)
	}
	return data, nil
}

// offendingField decodes each known key on its own to find the first one
// that fails, in field order.
func offendingField(m map[string]any) string {
	for _, name := range fieldOrder {
		v, ok := lookup(m, name)
		if !ok {
			continue
		}
		var probe RawConfig
		if err := decode(map[string]any{name: v}, &probe); err != nil {
			return name
		}
	}
	return "config"
}

var fieldOrder = []string{
	FieldPrivateKey,
	FieldPublicKey,
	FieldServerAddress,
	FieldServerPort,
	FieldAllowedIPs,
	FieldDNS,
	FieldMTU,
	FieldPresharedKey,
	FieldPersistentKeepalive,
}

// lookup mirrors mapstructure's case-insensitive key matching.
func lookup(m map[string]any, name string) (any, bool) {
	if v, ok := m[name]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

func expectedShape(field string) string {
	switch field {
	case FieldAllowedIPs, FieldDNS:
		return "must be a list of strings"
	case FieldServerPort, FieldMTU, FieldPersistentKeepalive:
		return "must be an integer"
	case "config":
		return "must be a key/value object"
	default:
		return "must be a string"
	}
}
