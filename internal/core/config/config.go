// Package config loads fixengine configuration from defaults, an optional
// config file, FIXENGINE_* environment variables and command-line flags.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/solatis/fixengine/internal/types"
)

// EngineConfig is the complete runtime configuration.
type EngineConfig struct {
	Session    SessionConfig
	Store      StoreConfig
	Admin      AdminConfig
	Log        LogConfig
	Dictionary DictionaryConfig
}

// SessionConfig describes the one FIX session this process runs.
type SessionConfig struct {
	BeginString       string
	SenderCompID      string
	TargetCompID      string
	Role              types.Role
	Addr              string
	HeartbeatInterval time.Duration
	LogonTimeout      time.Duration
	LogoutTimeout     time.Duration
	ResetOnLogon      bool
	MaxJournal        int
	// Username is the logon key id. An initiator signs its Logon with the
	// secret registered under this id.
	Username string
}

// Identity returns the session identity from this side's point of view.
func (s SessionConfig) Identity() types.SessionIdentity {
	return types.SessionIdentity{
		BeginString:  s.BeginString,
		SenderCompID: s.SenderCompID,
		TargetCompID: s.TargetCompID,
	}
}

// StoreConfig selects the persistence backend by URL.
type StoreConfig struct {
	URL string
}

// AdminConfig binds the gRPC health server and, when MetricsAddr is set,
// the Prometheus scrape endpoint.
type AdminConfig struct {
	Host        string
	Port        int
	MetricsAddr string
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string
	Format string
}

// DictionaryConfig optionally replaces the built-in dictionary with a YAML
// definition file.
type DictionaryConfig struct {
	Path string
}

// DefaultEngineConfig returns configuration with default values.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Session: SessionConfig{
			BeginString:       "FIX.4.4",
			Role:              types.RoleInitiator,
			Addr:              "127.0.0.1:9878",
			HeartbeatInterval: 30 * time.Second,
			LogonTimeout:      10 * time.Second,
			LogoutTimeout:     2 * time.Second,
			MaxJournal:        types.DefaultMaxJournal,
		},
		Store: StoreConfig{URL: "memory://"},
		Admin: AdminConfig{Host: "127.0.0.1", Port: 50051},
		Log:   LogConfig{Level: "info", Format: "json"},
	}
}

// LogonSecrets reads logon HMAC secrets from the environment.
// FIXENGINE_LOGON_SECRET holds one secret; FIXENGINE_LOGON_SECRET_1,
// FIXENGINE_LOGON_SECRET_2 and so on hold more, so a key can be rotated
// while both old and new are accepted. Each value is
// <key_id>:<base64_secret>. Returns key_id -> decoded secret.
func LogonSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)
	add := func(env, val string) error {
		keyID, decoded, err := ParseSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", env, err)
		}
		if _, exists := secrets[keyID]; exists {
			return fmt.Errorf("duplicate key_id '%s' found in environment variables (check FIXENGINE_LOGON_SECRET and FIXENGINE_LOGON_SECRET_* for conflicts)", keyID)
		}
		secrets[keyID] = decoded
		return nil
	}

	if val := os.Getenv("FIXENGINE_LOGON_SECRET"); val != "" {
		if err := add("FIXENGINE_LOGON_SECRET", val); err != nil {
			return nil, err
		}
	}
	for i := 1; ; i++ {
		env := fmt.Sprintf("FIXENGINE_LOGON_SECRET_%d", i)
		val := os.Getenv(env)
		if val == "" {
			break
		}
		if err := add(env, val); err != nil {
			return nil, err
		}
	}
	return secrets, nil
}

// ParseSecretWithID parses <key_id>:<base64_secret>. The key id is the
// Username a counterparty logs on with: 1 to 64 characters from
// [A-Za-z0-9._-].
func ParseSecretWithID(envValue string) (keyID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <key_id>:<base64_secret>")
	}

	keyID = parts[0]
	if len(keyID) == 0 || len(keyID) > 64 {
		return "", nil, fmt.Errorf("key_id must be 1 to 64 characters")
	}
	for _, c := range keyID {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '.' || c == '_' || c == '-') {
			return "", nil, fmt.Errorf("key_id may only contain letters, digits, '.', '_' and '-'")
		}
	}

	secret, err = ParseSecret(parts[1])
	if err != nil {
		return "", nil, err
	}
	return keyID, secret, nil
}

// ParseSecret decodes a base64 secret of at least 32 bytes.
func ParseSecret(envValue string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envValue))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}
