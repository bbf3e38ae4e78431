package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/solatis/fixengine/internal/types"
)

// ErrSecretInConfig rejects config files that carry secrets.
var ErrSecretInConfig = errors.New("secrets not allowed in config files (use FIXENGINE_LOGON_SECRET environment variable)")

// flagKeys maps persistent CLI flags to configuration keys.
var flagKeys = map[string]string{
	"db-url":     "store.url",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// secretKeys may only come from the environment.
var secretKeys = []string{"logon_secret", "session.logon_secret", "session.password"}

// LoadConfig loads configuration with precedence
// flags > environment > config file > defaults. configPath and flags may
// be empty or nil.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*EngineConfig, error) {
	v := viper.New()
	setDefaults(v, DefaultEngineConfig())

	v.SetEnvPrefix("FIXENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// InConfig only looks at the file, so environment secrets pass.
	for _, key := range secretKeys {
		if v.InConfig(key) {
			return nil, ErrSecretInConfig
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	role, err := types.ParseRole(v.GetString("session.role"))
	if err != nil {
		return nil, err
	}

	cfg := &EngineConfig{
		Session: SessionConfig{
			BeginString:       v.GetString("session.begin_string"),
			SenderCompID:      v.GetString("session.sender_comp_id"),
			TargetCompID:      v.GetString("session.target_comp_id"),
			Role:              role,
			Addr:              v.GetString("session.addr"),
			HeartbeatInterval: v.GetDuration("session.heartbeat_interval"),
			LogonTimeout:      v.GetDuration("session.logon_timeout"),
			LogoutTimeout:     v.GetDuration("session.logout_timeout"),
			ResetOnLogon:      v.GetBool("session.reset_on_logon"),
			MaxJournal:        v.GetInt("session.max_journal"),
			Username:          v.GetString("session.username"),
		},
		Store: StoreConfig{URL: v.GetString("store.url")},
		Admin: AdminConfig{
			Host:        v.GetString("admin.host"),
			Port:        v.GetInt("admin.port"),
			MetricsAddr: v.GetString("admin.metrics_addr"),
		},
		Log:        LogConfig{Level: v.GetString("log.level"), Format: v.GetString("log.format")},
		Dictionary: DictionaryConfig{Path: v.GetString("dictionary.path")},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, d *EngineConfig) {
	v.SetDefault("session.begin_string", d.Session.BeginString)
	v.SetDefault("session.sender_comp_id", "")
	v.SetDefault("session.target_comp_id", "")
	v.SetDefault("session.role", d.Session.Role.String())
	v.SetDefault("session.addr", d.Session.Addr)
	v.SetDefault("session.heartbeat_interval", d.Session.HeartbeatInterval.String())
	v.SetDefault("session.logon_timeout", d.Session.LogonTimeout.String())
	v.SetDefault("session.logout_timeout", d.Session.LogoutTimeout.String())
	v.SetDefault("session.reset_on_logon", d.Session.ResetOnLogon)
	v.SetDefault("session.max_journal", d.Session.MaxJournal)
	v.SetDefault("session.username", "")
	v.SetDefault("store.url", d.Store.URL)
	v.SetDefault("admin.host", d.Admin.Host)
	v.SetDefault("admin.port", d.Admin.Port)
	v.SetDefault("admin.metrics_addr", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("dictionary.path", "")
}

// validateConfig checks identity, timings, ports and log settings.
func validateConfig(cfg *EngineConfig) error {
	s := cfg.Session
	if err := s.Identity().Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	if s.HeartbeatInterval < 0 || s.HeartbeatInterval%time.Second != 0 {
		return fmt.Errorf("heartbeat_interval must be a non-negative whole number of seconds, got %v", s.HeartbeatInterval)
	}
	if s.LogonTimeout <= 0 {
		return fmt.Errorf("logon_timeout must be positive, got %v", s.LogonTimeout)
	}
	if s.LogoutTimeout <= 0 {
		return fmt.Errorf("logout_timeout must be positive, got %v", s.LogoutTimeout)
	}
	if s.MaxJournal <= 0 {
		return fmt.Errorf("max_journal must be positive, got %d", s.MaxJournal)
	}
	if s.Addr == "" {
		return fmt.Errorf("session.addr is required")
	}
	if cfg.Store.URL == "" {
		return fmt.Errorf("store.url is required")
	}
	if cfg.Admin.Port < 0 || cfg.Admin.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", cfg.Admin.Port)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Log.Format)
	}
	return nil
}
