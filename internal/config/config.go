// Package config loads pleezer's options (CLI/env, spec.md §6) and
// secrets (secrets.toml), using a viper-based Load/Validate/setDefaults
// pattern adapted from a JSON settings file to a TOML secrets file plus
// PLEEZER_* environment overrides.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Secrets is the contents of secrets.toml: an ARL and/or an email/password
// pair (spec.md §6). cmd/pleezer logs in with the ARL only and rejects
// secrets that do not set one; the email/password pair is not exchanged
// for an ARL.
type Secrets struct {
	ARL      string `mapstructure:"arl"`
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

// Validate ensures at least one credential form is complete.
func (s Secrets) Validate() error {
	if s.ARL == "" && (s.Email == "" || s.Password == "") {
		return fmt.Errorf("secrets.toml must set either arl, or both email and password")
	}
	return nil
}

// Device is the --device flag's host|device|rate|fmt tuple.
type Device struct {
	Host   string
	Name   string
	Rate   int
	Format string
}

// Config is pleezer's merged CLI/env configuration (spec.md §6). Every
// field is settable via flag or the mirrored PLEEZER_<OPT> environment
// variable; CLI flag parsing itself belongs to cmd/pleezer (out of scope
// here per spec.md §1), which binds its pflag.FlagSet into the same
// viper instance before Unmarshal.
type Config struct {
	SecretsPath     string  `mapstructure:"secrets"`
	Name            string  `mapstructure:"name"`
	DeviceSpec      string  `mapstructure:"device"`
	DeviceType      string  `mapstructure:"device_type"`
	NoInterruptions bool    `mapstructure:"no_interruptions"`
	InitialVolume   int     `mapstructure:"initial_volume"`
	NormalizeVolume bool    `mapstructure:"normalize_volume"`
	Loudness        bool    `mapstructure:"loudness"`
	DitherBits      float64 `mapstructure:"dither_bits"`
	NoiseShaping    int     `mapstructure:"noise_shaping"`
	MaxRAMMiB       int     `mapstructure:"max_ram"`
	Bind            string  `mapstructure:"bind"`
	Hook            string  `mapstructure:"hook"`
	Eavesdrop       bool    `mapstructure:"eavesdrop"`
	MetricsAddr     string  `mapstructure:"metrics_addr"`
}

// Load builds a viper instance seeded with spec.md §6's defaults, applies
// PLEEZER_* environment overrides, and returns the merged Config. Pass a
// configurator (typically v.BindPFlags from the CLI layer) to layer flags
// on top; pass nil to use defaults+env only (as tests do).
func Load(configure func(*viper.Viper) error) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PLEEZER")
	v.AutomaticEnv()

	if configure != nil {
		if err := configure(v); err != nil {
			return nil, fmt.Errorf("apply flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate enforces the ranges spec.md §6 documents for each option.
func (c *Config) Validate() error {
	if c.InitialVolume < 0 || c.InitialVolume > 100 {
		return fmt.Errorf("initial-volume must be in [0,100], got %d", c.InitialVolume)
	}
	if c.NoiseShaping < 0 || c.NoiseShaping > 7 {
		return fmt.Errorf("noise-shaping must be in [0,7], got %d", c.NoiseShaping)
	}
	if c.DitherBits < 0 {
		return fmt.Errorf("dither-bits must be >= 0 (0 disables dither)")
	}
	if c.MaxRAMMiB < 0 {
		return fmt.Errorf("max-ram must be >= 0")
	}
	if c.Bind != "" && net.ParseIP(c.Bind) == nil {
		return fmt.Errorf("bind must be a valid IP address, got %q", c.Bind)
	}
	return nil
}

// ParsedDevice splits DeviceSpec. Segments left unset by the user are
// zero-valued and resolved by the device package's defaulting logic.
func (c *Config) ParsedDevice() Device {
	parts := splitN(c.DeviceSpec, '|', 4)
	var d Device
	if len(parts) > 0 {
		d.Host = parts[0]
	}
	if len(parts) > 1 {
		d.Name = parts[1]
	}
	if len(parts) > 2 {
		fmt.Sscanf(parts[2], "%d", &d.Rate)
	}
	if len(parts) > 3 {
		d.Format = parts[3]
	}
	return d
}

func splitN(s string, sep byte, n int) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, n)
	start := 0
	for i := 0; i < len(s) && len(out) < n-1; i++ {
		if s[i] == sep {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("secrets", DefaultSecretsPath())
	v.SetDefault("name", "pleezer")
	v.SetDefault("device", "")
	v.SetDefault("device_type", "web")
	v.SetDefault("no_interruptions", false)
	v.SetDefault("initial_volume", 100)
	v.SetDefault("normalize_volume", false)
	v.SetDefault("loudness", false)
	v.SetDefault("dither_bits", 0.0)
	v.SetDefault("noise_shaping", 0)
	v.SetDefault("max_ram", 32)
	v.SetDefault("bind", "")
	v.SetDefault("hook", "")
	v.SetDefault("eavesdrop", false)
	v.SetDefault("metrics_addr", "")
}

// DefaultSecretsPath returns ~/.config/pleezer/secrets.toml.
func DefaultSecretsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "secrets.toml"
	}
	return filepath.Join(home, ".config", "pleezer", "secrets.toml")
}

// LoadSecrets reads and validates secrets.toml at path. Its size limit is
// generous (viper has none of its own) to accommodate multi-KiB ARLs per
// spec.md §6.
func LoadSecrets(path string) (Secrets, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return Secrets{}, fmt.Errorf("read secrets: %w", err)
	}

	var s Secrets
	if err := v.Unmarshal(&s); err != nil {
		return Secrets{}, fmt.Errorf("unmarshal secrets: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Secrets{}, err
	}
	return s, nil
}
