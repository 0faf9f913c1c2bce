package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid defaults",
			config: Config{InitialVolume: 100, NoiseShaping: 0, DitherBits: 0, MaxRAMMiB: 32},
		},
		{
			name:    "volume out of range",
			config:  Config{InitialVolume: 101, MaxRAMMiB: 32},
			wantErr: true,
		},
		{
			name:    "negative volume",
			config:  Config{InitialVolume: -1, MaxRAMMiB: 32},
			wantErr: true,
		},
		{
			name:    "noise shaping out of range",
			config:  Config{InitialVolume: 50, NoiseShaping: 8, MaxRAMMiB: 32},
			wantErr: true,
		},
		{
			name:    "negative dither bits",
			config:  Config{InitialVolume: 50, DitherBits: -1, MaxRAMMiB: 32},
			wantErr: true,
		},
		{
			name:    "invalid bind address",
			config:  Config{InitialVolume: 50, MaxRAMMiB: 32, Bind: "not-an-ip"},
			wantErr: true,
		},
		{
			name:   "valid bind address",
			config: Config{InitialVolume: 50, MaxRAMMiB: 32, Bind: "127.0.0.1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Name != "pleezer" {
		t.Errorf("expected default name pleezer, got %q", cfg.Name)
	}
	if cfg.InitialVolume != 100 {
		t.Errorf("expected default initial volume 100, got %d", cfg.InitialVolume)
	}
	if cfg.MaxRAMMiB != 32 {
		t.Errorf("expected default max-ram 32, got %d", cfg.MaxRAMMiB)
	}
}

func TestParsedDevice(t *testing.T) {
	cfg := &Config{DeviceSpec: "localhost|speakers|48000|f32"}
	d := cfg.ParsedDevice()
	if d.Host != "localhost" || d.Name != "speakers" || d.Rate != 48000 || d.Format != "f32" {
		t.Errorf("unexpected parsed device: %+v", d)
	}
}

func TestParsedDevicePartial(t *testing.T) {
	cfg := &Config{DeviceSpec: "?"}
	d := cfg.ParsedDevice()
	if d.Host != "?" || d.Name != "" || d.Rate != 0 {
		t.Errorf("unexpected parsed device for enumerate-devices spec: %+v", d)
	}
}

func TestLoadSecretsARL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.toml")
	if err := os.WriteFile(path, []byte(`arl = "some-long-arl-value"`+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSecrets(path)
	if err != nil {
		t.Fatalf("LoadSecrets() error = %v", err)
	}
	if s.ARL != "some-long-arl-value" {
		t.Errorf("expected arl to round-trip, got %q", s.ARL)
	}
}

func TestLoadSecretsCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.toml")
	content := "email = \"user@example.com\"\npassword = \"hunter2\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSecrets(path)
	if err != nil {
		t.Fatalf("LoadSecrets() error = %v", err)
	}
	if s.Email != "user@example.com" || s.Password != "hunter2" {
		t.Errorf("unexpected secrets: %+v", s)
	}
}

func TestLoadSecretsMissingCredentials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.toml")
	if err := os.WriteFile(path, []byte("name = \"nothing-useful\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadSecrets(path); err == nil {
		t.Error("expected error for secrets.toml lacking arl or email/password")
	}
}
