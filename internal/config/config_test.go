package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nat64io/natd/internal/config"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "natd.yml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}

const baseYAML = `
pool4:
  - addr: "203.0.113.1"
    min_id: 1024
    max_id: 65535
    stride: 1
pool6:
  - "64:ff9b::/96"
`

func TestDefaultConfig_FailsValidationWithoutPools(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Admin.Addr != ":8064" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":8064")
	}
	if cfg.Sessions.UDPTimeout != 5*time.Minute {
		t.Errorf("Sessions.UDPTimeout = %v, want %v", cfg.Sessions.UDPTimeout, 5*time.Minute)
	}
	if cfg.Sessions.TCPTimeout != 2*time.Hour {
		t.Errorf("Sessions.TCPTimeout = %v, want %v", cfg.Sessions.TCPTimeout, 2*time.Hour)
	}
	if cfg.Reaper.Interval != 10*time.Second {
		t.Errorf("Reaper.Interval = %v, want %v", cfg.Reaper.Interval, 10*time.Second)
	}

	// DefaultConfig deliberately ships no pool4/pool6 entries -- an
	// operator must configure at least one of each -- so validating the
	// bare defaults must fail, not silently pass with an unusable pool.
	if err := config.Validate(cfg); err == nil {
		t.Error("Validate(DefaultConfig()) = nil, want an error for missing pools")
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	path := writeTemp(t, baseYAML+`
admin:
  addr: ":9999"
log:
  level: "debug"
sessions:
  udp_timeout: "1m"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Admin.Addr != ":9999" {
		t.Errorf("Admin.Addr = %q, want %q", cfg.Admin.Addr, ":9999")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Sessions.UDPTimeout != time.Minute {
		t.Errorf("Sessions.UDPTimeout = %v, want %v", cfg.Sessions.UDPTimeout, time.Minute)
	}
	// Untouched defaults must survive the overlay.
	if cfg.Sessions.TCPTimeout != 2*time.Hour {
		t.Errorf("Sessions.TCPTimeout = %v, want default %v", cfg.Sessions.TCPTimeout, 2*time.Hour)
	}
	if len(cfg.Pool4) != 1 || cfg.Pool4[0].Addr != "203.0.113.1" {
		t.Errorf("Pool4 = %+v, want one range for 203.0.113.1", cfg.Pool4)
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name:    "empty admin addr",
			modify:  func(cfg *config.Config) { cfg.Admin.Addr = "" },
			wantErr: config.ErrEmptyAdminAddr,
		},
		{
			name:    "no pool4 ranges",
			modify:  func(cfg *config.Config) { cfg.Pool4 = nil },
			wantErr: config.ErrNoPool4Ranges,
		},
		{
			name:    "no pool6 prefixes",
			modify:  func(cfg *config.Config) { cfg.Pool6 = nil },
			wantErr: config.ErrNoPool6Prefixes,
		},
		{
			name:    "zero udp timeout",
			modify:  func(cfg *config.Config) { cfg.Sessions.UDPTimeout = 0 },
			wantErr: config.ErrInvalidSessionTimeout,
		},
		{
			name:    "zero reaper interval",
			modify:  func(cfg *config.Config) { cfg.Reaper.Interval = 0 },
			wantErr: config.ErrInvalidReaperInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func validConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Pool4 = []config.Pool4Range{
		{Addr: "203.0.113.1", MinID: 1024, MaxID: 65535, Stride: 1},
	}
	cfg.Pool6 = []string{"64:ff9b::/96"}
	return cfg
}
