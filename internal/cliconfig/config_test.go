package cliconfig

import (
	"errors"
	"testing"
	"time"

	"github.com/bft-labs/lottery/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != DefaultPort || cfg.Client.ServerPort != DefaultPort {
		t.Errorf("ports = %d/%d, want %d", cfg.Server.Port, cfg.Client.ServerPort, DefaultPort)
	}
	if cfg.Server.AgencyCount != 5 {
		t.Errorf("AgencyCount = %v, want 5", cfg.Server.AgencyCount)
	}
	if cfg.Server.WinningNumber != domain.DefaultWinningNumber {
		t.Errorf("WinningNumber = %v, want %v", cfg.Server.WinningNumber, domain.DefaultWinningNumber)
	}
	if cfg.Client.BatchMaxSize != 8<<10 {
		t.Errorf("BatchMaxSize = %v, want 8KiB", cfg.Client.BatchMaxSize)
	}
	if cfg.Client.LoopPeriod != time.Second {
		t.Errorf("LoopPeriod = %v, want 1s", cfg.Client.LoopPeriod)
	}

	if err := cfg.Server.Validate(); err != nil {
		t.Errorf("default server config invalid: %v", err)
	}
	// The agency id has no default.
	if err := cfg.Client.Validate(); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("default client config Validate() = %v, want ErrInvalidConfig", err)
	}
}

func TestServerConfig_Validate(t *testing.T) {
	valid := DefaultServerConfig()

	tests := []struct {
		name    string
		mutate  func(*ServerConfig)
		wantErr bool
	}{
		{"defaults", func(*ServerConfig) {}, false},
		{"zero port", func(c *ServerConfig) { c.Port = 0 }, true},
		{"port too large", func(c *ServerConfig) { c.Port = 70000 }, true},
		{"no agencies", func(c *ServerConfig) { c.AgencyCount = 0 }, true},
		{"missing ledger", func(c *ServerConfig) { c.LedgerPath = "" }, true},
		{"negative winning number", func(c *ServerConfig) { c.WinningNumber = -1 }, true},
		{"zero winning number", func(c *ServerConfig) { c.WinningNumber = 0 }, false},
		{"negative io timeout", func(c *ServerConfig) { c.IOTimeout = -time.Second }, true},
		{"io timeout disabled", func(c *ServerConfig) { c.IOTimeout = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestClientConfig_Validate(t *testing.T) {
	valid := DefaultClientConfig()
	valid.Agency = 1

	tests := []struct {
		name    string
		mutate  func(*ClientConfig)
		wantErr bool
	}{
		{"defaults with agency", func(*ClientConfig) {}, false},
		{"missing host", func(c *ClientConfig) { c.ServerHost = "" }, true},
		{"bad port", func(c *ClientConfig) { c.ServerPort = -1 }, true},
		{"negative agency", func(c *ClientConfig) { c.Agency = -3 }, true},
		{"negative loop lapse", func(c *ClientConfig) { c.LoopLapse = -1 }, true},
		{"no loop lapse", func(c *ClientConfig) { c.LoopLapse = 0 }, false},
		{"negative loop period", func(c *ClientConfig) { c.LoopPeriod = -1 }, true},
		{"batch ceiling too small", func(c *ClientConfig) { c.BatchMaxSize = 1 }, true},
		{"missing bets file", func(c *ClientConfig) { c.BetsFile = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	s := ServerConfig{Host: "", Port: 12345}
	if got := s.Address(); got != ":12345" {
		t.Errorf("ServerConfig.Address() = %q, want :12345", got)
	}

	c := ClientConfig{ServerHost: "::1", ServerPort: 80}
	if got := c.Address(); got != "[::1]:80" {
		t.Errorf("ClientConfig.Address() = %q, want [::1]:80", got)
	}
}

func TestConfigSetter(t *testing.T) {
	s := newConfigSetter(map[string]bool{"pinned": true})

	str := "flag"
	s.setString("pinned", "file", &str)
	if str != "flag" {
		t.Errorf("setString overrode a changed flag: %q", str)
	}
	s.setString("free", "", &str)
	if str != "flag" {
		t.Errorf("setString applied an empty value: %q", str)
	}
	s.setString("free", "file", &str)
	if str != "file" {
		t.Errorf("setString = %q, want file", str)
	}

	n := 7
	s.setInt("free", 0, &n)
	if n != 7 {
		t.Errorf("setInt applied a non-positive value: %d", n)
	}
	if err := s.setIntFromString("free", "-2", &n); err != nil || n != 7 {
		t.Errorf("setIntFromString(-2) = %v, n = %d; want ignored", err, n)
	}
	if err := s.setIntFromString("free", "x", &n); err == nil {
		t.Error("setIntFromString(x) returned nil error")
	}

	d := time.Second
	if err := s.setDuration("pinned", "5s", &d); err != nil || d != time.Second {
		t.Errorf("setDuration overrode a changed flag: %v, %v", d, err)
	}
	if err := s.setDuration("free", "5s", &d); err != nil || d != 5*time.Second {
		t.Errorf("setDuration = %v, %v; want 5s", d, err)
	}
}
