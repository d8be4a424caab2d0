package cliconfig

import (
	"testing"
	"time"
)

func TestApplyServerEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		expected ServerConfig
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"LOTTERY_HOST":           "127.0.0.1",
				"LOTTERY_PORT":           "5000",
				"LOTTERY_AGENCY_COUNT":   "2",
				"LOTTERY_LEDGER_PATH":    "/tmp/bets.csv",
				"LOTTERY_WINNING_NUMBER": "1234",
				"LOTTERY_IO_TIMEOUT":     "1m",
				"LOTTERY_METRICS_ADDR":   ":9100",
			},
			changed: map[string]bool{},
			expected: ServerConfig{
				Host:          "127.0.0.1",
				Port:          5000,
				AgencyCount:   2,
				LedgerPath:    "/tmp/bets.csv",
				WinningNumber: 1234,
				IOTimeout:     time.Minute,
				MetricsAddr:   ":9100",
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"LOTTERY_PORT":         "5000",
				"LOTTERY_AGENCY_COUNT": "2",
			},
			changed: map[string]bool{"port": true},
			expected: func() ServerConfig {
				c := DefaultServerConfig()
				c.AgencyCount = 2
				return c
			}(),
		},
		{
			name:    "returns error for invalid int",
			envVars: map[string]string{"LOTTERY_AGENCY_COUNT": "five"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid duration",
			envVars: map[string]string{"LOTTERY_IO_TIMEOUT": "not-a-duration"},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := DefaultConfig()
			err := ApplyServerEnvConfig(&cfg, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyServerEnvConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyServerEnvConfig() unexpected error: %v", err)
			}
			if cfg.Server != tt.expected {
				t.Errorf("Server = %+v, want %+v", cfg.Server, tt.expected)
			}
		})
	}
}

func TestApplyClientEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		expected ClientConfig
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"LOTTERY_SERVER_HOST":    "server",
				"LOTTERY_SERVER_PORT":    "5000",
				"LOTTERY_AGENCY":         "4",
				"LOTTERY_LOOP_LAPSE":     "2m",
				"LOTTERY_LOOP_PERIOD":    "100ms",
				"LOTTERY_BATCH_MAX_SIZE": "1024",
				"LOTTERY_BETS_FILE":      "/data/agency-4.csv",
				"LOTTERY_IO_TIMEOUT":     "3s",
			},
			changed: map[string]bool{},
			expected: ClientConfig{
				ServerHost:   "server",
				ServerPort:   5000,
				Agency:       4,
				LoopLapse:    2 * time.Minute,
				LoopPeriod:   100 * time.Millisecond,
				BatchMaxSize: 1024,
				BetsFile:     "/data/agency-4.csv",
				IOTimeout:    3 * time.Second,
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"LOTTERY_AGENCY":    "4",
				"LOTTERY_BETS_FILE": "/data/agency-4.csv",
			},
			changed: map[string]bool{"agency": true},
			expected: func() ClientConfig {
				c := DefaultClientConfig()
				c.BetsFile = "/data/agency-4.csv"
				return c
			}(),
		},
		{
			name:    "returns error for invalid agency",
			envVars: map[string]string{"LOTTERY_AGENCY": "x"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid loop period",
			envVars: map[string]string{"LOTTERY_LOOP_PERIOD": "often"},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := DefaultConfig()
			err := ApplyClientEnvConfig(&cfg, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyClientEnvConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyClientEnvConfig() unexpected error: %v", err)
			}
			if cfg.Client != tt.expected {
				t.Errorf("Client = %+v, want %+v", cfg.Client, tt.expected)
			}
		})
	}
}

func TestApplyEnvConfig_LogLevel(t *testing.T) {
	t.Setenv("LOTTERY_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	if err := ApplyServerEnvConfig(&cfg, map[string]bool{}); err != nil {
		t.Fatalf("ApplyServerEnvConfig() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %v, want warn", cfg.LogLevel)
	}

	cfg = DefaultConfig()
	if err := ApplyClientEnvConfig(&cfg, map[string]bool{"log-level": true}); err != nil {
		t.Fatalf("ApplyClientEnvConfig() error = %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %v, want info when the flag is set", cfg.LogLevel)
	}
}
