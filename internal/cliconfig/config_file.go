package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	LogLevel string           `toml:"log_level"`
	Server   ServerFileConfig `toml:"server"`
	Client   ClientFileConfig `toml:"client"`
}

// ServerFileConfig is the [server] table.
type ServerFileConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	AgencyCount   int    `toml:"agency_count"`
	LedgerPath    string `toml:"ledger_path"`
	WinningNumber int    `toml:"winning_number"`
	IOTimeout     string `toml:"io_timeout"`
	MetricsAddr   string `toml:"metrics_addr"`
}

// ClientFileConfig is the [client] table.
type ClientFileConfig struct {
	ServerHost   string `toml:"server_host"`
	ServerPort   int    `toml:"server_port"`
	Agency       int    `toml:"agency"`
	LoopLapse    string `toml:"loop_lapse"`
	LoopPeriod   string `toml:"loop_period"`
	BatchMaxSize int    `toml:"batch_max_size"`
	BetsFile     string `toml:"bets_file"`
	IOTimeout    string `toml:"io_timeout"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.lottery/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".lottery", "config.toml")
	}
	return ""
}

// ApplyServerFileConfig applies the [server] table and log level. It respects
// flags that have been explicitly set (changed map).
func ApplyServerFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)
	sc := &cfg.Server

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("host", fc.Server.Host, &sc.Host)
	s.setString("ledger", fc.Server.LedgerPath, &sc.LedgerPath)
	s.setString("metrics-addr", fc.Server.MetricsAddr, &sc.MetricsAddr)

	s.setInt("port", fc.Server.Port, &sc.Port)
	s.setInt("agency-count", fc.Server.AgencyCount, &sc.AgencyCount)
	s.setInt("winning-number", fc.Server.WinningNumber, &sc.WinningNumber)

	return s.setDuration("io-timeout", fc.Server.IOTimeout, &sc.IOTimeout)
}

// ApplyClientFileConfig applies the [client] table and log level. It respects
// flags that have been explicitly set (changed map).
func ApplyClientFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)
	cc := &cfg.Client

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("server-host", fc.Client.ServerHost, &cc.ServerHost)
	s.setString("bets-file", fc.Client.BetsFile, &cc.BetsFile)

	s.setInt("server-port", fc.Client.ServerPort, &cc.ServerPort)
	s.setInt("agency", fc.Client.Agency, &cc.Agency)
	s.setInt("batch-max-size", fc.Client.BatchMaxSize, &cc.BatchMaxSize)

	if err := s.setDuration("loop-lapse", fc.Client.LoopLapse, &cc.LoopLapse); err != nil {
		return err
	}
	if err := s.setDuration("loop-period", fc.Client.LoopPeriod, &cc.LoopPeriod); err != nil {
		return err
	}
	return s.setDuration("io-timeout", fc.Client.IOTimeout, &cc.IOTimeout)
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
