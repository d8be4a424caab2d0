package cliconfig

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/bft-labs/lottery/internal/domain"
	"github.com/bft-labs/lottery/internal/protocol"
)

// DefaultPort is the TCP port the server listens on and the client dials.
const DefaultPort = 12345

// Config holds CLI configuration for both roles.
type Config struct {
	LogLevel string
	Server   ServerConfig
	Client   ClientConfig
}

// ServerConfig holds configuration for `lottery server`.
type ServerConfig struct {
	Host          string
	Port          int
	AgencyCount   int
	LedgerPath    string
	WinningNumber int
	IOTimeout     time.Duration

	// MetricsAddr enables the /metrics and /healthz listener when set.
	MetricsAddr string
}

// ClientConfig holds configuration for `lottery client`.
type ClientConfig struct {
	ServerHost   string
	ServerPort   int
	Agency       int
	LoopLapse    time.Duration
	LoopPeriod   time.Duration
	BatchMaxSize int
	BetsFile     string
	IOTimeout    time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Server:   DefaultServerConfig(),
		Client:   DefaultClientConfig(),
	}
}

// DefaultServerConfig returns a ServerConfig with default values.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:          DefaultPort,
		AgencyCount:   5,
		LedgerPath:    "bets.csv",
		WinningNumber: domain.DefaultWinningNumber,
		IOTimeout:     30 * time.Second,
	}
}

// DefaultClientConfig returns a ClientConfig with default values.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerHost:   "localhost",
		ServerPort:   DefaultPort,
		LoopLapse:    30 * time.Second,
		LoopPeriod:   time.Second,
		BatchMaxSize: 8 << 10, // 8KiB
		BetsFile:     "agency.csv",
		IOTimeout:    30 * time.Second,
	}
}

// Address returns the host:port to listen on.
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the server configuration for errors.
func (c *ServerConfig) Validate() error {
	if err := validatePort("port", c.Port); err != nil {
		return err
	}
	if c.AgencyCount <= 0 {
		return invalid("agency-count must be positive, got %d", c.AgencyCount)
	}
	if c.LedgerPath == "" {
		return invalid("ledger is required")
	}
	if c.WinningNumber < 0 {
		return invalid("winning-number must not be negative")
	}
	if c.IOTimeout < 0 {
		return invalid("io-timeout must not be negative")
	}
	return nil
}

// Address returns the host:port of the server.
func (c ClientConfig) Address() string {
	return net.JoinHostPort(c.ServerHost, strconv.Itoa(c.ServerPort))
}

// Validate checks the client configuration for errors.
func (c *ClientConfig) Validate() error {
	if c.ServerHost == "" {
		return invalid("server-host is required")
	}
	if err := validatePort("server-port", c.ServerPort); err != nil {
		return err
	}
	if c.Agency <= 0 {
		return invalid("agency must be positive, got %d", c.Agency)
	}
	if c.LoopLapse < 0 {
		return invalid("loop-lapse must not be negative")
	}
	if c.LoopPeriod < 0 {
		return invalid("loop-period must not be negative")
	}
	if c.BatchMaxSize <= protocol.HeaderSize {
		return invalid("batch-max-size must exceed %d bytes, got %d", protocol.HeaderSize, c.BatchMaxSize)
	}
	if c.BetsFile == "" {
		return invalid("bets-file is required")
	}
	if c.IOTimeout < 0 {
		return invalid("io-timeout must not be negative")
	}
	return nil
}

func validatePort(flag string, port int) error {
	if port <= 0 || port > 65535 {
		return invalid("%s must be in 1..65535, got %d", flag, port)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}
