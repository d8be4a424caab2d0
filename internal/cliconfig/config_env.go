package cliconfig

import "os"

// EnvPrefix prefixes every environment variable read by the CLI.
const EnvPrefix = "LOTTERY_"

// ApplyServerEnvConfig applies LOTTERY_* variables for the server role.
// These override file config but are overridden by flags.
func ApplyServerEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	sc := &cfg.Server

	s.setString("log-level", os.Getenv(EnvPrefix+"LOG_LEVEL"), &cfg.LogLevel)
	s.setString("host", os.Getenv(EnvPrefix+"HOST"), &sc.Host)
	s.setString("ledger", os.Getenv(EnvPrefix+"LEDGER_PATH"), &sc.LedgerPath)
	s.setString("metrics-addr", os.Getenv(EnvPrefix+"METRICS_ADDR"), &sc.MetricsAddr)

	if err := s.setIntFromString("port", os.Getenv(EnvPrefix+"PORT"), &sc.Port); err != nil {
		return err
	}
	if err := s.setIntFromString("agency-count", os.Getenv(EnvPrefix+"AGENCY_COUNT"), &sc.AgencyCount); err != nil {
		return err
	}
	if err := s.setIntFromString("winning-number", os.Getenv(EnvPrefix+"WINNING_NUMBER"), &sc.WinningNumber); err != nil {
		return err
	}

	return s.setDuration("io-timeout", os.Getenv(EnvPrefix+"IO_TIMEOUT"), &sc.IOTimeout)
}

// ApplyClientEnvConfig applies LOTTERY_* variables for the client role.
// These override file config but are overridden by flags.
func ApplyClientEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)
	cc := &cfg.Client

	s.setString("log-level", os.Getenv(EnvPrefix+"LOG_LEVEL"), &cfg.LogLevel)
	s.setString("server-host", os.Getenv(EnvPrefix+"SERVER_HOST"), &cc.ServerHost)
	s.setString("bets-file", os.Getenv(EnvPrefix+"BETS_FILE"), &cc.BetsFile)

	if err := s.setIntFromString("server-port", os.Getenv(EnvPrefix+"SERVER_PORT"), &cc.ServerPort); err != nil {
		return err
	}
	if err := s.setIntFromString("agency", os.Getenv(EnvPrefix+"AGENCY"), &cc.Agency); err != nil {
		return err
	}
	if err := s.setIntFromString("batch-max-size", os.Getenv(EnvPrefix+"BATCH_MAX_SIZE"), &cc.BatchMaxSize); err != nil {
		return err
	}

	if err := s.setDuration("loop-lapse", os.Getenv(EnvPrefix+"LOOP_LAPSE"), &cc.LoopLapse); err != nil {
		return err
	}
	if err := s.setDuration("loop-period", os.Getenv(EnvPrefix+"LOOP_PERIOD"), &cc.LoopPeriod); err != nil {
		return err
	}
	return s.setDuration("io-timeout", os.Getenv(EnvPrefix+"IO_TIMEOUT"), &cc.IOTimeout)
}
