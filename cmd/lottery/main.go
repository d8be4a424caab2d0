package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	logAdapter "github.com/bft-labs/lottery/internal/adapters/log"
	"github.com/bft-labs/lottery/internal/adapters/fs"
	"github.com/bft-labs/lottery/internal/app"
	"github.com/bft-labs/lottery/internal/cliconfig"
	"github.com/bft-labs/lottery/internal/domain"
	"github.com/bft-labs/lottery/internal/metrics"
	"github.com/bft-labs/lottery/internal/ports"
)

var longHelp = strings.TrimSpace(`
Collect bets from betting agencies and run the draw once every agency is done.

The server stores each agency's bets in an append-only ledger, waits for every
agency to announce it has finished, and then answers each agency with the
documents of its winning bets. The client submits one agency's bets file in
batches, announces completion, and waits for its winners.

Configuration is read from flags, then LOTTERY_* environment variables, then
the TOML config file, then built-in defaults.
`)

var exampleUsage = strings.TrimSpace(`
  lottery server --agency-count 5 --ledger /var/lib/lottery/bets.csv
  lottery client --agency 1 --bets-file agency-1.csv --server-host server
  lottery --config $HOME/.lottery/config.toml server --metrics-addr :9100
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// Role-specific configuration layers.
type (
	applyFileFunc func(cfg *cliconfig.Config, fc cliconfig.FileConfig, changed map[string]bool) error
	applyEnvFunc  func(cfg *cliconfig.Config, changed map[string]bool) error
)

// loadConfig layers the config file and environment under the flags the user
// set on cmd. It returns the config file path when one was loaded.
func loadConfig(
	cmd *cobra.Command,
	cfg *cliconfig.Config,
	cfgPath string,
	applyFile applyFileFunc,
	applyEnv applyEnvFunc,
) (string, map[string]bool, error) {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	loaded := ""
	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return "", nil, fmt.Errorf("load config: %w", err)
		}
		if err := applyFile(cfg, fc, changed); err != nil {
			return "", nil, err
		}
		loaded = cfgFile
	}

	if err := applyEnv(cfg, changed); err != nil {
		return "", nil, err
	}

	if err := cliconfig.ApplyLogLevel(cfg.LogLevel); err != nil {
		return "", nil, err
	}
	return loaded, changed, nil
}

// watchLogLevel reloads log_level from cfgFile unless the level was pinned by
// a flag or the environment.
func watchLogLevel(ctx context.Context, cfgFile string, changed map[string]bool, logger ports.Logger) {
	if cfgFile == "" || changed["log-level"] || os.Getenv(cliconfig.EnvPrefix+"LOG_LEVEL") != "" {
		return
	}
	if err := cliconfig.NewLevelWatcher(cfgFile, logger).Start(ctx); err != nil {
		logger.Warn("config watcher disabled", ports.Err(err))
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func newServerCommand(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Accept bets from agencies and run the draw",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile, changed, err := loadConfig(cmd, cfg, *cfgPath,
				cliconfig.ApplyServerFileConfig, cliconfig.ApplyServerEnvConfig)
			if err != nil {
				return err
			}
			sc := cfg.Server
			if err := sc.Validate(); err != nil {
				return err
			}

			log := cliconfig.Logger()
			log.Info().Interface("config", sc).Msg("configuration")
			logger := logAdapter.NewZerologAdapter(log).With(ports.String("role", "server"))

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			watchLogLevel(ctx, cfgFile, changed, logger)

			ledger, err := fs.OpenLedger(sc.LedgerPath)
			if err != nil {
				return err
			}
			defer func() {
				if err := ledger.Close(); err != nil {
					logger.Error("failed to close ledger", ports.Err(err))
				}
			}()

			var (
				emitter      app.ServerEventEmitter
				stateEmitter app.EventEmitter
				reg          *prometheus.Registry
			)
			if sc.MetricsAddr != "" {
				reg = prometheus.NewRegistry()
				reg.MustRegister(
					collectors.NewGoCollector(),
					collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
				)
				c := metrics.NewCollectors(reg, sc.AgencyCount)
				emitter, stateEmitter = c, c
			}

			srv := app.NewServer(app.ServerConfig{
				Address:     sc.Address(),
				AgencyCount: sc.AgencyCount,
				IOTimeout:   sc.IOTimeout,
				WinningRule: domain.NumberRule(sc.WinningNumber),
			}, ledger, logger, emitter, stateEmitter)

			if reg != nil {
				health := func(context.Context) error {
					if s := srv.Status(); s != app.StateRunning {
						return fmt.Errorf("server is %s", s)
					}
					return nil
				}
				if _, err := metrics.Serve(ctx, sc.MetricsAddr, metrics.NewHandler(reg, health), logger); err != nil {
					return err
				}
			}

			err = srv.Run(ctx)
			logger.Info("server stopped")
			return err
		},
	}

	defaults := cliconfig.DefaultServerConfig()
	f := cmd.Flags()
	f.StringVar(&cfg.Server.Host, "host", defaults.Host, "address to listen on (empty for all interfaces)")
	f.IntVar(&cfg.Server.Port, "port", defaults.Port, "TCP port to listen on")
	f.IntVar(&cfg.Server.AgencyCount, "agency-count", defaults.AgencyCount, "number of agencies that must finish before the draw")
	f.StringVar(&cfg.Server.LedgerPath, "ledger", defaults.LedgerPath, "path of the bets ledger file")
	f.IntVar(&cfg.Server.WinningNumber, "winning-number", defaults.WinningNumber, "number that wins the draw")
	f.DurationVar(&cfg.Server.IOTimeout, "io-timeout", defaults.IOTimeout, "per-frame read/write timeout (0 disables)")
	f.StringVar(&cfg.Server.MetricsAddr, "metrics-addr", defaults.MetricsAddr, "address for /metrics and /healthz (empty disables)")

	return cmd
}

func newClientCommand(cfg *cliconfig.Config, cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Submit an agency's bets and wait for its winners",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile, changed, err := loadConfig(cmd, cfg, *cfgPath,
				cliconfig.ApplyClientFileConfig, cliconfig.ApplyClientEnvConfig)
			if err != nil {
				return err
			}
			cc := cfg.Client
			if err := cc.Validate(); err != nil {
				return err
			}

			log := cliconfig.Logger()
			log.Info().Interface("config", cc).Msg("configuration")
			logger := logAdapter.NewZerologAdapter(log).With(
				ports.String("role", "client"),
				ports.Int("agency", cc.Agency),
			)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			watchLogLevel(ctx, cfgFile, changed, logger)

			source, err := fs.OpenBetSource(cc.BetsFile, cc.Agency)
			if err != nil {
				return err
			}
			defer source.Close()

			client := app.NewClient(app.ClientConfig{
				ServerAddress: cc.Address(),
				Agency:        cc.Agency,
				LoopLapse:     cc.LoopLapse,
				LoopPeriod:    cc.LoopPeriod,
				BatchMaxSize:  cc.BatchMaxSize,
				IOTimeout:     cc.IOTimeout,
			}, source, logger)

			report, err := client.Run(ctx)
			if err != nil {
				return err
			}
			logger.Info("client finished",
				ports.Int("bets_sent", report.BetsSent),
				ports.Int("batches", report.Batches),
				ports.Bool("timed_out", report.TimedOut),
				ports.Int("winners", len(report.Winners)),
			)
			return nil
		},
	}

	defaults := cliconfig.DefaultClientConfig()
	f := cmd.Flags()
	f.StringVar(&cfg.Client.ServerHost, "server-host", defaults.ServerHost, "lottery server host")
	f.IntVar(&cfg.Client.ServerPort, "server-port", defaults.ServerPort, "lottery server port")
	f.IntVar(&cfg.Client.Agency, "agency", defaults.Agency, "agency id (required)")
	f.DurationVar(&cfg.Client.LoopLapse, "loop-lapse", defaults.LoopLapse, "maximum time spent sending batches (0 disables)")
	f.DurationVar(&cfg.Client.LoopPeriod, "loop-period", defaults.LoopPeriod, "pause between batches")
	f.IntVar(&cfg.Client.BatchMaxSize, "batch-max-size", defaults.BatchMaxSize, "maximum encoded bytes per BET message")
	f.StringVar(&cfg.Client.BetsFile, "bets-file", defaults.BetsFile, "CSV file with the agency's bets")
	f.DurationVar(&cfg.Client.IOTimeout, "io-timeout", defaults.IOTimeout, "per-frame read/write timeout (0 disables)")

	return cmd
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger()

	root := &cobra.Command{
		Use:           "lottery",
		Short:         "Agency bet collection server and client",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.lottery/config.toml)")
	root.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(
		newServerCommand(&cfg, &cfgPath),
		newClientCommand(&cfg, &cfgPath),
	)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("lottery")
		os.Exit(1)
	}
}
