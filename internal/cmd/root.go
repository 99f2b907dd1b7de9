package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dativo-io/piiscan/internal/otel"
)

var tracer = otel.Tracer("github.com/dativo-io/piiscan/internal/cmd")

// Version info injected via ldflags at build time.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Global flags.
var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
	otelFlag  bool
)

// otelShutdown is set by prepareRun and flushed by Execute.
var otelShutdown otel.Shutdown

var rootCmd = &cobra.Command{
	Use:   "piiscan",
	Short: "PII detection and redaction",
	Long: `piiscan finds personal data in free text and catalog metadata.

Each candidate span is scored by:
- Rule recognizers with checksum validation
- An entity recognizer that only sees redacted context
- An embedding classifier over the same redacted context

Scores are fused and calibrated into per-type probabilities. Raw values
never leave the process and never reach the logs.`,
	SilenceUsage:      true,
	PersistentPreRunE: prepareRun,
}

func prepareRun(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd.ErrOrStderr())

	shutdown, err := otel.Setup(otel.Options{
		ServiceName: "piiscan",
		Version:     resolvedVersion(),
		Enabled:     otelFlag || os.Getenv("PIISCAN_OTEL_ENABLED") == "true",
		Writer:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return fmt.Errorf("initializing OpenTelemetry: %w", err)
	}
	otelShutdown = shutdown
	return nil
}

// setupLogging points the global logger at w. Results go to stdout, so
// logs never do.
func setupLogging(w io.Writer) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if logFormat != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger().Hook(otel.TraceHook{})
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./piiscan.config.yaml or ~/.piiscan/piiscan.config.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	flags.BoolVar(&otelFlag, "otel", false, "export traces and metrics to stderr")
}

// initConfig points the global Viper at the config file. Env binding and
// defaults are registered by the config package.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".piiscan"))
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("piiscan.config")
		viper.SetConfigType("yaml")
	}
	// A missing file is fine; config.Load falls back to defaults and env.
	_ = viper.ReadInConfig()
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command's
// context so batch scans stop between records; telemetry is flushed last.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if otelShutdown != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if ferr := otelShutdown(flushCtx); ferr != nil {
			log.Warn().Err(ferr).Msg("otel_flush_failed")
		}
	}
	return err
}
