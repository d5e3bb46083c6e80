package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kronigert/timsCompare/internal/config"
	"github.com/kronigert/timsCompare/internal/logging"
	"github.com/kronigert/timsCompare/internal/session"
	"github.com/kronigert/timsCompare/internal/telemetry"
	"github.com/kronigert/timsCompare/internal/ui"
)

// errDifferences is returned by compare --fail-on-diff. Its message is the
// diff summary already printed, so Execute only sets the exit code.
var errDifferences = errors.New("differences found")

var rootCmd = &cobra.Command{
	Use:   "timscompare",
	Short: "Compare timsTOF acquisition methods",
	Long: `timscompare reads Bruker timsTOF .d method directories, normalizes their
parameters and shows them side by side, exports window geometry, and serves
the same operations over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errors.Is(err, errDifferences) {
			ui.New(os.Stderr).Error(err.Error())
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default .timscompare.yaml)")
	pf.BoolP("verbose", "v", false, "log to stderr in console format")
	pf.String("log-level", "", "minimum log level: debug, info, warn, error")
	pf.String("ion-source", "", "ion source name recorded on every dataset")
	pf.Int("workers", 0, "concurrent loads")
	pf.String("telemetry", "", "append session events as JSONL to this file")

	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("ion_source", pf.Lookup("ion-source"))
	_ = viper.BindPFlag("workers", pf.Lookup("workers"))
	_ = viper.BindPFlag("telemetry_path", pf.Lookup("telemetry"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if err := config.Setup(cfgFile); err != nil {
		ui.New(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}

// app is the per-invocation wiring of config, logger, telemetry and session.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	events  *telemetry.Emitter
	session *session.Session
	out     *ui.Printer
	errOut  *ui.Printer

	closeLog func() error
}

// newApp loads configuration and builds the session for cmd.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	opts := []logging.Option{
		logging.WithLevel(cfg.LogLevel),
		logging.WithDevelopment(cfg.Verbose),
		logging.WithStderr(cfg.Verbose),
		logging.WithFields(map[string]any{"command": cmd.Name()}),
	}
	if cfg.LogFile {
		opts = append(opts, logging.WithFile(cfg.LogDir, logging.DefaultMaxBytes, logging.DefaultBackups))
	}
	log, closeLog := logging.New(opts...)

	var events *telemetry.Emitter
	if cfg.TelemetryPath != "" {
		events, err = telemetry.NewEmitter(cfg.TelemetryPath)
		if err != nil {
			_ = closeLog()
			return nil, err
		}
	}

	s := session.New(
		session.WithIonSource(cfg.IonSource),
		session.WithRelativeTolerance(cfg.RelativeTolerance),
		session.WithWorkers(cfg.Workers),
		session.WithLogger(log),
		session.WithTelemetry(events),
	)
	return &app{
		cfg:      cfg,
		log:      log,
		events:   events,
		session:  s,
		out:      ui.New(cmd.OutOrStdout()),
		errOut:   ui.New(cmd.ErrOrStderr()),
		closeLog: closeLog,
	}, nil
}

func (a *app) Close() {
	a.session.Clear()
	if err := a.events.Close(); err != nil {
		a.log.Warn("closing telemetry", zap.Error(err))
	}
	_ = a.closeLog()
}

// load loads paths into the session, printing one line per path to stderr.
// It fails only when no path could be loaded.
func (a *app) load(cmd *cobra.Command, paths []string) ([]*session.Entry, error) {
	results := a.session.LoadAll(cmd.Context(), paths)
	var entries []*session.Entry
	var errs []error
	for _, res := range results {
		a.errOut.LoadResult(res)
		if res.Err != nil {
			errs = append(errs, res.Err)
			continue
		}
		entries = append(entries, res.Entry)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no dataset loaded: %w", errors.Join(errs...))
	}
	return entries, nil
}
