package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/netsweep/network-survey-agent/internal/config"
	"github.com/netsweep/network-survey-agent/internal/handlers"
	"github.com/netsweep/network-survey-agent/internal/models"
	"github.com/netsweep/network-survey-agent/internal/server"
	"github.com/netsweep/network-survey-agent/internal/services"
	"github.com/netsweep/network-survey-agent/internal/store"
	"github.com/netsweep/network-survey-agent/internal/store/migrations"
	"github.com/netsweep/network-survey-agent/pkg/netscan"
	"github.com/netsweep/network-survey-agent/pkg/pipeline"
)

const envPrefix = "NETSWEEP"

var rootCmd = &cobra.Command{
	Use:   "survey-agent",
	Short: "Parallel network survey agent",
	Long: `survey-agent enumerates the given subnets, probes every address through
a dynamic worker pool, and records the discovered hosts in a local
inventory. Results can be exported as an Excel report or served over a
small HTTP API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringSlice("targets", nil, "subnets or addresses to survey (CIDR or single IP)")
	flags.Int("max-pipelines", 10, "maximum concurrent probe workers")
	flags.Duration("timeout", 8760*time.Hour, "abort the survey after this duration")
	flags.Duration("probe-timeout", 2*time.Second, "per-connection probe timeout")
	flags.IntSlice("ports", nil, "TCP ports to sweep per host")
	flags.String("output", "survey-report.xlsx", "report path; empty disables the report")
	flags.Bool("no-progress", false, "disable progress output")
	flags.String("data", "", "data folder for the inventory database; empty keeps it in memory")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "console", "log format (console, json)")
	flags.Bool("serve", false, "keep running and serve the HTTP API")
	flags.Int("port", 8000, "HTTP API port")

	cobra.OnInitialize(initViper)
}

// initViper wires NETSWEEP_* environment variables to the flag keys; dashed
// flag names map to underscored variables (max-pipelines becomes
// NETSWEEP_MAX_PIPELINES).
func initViper() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		return err
	}
	return nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfiguration(cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	log := zap.S().Named("agent")
	log.Debugw("configuration loaded", "config", cfg.DebugMap())

	if len(cfg.Scan.Targets) == 0 && !cfg.Server.Enabled {
		return errors.New("no targets given: set --targets or run with --serve")
	}

	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	prober := netscan.NewProber(cfg.Scan.Ports, cfg.Scan.ProbeTimeout)

	var opts []services.SurveyOption
	if !cfg.Agent.NoProgress {
		opts = append(opts, services.WithProgressSink(renderProgress))
	}
	surveySrv := services.NewSurveyService(cfg, prober, st, opts...)

	if cfg.Server.Enabled {
		return serve(cmd.Context(), cfg, st, surveySrv)
	}

	return runOnce(cmd.Context(), cfg, st, surveySrv)
}

// runOnce drives a single survey to completion, canceling it cooperatively
// on the first interrupt.
func runOnce(ctx context.Context, cfg *config.Configuration, st *store.Store, surveySrv *services.SurveyService) error {
	id, err := surveySrv.Start(ctx)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		surveySrv.Cancel()
	}()

	status := surveySrv.Wait(context.Background())
	if !cfg.Agent.NoProgress {
		fmt.Fprintln(os.Stderr)
	}

	switch status.State {
	case models.SurveyStateCompleted:
		fmt.Println(color.GreenString("survey %s completed", id))
		// the report is only rendered when hosts were discovered
		if n, err := st.Host().Count(context.Background(), store.BySurvey(id)); cfg.Report.Enabled && err == nil && n > 0 {
			fmt.Printf("report written to %s\n", cfg.Report.OutputPath)
		}
		return nil
	case models.SurveyStateCanceled:
		fmt.Println(color.YellowString("survey %s canceled", id))
		return nil
	case models.SurveyStateTimedOut:
		fmt.Println(color.YellowString("survey %s timed out", id))
		return nil
	default:
		if status.Error != nil {
			return status.Error
		}
		return fmt.Errorf("survey %s finished in state %s", id, status.State)
	}
}

// serve runs the HTTP API until the context is canceled. Surveys are started
// through POST /api/v1/survey.
func serve(ctx context.Context, cfg *config.Configuration, st *store.Store, surveySrv *services.SurveyService) error {
	handler := handlers.New(surveySrv, services.NewHostService(st))
	srv := server.NewServer(cfg, handler.Register)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	surveySrv.Cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func buildConfiguration(flags *pflag.FlagSet) (*config.Configuration, error) {
	if err := viper.BindPFlags(flags); err != nil {
		return nil, err
	}

	cfg, err := config.NewConfiguration()
	if err != nil {
		return nil, err
	}

	cfg.Scan.Targets = viper.GetStringSlice("targets")
	if ports := viper.GetIntSlice("ports"); len(ports) > 0 {
		cfg.Scan.Ports = ports
	}
	cfg.Scan.ProbeTimeout = viper.GetDuration("probe-timeout")
	cfg.Agent.MaxPipelines = viper.GetInt("max-pipelines")
	cfg.Agent.MaxDuration = viper.GetDuration("timeout")
	cfg.Agent.NoProgress = viper.GetBool("no-progress")
	cfg.Agent.DataFolder = viper.GetString("data")
	cfg.Report.OutputPath = viper.GetString("output")
	cfg.Report.Enabled = cfg.Report.OutputPath != ""
	cfg.LogLevel = viper.GetString("log-level")
	cfg.LogFormat = viper.GetString("log-format")
	cfg.Server.Enabled = viper.GetBool("serve")
	cfg.Server.HTTPPort = viper.GetInt("port")

	return cfg, nil
}

func openStore(ctx context.Context, cfg *config.Configuration) (*store.Store, error) {
	path := ":memory:"
	if cfg.Agent.DataFolder != "" {
		if err := os.MkdirAll(cfg.Agent.DataFolder, 0o755); err != nil {
			return nil, fmt.Errorf("create data folder: %w", err)
		}
		path = filepath.Join(cfg.Agent.DataFolder, "inventory.db")
	}

	db, err := store.NewDB(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Run(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return store.NewStore(db), nil
}

func newLogger(cfg *config.Configuration) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}

	zapCfg := zap.NewDevelopmentConfig()
	if cfg.LogFormat == "json" {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

// renderProgress paints one progress line per snapshot, carriage-returned in
// place.
func renderProgress(p pipeline.ProgressSnapshot) {
	bar := color.CyanString("%6.2f%%", p.Percent)
	eta := "--"
	if p.Rate > 0 {
		eta = (time.Duration(p.SecondsRemaining) * time.Second).String()
	}
	fmt.Fprintf(os.Stderr, "\r%s  %d/%d hosts  %d workers  %.1f/s  eta %s   ",
		bar, p.Completed, p.Total, p.ActiveWorkers, p.Rate, eta)
}
