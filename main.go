package main

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ocupoint/salogger/pkg/acquire"
	"github.com/ocupoint/salogger/pkg/archive"
	"github.com/ocupoint/salogger/pkg/fieldfox"
	"github.com/ocupoint/salogger/pkg/metrics"
)

//go:embed templates/*
var templatesFS embed.FS

var processStart = time.Now()

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "salogger",
		Short: "FieldFox SA trace logger",
		Long: `Connects to a FieldFox in spectrum-analyzer mode, records a series of
traces to measurement_data/<site>.csv and plots them live.

  CLI Mode:    salogger --site roof [options]
  Server Mode: salogger --server [options]
  Sim Mode:    salogger --sim [--server] [options]`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	registerFlags(cmd.Flags())
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		panic(err)
	}
	return cmd
}

func setupLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func run(parent context.Context, cfg Config) error {
	if parent == nil {
		parent = context.Background()
	}
	setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	if cfg.Sim {
		addr, err := startSimulator(cfg.SimAddr)
		if err != nil {
			return fmt.Errorf("start simulator: %w", err)
		}
		cfg.Address = addr
	}

	var arch archive.Archiver
	if cfg.S3.Bucket != "" {
		a, err := archive.NewS3Archiver(ctx, cfg.S3)
		if err != nil {
			return err
		}
		if err := archive.EnsureBucket(ctx, a); err != nil {
			return err
		}
		log.Info().Str("bucket", cfg.S3.Bucket).Str("endpoint", cfg.S3.Endpoint).Msg("archiving finished runs to S3")
		arch = a
	}

	metrics.MustRegister()

	ctrl := acquire.New(acquire.Config{
		DataDir:  cfg.DataDir,
		Timeout:  cfg.Timeout,
		Parquet:  cfg.Parquet,
		Archiver: arch,
		Start:    processStart,
	})
	defer ctrl.Close()

	if cfg.Server {
		return runServer(ctx, cfg, ctrl)
	}
	return runCLI(ctx, cfg, ctrl)
}

// startSimulator serves a simulated FieldFox on addr and returns the bound
// address once it is listening.
func startSimulator(addr string) (string, error) {
	sim := fieldfox.NewSimulator()
	ready := make(chan string, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- sim.ListenAndServe(addr, ready)
	}()

	select {
	case bound := <-ready:
		return bound, nil
	case err := <-errc:
		return "", err
	}
}
