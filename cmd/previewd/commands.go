package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hallwaytech/previewd/internal/config"
	"github.com/hallwaytech/previewd/internal/pipeline"
	"github.com/hallwaytech/previewd/internal/status"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run scheduled preview passes",
	Long: `Run the worker loop: perform the configured number of passes over the
repository, waiting the configured interval between passes.

Examples:
  previewd run --server https://store.example.org --user previewbot --password secret
  previewd run --count 10 --dir /var/tmp/previewd`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runWorker(cfg, cfg.Worker.Passes)
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single preview pass and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runWorker(cfg, 1)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the previewd version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "previewd version", version)
	},
}

func init() {
	runCmd.Flags().Int("count", 0, "number of passes to run (overrides config)")
}

// loadConfig layers flag values on top of file and environment config.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, path != "")
	if err != nil {
		return config.Config{}, err
	}

	if v, _ := cmd.Flags().GetString("server"); v != "" {
		cfg.Server.URL = v
	}
	if v, _ := cmd.Flags().GetString("content-server"); v != "" {
		cfg.Server.ContentURL = v
	}
	if v, _ := cmd.Flags().GetString("user"); v != "" {
		cfg.Server.User = v
	}
	if v, _ := cmd.Flags().GetString("password"); v != "" {
		cfg.Server.Password = v
	}
	if v, _ := cmd.Flags().GetString("dir"); v != "" {
		cfg.Worker.BaseDir = v
	}
	if v, _ := cmd.Flags().GetBool("force-tagging"); v {
		cfg.Tagging.Force = true
	}
	if cmd.Flags().Lookup("count") != nil {
		if v, _ := cmd.Flags().GetInt("count"); v > 0 {
			cfg.Worker.Passes = v
		}
	}
	return cfg, nil
}

func setupLogging(cfg config.Config) {
	level := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// runWorker builds the pipeline and runs the given number of passes, waiting
// the configured interval between them. SIGINT/SIGTERM stop the loop between
// passes.
func runWorker(cfg config.Config, passes int) error {
	setupLogging(cfg)
	slog.Info("previewd starting", "version", version, "passes", passes)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, jrnl, cleanup, err := buildPipeline(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Status.Enabled {
		shutdown := startStatusServer(ctx, cfg, status.Deps{
			Journal:  jrnl,
			WorkerID: p.WorkerID(),
			Version:  version,
		})
		defer shutdown()
	}

	for pass := 1; pass <= passes; pass++ {
		stats, err := p.Run(ctx)
		if err != nil {
			slog.Error("pass failed", "pass", pass, "error", err)
		} else {
			slog.Info("pass finished", "pass", pass,
				"discovered", stats.Discovered, "processed", stats.Processed,
				"failed", stats.Failed, "ignored", stats.Ignored)
		}

		if pass == passes {
			break
		}
		select {
		case <-ctx.Done():
			slog.Info("shutting down")
			return nil
		case <-time.After(cfg.Worker.Interval.Std()):
		}
	}
	return nil
}

func startStatusServer(ctx context.Context, cfg config.Config, deps status.Deps) func() {
	srv := &http.Server{Addr: cfg.Status.Addr, Handler: status.NewHandler(deps)}

	go func() {
		slog.Info("status endpoint listening", "addr", cfg.Status.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("status server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}
}

// parseTypeOptions resolves a type set from an optional file override plus
// explicit config entries.
func parseTypeOptions(path string, fallback pipeline.TypeSet, extra []string) (pipeline.TypeSet, error) {
	set := fallback
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening type list %s: %w", path, err)
		}
		defer f.Close()
		if set, err = pipeline.ParseTypeSet(f); err != nil {
			return nil, err
		}
	}
	if set == nil {
		set = pipeline.NewTypeSet()
	}
	for t := range pipeline.NewTypeSet(extra...) {
		set[t] = struct{}{}
	}
	return set, nil
}
