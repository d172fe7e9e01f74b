package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/cwbudde/markedpoint/internal/config"
	"github.com/cwbudde/markedpoint/internal/pipeline"
	"github.com/cwbudde/markedpoint/internal/server"
)

var (
	serveAddr    string
	serveConfig  string
	serveTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Serves the job API: submit run configurations, follow progress over
SSE, fetch marks and overlays, cancel or resume jobs. Prometheus metrics are
exposed on /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "", "Configuration file providing the store settings")
	serveCmd.Flags().DurationVar(&serveTimeout, "shutdown-timeout", 30*time.Second, "Time allowed for jobs to checkpoint on shutdown")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if serveConfig != "" {
		loaded, err := config.Load(serveConfig)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	config.ApplyEnv(&cfg)

	st, release, err := pipeline.OpenStore(cfg.Store)
	if err != nil {
		return err
	}
	defer release()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv := server.NewServer(serveAddr, server.Options{
		Store:    st,
		TraceDir: cfg.Store.Dir,
		Registry: reg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Shutdown incomplete", "error", err)
		return err
	}
	return nil
}
