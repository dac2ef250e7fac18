package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/use-agent/newsingest/api"
	"github.com/use-agent/newsingest/app"
)

// shutdownGrace is how long in-flight requests get after a signal.
const shutdownGrace = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the HTTP API for the dashboard.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		slog.Info("newsingest starting",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"mode", cfg.Server.Mode,
			"store", cfg.Store.Driver,
		)

		a, err := app.New(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		router := api.NewRouter(cfg, api.Deps{
			Runner:    a,
			Store:     a.Store,
			PoolStats: a.PoolStats,
			Metrics:   a.Metrics,
			StartTime: a.StartTime,
		})

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:    addr,
			Handler: router,
		}

		errc := make(chan error, 1)
		go func() {
			slog.Info("HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
			close(errc)
		}()

		select {
		case err := <-errc:
			return fmt.Errorf("http server: %w", err)
		case <-ctx.Done():
		}
		slog.Info("shutdown signal received")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
		} else {
			slog.Info("HTTP server drained gracefully")
		}

		// a.Close runs via defer: flushes notifications, kills Chrome, closes the store.
		slog.Info("newsingest stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
