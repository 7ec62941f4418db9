package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/stake-pf-predict-go/internal/api"
)

const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the prediction API over HTTP",
		Long: `Serve the prediction API on a loopback address until interrupted.

Endpoints:
  GET  /health, /health/live
  GET  /api/v1/backend, /api/v1/games
  POST /api/v1/predict, /api/v1/digest
  GET  /api/v1/predictions, /api/v1/predictions/{id}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, appOptions{pipeline: true, store: true})
			if err != nil {
				return err
			}
			defer a.close()

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}

			srv := api.NewServer(a.pipeline, a.selector, api.Options{
				DB:             a.db,
				Logger:         a.logger,
				RequestTimeout: a.cfg.HTTP.RequestTimeout,
				AllowedOrigins: a.cfg.HTTP.AllowedOrigins,
			})
			httpServer := &http.Server{
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a, httpServer, ln)
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default from config)")
	return cmd
}

// serve runs httpServer on ln until ctx is done, then shuts it down.
func serve(ctx context.Context, a *app, httpServer *http.Server, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("api listening",
			"addr", ln.Addr().String(),
			"mode", a.selector.CurrentMode(),
			"version", api.EngineVersion)
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down api")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
