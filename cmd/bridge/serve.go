package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const janitorInterval = 10 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the webhook endpoint",
	Long: `Serve the GitHub webhook endpoint along with a status page,
a health check and Prometheus metrics.

On SIGINT or SIGTERM the server stops accepting requests and waits
for in-flight deliveries to finish.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      newRouter(a),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info().
			Str("port", a.cfg.Port).
			Str("env", a.cfg.Env).
			Bool("workrooms", a.machine != nil).
			Msg("starting bridge")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return a.scheduler.IDCache().Janitor(gctx, janitorInterval) })
	g.Go(func() error { return a.messenger.ChatCache().Janitor(gctx, janitorInterval) })
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info().Msg("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		a.webhooks.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.log.Info().Msg("server stopped")
	return nil
}
