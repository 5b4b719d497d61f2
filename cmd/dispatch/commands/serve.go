package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	grpcapi "emergency-dispatch-service/internal/api/grpc"
	"emergency-dispatch-service/internal/app"
	dispatchhttp "emergency-dispatch-service/internal/http"
	"emergency-dispatch-service/internal/observability"
	"emergency-dispatch-service/internal/observability/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard, call API and health endpoints",
	Long: `Start the HTTP server (dashboard, call API and websocket), the admin
server (/metrics, /healthz, /readyz) and the gRPC health server.

Calls are started from the dashboard or with POST /v1/sessions. Only one
call is active at a time.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	admin := observability.NewServer(":"+cfg.Service.AdminPort, nil, application.Ready)
	if err := admin.Start(); err != nil {
		return err
	}

	health := grpcapi.New(":"+cfg.Service.GRPCPort, metrics.DefaultMetrics)
	if err := health.Start(); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           dispatchhttp.NewRouter(application),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("Emergency dispatch service listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	if err := application.Start(); err != nil {
		return err
	}
	health.SetServing(true)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	health.SetServing(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop calls before closing listeners so dashboards see the end.
	application.Shutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown")
	}
	if err := admin.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Admin server shutdown")
	}
	health.Stop()
	return nil
}
