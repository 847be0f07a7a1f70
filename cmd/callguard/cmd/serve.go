package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/psantana5/callguard/internal/server"
	"github.com/psantana5/callguard/pkg/auth"
	"github.com/psantana5/callguard/pkg/guard"
	"github.com/psantana5/callguard/pkg/logging"
	"github.com/psantana5/callguard/pkg/ratelimit"
	"github.com/psantana5/callguard/pkg/tracing"
	"github.com/spf13/cobra"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API",
	Long: `Serve the dashboard call sites over HTTP:

  GET /v1/users/{uid}/bookings
  GET /v1/users/{uid}/profile
  GET /v1/geocode?address=
  GET /v1/route?from=&to=
  GET /metrics
  GET /healthz`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8090)")
}

func runServe(cmd *cobra.Command, args []string) error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		c.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, c)
	if err != nil {
		return err
	}

	// The process scope: cancelling it abandons every in-flight request.
	scope := guard.NewScope(ctx, "server", guard.WithScopeLogger(rt.logger), guard.WithTeardownTimeout(30*time.Second))
	scope.OnTeardown(rt.Close)

	var checker *auth.KeyChecker
	if c.Server.APIKeyHash != "" {
		if checker, err = auth.NewKeyChecker(c.Server.APIKeyHash); err != nil {
			scope.Close()
			return err
		}
	} else {
		rt.logger.Warn("API key authentication disabled")
	}

	limiter := ratelimit.NewLimiter(c.Server.RPS, c.Server.Burst, 10*time.Minute)
	handler := server.NewHandler(server.Config{
		Backend:  rt.client,
		Policies: c,
		Logger:   rt.logger,
		Guard:    rt.guardOptions(),
		Metrics:  rt.collector.Handler(),
		Limiter:  limiter,
		Auth:     checker,
	})
	router := mux.NewRouter()
	router.Use(tracing.HTTPMiddleware(rt.tracing))
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:         c.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return scope.Context() },
	}
	scope.OnTeardown(srv.Shutdown)

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-scope.Done():
				return
			case <-ticker.C:
				limiter.Evict()
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("callguard listening", logging.Fields{"addr": c.Server.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		rt.logger.Info("shutting down gracefully")
	case err = <-errCh:
	}
	scope.Close()
	return err
}
