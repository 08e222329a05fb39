// Command trovekitd mirrors the protocol's ledger state and serves it over
// HTTP and websockets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trovekit/config"
	"trovekit/gateway/middleware"
	"trovekit/gateway/routes"
	"trovekit/observability/logging"
	"trovekit/observability/metrics"
	"trovekit/observability/otel"
	"trovekit/sdk/contracts"
	"trovekit/sdk/protocol"
	"trovekit/sdk/watch"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "trovekit.yaml", "path to the YAML or TOML configuration")
	flag.Parse()

	if err := run(cfgPath); err != nil {
		slog.Error("trovekitd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Observability.ServiceName, cfg.Env, logging.WithLevel(level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := otel.Init(ctx, cfg.Observability.Telemetry(cfg.Env))
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	addrs, err := cfg.Contracts.Addresses()
	if err != nil {
		return err
	}
	client, err := contracts.Dial(ctx, cfg.RPC.URL)
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Info("connected to node", "path", logging.MaskURL(cfg.RPC.URL))

	mirrorMetrics := metrics.Mirror()
	binding, err := contracts.New(client, addrs,
		contracts.WithRateLimit(cfg.RPC.RequestsPerSecond, cfg.RPC.Burst),
		contracts.WithMetrics(mirrorMetrics))
	if err != nil {
		return fmt.Errorf("bind contracts: %w", err)
	}
	ledger, err := protocol.New(binding, protocol.Config{
		Hints:   cfg.Hints.Resolver(logger, mirrorMetrics),
		Watch:   watch.Config{Window: cfg.Watch.Window},
		Logger:  logger,
		Metrics: mirrorMetrics,
	})
	if err != nil {
		return fmt.Errorf("build ledger client: %w", err)
	}

	handler, err := newGateway(cfg, ledger, logger)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:         cfg.Gateway.Listen,
		Handler:      handler,
		ReadTimeout:  cfg.Gateway.ReadTimeout,
		WriteTimeout: cfg.Gateway.WriteTimeout,
		IdleTimeout:  cfg.Gateway.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	listener, err := net.Listen("tcp", cfg.Gateway.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "path", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}

func newGateway(cfg *config.Config, ledger protocol.Ledger, logger *slog.Logger) (http.Handler, error) {
	gw := cfg.Gateway
	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		MetricsPrefix: gw.Observability.MetricsPrefix,
		LogRequests:   gw.Observability.LogRequests,
		Metrics:       gw.Observability.Metrics,
		Tracing:       gw.Observability.Tracing,
	}, logger)
	routeCfg := routes.Config{
		Ledger: ledger,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:        gw.Auth.Enabled,
			HMACSecret:     gw.Auth.HMACSecret,
			Issuer:         gw.Auth.Issuer,
			Audience:       gw.Auth.Audience,
			ScopeClaim:     gw.Auth.ScopeClaim,
			AnonymousPaths: gw.Auth.AnonymousPaths,
			ClockSkew:      gw.Auth.ClockSkew,
		}, logger),
		RateLimiter: middleware.NewRateLimiter(middleware.RateLimit{
			RequestsPerSecond: gw.RateLimit.RequestsPerSecond,
			Burst:             gw.RateLimit.Burst,
		}, obs, logger),
		Observability:  obs,
		CORS:           middleware.CORSConfig{AllowedOrigins: gw.CORS.AllowedOrigins},
		RequestTimeout: gw.RequestTimeout,
		Logger:         logger,
	}
	if gw.Observability.Tracing {
		routeCfg.ServiceName = cfg.Observability.ServiceName
	}
	return routes.New(routeCfg)
}
