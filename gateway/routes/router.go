// Package routes serves the read-only ledger mirror over HTTP and websockets.
package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"trovekit/gateway/middleware"
	"trovekit/sdk/protocol"
)

const (
	scopeTroves = "read:troves"
	scopePool   = "read:pool"
)

var errLedgerMissing = errors.New("routes: ledger required")

type Config struct {
	Ledger         protocol.Ledger
	Authenticator  *middleware.Authenticator
	RateLimiter    *middleware.RateLimiter
	Observability  *middleware.Observability
	CORS           middleware.CORSConfig
	RequestTimeout time.Duration
	// ServiceName names the otelhttp server spans; empty disables them.
	ServiceName string
	Logger      *slog.Logger
}

type handlers struct {
	ledger  protocol.Ledger
	timeout time.Duration
	origins []string
	logger  *slog.Logger
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Ledger == nil {
		return nil, errLedgerMissing
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &handlers{
		ledger:  cfg.Ledger,
		timeout: cfg.RequestTimeout,
		origins: cfg.CORS.OriginPatterns(),
		logger:  cfg.Logger.With("component", "routes"),
	}
	if h.timeout <= 0 {
		h.timeout = 10 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.Observability != nil {
		r.Use(cfg.Observability.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Observability != nil {
		r.Handle("/metrics", cfg.Observability.MetricsHandler())
	}

	r.Route("/v1", func(sr chi.Router) {
		if cfg.RateLimiter != nil {
			sr.Use(cfg.RateLimiter.Middleware)
		}
		sr.Group(func(g chi.Router) {
			if cfg.Authenticator != nil {
				g.Use(cfg.Authenticator.Middleware(scopeTroves))
			}
			g.Get("/price", h.price)
			g.Get("/totals", h.totals)
			g.Get("/troves/count", h.troveCount)
			g.Get("/troves/{owner}", h.trove)
			g.Get("/troves/{owner}/pending", h.pendingTrove)
			g.Get("/hints", h.hint)
			g.Get("/watch/troves/{owner}", h.watchTrove)
		})
		sr.Group(func(g chi.Router) {
			if cfg.Authenticator != nil {
				g.Use(cfg.Authenticator.Middleware(scopePool))
			}
			g.Get("/stability", h.pool)
			g.Get("/stability/{owner}", h.stabilityDeposit)
		})
	})

	if cfg.ServiceName == "" {
		return r, nil
	}
	return otelhttp.NewHandler(r, cfg.ServiceName), nil
}
