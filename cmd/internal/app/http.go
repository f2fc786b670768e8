package app

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	authapi "github.com/karlocehulic19/messaging-app-sub000/cmd/internal/auth/api"
	msgapi "github.com/karlocehulic19/messaging-app-sub000/cmd/internal/messages/api"
)

type routes struct {
	log      Logger
	cfg      Config
	dbPool   *pgxpool.Pool
	gatherer prometheus.Gatherer
	auth     *authapi.Handler
	messages *msgapi.Handler
}

func registerHTTP(mux *http.ServeMux, rt routes) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if rt.cfg.ReadinessRequireDB && rt.dbPool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}
		if rt.dbPool != nil {
			if err := PingDB(r.Context(), rt.dbPool, 2*time.Second); err != nil {
				rt.log.Info("readyz.db.not_ready", "err", err)
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if rt.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(rt.gatherer, promhttp.HandlerOpts{}))
	}

	if rt.auth != nil {
		rt.auth.Register(mux)
	}
	if rt.messages != nil {
		rt.messages.Register(mux)
	}
}

// buildHandler applies the middleware stack, outermost first:
// tracing, request logging, security headers, CORS.
func buildHandler(mux *http.ServeMux, log Logger, cfg Config, metrics *httpMetrics) http.Handler {
	var h http.Handler = mux
	h = WithCORS(h, cfg, log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, log, metrics, mux)
	return otelhttp.NewHandler(h, "messenger.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + routeLabel(mux, r)
		}),
	)
}
