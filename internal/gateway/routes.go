// internal/gateway/routes.go
package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	commonauth "platform-services/internal/common/auth"
	"platform-services/internal/common/config"
	"platform-services/internal/common/database"
	"platform-services/internal/common/logger"
)

// NewRouter wires the full gateway chain: CORS, request id, metrics, auth,
// rate limiting and finally the reverse proxy.
func NewRouter(
	cfg config.GatewayConfig,
	tokens *commonauth.TokenManager,
	redisClient *database.RedisClient,
	log logger.Logger,
) (http.Handler, error) {
	proxy, err := NewProxy(cfg.UpstreamURL, log)
	if err != nil {
		return nil, err
	}

	auth := NewAuthenticator(tokens, cfg.PublicPaths)
	limiter := NewRateLimiter(redisClient.GetClient(), "gateway:rate_limit")
	rateLimit := NewRateLimitMiddleware(limiter, redisClient, cfg, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(Instrument)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		if err := redisClient.Ping(req.Context()); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Use(rateLimit.Middleware)
		r.Handle("/api/*", proxy)
	})

	return r, nil
}
