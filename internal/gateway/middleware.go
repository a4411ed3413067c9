// internal/gateway/middleware.go
package gateway

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	commonauth "platform-services/internal/common/auth"
	"platform-services/internal/common/config"
	"platform-services/internal/common/database"
	commonerrors "platform-services/internal/common/errors"
	"platform-services/internal/common/logger"
	"platform-services/internal/common/metrics"
	"platform-services/internal/models"
)

// tierKeyPrefix is where the platform records each user's subscription tier.
const tierKeyPrefix = "sub:tier:"

// Authenticator validates bearer tokens on non-public routes and stashes the
// user identity in the request context for the proxy to forward.
type Authenticator struct {
	tokens      *commonauth.TokenManager
	publicPaths []string
}

func NewAuthenticator(tokens *commonauth.TokenManager, publicPaths []string) *Authenticator {
	return &Authenticator{tokens: tokens, publicPaths: publicPaths}
}

func (a *Authenticator) isPublic(path string) bool {
	for _, p := range a.publicPaths {
		if strings.HasSuffix(p, "*") {
			if strings.HasPrefix(path, strings.TrimSuffix(p, "*")) {
				return true
			}
		} else if path == p {
			return true
		}
	}
	return false
}

func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Never trust identity headers from the outside.
		r.Header.Del("X-User-ID")
		r.Header.Del("X-User-Email")

		if a.isPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			// WebSocket clients pass the token as a query parameter.
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			commonerrors.WriteHTTP(w, commonerrors.NewTokenInvalidError("missing bearer token"))
			return
		}

		claims, err := a.tokens.Verify(token, commonauth.TokenKindAccess)
		if err != nil {
			commonerrors.WriteHTTP(w, commonerrors.NewTokenInvalidError(err.Error()))
			return
		}

		ctx := commonauth.WithUser(r.Context(), claims.UserID, claims.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitMiddleware enforces a fixed window per user, falling back to the
// client IP before authentication. Tiered limits come from the subscription
// tier the platform mirrors into Redis; a limiter outage fails open.
type RateLimitMiddleware struct {
	limiter *RateLimiter
	redis   *database.RedisClient
	cfg     config.GatewayConfig
	logger  logger.Logger
}

func NewRateLimitMiddleware(limiter *RateLimiter, redisClient *database.RedisClient, cfg config.GatewayConfig, log logger.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		redis:   redisClient,
		cfg:     cfg,
		logger:  log,
	}
}

func (m *RateLimitMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.cfg.RateLimit.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		subject := "user:" + commonauth.UserID(r.Context())
		if subject == "user:" {
			subject = "ip:" + clientIP(r)
		}

		window := time.Duration(m.cfg.RateLimit.WindowMS) * time.Millisecond
		allowed, retryAfter, err := m.limiter.Consume(r.Context(), subject, m.limitFor(r), window)
		if err != nil {
			m.logger.WithError(err).Warn("rate limiter unavailable, allowing request")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			metrics.RateLimitRejections.Inc()
			commonerrors.WriteHTTP(w, commonerrors.NewRateLimitedError(retryAfter))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *RateLimitMiddleware) limitFor(r *http.Request) int {
	limit := m.cfg.RateLimit.Requests
	userID := commonauth.UserID(r.Context())
	if userID == "" || len(m.cfg.TierLimits) == 0 {
		return limit
	}

	tier, err := m.redis.Get(r.Context(), tierKeyPrefix+userID)
	if err != nil || tier == "" {
		tier = models.TierFree
	}
	return models.TierLimit(m.cfg.TierLimits, tier, limit)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Instrument records the request counter and latency histogram the way the
// other services do.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.HTTPRequestsTotal.WithLabelValues("gateway", r.Method, strconv.Itoa(recorder.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues("gateway", r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack keeps WebSocket upgrades working through the instrumented writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}
