// cmd/platform-server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	commonauth "platform-services/internal/common/auth"
	"platform-services/internal/common/config"
	"platform-services/internal/common/database"
	"platform-services/internal/common/events"
	"platform-services/internal/common/logger"
	"platform-services/internal/common/notify"
	"platform-services/internal/common/observability"
	"platform-services/internal/gateway"
	authsvc "platform-services/internal/services/auth"
	"platform-services/internal/services/document"
	"platform-services/internal/services/permission"
	usersvc "platform-services/internal/services/user"
	"platform-services/internal/services/voice"
	"platform-services/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting platform server...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("platform-server")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Postgres ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		return err
	}, 10, 2*time.Second, zapLog, "Postgres initialization")
	if err != nil {
		zapLog.Fatal("postgres unavailable", zap.Error(err))
	}
	defer pg.Close()

	// --- Redis ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis initialization")
	if err != nil {
		zapLog.Fatal("redis unavailable", zap.Error(err))
	}
	defer rdb.Close()

	// --- Elasticsearch (optional; search degrades without it) ---
	var es *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		return err
	}, 5, 2*time.Second, zapLog, "Elasticsearch initialization")
	if err != nil {
		zapLog.Warn("elasticsearch unavailable, document search disabled", zap.Error(err))
		es = nil
	}

	// --- Object storage ---
	var storage document.ObjectStorage
	err = retryWithBackoff(func() error {
		var err error
		storage, err = document.NewMinIOStorage(ctx, cfg.Storage)
		return err
	}, 10, 2*time.Second, zapLog, "object storage initialization")
	if err != nil {
		zapLog.Fatal("object storage unavailable", zap.Error(err))
	}

	// --- Event bus ---
	var publisher events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka, log)
		defer kp.Close()
		publisher = kp
	} else {
		zapLog.Warn("no kafka brokers configured, events disabled")
		publisher = events.NopPublisher{}
	}

	// --- Notifications ---
	notifier, err := notify.New(ctx, cfg.Notifications, log)
	if err != nil {
		zapLog.Warn("notifier initialization failed, notifications disabled", zap.Error(err))
		notifier = nil
	}

	// --- Tokens & middleware ---
	tokens := commonauth.NewTokenManager(cfg.JWT, rdb.GetClient())
	authMiddleware := commonauth.Middleware(tokens)

	// --- Permission service (seeded at startup) ---
	permStore := permission.NewStore(pg.GetDB())
	if err := permStore.Seed(ctx); err != nil {
		zapLog.Fatal("permission seeding failed", zap.Error(err))
	}
	permService := permission.NewService(permStore, rdb, config.GetDuration(cfg.Permissions.CacheTTLMS), publisher, log)
	permHandler := permission.NewHandler(permService, log)

	// --- Auth service ---
	authService := authsvc.NewService(
		&authsvc.Config{
			BcryptCost:    cfg.JWT.BcryptCost,
			TOTPIssuer:    cfg.JWT.TOTPIssuer,
			TOTPEnrollTTL: config.GetDuration(cfg.JWT.TOTPEnrollTTLMS),
		},
		authsvc.NewStore(pg.GetDB()),
		tokens,
		rdb.GetClient(),
		publisher,
		notifier,
		log,
	)
	authHandler := authsvc.NewHandler(authService, log)

	// --- User service ---
	userService := usersvc.NewService(usersvc.NewStore(pg.GetDB()), permService, log)
	userHandler := usersvc.NewHandler(userService, log)

	// --- Document service ---
	docService := document.NewService(
		cfg.Documents,
		document.NewStore(pg.GetDB()),
		storage,
		es,
		permService,
		publisher,
		notifier,
		log,
	)
	docHandler := document.NewHandler(docService, log)

	// --- Voice service ---
	reg, err := registry.LoadRegistry(cfg.Voice.RegistryPath)
	if err != nil {
		zapLog.Fatal("intent registry load failed", zap.Error(err))
	}
	pipeline := voice.NewPipeline(
		voice.NewWhisperClient(cfg.Voice.STT.BaseURL, cfg.Voice.STT.APIKey, cfg.Voice.STT.Model, config.GetDuration(cfg.Voice.STT.Timeout)),
		voice.NewChatClassifier(cfg.Voice.Intent.BaseURL, cfg.Voice.Intent.APIKey, cfg.Voice.Intent.Model, config.GetDuration(cfg.Voice.Intent.Timeout), reg),
		voice.NewRESTDispatcher(selfBaseURL(cfg.Server.Address), 10*time.Second),
		voice.NewElevenLabsClient(cfg.Voice.TTS.BaseURL, cfg.Voice.TTS.APIKey, cfg.Voice.TTS.VoiceID, config.GetDuration(cfg.Voice.TTS.Timeout)),
		reg,
		publisher,
		log,
	)
	voiceHandler := voice.NewHandler(pipeline, cfg.Voice.MaxUtteranceBytes, config.GetDuration(cfg.Voice.IdleTimeout), log)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(gateway.Instrument)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		if err := pg.Ping(req.Context()); err != nil {
			http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := rdb.Ping(req.Context()); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/auth", authHandler.Routes(authMiddleware))
		r.Mount("/users", userHandler.Routes(authMiddleware))
		r.Mount("/documents", docHandler.Routes(authMiddleware))
		r.Mount("/permissions", permHandler.Routes(authMiddleware))
		r.Mount("/voice", voiceHandler.Routes(authMiddleware))
	})

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      r,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("platform server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	zapLog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("graceful shutdown failed", zap.Error(err))
	}
	zapLog.Info("platform server stopped")
}

// selfBaseURL is where the voice dispatcher reaches the server's own API.
func selfBaseURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://127.0.0.1" + addr
	}
	return "http://" + addr
}
