package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/middlewares"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/payments"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/mmdatafocus/rentals_backend/vault"
	"github.com/mmdatafocus/rentals_backend/workflow"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("rentals-payments")

// routeHandlers is built once the database and Redis are connected.
type routeHandlers struct {
	initiate         gin.HandlerFunc
	callbackMpesa    gin.HandlerFunc
	callbackKopoKopo gin.HandlerFunc
	callbackGeneric  gin.HandlerFunc
	unmatched        gin.HandlerFunc
}

var handlers atomic.Pointer[routeHandlers]

func buildHandlers(settings *config.PaymentSettings, logger *logrus.Logger) (*routeHandlers, error) {
	codec, err := vault.NewCodec(settings.EncryptionKey, settings.LegacySecret)
	if err != nil {
		return nil, err
	}
	if !codec.HasKey() {
		logger.WithFields(logrus.Fields{"field": "vault"}).Warn("CREDENTIAL_ENCRYPTION_KEY not set; landlord credentials cannot be decrypted")
	}

	store := models.NewPaymentStore(config.GetDB())
	limiter := payments.NewRateLimiter(config.GetRedisDB(), settings.RateLimitMax, settings.RateLimitWindow, logger)
	svc := payments.NewService(store, limiter, codec, settings, logger,
		payments.WithLegacyKeys(config.LegacyCredentialKeysEnabled()),
		payments.WithTracer(tracer),
	)

	reconciler := workflow.NewReconciler(store, workflow.NotifierFromEnv(logger), config.GetRedisLock(), logger)
	reconciler.Tracer = tracer

	return &routeHandlers{
		initiate:         payments.InitiateHandler(svc),
		callbackMpesa:    payments.CallbackHandler(reconciler, string(models.ProviderFamilyMpesa)),
		callbackKopoKopo: payments.CallbackHandler(reconciler, string(models.ProviderFamilyKopoKopo)),
		callbackGeneric:  payments.CallbackHandler(reconciler, "generic"),
		unmatched:        payments.UnmatchedHandler(store),
	}, nil
}

func route(pick func(*routeHandlers) gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := handlers.Load()
		if h == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		pick(h)(c)
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		// Cloud Run standard env var.
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()
	settings := config.LoadPaymentSettings()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Start the HTTP server before dependencies so the startup probe passes.
	// Until DB/Redis are ready, app endpoints return 503.
	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})
	r.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || config.GetRedisDB() == nil || handlers.Load() == nil {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	})
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	corsConfig := cors.DefaultConfig()
	// In production the allowlist must be explicit; elsewhere allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			corsConfig.AllowOrigins = []string{}
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id")
	corsConfig.AddExposeHeaders("Content-Length", "x-correlation-id")
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))

	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.POST("/payments/stk/initiate", middlewares.AuthMiddleware(), route(func(h *routeHandlers) gin.HandlerFunc { return h.initiate }))

	// Provider callbacks are unauthenticated; trust comes from network allowlisting.
	r.POST("/payments/callback/mpesa", route(func(h *routeHandlers) gin.HandlerFunc { return h.callbackMpesa }))
	r.POST("/payments/callback/kopokopo", route(func(h *routeHandlers) gin.HandlerFunc { return h.callbackKopoKopo }))
	r.POST("/payments/callback", route(func(h *routeHandlers) gin.HandlerFunc { return h.callbackGeneric }))

	internal := r.Group("/internal", middlewares.AuthMiddleware())
	internal.GET("/reconciliation/unmatched", route(func(h *routeHandlers) gin.HandlerFunc { return h.unmatched }))

	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can hold DDL locks; run it as a separate job when SKIP_MIGRATIONS=true.
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	for attempt := 1; ; attempt++ {
		err := db.Exec("SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED").Error
		if err == nil {
			break
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		logger.WithFields(logrus.Fields{
			"field":   "database",
			"attempt": attempt,
		}).Warn("failed to set isolation level; retrying in " + sleep.String() + ": " + err.Error())
		time.Sleep(sleep)
	}

	h, err := buildHandlers(settings, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "startup"}).Fatal("payment services: " + err.Error())
	}
	handlers.Store(h)

	logger.WithFields(logrus.Fields{
		"info": "Connection Established",
	}).Info("listening on port ", port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger logs gin errors only.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
