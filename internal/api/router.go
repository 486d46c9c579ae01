// Package api wires together all HTTP routes for the NexusERP backend.
//
// Route grouping:
//   - /health, /ready and /version are public probes.
//   - /api/v1/auth/login is public and sits behind the login rate limit.
//   - /api/v1/auth/logout accepts an optional session so that it always succeeds.
//   - Every other /api/v1 route requires a valid session, passes the general API
//     throttle, is audited, and checks its permission where one applies.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/YASSERRMD/nexusERP/internal/api/admin"
	"github.com/YASSERRMD/nexusERP/internal/audit"
	"github.com/YASSERRMD/nexusERP/internal/auth"
	"github.com/YASSERRMD/nexusERP/internal/config"
	"github.com/YASSERRMD/nexusERP/internal/db/repositories"
	"github.com/YASSERRMD/nexusERP/internal/jobs"
	"github.com/YASSERRMD/nexusERP/internal/middleware"
	"github.com/YASSERRMD/nexusERP/internal/ratelimit"
)

// Version is reported by GET /version. cmd/server overrides it at startup.
var Version = "0.1.0"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	sessionReaper *jobs.SessionReaper
	limiters      []*ratelimit.FixedWindow
	auditWriter   *audit.Writer
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.sessionReaper != nil {
		bg.sessionReaper.Stop()
	}
	for _, l := range bg.limiters {
		l.Stop()
	}
	if bg.auditWriter != nil {
		if err := bg.auditWriter.Close(); err != nil {
			slog.Error("failed to close audit writer", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router. rdb may be nil unless the
// rate limiting backend is "redis".
func NewRouter(cfg *config.Config, db *sqlx.DB, rdb redis.UniversalClient) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, nil, fmt.Errorf("invalid server.trusted_proxies: %w", err)
	}
	bg := &BackgroundServices{}

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	var auditWriter middleware.AuditWriter
	if cfg.Audit.Enabled {
		var shippers []audit.Shipper
		if fileCfg := cfg.Audit.File; fileCfg.Path != "" {
			fileShipper, err := audit.NewFileShipper(audit.FileConfig{
				Path:       fileCfg.Path,
				MaxSizeMB:  fileCfg.MaxSizeMB,
				MaxBackups: fileCfg.MaxBackups,
			})
			if err != nil {
				return nil, nil, err
			}
			shippers = append(shippers, fileShipper)
		}
		// Shutdown drains entries still being written before the DB closes.
		bg.auditWriter = audit.NewWriter(auditRepo, shippers...)
		auditWriter = bg.auditWriter
	}

	authService := auth.NewService(sessionRepo, userRepo, auth.ServiceConfig{
		SessionTTL:         cfg.Auth.Session.TTL,
		LookupTimeout:      cfg.Auth.Session.LookupTimeout,
		PasswordIterations: cfg.Auth.Password.Iterations,
	})

	// Start the session reaper
	if cfg.Jobs.SessionReaper.Enabled {
		reaper, err := jobs.NewSessionReaper(sessionRepo, cfg.Jobs.SessionReaper.Schedule)
		if err != nil {
			bg.Shutdown()
			return nil, nil, err
		}
		reaper.Start(context.Background())
		bg.sessionReaper = reaper
	}

	loginLimiter, apiLimiter, err := newLimiters(&cfg.Security.RateLimiting, rdb, bg)
	if err != nil {
		bg.Shutdown()
		return nil, nil, err
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, rdb))
	router.GET("/version", versionHandler())

	cookieName := cfg.Auth.Session.CookieName
	authHandlers := admin.NewAuthHandlers(&cfg.Auth.Session, authService, auditWriter)
	orgHandlers := admin.NewOrganizationHandlers(db)
	roleHandlers := admin.NewRoleHandlers(db)
	auditHandlers := admin.NewAuditHandlers(db)

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			login := []gin.HandlerFunc{}
			if loginLimiter != nil {
				login = append(login, middleware.RateLimitMiddleware(loginLimiter,
					middleware.LoginRateLimitPolicy(cfg.Security.RateLimiting.Login.MaxAttempts, cfg.Security.RateLimiting.Login.Window)))
			}
			login = append(login, authHandlers.LoginHandler())
			authGroup.POST("/login", login...)

			authGroup.POST("/logout",
				middleware.OptionalSessionAuthMiddleware(authService, cookieName),
				authHandlers.LogoutHandler())
		}

		authenticatedGroup := v1.Group("")
		authenticatedGroup.Use(middleware.SessionAuthMiddleware(authService, cookieName))
		if apiLimiter != nil {
			authenticatedGroup.Use(middleware.RateLimitMiddleware(apiLimiter,
				middleware.APIRateLimitPolicy(cfg.Security.RateLimiting.API.RequestsPerMinute, cfg.Security.RateLimiting.API.Burst)))
		}
		authenticatedGroup.Use(middleware.AuditMiddleware(auditWriter, &cfg.Audit))
		{
			authenticatedGroup.GET("/auth/me", authHandlers.MeHandler())

			authenticatedGroup.GET("/organization", orgHandlers.GetOrganizationHandler())
			authenticatedGroup.PUT("/organization",
				middleware.RequirePermission(auth.PermOrganizationUpdate),
				orgHandlers.UpdateOrganizationHandler())

			authenticatedGroup.GET("/roles",
				middleware.RequirePermission(auth.PermRolesRead),
				roleHandlers.ListRolesHandler())

			authenticatedGroup.GET("/audit-logs",
				middleware.RequirePermission(auth.PermAuditRead),
				auditHandlers.ListAuditLogsHandler())
		}
	}

	return router, bg, nil
}

// newLimiters builds the login and API limiters for the configured backend. Both
// are nil when rate limiting is disabled. In-process limiters with a janitor are
// registered on bg for shutdown.
func newLimiters(cfg *config.RateLimitingConfig, rdb redis.UniversalClient, bg *BackgroundServices) (login, api ratelimit.Limiter, err error) {
	if !cfg.Enabled {
		slog.Warn("rate limiting disabled")
		return nil, nil, nil
	}

	switch cfg.Backend {
	case ratelimit.BackendRedis:
		if rdb == nil {
			return nil, nil, fmt.Errorf("rate limiting backend %q requires a redis client", cfg.Backend)
		}
		slog.Info("rate limiting backed by redis")
		return ratelimit.NewRedisFixedWindow(rdb, ratelimit.DefaultKeyPrefix),
			ratelimit.NewRedisGCRA(rdb, ratelimit.DefaultKeyPrefix), nil
	case ratelimit.BackendMemory, "":
		fw := ratelimit.NewFixedWindow(cfg.CleanupInterval)
		bg.limiters = append(bg.limiters, fw)
		return fw, ratelimit.NewTokenBucket(0), nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limiting backend %q", cfg.Backend)
	}
}

// @Summary      Health check
// @Description  Returns the health status of the service, including database connectivity.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Returns whether the service is ready to accept traffic. Checks the database and, when configured, redis.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, checks, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, checks, error"
// @Router       /ready [get]
// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks redis so that a
// readiness gate fails when shared rate limiting would error.
func readinessHandler(db *sqlx.DB, rdb redis.UniversalClient) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		ctx := c.Request.Context()

		if err := db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				checks["redis"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": checks,
					"error":  "redis not ready",
				})
				return
			}
			checks["redis"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Description  Returns the server build version and the API version.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logRequest(c, time.Since(start), path, query)
	}
}

// logRequest emits one slog record per request. The global handler chosen in
// telemetry.SetupLogger decides between JSON and text output.
func logRequest(c *gin.Context, latency time.Duration, path, query string) {
	requestID := c.GetString(middleware.RequestIDKey)
	level := slog.LevelInfo
	if c.Writer.Status() >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	attrs := []slog.Attr{
		slog.String("method", c.Request.Method),
		slog.String("path", path),
		slog.String("query", query),
		slog.Int("status", c.Writer.Status()),
		slog.Int("size", c.Writer.Size()),
		slog.Duration("latency", latency),
		slog.String("ip", c.ClientIP()),
		slog.String("request_id", requestID),
		slog.String("user_agent", c.Request.UserAgent()),
	}
	if userID := c.GetString(middleware.UserIDKey); userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	slog.LogAttrs(c.Request.Context(), level, "http request", attrs...)
}

// CORSMiddleware handles CORS. Credentials are only allowed for an explicit origin.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := "GET, POST, PUT, DELETE, OPTIONS"
	if len(cfg.Security.CORS.AllowedMethods) > 0 {
		methods = strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed, explicit := false, false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == origin {
				allowed, explicit = true, true
				break
			}
			if allowedOrigin == "*" {
				allowed = true
			}
		}

		if allowed && origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			if explicit {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset, Retry-After")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
