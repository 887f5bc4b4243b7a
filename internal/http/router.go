// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, admin auth, idempotency, and rate limiting.
//
// Two route groups share API_BASE_PATH: the bot group, called by the
// messenger gateway on behalf of users, and the admin group behind
// X-Admin-Token.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-leadbot-backend/docs" // swagger spec
	"github.com/tbourn/go-leadbot-backend/internal/config"
	"github.com/tbourn/go-leadbot-backend/internal/http/handlers"
	"github.com/tbourn/go-leadbot-backend/internal/http/middleware"
	"github.com/tbourn/go-leadbot-backend/internal/observability"
	"github.com/tbourn/go-leadbot-backend/internal/repo"
	"github.com/tbourn/go-leadbot-backend/internal/services"
)

// defaultIdempotencyTTL applies when the config leaves IdempotencyTTL unset.
const defaultIdempotencyTTL = 24 * time.Hour

// idempotencyShim adapts the repository free functions to
// handlers.IdempotencyStore and middleware.IdempotencyLookup.
type idempotencyShim struct {
	db  *gorm.DB
	ttl time.Duration
}

// Lookup proxies repo.GetIdempotency; a miss is not an error.
func (s idempotencyShim) Lookup(ctx context.Context, subject, scope, key string) (string, int, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.db, subject, scope, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return rec.ResourceID, rec.Status, true, nil
}

// Save proxies repo.CreateIdempotency. The first outcome stored wins.
func (s idempotencyShim) Save(ctx context.Context, subject, scope, key, resourceID string, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.db, subject, scope, key, resourceID, status, s.ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// exists is the middleware.IdempotencyLookup view of the shim.
func (s idempotencyShim) exists(ctx context.Context, subject, scope, key string, now time.Time) (bool, error) {
	_, err := repo.GetIdempotency(ctx, s.db, subject, scope, key, now)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// Deps are the process-level collaborators of the router.
type Deps struct {
	DB *gorm.DB
	// Registry receives the HTTP collectors and backs /metrics. Nil means a
	// private registry.
	Registry *prometheus.Registry
	// Jobs serves the manual delivery triggers. Nil makes them answer 503.
	Jobs handlers.Jobs
}

// RegisterRoutes mounts the middleware chain and every endpoint on r, with
// the API under cfg.APIBasePath. Global order: tracing, request id, redacting
// access log, recovery, body cap, metrics, then CORS, security headers and
// gzip. Each group then runs AdminToken (admin only, so the idempotency
// subject is "admin"), the idempotency check, and the rate limiter, which
// replays skip.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	db := d.DB

	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName, otelgin.WithPropagators(observability.Propagator())),
		middleware.RequestID(),
		middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{"X-Telegram-Bot-Api-Secret-Token"},
		}),
		middleware.Recovery(),
		limitBody(1<<20),
		middleware.NewHTTPMetrics(reg).Handler(),
	)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(
		middleware.SecurityHeaders(middleware.SecurityOptions{
			EnableHSTS:   cfg.Security.EnableHSTS,
			HSTSMaxAge:   cfg.Security.HSTSMaxAge,
			EnablePolicy: true,
			Expose:       []string{"X-Request-ID", "ETag", handlers.HeaderIdempotentReplay},
		}),
		// promhttp negotiates its own compression.
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})),
	)

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← repo/db
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	idem := idempotencyShim{db: db, ttl: ttl}

	logger := log.With().Str("component", "http").Logger()
	followUps := services.NewFollowUpService(db, logger)
	if cfg.FollowUp.ClaimTTL > 0 {
		followUps.ClaimTTL = cfg.FollowUp.ClaimTTL
	}
	h := handlers.New(handlers.Deps{
		Users:             &services.UserService{DB: db},
		Magnets:           services.NewLeadMagnetService(db),
		Products:          &services.ProductService{DB: db},
		FollowUps:         followUps,
		Warmups:           services.NewWarmupService(db, logger),
		Mailings:          services.NewMailingService(db, logger),
		FAQ:               &services.FAQService{DB: db, Threshold: cfg.FAQThreshold},
		Jobs:              d.Jobs,
		Idem:              idem,
		FollowUpThreshold: cfg.FollowUp.Threshold,
	})

	idemMW := middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idem.exists)
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())

	// Bot API
	bot := groupWithPrefix(r, cfg.APIBasePath)
	bot.Use(idemMW, rl.Handler())
	{
		// Users
		bot.POST("/users", h.RegisterUser)
		bot.GET("/users/by-telegram/:telegram_id", h.GetUserByTelegramID)
		bot.GET("/users/:id", h.GetUser)

		// Lead magnets
		bot.POST("/users/:id/lead-magnet", h.IssueLeadMagnet)
		bot.GET("/users/:id/lead-magnets", h.ListUserLeadMagnets)

		// Offers
		bot.GET("/products", h.ListProducts)
		bot.POST("/users/:id/offers/:offer_id/show", h.ShowOffer)
		bot.POST("/users/:id/offers/:offer_id/click", h.ClickOffer)

		// Warm-up
		bot.POST("/users/:id/warmup", h.StartWarmup)
		bot.DELETE("/users/:id/warmup", h.StopWarmup)

		// FAQ
		bot.GET("/faq/answer", h.AnswerFAQ)
	}

	// Admin API
	admin := groupWithPrefix(r, cfg.APIBasePath)
	admin.Use(middleware.AdminToken(cfg.AdminToken), idemMW, rl.Handler())
	{
		admin.PUT("/users/:id/status", h.SetUserStatus)

		// Catalog
		admin.GET("/lead-magnets", h.ListLeadMagnets)
		admin.POST("/lead-magnets", h.CreateLeadMagnet)
		admin.GET("/lead-magnets/stats", h.LeadMagnetStats)
		admin.GET("/lead-magnets/issued", h.IssuedBetween)
		admin.GET("/lead-magnets/:id", h.GetLeadMagnet)
		admin.PATCH("/lead-magnets/:id", h.UpdateLeadMagnet)
		admin.DELETE("/lead-magnets/:id", h.DeleteLeadMagnet)
		admin.POST("/lead-magnets/:id/toggle", h.ToggleLeadMagnet)
		admin.GET("/offers/:id/stats", h.OfferStats)

		// Delivery
		admin.GET("/followups/eligible", h.EligibleFollowUps)
		admin.POST("/followups/run", h.RunFollowUps)
		admin.POST("/warmups/run", h.RunWarmups)
		admin.GET("/warmups/stats", h.WarmupStats)

		// Mailings
		admin.GET("/mailings", h.ListMailings)
		admin.POST("/mailings", h.CreateMailing)
		admin.GET("/mailings/users-count", h.MailingUsersCount)
		admin.POST("/mailings/run", h.RunMailings)
		admin.GET("/mailings/:id", h.GetMailing)
		admin.PATCH("/mailings/:id", h.UpdateMailing)
		admin.DELETE("/mailings/:id", h.DeleteMailing)
		admin.POST("/mailings/:id/prepare", h.PrepareMailing)
		admin.POST("/mailings/:id/reset", h.ResetMailing)
		admin.GET("/mailings/:id/stats", h.MailingStats)
	}
}

// corsMiddleware returns the CORS chain. With no allowlist every origin is
// accepted without credentials; otherwise allowed origins are echoed.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "If-None-Match",
			middleware.HeaderAdminToken, middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", handlers.HeaderIdempotentReplay},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// Force ACAO: * even for requests without an Origin header.
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps request bodies at maxBytes; reading past it fails, which the
// handlers' binders report as 400.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix returns the group for API_BASE_PATH; "/" mounts at root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
