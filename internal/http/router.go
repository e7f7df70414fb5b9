// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// compression, CORS, security headers, authentication, idempotency, and rate
// limiting.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/ecoprenda-backend/docs"
	"github.com/tbourn/ecoprenda-backend/internal/auth"
	"github.com/tbourn/ecoprenda-backend/internal/config"
	"github.com/tbourn/ecoprenda-backend/internal/geo"
	"github.com/tbourn/ecoprenda-backend/internal/http/handlers"
	"github.com/tbourn/ecoprenda-backend/internal/http/middleware"
	"github.com/tbourn/ecoprenda-backend/internal/media"
	"github.com/tbourn/ecoprenda-backend/internal/repo"
	"github.com/tbourn/ecoprenda-backend/internal/services"
	"github.com/tbourn/ecoprenda-backend/internal/vision"
)

// Collaborators are the external systems behind the services. Nil fields
// fall back to local storage or disabled implementations.
type Collaborators struct {
	Images     media.Store
	Classifier vision.Classifier
	Geocoder   geo.Geocoder
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and mounts the public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID, then the request-scoped logger for services
//  3. RedactingLogger: access log with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter and gzip
//  6. Metrics
//  7. CORS and security headers, so error responses stay readable by browsers
//  8. Authenticate: bearer token or X-User-ID
//  9. Idempotency validator (before rate limiting to allow bypass on replay)
//  10. Rate limiter (per user/IP, bypass on replay)
func RegisterRoutes(r *gin.Engine, db *gorm.DB, collab Collaborators, cfg config.Config) *handlers.Handlers {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.ContextLogger())
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{middleware.HeaderUserID, middleware.HeaderIdempotencyKey},
		SkipPaths:   []string{"/health", "/metrics"},
	}))
	r.Use(middleware.Recovery())

	r.Use(limitBody(cfg.MaxBodyBytes))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	useCORS(r, cfg.CORS)
	base := strings.TrimRight(cfg.APIBasePath, "/")
	var mediaPrefix string
	if m := strings.TrimRight(cfg.Media.BaseURL, "/"); strings.HasPrefix(m, "/") {
		mediaPrefix = m + "/"
	}
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{base + "/session", base + "/messages", base + "/users"},
		EnablePolicy:    true,
		MediaPrefix:     mediaPrefix,
	}))

	var issuer *auth.Issuer
	if cfg.Auth.Secret != "" {
		issuer = auth.NewIssuer(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TTL)
	}
	var parser middleware.TokenParser
	if issuer != nil {
		parser = issuer
	}
	r.Use(middleware.Authenticate(parser, cfg.Auth.AllowHeader))

	recorder := &handlers.IdempotencyRecorder{DB: db, TTL: cfg.IdempotencyTTL}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, recorder.Exists))

	rl := middleware.NewRateLimiter(middleware.RateOptions{
		RPS:        cfg.RateRPS,
		Burst:      cfg.RateBurst,
		WriteRPS:   cfg.RateWriteRPS,
		WriteBurst: cfg.RateWriteBurst,
		Key:        middleware.KeyByUserOrIP(),
	})
	r.Use(rl.Handler())

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", health(db))

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = cfg.APIBasePath
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	images := collab.Images
	if images == nil {
		images = media.NewLocalStore(cfg.Media.Dir, cfg.Media.BaseURL)
	}
	if mediaPrefix != "" {
		r.Static(cfg.Media.BaseURL, cfg.Media.Dir)
	}

	h := handlers.New(buildDeps(db, collab, images, cfg, issuer, recorder))
	mountAPI(groupWithPrefix(r, cfg.APIBasePath), h)
	return h
}

// buildDeps assembles the service graph.
func buildDeps(db *gorm.DB, collab Collaborators, images media.Store, cfg config.Config, issuer *auth.Issuer, recorder *handlers.IdempotencyRecorder) handlers.Deps {
	classifier := collab.Classifier
	if classifier == nil {
		classifier = vision.Disabled{}
	}
	geocoder := collab.Geocoder
	if geocoder == nil {
		geocoder = geo.Disabled{}
	}

	achievements := &services.AchievementService{DB: db}
	messages := &services.MessageService{DB: db}
	campaigns := &services.CampaignService{DB: db}

	d := handlers.Deps{
		Users: &services.UserService{DB: db, Geocoder: geocoder},
		Listings: &services.ListingService{
			DB:                  db,
			Images:              images,
			Classifier:          classifier,
			Achievements:        achievements,
			ClassifierThreshold: cfg.Classifier.Threshold,
			SearchThreshold:     cfg.SearchThreshold,
		},
		Transactions: &services.TransactionService{DB: db, Notifier: messages, Achievements: achievements},
		Messages:     messages,
		Achievements: achievements,
		Impact:       &services.ImpactService{DB: db},
		Foundations: &services.FoundationService{
			DB:        db,
			Geocoder:  geocoder,
			Campaigns: campaigns,
			MapCenter: geo.Point{Lat: cfg.Map.CenterLat, Lng: cfg.Map.CenterLng},
		},
		Campaigns:   campaigns,
		Idempotency: recorder,
		BasePath:    strings.TrimRight(cfg.APIBasePath, "/"),
		ConversationStats: func(ctx context.Context, a, b uint) (int64, *time.Time, error) {
			return repo.ConversationStats(ctx, db, a, b)
		},
	}
	if issuer != nil {
		d.Tokens = issuer
	}
	return d
}

// mountAPI registers every public endpoint on g.
func mountAPI(g *gin.RouterGroup, h *handlers.Handlers) {
	// Users and session
	g.POST("/users", h.Register)
	g.GET("/session", h.Session)
	g.GET("/users/:id", h.GetProfile)
	g.PUT("/users/me/location", h.UpdateMyLocation)

	// Administration
	g.PUT("/admin/users/:id/role", h.SetRole)
	g.POST("/admin/users/:id/achievements/:code", h.UnlockAchievement)
	g.GET("/admin/disputes", h.ListDisputes)

	// Listings
	g.GET("/listings", h.ListListings)
	g.POST("/listings", h.CreateListing)
	g.GET("/listings/mine", h.ListMyListings)
	g.POST("/listings/suggest-category", h.SuggestCategory)
	g.GET("/listings/:id", h.GetListing)
	g.PATCH("/listings/:id", h.UpdateListing)
	g.DELETE("/listings/:id", h.DeleteListing)
	g.POST("/listings/:id/takedown", h.TakeDownListing)
	g.POST("/listings/:id/exchange", h.ProposeExchange)
	g.POST("/listings/:id/purchase", h.ProposePurchase)
	g.POST("/listings/:id/donate", h.ProposeDonation)

	// Transactions
	g.GET("/transactions/mine", h.ListMyTransactions)
	g.GET("/transactions/:id", h.GetTransaction)
	g.POST("/transactions/:id/accept", h.AcceptTransaction)
	g.POST("/transactions/:id/reject", h.RejectTransaction)
	g.POST("/transactions/:id/ship", h.ShipTransaction)
	g.POST("/transactions/:id/confirm", h.ConfirmTransaction)
	g.POST("/transactions/:id/cancel", h.CancelTransaction)
	g.POST("/transactions/:id/dispute", h.DisputeTransaction)
	g.POST("/transactions/:id/resolve", h.ResolveTransaction)

	// Messages
	g.GET("/messages", h.ListConversations)
	g.POST("/messages", h.SendMessage)
	g.GET("/messages/:userId", h.GetConversation)

	// Impact and achievements
	g.GET("/impact/calculate", h.CalculateImpact)
	g.GET("/impact/me", h.MyImpact)
	g.GET("/impact/platform", h.PlatformImpact)
	g.GET("/impact/report", h.ImpactReport)
	g.GET("/achievements", h.ListAchievements)
	g.GET("/achievements/mine", h.MyAchievements)

	// Foundations and the map
	g.GET("/foundations", h.ListFoundations)
	g.POST("/foundations", h.CreateFoundation)
	g.GET("/foundations/:id", h.GetFoundation)
	g.GET("/foundations/:id/dashboard", h.FoundationDashboard)
	g.GET("/foundations/:id/transactions", h.ListFoundationTransactions)
	g.PUT("/foundations/:id/location", h.UpdateFoundationLocation)
	g.GET("/map", h.MapData)

	// Campaigns
	g.GET("/campaigns", h.ListCampaigns)
	g.POST("/campaigns", h.CreateCampaign)
	g.GET("/campaigns/:id", h.GetCampaign)
	g.PUT("/campaigns/:id", h.UpdateCampaign)
	g.DELETE("/campaigns/:id", h.DeleteCampaign)
	g.POST("/campaigns/:id/donate", h.DonateToCampaign)
}

// useCORS installs gin-contrib/cors. With no configured origins every origin
// is allowed without credentials; otherwise the allowlist is echoed back.
func useCORS(r *gin.Engine, c config.CORSConfig) {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match", middleware.HeaderUserID, middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Location", "Idempotency-Replayed", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(c.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		base.AllowAllOrigins = true
		r.Use(cors.New(base))
		return
	}

	allowed := make(map[string]struct{}, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	base.AllowOrigins = c.AllowedOrigins
	r.Use(cors.New(base))
}

// health reports liveness and whether the database answers a ping.
func health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status})
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error. maxBytes <= 0 disables the cap.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
