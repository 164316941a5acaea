package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/whisper/moderation/internal/ban"
	"github.com/whisper/moderation/internal/config"
	"github.com/whisper/moderation/internal/jobs"
	"github.com/whisper/moderation/internal/lexicon"
	"github.com/whisper/moderation/internal/metrics"
	"github.com/whisper/moderation/internal/moderation"
	"github.com/whisper/moderation/internal/ratelimit"
	"github.com/whisper/moderation/internal/repositories"
)

// Deps are the services the handlers drive. Limiter and Audit may be nil.
type Deps struct {
	Lexicon   *lexicon.Service
	Bans      *ban.Manager
	Engine    *moderation.Engine
	Sweeper   *jobs.Sweeper
	Audit     repositories.AuditLog
	Limiter   *ratelimit.Limiter
	JWTSecret string
	Limits    config.RateLimitConfig
	// Ready reports backend health for /healthz; nil means always ready.
	Ready func(ctx context.Context) error
}

// Handler holds the HTTP handlers.
type Handler struct {
	lexicon *lexicon.Service
	bans    *ban.Manager
	engine  *moderation.Engine
	ledger  *moderation.Ledger
	sweeper *jobs.Sweeper
	audit   repositories.AuditLog
	limiter *ratelimit.Limiter
	ready   func(ctx context.Context) error

	scanRule   ratelimit.Rule
	loginRule  ratelimit.Rule
	appealRule ratelimit.Rule
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		lexicon:    d.Lexicon,
		bans:       d.Bans,
		engine:     d.Engine,
		ledger:     d.Engine.Ledger(),
		sweeper:    d.Sweeper,
		audit:      d.Audit,
		limiter:    d.Limiter,
		ready:      d.Ready,
		scanRule:   ratelimit.RuleScan.WithLimit(d.Limits.ScansPer10s),
		loginRule:  ratelimit.RuleLogin.WithLimit(d.Limits.LoginsPerMinute),
		appealRule: ratelimit.RuleAppeal,
	}
}

// NewRouter builds the gin engine with every route mounted.
func NewRouter(d Deps, admin *AdminLimiter) *gin.Engine {
	h := NewHandler(d)
	if admin == nil {
		admin = NewAdminLimiter(d.Limits.AdminPerSecond, d.Limits.AdminBurst)
	}

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", h.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(JWTAuth([]byte(d.JWTSecret)))

	mod := v1.Group("/moderation")
	{
		svc := mod.Group("", RequireRole(RoleService, RoleAdmin))
		svc.POST("/messages/scan", h.ScanMessage)
		svc.POST("/login-check", h.LoginCheck)
		svc.GET("/users/:id/can-send", h.CanSend)

		mod.GET("/me/warnings", h.MyWarnings)
		mod.POST("/warnings/:id/appeal", h.Appeal)
	}

	adm := v1.Group("/admin", RequireRole(RoleAdmin), admin.Middleware())
	{
		words := adm.Group("/banned-words")
		words.GET("", h.ListTerms)
		words.POST("", h.CreateTerm)
		words.GET("/:id", h.GetTerm)
		words.PUT("/:id", h.UpdateTerm)
		words.DELETE("/:id", h.DeactivateTerm)
		words.POST("/:id/activate", h.ActivateTerm)

		warnings := adm.Group("/warnings")
		warnings.POST("", h.IssueWarning)
		warnings.POST("/bulk-resolve", h.BulkResolve)
		warnings.PUT("/:id", h.UpdateWarning)
		warnings.POST("/:id/resolve", h.ResolveWarning)

		users := adm.Group("/users/:id")
		users.GET("/warnings", h.UserWarnings)
		users.POST("/block", h.BlockUser)
		users.POST("/unblock", h.UnblockUser)
		users.POST("/reset-warnings", h.ResetWarnings)
		users.GET("/restriction", h.Restriction)
		users.GET("/audit", h.UserAudit)

		adm.GET("/moderation/stats", h.Stats)
		adm.POST("/moderation/sweep", h.Sweep)
	}

	return router
}

// Health reports liveness and, when configured, backend readiness.
func (h *Handler) Health(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
