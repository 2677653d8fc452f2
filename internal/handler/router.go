package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"loyalty-core/internal/handler/api"
	"loyalty-core/internal/handler/middleware"
	"loyalty-core/internal/pkg/config"
)

type route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
	Mw      []gin.HandlerFunc
}

func NewRouter(
	engine *gin.Engine,
	cfg config.Config,
	authHandler *api.AuthHandler,
	rewardHandler *api.RewardHandler,
	redemptionHandler *api.RedemptionHandler,
	referralHandler *api.ReferralHandler,
	authMiddleware *middleware.AuthMiddleware,
) {
	setupMiddleware(engine, cfg)
	setupRoutes(engine, authHandler, rewardHandler, redemptionHandler, referralHandler, authMiddleware)
}

func setupMiddleware(engine *gin.Engine, cfg config.Config) {
	// Recovery must be first (outermost) to catch panics from all other middleware
	engine.Use(middleware.CustomRecovery())
	engine.Use(middleware.NewCORSMiddleware(cfg.CORS))
	engine.Use(middleware.NewLogger(cfg.Log).LoggingMiddleware())
	engine.Use(middleware.ErrorHandler())
}

func setupRoutes(
	engine *gin.Engine,
	authHandler *api.AuthHandler,
	rewardHandler *api.RewardHandler,
	redemptionHandler *api.RedemptionHandler,
	referralHandler *api.ReferralHandler,
	authMiddleware *middleware.AuthMiddleware,
) {
	engine.GET("/health", healthCheck)

	if gin.Mode() == gin.DebugMode {
		engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	apiGroup := engine.Group("/api")
	{
		auth := apiGroup.Group("/auth")
		{
			addRoutes(auth, []route{
				{Method: http.MethodPost, Path: "/login", Handler: authHandler.Login},
			})

			authRequired := auth.Group("")
			authRequired.Use(authMiddleware.RequireAuth())
			addRoutes(authRequired, []route{
				{Method: http.MethodGet, Path: "/me", Handler: authHandler.Me},
			})
		}

		me := apiGroup.Group("/me")
		me.Use(authMiddleware.RequireAuth())
		{
			addRoutes(me, []route{
				{Method: http.MethodGet, Path: "/balance", Handler: rewardHandler.GetBalance},
			})
		}

		rewards := apiGroup.Group("/rewards")
		rewards.Use(authMiddleware.RequireAuth())
		{
			addRoutes(rewards, []route{
				{Method: http.MethodGet, Path: "", Handler: rewardHandler.ListRewards},
			})
		}

		redemptions := apiGroup.Group("/redemptions")
		redemptions.Use(authMiddleware.RequireAuth())
		{
			addRoutes(redemptions, []route{
				{Method: http.MethodPost, Path: "", Handler: redemptionHandler.CreateRedemption},
				{Method: http.MethodGet, Path: "", Handler: redemptionHandler.ListActiveRedemptions},
				{Method: http.MethodGet, Path: "/stream", Handler: redemptionHandler.StreamRedemptions},
				{Method: http.MethodPost, Path: "/:id/expire", Handler: redemptionHandler.ReportExpired},
				{Method: http.MethodPost, Path: "/:id/consume", Handler: redemptionHandler.ConsumeRedemption, Mw: []gin.HandlerFunc{authMiddleware.RequireStaff()}},
			})
		}

		referrals := apiGroup.Group("/referrals")
		referrals.Use(authMiddleware.RequireAuth())
		{
			addRoutes(referrals, []route{
				{Method: http.MethodPost, Path: "/codes", Handler: referralHandler.CreateCode},
				{Method: http.MethodPost, Path: "/accept", Handler: referralHandler.AcceptReferral},
			})
		}
	}
}

// @Summary Health check
// @Description Check if the service is healthy
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Service is healthy",
	})
}

func addRoutes(g *gin.RouterGroup, rs []route) {
	for _, r := range rs {
		h := r.Handler
		if len(r.Mw) > 0 {
			h = chainHandlers(append(r.Mw, r.Handler)...)
		}
		switch r.Method {
		case http.MethodGet:
			g.GET(r.Path, h)
		case http.MethodPost:
			g.POST(r.Path, h)
		case http.MethodPut:
			g.PUT(r.Path, h)
		case http.MethodPatch:
			g.PATCH(r.Path, h)
		case http.MethodDelete:
			g.DELETE(r.Path, h)
		default:
			g.Any(r.Path, h)
		}
	}
}

func chainHandlers(hs ...gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range hs {
			h(c)
			if c.IsAborted() {
				return
			}
		}
	}
}
