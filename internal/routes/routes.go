package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zaqqye/fiche_backend_v1/internal/config"
	"github.com/zaqqye/fiche_backend_v1/internal/controllers"
	"github.com/zaqqye/fiche_backend_v1/internal/metrics"
	"github.com/zaqqye/fiche_backend_v1/internal/middleware"
	"github.com/zaqqye/fiche_backend_v1/internal/services"
	"github.com/zaqqye/fiche_backend_v1/internal/ws"
)

// Deps is everything the HTTP layer is wired to. Hub and Gatherer are
// optional.
type Deps struct {
	Cfg      *config.Config
	Auth     *services.AuthService
	Fiches   *services.FicheService
	Guardian *services.GuardianService
	Hub      *ws.ConsoleHub
	Gatherer prometheus.Gatherer
}

func Register(r *gin.Engine, d Deps) {
	authCtrl := &controllers.AuthController{Auth: d.Auth}
	ficheCtrl := &controllers.FicheController{Fiches: d.Fiches}
	guardianCtrl := &controllers.GuardianController{Guardian: d.Guardian}
	inviteCtrl := &controllers.InviteController{Auth: d.Auth}
	cfgCtrl := &controllers.ConfigController{Cfg: d.Cfg}

	r.GET("/", middleware.OptionalAuth(d.Auth), controllers.Entry)
	if d.Gatherer != nil {
		// Operators only; the counters expose fiche volumes.
		r.GET("/metrics", middleware.AuthMiddleware(d.Auth), gin.WrapH(metrics.Handler(d.Gatherer)))
	}

	// Public
	r.GET("/api/v1/config/public", cfgCtrl.Public)

	auth := r.Group("/api/v1/auth")
	{
		auth.POST("/register", authCtrl.Register)
		auth.POST("/login", authCtrl.Login)
		auth.POST("/refresh", authCtrl.Refresh)
		auth.POST("/password/forgot", authCtrl.ForgotPassword)
		auth.POST("/password/reset", authCtrl.ResetPassword)
	}

	// Guardian form, gated by the access code only
	guardian := r.Group("/api/v1/guardian")
	{
		guardian.GET("/fiches/:code", guardianCtrl.Get)
		guardian.POST("/fiches/:code", guardianCtrl.Submit)
	}

	// Protected
	api := r.Group("/api/v1", middleware.AuthMiddleware(d.Auth))
	{
		api.GET("/auth/me", authCtrl.Me)
		api.POST("/auth/logout", authCtrl.Logout)

		fiches := api.Group("/fiches")
		{
			fiches.GET("", ficheCtrl.List)
			fiches.POST("", ficheCtrl.Create)
			fiches.POST("/print", ficheCtrl.Print)
			fiches.POST("/import", ficheCtrl.Import)
			fiches.GET("/:id", ficheCtrl.Get)
			fiches.DELETE("/:id", ficheCtrl.Delete)
			fiches.GET("/:id/invitation", ficheCtrl.Invitation)
			fiches.POST("/:id/simulate", ficheCtrl.Simulate)
			fiches.POST("/:id/sign", ficheCtrl.Sign)
			fiches.POST("/:id/remind", ficheCtrl.Remind)
		}

		api.POST("/operators/invitations", inviteCtrl.Create)
		api.GET("/operators/invitations", inviteCtrl.List)

		api.GET("/ws/console", ws.ConsoleHandler(d.Hub))
	}
}
