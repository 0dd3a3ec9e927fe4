package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/tuition-api/internal/middleware"
	"github.com/noah-isme/tuition-api/pkg/config"
	"github.com/noah-isme/tuition-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/tuition-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/tuition-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, app *application, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics))

	r.GET("/health", app.observability.Health)
	r.GET("/ready", app.observability.Ready)
	r.GET("/metrics", app.observability.Prometheus)
	r.GET("/files/:token", app.profiles.Download)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.AuthPerSecond, cfg.RateLimit.AuthBurst)
	authRequired := middleware.JWT(app.auth)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.WithResponseMeta())

	auth := api.Group("/auth")
	auth.Use(limiter.Middleware())
	auth.POST("/login", app.authHandler.Login)
	auth.POST("/otp/request", app.authHandler.RequestOTP)
	auth.POST("/otp/verify", app.authHandler.VerifyOTP)
	auth.POST("/register", middleware.OptionalJWT(app.auth), app.authHandler.Register)
	auth.POST("/refresh", app.authHandler.Refresh)
	auth.POST("/logout", authRequired, app.authHandler.Logout)

	api.GET("/session", authRequired, app.authHandler.Session)

	me := api.Group("/me", authRequired, middleware.RequireAnyRole())
	me.GET("/profile", app.profiles.Get)
	me.PUT("/profile", app.profiles.Update)
	me.POST("/profile/photo", app.profiles.UploadPhoto)

	own := me.Group("", middleware.RequireStudent())
	own.GET("/student", app.students.Me)
	own.GET("/fees", app.fees.ListOwn)
	own.POST("/fees/pay", app.fees.PayPrevious)

	admin := api.Group("", authRequired, middleware.RequireAdmin())
	admin.GET("/students", app.students.List)
	admin.GET("/students/stats", app.students.Stats)
	admin.GET("/students/:id", app.students.Get)
	admin.PUT("/students/:id", app.students.Update)
	admin.GET("/students/:id/fees", app.fees.ListForStudent)
	admin.POST("/students/:id/fees", app.fees.AdminMark)
	admin.GET("/students/:id/notifications", app.notifications.List)
	admin.POST("/students/:id/notifications", app.notifications.Queue)
	admin.GET("/fees/report", middleware.Audit(app.audit, logr, "fees.report.download", "fees"), app.fees.Report)

	functions := r.Group("/functions", middleware.FunctionJWT(app.auth))
	functions.POST("/assign-admin-role", app.gateway.AssignAdminRole)
	functions.POST("/delete-account", app.gateway.DeleteAccount)
	functions.POST("/send-sms", app.gateway.SendSMS)

	return r
}
