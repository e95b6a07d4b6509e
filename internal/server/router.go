package server

import (
	"net/http"
	"time"

	"github.com/danielsherratt/webchat/internal/auth"
	"github.com/danielsherratt/webchat/internal/blob"
	"github.com/danielsherratt/webchat/internal/config"
	"github.com/danielsherratt/webchat/internal/metrics"
	"github.com/danielsherratt/webchat/internal/mw"
	"github.com/danielsherratt/webchat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化中间件和全部 REST 端点。
func SetupRouter(cfg config.Config, db *gorm.DB, files blob.Store) *gin.Engine {
	userSvc := service.NewUserService(db, cfg)
	msgSvc := service.NewMessageService(db)
	h := NewHandler(userSvc, msgSvc, files, cfg)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 轮询客户端每秒拉一次快照，限速要给足余量
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/signup", h.Signup)
	api.POST("/login", h.Login)

	authed := api.Group("")
	authed.Use(auth.Middleware(db))
	authed.POST("/logout", h.Logout)
	authed.GET("/auth", h.Auth)

	authed.GET("/messages", h.ListMessages)
	authed.POST("/messages", h.PostMessage)
	authed.POST("/messages/pin", h.PinMessage)
	authed.DELETE("/messages", h.DeleteMessages)
	authed.GET("/messages/files", h.SharedFiles)

	authed.POST("/upload", h.Upload)
	authed.GET("/upload", h.ListUploads)
	authed.DELETE("/upload", h.DeleteUpload)

	authed.GET("/users", h.ListUsers)
	authed.POST("/users", h.CreateUser)
	authed.PUT("/users/:id", h.UpdateUser)
	authed.DELETE("/users/:id", h.DeleteUser)
	authed.POST("/me/password", h.ChangePassword)

	return r
}
