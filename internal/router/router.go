package router

import (
	"net/http"

	"github.com/cahierdetextes/backend/config"
	"github.com/cahierdetextes/backend/internal/embed"
	"github.com/cahierdetextes/backend/internal/handler"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(
	cfg *config.Config,
	logbookHandler *handler.LogbookHandler,
	guideHandler *handler.GuideHandler,
) *gin.Engine {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
	}))

	// 压缩中间件需要在注册路由之前添加
	embed.SetupRouter(r)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		logbookHandler.RegisterRoutes(api)
		guideHandler.RegisterRoutes(api)
	}

	return r
}
