package server

import (
	"fmt"
	"strings"
	"time"

	"laundry-go-app/backend/internal/handler"
	"laundry-go-app/backend/internal/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterOptions struct {
	DBHealthHandler *handler.DBHealthHandler
	AuthMW          middleware.Authenticator
}

// NewRouter 构建应用的 Gin Engine，汇总健康监控接口与公共中间件配置。
func NewRouter(opts RouterOptions) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// gin 中间件配置
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowAllOrigins:  false,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
		AllowOriginFunc: func(origin string) bool {
			if origin == "" {
				return false
			}
			if origin == "null" {
				return true
			}
			if strings.HasPrefix(origin, "http://localhost:") {
				return true
			}
			if strings.HasPrefix(origin, "http://127.0.0.1:") {
				return true
			}
			return false
		},
	}))
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: gin.LogFormatter(func(params gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s\" %d %s\n",
				params.ClientIP,
				params.TimeStamp.Format(time.RFC3339),
				params.Method,
				params.Path,
				params.StatusCode,
				params.Latency,
			)
		}),
	}))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		if opts.DBHealthHandler != nil {
			// 数据库健康接口只对登录用户开放，管理员角色在 Handler 内校验。
			database := api.Group("/admin/database")
			if opts.AuthMW != nil {
				database.Use(opts.AuthMW.Handle())
			}
			database.GET("/health", opts.DBHealthHandler.Health)
			database.GET("/stats", opts.DBHealthHandler.Stats)
			database.GET("/latency-history", opts.DBHealthHandler.LatencyHistory)
			database.GET("/performance", opts.DBHealthHandler.Performance)
			database.POST("/maintenance", opts.DBHealthHandler.Maintenance)
			database.GET("/integrity", opts.DBHealthHandler.Integrity)
			database.GET("/migrations", opts.DBHealthHandler.Migrations)
			database.GET("/resources", opts.DBHealthHandler.Resources)
			database.POST("/access-log", opts.DBHealthHandler.AccessLog)
			database.POST("/backup", opts.DBHealthHandler.Backup)
			database.GET("/incidents", opts.DBHealthHandler.Incidents)
		}
	}

	return r
}
