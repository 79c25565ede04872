package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendance-console/config"
	"attendance-console/internal/api/handler"
	"attendance-console/internal/api/middleware"
	"attendance-console/pkg/jwt"
	"attendance-console/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Headers(cfg.Server.Headers))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	v1.Use(middleware.RateLimit(rdb, cfg.Report.RateLimit, time.Minute))

	authorized := v1.Group("")
	authorized.Use(middleware.JWTAuth(jwtMgr))
	{
		// 考勤矩阵报表
		reports := authorized.Group("/reports/attendance-matrix")
		reports.Use(middleware.RoleAuth("admin", "supervisor"))
		{
			reports.GET("", h.Report.GetMatrix)
			reports.GET("/cell", h.Report.GetCellDetail)
			reports.POST("/refresh", h.Report.RequestRefresh)
			reports.GET("/status", h.Report.GetStatus)
			reports.GET("/stream", h.Stream.Stream)
		}

		// 导出
		export := authorized.Group("/export")
		{
			export.GET("/attendance-matrix", middleware.RoleAuth("admin", "supervisor"), h.Export.ExportMatrix)
			export.GET("/attendance-calendar", h.Export.ExportCalendar) // 本人或管理角色（Handler 层鉴权）
		}
	}

	return r
}
