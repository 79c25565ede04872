package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"attendance-console/config"
)

// 报表接口只返回 JSON、xlsx 与 ics，不加载任何页面资源
const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// exposedHeaders 跨域下载导出文件时前端需要读取的响应头
const exposedHeaders = "Content-Disposition, X-Request-ID"

// Headers 响应头中间件：安全头、报表禁止缓存、跨域放行
//
// 跨域只放行配置中的来源；预检请求直接以 204 结束。
func Headers(cfg config.HeadersConfig) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(cfg.AllowOrigins))
	for _, o := range cfg.AllowOrigins {
		origins[strings.TrimRight(o, "/")] = struct{}{}
	}
	allowHeaders := strings.Join(cfg.AllowHeaders, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", apiContentSecurityPolicy)
		if cfg.NoStore {
			h.Set("Cache-Control", "no-store")
		}

		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := origins[origin]; ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", allowHeaders)
				h.Set("Access-Control-Expose-Headers", exposedHeaders)
				h.Set("Access-Control-Max-Age", maxAge)
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
