package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-console/pkg/response"
)

// BodyLimit 请求体大小限制中间件
// 声明长度超限直接返回 413；未声明长度的请求体读到上限后报 *http.MaxBytesError，由 Handler 映射为 413
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
			c.Abort()
			return
		}
		if c.Request.Body != nil && c.Request.Body != http.NoBody {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		c.Next()
	}
}
