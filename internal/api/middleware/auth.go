package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"attendance-console/pkg/jwt"
	"attendance-console/pkg/response"
)

// 认证结果在 gin.Context 中的键，Handler 层按同名键读取
const (
	ctxUserID = "user_id"
	ctxRole   = "role"
)

// JWTAuth JWT 认证中间件
// 从 Authorization: Bearer <token> 中提取 Token，只向下游注入用户 ID 与角色
func JWTAuth(jwtMgr *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, 10002, "缺少认证头")
			c.Abort()
			return
		}

		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			response.Unauthorized(c, 10002, "认证头格式无效")
			c.Abort()
			return
		}

		claims, err := jwtMgr.ParseToken(strings.TrimSpace(token))
		if err != nil {
			response.Unauthorized(c, 10002, "Token 无效或已过期")
			c.Abort()
			return
		}

		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)

		c.Next()
	}
}

// RoleAuth 报表角色中间件
// 只放行指定角色；员工本人的日历导出不走此中间件，由 Handler 校验
func RoleAuth(allowedRoles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString(ctxRole)
		if role == "" {
			response.Unauthorized(c, 10002, "未认证")
			c.Abort()
			return
		}

		if _, ok := allowed[role]; ok {
			c.Next()
			return
		}

		response.Forbidden(c, 10003, "无权限访问")
		c.Abort()
	}
}
