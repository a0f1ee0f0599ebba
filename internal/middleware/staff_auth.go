// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"

	"medassist-go/internal/model"

	"github.com/gin-gonic/gin"
)

// StaffAuthMiddleware 检查用户是否具有医护或管理员权限。
// 此中间件必须在 AuthMiddleware 之后使用。
func StaffAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 从 AuthMiddleware 设置的上下文中获取 user 对象
		user, exists := c.Get("user")
		if !exists {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
			return
		}

		currentUser, ok := user.(*model.User)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "用户数据类型错误"})
			return
		}

		// 医护与管理员对患者数据是只读访问，写操作的接口不挂此中间件
		if currentUser.Role != model.RoleAdmin && currentUser.Role != model.RoleProvider {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "权限不足，需要医护或管理员权限"})
			return
		}

		c.Next()
	}
}

// AdminAuthMiddleware 检查用户是否具有管理员权限。
// 此中间件必须在 AuthMiddleware 之后使用。
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, exists := c.Get("user")
		if !exists {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "无法获取用户信息"})
			return
		}

		currentUser, ok := user.(*model.User)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "用户数据类型错误"})
			return
		}

		if currentUser.Role != model.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "权限不足，需要管理员权限"})
			return
		}

		c.Next()
	}
}
