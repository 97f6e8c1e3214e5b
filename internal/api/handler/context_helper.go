package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"cems/internal/api/middleware"
	"cems/internal/model"
	"cems/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	s := c.GetString(middleware.CtxUserID)
	if s == "" {
		response.Unauthorized(c, 10002, "Authentication required")
		return "", false
	}
	return s, true
}

// MustGetCaller 同时提取 user_id 与角色
func MustGetCaller(c *gin.Context) (string, model.Role, bool) {
	id, ok := MustGetUserID(c)
	if !ok {
		return "", "", false
	}
	role := model.Role(c.GetString(middleware.CtxRole))
	if !role.Valid() {
		response.Unauthorized(c, 10002, "Authentication required")
		return "", "", false
	}
	return id, role, true
}

// OptionalCaller 匿名请求返回空值
func OptionalCaller(c *gin.Context) (string, model.Role) {
	return c.GetString(middleware.CtxUserID), model.Role(c.GetString(middleware.CtxRole))
}

// tokenMeta 当前 Access Token 的 jti 与过期时间，用于登出拉黑
func tokenMeta(c *gin.Context) (string, time.Time) {
	jti := c.GetString(middleware.CtxTokenJTI)
	exp, _ := c.Get(middleware.CtxTokenExp)
	t, _ := exp.(time.Time)
	return jti, t
}
