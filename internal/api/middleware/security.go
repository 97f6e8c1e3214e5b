package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// SecurityHeaders 通用安全响应头；API 响应禁止缓存，/uploads 下的凭证文件允许私有缓存
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; img-src 'self' data:; frame-ancestors 'none'")

		if strings.HasPrefix(c.Request.URL.Path, "/uploads/") {
			h.Set("Cache-Control", "private, max-age=3600")
		} else {
			h.Set("Cache-Control", "no-store")
		}
		c.Next()
	}
}
