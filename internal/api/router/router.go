package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"cems/config"
	"cems/internal/api/handler"
	"cems/internal/api/middleware"
	"cems/internal/model"
	"cems/pkg/jwt"
	"cems/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎；rdb 可为 nil（限流与黑名单降级）
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// ── 全局中间件 ──
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// ── 凭证文件（二维码 / PDF） ──
	r.Static("/uploads", cfg.Server.UploadDir)

	authRequired := middleware.JWTAuth(jwtMgr, rdb, logger)
	authLimit := middleware.RateLimit(rdb, cfg.RateLimit.AuthLimit, cfg.RateLimit.Window, logger)
	regLimit := middleware.RateLimit(rdb, cfg.RateLimit.RegistrationLimit, cfg.RateLimit.Window, logger)

	admin := middleware.RoleAuth(model.RoleAdmin)
	staff := middleware.RoleAuth(model.RoleOrganizer, model.RoleAdmin)
	student := middleware.RoleAuth(model.RoleStudent)

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块
		auth := v1.Group("/auth")
		{
			auth.POST("/register", authLimit, h.Auth.Register)
			auth.POST("/login", authLimit, h.Auth.Login)
			auth.POST("/refresh", authLimit, h.Auth.Refresh)
			auth.POST("/logout", authRequired, h.Auth.Logout)
			auth.GET("/me", authRequired, h.Auth.Me)
			auth.PUT("/me", authRequired, h.Auth.UpdateProfile)
			auth.PUT("/password", authRequired, h.Auth.ChangePassword)
		}

		// 活动模块（浏览可匿名）
		events := v1.Group("/events")
		{
			events.GET("", h.Event.List)
			events.GET("/organizer/my-events", authRequired, staff, h.Event.MyEvents)
			events.GET("/:id", middleware.OptionalAuth(jwtMgr), h.Event.Get)
			events.POST("", authRequired, staff, h.Event.Create)
			events.PUT("/:id", authRequired, staff, h.Event.Update)
			events.DELETE("/:id", authRequired, staff, h.Event.Delete)
		}

		// 场地模块
		venues := v1.Group("/venues")
		{
			venues.GET("", middleware.OptionalAuth(jwtMgr), h.Venue.List)
			venues.GET("/:id", h.Venue.Get)
			venues.GET("/:id/availability", h.Venue.Availability)
			venues.POST("", authRequired, admin, h.Venue.Create)
			venues.PUT("/:id", authRequired, admin, h.Venue.Update)
			venues.DELETE("/:id", authRequired, admin, h.Venue.Delete)
		}

		// 以下均需登录
		authorized := v1.Group("")
		authorized.Use(authRequired)
		{
			// 用户模块
			users := authorized.Group("/users")
			{
				users.GET("", admin, h.User.List)
				users.GET("/:id", h.User.Get)         // 本人或管理员（Service 层鉴权）
				users.GET("/:id/stats", h.User.Stats) // 同上
				users.PUT("/:id", h.User.Update)      // 同上
				users.DELETE("/:id", admin, h.User.Delete)
				users.PUT("/:id/role", admin, h.User.AssignRole)
			}

			// 报名模块；:id 在学生接口中为活动 ID，在 attendance 中为报名 ID
			regs := authorized.Group("/registrations")
			{
				regs.GET("/my-registrations", student, h.Registration.ListMine)
				regs.POST("/check-in", staff, h.Registration.CheckIn)
				regs.GET("/event/:id", staff, h.Registration.ListByEvent)
				regs.GET("/event/:id/export", staff, h.Export.ExportRegistrations)
				regs.POST("/:id", student, regLimit, h.Registration.Register)
				regs.DELETE("/:id", student, h.Registration.Unregister)
				regs.GET("/:id/pass", student, h.Registration.GetPass)
				regs.GET("/:id/calendar.ics", student, h.Registration.Calendar)
				regs.POST("/:id/feedback", student, h.Registration.SubmitFeedback)
				regs.PUT("/:id/attendance", staff, h.Registration.MarkAttendance)
			}

			// 通知模块
			notifications := authorized.Group("/notifications")
			{
				notifications.GET("", h.Notification.List)
				notifications.PUT("/mark-all-read", h.Notification.MarkAllRead)
				notifications.PUT("/:id/read", h.Notification.MarkRead)
				notifications.DELETE("", h.Notification.DeleteAll)
				notifications.DELETE("/:id", h.Notification.Delete)
			}

			// 管理后台
			adm := authorized.Group("/admin", admin)
			{
				adm.GET("/dashboard-stats", h.Admin.Dashboard)
				adm.GET("/analytics", h.Admin.Analytics)
				adm.GET("/events", h.Admin.ListEvents)
				adm.GET("/events/:id", h.Admin.GetEvent)
				adm.PUT("/events/:id/status", h.Admin.UpdateEventStatus)
				adm.PUT("/events/:id/cancel", h.Admin.CancelEvent)
				adm.GET("/settings", h.Admin.ListSettings)
				adm.PUT("/settings", h.Admin.UpdateSettings)
				adm.POST("/announcements", h.Admin.Announce)
			}
		}
	}

	return r
}
