package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"cems/internal/dto"
	"cems/internal/service"
	"cems/pkg/response"
)

// AdminHandler 管理后台 HTTP 处理器（审核、取消、统计、系统设置、公告）
type AdminHandler struct {
	adminSvc    service.AdminService
	settingsSvc service.SettingsService
}

// NewAdminHandler 创建 AdminHandler
func NewAdminHandler(adminSvc service.AdminService, settingsSvc service.SettingsService) *AdminHandler {
	return &AdminHandler{adminSvc: adminSvc, settingsSvc: settingsSvc}
}

// ────────────────────── 统计 ──────────────────────

// Dashboard 仪表盘汇总
// GET /api/v1/admin/dashboard-stats
func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.adminSvc.Dashboard(c.Request.Context())
	if err != nil {
		h.handleAdminError(c, err)
		return
	}
	response.OK(c, stats)
}

// Analytics 周期分析，period 为天数（默认 30）
// GET /api/v1/admin/analytics
func (h *AdminHandler) Analytics(c *gin.Context) {
	var req dto.AnalyticsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	result, err := h.adminSvc.Analytics(c.Request.Context(), &req)
	if err != nil {
		h.handleAdminError(c, err)
		return
	}
	response.OK(c, result)
}

// ────────────────────── 活动审核 ──────────────────────

// ListEvents 全部活动（任意状态）
// GET /api/v1/admin/events
func (h *AdminHandler) ListEvents(c *gin.Context) {
	var req dto.AdminEventListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	events, total, err := h.adminSvc.ListEvents(c.Request.Context(), &req)
	if err != nil {
		h.handleAdminError(c, err)
		return
	}
	response.OKPage(c, events, total, req.GetPage(), req.GetPageSize())
}

// GetEvent 活动详情
// GET /api/v1/admin/events/:id
func (h *AdminHandler) GetEvent(c *gin.Context) {
	event, err := h.adminSvc.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleAdminError(c, err)
		return
	}
	response.OK(c, event)
}

// UpdateEventStatus 批准 / 驳回
// PUT /api/v1/admin/events/:id/status
func (h *AdminHandler) UpdateEventStatus(c *gin.Context) {
	adminID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateEventStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	event, err := h.adminSvc.UpdateEventStatus(c.Request.Context(), c.Param("id"), &req, adminID)
	if err != nil {
		h.handleAdminError(c, err)
		return
	}
	response.OKMessage(c, "Event "+req.Status+" successfully", event)
}

// CancelEvent 取消活动并通知报名学生与组织者
// PUT /api/v1/admin/events/:id/cancel
func (h *AdminHandler) CancelEvent(c *gin.Context) {
	adminID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CancelEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	event, err := h.adminSvc.CancelEvent(c.Request.Context(), c.Param("id"), &req, adminID)
	if err != nil {
		h.handleAdminError(c, err)
		return
	}
	response.OKMessage(c, "Event cancelled successfully", event)
}

// ────────────────────── 系统设置 ──────────────────────

// ListSettings 全部设置项（含默认值）
// GET /api/v1/admin/settings
func (h *AdminHandler) ListSettings(c *gin.Context) {
	settings, err := h.settingsSvc.List(c.Request.Context())
	if err != nil {
		h.handleAdminError(c, err)
		return
	}
	response.OK(c, settings)
}

// UpdateSettings 批量更新设置
// PUT /api/v1/admin/settings
func (h *AdminHandler) UpdateSettings(c *gin.Context) {
	adminID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	settings, err := h.settingsSvc.Update(c.Request.Context(), &req, adminID)
	if err != nil {
		h.handleAdminError(c, err)
		return
	}
	response.OKMessage(c, "Settings updated successfully", settings)
}

// ────────────────────── 公告 ──────────────────────

// Announce 向指定角色或全体发送公告
// POST /api/v1/admin/announcements
func (h *AdminHandler) Announce(c *gin.Context) {
	adminID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.AnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	result, err := h.adminSvc.Announce(c.Request.Context(), &req, adminID)
	if err != nil {
		h.handleAdminError(c, err)
		return
	}
	response.Created(c, "Announcement sent successfully", result)
}

// handleAdminError 统一处理管理模块的业务错误
func (h *AdminHandler) handleAdminError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEventNotFound):
		response.NotFound(c, 14001, err.Error())
	case errors.Is(err, service.ErrEventInvalidTransition):
		response.BadRequest(c, 17001, err.Error())
	case errors.Is(err, service.ErrCancelReasonTooShort):
		response.BadRequest(c, 17002, err.Error())
	case errors.Is(err, service.ErrEventTimeConflict):
		response.BadRequest(c, 14007, err.Error())
	case errors.Is(err, service.ErrSettingUnknown):
		response.BadRequest(c, 17003, err.Error())
	case errors.Is(err, service.ErrSettingInvalid):
		response.BadRequest(c, 17004, err.Error())
	default:
		response.InternalError(c)
	}
}
