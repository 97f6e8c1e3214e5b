package handler

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"cems/internal/dto"
	"cems/internal/service"
	"cems/pkg/response"
)

// RegistrationHandler 报名模块 HTTP 处理器
// 路由参数统一为 :id，按接口含义分别指活动 ID 或报名 ID
type RegistrationHandler struct {
	regSvc service.RegistrationService
}

// NewRegistrationHandler 创建 RegistrationHandler
func NewRegistrationHandler(regSvc service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{regSvc: regSvc}
}

// Register 报名活动，成功返回凭证
// POST /api/v1/registrations/:id
func (h *RegistrationHandler) Register(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.regSvc.Register(c.Request.Context(), c.Param("id"), studentID)
	if err != nil {
		h.handleRegistrationError(c, err)
		return
	}
	response.Created(c, "Successfully registered for event", result)
}

// Unregister 取消报名（活动开始前）
// DELETE /api/v1/registrations/:id
func (h *RegistrationHandler) Unregister(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.regSvc.Unregister(c.Request.Context(), c.Param("id"), studentID); err != nil {
		h.handleRegistrationError(c, err)
		return
	}
	response.OKMessage(c, "Successfully unregistered from event", nil)
}

// ListMine 我的报名
// GET /api/v1/registrations/my-registrations?status=all|upcoming|past
func (h *RegistrationHandler) ListMine(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.MyRegistrationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	list, total, err := h.regSvc.ListMine(c.Request.Context(), studentID, &req)
	if err != nil {
		h.handleRegistrationError(c, err)
		return
	}
	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetPass 获取报名凭证（缺失时按存储载荷重新生成）
// GET /api/v1/registrations/:id/pass
func (h *RegistrationHandler) GetPass(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.regSvc.GetPass(c.Request.Context(), c.Param("id"), studentID)
	if err != nil {
		h.handleRegistrationError(c, err)
		return
	}
	response.OK(c, result)
}

// Calendar 下载活动日历文件
// GET /api/v1/registrations/:id/calendar.ics
func (h *RegistrationHandler) Calendar(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	body, filename, err := h.regSvc.ExportCalendar(c.Request.Context(), c.Param("id"), studentID)
	if err != nil {
		h.handleRegistrationError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.QueryEscape(filename))
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", body)
}

// ListByEvent 活动报名名单（所属组织者 / 管理员）
// GET /api/v1/registrations/event/:id
func (h *RegistrationHandler) ListByEvent(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.PaginationRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	list, total, err := h.regSvc.ListByEvent(c.Request.Context(), c.Param("id"), &req, callerID, role)
	if err != nil {
		h.handleRegistrationError(c, err)
		return
	}
	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// MarkAttendance 标记出勤
// PUT /api/v1/registrations/:id/attendance
func (h *RegistrationHandler) MarkAttendance(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.MarkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	if err := h.regSvc.MarkAttendance(c.Request.Context(), c.Param("id"), &req, callerID, role); err != nil {
		h.handleRegistrationError(c, err)
		return
	}
	response.OKMessage(c, "Attendance marked successfully", nil)
}

// SubmitFeedback 提交活动反馈（仅已出勤）
// POST /api/v1/registrations/:id/feedback
func (h *RegistrationHandler) SubmitFeedback(c *gin.Context) {
	studentID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	if err := h.regSvc.SubmitFeedback(c.Request.Context(), c.Param("id"), studentID, &req); err != nil {
		h.handleRegistrationError(c, err)
		return
	}
	response.OKMessage(c, "Feedback submitted successfully", nil)
}

// CheckIn 扫码签到
// POST /api/v1/registrations/check-in
func (h *RegistrationHandler) CheckIn(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	result, err := h.regSvc.CheckIn(c.Request.Context(), &req, callerID, role)
	if err != nil {
		h.handleRegistrationError(c, err)
		return
	}
	response.OK(c, result)
}

// handleRegistrationError 统一处理报名模块的业务错误
func (h *RegistrationHandler) handleRegistrationError(c *gin.Context, err error) {
	var limitErr *service.RegistrationLimitError
	switch {
	case errors.As(err, &limitErr):
		response.BadRequest(c, 15005, limitErr.Error())
	case errors.Is(err, service.ErrEventUnavailable):
		response.NotFound(c, 15001, err.Error())
	case errors.Is(err, service.ErrEventNotFound):
		response.NotFound(c, 14001, err.Error())
	case errors.Is(err, service.ErrRegistrationNotFound):
		response.NotFound(c, 15002, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, 12001, err.Error())
	case errors.Is(err, service.ErrNoPermission):
		response.Forbidden(c, 10003, err.Error())
	case errors.Is(err, service.ErrRegistrationDeadline):
		response.BadRequest(c, 15003, err.Error())
	case errors.Is(err, service.ErrEventFull):
		response.BadRequest(c, 15004, err.Error())
	case errors.Is(err, service.ErrAlreadyRegistered):
		response.BadRequest(c, 15006, err.Error())
	case errors.Is(err, service.ErrEventAlreadyStarted):
		response.BadRequest(c, 15007, err.Error())
	case errors.Is(err, service.ErrRegistrationCancelled):
		response.BadRequest(c, 15008, err.Error())
	case errors.Is(err, service.ErrInvalidAttendanceStatus):
		response.BadRequest(c, 15009, err.Error())
	case errors.Is(err, service.ErrInvalidRating):
		response.BadRequest(c, 15010, err.Error())
	case errors.Is(err, service.ErrFeedbackNotAttended):
		response.BadRequest(c, 15011, err.Error())
	case errors.Is(err, service.ErrFeedbackAlreadySubmitted):
		response.BadRequest(c, 15012, err.Error())
	case errors.Is(err, service.ErrInvalidTicket):
		response.BadRequest(c, 15013, err.Error())
	default:
		response.InternalError(c)
	}
}
