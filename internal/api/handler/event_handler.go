package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cems/internal/dto"
	"cems/internal/service"
	pkgerrors "cems/pkg/errors"
	"cems/pkg/response"
)

// EventHandler 活动模块 HTTP 处理器
type EventHandler struct {
	eventSvc service.EventService
}

// NewEventHandler 创建 EventHandler
func NewEventHandler(eventSvc service.EventService) *EventHandler {
	return &EventHandler{eventSvc: eventSvc}
}

// List 公开活动列表（已批准且未开始）
// GET /api/v1/events
func (h *EventHandler) List(c *gin.Context) {
	var req dto.EventListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	events, total, err := h.eventSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleEventError(c, err)
		return
	}
	response.OKPage(c, events, total, req.GetPage(), req.GetPageSize())
}

// Get 活动详情；登录学生附带本人报名状态
// GET /api/v1/events/:id
func (h *EventHandler) Get(c *gin.Context) {
	callerID, role := OptionalCaller(c)

	event, err := h.eventSvc.Get(c.Request.Context(), c.Param("id"), callerID, role)
	if err != nil {
		h.handleEventError(c, err)
		return
	}
	response.OK(c, event)
}

// Create 创建活动（组织者 / 管理员）
// POST /api/v1/events
func (h *EventHandler) Create(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	event, err := h.eventSvc.Create(c.Request.Context(), &req, callerID, role)
	if err != nil {
		h.handleEventError(c, err)
		return
	}
	response.Created(c, "Event created successfully", event)
}

// Update 更新活动（所属组织者 / 管理员）
// PUT /api/v1/events/:id
func (h *EventHandler) Update(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	var req dto.UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	event, err := h.eventSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID, role)
	if err != nil {
		h.handleEventError(c, err)
		return
	}
	response.OKMessage(c, "Event updated successfully", event)
}

// Delete 删除活动（无报名时）
// DELETE /api/v1/events/:id
func (h *EventHandler) Delete(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.eventSvc.Delete(c.Request.Context(), c.Param("id"), callerID, role); err != nil {
		h.handleEventError(c, err)
		return
	}
	response.OKMessage(c, "Event deleted successfully", nil)
}

// MyEvents 组织者本人创建的活动
// GET /api/v1/events/organizer/my-events
func (h *EventHandler) MyEvents(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.MyEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	events, total, err := h.eventSvc.MyEvents(c.Request.Context(), callerID, &req)
	if err != nil {
		h.handleEventError(c, err)
		return
	}
	response.OKPage(c, events, total, req.GetPage(), req.GetPageSize())
}

// handleEventError 统一处理活动模块的业务错误
func (h *EventHandler) handleEventError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrEventNotFound):
		response.NotFound(c, 14001, err.Error())
	case errors.Is(err, service.ErrNoPermission):
		response.Forbidden(c, 10003, err.Error())
	case errors.Is(err, service.ErrEventInvalidTime):
		response.BadRequest(c, 14002, err.Error())
	case errors.Is(err, service.ErrEventInPast):
		response.BadRequest(c, 14003, err.Error())
	case errors.Is(err, service.ErrEventInvalidDeadline):
		response.BadRequest(c, 14004, err.Error())
	case errors.Is(err, service.ErrEventCapacityExceedsVenue):
		response.BadRequest(c, 14005, err.Error())
	case errors.Is(err, service.ErrEventCapacityBelowCount):
		response.BadRequest(c, 14006, err.Error())
	case errors.Is(err, service.ErrEventTimeConflict):
		response.BadRequest(c, 14007, err.Error())
	case errors.Is(err, service.ErrEventNotEditable):
		response.BadRequest(c, 14008, err.Error())
	case errors.Is(err, service.ErrEventHasRegistrations):
		response.BadRequest(c, 14009, err.Error())
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Error(c, http.StatusConflict, 14010, "Event was modified by another request, please reload and retry")
	case errors.Is(err, service.ErrVenueNotFound):
		response.NotFound(c, 13001, err.Error())
	case errors.Is(err, service.ErrVenueInactive):
		response.BadRequest(c, 13004, err.Error())
	default:
		response.InternalError(c)
	}
}
