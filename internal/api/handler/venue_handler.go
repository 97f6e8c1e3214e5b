package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"cems/internal/dto"
	"cems/internal/model"
	"cems/internal/service"
	"cems/pkg/response"
)

// VenueHandler 场地模块 HTTP 处理器
type VenueHandler struct {
	venueSvc service.VenueService
}

// NewVenueHandler 创建 VenueHandler
func NewVenueHandler(venueSvc service.VenueService) *VenueHandler {
	return &VenueHandler{venueSvc: venueSvc}
}

// List 场地列表；include_inactive 仅对管理员生效
// GET /api/v1/venues
func (h *VenueHandler) List(c *gin.Context) {
	var req dto.VenueListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}
	if _, role := OptionalCaller(c); role != model.RoleAdmin {
		req.IncludeInactive = false
	}

	venues, err := h.venueSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handleVenueError(c, err)
		return
	}
	response.OK(c, venues)
}

// Get 场地详情
// GET /api/v1/venues/:id
func (h *VenueHandler) Get(c *gin.Context) {
	venue, err := h.venueSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleVenueError(c, err)
		return
	}
	response.OK(c, venue)
}

// Availability 指定日期的已占用时段
// GET /api/v1/venues/:id/availability?date=YYYY-MM-DD
func (h *VenueHandler) Availability(c *gin.Context) {
	var req dto.VenueAvailabilityRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	result, err := h.venueSvc.Availability(c.Request.Context(), c.Param("id"), req.Date)
	if err != nil {
		h.handleVenueError(c, err)
		return
	}
	response.OK(c, result)
}

// Create 创建场地（管理员）
// POST /api/v1/venues
func (h *VenueHandler) Create(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	venue, err := h.venueSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleVenueError(c, err)
		return
	}
	response.Created(c, "Venue created successfully", venue)
}

// Update 更新场地（管理员）
// PUT /api/v1/venues/:id
func (h *VenueHandler) Update(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateVenueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationFailed(c, err)
		return
	}

	venue, err := h.venueSvc.Update(c.Request.Context(), c.Param("id"), &req, callerID)
	if err != nil {
		h.handleVenueError(c, err)
		return
	}
	response.OKMessage(c, "Venue updated successfully", venue)
}

// Delete 删除场地（管理员）
// DELETE /api/v1/venues/:id
func (h *VenueHandler) Delete(c *gin.Context) {
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.venueSvc.Delete(c.Request.Context(), c.Param("id"), callerID); err != nil {
		h.handleVenueError(c, err)
		return
	}
	response.OKMessage(c, "Venue deleted successfully", nil)
}

// handleVenueError 统一处理场地模块的业务错误
func (h *VenueHandler) handleVenueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrVenueNotFound):
		response.NotFound(c, 13001, err.Error())
	case errors.Is(err, service.ErrVenueNameExists):
		response.BadRequest(c, 13002, err.Error())
	case errors.Is(err, service.ErrVenueInUse):
		response.BadRequest(c, 13003, err.Error())
	case errors.Is(err, service.ErrVenueInactive):
		response.BadRequest(c, 13004, err.Error())
	default:
		response.InternalError(c)
	}
}
