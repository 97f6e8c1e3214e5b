package service

import (
	"time"

	"cems/internal/dto"
	"cems/internal/model"
)

// ── 模型 → DTO 转换 ──

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func toUserResponse(u *model.User) dto.UserResponse {
	return dto.UserResponse{
		ID:         u.UserID,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Role:       string(u.Role),
		Department: u.Department,
		StudentNo:  u.StudentNo,
		Phone:      u.Phone,
		IsActive:   u.IsActive,
		CreatedAt:  formatTime(u.CreatedAt),
	}
}

func toUserBrief(u *model.User) *dto.UserBrief {
	if u == nil {
		return nil
	}
	return &dto.UserBrief{
		ID:        u.UserID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
	}
}

func toStudentSummary(u *model.User) dto.StudentSummary {
	if u == nil {
		return dto.StudentSummary{}
	}
	return dto.StudentSummary{
		ID:         u.UserID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Email:      u.Email,
		StudentNo:  u.StudentNo,
		Department: u.Department,
		Phone:      u.Phone,
	}
}

func toVenueResponse(v *model.Venue) dto.VenueResponse {
	return dto.VenueResponse{
		ID:         v.VenueID,
		Name:       v.Name,
		Location:   v.Location,
		Capacity:   v.Capacity,
		Facilities: v.Facilities,
		IsActive:   v.IsActive,
		CreatedAt:  formatTime(v.CreatedAt),
		UpdatedAt:  formatTime(v.UpdatedAt),
	}
}

func toVenueBrief(v *model.Venue) *dto.VenueBrief {
	if v == nil {
		return nil
	}
	return &dto.VenueBrief{
		ID:       v.VenueID,
		Name:     v.Name,
		Location: v.Location,
		Capacity: v.Capacity,
	}
}

// toEventResponse registered 为占用名额的报名数
func toEventResponse(e *model.Event, registered int64) dto.EventResponse {
	available := int64(e.Capacity) - registered
	if available < 0 {
		available = 0
	}
	return dto.EventResponse{
		ID:                   e.EventID,
		Title:                e.Title,
		Description:          e.Description,
		EventDate:            e.DateString(),
		StartTime:            model.ClockString(e.StartTime),
		EndTime:              model.ClockString(e.EndTime),
		Capacity:             e.Capacity,
		RegisteredCount:      registered,
		AvailableSeats:       available,
		Status:               string(e.Status),
		BannerImage:          e.BannerImage,
		RegistrationDeadline: formatTimePtr(e.RegistrationDeadline),
		AdminNotes:           e.AdminNotes,
		Organizer:            toUserBrief(e.Organizer),
		Venue:                toVenueBrief(e.Venue),
		CreatedAt:            formatTime(e.CreatedAt),
	}
}

func toEventSummary(e *model.Event) dto.EventSummary {
	if e == nil {
		return dto.EventSummary{}
	}
	return dto.EventSummary{
		ID:        e.EventID,
		Title:     e.Title,
		EventDate: e.DateString(),
		StartTime: model.ClockString(e.StartTime),
		EndTime:   model.ClockString(e.EndTime),
		Venue:     toVenueBrief(e.Venue),
	}
}

func toNotificationResponse(n *model.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:        n.NotificationID,
		Title:     n.Title,
		Message:   n.Message,
		Type:      string(n.Type),
		IsRead:    n.IsRead,
		CreatedAt: formatTime(n.CreatedAt),
	}
}
