package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"cems/internal/dto"
	"cems/internal/model"
	"cems/internal/repository"
	pkgerrors "cems/pkg/errors"
)

// ── 场地模块业务错误 ──

var (
	ErrVenueNotFound   = errors.New("venue not found")
	ErrVenueNameExists = errors.New("a venue with this name already exists")
	ErrVenueInUse      = errors.New("venue has pending or approved events and cannot be deleted")
	ErrVenueInactive   = errors.New("venue is not active")
)

// VenueService 场地业务接口（写操作仅管理员）
type VenueService interface {
	List(ctx context.Context, req *dto.VenueListRequest) ([]dto.VenueResponse, error)
	GetByID(ctx context.Context, id string) (*dto.VenueResponse, error)
	Create(ctx context.Context, req *dto.CreateVenueRequest, callerID string) (*dto.VenueResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateVenueRequest, callerID string) (*dto.VenueResponse, error)
	Delete(ctx context.Context, id string, callerID string) error
	Availability(ctx context.Context, id string, date string) (*dto.VenueAvailabilityResponse, error)
}

type venueService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewVenueService 创建 VenueService 实例
func NewVenueService(repo *repository.Repository, logger *zap.Logger) VenueService {
	return &venueService{repo: repo, logger: logger}
}

// ────────────────────── List ──────────────────────

func (s *venueService) List(ctx context.Context, req *dto.VenueListRequest) ([]dto.VenueResponse, error) {
	venues, err := s.repo.Venue.List(ctx, req.IncludeInactive)
	if err != nil {
		s.logger.Error("查询场地列表失败", zap.Error(err))
		return nil, err
	}
	list := make([]dto.VenueResponse, 0, len(venues))
	for i := range venues {
		list = append(list, toVenueResponse(&venues[i]))
	}
	return list, nil
}

// ────────────────────── GetByID ──────────────────────

func (s *venueService) GetByID(ctx context.Context, id string) (*dto.VenueResponse, error) {
	venue, err := s.getVenue(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toVenueResponse(venue)
	return &resp, nil
}

// ────────────────────── Create ──────────────────────

func (s *venueService) Create(ctx context.Context, req *dto.CreateVenueRequest, callerID string) (*dto.VenueResponse, error) {
	name := strings.TrimSpace(req.Name)
	taken, err := s.repo.Venue.NameTaken(ctx, name, "")
	if err != nil {
		s.logger.Error("检查场地名称失败", zap.Error(err))
		return nil, err
	}
	if taken {
		return nil, ErrVenueNameExists
	}

	venue := &model.Venue{
		Name:       name,
		Location:   strings.TrimSpace(req.Location),
		Capacity:   req.Capacity,
		Facilities: strings.TrimSpace(req.Facilities),
		IsActive:   true,
		SoftDeleteModel: model.SoftDeleteModel{
			BaseModel: model.BaseModel{CreatedBy: &callerID},
		},
	}
	if err := s.repo.Venue.Create(ctx, venue); err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			return nil, ErrVenueNameExists
		}
		s.logger.Error("创建场地失败", zap.Error(err))
		return nil, err
	}

	resp := toVenueResponse(venue)
	return &resp, nil
}

// ────────────────────── Update ──────────────────────

func (s *venueService) Update(ctx context.Context, id string, req *dto.UpdateVenueRequest, callerID string) (*dto.VenueResponse, error) {
	venue, err := s.getVenue(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if !strings.EqualFold(name, venue.Name) {
			taken, err := s.repo.Venue.NameTaken(ctx, name, id)
			if err != nil {
				s.logger.Error("检查场地名称失败", zap.Error(err))
				return nil, err
			}
			if taken {
				return nil, ErrVenueNameExists
			}
		}
		venue.Name = name
	}
	if req.Location != nil {
		venue.Location = strings.TrimSpace(*req.Location)
	}
	if req.Capacity != nil {
		venue.Capacity = *req.Capacity
	}
	if req.Facilities != nil {
		venue.Facilities = strings.TrimSpace(*req.Facilities)
	}
	if req.IsActive != nil {
		venue.IsActive = *req.IsActive
	}
	venue.UpdatedBy = &callerID

	if err := s.repo.Venue.Update(ctx, venue); err != nil {
		if pkgerrors.IsUniqueViolation(err) {
			return nil, ErrVenueNameExists
		}
		s.logger.Error("更新场地失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}

	resp := toVenueResponse(venue)
	return &resp, nil
}

// ────────────────────── Delete ──────────────────────

func (s *venueService) Delete(ctx context.Context, id string, callerID string) error {
	if _, err := s.getVenue(ctx, id); err != nil {
		return err
	}

	n, err := s.repo.Event.CountOccupyingByVenue(ctx, id)
	if err != nil {
		s.logger.Error("统计场地活动失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if n > 0 {
		return ErrVenueInUse
	}

	if err := s.repo.Venue.Delete(ctx, id, callerID); err != nil {
		s.logger.Error("删除场地失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── Availability ──────────────────────

func (s *venueService) Availability(ctx context.Context, id string, date string) (*dto.VenueAvailabilityResponse, error) {
	venue, err := s.getVenue(ctx, id)
	if err != nil {
		return nil, err
	}

	events, err := s.repo.Event.ListByVenueAndDate(ctx, id, date)
	if err != nil {
		s.logger.Error("查询场地占用失败", zap.String("id", id), zap.String("date", date), zap.Error(err))
		return nil, err
	}

	slots := make([]dto.BookedSlot, 0, len(events))
	for _, e := range events {
		slots = append(slots, dto.BookedSlot{
			EventID:   e.EventID,
			Title:     e.Title,
			StartTime: model.ClockString(e.StartTime),
			EndTime:   model.ClockString(e.EndTime),
			Status:    string(e.Status),
		})
	}
	return &dto.VenueAvailabilityResponse{
		Venue:       toVenueResponse(venue),
		Date:        date,
		BookedSlots: slots,
	}, nil
}

func (s *venueService) getVenue(ctx context.Context, id string) (*model.Venue, error) {
	venue, err := s.repo.Venue.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVenueNotFound
		}
		s.logger.Error("查询场地失败", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return venue, nil
}
