package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"cems/internal/model"
	"cems/internal/repository"
	apperrors "cems/pkg/errors"
)

// ── Mock UserRepository ──

type mockUserRepo struct {
	users map[string]*model.User // key: user_id
	seq   int
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[string]*model.User)}
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return gorm.ErrDuplicatedKey
		}
	}
	if user.UserID == "" {
		m.seq++
		user.UserID = fmt.Sprintf("user-%03d", m.seq)
	}
	m.users[user.UserID] = user
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (*model.User, error) {
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUserRepo) LockByID(ctx context.Context, id string) (*model.User, error) {
	return m.GetByID(ctx, id)
}

func (m *mockUserRepo) Update(_ context.Context, user *model.User) error {
	cp := *user
	m.users[user.UserID] = &cp
	return nil
}

func (m *mockUserRepo) UpdateRole(_ context.Context, id string, role model.Role, _ string) error {
	if u, ok := m.users[id]; ok {
		u.Role = role
	}
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id string, hash string) error {
	if u, ok := m.users[id]; ok {
		u.PasswordHash = hash
	}
	return nil
}

func (m *mockUserRepo) Delete(_ context.Context, id string) error {
	delete(m.users, id)
	return nil
}

func (m *mockUserRepo) List(_ context.Context, filter repository.UserFilter, offset, limit int) ([]model.User, int64, error) {
	var result []model.User
	for _, u := range m.users {
		if filter.Role != "" && u.Role != filter.Role {
			continue
		}
		if filter.ExcludeRole != "" && u.Role == filter.ExcludeRole {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(u.FullName()+" "+u.Email), strings.ToLower(filter.Search)) {
			continue
		}
		result = append(result, *u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return paginate(result, offset, limit), int64(len(result)), nil
}

func (m *mockUserRepo) ListActiveIDsByRoles(_ context.Context, roles ...model.Role) ([]string, error) {
	var ids []string
	for _, u := range m.users {
		if !u.IsActive {
			continue
		}
		for _, r := range roles {
			if u.Role == r {
				ids = append(ids, u.UserID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ── Mock VenueRepository ──

type mockVenueRepo struct {
	venues map[string]*model.Venue
	seq    int
}

func newMockVenueRepo() *mockVenueRepo {
	return &mockVenueRepo{venues: make(map[string]*model.Venue)}
}

func (m *mockVenueRepo) Create(_ context.Context, venue *model.Venue) error {
	if venue.VenueID == "" {
		m.seq++
		venue.VenueID = fmt.Sprintf("venue-%03d", m.seq)
	}
	m.venues[venue.VenueID] = venue
	return nil
}

func (m *mockVenueRepo) GetByID(_ context.Context, id string) (*model.Venue, error) {
	if v, ok := m.venues[id]; ok {
		cp := *v
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockVenueRepo) List(_ context.Context, includeInactive bool) ([]model.Venue, error) {
	var result []model.Venue
	for _, v := range m.venues {
		if !includeInactive && !v.IsActive {
			continue
		}
		result = append(result, *v)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *mockVenueRepo) Update(_ context.Context, venue *model.Venue) error {
	cp := *venue
	m.venues[venue.VenueID] = &cp
	return nil
}

func (m *mockVenueRepo) Delete(_ context.Context, id string, _ string) error {
	delete(m.venues, id)
	return nil
}

func (m *mockVenueRepo) NameTaken(_ context.Context, name, excludeID string) (bool, error) {
	for _, v := range m.venues {
		if v.VenueID != excludeID && v.IsActive && strings.EqualFold(v.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

// ── Mock EventRepository ──

type mockEventRepo struct {
	events map[string]*model.Event
	venues *mockVenueRepo
	users  *mockUserRepo
	seq    int
}

func newMockEventRepo(venues *mockVenueRepo, users *mockUserRepo) *mockEventRepo {
	return &mockEventRepo{events: make(map[string]*model.Event), venues: venues, users: users}
}

func (m *mockEventRepo) Create(_ context.Context, event *model.Event) error {
	if event.EventID == "" {
		m.seq++
		event.EventID = fmt.Sprintf("event-%03d", m.seq)
	}
	if event.Version == 0 {
		event.Version = 1
	}
	cp := *event
	cp.Venue, cp.Organizer = nil, nil
	m.events[event.EventID] = &cp
	return nil
}

// withAssociations 模拟 Preload("Venue") / Preload("Organizer")
func (m *mockEventRepo) withAssociations(e *model.Event) *model.Event {
	cp := *e
	if v, ok := m.venues.venues[e.VenueID]; ok {
		vc := *v
		cp.Venue = &vc
	}
	if u, ok := m.users.users[e.OrganizerID]; ok {
		uc := *u
		cp.Organizer = &uc
	}
	return &cp
}

func (m *mockEventRepo) GetByID(_ context.Context, id string) (*model.Event, error) {
	if e, ok := m.events[id]; ok {
		return m.withAssociations(e), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEventRepo) LockByID(_ context.Context, id string) (*model.Event, error) {
	if e, ok := m.events[id]; ok {
		cp := *e
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEventRepo) Update(_ context.Context, event *model.Event) error {
	cur, ok := m.events[event.EventID]
	if !ok || cur.Version != event.Version {
		return apperrors.ErrOptimisticLock
	}
	event.Version++
	cp := *event
	cp.Venue, cp.Organizer = nil, nil
	m.events[event.EventID] = &cp
	return nil
}

func (m *mockEventRepo) Delete(_ context.Context, id string) error {
	delete(m.events, id)
	return nil
}

func (m *mockEventRepo) List(_ context.Context, filter repository.EventFilter, offset, limit int) ([]model.Event, int64, error) {
	var result []model.Event
	for _, e := range m.events {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, e.Status) {
			continue
		}
		if filter.OrganizerID != "" && e.OrganizerID != filter.OrganizerID {
			continue
		}
		if filter.VenueID != "" && e.VenueID != filter.VenueID {
			continue
		}
		if filter.FromDate != "" && e.DateString() < filter.FromDate {
			continue
		}
		if filter.ToDate != "" && e.DateString() > filter.ToDate {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(e.Title), strings.ToLower(filter.Search)) {
			continue
		}
		result = append(result, *m.withAssociations(e))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EventID < result[j].EventID })
	return paginate(result, offset, limit), int64(len(result)), nil
}

func (m *mockEventRepo) FindConflicts(_ context.Context, venueID, date, start, end, excludeID string) ([]model.Event, error) {
	probe := &model.Event{VenueID: venueID, StartTime: start, EndTime: end}
	probe.EventDate, _ = time.Parse(model.DateLayout, date)

	var result []model.Event
	for _, e := range m.events {
		if e.EventID == excludeID || !e.Status.OccupiesVenue() {
			continue
		}
		if e.Overlaps(probe) {
			result = append(result, *e)
		}
	}
	return result, nil
}

func (m *mockEventRepo) ListByVenueAndDate(_ context.Context, venueID, date string) ([]model.Event, error) {
	var result []model.Event
	for _, e := range m.events {
		if e.VenueID == venueID && e.DateString() == date && e.Status.OccupiesVenue() {
			result = append(result, *e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime < result[j].StartTime })
	return result, nil
}

func (m *mockEventRepo) CountOccupyingByVenue(_ context.Context, venueID string) (int64, error) {
	var n int64
	for _, e := range m.events {
		if e.VenueID == venueID && e.Status.OccupiesVenue() {
			n++
		}
	}
	return n, nil
}

func (m *mockEventRepo) CountByOrganizer(_ context.Context, organizerID string) (int64, error) {
	var n int64
	for _, e := range m.events {
		if e.OrganizerID == organizerID {
			n++
		}
	}
	return n, nil
}

func (m *mockEventRepo) CompletePast(_ context.Context, today, clock string) (int64, error) {
	var n int64
	for _, e := range m.events {
		if e.Status != model.EventApproved {
			continue
		}
		d := e.DateString()
		if d < today || (d == today && model.ClockString(e.EndTime) <= model.ClockString(clock)) {
			e.Status = model.EventCompleted
			n++
		}
	}
	return n, nil
}

func containsStatus(list []model.EventStatus, s model.EventStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ── Mock RegistrationRepository ──

type mockRegistrationRepo struct {
	regs      map[string]*model.Registration
	events    *mockEventRepo
	users     *mockUserRepo
	seq       int
	createErr error // 非 nil 时 Create 返回该错误
}

func newMockRegistrationRepo(events *mockEventRepo, users *mockUserRepo) *mockRegistrationRepo {
	return &mockRegistrationRepo{regs: make(map[string]*model.Registration), events: events, users: users}
}

func (m *mockRegistrationRepo) Create(_ context.Context, reg *model.Registration) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, r := range m.regs {
		if r.EventID == reg.EventID && r.StudentID == reg.StudentID {
			return gorm.ErrDuplicatedKey
		}
	}
	if reg.RegistrationID == "" {
		m.seq++
		reg.RegistrationID = fmt.Sprintf("reg-%03d", m.seq)
	}
	cp := *reg
	m.regs[reg.RegistrationID] = &cp
	return nil
}

func (m *mockRegistrationRepo) GetByID(_ context.Context, id string) (*model.Registration, error) {
	r, ok := m.regs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *r
	if e, ok := m.events.events[r.EventID]; ok {
		ec := *e
		cp.Event = &ec
	}
	return &cp, nil
}

func (m *mockRegistrationRepo) GetByEventAndStudent(_ context.Context, eventID, studentID string) (*model.Registration, error) {
	for _, r := range m.regs {
		if r.EventID == eventID && r.StudentID == studentID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRegistrationRepo) count(pred func(r *model.Registration) bool) int64 {
	var n int64
	for _, r := range m.regs {
		if pred(r) {
			n++
		}
	}
	return n
}

func (m *mockRegistrationRepo) CountActiveByEvent(_ context.Context, eventID string) (int64, error) {
	return m.count(func(r *model.Registration) bool {
		return r.EventID == eventID && r.Status.CountsTowardCapacity()
	}), nil
}

func (m *mockRegistrationRepo) CountActiveByEvents(ctx context.Context, eventIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(eventIDs))
	for _, id := range eventIDs {
		n, _ := m.CountActiveByEvent(ctx, id)
		if n > 0 {
			out[id] = n
		}
	}
	return out, nil
}

func (m *mockRegistrationRepo) CountActiveByStudent(_ context.Context, studentID string) (int64, error) {
	return m.count(func(r *model.Registration) bool {
		return r.StudentID == studentID && r.Status.CountsTowardCapacity()
	}), nil
}

func (m *mockRegistrationRepo) CountByStudent(_ context.Context, studentID string) (int64, error) {
	return m.count(func(r *model.Registration) bool { return r.StudentID == studentID }), nil
}

func (m *mockRegistrationRepo) CountByEvent(_ context.Context, eventID string) (int64, error) {
	return m.count(func(r *model.Registration) bool { return r.EventID == eventID }), nil
}

func (m *mockRegistrationRepo) DeleteByEventAndStudent(_ context.Context, eventID, studentID string) (int64, error) {
	for id, r := range m.regs {
		if r.EventID == eventID && r.StudentID == studentID {
			delete(m.regs, id)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *mockRegistrationRepo) ListByStudent(_ context.Context, studentID, scope, today string, offset, limit int) ([]model.Registration, int64, error) {
	var result []model.Registration
	for _, r := range m.regs {
		if r.StudentID != studentID {
			continue
		}
		e, ok := m.events.events[r.EventID]
		if !ok {
			continue
		}
		if scope == repository.ScopeUpcoming && e.DateString() < today {
			continue
		}
		if scope == repository.ScopePast && e.DateString() >= today {
			continue
		}
		cp := *r
		cp.Event = m.events.withAssociations(e)
		result = append(result, cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Event.DateString() > result[j].Event.DateString()
	})
	return paginate(result, offset, limit), int64(len(result)), nil
}

func (m *mockRegistrationRepo) ListByEvent(ctx context.Context, eventID string, offset, limit int) ([]model.Registration, int64, error) {
	all, _ := m.ListAllByEvent(ctx, eventID)
	sort.Slice(all, func(i, j int) bool { return all[i].RegisteredAt.After(all[j].RegisteredAt) })
	return paginate(all, offset, limit), int64(len(all)), nil
}

func (m *mockRegistrationRepo) ListAllByEvent(_ context.Context, eventID string) ([]model.Registration, error) {
	var result []model.Registration
	for _, r := range m.regs {
		if r.EventID != eventID {
			continue
		}
		cp := *r
		if u, ok := m.users.users[r.StudentID]; ok {
			uc := *u
			cp.Student = &uc
		}
		result = append(result, cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RegisteredAt.Before(result[j].RegisteredAt) })
	return result, nil
}

func (m *mockRegistrationRepo) ListStudentIDsByEvent(_ context.Context, eventID string) ([]string, error) {
	var ids []string
	for _, r := range m.regs {
		if r.EventID == eventID && r.Status.CountsTowardCapacity() {
			ids = append(ids, r.StudentID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *mockRegistrationRepo) UpdateStatus(_ context.Context, id string, status model.RegistrationStatus, markedAt *time.Time) error {
	if r, ok := m.regs[id]; ok {
		r.Status = status
		r.AttendanceMarkedAt = markedAt
	}
	return nil
}

func (m *mockRegistrationRepo) UpdateTicketPayload(_ context.Context, id string, payload datatypes.JSON) error {
	if r, ok := m.regs[id]; ok {
		r.TicketPayload = payload
	}
	return nil
}

func (m *mockRegistrationRepo) SubmitFeedback(_ context.Context, id string, rating int, text *string, at time.Time) (int64, error) {
	r, ok := m.regs[id]
	if !ok || r.FeedbackRating != nil {
		return 0, nil
	}
	r.FeedbackRating = &rating
	r.FeedbackText = text
	r.FeedbackAt = &at
	return 1, nil
}

func (m *mockRegistrationRepo) CancelByEvent(_ context.Context, eventID string) (int64, error) {
	var n int64
	for _, r := range m.regs {
		if r.EventID == eventID && r.Status != model.RegistrationCancelled {
			r.Status = model.RegistrationCancelled
			n++
		}
	}
	return n, nil
}

func (m *mockRegistrationRepo) RatingByEvent(_ context.Context, eventID string) (*repository.RatingSummary, error) {
	var sum, n int
	for _, r := range m.regs {
		if r.EventID == eventID && r.FeedbackRating != nil {
			sum += *r.FeedbackRating
			n++
		}
	}
	out := &repository.RatingSummary{Count: int64(n)}
	if n > 0 {
		out.Average = float64(sum) / float64(n)
	}
	return out, nil
}

// ── Mock NotificationRepository ──

type mockNotificationRepo struct {
	items []*model.Notification
	seq   int
}

func newMockNotificationRepo() *mockNotificationRepo {
	return &mockNotificationRepo{}
}

func (m *mockNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	m.seq++
	if n.NotificationID == "" {
		n.NotificationID = fmt.Sprintf("ntf-%03d", m.seq)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Date(2026, 1, 1, 0, 0, m.seq, 0, time.UTC)
	}
	m.items = append(m.items, n)
	return nil
}

func (m *mockNotificationRepo) CreateBatch(ctx context.Context, list []model.Notification) error {
	for i := range list {
		n := list[i]
		_ = m.Create(ctx, &n)
	}
	return nil
}

func (m *mockNotificationRepo) forUser(userID string) []*model.Notification {
	var out []*model.Notification
	for _, n := range m.items {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (m *mockNotificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, offset, limit int) ([]model.Notification, int64, error) {
	var result []model.Notification
	for _, n := range m.forUser(userID) {
		if unreadOnly && n.IsRead {
			continue
		}
		result = append(result, *n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return paginate(result, offset, limit), int64(len(result)), nil
}

func (m *mockNotificationRepo) CountUnread(_ context.Context, userID string) (int64, error) {
	var n int64
	for _, item := range m.forUser(userID) {
		if !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (m *mockNotificationRepo) MarkRead(_ context.Context, id, userID string) (int64, error) {
	for _, n := range m.forUser(userID) {
		if n.NotificationID == id {
			n.IsRead = true
			return 1, nil
		}
	}
	return 0, nil
}

func (m *mockNotificationRepo) MarkAllRead(_ context.Context, userID string) (int64, error) {
	var count int64
	for _, n := range m.forUser(userID) {
		if !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

func (m *mockNotificationRepo) Delete(_ context.Context, id, userID string) (int64, error) {
	for i, n := range m.items {
		if n.NotificationID == id && n.UserID == userID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return 1, nil
		}
	}
	return 0, nil
}

func (m *mockNotificationRepo) DeleteAll(_ context.Context, userID string) (int64, error) {
	var kept []*model.Notification
	var count int64
	for _, n := range m.items {
		if n.UserID == userID {
			count++
			continue
		}
		kept = append(kept, n)
	}
	m.items = kept
	return count, nil
}

// ── Mock SettingRepository ──

type mockSettingRepo struct {
	settings map[string]*model.SystemSetting
}

func newMockSettingRepo() *mockSettingRepo {
	return &mockSettingRepo{settings: make(map[string]*model.SystemSetting)}
}

func (m *mockSettingRepo) set(key, value string) {
	m.settings[key] = &model.SystemSetting{Key: key, Value: value}
}

func (m *mockSettingRepo) Get(_ context.Context, key string) (*model.SystemSetting, error) {
	if s, ok := m.settings[key]; ok {
		return s, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockSettingRepo) List(_ context.Context) ([]model.SystemSetting, error) {
	var result []model.SystemSetting
	for _, s := range m.settings {
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result, nil
}

func (m *mockSettingRepo) Upsert(_ context.Context, setting *model.SystemSetting) error {
	if cur, ok := m.settings[setting.Key]; ok {
		cur.Value = setting.Value
		cur.UpdatedAt = setting.UpdatedAt
		cur.UpdatedBy = setting.UpdatedBy
		return nil
	}
	cp := *setting
	m.settings[setting.Key] = &cp
	return nil
}

// ── Mock StatsRepository ──

type mockStatsRepo struct {
	dashboard *repository.DashboardCounts
	sinceSeen string
}

func (m *mockStatsRepo) Dashboard(_ context.Context) (*repository.DashboardCounts, error) {
	if m.dashboard == nil {
		return &repository.DashboardCounts{}, nil
	}
	return m.dashboard, nil
}

func (m *mockStatsRepo) RegistrationTrend(_ context.Context, sinceDate string) ([]repository.TrendPoint, error) {
	m.sinceSeen = sinceDate
	return []repository.TrendPoint{{Date: sinceDate, Registrations: 3}}, nil
}

func (m *mockStatsRepo) DepartmentParticipation(_ context.Context, _ string) ([]repository.LabelCount, error) {
	return []repository.LabelCount{{Label: "Computer Science", Count: 5}}, nil
}

func (m *mockStatsRepo) Feedback(_ context.Context, _ string) (*repository.FeedbackSummary, error) {
	return &repository.FeedbackSummary{AverageRating: 4.5, TotalFeedback: 2, PositiveFeedback: 2}, nil
}

func (m *mockStatsRepo) VenueUsage(_ context.Context, _ string) ([]repository.VenueUsage, error) {
	return []repository.VenueUsage{{VenueID: "venue-001", Name: "Main Hall", EventCount: 1, TotalCapacity: 100}}, nil
}

func (m *mockStatsRepo) Student(_ context.Context, _, _ string) (*repository.StudentSummary, error) {
	return &repository.StudentSummary{TotalRegistrations: 2, AttendedEvents: 1}, nil
}

func (m *mockStatsRepo) Organizer(_ context.Context, _ string) (*repository.OrganizerSummary, error) {
	return &repository.OrganizerSummary{TotalEvents: 3, ApprovedEvents: 2}, nil
}

// ── 通用辅助 ──

// errDuplicateForTest 模拟驱动层返回的唯一约束冲突
var errDuplicateForTest error = &pgconn.PgError{Code: "23505", ConstraintName: "uq_event_student"}

func paginate[T any](list []T, offset, limit int) []T {
	if offset >= len(list) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(list) {
		end = len(list)
	}
	return list[offset:end]
}

// mockRepos 一组相互关联的 mock，供各 Service 测试共用
type mockRepos struct {
	user         *mockUserRepo
	venue        *mockVenueRepo
	event        *mockEventRepo
	registration *mockRegistrationRepo
	notification *mockNotificationRepo
	setting      *mockSettingRepo
	stats        *mockStatsRepo
}

func newMockRepos() (*repository.Repository, *mockRepos) {
	m := &mockRepos{
		user:         newMockUserRepo(),
		venue:        newMockVenueRepo(),
		notification: newMockNotificationRepo(),
		setting:      newMockSettingRepo(),
		stats:        &mockStatsRepo{},
	}
	m.event = newMockEventRepo(m.venue, m.user)
	m.registration = newMockRegistrationRepo(m.event, m.user)

	repo := &repository.Repository{
		User:         m.user,
		Venue:        m.venue,
		Event:        m.event,
		Registration: m.registration,
		Notification: m.notification,
		Setting:      m.setting,
		Stats:        m.stats,
	}
	return repo, m
}
