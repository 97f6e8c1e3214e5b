package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"cems/config"
	"cems/internal/dto"
	"cems/internal/model"
	"cems/internal/service"
	pkgerrors "cems/pkg/errors"
	"cems/pkg/response"
	"cems/pkg/validate"
)

func init() {
	gin.SetMode(gin.TestMode)
	validate.Register()
}

// ═══════════════════════════════════════════════════════════
// Mock Services
// ═══════════════════════════════════════════════════════════

// ── Mock AuthService ──

type mockAuthService struct {
	registerResult *dto.TokenResponse
	registerErr    error
	loginResult    *dto.TokenResponse
	loginErr       error
	refreshResult  *dto.TokenResponse
	refreshErr     error
	refreshToken   string
	logoutErr      error
	logoutJTI      string
	meResult       *dto.UserResponse
	meErr          error
	changePassErr  error
}

func (m *mockAuthService) Register(_ context.Context, _ *dto.RegisterRequest) (*dto.TokenResponse, error) {
	return m.registerResult, m.registerErr
}
func (m *mockAuthService) Login(_ context.Context, _ *dto.LoginRequest) (*dto.TokenResponse, error) {
	return m.loginResult, m.loginErr
}
func (m *mockAuthService) Refresh(_ context.Context, token string) (*dto.TokenResponse, error) {
	m.refreshToken = token
	return m.refreshResult, m.refreshErr
}
func (m *mockAuthService) Logout(_ context.Context, jti string, _ time.Time) error {
	m.logoutJTI = jti
	return m.logoutErr
}
func (m *mockAuthService) Me(_ context.Context, _ string) (*dto.UserResponse, error) {
	return m.meResult, m.meErr
}
func (m *mockAuthService) UpdateProfile(_ context.Context, _ string, _ *dto.UpdateProfileRequest) (*dto.UserResponse, error) {
	return m.meResult, m.meErr
}
func (m *mockAuthService) ChangePassword(_ context.Context, _ string, _ *dto.ChangePasswordRequest) error {
	return m.changePassErr
}

// ── Mock RegistrationService ──

type mockRegistrationService struct {
	registerResult *dto.RegistrationPassResponse
	registerErr    error
	gotEventID     string
	gotStudentID   string
	unregisterErr  error
	passResult     *dto.RegistrationPassResponse
	passErr        error
	listMine       []dto.MyRegistrationResponse
	listByEvent    []dto.EventRegistrantResponse
	total          int64
	listErr        error
	attendanceErr  error
	feedbackErr    error
	gotFeedback    *dto.FeedbackRequest
	checkInResult  *dto.CheckInResponse
	checkInErr     error
	calendar       []byte
	calendarErr    error
}

func (m *mockRegistrationService) Register(_ context.Context, eventID, studentID string) (*dto.RegistrationPassResponse, error) {
	m.gotEventID, m.gotStudentID = eventID, studentID
	return m.registerResult, m.registerErr
}
func (m *mockRegistrationService) Unregister(_ context.Context, eventID, studentID string) error {
	m.gotEventID, m.gotStudentID = eventID, studentID
	return m.unregisterErr
}
func (m *mockRegistrationService) ListMine(_ context.Context, _ string, _ *dto.MyRegistrationsRequest) ([]dto.MyRegistrationResponse, int64, error) {
	return m.listMine, m.total, m.listErr
}
func (m *mockRegistrationService) GetPass(_ context.Context, _, _ string) (*dto.RegistrationPassResponse, error) {
	return m.passResult, m.passErr
}
func (m *mockRegistrationService) ListByEvent(_ context.Context, _ string, _ *dto.PaginationRequest, _ string, _ model.Role) ([]dto.EventRegistrantResponse, int64, error) {
	return m.listByEvent, m.total, m.listErr
}
func (m *mockRegistrationService) MarkAttendance(_ context.Context, _ string, _ *dto.MarkAttendanceRequest, _ string, _ model.Role) error {
	return m.attendanceErr
}
func (m *mockRegistrationService) SubmitFeedback(_ context.Context, eventID, studentID string, req *dto.FeedbackRequest) error {
	m.gotEventID, m.gotStudentID, m.gotFeedback = eventID, studentID, req
	return m.feedbackErr
}
func (m *mockRegistrationService) CheckIn(_ context.Context, _ *dto.CheckInRequest, _ string, _ model.Role) (*dto.CheckInResponse, error) {
	return m.checkInResult, m.checkInErr
}
func (m *mockRegistrationService) ExportCalendar(_ context.Context, eventID, _ string) ([]byte, string, error) {
	return m.calendar, fmt.Sprintf("event_%s.ics", eventID), m.calendarErr
}

// ── Mock EventService ──

type mockEventService struct {
	result    *dto.EventResponse
	detail    *dto.EventDetailResponse
	list      []dto.EventResponse
	total     int64
	err       error
	gotCaller string
	gotRole   model.Role
}

func (m *mockEventService) List(_ context.Context, _ *dto.EventListRequest) ([]dto.EventResponse, int64, error) {
	return m.list, m.total, m.err
}
func (m *mockEventService) Get(_ context.Context, _ string, callerID string, role model.Role) (*dto.EventDetailResponse, error) {
	m.gotCaller, m.gotRole = callerID, role
	return m.detail, m.err
}
func (m *mockEventService) Create(_ context.Context, _ *dto.CreateEventRequest, callerID string, role model.Role) (*dto.EventResponse, error) {
	m.gotCaller, m.gotRole = callerID, role
	return m.result, m.err
}
func (m *mockEventService) Update(_ context.Context, _ string, _ *dto.UpdateEventRequest, _ string, _ model.Role) (*dto.EventResponse, error) {
	return m.result, m.err
}
func (m *mockEventService) Delete(_ context.Context, _ string, _ string, _ model.Role) error {
	return m.err
}
func (m *mockEventService) MyEvents(_ context.Context, _ string, _ *dto.MyEventsRequest) ([]dto.EventResponse, int64, error) {
	return m.list, m.total, m.err
}
func (m *mockEventService) CompletePast(_ context.Context) (int64, error) { return 0, m.err }

// ── Mock AdminService / SettingsService ──

type mockAdminService struct {
	event    *dto.EventResponse
	announce *dto.AnnouncementResponse
	err      error
}

func (m *mockAdminService) Dashboard(_ context.Context) (*dto.DashboardResponse, error) {
	return &dto.DashboardResponse{}, m.err
}
func (m *mockAdminService) ListEvents(_ context.Context, _ *dto.AdminEventListRequest) ([]dto.EventResponse, int64, error) {
	return nil, 0, m.err
}
func (m *mockAdminService) GetEvent(_ context.Context, _ string) (*dto.EventDetailResponse, error) {
	return nil, m.err
}
func (m *mockAdminService) UpdateEventStatus(_ context.Context, _ string, _ *dto.UpdateEventStatusRequest, _ string) (*dto.EventResponse, error) {
	return m.event, m.err
}
func (m *mockAdminService) CancelEvent(_ context.Context, _ string, _ *dto.CancelEventRequest, _ string) (*dto.EventResponse, error) {
	return m.event, m.err
}
func (m *mockAdminService) Analytics(_ context.Context, _ *dto.AnalyticsRequest) (*dto.AnalyticsResponse, error) {
	return &dto.AnalyticsResponse{}, m.err
}
func (m *mockAdminService) Announce(_ context.Context, _ *dto.AnnouncementRequest, _ string) (*dto.AnnouncementResponse, error) {
	return m.announce, m.err
}

type mockSettingsService struct {
	err error
}

func (m *mockSettingsService) Current(_ context.Context) (*service.Settings, error) {
	s := service.DefaultSettings()
	return &s, m.err
}
func (m *mockSettingsService) List(_ context.Context) ([]dto.SettingResponse, error) {
	return nil, m.err
}
func (m *mockSettingsService) Update(_ context.Context, _ *dto.UpdateSettingsRequest, _ string) ([]dto.SettingResponse, error) {
	return nil, m.err
}

// ── Mock ExportService ──

type mockExportService struct {
	buf      *bytes.Buffer
	filename string
	err      error
}

func (m *mockExportService) ExportEventRegistrations(_ context.Context, _ string, _ string, _ model.Role) (*bytes.Buffer, string, error) {
	return m.buf, m.filename, m.err
}

// ═══════════════════════════════════════════════════════════
// Test Helpers
// ═══════════════════════════════════════════════════════════

func withCaller(userID string, role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Set("role", string(role))
		c.Set("token_jti", "test-jti")
		c.Set("token_exp", time.Now().Add(15*time.Minute))
		c.Next()
	}
}

func jsonBody(v interface{}) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func parseResponse(w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return resp
}

func serve(r *gin.Engine, method, path string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		RefreshTokenTTLRemember: 168 * time.Hour,
		Cookie:                  config.CookieConfig{SameSite: "Lax"},
	}
}

func findCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ═══════════════════════════════════════════════════════════
// AuthHandler Tests
// ═══════════════════════════════════════════════════════════

func TestAuthHandler_Login_Success(t *testing.T) {
	mock := &mockAuthService{
		loginResult: &dto.TokenResponse{AccessToken: "access", RefreshToken: "refresh", ExpiresIn: 3600},
	}
	h := NewAuthHandler(mock, testAuthConfig())

	r := gin.New()
	r.POST("/auth/login", h.Login)
	w := serve(r, "POST", "/auth/login", jsonBody(dto.LoginRequest{Email: "a@b.com", Password: "secret1", RememberMe: true}))

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	ck := findCookie(w, refreshCookieName)
	if ck == nil {
		t.Fatal("期望写入 refresh cookie")
	}
	if ck.Value != "refresh" || !ck.HttpOnly {
		t.Errorf("cookie 不符合预期: %+v", ck)
	}
	if ck.MaxAge <= 0 {
		t.Errorf("remember_me 时 cookie 应持久化，MaxAge=%d", ck.MaxAge)
	}
}

func TestAuthHandler_Login_ValidationErrors(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	r := gin.New()
	r.POST("/auth/login", h.Login)
	w := serve(r, "POST", "/auth/login", jsonBody(map[string]string{"email": "not-an-email"}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("期望 400，实际 %d", w.Code)
	}
	resp := parseResponse(w)
	if resp.Code != 10001 {
		t.Errorf("期望错误码 10001，实际 %d", resp.Code)
	}
	fields := map[string]bool{}
	for _, fe := range resp.Errors {
		fields[fe.Field] = true
	}
	if !fields["email"] || !fields["password"] {
		t.Errorf("期望 email/password 字段错误，实际 %+v", resp.Errors)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{loginErr: service.ErrInvalidCredentials}, testAuthConfig())

	r := gin.New()
	r.POST("/auth/login", h.Login)
	w := serve(r, "POST", "/auth/login", jsonBody(dto.LoginRequest{Email: "a@b.com", Password: "wrong"}))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("期望 401，实际 %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 11001 {
		t.Errorf("期望错误码 11001，实际 %d", resp.Code)
	}
}

func TestAuthHandler_Login_Disabled(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{loginErr: service.ErrAccountDisabled}, testAuthConfig())

	r := gin.New()
	r.POST("/auth/login", h.Login)
	w := serve(r, "POST", "/auth/login", jsonBody(dto.LoginRequest{Email: "a@b.com", Password: "secret1"}))

	if w.Code != http.StatusForbidden {
		t.Errorf("期望 403，实际 %d", w.Code)
	}
}

func TestAuthHandler_Register_EmailExists(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{registerErr: service.ErrEmailExists}, testAuthConfig())

	r := gin.New()
	r.POST("/auth/register", h.Register)
	w := serve(r, "POST", "/auth/register", jsonBody(dto.RegisterRequest{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@uni.edu", Password: "secret1",
	}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("期望 400，实际 %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 11003 {
		t.Errorf("期望错误码 11003，实际 %d", resp.Code)
	}
}

func TestAuthHandler_Register_Created(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{registerResult: &dto.TokenResponse{AccessToken: "a", RefreshToken: "r"}}, testAuthConfig())

	r := gin.New()
	r.POST("/auth/register", h.Register)
	w := serve(r, "POST", "/auth/register", jsonBody(dto.RegisterRequest{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@uni.edu", Password: "secret1", Role: "organizer",
	}))

	if w.Code != http.StatusCreated {
		t.Fatalf("期望 201，实际 %d", w.Code)
	}
	if ck := findCookie(w, refreshCookieName); ck == nil || ck.MaxAge != 0 {
		t.Errorf("注册后应写入会话 cookie，实际 %+v", ck)
	}
}

func TestAuthHandler_Refresh_FromCookie(t *testing.T) {
	mock := &mockAuthService{refreshResult: &dto.TokenResponse{AccessToken: "new", RefreshToken: "new-r"}}
	h := NewAuthHandler(mock, testAuthConfig())

	r := gin.New()
	r.POST("/auth/refresh", h.Refresh)
	req := httptest.NewRequest("POST", "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "cookie-refresh"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	if mock.refreshToken != "cookie-refresh" {
		t.Errorf("应优先使用 cookie 中的 token，实际 %q", mock.refreshToken)
	}
}

func TestAuthHandler_Refresh_FromBody(t *testing.T) {
	mock := &mockAuthService{refreshResult: &dto.TokenResponse{AccessToken: "new"}}
	h := NewAuthHandler(mock, testAuthConfig())

	r := gin.New()
	r.POST("/auth/refresh", h.Refresh)
	w := serve(r, "POST", "/auth/refresh", jsonBody(dto.RefreshTokenRequest{RefreshToken: "body-refresh"}))

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	if mock.refreshToken != "body-refresh" {
		t.Errorf("期望 body-refresh，实际 %q", mock.refreshToken)
	}
}

func TestAuthHandler_Refresh_Invalid(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{refreshErr: service.ErrInvalidRefreshToken}, testAuthConfig())

	r := gin.New()
	r.POST("/auth/refresh", h.Refresh)
	w := serve(r, "POST", "/auth/refresh", jsonBody(map[string]string{}))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("期望 401，实际 %d", w.Code)
	}
	if ck := findCookie(w, refreshCookieName); ck == nil || ck.MaxAge >= 0 {
		t.Errorf("刷新失败应清除 cookie，实际 %+v", ck)
	}
}

func TestAuthHandler_Logout_BlacklistsCurrentToken(t *testing.T) {
	mock := &mockAuthService{}
	h := NewAuthHandler(mock, testAuthConfig())

	r := gin.New()
	r.POST("/auth/logout", withCaller("u-1", model.RoleStudent), h.Logout)
	w := serve(r, "POST", "/auth/logout", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	if mock.logoutJTI != "test-jti" {
		t.Errorf("期望拉黑 test-jti，实际 %q", mock.logoutJTI)
	}
}

func TestAuthHandler_Me_Unauthenticated(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testAuthConfig())

	r := gin.New()
	r.GET("/auth/me", h.Me)
	w := serve(r, "GET", "/auth/me", nil)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("期望 401，实际 %d", w.Code)
	}
}

func TestAuthHandler_ChangePassword_Wrong(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{changePassErr: service.ErrWrongPassword}, testAuthConfig())

	r := gin.New()
	r.PUT("/auth/password", withCaller("u-1", model.RoleStudent), h.ChangePassword)
	w := serve(r, "PUT", "/auth/password", jsonBody(dto.ChangePasswordRequest{CurrentPassword: "x", NewPassword: "newpass1"}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("期望 400，实际 %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 11004 {
		t.Errorf("期望错误码 11004，实际 %d", resp.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// RegistrationHandler Tests
// ═══════════════════════════════════════════════════════════

func registrationRouter(h *RegistrationHandler, userID string, role model.Role) *gin.Engine {
	r := gin.New()
	g := r.Group("/registrations", withCaller(userID, role))
	g.GET("/my-registrations", h.ListMine)
	g.POST("/check-in", h.CheckIn)
	g.GET("/event/:id", h.ListByEvent)
	g.POST("/:id", h.Register)
	g.DELETE("/:id", h.Unregister)
	g.GET("/:id/pass", h.GetPass)
	g.GET("/:id/calendar.ics", h.Calendar)
	g.POST("/:id/feedback", h.SubmitFeedback)
	g.PUT("/:id/attendance", h.MarkAttendance)
	return r
}

func TestRegistrationHandler_Register_Created(t *testing.T) {
	mock := &mockRegistrationService{registerResult: &dto.RegistrationPassResponse{RegistrationID: "reg-1"}}
	r := registrationRouter(NewRegistrationHandler(mock), "stu-1", model.RoleStudent)

	w := serve(r, "POST", "/registrations/evt-1", nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("期望 201，实际 %d", w.Code)
	}
	if mock.gotEventID != "evt-1" || mock.gotStudentID != "stu-1" {
		t.Errorf("参数传递错误: event=%s student=%s", mock.gotEventID, mock.gotStudentID)
	}
	resp := parseResponse(w)
	if resp.Message != "Successfully registered for event" {
		t.Errorf("提示信息不符: %s", resp.Message)
	}
}

func TestRegistrationHandler_Register_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   int
		msg    string
	}{
		{"活动不存在", service.ErrEventUnavailable, http.StatusNotFound, 15001, "Event not found or not available for registration"},
		{"截止", service.ErrRegistrationDeadline, http.StatusBadRequest, 15003, "Registration deadline has passed"},
		{"满员", service.ErrEventFull, http.StatusBadRequest, 15004, "Event is full"},
		{"重复", service.ErrAlreadyRegistered, http.StatusBadRequest, 15006, "You are already registered for this event"},
		{"上限", &service.RegistrationLimitError{Max: 3}, http.StatusBadRequest, 15005, "Registration limit reached (3)"},
		{"包装后的上限", fmt.Errorf("wrap: %w", &service.RegistrationLimitError{Max: 2}), http.StatusBadRequest, 15005, "Registration limit reached (2)"},
		{"未知错误", fmt.Errorf("db down"), http.StatusInternalServerError, 50000, "Internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockRegistrationService{registerErr: tc.err}
			r := registrationRouter(NewRegistrationHandler(mock), "stu-1", model.RoleStudent)

			w := serve(r, "POST", "/registrations/evt-1", nil)

			if w.Code != tc.status {
				t.Fatalf("期望 %d，实际 %d", tc.status, w.Code)
			}
			resp := parseResponse(w)
			if resp.Code != tc.code {
				t.Errorf("期望错误码 %d，实际 %d", tc.code, resp.Code)
			}
			if tc.msg != "" && resp.Message != tc.msg {
				t.Errorf("期望信息 %q，实际 %q", tc.msg, resp.Message)
			}
			if resp.Success {
				t.Error("错误响应 success 应为 false")
			}
		})
	}
}

func TestRegistrationHandler_StaticRoutesNotShadowed(t *testing.T) {
	mock := &mockRegistrationService{
		listMine: []dto.MyRegistrationResponse{{RegistrationID: "reg-1"}},
		total:    1,
	}
	r := registrationRouter(NewRegistrationHandler(mock), "stu-1", model.RoleStudent)

	w := serve(r, "GET", "/registrations/my-registrations?status=upcoming&page=1&limit=5", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Data response.PageData `json:"data"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Data.Pagination.Total != 1 || body.Data.Pagination.PageSize != 5 {
		t.Errorf("分页信息不符: %+v", body.Data.Pagination)
	}
}

func TestRegistrationHandler_ListMine_InvalidStatus(t *testing.T) {
	r := registrationRouter(NewRegistrationHandler(&mockRegistrationService{}), "stu-1", model.RoleStudent)

	w := serve(r, "GET", "/registrations/my-registrations?status=someday", nil)

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望 400，实际 %d", w.Code)
	}
}

func TestRegistrationHandler_Unregister_AfterStart(t *testing.T) {
	mock := &mockRegistrationService{unregisterErr: service.ErrEventAlreadyStarted}
	r := registrationRouter(NewRegistrationHandler(mock), "stu-1", model.RoleStudent)

	w := serve(r, "DELETE", "/registrations/evt-1", nil)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("期望 400，实际 %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 15007 {
		t.Errorf("期望错误码 15007，实际 %d", resp.Code)
	}
}

func TestRegistrationHandler_GetPass_NotRegistered(t *testing.T) {
	mock := &mockRegistrationService{passErr: service.ErrRegistrationNotFound}
	r := registrationRouter(NewRegistrationHandler(mock), "stu-1", model.RoleStudent)

	w := serve(r, "GET", "/registrations/evt-1/pass", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("期望 404，实际 %d", w.Code)
	}
}

func TestRegistrationHandler_Calendar(t *testing.T) {
	mock := &mockRegistrationService{calendar: []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")}
	r := registrationRouter(NewRegistrationHandler(mock), "stu-1", model.RoleStudent)

	w := serve(r, "GET", "/registrations/evt-9/calendar.ics", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type 不符: %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "event_evt-9.ics") {
		t.Errorf("Content-Disposition 不符: %s", cd)
	}
}

func TestRegistrationHandler_MarkAttendance(t *testing.T) {
	r := registrationRouter(NewRegistrationHandler(&mockRegistrationService{}), "org-1", model.RoleOrganizer)

	w := serve(r, "PUT", "/registrations/reg-1/attendance", jsonBody(dto.MarkAttendanceRequest{Status: "attended"}))
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}

	w = serve(r, "PUT", "/registrations/reg-1/attendance", jsonBody(map[string]string{"status": "late"}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("非法状态期望 400，实际 %d", w.Code)
	}
}

func TestRegistrationHandler_MarkAttendance_Forbidden(t *testing.T) {
	mock := &mockRegistrationService{attendanceErr: service.ErrNoPermission}
	r := registrationRouter(NewRegistrationHandler(mock), "org-2", model.RoleOrganizer)

	w := serve(r, "PUT", "/registrations/reg-1/attendance", jsonBody(dto.MarkAttendanceRequest{Status: "absent"}))

	if w.Code != http.StatusForbidden {
		t.Errorf("期望 403，实际 %d", w.Code)
	}
}

func TestRegistrationHandler_Feedback(t *testing.T) {
	cases := []struct {
		name   string
		body   interface{}
		err    error
		status int
	}{
		{"成功", dto.FeedbackRequest{Rating: 5}, nil, http.StatusOK},
		{"评分越界", map[string]int{"rating": 6}, nil, http.StatusBadRequest},
		{"未出勤", dto.FeedbackRequest{Rating: 4}, service.ErrFeedbackNotAttended, http.StatusBadRequest},
		{"重复提交", dto.FeedbackRequest{Rating: 4}, service.ErrFeedbackAlreadySubmitted, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &mockRegistrationService{feedbackErr: tc.err}
			r := registrationRouter(NewRegistrationHandler(mock), "stu-1", model.RoleStudent)

			w := serve(r, "POST", "/registrations/evt-1/feedback", jsonBody(tc.body))

			if w.Code != tc.status {
				t.Errorf("期望 %d，实际 %d", tc.status, w.Code)
			}
		})
	}
}

func TestRegistrationHandler_Feedback_TextForwarded(t *testing.T) {
	mock := &mockRegistrationService{}
	r := registrationRouter(NewRegistrationHandler(mock), "stu-1", model.RoleStudent)

	w := serve(r, "POST", "/registrations/evt-1/feedback", strings.NewReader(`{"rating":5,"feedback":"Great talk"}`))
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	if mock.gotFeedback == nil {
		t.Fatal("Service 未收到反馈请求")
	}
	if mock.gotFeedback.Rating != 5 {
		t.Errorf("期望评分=5，实际=%d", mock.gotFeedback.Rating)
	}
	if mock.gotFeedback.Feedback == nil || *mock.gotFeedback.Feedback != "Great talk" {
		t.Errorf("反馈文本丢失，实际=%v", mock.gotFeedback.Feedback)
	}
	if mock.gotEventID != "evt-1" || mock.gotStudentID != "stu-1" {
		t.Errorf("参数错误: event=%s student=%s", mock.gotEventID, mock.gotStudentID)
	}
}

func TestRegistrationHandler_CheckIn(t *testing.T) {
	mock := &mockRegistrationService{checkInResult: &dto.CheckInResponse{RegistrationID: "reg-1", Status: "attended"}}
	r := registrationRouter(NewRegistrationHandler(mock), "org-1", model.RoleOrganizer)

	w := serve(r, "POST", "/registrations/check-in", jsonBody(dto.CheckInRequest{Ticket: "payload"}))
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}

	mock.checkInErr = service.ErrInvalidTicket
	w = serve(r, "POST", "/registrations/check-in", jsonBody(dto.CheckInRequest{Ticket: "forged"}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("伪造票据期望 400，实际 %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// EventHandler Tests
// ═══════════════════════════════════════════════════════════

func TestEventHandler_Create_Validation(t *testing.T) {
	h := NewEventHandler(&mockEventService{})

	r := gin.New()
	r.POST("/events", withCaller("org-1", model.RoleOrganizer), h.Create)
	w := serve(r, "POST", "/events", jsonBody(map[string]interface{}{
		"title":       "Go",
		"description": "short",
		"event_date":  "2026/03/10",
		"start_time":  "9am",
		"end_time":    "11:00",
		"capacity":    0,
		"venue_id":    "not-a-uuid",
	}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("期望 400，实际 %d", w.Code)
	}
	resp := parseResponse(w)
	fields := map[string]bool{}
	for _, fe := range resp.Errors {
		fields[fe.Field] = true
	}
	for _, f := range []string{"title", "description", "event_date", "start_time", "capacity", "venue_id"} {
		if !fields[f] {
			t.Errorf("缺少字段错误 %s，实际 %+v", f, resp.Errors)
		}
	}
}

func TestEventHandler_Create_Conflict(t *testing.T) {
	mock := &mockEventService{err: service.ErrEventTimeConflict}
	h := NewEventHandler(mock)

	r := gin.New()
	r.POST("/events", withCaller("org-1", model.RoleOrganizer), h.Create)
	w := serve(r, "POST", "/events", jsonBody(dto.CreateEventRequest{
		Title:       "Go Workshop",
		Description: "Hands-on concurrency session",
		EventDate:   "2026-03-10",
		StartTime:   "09:00",
		EndTime:     "11:00",
		Capacity:    30,
		VenueID:     "6f1c2d3e-4a5b-4c6d-8e7f-8091a2b3c4d5",
	}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("期望 400，实际 %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 14007 {
		t.Errorf("期望错误码 14007，实际 %d", resp.Code)
	}
	if mock.gotCaller != "org-1" || mock.gotRole != model.RoleOrganizer {
		t.Errorf("调用方信息传递错误: %s %s", mock.gotCaller, mock.gotRole)
	}
}

func TestEventHandler_Get_Anonymous(t *testing.T) {
	mock := &mockEventService{detail: &dto.EventDetailResponse{}}
	h := NewEventHandler(mock)

	r := gin.New()
	r.GET("/events/:id", h.Get)
	w := serve(r, "GET", "/events/evt-1", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	if mock.gotCaller != "" || mock.gotRole != "" {
		t.Errorf("匿名请求不应带调用方: %q %q", mock.gotCaller, mock.gotRole)
	}
}

func TestEventHandler_Update_OptimisticLock(t *testing.T) {
	h := NewEventHandler(&mockEventService{err: pkgerrors.ErrOptimisticLock})

	r := gin.New()
	r.PUT("/events/:id", withCaller("org-1", model.RoleOrganizer), h.Update)
	title := "Renamed workshop"
	w := serve(r, "PUT", "/events/evt-1", jsonBody(dto.UpdateEventRequest{Title: &title}))

	if w.Code != http.StatusConflict {
		t.Errorf("期望 409，实际 %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// AdminHandler Tests
// ═══════════════════════════════════════════════════════════

func TestAdminHandler_UpdateEventStatus(t *testing.T) {
	mock := &mockAdminService{event: &dto.EventResponse{ID: "evt-1", Status: "approved"}}
	h := NewAdminHandler(mock, &mockSettingsService{})

	r := gin.New()
	r.PUT("/admin/events/:id/status", withCaller("adm-1", model.RoleAdmin), h.UpdateEventStatus)

	w := serve(r, "PUT", "/admin/events/evt-1/status", jsonBody(dto.UpdateEventStatusRequest{Status: "approved"}))
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	if resp := parseResponse(w); resp.Message != "Event approved successfully" {
		t.Errorf("提示信息不符: %s", resp.Message)
	}

	w = serve(r, "PUT", "/admin/events/evt-1/status", jsonBody(map[string]string{"status": "completed"}))
	if w.Code != http.StatusBadRequest {
		t.Errorf("非法目标状态期望 400，实际 %d", w.Code)
	}

	mock.err = service.ErrEventInvalidTransition
	w = serve(r, "PUT", "/admin/events/evt-1/status", jsonBody(dto.UpdateEventStatusRequest{Status: "rejected"}))
	if resp := parseResponse(w); resp.Code != 17001 {
		t.Errorf("期望错误码 17001，实际 %d", resp.Code)
	}
}

func TestAdminHandler_CancelEvent_ShortReason(t *testing.T) {
	h := NewAdminHandler(&mockAdminService{}, &mockSettingsService{})

	r := gin.New()
	r.PUT("/admin/events/:id/cancel", withCaller("adm-1", model.RoleAdmin), h.CancelEvent)
	w := serve(r, "PUT", "/admin/events/evt-1/cancel", jsonBody(dto.CancelEventRequest{Reason: "rain"}))

	if w.Code != http.StatusBadRequest {
		t.Errorf("期望 400，实际 %d", w.Code)
	}
}

func TestAdminHandler_UpdateSettings_Unknown(t *testing.T) {
	h := NewAdminHandler(&mockAdminService{}, &mockSettingsService{err: service.ErrSettingUnknown})

	r := gin.New()
	r.PUT("/admin/settings", withCaller("adm-1", model.RoleAdmin), h.UpdateSettings)
	w := serve(r, "PUT", "/admin/settings", jsonBody(dto.UpdateSettingsRequest{Settings: map[string]string{"theme": "dark"}}))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("期望 400，实际 %d", w.Code)
	}
	if resp := parseResponse(w); resp.Code != 17003 {
		t.Errorf("期望错误码 17003，实际 %d", resp.Code)
	}
}

func TestAdminHandler_Announce(t *testing.T) {
	h := NewAdminHandler(&mockAdminService{announce: &dto.AnnouncementResponse{Recipients: 4}}, &mockSettingsService{})

	r := gin.New()
	r.POST("/admin/announcements", withCaller("adm-1", model.RoleAdmin), h.Announce)
	w := serve(r, "POST", "/admin/announcements", jsonBody(dto.AnnouncementRequest{Title: "Hi", Message: "Welcome back", TargetRole: "all"}))

	if w.Code != http.StatusCreated {
		t.Errorf("期望 201，实际 %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// ExportHandler Tests
// ═══════════════════════════════════════════════════════════

func TestExportHandler_Success(t *testing.T) {
	mock := &mockExportService{buf: bytes.NewBufferString("xlsx"), filename: "Go Workshop_registrations.xlsx"}
	h := NewExportHandler(mock)

	r := gin.New()
	r.GET("/registrations/event/:id/export", withCaller("org-1", model.RoleOrganizer), h.ExportRegistrations)
	w := serve(r, "GET", "/registrations/event/evt-1/export", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("期望 200，实际 %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("Content-Type 不符: %s", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "Go+Workshop_registrations.xlsx") {
		t.Errorf("Content-Disposition 不符: %s", cd)
	}
}

func TestExportHandler_Forbidden(t *testing.T) {
	h := NewExportHandler(&mockExportService{err: service.ErrNoPermission})

	r := gin.New()
	r.GET("/registrations/event/:id/export", withCaller("org-2", model.RoleOrganizer), h.ExportRegistrations)
	w := serve(r, "GET", "/registrations/event/evt-1/export", nil)

	if w.Code != http.StatusForbidden {
		t.Errorf("期望 403，实际 %d", w.Code)
	}
}

// ═══════════════════════════════════════════════════════════
// Context Helper Tests
// ═══════════════════════════════════════════════════════════

func TestMustGetCaller_InvalidRole(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("user_id", "u-1")
	c.Set("role", "leader")

	if _, _, ok := MustGetCaller(c); ok {
		t.Fatal("未知角色不应通过")
	}
	if w.Code != http.StatusUnauthorized {
		t.Errorf("期望 401，实际 %d", w.Code)
	}
}

func TestOptionalCaller_Anonymous(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	id, role := OptionalCaller(c)
	if id != "" || role != "" {
		t.Errorf("匿名应返回空值，实际 %q %q", id, role)
	}
}
