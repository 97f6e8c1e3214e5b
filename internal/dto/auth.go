package dto

// ── 认证模块 DTO ──

// LoginRequest 登录请求
type LoginRequest struct {
	Email      string `json:"email"    binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

// RegisterRequest 注册请求（学生或组织者）
type RegisterRequest struct {
	FirstName  string `json:"first_name" binding:"required,min=1,max=100"`
	LastName   string `json:"last_name"  binding:"required,min=1,max=100"`
	Email      string `json:"email"      binding:"required,email,max=255"`
	Password   string `json:"password"   binding:"required,min=6,max=72"`
	Role       string `json:"role"       binding:"omitempty,oneof=student organizer"`
	Department string `json:"department" binding:"omitempty,max=100"`
	StudentNo  string `json:"student_no" binding:"omitempty,max=50"`
	Phone      string `json:"phone"      binding:"omitempty,max=30"`
}

// RefreshTokenRequest 刷新 Token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"` // 非 Cookie 模式时使用
}

// ChangePasswordRequest 修改密码请求
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password"     binding:"required,min=6,max=72"`
}

// UpdateProfileRequest 更新个人资料
type UpdateProfileRequest struct {
	FirstName  *string `json:"first_name" binding:"omitempty,min=1,max=100"`
	LastName   *string `json:"last_name"  binding:"omitempty,min=1,max=100"`
	Department *string `json:"department" binding:"omitempty,max=100"`
	StudentNo  *string `json:"student_no" binding:"omitempty,max=50"`
	Phone      *string `json:"phone"      binding:"omitempty,max=30"`
}

// TokenResponse Token 对响应
type TokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"` // Cookie 模式下可不返回
	ExpiresIn    int          `json:"expires_in"`              // Access Token 有效期（秒）
	User         UserResponse `json:"user"`
}
