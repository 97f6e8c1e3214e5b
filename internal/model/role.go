package model

// Role 用户角色（封闭枚举）
type Role string

const (
	RoleStudent   Role = "student"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

// Valid 是否为已知角色
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// ── 按操作划分的权限判定 ──

// CanManageEvent 管理员或活动所属组织者可编辑活动、查看报名、标记出勤
func CanManageEvent(role Role, userID, organizerID string) bool {
	return role == RoleAdmin || (role == RoleOrganizer && userID == organizerID)
}

// CanCreateEvent 组织者与管理员可创建活动
func CanCreateEvent(role Role) bool {
	return role == RoleOrganizer || role == RoleAdmin
}

// CanRegister 仅学生可报名
func CanRegister(role Role) bool {
	return role == RoleStudent
}

// CanViewEvent 已批准/已完成的活动公开；其余仅组织者本人与管理员可见
func CanViewEvent(role Role, userID string, e *Event) bool {
	if e.Status == EventApproved || e.Status == EventCompleted {
		return true
	}
	return CanManageEvent(role, userID, e.OrganizerID)
}

// CanAccessUser 本人或管理员
func CanAccessUser(role Role, callerID, targetID string) bool {
	return role == RoleAdmin || callerID == targetID
}
