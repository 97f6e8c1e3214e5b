package errors

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("record was modified by another request, please reload and retry")

// PostgreSQL SQLSTATE
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeExclusionViolation  = "23P01"
	codeCheckViolation      = "23514"
)

// pgCode 提取底层 PgError 的 SQLSTATE
func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// ConstraintName 返回触发错误的约束名（非 PgError 时为空）
func ConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// IsUniqueViolation 唯一约束冲突（含 GORM TranslateError 后的 ErrDuplicatedKey）
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrDuplicatedKey) || pgCode(err) == codeUniqueViolation
}

// IsForeignKeyViolation 外键约束冲突
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrForeignKeyViolated) || pgCode(err) == codeForeignKeyViolation
}

// IsExclusionViolation 排他约束冲突（场地时间段重叠）
func IsExclusionViolation(err error) bool {
	return err != nil && pgCode(err) == codeExclusionViolation
}

// IsCheckViolation CHECK 约束冲突
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, gorm.ErrCheckConstraintViolated) || pgCode(err) == codeCheckViolation
}
