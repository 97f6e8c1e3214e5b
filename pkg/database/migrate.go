package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtySchema 上一次迁移中途失败，需人工 `migrate force <version>` 修复后才能启动
var ErrDirtySchema = errors.New("database schema is dirty")

// migrationTable CEMS 的迁移版本表
const migrationTable = "cems_schema_migrations"

// versionReader 由 *migrate.Migrate 实现
type versionReader interface {
	Version() (version uint, dirty bool, err error)
}

// RunMigrations 应用 embed 的全部 SQL 迁移
// schema 处于 dirty 状态时返回 ErrDirtySchema，server 与 create-admin 均拒绝继续
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	src, err := migrationSource()
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationTable})
	if err != nil {
		return fmt.Errorf("创建迁移驱动失败: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("初始化迁移实例失败: %w", err)
	}

	before, err := schemaVersion(m)
	if err != nil {
		return err
	}

	if err := upError(m.Up()); err != nil {
		return err
	}

	after, err := schemaVersion(m)
	if err != nil {
		return err
	}

	if after == before {
		logger.Info("数据库 schema 已是最新", zap.Uint("version", after))
	} else {
		logger.Info("数据库迁移完成", zap.Uint("from", before), zap.Uint("to", after))
	}
	return nil
}

func migrationSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("加载迁移文件失败: %w", err)
	}
	return src, nil
}

// schemaVersion 读取当前版本；空库返回 0
func schemaVersion(r versionReader) (uint, error) {
	version, dirty, err := r.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("读取迁移版本失败: %w", err)
	case dirty:
		return version, fmt.Errorf("%w (version %d)", ErrDirtySchema, version)
	}
	return version, nil
}

// upError 归一化 m.Up() 的返回值
func upError(err error) error {
	if err == nil || errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	var dirty migrate.ErrDirty
	if errors.As(err, &dirty) {
		return fmt.Errorf("%w (version %d)", ErrDirtySchema, dirty.Version)
	}
	return fmt.Errorf("执行迁移失败: %w", err)
}
