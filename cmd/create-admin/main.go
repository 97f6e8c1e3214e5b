// create-admin 初始化或重置管理员账号
//
//	go run ./cmd/create-admin -email admin@campus.edu -password 'S3cret!'
//
// 邮箱已存在时提升为管理员、重置密码并启用。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"cems/config"
	"cems/internal/model"
	"cems/internal/repository"
	"cems/pkg/database"
	applogger "cems/pkg/logger"
)

func main() {
	var (
		cfgPath   = flag.String("config", os.Getenv("CEMS_CONFIG"), "配置文件路径")
		email     = flag.String("email", "", "管理员邮箱（必填）")
		password  = flag.String("password", "", "管理员密码，至少 6 位（必填）")
		firstName = flag.String("first-name", "System", "名")
		lastName  = flag.String("last-name", "Admin", "姓")
	)
	flag.Parse()

	addr := strings.ToLower(strings.TrimSpace(*email))
	if addr == "" || len(*password) < 6 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.NewDB(&cfg.Database, "warn", logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	defer sqlDB.Close()
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal("密码加密失败", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo := repository.NewRepository(db)
	user, created, err := upsertAdmin(ctx, repo, addr, string(hash), *firstName, *lastName)
	if err != nil {
		logger.Fatal("创建管理员失败", zap.Error(err))
	}

	action := "已提升为管理员并重置密码"
	if created {
		action = "已创建"
	}
	fmt.Printf("管理员 %s %s (id=%s)\n", user.Email, action, user.UserID)
}

func upsertAdmin(ctx context.Context, repo *repository.Repository, email, hash, first, last string) (*model.User, bool, error) {
	var (
		user    *model.User
		created bool
	)
	err := repo.Transaction(ctx, func(tx *repository.Repository) error {
		existing, err := tx.User.GetByEmail(ctx, email)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = &model.User{
				Role:         model.RoleAdmin,
				FirstName:    first,
				LastName:     last,
				Email:        email,
				PasswordHash: hash,
				IsActive:     true,
			}
			created = true
			return tx.User.Create(ctx, user)
		case err != nil:
			return err
		}

		existing.Role = model.RoleAdmin
		existing.PasswordHash = hash
		existing.IsActive = true
		user = existing
		return tx.User.Update(ctx, existing)
	})
	return user, created, err
}
