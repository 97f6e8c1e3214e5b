package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cems/config"
	"cems/internal/api/handler"
	"cems/internal/api/router"
	"cems/internal/repository"
	"cems/internal/scheduler"
	"cems/internal/service"
	"cems/internal/worker"
	"cems/pkg/database"
	"cems/pkg/jwt"
	applogger "cems/pkg/logger"
	"cems/pkg/mailer"
	"cems/pkg/pass"
	"cems/pkg/queue"
	"cems/pkg/redis"
	"cems/pkg/validate"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load(os.Getenv("CEMS_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.String("timezone", cfg.Server.Timezone),
	)

	// 3. 连接数据库并执行迁移
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：连接失败时降级运行，不中断启动）
	rdb, err := redis.NewClient(&cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis 连接失败，限流与 Token 黑名单将不可用", zap.Error(err))
		rdb = nil
	}

	// 5. 基础组件
	validate.Register()
	jwtMgr := jwt.NewManager(&cfg.Auth)

	deps := service.Deps{}
	if rdb != nil {
		deps.Blacklist = rdb
	}
	if gen, err := pass.NewFileGenerator(cfg.Server.UploadDir, logger); err != nil {
		logger.Warn("凭证生成器初始化失败，报名将不生成二维码/PDF", zap.Error(err))
	} else {
		deps.Passes = gen
	}

	// 6. 邮件通道：RabbitMQ 队列 → SMTP 直发 → 仅记录日志
	var directSender mailer.Sender = mailer.NewNoopSender(logger)
	if cfg.Mail.Enabled() {
		directSender = mailer.NewSMTPSender(&cfg.Mail, logger)
	}
	deps.Mailer = directSender

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var (
		mq         *queue.Client
		mailWorker *worker.MailWorker
	)
	if cfg.Queue.URL != "" {
		mq, err = queue.NewClient(&cfg.Queue, logger)
		if err != nil {
			logger.Warn("RabbitMQ 连接失败，邮件改为同步发送", zap.Error(err))
			mq = nil
		} else {
			deps.Mailer = worker.NewQueuedSender(mq, logger)
			mailWorker = worker.NewMailWorker(mq, directSender, logger)
			if err := mailWorker.Start(workerCtx); err != nil {
				logger.Fatal("邮件消费者启动失败", zap.Error(err))
			}
		}
	}

	// 7. 依赖注入: Repository → Service → Handler
	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, jwtMgr, deps, logger)
	h := handler.NewHandler(cfg, svc)

	// 8. 定时任务：过期活动自动标记为已完成
	var cron *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		cron = scheduler.New(cfg.Server.Location(), logger)
		if err := cron.AddEventCompletion(cfg.Scheduler.CompleteEventsSpec, svc.Event); err != nil {
			logger.Fatal("注册定时任务失败", zap.Error(err))
		}
		cron.Start()
	}

	// 9. 初始化路由并启动 HTTP 服务器
	engine := router.Setup(cfg, h, jwtMgr, rdb, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 10. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}
	if cron != nil {
		cron.Stop(ctx)
	}
	if mailWorker != nil {
		mailWorker.Stop()
	}
	if mq != nil {
		mq.Close()
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("关闭数据库连接失败", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}

	logger.Info("服务器已关闭")
}
