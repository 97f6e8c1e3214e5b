package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"cems/pkg/mailer"
	"cems/pkg/queue"
)

// Publisher 消息发布接口（由 queue.Client 实现）
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Consumer 消息消费接口（由 queue.Client 实现）
type Consumer interface {
	Consume(ctx context.Context, handler queue.Handler) (<-chan struct{}, error)
}

// ── 投递端 ──

// QueuedSender 将邮件序列化后投递到队列，由 MailWorker 异步发送
type QueuedSender struct {
	pub    Publisher
	logger *zap.Logger
}

// NewQueuedSender 创建 QueuedSender
func NewQueuedSender(pub Publisher, logger *zap.Logger) *QueuedSender {
	return &QueuedSender{pub: pub, logger: logger}
}

// Send 实现 mailer.Sender
func (s *QueuedSender) Send(ctx context.Context, msg *mailer.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("序列化邮件失败: %w", err)
	}
	if err := s.pub.Publish(ctx, body); err != nil {
		return err
	}
	s.logger.Debug("邮件已入队", zap.Strings("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

// ── 消费端 ──

// MailWorker 消费邮件队列并通过 SMTP 发送
type MailWorker struct {
	consumer Consumer
	sender   mailer.Sender
	logger   *zap.Logger

	cancel context.CancelFunc
	done   <-chan struct{}
}

// NewMailWorker 创建 MailWorker
func NewMailWorker(consumer Consumer, sender mailer.Sender, logger *zap.Logger) *MailWorker {
	return &MailWorker{consumer: consumer, sender: sender, logger: logger}
}

// Start 开始消费
func (w *MailWorker) Start(ctx context.Context) error {
	cctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	done, err := w.consumer.Consume(cctx, w.handle)
	if err != nil {
		cancel()
		return err
	}
	w.done = done
	w.logger.Info("邮件 Worker 已启动")
	return nil
}

// Stop 停止消费，等消费循环退出（处理中的邮件发完）后返回
func (w *MailWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if w.done != nil {
		<-w.done
	}
	w.logger.Info("邮件 Worker 已停止")
}

func (w *MailWorker) handle(ctx context.Context, body []byte) error {
	var msg mailer.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		w.logger.Error("邮件消息解析失败", zap.Error(err))
		return fmt.Errorf("%w: %v", queue.ErrDrop, err)
	}
	if err := msg.Validate(); err != nil {
		w.logger.Error("邮件消息无效", zap.Error(err))
		return fmt.Errorf("%w: %v", queue.ErrDrop, err)
	}

	if err := w.sender.Send(ctx, &msg); err != nil {
		w.logger.Warn("邮件发送失败",
			zap.Strings("to", msg.To),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		return err
	}
	return nil
}
