// Package queue 封装 RabbitMQ 的声明、发布与消费
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"cems/config"
)

// ErrDrop 处理函数返回该错误时消息被直接丢弃，不再重投
var ErrDrop = errors.New("drop message")

// Handler 消息处理函数
type Handler func(ctx context.Context, body []byte) error

// Client RabbitMQ 客户端
type Client struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	queue      string
	routingKey string
	logger     *zap.Logger

	mu sync.Mutex // amqp.Channel 不支持并发发布
}

// NewClient 连接 RabbitMQ 并声明 direct 交换机、持久化队列与绑定
func NewClient(cfg *config.QueueConfig, logger *zap.Logger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("打开 RabbitMQ channel 失败: %w", err)
	}

	c := &Client{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		queue:      cfg.Queue,
		routingKey: cfg.RoutingKey,
		logger:     logger,
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("声明交换机失败: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("声明队列失败: %w", err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("绑定队列失败: %w", err)
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			c.Close()
			return nil, fmt.Errorf("设置 prefetch 失败: %w", err)
		}
	}

	logger.Info("RabbitMQ 初始化完成",
		zap.String("exchange", cfg.Exchange),
		zap.String("queue", cfg.Queue),
	)
	return c, nil
}

// Publish 发布持久化 JSON 消息
func (c *Client) Publish(ctx context.Context, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.channel.PublishWithContext(ctx, c.exchange, c.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("发布消息失败: %w", err)
	}
	return nil
}

// Consume 启动消费协程，ctx 取消或 channel 关闭时退出
// 返回的 done 在消费循环退出后关闭；消息在循环内串行处理，done 关闭即无处理中的消息
// 处理失败的消息重投一次；已重投过或返回 ErrDrop 的消息直接丢弃
func (c *Client) Consume(ctx context.Context, handler Handler) (<-chan struct{}, error) {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("启动消费失败: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					c.logger.Warn("RabbitMQ 投递通道已关闭", zap.String("queue", c.queue))
					return
				}
				c.dispatch(ctx, d, handler)
			}
		}
	}()

	c.logger.Info("开始消费队列", zap.String("queue", c.queue))
	return done, nil
}

func (c *Client) dispatch(ctx context.Context, d amqp.Delivery, handler Handler) {
	err := handler(ctx, d.Body)
	if err == nil {
		_ = d.Ack(false)
		return
	}

	requeue := !d.Redelivered && !errors.Is(err, ErrDrop)
	c.logger.Warn("消息处理失败",
		zap.String("queue", c.queue),
		zap.Bool("requeue", requeue),
		zap.Error(err),
	)
	_ = d.Nack(false, requeue)
}

// Close 关闭 channel 与连接
func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.logger.Info("RabbitMQ 连接已关闭")
}
