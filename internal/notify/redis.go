package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Publisher is the subset of the redis client used for notifications.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisConfig 描述 Redis 通知通道。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Channel  string
}

// RedisNotifier 通过 PUBLISH 将事件以 JSON 形式广播给订阅者。
type RedisNotifier struct {
	client  Publisher
	closer  func() error
	channel string
}

// NewRedisNotifier 创建 Redis 通知器并检查连接。
func NewRedisNotifier(ctx context.Context, cfg RedisConfig) (*RedisNotifier, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	n := NewRedisNotifierWithClient(client, cfg.Channel)
	n.closer = client.Close
	return n, nil
}

// NewRedisNotifierWithClient 使用已有客户端构造通知器。
func NewRedisNotifierWithClient(client Publisher, channel string) *RedisNotifier {
	if strings.TrimSpace(channel) == "" {
		channel = "walletbridge:events"
	}
	return &RedisNotifier{client: client, channel: channel}
}

// Notify implements Notifier.
func (n *RedisNotifier) Notify(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("编码通知事件失败: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("Redis 发布通知失败: %w", err)
	}
	return nil
}

// Close 关闭底层连接。
func (n *RedisNotifier) Close() error {
	if n == nil || n.closer == nil {
		return nil
	}
	return n.closer()
}
