package tracker

import (
	"context"
	"strings"

	"WalletBridge/internal/config"
	xerrors "WalletBridge/internal/errors"
)

// OpenQueue 按配置的 driver 创建跟踪队列。
func OpenQueue(ctx context.Context, cfg config.TrackerConfig) (Queue, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryQueue(0), nil
	case "redis":
		return NewRedisQueue(ctx, cfg.Redis)
	case "rabbitmq":
		return NewRabbitMQQueue(cfg.RabbitMQ)
	default:
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "不支持的 tracker driver: %s", cfg.Driver)
	}
}
