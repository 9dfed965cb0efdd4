package tracker

import (
	"context"
	"errors"
	"time"

	"WalletBridge/internal/config"
	xerrors "WalletBridge/internal/errors"

	"github.com/redis/go-redis/v9"
)

const defaultRedisQueue = "walletbridge:receipts"

// redisListClient 是队列用到的 *redis.Client 方法子集。
type redisListClient interface {
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	Close() error
}

// RedisQueue 使用 Redis list 实现跟踪队列：LPUSH 入队，BRPOP 出队。
type RedisQueue struct {
	client redisListClient
	queue  string
	wait   time.Duration
}

// NewRedisQueue 创建 Redis 队列实例。
func NewRedisQueue(ctx context.Context, cfg config.RedisConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 Redis 失败")
	}
	return NewRedisQueueWithClient(client, cfg.Queue, time.Duration(cfg.BlockWait)*time.Second), nil
}

// NewRedisQueueWithClient 复用已有的 Redis 客户端。
func NewRedisQueueWithClient(client redisListClient, queue string, wait time.Duration) *RedisQueue {
	if queue == "" {
		queue = defaultRedisQueue
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{client: client, queue: queue, wait: wait}
}

// Publish 将调用 ID 投递到 Redis。
func (q *RedisQueue) Publish(ctx context.Context, invocationID string) error {
	if err := q.client.LPush(ctx, q.queue, invocationID).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 投递失败")
	}
	return nil
}

// Consume 通过 BRPOP 从 Redis 获取调用 ID。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				default:
				}
				values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) {
						errCh <- err
						return
					}
					if errors.Is(err, redis.Nil) {
						continue
					}
					errCh <- xerrors.Wrap(xerrors.CodeQueueFailure, err, "Redis 取调用失败")
					return
				}
				if len(values) != 2 {
					continue
				}
				id := values[1]
				if handlerErr := handler(ctx, id); handlerErr != nil {
					// 处理失败时放回队尾。
					_ = q.client.LPush(ctx, q.queue, id).Err()
				}
			}
		}()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
