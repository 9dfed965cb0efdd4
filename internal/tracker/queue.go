// Package tracker 跟踪已提交交易的回执，并把最终状态写回调用记录。
package tracker

import (
	"context"
)

// Handler 处理来自队列的调用 ID。
type Handler func(ctx context.Context, invocationID string) error

// Producer 负责向队列投递待跟踪的调用。
type Producer interface {
	Publish(ctx context.Context, invocationID string) error
	Close() error
}

// Consumer 负责从队列中消费调用 ID。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
