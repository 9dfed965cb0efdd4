package tracker

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	xerrors "WalletBridge/internal/errors"
	"WalletBridge/internal/journal"
	"WalletBridge/internal/notify"
	"WalletBridge/internal/observability/metrics"
	"WalletBridge/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ReceiptWaiter 等待交易上链并返回回执。
type ReceiptWaiter interface {
	WaitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// WaiterResolver 根据链名称返回对应的 ReceiptWaiter。
type WaiterResolver func(chain string) (ReceiptWaiter, error)

const (
	defaultReceiptTimeout = 5 * time.Minute
	defaultMaxAttempts    = 3
)

// Processor 从队列消费调用 ID，等待回执并更新调用记录。
type Processor struct {
	store          journal.Store
	consumer       Consumer
	producer       Producer
	resolve        WaiterResolver
	notifier       notify.Notifier
	workerCount    int
	receiptTimeout time.Duration
	maxAttempts    int
	logger         *slog.Logger

	mu       sync.Mutex
	attempts map[string]int

	// requeues 跟踪后台重投协程，Start 返回前等待其结束。
	requeues sync.WaitGroup
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithNotifier 配置状态通知。
func WithNotifier(n notify.Notifier) ProcessorOption {
	return func(p *Processor) {
		if n != nil {
			p.notifier = n
		}
	}
}

// WithReceiptTimeout 设置单次等待回执的最长时间。
func WithReceiptTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.receiptTimeout = d
		}
	}
}

// WithMaxAttempts 设置回执等待超时后的最大重试次数。
func WithMaxAttempts(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(store journal.Store, consumer Consumer, producer Producer, resolve WaiterResolver, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:          store,
		consumer:       consumer,
		producer:       producer,
		resolve:        resolve,
		notifier:       notify.Nop,
		workerCount:    1,
		receiptTimeout: defaultReceiptTimeout,
		maxAttempts:    defaultMaxAttempts,
		logger:         logger.Named("tracker"),
		attempts:       make(map[string]int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动消费循环，阻塞直到 ctx 结束且所有重投协程退出。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "未配置跟踪队列消费者")
	}
	err := p.consumer.Consume(ctx, p.workerCount, p.Handle)
	p.requeues.Wait()
	return err
}

// Handle 处理单个调用 ID。
func (p *Processor) Handle(ctx context.Context, id string) error {
	if p.store == nil || p.resolve == nil {
		return xerrors.New(xerrors.CodeQueueFailure, "跟踪处理器未初始化")
	}
	inv, err := p.store.Get(ctx, id)
	if err != nil {
		if stdErrors.Is(err, journal.ErrInvocationNotFound) {
			p.logger.Debug("跳过不存在的调用", slog.String("invocation_id", id))
			return nil
		}
		p.logger.Error("读取调用记录失败", slog.Any("error", err), slog.String("invocation_id", id))
		return err
	}
	if inv.Status.Terminal() {
		p.forget(id)
		return nil
	}
	if inv.Kind != journal.KindTransaction || inv.TxHash == "" {
		return p.finish(ctx, inv, journal.StatusFailed, nil,
			xerrors.New(xerrors.CodeInvalidArgument, "调用没有可跟踪的交易哈希"))
	}

	waiter, err := p.resolve(inv.Chain)
	if err != nil {
		return p.finish(ctx, inv, journal.StatusFailed, nil, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.receiptTimeout)
	receipt, err := waiter.WaitReceipt(waitCtx, common.HexToHash(inv.TxHash))
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.retryOrFail(ctx, inv, err)
	}

	status := journal.StatusSucceeded
	var cause error
	if receipt.Status != types.ReceiptStatusSuccessful {
		status = journal.StatusReverted
		cause = xerrors.Newf(xerrors.CodeExecutionReverted, "transaction %s reverted", inv.TxHash)
	}
	return p.finish(ctx, inv, status, receipt, cause)
}

func (p *Processor) retryOrFail(ctx context.Context, inv *journal.Invocation, cause error) error {
	attempt := p.bump(inv.ID)
	if xerrors.RetryableError(cause) && attempt < p.maxAttempts && p.producer != nil {
		p.logger.Warn("回执尚未就绪，重新排队",
			slog.String("invocation_id", inv.ID),
			slog.String("tx_hash", inv.TxHash),
			slog.Int("attempt", attempt),
			slog.Any("error", cause),
		)
		p.requeue(ctx, inv.ID)
		return nil
	}
	return p.finish(ctx, inv, journal.StatusFailed, nil, cause)
}

func (p *Processor) finish(ctx context.Context, inv *journal.Invocation, status journal.Status, receipt *types.Receipt, cause error) error {
	p.forget(inv.ID)
	inv.Status = status
	if receipt != nil {
		if receipt.BlockNumber != nil {
			inv.BlockNumber = receipt.BlockNumber.Uint64()
		}
		if raw, err := json.Marshal(receipt); err == nil {
			inv.Output = raw
		}
	}
	if cause != nil {
		inv.Error = cause.Error()
		inv.ErrorCode = string(xerrors.CodeOf(cause))
	}
	if err := p.store.Update(ctx, inv); err != nil {
		p.logger.Error("回写调用状态失败", slog.Any("error", err), slog.String("invocation_id", inv.ID))
		return err
	}
	metrics.ObserveReceipt(string(status))

	logger.Audit().Info("交易跟踪完成",
		slog.String("invocation_id", inv.ID),
		slog.String("tx_hash", inv.TxHash),
		slog.String("status", string(status)),
		slog.Uint64("block_number", inv.BlockNumber),
	)

	event := notify.Event{
		Kind:         notify.KindTxConfirmed,
		Message:      fmt.Sprintf("transaction %s confirmed in block %d", inv.TxHash, inv.BlockNumber),
		Severity:     xerrors.SeverityInfo,
		InvocationID: inv.ID,
		TxHash:       inv.TxHash,
		Metadata:     map[string]string{"method": inv.Method, "contract": inv.Contract},
	}
	if status != journal.StatusSucceeded {
		event.Kind = notify.KindTxFailed
		event.Message = fmt.Sprintf("transaction %s %s: %s", inv.TxHash, status, inv.Error)
		event.Severity = xerrors.SeverityOf(cause)
		event.Code = xerrors.CodeOf(cause)
	}
	if err := p.notifier.Notify(ctx, event); err != nil {
		p.logger.Warn("发送交易通知失败", slog.Any("error", err), slog.String("invocation_id", inv.ID))
	}
	return nil
}

// requeue 在独立协程中重投，消费协程不会因队列已满而互相阻塞。
func (p *Processor) requeue(ctx context.Context, id string) {
	p.requeues.Add(1)
	go func() {
		defer p.requeues.Done()
		if err := p.producer.Publish(ctx, id); err != nil {
			p.logger.Error("调用重投失败", slog.Any("error", err), slog.String("invocation_id", id))
		}
	}()
}

// Drain 等待所有已发起的重投完成。
func (p *Processor) Drain() {
	p.requeues.Wait()
}

func (p *Processor) bump(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[id]++
	return p.attempts[id]
}

func (p *Processor) forget(id string) {
	p.mu.Lock()
	delete(p.attempts, id)
	p.mu.Unlock()
}
