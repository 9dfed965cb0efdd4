// Package service 组合钱包连接、合约调用、调用记录与回执跟踪，
// 为 API 与 CLI 提供统一入口。
package service

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"WalletBridge/internal/contract"
	xerrors "WalletBridge/internal/errors"
	"WalletBridge/internal/journal"
	"WalletBridge/internal/notify"
	"WalletBridge/internal/tracker"
	"WalletBridge/internal/wallet"
	"WalletBridge/pkg/logger"
)

// Session 将一条链与其钱包连接器和合约调用器绑定。
type Session struct {
	Chain     string
	Connector *wallet.Connector
	Invoker   *contract.Invoker
}

// SessionConfig 控制 NewSession 构造的连接器与调用器。
type SessionConfig struct {
	RequestTimeout time.Duration
	PollInterval   time.Duration
	Notifier       notify.Notifier
}

// NewSession 基于 provider 创建会话。
func NewSession(chain string, provider wallet.Provider, cfg SessionConfig) *Session {
	connector := wallet.NewConnector(provider,
		wallet.WithNotifier(cfg.Notifier),
		wallet.WithRequestTimeout(cfg.RequestTimeout),
		wallet.WithLogger(logger.Named("wallet").With("chain", chain)),
	)
	return &Session{
		Chain:     chain,
		Connector: connector,
		Invoker:   contract.NewInvoker(connector, contract.WithPollInterval(cfg.PollInterval)),
	}
}

// Service 负责钱包连接与合约调用的编排。
type Service struct {
	sessions     map[string]*Session
	defaultChain string
	store        journal.Store
	producer     tracker.Producer
	notifier     notify.Notifier
	logger       *slog.Logger
}

// Option 定义可选配置。
type Option func(*Service)

// WithNotifier 配置状态通知。
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// New 构造服务。store 为空时使用内存存储；producer 为空时不跟踪未确认的交易。
func New(defaultChain string, sessions []*Session, store journal.Store, producer tracker.Producer, opts ...Option) (*Service, error) {
	if len(sessions) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "至少需要一个链会话")
	}
	s := &Service{
		sessions: make(map[string]*Session, len(sessions)),
		store:    store,
		producer: producer,
		notifier: notify.Nop,
		logger:   logger.Named("service"),
	}
	for _, sess := range sessions {
		if sess == nil || strings.TrimSpace(sess.Chain) == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "链会话缺少名称")
		}
		s.sessions[sess.Chain] = sess
	}
	if defaultChain == "" && len(sessions) == 1 {
		defaultChain = sessions[0].Chain
	}
	if _, ok := s.sessions[defaultChain]; !ok {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "默认链 %q 未配置", defaultChain)
	}
	s.defaultChain = defaultChain
	if s.store == nil {
		s.store = journal.NewMemoryStore()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// DefaultChain 返回默认链名称。
func (s *Service) DefaultChain() string {
	return s.defaultChain
}

// Chains 返回已配置的链名称。
func (s *Service) Chains() []string {
	names := make([]string, 0, len(s.sessions))
	for name := range s.sessions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Session 根据名称返回会话，名称为空时返回默认链。
func (s *Service) Session(chain string) (*Session, error) {
	chain = strings.TrimSpace(chain)
	if chain == "" {
		chain = s.defaultChain
	}
	sess, ok := s.sessions[chain]
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeNotFound, "未找到链 %s", chain)
	}
	return sess, nil
}

// WaiterResolver 供回执跟踪器按链查找调用器。
func (s *Service) WaiterResolver() tracker.WaiterResolver {
	return func(chain string) (tracker.ReceiptWaiter, error) {
		sess, err := s.Session(chain)
		if err != nil {
			return nil, err
		}
		return sess.Invoker, nil
	}
}

// AccountsResult 描述某条链上的钱包账户。
type AccountsResult struct {
	Chain     string   `json:"chain"`
	Connected bool     `json:"connected"`
	Accounts  []string `json:"accounts"`
}

// Connect 请求钱包授权账户。
func (s *Service) Connect(ctx context.Context, chain string) (AccountsResult, error) {
	sess, err := s.Session(chain)
	if err != nil {
		return AccountsResult{}, err
	}
	accounts, err := sess.Connector.Connect(ctx)
	if err != nil {
		return AccountsResult{Chain: sess.Chain}, err
	}
	return AccountsResult{Chain: sess.Chain, Connected: true, Accounts: hexAccounts(accounts)}, nil
}

// Accounts 返回最近一次连接得到的账户，不会触发授权。
func (s *Service) Accounts(chain string) (AccountsResult, error) {
	sess, err := s.Session(chain)
	if err != nil {
		return AccountsResult{}, err
	}
	return AccountsResult{
		Chain:     sess.Chain,
		Connected: sess.Connector.Connected(),
		Accounts:  hexAccounts(sess.Connector.Accounts()),
	}, nil
}

// Invocation 查询单条调用记录。
func (s *Service) Invocation(ctx context.Context, id string) (*journal.Invocation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "调用 ID 不能为空")
	}
	return s.store.Get(ctx, id)
}

// Invocations 返回最近的调用记录。
func (s *Service) Invocations(ctx context.Context, opts journal.ListOptions) ([]*journal.Invocation, error) {
	return s.store.ListLatest(ctx, opts)
}

// Stats 汇总调用记录的状态分布。
func (s *Service) Stats(ctx context.Context, opts journal.ListOptions) (journal.Stats, error) {
	return s.store.Stats(ctx, opts)
}

// WaitUntilSettled 轮询调用记录直到进入终态或 ctx 结束。
func (s *Service) WaitUntilSettled(ctx context.Context, id string, interval time.Duration) (*journal.Invocation, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		inv, err := s.Invocation(ctx, id)
		if err != nil {
			return nil, err
		}
		if inv.Status.Terminal() {
			return inv, nil
		}
		select {
		case <-ctx.Done():
			return inv, xerrors.Wrapf(xerrors.CodeTimeout, ctx.Err(), "调用 %s 尚未完成", id)
		case <-ticker.C:
		}
	}
}

// Close 释放存储与队列。
func (s *Service) Close() error {
	var errs []error
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return stdErrors.Join(errs...)
}
