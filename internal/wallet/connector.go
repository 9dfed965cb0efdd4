package wallet

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	xerrors "WalletBridge/internal/errors"
	"WalletBridge/internal/notify"
	"WalletBridge/internal/observability/metrics"
	"WalletBridge/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"
)

const (
	methodRequestAccounts = "eth_requestAccounts"
	methodAccounts        = "eth_accounts"
)

// Connector requests account access from a wallet provider and remembers
// the authorized accounts.
type Connector struct {
	provider Provider
	notifier notify.Notifier
	logger   *slog.Logger
	timeout  time.Duration

	group singleflight.Group

	mu       sync.RWMutex
	accounts []common.Address
}

// Option configures a Connector.
type Option func(*Connector)

// WithNotifier sets where status notifications go.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Connector) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithLogger overrides the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Connector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRequestTimeout bounds how long a permission prompt may stay open.
// Zero leaves the prompt open until the provider answers; callers still
// stop waiting when their own context ends.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewConnector builds a connector for provider. A nil provider is accepted;
// Connect then reports NO_PROVIDER.
func NewConnector(provider Provider, opts ...Option) *Connector {
	c := &Connector{
		provider: provider,
		notifier: notify.Nop,
		logger:   logger.Named("wallet"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Provider returns the injected provider, which may be nil.
func (c *Connector) Provider() Provider {
	return c.provider
}

// Connect asks the provider for account access with eth_requestAccounts and
// returns the authorized accounts. Concurrent callers share one in-flight
// permission request.
func (c *Connector) Connect(ctx context.Context) ([]common.Address, error) {
	if c.provider == nil {
		err := xerrors.New(xerrors.CodeNoProvider, "")
		c.report(ctx, nil, err)
		return nil, err
	}

	// The prompt is shared, so it outlives whichever caller started it.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(methodRequestAccounts, func() (any, error) {
		accounts, err := c.requestAccounts(shared)
		c.report(shared, accounts, err)
		return accounts, err
	})

	select {
	case <-ctx.Done():
		return nil, xerrors.Wrap(xerrors.CodeConnectionFailed, ctx.Err(), "wallet request aborted")
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return copyAccounts(res.Val.([]common.Address)), nil
	}
}

func (c *Connector) requestAccounts(ctx context.Context) ([]common.Address, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	raw, err := c.provider.Request(ctx, RequestArguments{Method: methodRequestAccounts, Params: []any{}})
	if err != nil {
		return nil, Classify(err, xerrors.CodeConnectionFailed, "request accounts")
	}

	var accounts []common.Address
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConnectionFailed, err, "decode accounts")
	}
	if len(accounts) == 0 {
		return nil, xerrors.New(xerrors.CodeUserRejected, "no accounts authorized")
	}

	c.mu.Lock()
	c.accounts = copyAccounts(accounts)
	c.mu.Unlock()
	return accounts, nil
}

func (c *Connector) report(ctx context.Context, accounts []common.Address, err error) {
	event := notify.Event{OccurredAt: time.Now().UTC()}
	if err != nil {
		code := xerrors.CodeOf(err)
		metrics.ObserveWalletConnect(string(code))
		c.logger.Warn("wallet connection failed", "code", code, "error", err)
		event.Kind = notify.KindWalletConnectFailed
		event.Message = "wallet connection failed: " + xerrors.AttributesOf(code).Message
		event.Severity = xerrors.SeverityOf(err)
		event.Code = code
	} else {
		metrics.ObserveWalletConnect("ok")
		c.logger.Info("connected to wallet successfully", "accounts", len(accounts))
		event.Kind = notify.KindWalletConnected
		event.Message = "connected to wallet successfully"
		event.Severity = xerrors.SeverityInfo
		event.Accounts = hexAccounts(accounts)
	}
	if nerr := c.notifier.Notify(ctx, event); nerr != nil {
		c.logger.Warn("deliver wallet notification", "error", nerr)
	}
}

// Accounts returns the accounts from the last successful Connect.
func (c *Connector) Accounts() []common.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyAccounts(c.accounts)
}

// Connected reports whether at least one account is authorized.
func (c *Connector) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.accounts) > 0
}

// Primary returns the first authorized account.
func (c *Connector) Primary() (common.Address, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.accounts) == 0 {
		return common.Address{}, xerrors.New(xerrors.CodeNotConnected, "")
	}
	return c.accounts[0], nil
}

// EnsureConnected returns the primary account, connecting first if needed.
func (c *Connector) EnsureConnected(ctx context.Context) (common.Address, error) {
	if addr, err := c.Primary(); err == nil {
		return addr, nil
	}
	accounts, err := c.Connect(ctx)
	if err != nil {
		return common.Address{}, err
	}
	return accounts[0], nil
}

// Refresh re-reads the authorized accounts with eth_accounts, which never
// prompts the user. An empty answer clears the connection.
func (c *Connector) Refresh(ctx context.Context) ([]common.Address, error) {
	if c.provider == nil {
		return nil, xerrors.New(xerrors.CodeNoProvider, "")
	}
	raw, err := c.provider.Request(ctx, RequestArguments{Method: methodAccounts, Params: []any{}})
	if err != nil {
		return nil, Classify(err, xerrors.CodeConnectionFailed, "read accounts")
	}
	var accounts []common.Address
	if err := json.Unmarshal(raw, &accounts); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeConnectionFailed, err, "decode accounts")
	}
	c.mu.Lock()
	c.accounts = copyAccounts(accounts)
	c.mu.Unlock()
	return copyAccounts(accounts), nil
}

// Disconnect forgets the authorized accounts.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	c.accounts = nil
	c.mu.Unlock()
}

func copyAccounts(in []common.Address) []common.Address {
	if len(in) == 0 {
		return nil
	}
	out := make([]common.Address, len(in))
	copy(out, in)
	return out
}

func hexAccounts(in []common.Address) []string {
	out := make([]string, len(in))
	for i, a := range in {
		out[i] = a.Hex()
	}
	return out
}
