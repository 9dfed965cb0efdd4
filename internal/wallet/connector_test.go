package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "WalletBridge/internal/errors"
	"WalletBridge/internal/notify"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func accountsProvider(calls *atomic.Int32, accounts ...common.Address) Provider {
	return ProviderFunc(func(_ context.Context, args RequestArguments) (json.RawMessage, error) {
		if calls != nil {
			calls.Add(1)
		}
		if args.Method != "eth_requestAccounts" && args.Method != "eth_accounts" {
			return nil, NewProviderError(CodeUnsupportedMethod, args.Method)
		}
		return json.Marshal(accounts)
	})
}

func TestConnectSuccess(t *testing.T) {
	t.Parallel()

	var seenMethod string
	var seenParams []any
	rec := &recorder{}
	provider := ProviderFunc(func(_ context.Context, args RequestArguments) (json.RawMessage, error) {
		seenMethod, seenParams = args.Method, args.Params
		return json.RawMessage(`["0x1111111111111111111111111111111111111111","0x2222222222222222222222222222222222222222"]`), nil
	})
	c := NewConnector(provider, WithNotifier(rec))

	accounts, err := c.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, []common.Address{alice, bob}, accounts)
	require.Equal(t, "eth_requestAccounts", seenMethod)
	require.NotNil(t, seenParams)
	require.Empty(t, seenParams)

	require.True(t, c.Connected())
	primary, err := c.Primary()
	require.NoError(t, err)
	require.Equal(t, alice, primary)
	require.Equal(t, []notify.Kind{notify.KindWalletConnected}, rec.kinds())

	accounts[0] = bob
	require.Equal(t, alice, c.Accounts()[0], "returned slice must not alias connector state")
}

func TestConnectWithoutProvider(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	c := NewConnector(nil, WithNotifier(rec))

	require.NotPanics(t, func() {
		accounts, err := c.Connect(context.Background())
		require.Nil(t, accounts)
		require.ErrorIs(t, err, ErrNoProvider)
	})
	require.False(t, c.Connected())
	require.Equal(t, []notify.Kind{notify.KindWalletConnectFailed}, rec.kinds())
}

func TestConnectUserRejected(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	provider := ProviderFunc(func(context.Context, RequestArguments) (json.RawMessage, error) {
		return nil, NewProviderError(CodeUserRejectedRequest, "User rejected the request.")
	})
	c := NewConnector(provider, WithNotifier(rec))

	_, err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrUserRejected)
	require.Equal(t, xerrors.CodeUserRejected, xerrors.CodeOf(err))
	code, ok := ProviderErrorCode(err)
	require.True(t, ok)
	require.Equal(t, CodeUserRejectedRequest, code)
	require.False(t, c.Connected())
	require.Equal(t, []notify.Kind{notify.KindWalletConnectFailed}, rec.kinds())
}

func TestConnectEmptyAccountsIsRejection(t *testing.T) {
	t.Parallel()

	c := NewConnector(accountsProvider(nil))
	_, err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrUserRejected)
}

func TestConnectFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("transport closed")
	cases := map[string]Provider{
		"provider error": ProviderFunc(func(context.Context, RequestArguments) (json.RawMessage, error) {
			return nil, boom
		}),
		"disconnected": ProviderFunc(func(context.Context, RequestArguments) (json.RawMessage, error) {
			return nil, NewProviderError(CodeDisconnected, "disconnected")
		}),
		"malformed": ProviderFunc(func(context.Context, RequestArguments) (json.RawMessage, error) {
			return json.RawMessage(`{"accounts":1}`), nil
		}),
	}
	for name, provider := range cases {
		provider := provider
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := NewConnector(provider).Connect(context.Background())
			require.ErrorIs(t, err, ErrConnectionFailed)
		})
	}
}

func TestConnectHonoursContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	provider := ProviderFunc(func(ctx context.Context, _ RequestArguments) (json.RawMessage, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return json.Marshal([]common.Address{alice})
		}
	})
	c := NewConnector(provider)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Connect(ctx)
	require.ErrorIs(t, err, ErrConnectionFailed)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnectRequestTimeout(t *testing.T) {
	t.Parallel()

	provider := ProviderFunc(func(ctx context.Context, _ RequestArguments) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := NewConnector(provider, WithRequestTimeout(10*time.Millisecond))

	_, err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectionFailed)
}

func TestConcurrentConnectSharesPrompt(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	provider := ProviderFunc(func(ctx context.Context, _ RequestArguments) (json.RawMessage, error) {
		calls.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return json.Marshal([]common.Address{alice})
	})
	c := NewConnector(provider)

	const callers = 8
	var wg sync.WaitGroup
	results := make([][]common.Address, callers)
	errs := make([]error, callers)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = c.Connect(context.Background())
	}()
	<-started
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Connect(context.Background())
		}(i)
	}
	// Give the followers time to join the in-flight request.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, []common.Address{alice}, results[i])
	}
}

func TestCancelledCallerDoesNotAbortSharedPrompt(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	provider := ProviderFunc(func(ctx context.Context, _ RequestArguments) (json.RawMessage, error) {
		calls.Add(1)
		close(started)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return json.Marshal([]common.Address{alice})
		}
	})
	c := NewConnector(provider)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Connect(ctxA)
		errA <- err
	}()
	<-started

	type result struct {
		accounts []common.Address
		err      error
	}
	resB := make(chan result, 1)
	go func() {
		accounts, err := c.Connect(context.Background())
		resB <- result{accounts, err}
	}()
	// Let caller B join the in-flight request before A gives up.
	time.Sleep(20 * time.Millisecond)

	cancelA()
	err := <-errA
	require.ErrorIs(t, err, ErrConnectionFailed)
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	select {
	case res := <-resB:
		require.NoError(t, res.err)
		require.Equal(t, []common.Address{alice}, res.accounts)
	case <-time.After(2 * time.Second):
		t.Fatal("caller B did not receive the shared result")
	}
	require.Equal(t, int32(1), calls.Load())
	require.True(t, c.Connected())
}

func TestEnsureConnectedAndRefresh(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := NewConnector(accountsProvider(&calls, bob))

	_, err := c.Primary()
	require.ErrorIs(t, err, ErrNotConnected)

	addr, err := c.EnsureConnected(context.Background())
	require.NoError(t, err)
	require.Equal(t, bob, addr)

	addr, err = c.EnsureConnected(context.Background())
	require.NoError(t, err)
	require.Equal(t, bob, addr)
	require.Equal(t, int32(1), calls.Load())

	accounts, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, []common.Address{bob}, accounts)

	c.Disconnect()
	require.False(t, c.Connected())
	require.Empty(t, c.Accounts())
}
