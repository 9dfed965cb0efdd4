package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	xerrors "WalletBridge/internal/errors"
	"WalletBridge/internal/journal"
	"WalletBridge/internal/notify"
	"WalletBridge/internal/tracker"
	"WalletBridge/internal/wallet/keyed"
	"WalletBridge/internal/web3/simchain"

	"github.com/stretchr/testify/require"
)

type recordingProducer struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingProducer) Publish(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return nil
}

func (r *recordingProducer) Close() error { return nil }

type eventLog struct {
	mu    sync.Mutex
	kinds []notify.Kind
}

func (e *eventLog) Notify(_ context.Context, event notify.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kinds = append(e.kinds, event.Kind)
	return nil
}

type fixture struct {
	chain    *simchain.Chain
	svc      *Service
	store    *journal.MemoryStore
	producer *recordingProducer
	events   *eventLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	chain := simchain.New(t)
	provider, err := keyed.New(chain.Key, chain.Client(), nil)
	require.NoError(t, err)

	events := &eventLog{}
	store := journal.NewMemoryStore()
	producer := &recordingProducer{}
	sess := NewSession("local", provider, SessionConfig{PollInterval: 10 * time.Millisecond, Notifier: events})
	svc, err := New("", []*Session{sess}, store, producer, WithNotifier(events))
	require.NoError(t, err)
	return &fixture{chain: chain, svc: svc, store: store, producer: producer, events: events}
}

func storageRequest(method string, args ...string) ExecuteRequest {
	raw := make([]json.RawMessage, len(args))
	for i, a := range args {
		raw[i] = json.RawMessage(a)
	}
	return ExecuteRequest{
		Contract: simchain.StorageAddress.Hex(),
		Name:     "storage",
		ABI:      json.RawMessage(simchain.StorageABI),
		Method:   method,
		Args:     raw,
	}
}

func TestConnectAndAccounts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.Equal(t, "local", f.svc.DefaultChain())

	before, err := f.svc.Accounts("")
	require.NoError(t, err)
	require.False(t, before.Connected)
	require.Empty(t, before.Accounts)

	res, err := f.svc.Connect(context.Background(), "local")
	require.NoError(t, err)
	require.True(t, res.Connected)
	require.Equal(t, []string{f.chain.Account.Hex()}, res.Accounts)

	after, err := f.svc.Accounts("local")
	require.NoError(t, err)
	require.Equal(t, res.Accounts, after.Accounts)
	require.Contains(t, f.events.kinds, notify.KindWalletConnected)

	_, err = f.svc.Connect(context.Background(), "mainnet")
	require.Equal(t, xerrors.CodeNotFound, xerrors.CodeOf(err))
}

func TestExecuteReadIsJournaled(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	inv, err := f.svc.Execute(context.Background(), storageRequest("get"))
	require.NoError(t, err)
	require.Equal(t, journal.KindCall, inv.Kind)
	require.Equal(t, journal.StatusSucceeded, inv.Status)
	require.JSONEq(t, `["0"]`, string(inv.Output))

	stored, err := f.svc.Invocation(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, inv.Output, stored.Output)
	require.Empty(t, f.producer.ids)
}

func TestExecuteTransactionTrackedUntilConfirmed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	inv, err := f.svc.Execute(ctx, storageRequest("set", `"0x2a"`))
	require.NoError(t, err)
	require.Equal(t, journal.KindTransaction, inv.Kind)
	require.Equal(t, journal.StatusPending, inv.Status)
	require.Equal(t, f.chain.Account.Hex(), inv.From)
	require.NotEmpty(t, inv.TxHash)
	require.Equal(t, []string{inv.ID}, f.producer.ids)
	require.Contains(t, f.events.kinds, notify.KindTxSubmitted)

	processor := tracker.NewProcessor(f.store, nil, nil, f.svc.WaiterResolver(), tracker.WithNotifier(f.events))
	require.NoError(t, processor.Handle(ctx, inv.ID))

	settled, err := f.svc.WaitUntilSettled(ctx, inv.ID, 10*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, journal.StatusSucceeded, settled.Status)
	require.NotZero(t, settled.BlockNumber)

	read, err := f.svc.Execute(ctx, storageRequest("get"))
	require.NoError(t, err)
	require.JSONEq(t, `["42"]`, string(read.Output))
}

func TestExecuteWaitReverted(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	req := storageRequest("reset")
	req.Wait = true
	req.GasLimit = 100_000

	inv, err := f.svc.Execute(context.Background(), req)
	require.Equal(t, xerrors.CodeExecutionReverted, xerrors.CodeOf(err))
	require.NotNil(t, inv)
	require.Equal(t, journal.StatusReverted, inv.Status)
	require.Equal(t, string(xerrors.CodeExecutionReverted), inv.ErrorCode)
	require.Empty(t, f.producer.ids, "settled transactions are not queued")

	list, err := f.svc.Invocations(context.Background(), journal.ListOptions{Status: journal.StatusReverted})
	require.NoError(t, err)
	require.Len(t, list, 1)

	stats, err := f.svc.Stats(context.Background(), journal.ListOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Reverted)
}

func TestExecuteValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]ExecuteRequest{
		"unknown method": storageRequest("withdraw"),
		"bad argument":   storageRequest("set", `"ten"`),
		"arity":          storageRequest("set"),
		"negative value": func() ExecuteRequest { r := storageRequest("set", `1`); r.Value = "-1"; return r }(),
		"both abi kinds": func() ExecuteRequest { r := storageRequest("get"); r.Builtin = "erc20"; return r }(),
		"no abi":         {Contract: simchain.StorageAddress.Hex(), Method: "get"},
	}
	for name, req := range cases {
		inv, err := f.svc.Execute(ctx, req)
		require.Nil(t, inv, name)
		require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err), name)
	}

	list, err := f.svc.Invocations(ctx, journal.ListOptions{})
	require.NoError(t, err)
	require.Empty(t, list, "rejected requests are not journaled")
}

func TestExecuteABIAsString(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	encoded, err := json.Marshal(simchain.StorageABI)
	require.NoError(t, err)
	req := storageRequest("get")
	req.ABI = encoded

	inv, err := f.svc.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, journal.StatusSucceeded, inv.Status)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New("", nil, nil, nil)
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	a := NewSession("a", nil, SessionConfig{})
	b := NewSession("b", nil, SessionConfig{})
	_, err = New("", []*Session{a, b}, nil, nil)
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	svc, err := New("b", []*Session{a, b}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, svc.Chains())

	inv, err := svc.Execute(context.Background(), ExecuteRequest{
		Chain:    "a",
		Contract: simchain.StorageAddress.Hex(),
		ABI:      json.RawMessage(simchain.StorageABI),
		Method:   "get",
	})
	require.Equal(t, xerrors.CodeNoProvider, xerrors.CodeOf(err))
	require.Equal(t, journal.StatusFailed, inv.Status)
	require.Equal(t, string(xerrors.CodeNoProvider), inv.ErrorCode)
}
