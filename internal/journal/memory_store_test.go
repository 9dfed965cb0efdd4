package journal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"WalletBridge/internal/config"
	xerrors "WalletBridge/internal/errors"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	inv := &Invocation{
		Contract: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		Method:   "transfer",
		Args:     json.RawMessage(`["0x01", "10"]`),
		Kind:     KindTransaction,
	}
	require.NoError(t, store.Create(ctx, inv))
	require.NotEmpty(t, inv.ID)
	require.Equal(t, StatusPending, inv.Status)
	require.NotZero(t, inv.CreatedAt)

	// mutating the caller's copy must not leak into the store
	inv.Args[1] = '!'
	stored, err := store.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.JSONEq(t, `["0x01", "10"]`, string(stored.Args))

	stored.Status = StatusSucceeded
	stored.TxHash = "0xabc"
	stored.BlockNumber = 12
	require.NoError(t, store.Update(ctx, stored))

	reloaded, err := store.Get(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, reloaded.Status)
	require.Equal(t, uint64(12), reloaded.BlockNumber)
	require.True(t, reloaded.Status.Terminal())

	require.ErrorIs(t, store.Create(ctx, reloaded), ErrInvocationConflict)
}

func TestMemoryStoreNotFound(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	_, err := store.Get(context.Background(), NewID())
	require.ErrorIs(t, err, ErrInvocationNotFound)
	require.Equal(t, xerrors.CodeNotFound, xerrors.CodeOf(err))

	err = store.Update(context.Background(), &Invocation{ID: NewID()})
	require.ErrorIs(t, err, ErrInvocationNotFound)
}

func TestMemoryStoreValidation(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(store.Create(context.Background(), nil)))
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(store.Create(context.Background(), &Invocation{ID: "task-1", Method: "get"})))
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(store.Create(context.Background(), &Invocation{})))
}

func TestMemoryStoreListLatest(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	base := time.Unix(1_700_000_000, 0)
	clock := base
	store.now = func() time.Time { return clock }
	ctx := context.Background()

	first := &Invocation{Method: "get", Chain: "local"}
	second := &Invocation{Method: "set", Chain: "local", Kind: KindTransaction}
	third := &Invocation{Method: "get", Chain: "sepolia"}
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))
	clock = base.Add(time.Second)
	require.NoError(t, store.Create(ctx, third))

	list, err := store.ListLatest(ctx, ListOptions{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, []string{third.ID, second.ID, first.ID}, []string{list[0].ID, list[1].ID, list[2].ID})

	clock = base.Add(2 * time.Second)
	first.Status = StatusFailed
	require.NoError(t, store.Update(ctx, first))

	list, err = store.ListLatest(ctx, ListOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, first.ID, list[0].ID)

	list, err = store.ListLatest(ctx, ListOptions{Chain: "local", Status: StatusPending})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, second.ID, list[0].ID)

	stats, err := store.Stats(ctx, ListOptions{})
	require.NoError(t, err)
	require.Equal(t, Stats{
		Total:           3,
		Pending:         2,
		Failed:          1,
		OldestUpdatedAt: base.Unix(),
		NewestUpdatedAt: base.Add(2 * time.Second).Unix(),
	}, stats)

	stats, err = store.Stats(ctx, ListOptions{Chain: "sepolia"})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Total)
	require.Equal(t, 1, stats.Pending)
}

func TestOpenDrivers(t *testing.T) {
	t.Parallel()

	store, err := Open(context.Background(), config.JournalConfig{Driver: "memory"})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, store)

	_, err = Open(context.Background(), config.JournalConfig{Driver: "mysql"})
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	_, err = Open(context.Background(), config.JournalConfig{Driver: "sqlite"})
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}
