package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	xerrors "WalletBridge/internal/errors"

	"github.com/redis/go-redis/v9"
)

type stubPublisher struct {
	channel string
	payload []byte
	err     error
}

func (s *stubPublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	s.channel = channel
	s.payload, _ = message.([]byte)
	return redis.NewIntResult(1, s.err)
}

func TestFanoutDeliversToAllAndJoinsErrors(t *testing.T) {
	t.Parallel()

	var seen []Kind
	ok := NotifierFunc(func(_ context.Context, e Event) error {
		seen = append(seen, e.Kind)
		if e.OccurredAt.IsZero() {
			t.Errorf("expected timestamp to be set")
		}
		return nil
	})
	boom := errors.New("boom")
	failing := NotifierFunc(func(context.Context, Event) error { return boom })

	err := NewFanout(ok, nil, failing, ok).Notify(context.Background(), Event{Kind: KindWalletConnected})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("expected two deliveries, got %d", len(seen))
	}
}

func TestLogNotifierWritesLevelAndAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	n := NewLogNotifier(logger)

	err := n.Notify(context.Background(), Event{
		Kind:     KindWalletConnectFailed,
		Message:  "wallet connection failed",
		Severity: xerrors.SeverityWarning,
		Code:     xerrors.CodeConnectionFailed,
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"code":"CONNECTION_FAILED"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}

func TestRedisNotifierPublishesJSON(t *testing.T) {
	t.Parallel()

	pub := &stubPublisher{}
	n := NewRedisNotifierWithClient(pub, "")
	err := n.Notify(context.Background(), Event{Kind: KindTxSubmitted, TxHash: "0x01"})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if pub.channel != "walletbridge:events" {
		t.Fatalf("unexpected channel %s", pub.channel)
	}
	var decoded Event
	if err := json.Unmarshal(pub.payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Kind != KindTxSubmitted || decoded.TxHash != "0x01" {
		t.Fatalf("unexpected payload %+v", decoded)
	}

	pub.err = errors.New("down")
	if err := n.Notify(context.Background(), Event{Kind: KindTxFailed}); err == nil {
		t.Fatalf("expected publish error")
	}
}
