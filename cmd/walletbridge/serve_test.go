package main

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type slowStarter struct {
	finished atomic.Bool
	err      error
}

func (s *slowStarter) Start(ctx context.Context) error {
	<-ctx.Done()
	time.Sleep(30 * time.Millisecond)
	s.finished.Store(true)
	if s.err != nil {
		return s.err
	}
	return ctx.Err()
}

func TestStartBackgroundWaitsForExit(t *testing.T) {
	t.Parallel()

	for _, startErr := range []error{nil, errors.New("queue closed")} {
		s := &slowStarter{err: startErr}
		stop := startBackground(context.Background(), s, slog.Default())
		require.False(t, s.finished.Load())
		stop()
		require.True(t, s.finished.Load(), "stop must return only after Start exits")
	}
}
