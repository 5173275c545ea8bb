package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGoReturnsValue(t *testing.T) {
	f := Go(context.Background(), func(context.Context) (int, error) { return 42, nil })
	v, err := f.Result()
	require.NoError(t, err)
	require.Equal(t, 42, v)

	select {
	case <-f.Done():
	default:
		t.Fatal("Done should be closed after Result returns")
	}
}

func TestGoPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(context.Background(), func(context.Context) error { return boom }).Await(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestGoRecoversPanic(t *testing.T) {
	v, err := Go(context.Background(), func(context.Context) (string, error) {
		panic("kaboom")
	}).Result()
	require.Error(t, err)
	require.Contains(t, err.Error(), "kaboom")
	require.Empty(t, v)
}

func TestGoSkipsCallWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	_, err := Run(ctx, func(context.Context) error {
		called = true
		return nil
	}).Result()
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestAwaitStopsWaitingOnContext(t *testing.T) {
	release := make(chan struct{})
	f := Go(context.Background(), func(context.Context) (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	v, err := f.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)
}
