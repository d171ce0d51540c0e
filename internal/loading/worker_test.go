package loading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRunsTask(t *testing.T) {
	w := NewWorker()
	defer w.Close()

	op, err := w.Submit(context.Background(), "answer", func(ctx context.Context) (any, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Len(t, op.ID, 8)
	assert.Same(t, op, w.Current())

	v, err := op.Wait()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.False(t, op.Cancelled())
}

func TestWorkerRejectsSecondOperation(t *testing.T) {
	w := NewWorker()
	defer w.Close()

	release := make(chan struct{})
	first, err := w.Submit(context.Background(), "slow", func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	_, err = w.Submit(context.Background(), "other", func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	<-first.Done()

	second, err := w.Submit(context.Background(), "other", func(ctx context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	v, err := second.Wait()
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestWorkerCancel(t *testing.T) {
	w := NewWorker()
	defer w.Close()

	started := make(chan struct{})
	op, err := w.Submit(context.Background(), "build", func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	<-started
	op.Cancel()

	_, err = op.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, op.Cancelled())
}

func TestWorkerCancelledTaskIgnoresLateValue(t *testing.T) {
	w := NewWorker()
	defer w.Close()

	op, err := w.Submit(context.Background(), "stubborn", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return "late", nil
	})
	require.NoError(t, err)
	op.Cancel()

	_, err = op.Wait()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWorkerRecoversPanic(t *testing.T) {
	w := NewWorker()
	defer w.Close()

	op, err := w.Submit(context.Background(), "broken", func(ctx context.Context) (any, error) {
		panic("corrupt segment")
	})
	require.NoError(t, err)

	_, err = op.Wait()
	var p *PanicError
	require.True(t, errors.As(err, &p))
	assert.Equal(t, "corrupt segment", p.Value)

	detail := Detail(err)
	assert.Contains(t, detail, "corrupt segment")
	assert.Contains(t, detail, "goroutine")

	next, err := w.Submit(context.Background(), "after", func(ctx context.Context) (any, error) { return 1, nil })
	require.NoError(t, err)
	_, err = next.Wait()
	assert.NoError(t, err, "worker survives a panicking task")
}

func TestWorkerClose(t *testing.T) {
	w := NewWorker()

	op, err := w.Submit(context.Background(), "long", func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)

	w.Close()
	select {
	case <-op.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("operation not finished after Close")
	}

	_, err = w.Submit(context.Background(), "late", func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrClosed)
	w.Close()
}

func TestDetailPlainError(t *testing.T) {
	assert.Equal(t, "boom", Detail(errors.New("boom")))
}
