package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGo_Success(t *testing.T) {
	c := Go(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})

	v, err := c.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.False(t, c.Canceled())
}

func TestGo_Failure(t *testing.T) {
	boom := errors.New("boom")
	c := Go(context.Background(), func(ctx context.Context) (int, error) {
		return 0, boom
	})

	_, err := c.Await(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestCall_ThenOnErrorFinally(t *testing.T) {
	var got int
	var finallyCalls, errorCalls int

	Resolved(7).
		Then(func(v int) { got = v }).
		OnError(func(error) { errorCalls++ }).
		Finally(func() { finallyCalls++ })

	assert.Equal(t, 7, got)
	assert.Equal(t, 0, errorCalls)
	assert.Equal(t, 1, finallyCalls)

	var gotErr error
	Failed[int](errors.New("nope")).
		Then(func(int) { t.Fatal("then must not run on failure") }).
		OnError(func(err error) { gotErr = err })
	assert.EqualError(t, gotErr, "nope")
}

func TestCall_CallbacksFireExactlyOnce(t *testing.T) {
	release := make(chan struct{})
	c := Go(context.Background(), func(ctx context.Context) (string, error) {
		<-release
		return "ok", nil
	})

	var calls atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	c.Then(func(string) {
		calls.Add(1)
		wg.Done()
	})

	close(release)
	wg.Wait()
	c.resolve("again", nil)

	v, err := c.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCall_CancelBeforeCompletion(t *testing.T) {
	started := make(chan struct{})
	aborted := make(chan struct{})
	c := Go(context.Background(), func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		close(aborted)
		return 1, nil
	})

	var fired atomic.Bool
	c.Finally(func() { fired.Store(true) })

	<-started
	c.Cancel()

	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("work was not aborted")
	}

	_, err := c.Await(context.Background())
	assert.ErrorIs(t, err, ErrCanceled)
	assert.True(t, c.Canceled())

	// the work returned after cancellation; its result must be dropped
	time.Sleep(20 * time.Millisecond)
	assert.False(t, fired.Load())

	c.Then(func(int) { fired.Store(true) })
	assert.False(t, fired.Load())
}

func TestCall_CancelAfterCompletionIsNoop(t *testing.T) {
	c := Resolved("done")
	c.Cancel()

	v, err := c.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.False(t, c.Canceled())
}

func TestCall_AwaitHonorsContext(t *testing.T) {
	c := Go(context.Background(), func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	defer c.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMap(t *testing.T) {
	c := Map(Resolved(2), func(v int) string {
		return string(rune('a' + v))
	})

	v, err := c.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "c", v)
}

func TestTryMap_PropagatesErrors(t *testing.T) {
	mapErr := errors.New("bad value")
	c := TryMap(Resolved(2), func(int) (string, error) {
		return "", mapErr
	})
	_, err := c.Await(context.Background())
	assert.ErrorIs(t, err, mapErr)

	srcErr := errors.New("source failed")
	c = TryMap(Failed[int](srcErr), func(int) (string, error) {
		t.Fatal("must not be called")
		return "", nil
	})
	_, err = c.Await(context.Background())
	assert.ErrorIs(t, err, srcErr)
}

func TestToVoid(t *testing.T) {
	v, err := ToVoid(Resolved(map[string]int{"a": 1})).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Void{}, v)

	_, err = ToVoid(Failed[int](errors.New("x"))).Await(context.Background())
	assert.Error(t, err)
}

func TestDerivedCancelPropagatesToSource(t *testing.T) {
	aborted := make(chan struct{})
	src := Go(context.Background(), func(ctx context.Context) (int, error) {
		<-ctx.Done()
		close(aborted)
		return 0, ctx.Err()
	})

	derived := ToVoid(src)
	derived.Cancel()

	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("source was not aborted")
	}
	assert.True(t, src.Canceled())
}

func TestSourceCancelPropagatesToDerived(t *testing.T) {
	src := Go(context.Background(), func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	derived := Map(src, func(v int) int { return v + 1 })

	src.Cancel()

	_, err := derived.Await(context.Background())
	assert.ErrorIs(t, err, ErrCanceled)
	assert.True(t, derived.Canceled())
}

func TestReceiveOn_DeliversOnExecutor(t *testing.T) {
	var executed atomic.Int32
	exec := ExecutorFunc(func(fn func()) {
		executed.Add(1)
		fn()
	})

	v, err := Resolved(5).ReceiveOn(exec).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, v)
	assert.Equal(t, int32(1), executed.Load())
}

func TestReceiveOn_CancelBeforeDeliveryDropsResult(t *testing.T) {
	var queued []func()
	exec := ExecutorFunc(func(fn func()) {
		queued = append(queued, fn)
	})

	c := Resolved(1).ReceiveOn(exec)
	var fired bool
	c.Then(func(int) { fired = true })

	c.Cancel()
	require.Len(t, queued, 1)
	queued[0]()

	assert.False(t, fired)
	_, err := c.Await(context.Background())
	assert.ErrorIs(t, err, ErrCanceled)
}

func TestReceiveOn_LateCallbacksRunOnExecutor(t *testing.T) {
	var depth atomic.Int32
	exec := ExecutorFunc(func(fn func()) {
		depth.Add(1)
		defer depth.Add(-1)
		fn()
	})

	c := Resolved("v").ReceiveOn(exec)
	_, err := c.Await(context.Background())
	require.NoError(t, err)

	var thenOnExec, finallyOnExec bool
	c.Then(func(string) {
		thenOnExec = depth.Load() > 0
	}).Finally(func() {
		finallyOnExec = depth.Load() > 0
	})

	assert.True(t, thenOnExec)
	assert.True(t, finallyOnExec)
}

func TestReceiveOn_LateCallbacksKeepQueueOrder(t *testing.T) {
	queue := NewSerialQueue()
	defer queue.Close()

	c := Resolved(1).ReceiveOn(queue)
	_, err := c.Await(context.Background())
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	record := func(s string) {
		mu.Lock()
		order = append(order, s)
		mu.Unlock()
	}
	done := make(chan struct{})
	c.Then(func(int) { record("then") }).
		OnError(func(error) { record("error") }).
		Finally(func() {
			record("finally")
			close(done)
		})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callbacks did not run")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"then", "finally"}, order)
}

func TestCall_CallbacksDoNotOverlap(t *testing.T) {
	gate := make(chan struct{})
	c := Go(context.Background(), func(ctx context.Context) (int, error) {
		<-gate
		return 1, nil
	})

	started := make(chan struct{})
	release := make(chan struct{})
	var order []string
	c.Then(func(int) {
		close(started)
		<-release
		order = append(order, "then")
	})
	close(gate)
	<-started

	finished := make(chan struct{})
	c.Finally(func() {
		order = append(order, "finally")
		close(finished)
	})

	select {
	case <-finished:
		t.Fatal("Finally ran while Then was still running")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Finally never ran")
	}
	assert.Equal(t, []string{"then", "finally"}, order)
}
