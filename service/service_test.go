package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/go-abci/abci"
)

func TestFunc(t *testing.T) {
	var svc InfoService = Func[abci.InfoRequest, abci.InfoResponse](
		func(ctx context.Context, req abci.InfoRequest) (abci.InfoResponse, error) {
			echo := req.(*abci.RequestEcho)
			return &abci.ResponseEcho{Message: echo.Message}, nil
		},
	)

	require.NoError(t, svc.Ready(context.Background()))
	resp, err := svc.Call(context.Background(), &abci.RequestEcho{Message: "ping"})
	require.NoError(t, err)
	assert.Equal(t, &abci.ResponseEcho{Message: "ping"}, resp)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, svc.Ready(ctx), context.Canceled)
}

// blockingService blocks every call until release is closed.
type blockingService struct {
	release  chan struct{}
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	readyErr error
}

func (b *blockingService) Ready(ctx context.Context) error {
	return b.readyErr
}

func (b *blockingService) Call(ctx context.Context, req int) (int, error) {
	n := b.inFlight.Add(1)
	for {
		seen := b.maxSeen.Load()
		if n <= seen || b.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	defer b.inFlight.Add(-1)

	<-b.release
	return req * 2, nil
}

func TestConcurrencyLimit(t *testing.T) {
	t.Run("admits overlapping calls up to the limit", func(t *testing.T) {
		inner := &blockingService{release: make(chan struct{})}
		svc := ConcurrencyLimit[int, int](inner, 2)
		ctx := context.Background()

		results := make(chan int, 2)
		for i := 1; i <= 2; i++ {
			require.NoError(t, svc.Ready(ctx))
			go func(v int) {
				resp, _ := svc.Call(ctx, v)
				results <- resp
			}(i)
		}

		require.Eventually(t, func() bool { return inner.inFlight.Load() == 2 }, time.Second, time.Millisecond)

		readyCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, svc.Ready(readyCtx), context.DeadlineExceeded)

		close(inner.release)
		assert.ElementsMatch(t, []int{2, 4}, []int{<-results, <-results})
		assert.Equal(t, int32(2), inner.maxSeen.Load())

		require.NoError(t, svc.Ready(ctx))
		resp, err := svc.Call(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, 10, resp)
	})

	t.Run("releases the permit when inner readiness fails", func(t *testing.T) {
		inner := &blockingService{release: make(chan struct{}), readyErr: assert.AnError}
		svc := ConcurrencyLimit[int, int](inner, 1)

		assert.ErrorIs(t, svc.Ready(context.Background()), assert.AnError)
		assert.ErrorIs(t, svc.Ready(context.Background()), assert.AnError)
	})

	t.Run("call without ready acquires its own permit", func(t *testing.T) {
		inner := &blockingService{release: make(chan struct{})}
		close(inner.release)
		svc := ConcurrencyLimit[int, int](inner, 0)

		resp, err := svc.Call(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, 6, resp)
	})
}
