package explorer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingClient(t *testing.T, calls *atomic.Int32) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Pending in queue"}`))
	}))
	t.Cleanup(srv.Close)
	return NewClientWithHTTP(srv.URL, "KEY", srv.Client())
}

func TestWaitVerifiedBoundedOnlyByContext(t *testing.T) {
	require.Zero(t, pollMaxElapsed)
	var calls atomic.Int32
	c := pendingClient(t, &calls)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := c.WaitVerified(ctx, "g1", 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, errStillPending)
	assert.Greater(t, calls.Load(), int32(5))
}

func TestWaitVerifiedElapsedCap(t *testing.T) {
	old := pollMaxElapsed
	pollMaxElapsed = 30 * time.Millisecond
	t.Cleanup(func() { pollMaxElapsed = old })

	var calls atomic.Int32
	c := pendingClient(t, &calls)

	// 上限先于 ctx 到达时返回最后一次的 pending
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	_, err := c.WaitVerified(ctx, "g1", 10*time.Millisecond)
	assert.ErrorIs(t, err, errStillPending)
	assert.NoError(t, ctx.Err())
	assert.Less(t, time.Since(start), time.Second)
}
