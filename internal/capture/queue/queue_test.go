package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/capture/queue"
	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/resilience"
)

// scriptedSender fails the first failures[url] calls for a URL, then succeeds.
type scriptedSender struct {
	mu       sync.Mutex
	failures map[string]int
	errFor   map[string]error
	calls    []string
}

func newSender() *scriptedSender {
	return &scriptedSender{failures: map[string]int{}, errFor: map[string]error{}}
}

func (s *scriptedSender) Send(_ context.Context, req *domain.IntakeRequest) (*domain.IntakeResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	url := req.PageData.URL
	s.calls = append(s.calls, url)
	if err, ok := s.errFor[url]; ok {
		return nil, err
	}
	if s.failures[url] > 0 {
		s.failures[url]--
		return nil, errors.New("dial tcp: connection refused")
	}
	return &domain.IntakeResponse{Success: true, LeadID: "lead-" + url}, nil
}

func (s *scriptedSender) callsFor(url string) int {
	n := 0
	for _, c := range s.calls {
		if c == url {
			n++
		}
	}
	return n
}

var fastRetry = resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond}

func newQueue(t *testing.T, sender queue.Sender, opts queue.Options) (*queue.Queue, queue.Store) {
	t.Helper()
	store := newSQLiteStore(t)
	if opts.Retry.InitialBackoff == 0 {
		opts.Retry = fastRetry
	}
	return queue.New(store, sender, opts, zap.NewNop()), store
}

func page(url string) domain.PageData {
	return domain.PageData{URL: url, Title: url}
}

func TestEnqueue_AppendsWithTimestamp(t *testing.T) {
	fixed := time.Date(2025, 10, 8, 9, 0, 0, 0, time.UTC)
	q, _ := newQueue(t, newSender(), queue.Options{Now: func() time.Time { return fixed }})
	ctx := context.Background()

	it, err := q.Enqueue(ctx, page("p1"), "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, it.ID)
	assert.Equal(t, "user-1", it.UserID)
	assert.True(t, it.Timestamp.Equal(fixed))

	items, err := q.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, it.ID, items[0].ID)
}

func TestEnqueue_RespectsMaxItems(t *testing.T) {
	q, _ := newQueue(t, newSender(), queue.Options{MaxItems: 2})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, page("p1"), "u")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, page("p2"), "u")
	require.NoError(t, err)

	_, err = q.Enqueue(ctx, page("p3"), "u")
	var full *domain.ErrQueueFull
	require.ErrorAs(t, err, &full)
	assert.Equal(t, 2, full.Max)

	items, _ := q.List(ctx)
	assert.Len(t, items, 2, "existing items must be kept")
}

func TestDequeue_ByIndex(t *testing.T) {
	q, _ := newQueue(t, newSender(), queue.Options{})
	ctx := context.Background()
	for _, u := range []string{"p1", "p2", "p3"} {
		_, err := q.Enqueue(ctx, page(u), "u")
		require.NoError(t, err)
	}

	removed, err := q.Dequeue(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "p2", removed.PageData.URL)

	items, _ := q.List(ctx)
	require.Len(t, items, 2)
	assert.Equal(t, "p1", items[0].PageData.URL)
	assert.Equal(t, "p3", items[1].PageData.URL)

	_, err = q.Dequeue(ctx, 5)
	var nf *domain.ErrNotFound
	assert.ErrorAs(t, err, &nf)
	_, err = q.Dequeue(ctx, -1)
	assert.ErrorAs(t, err, &nf)
}

func TestReplay_OldestFirstRemovesDeliveredKeepsFailed(t *testing.T) {
	sender := newSender()
	sender.failures["p2"] = 100 // always fails
	q, _ := newQueue(t, sender, queue.Options{})
	ctx := context.Background()

	for _, u := range []string{"p1", "p2", "p3"} {
		_, err := q.Enqueue(ctx, page(u), "u")
		require.NoError(t, err)
	}

	res, err := q.Replay(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Remaining)
	assert.False(t, res.Aborted)
	assert.Equal(t, []string{"lead-p1", "lead-p3"}, res.LeadIDs)

	// p1 attempted before p2 before p3.
	assert.Equal(t, "p1", sender.calls[0])
	assert.Equal(t, "p3", sender.calls[len(sender.calls)-1])
	assert.Equal(t, 3, sender.callsFor("p2"), "default policy makes three attempts")

	items, _ := q.List(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "p2", items[0].PageData.URL)
	assert.Equal(t, 3, items[0].Attempts)
	assert.Contains(t, items[0].LastError, "connection refused")
}

func TestReplay_TransientFailureRecoversWithinRetries(t *testing.T) {
	sender := newSender()
	sender.failures["p1"] = 2
	q, _ := newQueue(t, sender, queue.Options{})
	ctx := context.Background()

	_, err := q.Enqueue(ctx, page("p1"), "u")
	require.NoError(t, err)

	res, err := q.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
	assert.Zero(t, res.Remaining)
	assert.Equal(t, 3, sender.callsFor("p1"))
}

func TestReplay_AuthFailureShortCircuits(t *testing.T) {
	sender := newSender()
	sender.errFor["p1"] = fmt.Errorf("intake returned 401: %w", &domain.ErrUnauthorized{Message: "invalid token"})
	q, _ := newQueue(t, sender, queue.Options{Retry: resilience.Config{MaxRetries: 2, InitialBackoff: time.Hour}})
	ctx := context.Background()

	for _, u := range []string{"p1", "p2"} {
		_, err := q.Enqueue(ctx, page(u), "u")
		require.NoError(t, err)
	}

	start := time.Now()
	res, err := q.Replay(ctx)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second, "auth failure must not wait for backoff")
	assert.True(t, res.Aborted)
	assert.Equal(t, 1, sender.callsFor("p1"))
	assert.Zero(t, sender.callsFor("p2"), "replay stops after an auth failure")
	assert.Equal(t, 2, res.Remaining)
}

// cancelAfterFirst cancels the replay context once the first item went out.
type cancelAfterFirst struct {
	cancel context.CancelFunc
	sent   int
}

func (s *cancelAfterFirst) Send(_ context.Context, req *domain.IntakeRequest) (*domain.IntakeResponse, error) {
	s.sent++
	s.cancel()
	return &domain.IntakeResponse{Success: true, LeadID: "lead-" + req.PageData.URL}, nil
}

func TestReplay_CancelledMidRunKeepsCounts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sender := &cancelAfterFirst{cancel: cancel}
	q, store := newQueue(t, sender, queue.Options{})

	_, err := q.Enqueue(context.Background(), page("p1"), "user-1")
	require.NoError(t, err)
	_, err = q.Enqueue(context.Background(), page("p2"), "user-1")
	require.NoError(t, err)

	res, err := q.Replay(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, []string{"lead-p1"}, res.LeadIDs)
	assert.Equal(t, 1, res.Remaining)
	assert.True(t, res.Aborted)
	assert.Equal(t, 1, sender.sent)

	left, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "p2", left[0].PageData.URL)
}

func TestReplay_EmptyQueue(t *testing.T) {
	q, _ := newQueue(t, newSender(), queue.Options{})

	res, err := q.Replay(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Delivered)
	assert.Zero(t, res.Remaining)
}

func TestSubmit_DeliversImmediately(t *testing.T) {
	q, _ := newQueue(t, newSender(), queue.Options{})

	res, err := q.Submit(context.Background(), page("p1"), "u")
	require.NoError(t, err)
	assert.True(t, res.Delivered)
	assert.Equal(t, "lead-p1", res.LeadID)

	items, _ := q.List(context.Background())
	assert.Empty(t, items)
}

func TestSubmit_QueuesOnFailure(t *testing.T) {
	sender := newSender()
	sender.failures["p1"] = 10
	q, _ := newQueue(t, sender, queue.Options{})

	res, err := q.Submit(context.Background(), page("p1"), "u")
	require.NoError(t, err)
	assert.False(t, res.Delivered)
	require.NotNil(t, res.Queued)
	assert.Error(t, res.Err)

	items, _ := q.List(context.Background())
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].PageData.URL)
}

func TestIsAuthError(t *testing.T) {
	cases := map[string]bool{
		"HTTP 401":                        true,
		"Unauthorized":                    true,
		"authentication required":         true,
		"Authentication failed":           true,
		"dial tcp: connection refused":    false,
		"intake returned 500: db is down": false,
	}
	for msg, want := range cases {
		assert.Equal(t, want, queue.IsAuthError(errors.New(msg)), msg)
	}
	assert.True(t, queue.IsAuthError(&domain.ErrUnauthorized{Message: "bad token"}))
	assert.False(t, queue.IsAuthError(nil))
}
