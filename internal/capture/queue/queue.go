// Package queue is the capture agent's offline queue. Captured pages that
// cannot be delivered to the intake endpoint are persisted and replayed
// later, oldest first. Nothing is dropped: an item leaves the queue only
// when it was delivered or explicitly dequeued.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/resilience"
)

var tracer = otel.Tracer("capture/queue")

// Item is one queued capture.
type Item struct {
	ID         string          `json:"id"`
	PageData   domain.PageData `json:"pageData"`
	UserID     string          `json:"userId"`
	Timestamp  time.Time       `json:"timestamp"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"lastError,omitempty"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// Request builds the intake payload for the item.
func (it *Item) Request() *domain.IntakeRequest {
	return &domain.IntakeRequest{
		PageData:  it.PageData,
		UserID:    it.UserID,
		Timestamp: it.Timestamp,
	}
}

// Store persists queue items in insertion order.
type Store interface {
	Append(ctx context.Context, it Item) error
	// List returns items oldest first.
	List(ctx context.Context) ([]Item, error)
	Update(ctx context.Context, it Item) error
	Remove(ctx context.Context, id string) error
	Len(ctx context.Context) (int, error)
}

// Sender delivers a capture to the intake endpoint.
type Sender interface {
	Send(ctx context.Context, req *domain.IntakeRequest) (*domain.IntakeResponse, error)
}

// Options configures a Queue.
type Options struct {
	// MaxItems bounds the queue; 0 means unbounded.
	MaxItems int
	// Retry wraps every delivery. MaxRetries 2 gives three attempts.
	Retry resilience.Config
	// Now overrides the clock.
	Now func() time.Time
}

// DefaultRetry is three attempts starting at one second.
var DefaultRetry = resilience.Config{MaxRetries: 2, InitialBackoff: time.Second}

// Queue coordinates a Store and a Sender.
type Queue struct {
	store  Store
	sender Sender
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex // guards the MaxItems check + append
	replayMu sync.Mutex // one replay at a time
}

// New returns a queue. A zero Options.Retry uses DefaultRetry.
func New(store Store, sender Sender, opts Options, logger *zap.Logger) *Queue {
	if opts.Retry.InitialBackoff == 0 && opts.Retry.MaxRetries == 0 {
		opts.Retry = DefaultRetry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{store: store, sender: sender, opts: opts, logger: logger}
}

// ============================================================
// Auth failures
// ============================================================

var authMarkers = []string{"401", "unauthorized", "authentication"}

// IsAuthError reports whether err is an authentication failure. Such
// errors are never retried.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var unauth *domain.ErrUnauthorized
	if errors.As(err, &unauth) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, m := range authMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// ============================================================
// Operations
// ============================================================

// Enqueue appends a capture. A full queue returns *domain.ErrQueueFull.
func (q *Queue) Enqueue(ctx context.Context, page domain.PageData, userID string) (*Item, error) {
	ctx, span := tracer.Start(ctx, "Queue.Enqueue")
	defer span.End()

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.opts.MaxItems > 0 {
		n, err := q.store.Len(book)
		if err != nil {
			return nil, fmt.Errorf("queue length: %w", err)
		}
		if n >= q.opts.MaxItems {
			return nil, &domain.ErrQueueFull{Max: q.opts.MaxItems}
		}
	}

	now := q.opts.Now()
	ts := page.CapturedAt
	if ts.IsZero() {
		ts = now
	}
	it := Item{
		ID:         uuid.NewString(),
		PageData:   page,
		UserID:     userID,
		Timestamp:  ts,
		EnqueuedAt: now,
	}
	if err := q.store.Append(ctx, it); err != nil {
		return nil, fmt.Errorf("append queue item: %w", err)
	}

	q.logger.Info("capture queued", zap.String("item_id", it.ID), zap.String("url", page.URL))
	return &it, nil
}

// List returns the queued items, oldest first.
func (q *Queue) List(ctx context.Context) ([]Item, error) {
	return q.store.List(ctx)
}

// Dequeue removes the item at position index (0 = oldest).
func (q *Queue) Dequeue(ctx context.Context, index int) (*Item, error) {
	ctx, span := tracer.Start(ctx, "Queue.Dequeue")
	defer span.End()

	items, err := q.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(items) {
		return nil, &domain.ErrNotFound{Resource: "queue item", ID: strconv.Itoa(index)}
	}

	it := items[index]
	if err := q.store.Remove(ctx, it.ID); err != nil {
		return nil, fmt.Errorf("remove queue item: %w", err)
	}
	return &it, nil
}

// Deliver sends one item with the retry policy. Auth failures stop
// immediately.
func (q *Queue) Deliver(ctx context.Context, it *Item) (*domain.IntakeResponse, error) {
	ctx, span := tracer.Start(ctx, "Queue.Deliver")
	defer span.End()
	span.SetAttributes(attribute.String("queue.item_id", it.ID))

	var resp *domain.IntakeResponse
	err := resilience.RetryWithBackoff(ctx, q.opts.Retry, func() error {
		r, err := q.sender.Send(ctx, it.Request())
		if err != nil {
			if IsAuthError(err) {
				return resilience.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

// SubmitResult is the outcome of Submit.
type SubmitResult struct {
	Delivered bool
	LeadID    string
	Queued    *Item
	Err       error // delivery error when the capture was queued
}

// Submit tries to deliver a capture right away and queues it on failure.
// The returned error is non-nil only when queueing itself failed.
func (q *Queue) Submit(ctx context.Context, page domain.PageData, userID string) (*SubmitResult, error) {
	ts := page.CapturedAt
	if ts.IsZero() {
		ts = q.opts.Now()
		page.CapturedAt = ts
	}
	it := &Item{ID: "direct", PageData: page, UserID: userID, Timestamp: ts}

	resp, err := q.Deliver(ctx, it)
	if err == nil {
		return &SubmitResult{Delivered: true, LeadID: resp.LeadID}, nil
	}

	q.logger.Warn("capture delivery failed, queueing", zap.String("url", page.URL), zap.Error(err))
	queued, qErr := q.Enqueue(ctx, page, userID)
	if qErr != nil {
		return nil, errors.Join(err, qErr)
	}
	return &SubmitResult{Queued: queued, Err: err}, nil
}

// ReplayResult summarises a Replay run.
type ReplayResult struct {
	Delivered int      `json:"delivered"`
	Failed    int      `json:"failed"`
	Remaining int      `json:"remaining"`
	Aborted   bool     `json:"aborted"`
	LeadIDs   []string `json:"leadIds,omitempty"`
}

// Replay attempts every queued item, oldest first. Delivered items are
// removed; failed items stay queued with their attempt count bumped. An
// auth failure or a cancelled ctx aborts the run, leaving the rest untouched;
// the counts of what already happened are still returned.
func (q *Queue) Replay(ctx context.Context) (*ReplayResult, error) {
	ctx, span := tracer.Start(ctx, "Queue.Replay")
	defer span.End()

	q.replayMu.Lock()
	defer q.replayMu.Unlock()

	items, err := q.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}

	// Queue bookkeeping must finish even when the run is cancelled, or a
	// delivered item would be sent again.
	book := context.WithoutCancel(ctx)

	res := &ReplayResult{}
	for i := range items {
		it := items[i]
		if ctx.Err() != nil {
			res.Aborted = true
			break
		}

		resp, err := q.Deliver(ctx, &it)
		if err == nil {
			if rmErr := q.store.Remove(book, it.ID); rmErr != nil {
				return nil, fmt.Errorf("remove delivered item %s: %w", it.ID, rmErr)
			}
			res.Delivered++
			if resp != nil && resp.LeadID != "" {
				res.LeadIDs = append(res.LeadIDs, resp.LeadID)
			}
			continue
		}

		res.Failed++
		it.Attempts += q.opts.Retry.Attempts()
		it.LastError = err.Error()
		if upErr := q.store.Update(book, it); upErr != nil {
			q.logger.Error("failed to record queue attempt", zap.String("item_id", it.ID), zap.Error(upErr))
		}

		if IsAuthError(err) {
			q.logger.Warn("replay aborted on auth failure", zap.Error(err))
			res.Aborted = true
			break
		}
		q.logger.Warn("queued capture still failing",
			zap.String("item_id", it.ID),
			zap.Int("attempts", it.Attempts),
			zap.Error(err),
		)
	}

	n, err := q.store.Len(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue length: %w", err)
	}
	res.Remaining = n

	span.SetAttributes(
		attribute.Int("queue.delivered", res.Delivered),
		attribute.Int("queue.remaining", res.Remaining),
	)
	q.logger.Info("queue replay finished",
		zap.Int("delivered", res.Delivered),
		zap.Int("failed", res.Failed),
		zap.Int("remaining", res.Remaining),
	)
	return res, nil
}
