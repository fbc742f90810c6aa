// Package inline is an in-process verification queue for single-binary
// deployments without NATS.
package inline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
	"github.com/kirillkom/credential-verifier/internal/core/ports"
)

var errQueueFull = errors.New("inline queue is full")

type Options struct {
	Capacity       int
	Workers        int
	HandlerTimeout time.Duration
	Logger         *slog.Logger
}

type Queue struct {
	ch      chan string
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

var _ ports.MessageQueue = (*Queue)(nil)

func New(opts Options) *Queue {
	if opts.Capacity <= 0 {
		opts.Capacity = 64
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Queue{
		ch:      make(chan string, opts.Capacity),
		workers: opts.Workers,
		timeout: opts.HandlerTimeout,
		logger:  opts.Logger,
	}
}

// PublishVerificationRequested never blocks; a full buffer is a temporary
// failure the caller can surface as 503.
func (q *Queue) PublishVerificationRequested(ctx context.Context, submissionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- submissionID:
		return nil
	default:
		return domain.WrapError(domain.ErrTemporary, "inline publish", errQueueFull)
	}
}

// SubscribeVerificationRequested runs handler on up to Workers messages at a
// time until ctx is cancelled, then waits for in-flight handlers.
func (q *Queue) SubscribeVerificationRequested(ctx context.Context, handler func(context.Context, string) error) error {
	var g errgroup.Group
	g.SetLimit(q.workers)

	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case id := <-q.ch:
			g.Go(func() error {
				handlerCtx, cancel := q.handlerContext(ctx)
				defer cancel()
				if err := handler(handlerCtx, id); err != nil {
					q.logger.Error("verification_handler_failed", "submission_id", id, "error", err)
				}
				return nil
			})
		}
	}
}

func (q *Queue) handlerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	// Detached so shutdown lets the current document finish.
	base := context.WithoutCancel(ctx)
	if q.timeout > 0 {
		return context.WithTimeout(base, q.timeout)
	}
	return context.WithCancel(base)
}
