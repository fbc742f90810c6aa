package inline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
)

func TestPublishAndSubscribe(t *testing.T) {
	q := New(Options{Capacity: 4, Workers: 2})
	for _, id := range []string{"a", "b", "c"} {
		if err := q.PublishVerificationRequested(context.Background(), id); err != nil {
			t.Fatalf("Publish(%s) error = %v", id, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
		wg   sync.WaitGroup
	)
	wg.Add(3)
	done := make(chan error, 1)
	go func() {
		done <- q.SubscribeVerificationRequested(ctx, func(_ context.Context, id string) error {
			mu.Lock()
			seen[id] = true
			mu.Unlock()
			wg.Done()
			return nil
		})
	}()

	wg.Wait()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("subscriber did not stop after cancel")
	}
	if len(seen) != 3 {
		t.Fatalf("expected 3 handled ids, got %v", seen)
	}
}

func TestPublishFullQueueIsTemporary(t *testing.T) {
	q := New(Options{Capacity: 1})
	if err := q.PublishVerificationRequested(context.Background(), "a"); err != nil {
		t.Fatalf("first publish error = %v", err)
	}
	err := q.PublishVerificationRequested(context.Background(), "b")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestHandlerTimeoutApplies(t *testing.T) {
	q := New(Options{HandlerTimeout: 10 * time.Millisecond})
	ctx, cancel := q.handlerContext(context.Background())
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatalf("expected handler deadline")
	}
}
