package event_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fafmau/quizd/internal/event"
)

type testEvent struct {
	name string
}

func (e testEvent) Name() string { return e.name }

func TestBus_PublishFanOut(t *testing.T) {
	b := event.NewBus(event.WithPoolSize(2))

	var (
		mu    sync.Mutex
		calls []string
	)
	record := func(tag string) event.Handler {
		return func(_ context.Context, e event.Event) error {
			mu.Lock()
			calls = append(calls, tag+":"+e.Name())
			mu.Unlock()
			return nil
		}
	}

	b.Subscribe("score.updated", record("first"))
	b.Subscribe("score.updated", record("second"))
	b.Subscribe("other", record("third"))

	b.Publish(context.Background(), testEvent{name: "score.updated"})
	b.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"first:score.updated", "second:score.updated"}, calls,
		"only handlers subscribed to the published name should run")
}

func TestBus_HandlerPanicDoesNotKillBus(t *testing.T) {
	b := event.NewBus()

	b.Subscribe("boom", func(context.Context, event.Event) error {
		panic("handler exploded")
	})

	done := make(chan struct{})
	b.Subscribe("boom", func(context.Context, event.Event) error {
		close(done)
		return nil
	})

	b.Publish(context.Background(), testEvent{name: "boom"})
	b.Stop()

	select {
	case <-done:
	default:
		t.Fatal("the second handler should have run despite the panic")
	}
}

func TestBus_DetachedFromPublisherContext(t *testing.T) {
	b := event.NewBus()

	var ctxErr error
	done := make(chan struct{})
	b.Subscribe("detached", func(ctx context.Context, _ event.Event) error {
		ctxErr = ctx.Err()
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b.Publish(ctx, testEvent{name: "detached"})
	b.Stop()

	<-done
	assert.NoError(t, ctxErr, "a cancelled publisher context must not cancel the handler")
}
