package services

import (
	"context"

	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
	domainServices "github.com/tongxiaolong01/llama-factory-go/internal/domain/services"
)

// ThrottledEngine caps the number of generation calls in flight. Slots are
// held for the full duration of a call; a streaming call keeps its slot
// until the token channel drains.
type ThrottledEngine struct {
	inner domainServices.Engine
	slots chan struct{}
}

var _ domainServices.Engine = (*ThrottledEngine)(nil)

// NewThrottledEngine wraps engine with a concurrency cap. A cap of zero or
// less disables throttling and returns the engine unchanged.
func NewThrottledEngine(engine domainServices.Engine, maxConcurrent int) domainServices.Engine {
	if maxConcurrent <= 0 {
		return engine
	}
	return &ThrottledEngine{
		inner: engine,
		slots: make(chan struct{}, maxConcurrent),
	}
}

func (t *ThrottledEngine) acquire(ctx context.Context) error {
	select {
	case t.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *ThrottledEngine) release() {
	<-t.slots
}

func (t *ThrottledEngine) Chat(ctx context.Context, req *models.EngineRequest) ([]*models.EngineResult, error) {
	if err := t.acquire(ctx); err != nil {
		return nil, err
	}
	defer t.release()
	return t.inner.Chat(ctx, req)
}

func (t *ThrottledEngine) StreamChat(ctx context.Context, req *models.EngineRequest) (<-chan string, error) {
	if err := t.acquire(ctx); err != nil {
		return nil, err
	}

	tokens, err := t.inner.StreamChat(ctx, req)
	if err != nil {
		t.release()
		return nil, err
	}

	out := make(chan string, 10)
	go func() {
		defer t.release()
		defer close(out)
		for token := range tokens {
			select {
			case out <- token:
			case <-ctx.Done():
				// Drain so the inner producer can finish and the slot frees.
				for range tokens {
				}
				return
			}
		}
	}()
	return out, nil
}

func (t *ThrottledEngine) Scores(ctx context.Context, texts []string, maxLength int) ([]float64, error) {
	if err := t.acquire(ctx); err != nil {
		return nil, err
	}
	defer t.release()
	return t.inner.Scores(ctx, texts, maxLength)
}
