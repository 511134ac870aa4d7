package engine

import (
	"context"
	"sync"

	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
	"github.com/tongxiaolong01/llama-factory-go/internal/domain/services"
)

// MockEngine is an in-process engine for tests and for running the server
// without a generation backend.
type MockEngine struct {
	mu           sync.Mutex
	results      []*models.EngineResult
	streamTokens []string
	scores       []float64
	failure      error
	lastRequest  *models.EngineRequest
}

var _ services.Engine = (*MockEngine)(nil)

func NewMockEngine() *MockEngine {
	return &MockEngine{
		results: []*models.EngineResult{
			{
				Text:           "This is a mock response.",
				FinishReason:   models.FinishStop,
				PromptLength:   5,
				ResponseLength: 6,
			},
		},
		streamTokens: []string{"This ", "is ", "a ", "mock ", "response."},
	}
}

// WithResults overrides the buffered results returned by Chat.
func (m *MockEngine) WithResults(results ...*models.EngineResult) *MockEngine {
	m.results = results
	return m
}

// WithStreamTokens overrides the tokens emitted by StreamChat.
func (m *MockEngine) WithStreamTokens(tokens ...string) *MockEngine {
	m.streamTokens = tokens
	return m
}

// WithScores overrides the scores returned by Scores.
func (m *MockEngine) WithScores(scores ...float64) *MockEngine {
	m.scores = scores
	return m
}

// WithFailure makes every call fail with err.
func (m *MockEngine) WithFailure(err error) *MockEngine {
	m.failure = err
	return m
}

// LastRequest returns the engine request seen by the most recent Chat or
// StreamChat call.
func (m *MockEngine) LastRequest() *models.EngineRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRequest
}

func (m *MockEngine) Chat(ctx context.Context, req *models.EngineRequest) ([]*models.EngineResult, error) {
	m.mu.Lock()
	m.lastRequest = req
	m.mu.Unlock()

	if m.failure != nil {
		return nil, m.failure
	}
	return m.results, nil
}

func (m *MockEngine) StreamChat(ctx context.Context, req *models.EngineRequest) (<-chan string, error) {
	m.mu.Lock()
	m.lastRequest = req
	m.mu.Unlock()

	if m.failure != nil {
		return nil, m.failure
	}

	tokens := make(chan string, len(m.streamTokens))
	go func() {
		defer close(tokens)
		for _, token := range m.streamTokens {
			select {
			case tokens <- token:
			case <-ctx.Done():
				return
			}
		}
	}()
	return tokens, nil
}

func (m *MockEngine) Scores(ctx context.Context, texts []string, maxLength int) ([]float64, error) {
	if m.failure != nil {
		return nil, m.failure
	}
	if m.scores != nil {
		return m.scores, nil
	}
	scores := make([]float64, len(texts))
	for i, text := range texts {
		scores[i] = float64(len(text))
	}
	return scores, nil
}
