package services

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
	domainServices "github.com/tongxiaolong01/llama-factory-go/internal/domain/services"
)

type fakeEngine struct {
	results []*models.EngineResult
	tokens  []string
	scores  []float64
	err     error

	lastRequest   *models.EngineRequest
	lastMaxLength int
}

var _ domainServices.Engine = (*fakeEngine)(nil)

func (f *fakeEngine) Chat(_ context.Context, req *models.EngineRequest) ([]*models.EngineResult, error) {
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func (f *fakeEngine) StreamChat(ctx context.Context, req *models.EngineRequest) (<-chan string, error) {
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan string, len(f.tokens))
	for _, token := range f.tokens {
		out <- token
	}
	close(out)
	return out, nil
}

func (f *fakeEngine) Scores(_ context.Context, texts []string, maxLength int) ([]float64, error) {
	f.lastMaxLength = maxLength
	if f.err != nil {
		return nil, f.err
	}
	if f.scores != nil {
		return f.scores, nil
	}
	return make([]float64, len(texts)), nil
}

func newTestOrchestrator(t *testing.T, eng domainServices.Engine) *ChatOrchestrator {
	t.Helper()
	resolver := newTestResolver(t, MediaPolicy{SafeRoot: t.TempDir(), AllowLocalFiles: true}, nil)
	adapter := NewToolAdapter()
	normalizer := NewRequestNormalizer(resolver, adapter, zerolog.Nop(), false)
	return NewChatOrchestrator(eng, nil, normalizer, adapter, zerolog.Nop())
}

// TestChatOrchestrator_CreateChatCompletion tests choices and usage assembly
func TestChatOrchestrator_CreateChatCompletion(t *testing.T) {
	eng := &fakeEngine{
		results: []*models.EngineResult{
			{Text: "First.", FinishReason: "stop", PromptLength: 10, ResponseLength: 5},
			{Text: "Second continues", FinishReason: "length", PromptLength: 10, ResponseLength: 7},
		},
	}
	orchestrator := newTestOrchestrator(t, eng)

	req := &models.ChatCompletionRequest{
		Model:    "gpt-3.5-turbo",
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "Hi"}},
		N:        2,
	}

	resp, err := orchestrator.CreateChatCompletion(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(resp.ID, "chatcmpl-"))
	assert.Equal(t, "chat.completion", resp.Object)
	assert.Equal(t, "gpt-3.5-turbo", resp.Model)

	require.Len(t, resp.Choices, 2)
	assert.Equal(t, 0, resp.Choices[0].Index)
	assert.Equal(t, "First.", resp.Choices[0].Message.Content)
	assert.Equal(t, models.FinishStop, resp.Choices[0].FinishReason)
	assert.Equal(t, 1, resp.Choices[1].Index)
	assert.Equal(t, models.FinishLength, resp.Choices[1].FinishReason)

	assert.Equal(t, models.Usage{PromptTokens: 10, CompletionTokens: 12, TotalTokens: 22}, resp.Usage)
}

// TestChatOrchestrator_CreateChatCompletion_EngineError tests error passthrough
func TestChatOrchestrator_CreateChatCompletion_EngineError(t *testing.T) {
	eng := &fakeEngine{err: models.ErrEngineUnavailable}
	orchestrator := newTestOrchestrator(t, eng)

	req := &models.ChatCompletionRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "Hi"}},
	}

	_, err := orchestrator.CreateChatCompletion(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrEngineUnavailable)
}

// TestChatOrchestrator_StreamChatCompletion tests the full chunk sequence
func TestChatOrchestrator_StreamChatCompletion(t *testing.T) {
	eng := &fakeEngine{tokens: []string{"Hel", "lo", "", "!"}}
	orchestrator := newTestOrchestrator(t, eng)

	req := &models.ChatCompletionRequest{
		Model:    "gpt-3.5-turbo",
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "Hi"}},
		Stream:   true,
	}

	chunks, err := orchestrator.StreamChatCompletion(context.Background(), req)
	require.NoError(t, err)

	var collected []*models.ChatCompletionStreamResponse
	for chunk := range chunks {
		collected = append(collected, chunk)
	}

	// Role chunk, one chunk per non-empty token, finish chunk.
	require.Len(t, collected, 5)

	role := collected[0].Choices[0]
	assert.Equal(t, models.RoleAssistant, role.Delta.Role)
	require.NotNil(t, role.Delta.Content)
	assert.Equal(t, "", *role.Delta.Content)
	assert.Nil(t, role.FinishReason)

	var text strings.Builder
	for _, chunk := range collected[1:4] {
		assert.Equal(t, "chat.completion.chunk", chunk.Object)
		assert.Equal(t, collected[0].ID, chunk.ID)
		require.NotNil(t, chunk.Choices[0].Delta.Content)
		text.WriteString(*chunk.Choices[0].Delta.Content)
	}
	assert.Equal(t, "Hello!", text.String())

	final := collected[4].Choices[0]
	assert.Nil(t, final.Delta.Content)
	assert.Equal(t, "", final.Delta.Role)
	require.NotNil(t, final.FinishReason)
	assert.Equal(t, models.FinishStop, *final.FinishReason)
}

// TestChatOrchestrator_Stream_Tools tests the function call streaming gate
func TestChatOrchestrator_Stream_Tools(t *testing.T) {
	orchestrator := newTestOrchestrator(t, &fakeEngine{})

	req := &models.ChatCompletionRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "Hi"}},
		Tools: []models.ToolDefinition{
			{Type: "function", Function: models.FunctionSchema{Name: "get_weather"}},
		},
		Stream: true,
	}

	_, err := orchestrator.StreamChatCompletion(context.Background(), req)
	requireAPIError(t, err, http.StatusBadRequest, "Cannot stream function calls.")
}

// TestChatOrchestrator_Stream_MultipleResponses tests the n>1 streaming gate
func TestChatOrchestrator_Stream_MultipleResponses(t *testing.T) {
	orchestrator := newTestOrchestrator(t, &fakeEngine{})

	req := &models.ChatCompletionRequest{
		Messages: []models.ChatMessage{{Role: models.RoleUser, Content: "Hi"}},
		N:        2,
		Stream:   true,
	}

	_, err := orchestrator.StreamChatCompletion(context.Background(), req)
	requireAPIError(t, err, http.StatusBadRequest, "Cannot stream multiple responses.")
}
