package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
	domainServices "github.com/tongxiaolong01/llama-factory-go/internal/domain/services"
)

// ChatOrchestrator drives chat completions end to end: normalize the
// request, call the generation engine, and assemble the response in both
// buffered and streaming forms.
type ChatOrchestrator struct {
	engine     domainServices.Engine
	extractor  domainServices.ToolExtractor
	normalizer *RequestNormalizer
	tools      *ToolAdapter
	logger     zerolog.Logger
}

func NewChatOrchestrator(
	engine domainServices.Engine,
	extractor domainServices.ToolExtractor,
	normalizer *RequestNormalizer,
	tools *ToolAdapter,
	logger zerolog.Logger,
) *ChatOrchestrator {
	return &ChatOrchestrator{
		engine:     engine,
		extractor:  extractor,
		normalizer: normalizer,
		tools:      tools,
		logger:     logger,
	}
}

// CreateChatCompletion produces a buffered completion with one choice per
// requested sequence and aggregated token usage.
func (o *ChatOrchestrator) CreateChatCompletion(ctx context.Context, req *models.ChatCompletionRequest) (*models.ChatCompletionResponse, error) {
	completionID := models.NewCompletionID()

	engineReq, err := o.normalizer.Normalize(ctx, req)
	if err != nil {
		return nil, err
	}
	defer engineReq.Close()

	results, err := o.engine.Chat(ctx, engineReq)
	if err != nil {
		return nil, err
	}

	hadTools := engineReq.Tools != ""
	choices := make([]models.Choice, 0, len(results))
	promptLength := 0
	responseLength := 0
	for i, result := range results {
		choices = append(choices, o.tools.AssembleChoice(i, result, o.extractor, hadTools))
		promptLength = result.PromptLength
		responseLength += result.ResponseLength
	}

	usage := models.Usage{
		PromptTokens:     promptLength,
		CompletionTokens: responseLength,
		TotalTokens:      promptLength + responseLength,
	}
	return models.NewChatCompletionResponse(completionID, req.Model, choices, usage), nil
}

// StreamChatCompletion starts a streaming completion and returns the chunk
// channel. Tool-equipped and multi-sequence requests cannot stream. The
// channel closes after the finish chunk; the caller appends the terminator.
func (o *ChatOrchestrator) StreamChatCompletion(ctx context.Context, req *models.ChatCompletionRequest) (<-chan *models.ChatCompletionStreamResponse, error) {
	completionID := models.NewCompletionID()

	engineReq, err := o.normalizer.Normalize(ctx, req)
	if err != nil {
		return nil, err
	}

	if engineReq.Tools != "" {
		engineReq.Close()
		return nil, models.BadRequest("Cannot stream function calls.")
	}
	if req.GetN() > 1 {
		engineReq.Close()
		return nil, models.BadRequest("Cannot stream multiple responses.")
	}

	tokens, err := o.engine.StreamChat(ctx, engineReq)
	if err != nil {
		engineReq.Close()
		return nil, err
	}

	chunks := make(chan *models.ChatCompletionStreamResponse, 10)
	go o.streamAsync(ctx, completionID, req.Model, engineReq, tokens, chunks)
	return chunks, nil
}

func (o *ChatOrchestrator) streamAsync(
	ctx context.Context,
	completionID, model string,
	engineReq *models.EngineRequest,
	tokens <-chan string,
	chunks chan<- *models.ChatCompletionStreamResponse,
) {
	defer close(chunks)
	defer engineReq.Close()

	role := models.NewStreamChunk(completionID, model, models.StreamDelta{
		Role:    models.RoleAssistant,
		Content: strPtr(""),
	}, nil)
	if !sendChunk(ctx, chunks, role) {
		return
	}

	for token := range tokens {
		if token == "" {
			continue
		}
		tok := token
		chunk := models.NewStreamChunk(completionID, model, models.StreamDelta{Content: &tok}, nil)
		if !sendChunk(ctx, chunks, chunk) {
			return
		}
	}

	finish := models.FinishStop
	final := models.NewStreamChunk(completionID, model, models.StreamDelta{}, &finish)
	sendChunk(ctx, chunks, final)
}

func sendChunk(ctx context.Context, chunks chan<- *models.ChatCompletionStreamResponse, chunk *models.ChatCompletionStreamResponse) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func strPtr(s string) *string {
	return &s
}
