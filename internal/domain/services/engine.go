package services

import (
	"context"

	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
)

// Engine generates chat completions and scores from normalized requests.
// Implementations own the model runtime; callers own request validation and
// the media lifecycle.
type Engine interface {
	// Chat generates one result per requested sequence.
	Chat(ctx context.Context, req *models.EngineRequest) ([]*models.EngineResult, error)

	// StreamChat generates a single sequence incrementally. The returned
	// channel is closed when generation finishes or ctx is cancelled.
	StreamChat(ctx context.Context, req *models.EngineRequest) (<-chan string, error)

	// Scores computes one score per input text. maxLength <= 0 keeps the
	// engine's default truncation limit.
	Scores(ctx context.Context, texts []string, maxLength int) ([]float64, error)
}

// ToolExtractor recovers structured function calls from generated text. The
// returned text is the cleaned plain answer when no calls were found; a
// non-empty spec list means the sequence was a batch of function calls.
type ToolExtractor interface {
	ExtractTool(text string) (string, []models.FunctionSpec)
}
