package services

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
	domainServices "github.com/tongxiaolong01/llama-factory-go/internal/domain/services"
)

// ScoreService evaluates reward-model scores for batches of texts.
type ScoreService struct {
	engine domainServices.Engine
	logger zerolog.Logger
}

func NewScoreService(engine domainServices.Engine, logger zerolog.Logger) *ScoreService {
	return &ScoreService{engine: engine, logger: logger}
}

// CreateScoreEvaluation scores every text in the request, preserving order.
func (s *ScoreService) CreateScoreEvaluation(ctx context.Context, req *models.ScoreEvaluationRequest) (*models.ScoreEvaluationResponse, error) {
	scoreID := models.NewScoreID()

	if len(req.Messages) == 0 {
		return nil, models.BadRequest("Invalid request")
	}

	maxLength := 0
	if req.MaxLength != nil {
		maxLength = *req.MaxLength
	}

	scores, err := s.engine.Scores(ctx, req.Messages, maxLength)
	if err != nil {
		return nil, err
	}
	return models.NewScoreEvaluationResponse(scoreID, req.Model, scores), nil
}
