package models

// ScoreEvaluationRequest is the request body of POST /v1/score/evaluation.
// MaxLength bounds the tokenized input length; nil keeps the engine default.
type ScoreEvaluationRequest struct {
	Model     string   `json:"model"`
	Messages  []string `json:"messages"`
	MaxLength *int     `json:"max_length,omitempty"`
}

// ScoreEvaluationResponse carries one score per input text, in input order.
type ScoreEvaluationResponse struct {
	ID     string    `json:"id"`
	Object string    `json:"object"`
	Model  string    `json:"model"`
	Scores []float64 `json:"scores"`
}

// NewScoreEvaluationResponse stamps the score.evaluation envelope.
func NewScoreEvaluationResponse(id, model string, scores []float64) *ScoreEvaluationResponse {
	return &ScoreEvaluationResponse{
		ID:     id,
		Object: "score.evaluation",
		Model:  model,
		Scores: scores,
	}
}
