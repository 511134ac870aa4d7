package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/tongxiaolong01/llama-factory-go/internal/application/services"
	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
	"github.com/tongxiaolong01/llama-factory-go/internal/infrastructure/config"
	"github.com/tongxiaolong01/llama-factory-go/internal/infrastructure/metrics"
)

// Handler serves the OpenAI-style HTTP API.
type Handler struct {
	chat    *services.ChatOrchestrator
	scores  *services.ScoreService
	metrics *metrics.Collector
	config  *config.Config
	logger  zerolog.Logger
}

func NewHandler(
	chat *services.ChatOrchestrator,
	scores *services.ScoreService,
	collector *metrics.Collector,
	cfg *config.Config,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		chat:    chat,
		scores:  scores,
		metrics: collector,
		config:  cfg,
		logger:  logger,
	}
}

// ChatCompletions handles POST /v1/chat/completions.
func (h *Handler) ChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req models.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, models.BadRequest("Invalid request body."))
		return
	}

	if req.Stream {
		h.streamChatCompletion(w, r, &req)
		return
	}
	h.chatCompletion(w, r, &req)
}

func (h *Handler) chatCompletion(w http.ResponseWriter, r *http.Request, req *models.ChatCompletionRequest) {
	resp, err := h.chat.CreateChatCompletion(r.Context(), req)
	if err != nil {
		h.sendError(w, err)
		return
	}

	h.metrics.RecordChat(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	h.sendJSON(w, http.StatusOK, resp)
}

func (h *Handler) streamChatCompletion(w http.ResponseWriter, r *http.Request, req *models.ChatCompletionRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.sendError(w, fmt.Errorf("streaming not supported by connection"))
		return
	}

	chunks, err := h.chat.StreamChatCompletion(r.Context(), req)
	if err != nil {
		h.sendError(w, err)
		return
	}

	h.metrics.RecordStream()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	for chunk := range chunks {
		raw, err := json.Marshal(chunk)
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to marshal stream chunk")
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", raw)
		flusher.Flush()
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// ScoreEvaluation handles POST /v1/score/evaluation.
func (h *Handler) ScoreEvaluation(w http.ResponseWriter, r *http.Request) {
	var req models.ScoreEvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, models.BadRequest("Invalid request body."))
		return
	}

	resp, err := h.scores.CreateScoreEvaluation(r.Context(), &req)
	if err != nil {
		h.sendError(w, err)
		return
	}

	h.metrics.RecordScore()
	h.sendJSON(w, http.StatusOK, resp)
}

// Models handles GET /v1/models.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, models.NewModelList(h.config.Server.ModelName))
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics handles GET /metrics.
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	h.metrics.WritePrometheus(w)
}

func (h *Handler) sendError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error."

	if apiErr, ok := models.AsAPIError(err); ok {
		status = apiErr.Status
		message = apiErr.Message
	} else {
		h.logger.Error().Err(err).Msg("request failed")
	}

	h.metrics.RecordRejection(status)
	writeErrorJSON(w, status, message)
}

func (h *Handler) sendJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error().Err(err).Msg("failed to encode response")
	}
}

// writeErrorJSON writes an OpenAI-style error body.
func writeErrorJSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{
		"error": map[string]string{
			"message": message,
			"type":    errorType(status),
		},
	}
	json.NewEncoder(w).Encode(body)
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request_error"
	case http.StatusUnauthorized:
		return "authentication_error"
	case http.StatusForbidden:
		return "forbidden_error"
	default:
		return "internal_error"
	}
}
