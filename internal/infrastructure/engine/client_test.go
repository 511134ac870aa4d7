package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
)

// TestClient_Chat tests the buffered generation round trip
func TestClient_Chat(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/generate", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"results":[{"text":"Hi there","finish_reason":"stop","prompt_length":9,"response_length":3}]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, zerolog.Nop())

	temperature := 0.7
	req := &models.EngineRequest{
		Messages: []models.FlatMessage{{Role: "user", Content: "Hi"}},
		System:   "Be helpful.",
		Tools:    `[{"name":"get_weather"}]`,
		Params: models.GenerationParams{
			Temperature:        &temperature,
			NumReturnSequences: 1,
			Stop:               []string{"###"},
		},
	}

	results, err := client.Chat(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Hi there", results[0].Text)
	assert.Equal(t, "stop", results[0].FinishReason)
	assert.Equal(t, 9, results[0].PromptLength)
	assert.Equal(t, 3, results[0].ResponseLength)

	assert.Equal(t, []models.FlatMessage{{Role: "user", Content: "Hi"}}, got.Messages)
	assert.Equal(t, "Be helpful.", got.System)
	assert.Equal(t, `[{"name":"get_weather"}]`, got.Tools)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.7, *got.Temperature, 1e-9)
	assert.Equal(t, 1, got.NumReturnSequences)
	assert.Equal(t, []string{"###"}, got.Stop)
	assert.False(t, got.Stream)
}

// TestClient_Chat_BackendError tests non-200 handling
func TestClient_Chat_BackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, zerolog.Nop())

	_, err := client.Chat(context.Background(), &models.EngineRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation backend error (status 500)")
	assert.Contains(t, err.Error(), "model crashed")
}

// TestClient_Chat_Unreachable tests the unavailable sentinel
func TestClient_Chat_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 500*time.Millisecond, zerolog.Nop())

	_, err := client.Chat(context.Background(), &models.EngineRequest{})
	assert.ErrorIs(t, err, models.ErrEngineUnavailable)
}

// TestClient_StreamChat tests token decoding from the backend event stream
func TestClient_StreamChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/generate/stream", r.URL.Path)

		var got generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.True(t, got.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"token\":\"Hel\"}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: {\"token\":\"lo\"}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"token\":\"ignored\"}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, zerolog.Nop())

	tokens, err := client.StreamChat(context.Background(), &models.EngineRequest{})
	require.NoError(t, err)

	var collected []string
	for token := range tokens {
		collected = append(collected, token)
	}
	assert.Equal(t, []string{"Hel", "lo"}, collected)
}

// TestClient_Scores tests the score round trip
func TestClient_Scores(t *testing.T) {
	var got scoreRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/score", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"scores":[1.5,2.5]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, zerolog.Nop())

	scores, err := client.Scores(context.Background(), []string{"a", "b"}, 512)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5}, scores)

	assert.Equal(t, []string{"a", "b"}, got.Texts)
	require.NotNil(t, got.MaxLength)
	assert.Equal(t, 512, *got.MaxLength)
}

// TestClient_Scores_NoMaxLength tests that zero max length is omitted
func TestClient_Scores_NoMaxLength(t *testing.T) {
	var got scoreRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"scores":[0.5]}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, zerolog.Nop())

	_, err := client.Scores(context.Background(), []string{"a"}, 0)
	require.NoError(t, err)
	assert.Nil(t, got.MaxLength)
}

// TestEncodeMedia tests the three media wire forms
func TestEncodeMedia(t *testing.T) {
	img := &models.ResolvedMedia{
		Kind:  models.MediaImage,
		Image: image.NewRGBA(image.Rect(0, 0, 1, 1)),
	}
	payload, err := encodeMedia(img)
	require.NoError(t, err)
	assert.Equal(t, "image", payload.Kind)
	decoded, err := base64.StdEncoding.DecodeString(payload.Data)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(decoded, []byte("\x89PNG")))

	local := &models.ResolvedMedia{Kind: models.MediaVideo, Path: "/safe_media/clip.mp4"}
	payload, err = encodeMedia(local)
	require.NoError(t, err)
	assert.Equal(t, "/safe_media/clip.mp4", payload.Path)
	assert.Empty(t, payload.Data)

	stream := &models.ResolvedMedia{
		Kind: models.MediaAudio,
		Body: io.NopCloser(bytes.NewReader([]byte("audio"))),
	}
	payload, err = encodeMedia(stream)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("audio")), payload.Data)
}
