package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
	"github.com/tongxiaolong01/llama-factory-go/internal/domain/services"
)

// Client talks to the generation backend over HTTP. Buffered calls run on
// a client with a request timeout; streaming calls share the transport but
// carry no timeout since generations can run for minutes.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	streamClient *http.Client
	logger       zerolog.Logger
}

var _ services.Engine = (*Client)(nil)

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: timeout, Transport: transport},
		streamClient: &http.Client{Transport: transport},
		logger:       logger,
	}
}

type generateRequest struct {
	Messages           []models.FlatMessage `json:"messages"`
	System             string               `json:"system,omitempty"`
	Tools              string               `json:"tools,omitempty"`
	Images             []mediaPayload       `json:"images,omitempty"`
	Videos             []mediaPayload       `json:"videos,omitempty"`
	Audios             []mediaPayload       `json:"audios,omitempty"`
	DoSample           *bool                `json:"do_sample,omitempty"`
	Temperature        *float64             `json:"temperature,omitempty"`
	TopP               *float64             `json:"top_p,omitempty"`
	MaxNewTokens       *int                 `json:"max_new_tokens,omitempty"`
	NumReturnSequences int                  `json:"num_return_sequences"`
	RepetitionPenalty  *float64             `json:"repetition_penalty,omitempty"`
	Stop               []string             `json:"stop,omitempty"`
	Stream             bool                 `json:"stream,omitempty"`
}

type mediaPayload struct {
	Kind string `json:"kind"`
	Data string `json:"data,omitempty"`
	Path string `json:"path,omitempty"`
}

type generateResponse struct {
	Results []struct {
		Text           string `json:"text"`
		FinishReason   string `json:"finish_reason"`
		PromptLength   int    `json:"prompt_length"`
		ResponseLength int    `json:"response_length"`
	} `json:"results"`
}

type streamEvent struct {
	Token string `json:"token"`
}

type scoreRequest struct {
	Texts     []string `json:"texts"`
	MaxLength *int     `json:"max_length,omitempty"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

func (c *Client) buildGenerateRequest(req *models.EngineRequest, stream bool) (*generateRequest, error) {
	out := &generateRequest{
		Messages:           req.Messages,
		System:             req.System,
		Tools:              req.Tools,
		DoSample:           req.Params.DoSample,
		Temperature:        req.Params.Temperature,
		TopP:               req.Params.TopP,
		MaxNewTokens:       req.Params.MaxNewTokens,
		NumReturnSequences: req.Params.NumReturnSequences,
		RepetitionPenalty:  req.Params.RepetitionPenalty,
		Stop:               req.Params.Stop,
		Stream:             stream,
	}

	for _, media := range req.Images {
		payload, err := encodeMedia(media)
		if err != nil {
			return nil, err
		}
		out.Images = append(out.Images, payload)
	}
	for _, media := range req.Videos {
		payload, err := encodeMedia(media)
		if err != nil {
			return nil, err
		}
		out.Videos = append(out.Videos, payload)
	}
	for _, media := range req.Audios {
		payload, err := encodeMedia(media)
		if err != nil {
			return nil, err
		}
		out.Audios = append(out.Audios, payload)
	}
	return out, nil
}

// encodeMedia flattens one resolved media input for the wire. Decoded
// images are re-encoded as PNG; local paths pass through untouched.
func encodeMedia(media *models.ResolvedMedia) (mediaPayload, error) {
	payload := mediaPayload{Kind: string(media.Kind)}

	switch {
	case media.Image != nil:
		var buf bytes.Buffer
		if err := png.Encode(&buf, media.Image); err != nil {
			return payload, fmt.Errorf("encoding image: %w", err)
		}
		payload.Data = base64.StdEncoding.EncodeToString(buf.Bytes())
	case media.Path != "":
		payload.Path = media.Path
	case media.Body != nil:
		data, err := io.ReadAll(media.Body)
		if err != nil {
			return payload, fmt.Errorf("reading media body: %w", err)
		}
		payload.Data = base64.StdEncoding.EncodeToString(data)
	}
	return payload, nil
}

func (c *Client) postJSON(ctx context.Context, client *http.Client, path string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEngineUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("generation backend error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return resp, nil
}

func (c *Client) Chat(ctx context.Context, req *models.EngineRequest) ([]*models.EngineResult, error) {
	body, err := c.buildGenerateRequest(req, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.postJSON(ctx, c.httpClient, "/generate", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding generation response: %w", err)
	}

	results := make([]*models.EngineResult, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		results = append(results, &models.EngineResult{
			Text:           r.Text,
			FinishReason:   r.FinishReason,
			PromptLength:   r.PromptLength,
			ResponseLength: r.ResponseLength,
		})
	}
	return results, nil
}

func (c *Client) StreamChat(ctx context.Context, req *models.EngineRequest) (<-chan string, error) {
	body, err := c.buildGenerateRequest(req, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.postJSON(ctx, c.streamClient, "/generate/stream", body)
	if err != nil {
		return nil, err
	}

	tokens := make(chan string, 10)
	go c.streamTokens(ctx, resp, tokens)
	return tokens, nil
}

// streamTokens reads server-sent events off the backend response and
// forwards decoded tokens until the stream terminator arrives.
func (c *Client) streamTokens(ctx context.Context, resp *http.Response, tokens chan<- string) {
	defer close(tokens)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			return
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			c.logger.Warn().Err(err).Str("line", data).Msg("skipping malformed stream event")
			continue
		}

		select {
		case tokens <- event.Token:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn().Err(err).Msg("generation stream ended with error")
	}
}

func (c *Client) Scores(ctx context.Context, texts []string, maxLength int) ([]float64, error) {
	body := scoreRequest{Texts: texts}
	if maxLength > 0 {
		body.MaxLength = &maxLength
	}

	resp, err := c.postJSON(ctx, c.httpClient, "/score", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding score response: %w", err)
	}
	return decoded.Scores, nil
}
