package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
)

// flatRoles maps wire roles to the roles the generation backend understands.
// The tool role carries observation results and is renamed accordingly.
var flatRoles = map[string]string{
	models.RoleUser:      models.RoleUser,
	models.RoleAssistant: models.RoleAssistant,
	models.RoleSystem:    models.RoleSystem,
	models.RoleFunction:  models.RoleFunction,
	models.RoleTool:      models.RoleObservation,
}

// RequestNormalizer validates chat requests and flattens them into the
// engine's representation: a leading optional system prompt, a strictly
// alternating user/assistant turn list, serialized tools, and resolved
// media inputs with placeholders injected into the message text.
type RequestNormalizer struct {
	resolver *MediaResolver
	tools    *ToolAdapter
	logger   zerolog.Logger
	verbose  bool
}

func NewRequestNormalizer(resolver *MediaResolver, tools *ToolAdapter, logger zerolog.Logger, verbose bool) *RequestNormalizer {
	return &RequestNormalizer{
		resolver: resolver,
		tools:    tools,
		logger:   logger,
		verbose:  verbose,
	}
}

// Normalize checks the message sequence and produces the flat engine
// request. Callers own the returned request and must Close it.
func (n *RequestNormalizer) Normalize(ctx context.Context, req *models.ChatCompletionRequest) (*models.EngineRequest, error) {
	if n.verbose {
		if raw, err := json.Marshal(req); err == nil {
			n.logger.Debug().RawJSON("request", raw).Msg("chat completion request")
		}
	}

	if len(req.Messages) == 0 {
		return nil, models.BadRequest("Invalid length")
	}

	messages := req.Messages
	out := &models.EngineRequest{}

	if messages[0].Role == models.RoleSystem {
		out.System = messageText(&messages[0])
		messages = messages[1:]
	}

	if len(messages)%2 == 0 {
		return nil, models.BadRequest("Only supports u/a/u/a/u...")
	}

	for i := range messages {
		msg := &messages[i]
		even := i%2 == 0
		if even && msg.Role != models.RoleUser && msg.Role != models.RoleTool {
			out.Close()
			return nil, models.BadRequest("Invalid role")
		}
		if !even && msg.Role != models.RoleAssistant && msg.Role != models.RoleFunction {
			out.Close()
			return nil, models.BadRequest("Invalid role")
		}
		if err := n.flatten(ctx, msg, out); err != nil {
			out.Close()
			return nil, err
		}
	}

	tools, err := n.tools.EncodeDefinitions(req.Tools)
	if err != nil {
		out.Close()
		return nil, err
	}
	out.Tools = tools

	out.Params = models.GenerationParams{
		DoSample:           req.DoSample,
		Temperature:        req.Temperature,
		TopP:               req.TopP,
		MaxNewTokens:       req.MaxTokens,
		NumReturnSequences: req.GetN(),
		RepetitionPenalty:  req.PresencePenalty,
		Stop:               req.Stop,
	}
	return out, nil
}

// flatten appends one wire message to the engine request, resolving every
// media part and injecting its placeholder into the text.
func (n *RequestNormalizer) flatten(ctx context.Context, msg *models.ChatMessage, out *models.EngineRequest) error {
	if msg.Role == models.RoleAssistant && len(msg.ToolCalls) > 0 {
		content, err := n.tools.EncodeToolCalls(msg.ToolCalls)
		if err != nil {
			return err
		}
		out.Messages = append(out.Messages, models.FlatMessage{Role: models.RoleFunction, Content: content})
		return nil
	}

	if !msg.HasParts() {
		out.Messages = append(out.Messages, models.FlatMessage{Role: flatRoles[msg.Role], Content: msg.TextContent()})
		return nil
	}

	parts, err := msg.ContentParts()
	if err != nil {
		return models.BadRequest("Invalid messages")
	}

	var text strings.Builder
	for _, part := range parts {
		switch part.Type {
		case models.PartTypeText:
			text.WriteString(part.Text)
		case models.PartTypeImageURL:
			text.WriteString(models.MediaImage.Placeholder())
			media, err := n.resolvePart(ctx, part.ImageURL, models.MediaImage)
			if err != nil {
				return err
			}
			out.Images = append(out.Images, media)
		case models.PartTypeVideoURL:
			text.WriteString(models.MediaVideo.Placeholder())
			media, err := n.resolvePart(ctx, part.VideoURL, models.MediaVideo)
			if err != nil {
				return err
			}
			out.Videos = append(out.Videos, media)
		case models.PartTypeAudioURL:
			text.WriteString(models.MediaAudio.Placeholder())
			media, err := n.resolvePart(ctx, part.AudioURL, models.MediaAudio)
			if err != nil {
				return err
			}
			out.Audios = append(out.Audios, media)
		default:
			return models.BadRequest("Invalid input type %s.", part.Type)
		}
	}

	out.Messages = append(out.Messages, models.FlatMessage{Role: flatRoles[msg.Role], Content: text.String()})
	return nil
}

func (n *RequestNormalizer) resolvePart(ctx context.Context, ref *models.PartURL, kind models.MediaKind) (*models.ResolvedMedia, error) {
	if ref == nil {
		return nil, models.BadRequest("Invalid %s reference.", string(kind))
	}
	return n.resolver.Resolve(ctx, ref.URL, kind)
}

// messageText extracts the plain text of a message whether its content is a
// bare string or a content-part list.
func messageText(msg *models.ChatMessage) string {
	if msg.HasParts() {
		if parts, err := msg.ContentParts(); err == nil && len(parts) > 0 {
			return parts[0].Text
		}
		return ""
	}
	return msg.TextContent()
}
