package services

import (
	"encoding/json"

	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
	"github.com/tongxiaolong01/llama-factory-go/internal/domain/services"
)

// ToolAdapter converts tool definitions and tool calls between the wire
// format and the flat strings the generation backend consumes.
type ToolAdapter struct{}

func NewToolAdapter() *ToolAdapter {
	return &ToolAdapter{}
}

// EncodeDefinitions serializes the function schemas of the supplied tool
// definitions into a single JSON array. An empty tool list yields "".
func (a *ToolAdapter) EncodeDefinitions(tools []models.ToolDefinition) (string, error) {
	if len(tools) == 0 {
		return "", nil
	}
	schemas := make([]models.FunctionSchema, 0, len(tools))
	for _, tool := range tools {
		schemas = append(schemas, tool.Function)
	}
	raw, err := json.Marshal(schemas)
	if err != nil {
		return "", models.BadRequest("Invalid tools")
	}
	return string(raw), nil
}

// EncodeToolCalls serializes prior assistant tool calls into the JSON array
// form the backend expects as function-role content.
func (a *ToolAdapter) EncodeToolCalls(calls []models.ToolCall) (string, error) {
	specs := make([]models.FunctionSpec, 0, len(calls))
	for _, call := range calls {
		specs = append(specs, call.Function)
	}
	raw, err := json.Marshal(specs)
	if err != nil {
		return "", models.BadRequest("Invalid tools")
	}
	return string(raw), nil
}

// AssembleChoice builds one response choice from a generation result. When
// the request carried tools, the extractor splits tool invocations out of
// the generated text and the finish reason becomes tool_calls.
func (a *ToolAdapter) AssembleChoice(index int, result *models.EngineResult, extractor services.ToolExtractor, hadTools bool) models.Choice {
	content := result.Text

	if hadTools && extractor != nil {
		text, specs := extractor.ExtractTool(result.Text)
		if len(specs) > 0 {
			calls := make([]models.ToolCall, 0, len(specs))
			for _, spec := range specs {
				calls = append(calls, models.ToolCall{
					ID:       models.NewToolCallID(),
					Type:     "function",
					Function: spec,
				})
			}
			return models.Choice{
				Index:        index,
				Message:      models.ChatMessage{Role: models.RoleAssistant, ToolCalls: calls},
				FinishReason: models.FinishToolCalls,
			}
		}
		content = text
	}

	finish := models.FinishLength
	if result.FinishReason == models.FinishStop {
		finish = models.FinishStop
	}
	return models.Choice{
		Index:        index,
		Message:      models.ChatMessage{Role: models.RoleAssistant, Content: content},
		FinishReason: finish,
	}
}
