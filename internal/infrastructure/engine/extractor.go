package engine

import (
	"encoding/json"
	"strings"

	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
	"github.com/tongxiaolong01/llama-factory-go/internal/domain/services"
)

// JSONToolExtractor recognizes generated text that is itself a JSON tool
// invocation: either a single {"name","arguments"} object or an array of
// them. Anything else is treated as plain text.
type JSONToolExtractor struct{}

var _ services.ToolExtractor = (*JSONToolExtractor)(nil)

func NewJSONToolExtractor() *JSONToolExtractor {
	return &JSONToolExtractor{}
}

func (e *JSONToolExtractor) ExtractTool(text string) (string, []models.FunctionSpec) {
	trimmed := strings.TrimSpace(text)

	switch {
	case strings.HasPrefix(trimmed, "["):
		var specs []models.FunctionSpec
		if err := json.Unmarshal([]byte(trimmed), &specs); err != nil || len(specs) == 0 {
			return text, nil
		}
		for _, spec := range specs {
			if spec.Name == "" {
				return text, nil
			}
		}
		return "", specs
	case strings.HasPrefix(trimmed, "{"):
		var spec models.FunctionSpec
		if err := json.Unmarshal([]byte(trimmed), &spec); err != nil || spec.Name == "" {
			return text, nil
		}
		return "", []models.FunctionSpec{spec}
	default:
		return text, nil
	}
}
