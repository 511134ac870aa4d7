package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tongxiaolong01/llama-factory-go/internal/domain/models"
)

// TestJSONToolExtractor tests recognition of generated tool invocations
func TestJSONToolExtractor(t *testing.T) {
	extractor := NewJSONToolExtractor()

	tests := []struct {
		name      string
		text      string
		wantText  string
		wantSpecs []models.FunctionSpec
	}{
		{
			name:     "single object",
			text:     `{"name":"get_weather","arguments":"{\"city\":\"Berlin\"}"}`,
			wantText: "",
			wantSpecs: []models.FunctionSpec{
				{Name: "get_weather", Arguments: `{"city":"Berlin"}`},
			},
		},
		{
			name:     "array",
			text:     ` [{"name":"a","arguments":"{}"},{"name":"b","arguments":"{}"}] `,
			wantText: "",
			wantSpecs: []models.FunctionSpec{
				{Name: "a", Arguments: "{}"},
				{Name: "b", Arguments: "{}"},
			},
		},
		{
			name:     "plain text",
			text:     "The weather is sunny.",
			wantText: "The weather is sunny.",
		},
		{
			name:     "object without name",
			text:     `{"arguments":"{}"}`,
			wantText: `{"arguments":"{}"}`,
		},
		{
			name:     "array with unnamed entry",
			text:     `[{"name":"a","arguments":"{}"},{"arguments":"{}"}]`,
			wantText: `[{"name":"a","arguments":"{}"},{"arguments":"{}"}]`,
		},
		{
			name:     "empty array",
			text:     `[]`,
			wantText: `[]`,
		},
		{
			name:     "broken json",
			text:     `{"name":`,
			wantText: `{"name":`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, specs := extractor.ExtractTool(tt.text)
			assert.Equal(t, tt.wantText, text)
			if tt.wantSpecs == nil {
				assert.Nil(t, specs)
				return
			}
			require.Equal(t, tt.wantSpecs, specs)
		})
	}
}
