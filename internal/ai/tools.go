package ai

import (
	"encoding/json"

	"github.com/sashabaranov/go-openai"

	"shoptalk/internal/toolcall"
)

// toOpenAITools converts the merchant tool catalog into the function-calling
// shape the model API expects. Tools with no schema get an empty object
// schema so the model still offers them.
func toOpenAITools(specs []toolcall.ToolSpec) []openai.Tool {
	tools := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		schema := spec.InputSchema
		if schema == nil {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			},
		})
	}
	return tools
}

// parseToolArguments decodes the model-supplied argument JSON. Malformed
// arguments become an empty map rather than a failed turn; the tool server
// rejects what it cannot use.
func parseToolArguments(raw string) map[string]interface{} {
	args := map[string]interface{}{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]interface{}{}
	}
	return args
}
