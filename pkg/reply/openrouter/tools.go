package openrouter

import (
	"encoding/json"
	"sort"

	go_openai "github.com/sashabaranov/go-openai"

	"github.com/go-go-golems/locus/pkg/conversation"
)

const webSearchTool = "web_search"

func webSearchTools() []go_openai.Tool {
	return []go_openai.Tool{
		{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        webSearchTool,
				Description: "Search the web for current information",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"query": map[string]interface{}{"type": "string"},
					},
					"required": []string{"query"},
				},
			},
		},
	}
}

// toolCallMerger accumulates streamed tool call fragments by index.
type toolCallMerger struct {
	toolCalls map[int]go_openai.ToolCall
}

func newToolCallMerger() *toolCallMerger {
	return &toolCallMerger{
		toolCalls: make(map[int]go_openai.ToolCall),
	}
}

func (tcm *toolCallMerger) add(toolCalls []go_openai.ToolCall) {
	for _, call := range toolCalls {
		index := 0
		if call.Index != nil {
			index = *call.Index
		}
		if existing, found := tcm.toolCalls[index]; found {
			existing.Function.Name += call.Function.Name
			existing.Function.Arguments += call.Function.Arguments
			tcm.toolCalls[index] = existing
		} else {
			tcm.toolCalls[index] = call
		}
	}
}

func (tcm *toolCallMerger) calls() []go_openai.ToolCall {
	indices := make([]int, 0, len(tcm.toolCalls))
	for index := range tcm.toolCalls {
		indices = append(indices, index)
	}
	sort.Ints(indices)

	result := make([]go_openai.ToolCall, 0, len(indices))
	for _, index := range indices {
		result = append(result, tcm.toolCalls[index])
	}
	return result
}

type searchArguments struct {
	Results []conversation.SearchResult `json:"results"`
}

// sources decodes the search results carried in the tool call arguments. The
// last call with decodable results wins; undecodable arguments are skipped.
func (tcm *toolCallMerger) sources() []conversation.SearchResult {
	var ret []conversation.SearchResult
	for _, call := range tcm.calls() {
		if call.Function.Arguments == "" {
			continue
		}
		var args searchArguments
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			continue
		}
		if args.Results != nil {
			ret = args.Results
		}
	}
	return ret
}
