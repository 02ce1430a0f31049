package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// MockClient is a mock implementation of LLMClient for local runs.
//
// A user message of the form "/tool <name> <json args>" produces a native
// tool call; a tool result produces a short summary; anything else is echoed.
type MockClient struct{}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) Name() string { return "mock" }

// CreateChatCompletion returns a mock response.
func (m *MockClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	msg := m.generateMockResponse(req)

	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("mock-chatcmpl-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []Choice{
			{
				Index:        0,
				Message:      msg,
				FinishReason: finishReason(msg),
			},
		},
		Usage: &Usage{
			PromptTokens:     m.estimateTokens(req),
			CompletionTokens: len(msg.Content) / 4,
			TotalTokens:      m.estimateTokens(req) + len(msg.Content)/4,
		},
	}, nil
}

func (m *MockClient) generateMockResponse(req *ChatCompletionRequest) *ChatMessage {
	if len(req.Messages) == 0 {
		return &ChatMessage{Role: RoleAssistant, Content: "[MOCK] This is a mock response from the LLM client."}
	}
	last := req.Messages[len(req.Messages)-1]

	if last.Role == RoleTool {
		return &ChatMessage{Role: RoleAssistant, Content: fmt.Sprintf("[MOCK] Tool returned: %s", truncate(last.Content, 200))}
	}

	if rest, ok := strings.CutPrefix(strings.TrimSpace(last.Content), "/tool "); ok {
		name, args, _ := strings.Cut(strings.TrimSpace(rest), " ")
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		return &ChatMessage{
			Role: RoleAssistant,
			ToolCalls: []ToolCall{{
				ID:       fmt.Sprintf("call_mock_%d", time.Now().UnixNano()),
				Type:     "function",
				Function: ToolCallFunction{Name: name, Arguments: strings.TrimSpace(args)},
			}},
		}
	}

	return &ChatMessage{
		Role:    RoleAssistant,
		Content: fmt.Sprintf("[MOCK] Received your message: %q. This is a mock response.", truncate(last.Content, 100)),
	}
}

// estimateTokens provides a rough token count estimate.
func (m *MockClient) estimateTokens(req *ChatCompletionRequest) int {
	total := 0
	for _, msg := range req.Messages {
		total += len(msg.Content) / 4
	}
	return total
}

func finishReason(msg *ChatMessage) string {
	if len(msg.ToolCalls) > 0 {
		return "tool_calls"
	}
	return "stop"
}

// truncate truncates a string to the given length.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
