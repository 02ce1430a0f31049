package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient implements LLMClient using the OpenAI API.
// Also works with compatible APIs (LiteLLM, Ollama, vLLM, OpenRouter) via BaseURL.
type OpenAIClient struct {
	client       openai.Client
	name         string
	defaultModel string
}

// OpenAIConfig holds configuration for the OpenAI client.
type OpenAIConfig struct {
	// Name is reported by Name and in errors. Defaults to "openai".
	Name       string
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	name := cfg.Name
	if name == "" {
		name = "openai"
	}

	return &OpenAIClient{
		client:       openai.NewClient(opts...),
		name:         name,
		defaultModel: model,
	}
}

func (c *OpenAIClient) Name() string { return c.name }

// CreateChatCompletion implements LLMClient.
func (c *OpenAIClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: convertOpenAIMessages(req.Messages),
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if tools := convertOpenAITools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Provider: c.Name(), Type: ErrorServerError, Message: "response has no choices"}
	}

	return convertOpenAIResponse(resp), nil
}

func (c *OpenAIClient) classify(err error) *Error {
	llmErr := &Error{Provider: c.Name(), Message: "chat completion failed", Err: err}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		llmErr.StatusCode = apiErr.StatusCode
		llmErr.Type = classifyStatus(apiErr.StatusCode)
		if msg := apiErrorMessage(apiErr); msg != "" {
			llmErr.Message = msg
		}
		return llmErr
	}
	llmErr.Type = classifyTransport(err)
	return llmErr
}

// apiErrorMessage returns the provider's message. Proxies such as LiteLLM
// may answer with {"detail": ...} or plain text instead of an OpenAI error
// object, in which case the raw body is used.
func apiErrorMessage(apiErr *openai.Error) string {
	if apiErr.Message != "" {
		return apiErr.Message
	}
	if apiErr.Response == nil || apiErr.Response.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(apiErr.Response.Body, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}

func convertOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessageParamUnion {
	var msgs []openai.ChatCompletionMessageParamUnion

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(m.ToolCalls))
				for i, tc := range m.ToolCalls {
					toolCalls[i] = openai.ChatCompletionMessageToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					}
				}
				asst := openai.ChatCompletionAssistantMessageParam{
					ToolCalls: toolCalls,
				}
				if m.Content != "" {
					asst.Content.OfString = openai.String(m.Content)
				}
				msgs = append(msgs, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
			} else {
				msgs = append(msgs, openai.AssistantMessage(m.Content))
			}
		case RoleTool:
			msgs = append(msgs, openai.ToolMessage(m.Content, m.ToolCallID))
		}
	}
	return msgs
}

func convertOpenAITools(tools []Tool) []openai.ChatCompletionToolParam {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		var params map[string]interface{}
		if len(t.Function.Parameters) > 0 {
			_ = json.Unmarshal(t.Function.Parameters, &params)
		}
		result[i] = openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Function.Name,
				Description: openai.String(t.Function.Description),
				Parameters:  openai.FunctionParameters(params),
			},
		}
	}
	return result
}

func convertOpenAIResponse(resp *openai.ChatCompletion) *ChatCompletionResponse {
	out := &ChatCompletionResponse{
		ID:      resp.ID,
		Object:  "chat.completion",
		Created: resp.Created,
		Model:   resp.Model,
		Usage: &Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for i, choice := range resp.Choices {
		msg := &ChatMessage{Role: RoleAssistant, Content: choice.Message.Content}
		for _, tc := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: ToolCallFunction{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out.Choices = append(out.Choices, Choice{Index: i, Message: msg, FinishReason: string(choice.FinishReason)})
	}
	return out
}
