package llm

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// FallbackClient tries clients in order, falling back on retryable errors.
type FallbackClient struct {
	clients []LLMClient
	logger  *zap.Logger
}

// NewFallbackClient creates a client chain. The first client is primary.
func NewFallbackClient(logger *zap.Logger, clients ...LLMClient) *FallbackClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackClient{clients: clients, logger: logger}
}

func (f *FallbackClient) Name() string {
	names := make([]string, len(f.clients))
	for i, c := range f.clients {
		names[i] = c.Name()
	}
	return strings.Join(names, "+")
}

// CreateChatCompletion implements LLMClient.
func (f *FallbackClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if len(f.clients) == 0 {
		return nil, errors.New("fallback client has no providers")
	}
	var lastErr error
	for _, c := range f.clients {
		resp, err := c.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryable(err) || ctx.Err() != nil {
			return nil, err
		}
		f.logger.Warn("llm provider failed, trying next", zap.String("provider", c.Name()), zap.Error(err))
	}
	return nil, lastErr
}
