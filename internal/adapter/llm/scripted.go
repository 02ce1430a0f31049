package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// ScriptedClient replays a fixed sequence of replies and records every
// request it receives. It fails once the script is exhausted.
type ScriptedClient struct {
	mu       sync.Mutex
	replies  []scriptedReply
	queued   int
	requests []*ChatCompletionRequest
}

type scriptedReply struct {
	msg *ChatMessage
	err error
}

// NewScriptedClient creates an empty script.
func NewScriptedClient() *ScriptedClient {
	return &ScriptedClient{}
}

func (s *ScriptedClient) Name() string { return "scripted" }

// ReplyText queues a plain text answer.
func (s *ScriptedClient) ReplyText(content string) *ScriptedClient {
	return s.push(scriptedReply{msg: &ChatMessage{Role: RoleAssistant, Content: content}})
}

// ReplyToolCalls queues a native tool-call answer. Each call is a tool name
// and its arguments, which are marshaled unless already a string.
func (s *ScriptedClient) ReplyToolCalls(content string, calls ...ScriptedCall) *ScriptedClient {
	s.mu.Lock()
	s.queued++
	turn := s.queued
	s.mu.Unlock()

	msg := &ChatMessage{Role: RoleAssistant, Content: content}
	for i, c := range calls {
		args, ok := c.Args.(string)
		if !ok {
			raw, err := json.Marshal(c.Args)
			if err != nil {
				panic(fmt.Sprintf("scripted call %s: %v", c.Name, err))
			}
			args = string(raw)
		}
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:       fmt.Sprintf("call_%d_%d", turn, i+1),
			Type:     "function",
			Function: ToolCallFunction{Name: c.Name, Arguments: args},
		})
	}
	return s.push(scriptedReply{msg: msg})
}

// ReplyError queues a provider failure.
func (s *ScriptedClient) ReplyError(err error) *ScriptedClient {
	return s.push(scriptedReply{err: err})
}

// ScriptedCall is one tool call in a scripted reply.
type ScriptedCall struct {
	Name string
	Args any
}

func (s *ScriptedClient) push(r scriptedReply) *ScriptedClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, r)
	return s
}

// CreateChatCompletion implements LLMClient.
func (s *ScriptedClient) CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := *req
	snapshot.Messages = append([]ChatMessage(nil), req.Messages...)
	s.requests = append(s.requests, &snapshot)

	if len(s.replies) == 0 {
		return nil, &Error{Provider: s.Name(), Type: ErrorServerError, Message: "script exhausted"}
	}
	next := s.replies[0]
	s.replies = s.replies[1:]
	if next.err != nil {
		return nil, next.err
	}
	return &ChatCompletionResponse{
		ID:      fmt.Sprintf("scripted-%d", len(s.requests)),
		Object:  "chat.completion",
		Model:   req.Model,
		Choices: []Choice{{Message: next.msg, FinishReason: finishReason(next.msg)}},
	}, nil
}

// Requests returns the requests received so far.
func (s *ScriptedClient) Requests() []*ChatCompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ChatCompletionRequest(nil), s.requests...)
}

// Remaining returns how many replies have not been consumed.
func (s *ScriptedClient) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}
