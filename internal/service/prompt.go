package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wrapshot/agent/internal/adapter/llm"
	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/jsonrepair"
	"github.com/wrapshot/agent/internal/tools"
)

const systemPrompt = `You are the production assistant of a film production office.
You manage the project's scenes, cast, locations, shooting days, breakdown elements and crew through the tools provided.

Rules:
- Use the read tools (get_*) to look things up before answering. Never invent ids.
- Changes and deletions are shown to the user for approval before they run. Propose them as tool calls; do not ask for permission in text.
- Propose all the changes a request needs in one batch, in the order they must run.
- When a later change needs the id created by an earlier one in the same batch, pass the object {"$ref": "N.id"} as that argument, where N is the 1-based position of the earlier call. Any other value, such as "$5", is taken literally.
- Keep answers short and specific to the production.`

// buildConversation turns stored history into provider messages. Metadata is
// rendered as text so the model can see what was proposed and what ran.
func buildConversation(history []domain.Message) []llm.ChatMessage {
	conv := make([]llm.ChatMessage, 0, len(history)+1)
	conv = append(conv, llm.ChatMessage{Role: llm.RoleSystem, Content: systemPrompt})
	for _, m := range history {
		switch m.Role {
		case domain.RoleUser:
			conv = append(conv, llm.ChatMessage{Role: llm.RoleUser, Content: m.Content})
		case domain.RoleAssistant:
			content := m.Content
			if note := metadataNote(m.Metadata); note != "" {
				content = strings.TrimSpace(content + "\n\n" + note)
			}
			conv = append(conv, llm.ChatMessage{Role: llm.RoleAssistant, Content: content})
		}
	}
	return conv
}

func metadataNote(md *domain.MessageMetadata) string {
	if md == nil {
		return ""
	}
	switch md.Type {
	case domain.MetadataToolCallsAuto:
		names := make([]string, 0, len(md.ToolCalls))
		for _, c := range md.ToolCalls {
			names = append(names, c.ToolName)
		}
		return fmt.Sprintf("[looked up: %s]", strings.Join(names, ", "))
	case domain.MetadataConfirmationRequest:
		if md.Confirmation == nil {
			return ""
		}
		return fmt.Sprintf("[proposed, awaiting approval %s:\n%s]", md.Confirmation.ConfirmationID, describeActions(md.Confirmation.Actions))
	case domain.MetadataToolExecutionResult:
		return fmt.Sprintf("[plan %s executed, outcome %s:\n%s]", md.ConfirmationID, md.Outcome, describeResults(md.Results))
	case domain.MetadataConfirmationDeclined:
		return fmt.Sprintf("[plan %s declined by the user, nothing ran]", md.ConfirmationID)
	}
	return ""
}

func describeActions(actions []domain.PlannedAction) string {
	var b strings.Builder
	for i, a := range actions {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, a.Description)
	}
	return b.String()
}

// maxNoteData caps the result data replayed per step in history.
const maxNoteData = 1500

// describeResults lists what each step of an executed plan returned, so reads
// held in an approved batch reach the model on the next turn.
func describeResults(items []domain.ExecutionResultItem) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		if !item.Result.Success {
			fmt.Fprintf(&b, "%d. %s failed: %s", i+1, item.ToolName, item.Result.Error)
			continue
		}
		fmt.Fprintf(&b, "%d. %s ok", i+1, item.ToolName)
		if data := strings.TrimSpace(string(item.Result.Data)); data != "" {
			if len(data) > maxNoteData {
				data = strings.ToValidUTF8(data[:maxNoteData], "") + "...(truncated)"
			}
			b.WriteString(": ")
			b.WriteString(data)
		}
	}
	return b.String()
}

func toolSchemas(schemas []tools.Schema) []llm.Tool {
	out := make([]llm.Tool, 0, len(schemas))
	for _, sc := range schemas {
		out = append(out, llm.FunctionTool(sc.Name, sc.Description, sc.Parameters))
	}
	return out
}

// textToolCalls recovers tool calls that a provider without native tool
// calling wrote into its text reply. Accepted shapes are
// {"tool_calls":[...]}, a single call object, or an array of calls, where a
// call is {"name":..,"arguments":..} or {"function":{"name":..,"arguments":..}}.
func textToolCalls(content string) []llm.ToolCall {
	if !strings.Contains(content, "{") {
		return nil
	}
	v, ok := jsonrepair.ParseObject(content)
	if !ok {
		return nil
	}
	var items []any
	switch t := v.(type) {
	case map[string]any:
		if calls, ok := t["tool_calls"].([]any); ok {
			items = calls
		} else {
			items = []any{t}
		}
	case []any:
		items = t
	}

	var calls []llm.ToolCall
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil
		}
		if fn, ok := obj["function"].(map[string]any); ok {
			obj = fn
		}
		name, _ := obj["name"].(string)
		rawArgs, hasArgs := obj["arguments"]
		if !hasArgs {
			rawArgs, hasArgs = obj["args"]
		}
		if name == "" || !hasArgs {
			return nil
		}
		args, ok := rawArgs.(string)
		if !ok {
			encoded, err := json.Marshal(rawArgs)
			if err != nil {
				return nil
			}
			args = string(encoded)
		}
		calls = append(calls, llm.ToolCall{
			ID:       fmt.Sprintf("text_call_%d", i+1),
			Type:     "function",
			Function: llm.ToolCallFunction{Name: name, Arguments: args},
		})
	}
	return calls
}

// normalizeArgs returns the arguments of a call as a JSON object, repairing
// slightly malformed model output.
func normalizeArgs(raw string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "null" {
		return json.RawMessage(`{}`), nil
	}
	if json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}
	var obj map[string]any
	if err := jsonrepair.ParseInto(trimmed, &obj, jsonrepair.ExpectObject); err != nil {
		return nil, fmt.Errorf("%w: arguments are not a JSON object", domain.ErrInvalidArguments)
	}
	out, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArguments, err)
	}
	return out, nil
}
