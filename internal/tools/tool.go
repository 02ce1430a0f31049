package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/wrapshot/agent/internal/domain"
)

// Definition is the contract every registered tool implements.
type Definition interface {
	Name() string
	Description() string
	Tier() domain.Tier
	// Schema returns the JSON schema of the tool's arguments.
	Schema() json.RawMessage
	// Validate checks args against the schema and the typed parameter struct.
	Validate(args json.RawMessage) error
	// Describe renders a one-sentence summary of what a call with args would do.
	Describe(args json.RawMessage) string
	Execute(ctx context.Context, args json.RawMessage, tc domain.ToolContext) domain.ToolResult
	// Verify re-checks the result of Execute. The bool is false when the tool
	// defines no verification.
	Verify(ctx context.Context, args json.RawMessage, result domain.ToolResult, tc domain.ToolContext) (*domain.VerificationResult, bool)
}

// Spec declares a tool whose arguments decode into P.
type Spec[P any] struct {
	Name        string
	Description string
	Tier        domain.Tier
	Schema      string
	Run         func(ctx context.Context, p P, tc domain.ToolContext) domain.ToolResult
	Check       func(ctx context.Context, p P, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult
	Summary     func(p P) string
}

// Tool adapts a Spec to Definition.
type Tool[P any] struct {
	spec   Spec[P]
	schema json.RawMessage
	sch    *jsonschema.Schema
}

// New compiles the parameter schema of spec and returns a tool.
func New[P any](spec Spec[P]) (*Tool[P], error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if !spec.Tier.Valid() {
		return nil, fmt.Errorf("tool %s: invalid tier %q", spec.Name, spec.Tier)
	}
	if spec.Run == nil {
		return nil, fmt.Errorf("tool %s: run function is required", spec.Name)
	}
	raw := strings.TrimSpace(spec.Schema)
	if raw == "" {
		raw = `{"type":"object","properties":{},"additionalProperties":false}`
	}
	var schemaObj any
	if err := json.Unmarshal([]byte(raw), &schemaObj); err != nil {
		return nil, fmt.Errorf("tool %s: schema is not valid JSON: %w", spec.Name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaObj); err != nil {
		return nil, fmt.Errorf("tool %s: schema compile error: %w", spec.Name, err)
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("tool %s: schema compile error: %w", spec.Name, err)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(raw)); err != nil {
		return nil, fmt.Errorf("tool %s: %w", spec.Name, err)
	}
	return &Tool[P]{spec: spec, schema: compact.Bytes(), sch: sch}, nil
}

// MustNew is like New but panics on error.
func MustNew[P any](spec Spec[P]) *Tool[P] {
	t, err := New(spec)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Tool[P]) Name() string            { return t.spec.Name }
func (t *Tool[P]) Description() string     { return t.spec.Description }
func (t *Tool[P]) Tier() domain.Tier       { return t.spec.Tier }
func (t *Tool[P]) Schema() json.RawMessage { return t.schema }

// Validate implements Definition.
func (t *Tool[P]) Validate(args json.RawMessage) error {
	_, err := t.decode(args)
	return err
}

// decode validates args against the schema, then strictly decodes them into P.
func (t *Tool[P]) decode(args json.RawMessage) (P, error) {
	var p P
	if len(bytes.TrimSpace(args)) == 0 || bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		args = json.RawMessage(`{}`)
	}
	var inst any
	if err := json.Unmarshal(args, &inst); err != nil {
		return p, fmt.Errorf("%w: %s: arguments are not valid JSON: %v", domain.ErrInvalidArguments, t.spec.Name, err)
	}
	if err := t.sch.Validate(inst); err != nil {
		return p, fmt.Errorf("%w: %s: %v", domain.ErrInvalidArguments, t.spec.Name, err)
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("%w: %s: %v", domain.ErrInvalidArguments, t.spec.Name, err)
	}
	return p, nil
}

// Describe implements Definition.
func (t *Tool[P]) Describe(args json.RawMessage) string {
	p, err := t.decode(args)
	if err != nil || t.spec.Summary == nil {
		return fmt.Sprintf("Run %s", t.spec.Name)
	}
	return t.spec.Summary(p)
}

// Execute implements Definition. Invalid arguments produce a failed result.
func (t *Tool[P]) Execute(ctx context.Context, args json.RawMessage, tc domain.ToolContext) domain.ToolResult {
	p, err := t.decode(args)
	if err != nil {
		return domain.Fail("%v", err)
	}
	return t.spec.Run(ctx, p, tc)
}

// Verify implements Definition.
func (t *Tool[P]) Verify(ctx context.Context, args json.RawMessage, result domain.ToolResult, tc domain.ToolContext) (*domain.VerificationResult, bool) {
	if t.spec.Check == nil {
		return nil, false
	}
	if !result.Success {
		return nil, false
	}
	p, err := t.decode(args)
	if err != nil {
		return nil, false
	}
	vr := t.spec.Check(ctx, p, result, tc)
	if vr.Discrepancies == nil {
		vr.Discrepancies = []string{}
	}
	return &vr, true
}
