package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"

	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/production"
)

const defaultListLimit = 50

// toolset binds the production tools to one collaborator client.
type toolset struct {
	client *production.Client
	logger *zap.Logger
}

// NewProductionRegistry builds the frozen registry of production tools.
func NewProductionRegistry(client *production.Client, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	ts := &toolset{client: client, logger: logger}
	r := NewRegistry()
	for _, def := range ts.sceneTools() {
		r.MustRegister(def)
	}
	for _, def := range ts.castTools() {
		r.MustRegister(def)
	}
	for _, def := range ts.locationTools() {
		r.MustRegister(def)
	}
	for _, def := range ts.shootingDayTools() {
		r.MustRegister(def)
	}
	for _, def := range ts.elementTools() {
		r.MustRegister(def)
	}
	for _, def := range ts.crewTools() {
		r.MustRegister(def)
	}
	r.Freeze()
	return r
}

// fail converts a collaborator error into a failed result. Expected business
// failures are returned quietly; anything else is logged as unexpected.
func (ts *toolset) fail(tool string, err error) domain.ToolResult {
	if production.IsBusinessError(err) {
		return domain.Fail("%v", err)
	}
	ts.logger.Error("collaborator call failed", zap.String("tool", tool), zap.Error(err))
	return domain.Fail("%s failed: %v", tool, err)
}

// listParams are shared by every read tool.
type listParams struct {
	Query domain.Optional[string] `json:"query,omitzero"`
	Limit domain.Optional[int]    `json:"limit,omitzero"`
}

const listSchema = `{
	"type": "object",
	"properties": {
		"query": {"type": ["string", "null"], "description": "Case-insensitive text filter."},
		"limit": {"type": ["integer", "null"], "minimum": 1, "maximum": 500}
	},
	"additionalProperties": false
}`

type listResult[T any] struct {
	Count int `json:"count"`
	Items []T `json:"items"`
}

func listTool[T any](ts *toolset, name, description, noun string, coll *production.Collection[T], text func(*T) string) Definition {
	return MustNew(Spec[listParams]{
		Name:        name,
		Description: description,
		Tier:        domain.TierRead,
		Schema:      listSchema,
		Run: func(ctx context.Context, p listParams, tc domain.ToolContext) domain.ToolResult {
			all, err := coll.List(ctx, tc.ProjectID)
			if err != nil {
				return ts.fail(name, err)
			}
			query := strings.ToLower(strings.TrimSpace(p.Query.OrElse("")))
			items := make([]T, 0, len(all))
			for i := range all {
				if query == "" || strings.Contains(strings.ToLower(text(&all[i])), query) {
					items = append(items, all[i])
				}
			}
			count := len(items)
			if limit := p.Limit.OrElse(defaultListLimit); limit < len(items) {
				items = items[:limit]
			}
			return domain.OK(listResult[T]{Count: count, Items: items})
		},
		Summary: func(p listParams) string {
			if q, ok := p.Query.Get(); ok && q != "" {
				return fmt.Sprintf("List %s matching %q", noun, q)
			}
			return "List " + noun
		},
	})
}

// fieldCheck pairs a requested value with the stored one.
type fieldCheck struct {
	field string
	want  any
	got   any
}

func checkIfSet[V any](checks []fieldCheck, field string, o domain.Optional[V], got V) []fieldCheck {
	if want, ok := o.Get(); ok {
		checks = append(checks, fieldCheck{field: field, want: want, got: got})
	}
	return checks
}

func setIfPresent[V any](dst *V, o domain.Optional[V]) {
	if v, ok := o.Get(); ok {
		*dst = v
	}
}

func changedField[V any](names []string, field string, o domain.Optional[V]) []string {
	if o.IsSet() {
		names = append(names, field)
	}
	return names
}

func describeChanges(names []string) string {
	if len(names) == 0 {
		return "no fields"
	}
	return strings.Join(names, ", ")
}

func compareFields(checks []fieldCheck) domain.VerificationResult {
	expected := make([]string, 0, len(checks))
	actual := make([]string, 0, len(checks))
	discrepancies := []string{}
	for _, c := range checks {
		expected = append(expected, fmt.Sprintf("%s=%v", c.field, c.want))
		actual = append(actual, fmt.Sprintf("%s=%v", c.field, c.got))
		if !sameValue(c.want, c.got) {
			discrepancies = append(discrepancies, fmt.Sprintf("%s: expected %v, got %v", c.field, c.want, c.got))
		}
	}
	return domain.VerificationResult{
		Verified:      len(discrepancies) == 0,
		Expected:      strings.Join(expected, "; "),
		Actual:        strings.Join(actual, "; "),
		Discrepancies: discrepancies,
	}
}

func sameValue(want, got any) bool {
	if w, ok := want.([]string); ok {
		g, _ := got.([]string)
		if len(w) == 0 && len(g) == 0 {
			return true
		}
	}
	return reflect.DeepEqual(want, got)
}

func resultID(result domain.ToolResult) string {
	var ref struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result.Data, &ref); err != nil {
		return ""
	}
	return ref.ID
}

// verifyStored re-reads the entity named by the result and compares the
// requested fields against what the store now holds.
func verifyStored[T any](ctx context.Context, coll *production.Collection[T], tc domain.ToolContext, result domain.ToolResult, fields func(*T) []fieldCheck) domain.VerificationResult {
	id := resultID(result)
	if id == "" {
		return domain.VerificationResult{
			Expected:      fmt.Sprintf("%s id in result", coll.Kind()),
			Actual:        "no id",
			Discrepancies: []string{"result carries no entity id"},
		}
	}
	got, err := coll.Get(ctx, tc.ProjectID, id)
	if err != nil {
		return domain.VerificationResult{
			Expected:      fmt.Sprintf("%s %s exists", coll.Kind(), id),
			Actual:        err.Error(),
			Discrepancies: []string{fmt.Sprintf("%s %s could not be re-read", coll.Kind(), id)},
		}
	}
	return compareFields(fields(got))
}

// verifyDeleted expects the entity to be gone.
func verifyDeleted[T any](ctx context.Context, coll *production.Collection[T], tc domain.ToolContext, id string) domain.VerificationResult {
	expected := fmt.Sprintf("%s %s absent", coll.Kind(), id)
	_, err := coll.Get(ctx, tc.ProjectID, id)
	switch {
	case production.IsNotFound(err):
		return domain.VerificationResult{Verified: true, Expected: expected, Actual: "absent", Discrepancies: []string{}}
	case err != nil:
		return domain.VerificationResult{Expected: expected, Actual: err.Error(), Discrepancies: []string{"existence check failed"}}
	}
	return domain.VerificationResult{
		Expected:      expected,
		Actual:        "still present",
		Discrepancies: []string{fmt.Sprintf("%s %s still exists", coll.Kind(), id)},
	}
}

type deletedResult struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// deleteTool builds a destructive tool that removes one entity by id.
func deleteTool[T any](ts *toolset, name, description, idField, noun string, coll *production.Collection[T]) Definition {
	schema := fmt.Sprintf(`{
	"type": "object",
	"properties": {"%s": {"type": "string", "minLength": 1}},
	"required": ["%s"],
	"additionalProperties": false
}`, idField, idField)
	return MustNew(Spec[map[string]string]{
		Name:        name,
		Description: description,
		Tier:        domain.TierDestructive,
		Schema:      schema,
		Run: func(ctx context.Context, p map[string]string, tc domain.ToolContext) domain.ToolResult {
			id := p[idField]
			if err := coll.Delete(ctx, tc.ProjectID, id); err != nil {
				return ts.fail(name, err)
			}
			return domain.OK(deletedResult{ID: id, Deleted: true})
		},
		Check: func(ctx context.Context, p map[string]string, _ domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			return verifyDeleted(ctx, coll, tc, p[idField])
		},
		Summary: func(p map[string]string) string {
			return fmt.Sprintf("Delete %s %s", noun, p[idField])
		},
	})
}
