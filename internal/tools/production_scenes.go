package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/production"
)

// sceneRef identifies a scene by id or by its script number.
type sceneRef struct {
	SceneID     domain.Optional[string] `json:"scene_id,omitzero"`
	SceneNumber domain.Optional[string] `json:"scene_number,omitzero"`
}

func (r sceneRef) String() string {
	if id, ok := r.SceneID.Get(); ok {
		return id
	}
	return r.SceneNumber.OrElse("?")
}

const sceneRefProperties = `
		"scene_id": {"type": ["string", "null"], "description": "Scene id, or {\"$ref\": \"1.id\"} to use the id returned by an earlier action."},
		"scene_number": {"type": ["string", "null"], "description": "Script scene number, e.g. \"14\" or \"12A\"."}`

const sceneRefRequired = `"anyOf": [{"required": ["scene_id"]}, {"required": ["scene_number"]}]`

// findScene resolves a sceneRef within the project.
func (ts *toolset) findScene(ctx context.Context, projectID string, ref sceneRef) (*production.Scene, error) {
	if id, ok := ref.SceneID.Get(); ok && id != "" {
		return ts.client.Scenes().Get(ctx, projectID, id)
	}
	number := strings.TrimSpace(ref.SceneNumber.OrElse(""))
	if number == "" {
		return nil, fmt.Errorf("%w: scene_id or scene_number is required", domain.ErrInvalidRequest)
	}
	scenes, err := ts.client.Scenes().List(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for i := range scenes {
		if strings.EqualFold(scenes[i].Number, number) {
			return &scenes[i], nil
		}
	}
	return nil, fmt.Errorf("scene %s: %w", number, domain.ErrNotFound)
}

type createSceneParams struct {
	Number      domain.Optional[string]   `json:"number,omitzero"`
	Heading     string                    `json:"heading"`
	Description domain.Optional[string]   `json:"description,omitzero"`
	PageCount   domain.Optional[float64]  `json:"page_count,omitzero"`
	LocationID  domain.Optional[string]   `json:"location_id,omitzero"`
	CastIDs     domain.Optional[[]string] `json:"cast_ids,omitzero"`
}

type updateSceneParams struct {
	sceneRef
	Number      domain.Optional[string]   `json:"number,omitzero"`
	Heading     domain.Optional[string]   `json:"heading,omitzero"`
	Description domain.Optional[string]   `json:"description,omitzero"`
	PageCount   domain.Optional[float64]  `json:"page_count,omitzero"`
	LocationID  domain.Optional[string]   `json:"location_id,omitzero"`
	CastIDs     domain.Optional[[]string] `json:"cast_ids,omitzero"`
}

type deleteSceneParams struct {
	sceneRef
}

const sceneFieldProperties = `
		"number": {"type": ["string", "null"], "description": "Script scene number."},
		"description": {"type": ["string", "null"]},
		"page_count": {"type": ["number", "null"], "minimum": 0, "description": "Length in pages, eighths allowed (e.g. 1.375)."},
		"location_id": {"type": ["string", "null"]},
		"cast_ids": {"type": ["array", "null"], "items": {"type": "string"}}`

var createSceneSchema = `{
	"type": "object",
	"properties": {
		"heading": {"type": "string", "minLength": 1, "description": "Slugline, e.g. \"INT. KITCHEN - NIGHT\"."},` + sceneFieldProperties + `
	},
	"required": ["heading"],
	"additionalProperties": false
}`

var updateSceneSchema = `{
	"type": "object",
	"properties": {` + sceneRefProperties + `,
		"heading": {"type": ["string", "null"], "minLength": 1},` + sceneFieldProperties + `
	},
	` + sceneRefRequired + `,
	"additionalProperties": false
}`

var deleteSceneSchema = `{
	"type": "object",
	"properties": {` + sceneRefProperties + `
	},
	` + sceneRefRequired + `,
	"additionalProperties": false
}`

func sceneText(s *production.Scene) string {
	return s.Number + " " + s.Heading + " " + s.Description
}

func (ts *toolset) sceneTools() []Definition {
	scenes := ts.client.Scenes()

	create := MustNew(Spec[createSceneParams]{
		Name:        "create_scene",
		Description: "Create a scene in the script breakdown.",
		Tier:        domain.TierMutate,
		Schema:      createSceneSchema,
		Run: func(ctx context.Context, p createSceneParams, tc domain.ToolContext) domain.ToolResult {
			scene := &production.Scene{
				Number:      p.Number.OrElse(""),
				Heading:     p.Heading,
				Description: p.Description.OrElse(""),
				PageCount:   p.PageCount.OrElse(0),
				LocationID:  p.LocationID.OrElse(""),
				CastIDs:     p.CastIDs.OrElse(nil),
			}
			created, err := scenes.Create(ctx, tc.ProjectID, scene)
			if err != nil {
				return ts.fail("create_scene", err)
			}
			return domain.OK(created)
		},
		Check: func(ctx context.Context, p createSceneParams, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			return verifyStored(ctx, scenes, tc, result, func(got *production.Scene) []fieldCheck {
				checks := []fieldCheck{{field: "heading", want: p.Heading, got: got.Heading}}
				checks = checkIfSet(checks, "number", p.Number, got.Number)
				checks = checkIfSet(checks, "description", p.Description, got.Description)
				checks = checkIfSet(checks, "page_count", p.PageCount, got.PageCount)
				checks = checkIfSet(checks, "location_id", p.LocationID, got.LocationID)
				return checkIfSet(checks, "cast_ids", p.CastIDs, got.CastIDs)
			})
		},
		Summary: func(p createSceneParams) string {
			if n, ok := p.Number.Get(); ok {
				return fmt.Sprintf("Create scene %s: %s", n, p.Heading)
			}
			return fmt.Sprintf("Create scene %q", p.Heading)
		},
	})

	update := MustNew(Spec[updateSceneParams]{
		Name:        "update_scene",
		Description: "Update fields of an existing scene. Only the fields provided are changed.",
		Tier:        domain.TierMutate,
		Schema:      updateSceneSchema,
		Run: func(ctx context.Context, p updateSceneParams, tc domain.ToolContext) domain.ToolResult {
			scene, err := ts.findScene(ctx, tc.ProjectID, p.sceneRef)
			if err != nil {
				return ts.fail("update_scene", err)
			}
			updated, err := scenes.Update(ctx, tc.ProjectID, scene.ID, func(s *production.Scene) {
				setIfPresent(&s.Number, p.Number)
				setIfPresent(&s.Heading, p.Heading)
				setIfPresent(&s.Description, p.Description)
				setIfPresent(&s.PageCount, p.PageCount)
				setIfPresent(&s.LocationID, p.LocationID)
				setIfPresent(&s.CastIDs, p.CastIDs)
			})
			if err != nil {
				return ts.fail("update_scene", err)
			}
			return domain.OK(updated)
		},
		Check: func(ctx context.Context, p updateSceneParams, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			return verifyStored(ctx, scenes, tc, result, func(got *production.Scene) []fieldCheck {
				var checks []fieldCheck
				checks = checkIfSet(checks, "number", p.Number, got.Number)
				checks = checkIfSet(checks, "heading", p.Heading, got.Heading)
				checks = checkIfSet(checks, "description", p.Description, got.Description)
				checks = checkIfSet(checks, "page_count", p.PageCount, got.PageCount)
				checks = checkIfSet(checks, "location_id", p.LocationID, got.LocationID)
				return checkIfSet(checks, "cast_ids", p.CastIDs, got.CastIDs)
			})
		},
		Summary: func(p updateSceneParams) string {
			var changed []string
			changed = changedField(changed, "number", p.Number)
			changed = changedField(changed, "heading", p.Heading)
			changed = changedField(changed, "description", p.Description)
			changed = changedField(changed, "page count", p.PageCount)
			changed = changedField(changed, "location", p.LocationID)
			changed = changedField(changed, "cast", p.CastIDs)
			return fmt.Sprintf("Update scene %s (%s)", p.sceneRef, describeChanges(changed))
		},
	})

	remove := MustNew(Spec[deleteSceneParams]{
		Name:        "delete_scene",
		Description: "Permanently delete a scene.",
		Tier:        domain.TierDestructive,
		Schema:      deleteSceneSchema,
		Run: func(ctx context.Context, p deleteSceneParams, tc domain.ToolContext) domain.ToolResult {
			scene, err := ts.findScene(ctx, tc.ProjectID, p.sceneRef)
			if err != nil {
				return ts.fail("delete_scene", err)
			}
			if err := scenes.Delete(ctx, tc.ProjectID, scene.ID); err != nil {
				return ts.fail("delete_scene", err)
			}
			return domain.OK(deletedResult{ID: scene.ID, Deleted: true})
		},
		Check: func(ctx context.Context, _ deleteSceneParams, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			return verifyDeleted(ctx, scenes, tc, resultID(result))
		},
		Summary: func(p deleteSceneParams) string {
			return fmt.Sprintf("Delete scene %s", p.sceneRef)
		},
	})

	list := listTool(ts, "get_scenes",
		"List the project's scenes with number, heading, page count, location and cast.",
		"scenes", scenes, sceneText)

	return []Definition{list, create, update, remove}
}
