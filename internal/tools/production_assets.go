package tools

import (
	"context"
	"fmt"

	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/production"
)

type createLocationParams struct {
	Name    string                  `json:"name"`
	Address domain.Optional[string] `json:"address,omitzero"`
	Notes   domain.Optional[string] `json:"notes,omitzero"`
}

type updateLocationParams struct {
	LocationID string                  `json:"location_id"`
	Name       domain.Optional[string] `json:"name,omitzero"`
	Address    domain.Optional[string] `json:"address,omitzero"`
	Notes      domain.Optional[string] `json:"notes,omitzero"`
}

const createLocationSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"address": {"type": ["string", "null"]},
		"notes": {"type": ["string", "null"]}
	},
	"required": ["name"],
	"additionalProperties": false
}`

const updateLocationSchema = `{
	"type": "object",
	"properties": {
		"location_id": {"type": "string", "minLength": 1},
		"name": {"type": ["string", "null"], "minLength": 1},
		"address": {"type": ["string", "null"]},
		"notes": {"type": ["string", "null"]}
	},
	"required": ["location_id"],
	"additionalProperties": false
}`

func (ts *toolset) locationTools() []Definition {
	locations := ts.client.Locations()

	create := MustNew(Spec[createLocationParams]{
		Name:        "create_location",
		Description: "Add a filming location.",
		Tier:        domain.TierMutate,
		Schema:      createLocationSchema,
		Run: func(ctx context.Context, p createLocationParams, tc domain.ToolContext) domain.ToolResult {
			created, err := locations.Create(ctx, tc.ProjectID, &production.Location{
				Name:    p.Name,
				Address: p.Address.OrElse(""),
				Notes:   p.Notes.OrElse(""),
			})
			if err != nil {
				return ts.fail("create_location", err)
			}
			return domain.OK(created)
		},
		Check: func(ctx context.Context, p createLocationParams, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			return verifyStored(ctx, locations, tc, result, func(got *production.Location) []fieldCheck {
				checks := []fieldCheck{{field: "name", want: p.Name, got: got.Name}}
				checks = checkIfSet(checks, "address", p.Address, got.Address)
				return checkIfSet(checks, "notes", p.Notes, got.Notes)
			})
		},
		Summary: func(p createLocationParams) string {
			if a, ok := p.Address.Get(); ok {
				return fmt.Sprintf("Add location %s at %s", p.Name, a)
			}
			return fmt.Sprintf("Add location %s", p.Name)
		},
	})

	update := MustNew(Spec[updateLocationParams]{
		Name:        "update_location",
		Description: "Update a location. Only the fields provided are changed.",
		Tier:        domain.TierMutate,
		Schema:      updateLocationSchema,
		Run: func(ctx context.Context, p updateLocationParams, tc domain.ToolContext) domain.ToolResult {
			updated, err := locations.Update(ctx, tc.ProjectID, p.LocationID, func(l *production.Location) {
				setIfPresent(&l.Name, p.Name)
				setIfPresent(&l.Address, p.Address)
				setIfPresent(&l.Notes, p.Notes)
			})
			if err != nil {
				return ts.fail("update_location", err)
			}
			return domain.OK(updated)
		},
		Check: func(ctx context.Context, p updateLocationParams, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			return verifyStored(ctx, locations, tc, result, func(got *production.Location) []fieldCheck {
				checks := checkIfSet(nil, "name", p.Name, got.Name)
				checks = checkIfSet(checks, "address", p.Address, got.Address)
				return checkIfSet(checks, "notes", p.Notes, got.Notes)
			})
		},
		Summary: func(p updateLocationParams) string {
			changed := changedField(nil, "name", p.Name)
			changed = changedField(changed, "address", p.Address)
			changed = changedField(changed, "notes", p.Notes)
			return fmt.Sprintf("Update location %s (%s)", p.LocationID, describeChanges(changed))
		},
	})

	return []Definition{
		listTool(ts, "get_locations", "List the project's filming locations.", "locations", locations,
			func(l *production.Location) string { return l.Name + " " + l.Address }),
		create,
		update,
		deleteTool(ts, "delete_location", "Permanently remove a location.", "location_id", "location", locations),
	}
}

type elementFields struct {
	SceneIDs domain.Optional[[]string] `json:"scene_ids,omitzero"`
	Notes    domain.Optional[string]   `json:"notes,omitzero"`
}

type createElementParams struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	elementFields
}

type updateElementParams struct {
	ElementID string                  `json:"element_id"`
	Name      domain.Optional[string] `json:"name,omitzero"`
	Category  domain.Optional[string] `json:"category,omitzero"`
	elementFields
}

const elementProperties = `
		"scene_ids": {"type": ["array", "null"], "items": {"type": "string"}, "description": "Scenes the element appears in."},
		"notes": {"type": ["string", "null"]}`

const createElementSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"category": {"type": "string", "minLength": 1, "description": "e.g. prop, wardrobe, vehicle, animal, special effect."},` + elementProperties + `
	},
	"required": ["name", "category"],
	"additionalProperties": false
}`

const updateElementSchema = `{
	"type": "object",
	"properties": {
		"element_id": {"type": "string", "minLength": 1},
		"name": {"type": ["string", "null"], "minLength": 1},
		"category": {"type": ["string", "null"], "minLength": 1},` + elementProperties + `
	},
	"required": ["element_id"],
	"additionalProperties": false
}`

func (ts *toolset) elementTools() []Definition {
	elements := ts.client.Elements()

	create := MustNew(Spec[createElementParams]{
		Name:        "create_element",
		Description: "Add a breakdown element such as a prop, wardrobe item or vehicle.",
		Tier:        domain.TierMutate,
		Schema:      createElementSchema,
		Run: func(ctx context.Context, p createElementParams, tc domain.ToolContext) domain.ToolResult {
			created, err := elements.Create(ctx, tc.ProjectID, &production.Element{
				Name:     p.Name,
				Category: p.Category,
				SceneIDs: p.SceneIDs.OrElse(nil),
				Notes:    p.Notes.OrElse(""),
			})
			if err != nil {
				return ts.fail("create_element", err)
			}
			return domain.OK(created)
		},
		Check: func(ctx context.Context, p createElementParams, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			return verifyStored(ctx, elements, tc, result, func(got *production.Element) []fieldCheck {
				checks := []fieldCheck{
					{field: "name", want: p.Name, got: got.Name},
					{field: "category", want: p.Category, got: got.Category},
				}
				checks = checkIfSet(checks, "scene_ids", p.SceneIDs, got.SceneIDs)
				return checkIfSet(checks, "notes", p.Notes, got.Notes)
			})
		},
		Summary: func(p createElementParams) string {
			return fmt.Sprintf("Add %s %q to the breakdown", p.Category, p.Name)
		},
	})

	update := MustNew(Spec[updateElementParams]{
		Name:        "update_element",
		Description: "Update a breakdown element. Only the fields provided are changed.",
		Tier:        domain.TierMutate,
		Schema:      updateElementSchema,
		Run: func(ctx context.Context, p updateElementParams, tc domain.ToolContext) domain.ToolResult {
			updated, err := elements.Update(ctx, tc.ProjectID, p.ElementID, func(e *production.Element) {
				setIfPresent(&e.Name, p.Name)
				setIfPresent(&e.Category, p.Category)
				setIfPresent(&e.SceneIDs, p.SceneIDs)
				setIfPresent(&e.Notes, p.Notes)
			})
			if err != nil {
				return ts.fail("update_element", err)
			}
			return domain.OK(updated)
		},
		Check: func(ctx context.Context, p updateElementParams, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			return verifyStored(ctx, elements, tc, result, func(got *production.Element) []fieldCheck {
				checks := checkIfSet(nil, "name", p.Name, got.Name)
				checks = checkIfSet(checks, "category", p.Category, got.Category)
				checks = checkIfSet(checks, "scene_ids", p.SceneIDs, got.SceneIDs)
				return checkIfSet(checks, "notes", p.Notes, got.Notes)
			})
		},
		Summary: func(p updateElementParams) string {
			changed := changedField(nil, "name", p.Name)
			changed = changedField(changed, "category", p.Category)
			changed = changedField(changed, "scenes", p.SceneIDs)
			changed = changedField(changed, "notes", p.Notes)
			return fmt.Sprintf("Update element %s (%s)", p.ElementID, describeChanges(changed))
		},
	})

	return []Definition{
		listTool(ts, "get_elements", "List the project's breakdown elements by category.", "elements", elements,
			func(e *production.Element) string { return e.Name + " " + e.Category + " " + e.Notes }),
		create,
		update,
		deleteTool(ts, "delete_element", "Permanently remove a breakdown element.", "element_id", "element", elements),
	}
}
