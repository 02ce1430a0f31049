package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/production"
)

type shootingDayFields struct {
	CallTime   domain.Optional[string] `json:"call_time,omitzero"`
	LocationID domain.Optional[string] `json:"location_id,omitzero"`
	Notes      domain.Optional[string] `json:"notes,omitzero"`
}

type createShootingDayParams struct {
	Date     string                    `json:"date"`
	SceneIDs domain.Optional[[]string] `json:"scene_ids,omitzero"`
	shootingDayFields
}

type updateShootingDayParams struct {
	ShootingDayID string                  `json:"shooting_day_id"`
	Date          domain.Optional[string] `json:"date,omitzero"`
	shootingDayFields
}

type assignSceneParams struct {
	sceneRef
	ShootingDayID string `json:"shooting_day_id"`
}

const shootingDayProperties = `
		"call_time": {"type": ["string", "null"], "description": "General crew call, e.g. \"06:30\"."},
		"location_id": {"type": ["string", "null"]},
		"notes": {"type": ["string", "null"]}`

const createShootingDaySchema = `{
	"type": "object",
	"properties": {
		"date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$", "description": "YYYY-MM-DD"},
		"scene_ids": {"type": ["array", "null"], "items": {"type": "string"}},` + shootingDayProperties + `
	},
	"required": ["date"],
	"additionalProperties": false
}`

const updateShootingDaySchema = `{
	"type": "object",
	"properties": {
		"shooting_day_id": {"type": "string", "minLength": 1},
		"date": {"type": ["string", "null"], "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},` + shootingDayProperties + `
	},
	"required": ["shooting_day_id"],
	"additionalProperties": false
}`

const assignSceneSchema = `{
	"type": "object",
	"properties": {` + sceneRefProperties + `,
		"shooting_day_id": {"type": "string", "minLength": 1, "description": "Shooting day id, or {\"$ref\": \"1.id\"} to use the id returned by an earlier action."}
	},
	"required": ["shooting_day_id"],
	` + sceneRefRequired + `,
	"additionalProperties": false
}`

func shootingDayChecks(checks []fieldCheck, f shootingDayFields, got *production.ShootingDay) []fieldCheck {
	checks = checkIfSet(checks, "call_time", f.CallTime, got.CallTime)
	checks = checkIfSet(checks, "location_id", f.LocationID, got.LocationID)
	return checkIfSet(checks, "notes", f.Notes, got.Notes)
}

type assignmentResult struct {
	ShootingDayID string   `json:"shooting_day_id"`
	SceneID       string   `json:"scene_id"`
	SceneIDs      []string `json:"scene_ids"`
}

func (ts *toolset) shootingDayTools() []Definition {
	days := ts.client.ShootingDays()

	create := MustNew(Spec[createShootingDayParams]{
		Name:        "create_shooting_day",
		Description: "Add a day to the shooting schedule.",
		Tier:        domain.TierMutate,
		Schema:      createShootingDaySchema,
		Run: func(ctx context.Context, p createShootingDayParams, tc domain.ToolContext) domain.ToolResult {
			created, err := days.Create(ctx, tc.ProjectID, &production.ShootingDay{
				Date:       p.Date,
				CallTime:   p.CallTime.OrElse(""),
				LocationID: p.LocationID.OrElse(""),
				SceneIDs:   p.SceneIDs.OrElse(nil),
				Notes:      p.Notes.OrElse(""),
			})
			if err != nil {
				return ts.fail("create_shooting_day", err)
			}
			return domain.OK(created)
		},
		Check: func(ctx context.Context, p createShootingDayParams, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			return verifyStored(ctx, days, tc, result, func(got *production.ShootingDay) []fieldCheck {
				checks := []fieldCheck{{field: "date", want: p.Date, got: got.Date}}
				checks = checkIfSet(checks, "scene_ids", p.SceneIDs, got.SceneIDs)
				return shootingDayChecks(checks, p.shootingDayFields, got)
			})
		},
		Summary: func(p createShootingDayParams) string {
			return fmt.Sprintf("Add shooting day on %s", p.Date)
		},
	})

	update := MustNew(Spec[updateShootingDayParams]{
		Name:        "update_shooting_day",
		Description: "Update a shooting day. Only the fields provided are changed.",
		Tier:        domain.TierMutate,
		Schema:      updateShootingDaySchema,
		Run: func(ctx context.Context, p updateShootingDayParams, tc domain.ToolContext) domain.ToolResult {
			updated, err := days.Update(ctx, tc.ProjectID, p.ShootingDayID, func(d *production.ShootingDay) {
				setIfPresent(&d.Date, p.Date)
				setIfPresent(&d.CallTime, p.CallTime)
				setIfPresent(&d.LocationID, p.LocationID)
				setIfPresent(&d.Notes, p.Notes)
			})
			if err != nil {
				return ts.fail("update_shooting_day", err)
			}
			return domain.OK(updated)
		},
		Check: func(ctx context.Context, p updateShootingDayParams, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			return verifyStored(ctx, days, tc, result, func(got *production.ShootingDay) []fieldCheck {
				return shootingDayChecks(checkIfSet(nil, "date", p.Date, got.Date), p.shootingDayFields, got)
			})
		},
		Summary: func(p updateShootingDayParams) string {
			changed := changedField(nil, "date", p.Date)
			changed = changedField(changed, "call time", p.CallTime)
			changed = changedField(changed, "location", p.LocationID)
			changed = changedField(changed, "notes", p.Notes)
			return fmt.Sprintf("Update shooting day %s (%s)", p.ShootingDayID, describeChanges(changed))
		},
	})

	assign := MustNew(Spec[assignSceneParams]{
		Name:        "assign_scene_to_shooting_day",
		Description: "Schedule a scene on a shooting day. Assigning a scene that is already on the day is a no-op.",
		Tier:        domain.TierMutate,
		Schema:      assignSceneSchema,
		Run: func(ctx context.Context, p assignSceneParams, tc domain.ToolContext) domain.ToolResult {
			scene, err := ts.findScene(ctx, tc.ProjectID, p.sceneRef)
			if err != nil {
				return ts.fail("assign_scene_to_shooting_day", err)
			}
			updated, err := days.Update(ctx, tc.ProjectID, p.ShootingDayID, func(d *production.ShootingDay) {
				if !slices.Contains(d.SceneIDs, scene.ID) {
					d.SceneIDs = append(d.SceneIDs, scene.ID)
				}
			})
			if err != nil {
				return ts.fail("assign_scene_to_shooting_day", err)
			}
			return domain.OK(assignmentResult{ShootingDayID: updated.ID, SceneID: scene.ID, SceneIDs: updated.SceneIDs})
		},
		Check: func(ctx context.Context, p assignSceneParams, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			var res assignmentResult
			_ = json.Unmarshal(result.Data, &res)
			expected := fmt.Sprintf("scene %s on shooting day %s", res.SceneID, p.ShootingDayID)
			day, err := days.Get(ctx, tc.ProjectID, p.ShootingDayID)
			if err != nil {
				return domain.VerificationResult{Expected: expected, Actual: err.Error(), Discrepancies: []string{"shooting day could not be re-read"}}
			}
			if !slices.Contains(day.SceneIDs, res.SceneID) {
				return domain.VerificationResult{
					Expected:      expected,
					Actual:        fmt.Sprintf("shooting day has scenes %v", day.SceneIDs),
					Discrepancies: []string{fmt.Sprintf("scene %s missing from shooting day %s", res.SceneID, p.ShootingDayID)},
				}
			}
			return domain.VerificationResult{Verified: true, Expected: expected, Actual: expected, Discrepancies: []string{}}
		},
		Summary: func(p assignSceneParams) string {
			return fmt.Sprintf("Schedule scene %s on shooting day %s", p.sceneRef, p.ShootingDayID)
		},
	})

	return []Definition{
		listTool(ts, "get_shooting_days", "List the shooting schedule: dates, call times, locations and scheduled scenes.", "shooting days", days,
			func(d *production.ShootingDay) string { return d.Date + " " + d.Notes }),
		create,
		update,
		assign,
		deleteTool(ts, "delete_shooting_day", "Permanently remove a shooting day from the schedule.", "shooting_day_id", "shooting day", days),
	}
}
