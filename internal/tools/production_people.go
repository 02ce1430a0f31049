package tools

import (
	"context"
	"fmt"

	"github.com/wrapshot/agent/internal/domain"
	"github.com/wrapshot/agent/internal/production"
)

// Cast and crew tools.

type castMemberFields struct {
	Character domain.Optional[string] `json:"character,omitzero"`
	Email     domain.Optional[string] `json:"email,omitzero"`
	Phone     domain.Optional[string] `json:"phone,omitzero"`
}

type createCastMemberParams struct {
	Name string `json:"name"`
	castMemberFields
}

type updateCastMemberParams struct {
	CastMemberID string                  `json:"cast_member_id"`
	Name         domain.Optional[string] `json:"name,omitzero"`
	castMemberFields
}

const castMemberProperties = `
		"character": {"type": ["string", "null"], "description": "Character played."},
		"email": {"type": ["string", "null"]},
		"phone": {"type": ["string", "null"]}`

const createCastMemberSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "minLength": 1},` + castMemberProperties + `
	},
	"required": ["name"],
	"additionalProperties": false
}`

const updateCastMemberSchema = `{
	"type": "object",
	"properties": {
		"cast_member_id": {"type": "string", "minLength": 1},
		"name": {"type": ["string", "null"], "minLength": 1},` + castMemberProperties + `
	},
	"required": ["cast_member_id"],
	"additionalProperties": false
}`

func castMemberChecks(checks []fieldCheck, f castMemberFields, got *production.CastMember) []fieldCheck {
	checks = checkIfSet(checks, "character", f.Character, got.Character)
	checks = checkIfSet(checks, "email", f.Email, got.Email)
	return checkIfSet(checks, "phone", f.Phone, got.Phone)
}

func (ts *toolset) castTools() []Definition {
	cast := ts.client.Cast()

	create := MustNew(Spec[createCastMemberParams]{
		Name:        "create_cast_member",
		Description: "Add an actor to the cast list.",
		Tier:        domain.TierMutate,
		Schema:      createCastMemberSchema,
		Run: func(ctx context.Context, p createCastMemberParams, tc domain.ToolContext) domain.ToolResult {
			created, err := cast.Create(ctx, tc.ProjectID, &production.CastMember{
				Name:      p.Name,
				Character: p.Character.OrElse(""),
				Email:     p.Email.OrElse(""),
				Phone:     p.Phone.OrElse(""),
			})
			if err != nil {
				return ts.fail("create_cast_member", err)
			}
			return domain.OK(created)
		},
		Check: func(ctx context.Context, p createCastMemberParams, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			return verifyStored(ctx, cast, tc, result, func(got *production.CastMember) []fieldCheck {
				return castMemberChecks([]fieldCheck{{field: "name", want: p.Name, got: got.Name}}, p.castMemberFields, got)
			})
		},
		Summary: func(p createCastMemberParams) string {
			if c, ok := p.Character.Get(); ok {
				return fmt.Sprintf("Add %s to the cast as %s", p.Name, c)
			}
			return fmt.Sprintf("Add %s to the cast", p.Name)
		},
	})

	update := MustNew(Spec[updateCastMemberParams]{
		Name:        "update_cast_member",
		Description: "Update a cast member. Only the fields provided are changed.",
		Tier:        domain.TierMutate,
		Schema:      updateCastMemberSchema,
		Run: func(ctx context.Context, p updateCastMemberParams, tc domain.ToolContext) domain.ToolResult {
			updated, err := cast.Update(ctx, tc.ProjectID, p.CastMemberID, func(c *production.CastMember) {
				setIfPresent(&c.Name, p.Name)
				setIfPresent(&c.Character, p.Character)
				setIfPresent(&c.Email, p.Email)
				setIfPresent(&c.Phone, p.Phone)
			})
			if err != nil {
				return ts.fail("update_cast_member", err)
			}
			return domain.OK(updated)
		},
		Check: func(ctx context.Context, p updateCastMemberParams, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			return verifyStored(ctx, cast, tc, result, func(got *production.CastMember) []fieldCheck {
				return castMemberChecks(checkIfSet(nil, "name", p.Name, got.Name), p.castMemberFields, got)
			})
		},
		Summary: func(p updateCastMemberParams) string {
			changed := changedField(nil, "name", p.Name)
			changed = changedField(changed, "character", p.Character)
			changed = changedField(changed, "email", p.Email)
			changed = changedField(changed, "phone", p.Phone)
			return fmt.Sprintf("Update cast member %s (%s)", p.CastMemberID, describeChanges(changed))
		},
	})

	return []Definition{
		listTool(ts, "get_cast", "List the project's cast members and the characters they play.", "cast members", cast,
			func(c *production.CastMember) string { return c.Name + " " + c.Character }),
		create,
		update,
		deleteTool(ts, "delete_cast_member", "Permanently remove a cast member.", "cast_member_id", "cast member", cast),
	}
}

type crewMemberFields struct {
	Department domain.Optional[string] `json:"department,omitzero"`
	Role       domain.Optional[string] `json:"role,omitzero"`
	Email      domain.Optional[string] `json:"email,omitzero"`
	Phone      domain.Optional[string] `json:"phone,omitzero"`
}

type createCrewMemberParams struct {
	Name string `json:"name"`
	crewMemberFields
}

type updateCrewMemberParams struct {
	CrewMemberID string                  `json:"crew_member_id"`
	Name         domain.Optional[string] `json:"name,omitzero"`
	crewMemberFields
}

const crewMemberProperties = `
		"department": {"type": ["string", "null"], "description": "e.g. Camera, Grip, Art."},
		"role": {"type": ["string", "null"], "description": "e.g. 1st AC, Key Grip."},
		"email": {"type": ["string", "null"]},
		"phone": {"type": ["string", "null"]}`

const createCrewMemberSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string", "minLength": 1},` + crewMemberProperties + `
	},
	"required": ["name"],
	"additionalProperties": false
}`

const updateCrewMemberSchema = `{
	"type": "object",
	"properties": {
		"crew_member_id": {"type": "string", "minLength": 1},
		"name": {"type": ["string", "null"], "minLength": 1},` + crewMemberProperties + `
	},
	"required": ["crew_member_id"],
	"additionalProperties": false
}`

func crewMemberChecks(checks []fieldCheck, f crewMemberFields, got *production.CrewMember) []fieldCheck {
	checks = checkIfSet(checks, "department", f.Department, got.Department)
	checks = checkIfSet(checks, "role", f.Role, got.Role)
	checks = checkIfSet(checks, "email", f.Email, got.Email)
	return checkIfSet(checks, "phone", f.Phone, got.Phone)
}

func (ts *toolset) crewTools() []Definition {
	crew := ts.client.Crew()

	create := MustNew(Spec[createCrewMemberParams]{
		Name:        "create_crew_member",
		Description: "Add a person to the crew list.",
		Tier:        domain.TierMutate,
		Schema:      createCrewMemberSchema,
		Run: func(ctx context.Context, p createCrewMemberParams, tc domain.ToolContext) domain.ToolResult {
			created, err := crew.Create(ctx, tc.ProjectID, &production.CrewMember{
				Name:       p.Name,
				Department: p.Department.OrElse(""),
				Role:       p.Role.OrElse(""),
				Email:      p.Email.OrElse(""),
				Phone:      p.Phone.OrElse(""),
			})
			if err != nil {
				return ts.fail("create_crew_member", err)
			}
			return domain.OK(created)
		},
		Check: func(ctx context.Context, p createCrewMemberParams, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			return verifyStored(ctx, crew, tc, result, func(got *production.CrewMember) []fieldCheck {
				return crewMemberChecks([]fieldCheck{{field: "name", want: p.Name, got: got.Name}}, p.crewMemberFields, got)
			})
		},
		Summary: func(p createCrewMemberParams) string {
			if r, ok := p.Role.Get(); ok {
				return fmt.Sprintf("Add %s to the crew as %s", p.Name, r)
			}
			return fmt.Sprintf("Add %s to the crew", p.Name)
		},
	})

	update := MustNew(Spec[updateCrewMemberParams]{
		Name:        "update_crew_member",
		Description: "Update a crew member. Only the fields provided are changed.",
		Tier:        domain.TierMutate,
		Schema:      updateCrewMemberSchema,
		Run: func(ctx context.Context, p updateCrewMemberParams, tc domain.ToolContext) domain.ToolResult {
			updated, err := crew.Update(ctx, tc.ProjectID, p.CrewMemberID, func(c *production.CrewMember) {
				setIfPresent(&c.Name, p.Name)
				setIfPresent(&c.Department, p.Department)
				setIfPresent(&c.Role, p.Role)
				setIfPresent(&c.Email, p.Email)
				setIfPresent(&c.Phone, p.Phone)
			})
			if err != nil {
				return ts.fail("update_crew_member", err)
			}
			return domain.OK(updated)
		},
		Check: func(ctx context.Context, p updateCrewMemberParams, result domain.ToolResult, tc domain.ToolContext) domain.VerificationResult {
			return verifyStored(ctx, crew, tc, result, func(got *production.CrewMember) []fieldCheck {
				return crewMemberChecks(checkIfSet(nil, "name", p.Name, got.Name), p.crewMemberFields, got)
			})
		},
		Summary: func(p updateCrewMemberParams) string {
			changed := changedField(nil, "name", p.Name)
			changed = changedField(changed, "department", p.Department)
			changed = changedField(changed, "role", p.Role)
			changed = changedField(changed, "email", p.Email)
			changed = changedField(changed, "phone", p.Phone)
			return fmt.Sprintf("Update crew member %s (%s)", p.CrewMemberID, describeChanges(changed))
		},
	})

	return []Definition{
		listTool(ts, "get_crew", "List the project's crew with department and role.", "crew members", crew,
			func(c *production.CrewMember) string { return c.Name + " " + c.Department + " " + c.Role }),
		create,
		update,
		deleteTool(ts, "delete_crew_member", "Permanently remove a crew member.", "crew_member_id", "crew member", crew),
	}
}
