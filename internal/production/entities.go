// Package production is the CRUD surface of the production-management
// application: scenes, cast, locations, shooting days, elements, and crew.
package production

import (
	"fmt"
	"strings"
	"time"

	"github.com/wrapshot/agent/internal/domain"
)

// Kind names an entity type in the entity store.
type Kind string

const (
	KindScene       Kind = "scene"
	KindCastMember  Kind = "cast_member"
	KindLocation    Kind = "location"
	KindShootingDay Kind = "shooting_day"
	KindElement     Kind = "element"
	KindCrewMember  Kind = "crew_member"
)

var idPrefixes = map[Kind]string{
	KindScene:       "scn_",
	KindCastMember:  "cst_",
	KindLocation:    "loc_",
	KindShootingDay: "day_",
	KindElement:     "elm_",
	KindCrewMember:  "crw_",
}

// Meta holds the fields every entity carries.
type Meta struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scene represents one scene of the script breakdown.
type Scene struct {
	Meta
	Number      string   `json:"number"`
	Heading     string   `json:"heading"`
	Description string   `json:"description,omitempty"`
	PageCount   float64  `json:"page_count,omitempty"`
	LocationID  string   `json:"location_id,omitempty"`
	CastIDs     []string `json:"cast_ids,omitempty"`
}

// CastMember represents an actor attached to the production.
type CastMember struct {
	Meta
	Name      string `json:"name"`
	Character string `json:"character,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Location represents a filming location.
type Location struct {
	Meta
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// ShootingDay represents one day on the shooting schedule.
type ShootingDay struct {
	Meta
	Date       string   `json:"date"`
	CallTime   string   `json:"call_time,omitempty"`
	LocationID string   `json:"location_id,omitempty"`
	SceneIDs   []string `json:"scene_ids,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

// Element represents a breakdown element such as a prop or a vehicle.
type Element struct {
	Meta
	Name     string   `json:"name"`
	Category string   `json:"category"`
	SceneIDs []string `json:"scene_ids,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

// CrewMember represents a member of the crew.
type CrewMember struct {
	Meta
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
	Role       string `json:"role,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// DateLayout is the format of ShootingDay.Date.
const DateLayout = "2006-01-02"

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func validateScene(s *Scene) error {
	if strings.TrimSpace(s.Heading) == "" {
		return invalid("scene heading is required")
	}
	if s.PageCount < 0 {
		return invalid("page count cannot be negative")
	}
	return nil
}

func validateCastMember(c *CastMember) error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("cast member name is required")
	}
	return nil
}

func validateLocation(l *Location) error {
	if strings.TrimSpace(l.Name) == "" {
		return invalid("location name is required")
	}
	return nil
}

func validateShootingDay(d *ShootingDay) error {
	if _, err := time.Parse(DateLayout, d.Date); err != nil {
		return invalid("shooting day date %q must be YYYY-MM-DD", d.Date)
	}
	return nil
}

func validateElement(e *Element) error {
	if strings.TrimSpace(e.Name) == "" {
		return invalid("element name is required")
	}
	if strings.TrimSpace(e.Category) == "" {
		return invalid("element category is required")
	}
	return nil
}

func validateCrewMember(c *CrewMember) error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("crew member name is required")
	}
	return nil
}
