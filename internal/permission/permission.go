package permission

import (
	"time"

	permissionDatamodel "github.com/frahmantamala/backoffice/internal/core/datamodel/permission"
)

// Permission is a named action of the form "verb:resource".
type Permission struct {
	ID          int64     `json:"id"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func ToDataModel(p *Permission) *permissionDatamodel.Permission {
	return &permissionDatamodel.Permission{
		ID:          p.ID,
		Action:      p.Action,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func FromDataModel(p *permissionDatamodel.Permission) *Permission {
	return &Permission{
		ID:          p.ID,
		Action:      p.Action,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func fromDataModels(rows []*permissionDatamodel.Permission) []*Permission {
	out := make([]*Permission, 0, len(rows))
	for _, r := range rows {
		out = append(out, FromDataModel(r))
	}
	return out
}

// Actions flattens permissions into their action names.
func Actions(perms []*Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.Action)
	}
	return out
}
