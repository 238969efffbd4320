// Package directory holds the rules for administrator accounts: who can be
// created, what may change afterwards, and how incidents resolve their
// assigned worker.
package directory

import (
	"strings"

	"opsboard/internal/domain"
)

// AdministratorDraft carries the fields for creating an administrator.
// IsActive defaults to true and Role to USER when left unset.
type AdministratorDraft struct {
	Username  string
	FirstName string
	LastName  string
	IsActive  *bool
	Role      domain.Role
}

// ValidateForCreate shapes a draft into the creation payload.
func ValidateForCreate(draft AdministratorDraft) (domain.Administrator, error) {
	username := strings.TrimSpace(draft.Username)
	first := strings.TrimSpace(draft.FirstName)
	last := strings.TrimSpace(draft.LastName)
	if username == "" {
		return domain.Administrator{}, domain.Invalid("username", "must not be empty")
	}
	if first == "" {
		return domain.Administrator{}, domain.Invalid("first_name", "must not be empty")
	}
	if last == "" {
		return domain.Administrator{}, domain.Invalid("last_name", "must not be empty")
	}
	role := draft.Role
	if role == "" {
		role = domain.RoleUser
	}
	if role != domain.RoleAdmin && role != domain.RoleUser {
		return domain.Administrator{}, domain.Invalid("role", "must be ADMIN or USER")
	}
	active := true
	if draft.IsActive != nil {
		active = *draft.IsActive
	}
	return domain.Administrator{
		Username:  username,
		FirstName: first,
		LastName:  last,
		IsActive:  active,
		Role:      role,
	}, nil
}

// AdministratorEdits is a partial overlay for an existing administrator.
// The username is immutable after creation and is never part of an update.
type AdministratorEdits struct {
	FirstName *string
	LastName  *string
	IsActive  *bool
	Role      *domain.Role
}

// ValidateForUpdate merges edits onto the existing administrator. The merged
// record keeps its id; the username is carried for local display but the
// update payload sent to the remote omits it.
func ValidateForUpdate(existing domain.Administrator, edits AdministratorEdits) (domain.Administrator, error) {
	merged := existing
	if edits.FirstName != nil {
		merged.FirstName = strings.TrimSpace(*edits.FirstName)
	}
	if edits.LastName != nil {
		merged.LastName = strings.TrimSpace(*edits.LastName)
	}
	if edits.IsActive != nil {
		merged.IsActive = *edits.IsActive
	}
	if edits.Role != nil {
		merged.Role = *edits.Role
	}
	if merged.FirstName == "" {
		return domain.Administrator{}, domain.Invalid("first_name", "must not be empty")
	}
	if merged.LastName == "" {
		return domain.Administrator{}, domain.Invalid("last_name", "must not be empty")
	}
	if merged.Role != domain.RoleAdmin && merged.Role != domain.RoleUser {
		return domain.Administrator{}, domain.Invalid("role", "must be ADMIN or USER")
	}
	return merged, nil
}

// Resolve returns the administrator with the given id, or the unassigned
// sentinel. Inactive administrators still resolve; they are only flagged at
// display time.
func Resolve(admins []domain.Administrator, id string) domain.Worker {
	for _, a := range admins {
		if a.ID == id {
			return domain.Worker{Assigned: true, Admin: a}
		}
	}
	return domain.Worker{}
}
