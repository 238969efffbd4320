package engine

import (
	"fmt"
	"strings"
	"time"

	"opsboard/internal/directory"
	"opsboard/internal/domain"
)

// Engine owns the incident lifecycle rules: which fields may change, what the
// closed state requires, and how the board view is derived. It holds no
// remote state; every method shapes a payload that the remote system of
// record then judges.
type Engine struct {
	Now func() time.Time
}

func New() Engine {
	return Engine{Now: time.Now}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// IncidentDraft carries the fields a caller may supply when creating an
// incident. A zero Status means in_process.
type IncidentDraft struct {
	Description string
	UsedSources string
	Importance  domain.Importance
	Status      domain.Status
	WorkerID    string
	Solution    string
	Note        string
}

// ValidateForCreate checks a draft and shapes it into the creation payload:
// the incident date is stamped now, and the closed-state triple is either
// fully present (status closed, close date now, non-empty solution) or fully
// absent.
func (e Engine) ValidateForCreate(draft IncidentDraft) (domain.Incident, error) {
	if strings.TrimSpace(draft.Description) == "" {
		return domain.Incident{}, domain.Invalid("description", "must not be empty")
	}
	status := draft.Status
	if status == "" {
		status = domain.StatusInProcess
	}
	if err := knownStatus(status); err != nil {
		return domain.Incident{}, err
	}
	importance := draft.Importance
	if importance == "" {
		importance = domain.ImportanceMedium
	}
	if err := knownImportance(importance); err != nil {
		return domain.Incident{}, err
	}
	now := e.now()
	inc := domain.Incident{
		Description:  strings.TrimSpace(draft.Description),
		UsedSources:  draft.UsedSources,
		Importance:   importance,
		Status:       status,
		WorkerID:     normalizeWorker(draft.WorkerID),
		IncidentDate: now,
		Note:         draft.Note,
	}
	if status == domain.StatusClosed {
		if strings.TrimSpace(draft.Solution) == "" {
			return domain.Incident{}, domain.Invalid("solution", "required to close an incident")
		}
		closeDate := now
		inc.CloseDate = &closeDate
		inc.Solution = draft.Solution
	}
	return inc, nil
}

// IncidentEdits is a partial overlay for an existing incident. Nil pointers
// leave the current value untouched; a non-nil empty WorkerID unassigns.
type IncidentEdits struct {
	Description *string
	UsedSources *string
	Importance  *domain.Importance
	Status      *domain.Status
	WorkerID    *string
	Solution    *string
	Note        *string
}

// ValidateForTransition merges edits onto the current incident and re-applies
// the closed-state invariant. A transition into closed always re-stamps the
// close date; leaving closed clears close date and solution no matter what
// the edits carried. The result is the exact payload for the update call.
func (e Engine) ValidateForTransition(current domain.Incident, edits IncidentEdits) (domain.Incident, error) {
	if current.Status == domain.StatusArchived {
		return domain.Incident{}, domain.Invalid("status", "archived incidents cannot be edited")
	}
	merged := current
	if edits.Description != nil {
		merged.Description = strings.TrimSpace(*edits.Description)
	}
	if edits.UsedSources != nil {
		merged.UsedSources = *edits.UsedSources
	}
	if edits.Importance != nil {
		merged.Importance = *edits.Importance
	}
	if edits.Status != nil {
		merged.Status = *edits.Status
	}
	if edits.WorkerID != nil {
		merged.WorkerID = normalizeWorker(*edits.WorkerID)
	}
	if edits.Solution != nil {
		merged.Solution = *edits.Solution
	}
	if edits.Note != nil {
		merged.Note = *edits.Note
	}
	if merged.Description == "" {
		return domain.Incident{}, domain.Invalid("description", "must not be empty")
	}
	if err := knownStatus(merged.Status); err != nil {
		return domain.Incident{}, err
	}
	if err := knownImportance(merged.Importance); err != nil {
		return domain.Incident{}, err
	}
	if err := ensureTransition(current.Status, merged.Status); err != nil {
		return domain.Incident{}, err
	}
	if merged.Status == domain.StatusClosed {
		if strings.TrimSpace(merged.Solution) == "" {
			return domain.Incident{}, domain.Invalid("solution", "required to close an incident")
		}
		closeDate := e.now()
		merged.CloseDate = &closeDate
	} else {
		merged.CloseDate = nil
		merged.Solution = ""
	}
	return merged, nil
}

// Archive produces the archive transition: only the status changes.
// Whether the actor is allowed to archive is the remote's call.
func (e Engine) Archive(current domain.Incident) (domain.Incident, error) {
	if current.Status == domain.StatusArchived {
		return domain.Incident{}, domain.Invalid("status", "incident is already archived")
	}
	archived := current
	archived.Status = domain.StatusArchived
	return archived, nil
}

// GroupByStatus partitions incidents into the three board columns, keeping
// insertion order and decorating each entry with its resolved worker. Pure:
// calling it twice on the same input yields the same board.
func GroupByStatus(incidents []domain.Incident, admins []domain.Administrator) domain.Board {
	var board domain.Board
	for _, inc := range incidents {
		entry := domain.BoardIncident{Incident: inc, Worker: resolveWorker(admins, inc.WorkerID)}
		switch inc.Status {
		case domain.StatusClosed:
			board.Closed = append(board.Closed, entry)
		case domain.StatusArchived:
			board.Archived = append(board.Archived, entry)
		default:
			board.InProcess = append(board.InProcess, entry)
		}
	}
	return board
}

func resolveWorker(admins []domain.Administrator, workerID *string) domain.Worker {
	if workerID == nil || *workerID == "" {
		return domain.Worker{}
	}
	return directory.Resolve(admins, *workerID)
}

func ensureTransition(oldStatus, newStatus domain.Status) error {
	if oldStatus == newStatus {
		return nil
	}
	switch oldStatus {
	case domain.StatusInProcess:
		if newStatus == domain.StatusClosed || newStatus == domain.StatusArchived {
			return nil
		}
	case domain.StatusClosed:
		if newStatus == domain.StatusInProcess || newStatus == domain.StatusArchived {
			return nil
		}
	}
	return domain.Invalid("status", fmt.Sprintf("transition %s -> %s not allowed", oldStatus, newStatus))
}

func knownStatus(s domain.Status) error {
	switch s {
	case domain.StatusInProcess, domain.StatusClosed, domain.StatusArchived:
		return nil
	}
	return domain.Invalid("status", fmt.Sprintf("unknown status %q", s))
}

func knownImportance(i domain.Importance) error {
	switch i {
	case domain.ImportanceHigh, domain.ImportanceMedium, domain.ImportanceLow:
		return nil
	}
	return domain.Invalid("importance", fmt.Sprintf("unknown importance %q", i))
}

func normalizeWorker(id string) *string {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return &id
}
