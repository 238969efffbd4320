package domain

import "time"

// Importance of an incident.
type Importance string

const (
	ImportanceHigh   Importance = "high"
	ImportanceMedium Importance = "medium"
	ImportanceLow    Importance = "low"
)

// Status is the lifecycle state of an incident.
// Transitions: in_process <-> closed -> archived; archived is terminal.
type Status string

const (
	StatusInProcess Status = "in_process"
	StatusClosed    Status = "closed"
	StatusArchived  Status = "archived"
)

// Role of an administrator account.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

type Incident struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	UsedSources  string     `json:"used_sources,omitempty"`
	Importance   Importance `json:"importance"`
	Status       Status     `json:"status"`
	WorkerID     *string    `json:"worker_id,omitempty"`
	IncidentDate time.Time  `json:"incident_date"`
	CloseDate    *time.Time `json:"close_date,omitempty"`
	Solution     string     `json:"solution,omitempty"`
	Note         string     `json:"note,omitempty"`
}

// Closed reports whether the incident carries the full closed-state triple.
func (i Incident) Closed() bool {
	return i.Status == StatusClosed && i.CloseDate != nil && i.Solution != ""
}

type Administrator struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsActive  bool   `json:"is_active"`
	Role      Role   `json:"role"`
}

// DisplayName is how an administrator is shown on cards and chips.
func (a Administrator) DisplayName() string {
	return a.FirstName + " " + a.LastName
}

// AlertEntry is a read-only monitoring record from the external alert log.
// It is fetched fresh on each view and never mutated locally.
type AlertEntry struct {
	Date        time.Time  `json:"date"`
	Number      int64      `json:"number"`
	Description string     `json:"description"`
	Importance  Importance `json:"importance"`
	Responsible string     `json:"responsible,omitempty"`
	Status      string     `json:"status,omitempty"`
	Resources   []string   `json:"resources,omitempty"`
	Solution    string     `json:"solution,omitempty"`
	Notes       string     `json:"notes,omitempty"`
}

// Worker is an incident's resolved responsible party. Unassigned incidents
// and dangling worker ids resolve to the zero Worker with Assigned=false.
type Worker struct {
	Assigned bool
	Admin    Administrator
}

// Label renders the worker for display, flagging inactive administrators.
func (w Worker) Label() string {
	if !w.Assigned {
		return "unassigned"
	}
	if !w.Admin.IsActive {
		return w.Admin.DisplayName() + " (inactive)"
	}
	return w.Admin.DisplayName()
}

// BoardIncident is an incident decorated with its resolved worker.
type BoardIncident struct {
	Incident
	Worker Worker `json:"worker"`
}

// Board is the per-column view of the incident collection, each column
// ordered by insertion.
type Board struct {
	InProcess []BoardIncident `json:"in_process"`
	Closed    []BoardIncident `json:"closed"`
	Archived  []BoardIncident `json:"archived"`
}
