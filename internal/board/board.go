// Package board orchestrates the lifecycle engine and the administrator
// directory against the remote service. It owns the in-memory incident and
// administrator collections for the lifetime of a board session: they are
// rebuilt on load and mutated only here, only after the remote confirms.
package board

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"opsboard/internal/directory"
	"opsboard/internal/domain"
	"opsboard/internal/engine"
)

var (
	// ErrNotFound means the entity is not in the local collections.
	ErrNotFound = errors.New("not found")
	// ErrMutationInFlight means a mutation for the same action is still
	// outstanding; re-invocation is refused to avoid duplicate submissions.
	ErrMutationInFlight = errors.New("mutation already in flight")
)

// Remote is the slice of the API client the reconciler needs.
type Remote interface {
	ListAdministrators(ctx context.Context) ([]domain.Administrator, error)
	ListIncidents(ctx context.Context) ([]domain.Incident, error)
	CreateIncident(ctx context.Context, payload domain.Incident) (domain.Incident, error)
	UpdateIncident(ctx context.Context, payload domain.Incident) (domain.Incident, error)
	ArchiveIncident(ctx context.Context, id string) error
	CreateAdministrator(ctx context.Context, payload domain.Administrator) (domain.Administrator, error)
	UpdateAdministrator(ctx context.Context, payload domain.Administrator) (domain.Administrator, error)
}

// Reconciler sequences validate -> remote call -> local merge. On any
// failure the collections are left exactly as they were.
type Reconciler struct {
	Engine engine.Engine
	Logger *log.Logger

	remote Remote

	mu        sync.Mutex
	gen       uint64
	incidents []domain.Incident
	admins    []domain.Administrator
	inflight  map[string]struct{}
}

func New(remote Remote) *Reconciler {
	return &Reconciler{
		Engine:   engine.New(),
		remote:   remote,
		inflight: make(map[string]struct{}),
	}
}

func (r *Reconciler) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}

// Load rebuilds both collections from the remote, fetching them
// concurrently. A session-expired failure aborts the load (the token is
// already cleared by the accessor); any other failure is recoverable and
// leaves prior state intact.
func (r *Reconciler) Load(ctx context.Context) error {
	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	var (
		incidents []domain.Incident
		admins    []domain.Administrator
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		incidents, err = r.remote.ListIncidents(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		admins, err = r.remote.ListAdministrators(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load board: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		r.logger().Printf("discarding stale board load (generation %d)", gen)
		return nil
	}
	r.incidents = incidents
	r.admins = admins
	return nil
}

// Reset drops interest in any outstanding results; responses that arrive for
// actions started before the reset are ignored rather than applied.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.incidents = nil
	r.admins = nil
}

// CreateIncident validates the draft, submits it, and appends the
// authoritative incident (with its server-assigned id) on success.
func (r *Reconciler) CreateIncident(ctx context.Context, draft engine.IncidentDraft) (domain.Incident, error) {
	payload, err := r.Engine.ValidateForCreate(draft)
	if err != nil {
		return domain.Incident{}, err
	}
	// Creates have no entity id yet; each submission is its own action.
	action := "incident/create/" + uuid.New().String()
	gen, err := r.begin(action)
	if err != nil {
		return domain.Incident{}, err
	}
	defer r.end(action)

	created, err := r.remote.CreateIncident(ctx, payload)
	if err != nil {
		return domain.Incident{}, err
	}
	r.merge(gen, "incident create", func() {
		r.incidents = append(r.incidents, created)
	})
	return created, nil
}

// UpdateIncident validates the edits against the current incident and
// replaces it in place by id once the remote confirms. Order is preserved.
func (r *Reconciler) UpdateIncident(ctx context.Context, id string, edits engine.IncidentEdits) (domain.Incident, error) {
	current, err := r.incidentByID(id)
	if err != nil {
		return domain.Incident{}, err
	}
	payload, err := r.Engine.ValidateForTransition(current, edits)
	if err != nil {
		return domain.Incident{}, err
	}
	action := "incident/" + id
	gen, err := r.begin(action)
	if err != nil {
		return domain.Incident{}, err
	}
	defer r.end(action)

	updated, err := r.remote.UpdateIncident(ctx, payload)
	if err != nil {
		return domain.Incident{}, err
	}
	r.merge(gen, "incident update", func() {
		for i := range r.incidents {
			if r.incidents[i].ID == updated.ID {
				r.incidents[i] = updated
				return
			}
		}
	})
	return updated, nil
}

// ArchiveIncident sends only the identifier and, on acknowledgement, flips
// the local status to archived without waiting for a re-fetch. On failure
// the status keeps its prior value.
func (r *Reconciler) ArchiveIncident(ctx context.Context, id string) error {
	current, err := r.incidentByID(id)
	if err != nil {
		return err
	}
	if _, err := r.Engine.Archive(current); err != nil {
		return err
	}
	action := "incident/" + id
	gen, err := r.begin(action)
	if err != nil {
		return err
	}
	defer r.end(action)

	if err := r.remote.ArchiveIncident(ctx, id); err != nil {
		return err
	}
	r.merge(gen, "incident archive", func() {
		for i := range r.incidents {
			if r.incidents[i].ID == id {
				r.incidents[i].Status = domain.StatusArchived
				return
			}
		}
	})
	return nil
}

// CreateAdministrator validates and submits a new administrator account.
func (r *Reconciler) CreateAdministrator(ctx context.Context, draft directory.AdministratorDraft) (domain.Administrator, error) {
	payload, err := directory.ValidateForCreate(draft)
	if err != nil {
		return domain.Administrator{}, err
	}
	action := "admin/create/" + uuid.New().String()
	gen, err := r.begin(action)
	if err != nil {
		return domain.Administrator{}, err
	}
	defer r.end(action)

	created, err := r.remote.CreateAdministrator(ctx, payload)
	if err != nil {
		return domain.Administrator{}, err
	}
	r.merge(gen, "administrator create", func() {
		r.admins = append(r.admins, created)
	})
	return created, nil
}

// UpdateAdministrator merges edits (username stays immutable) and replaces
// the account in place by id once the remote confirms.
func (r *Reconciler) UpdateAdministrator(ctx context.Context, id string, edits directory.AdministratorEdits) (domain.Administrator, error) {
	existing, err := r.administratorByID(id)
	if err != nil {
		return domain.Administrator{}, err
	}
	payload, err := directory.ValidateForUpdate(existing, edits)
	if err != nil {
		return domain.Administrator{}, err
	}
	action := "admin/" + id
	gen, err := r.begin(action)
	if err != nil {
		return domain.Administrator{}, err
	}
	defer r.end(action)

	updated, err := r.remote.UpdateAdministrator(ctx, payload)
	if err != nil {
		return domain.Administrator{}, err
	}
	if updated.Username == "" {
		// Username is not transmitted on update; keep the known one.
		updated.Username = existing.Username
	}
	r.merge(gen, "administrator update", func() {
		for i := range r.admins {
			if r.admins[i].ID == updated.ID {
				r.admins[i] = updated
				return
			}
		}
	})
	return updated, nil
}

// Board recomputes the per-column view from the current collections.
func (r *Reconciler) Board() domain.Board {
	r.mu.Lock()
	incidents := append([]domain.Incident(nil), r.incidents...)
	admins := append([]domain.Administrator(nil), r.admins...)
	r.mu.Unlock()
	return engine.GroupByStatus(incidents, admins)
}

// Incidents returns a copy of the incident collection.
func (r *Reconciler) Incidents() []domain.Incident {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Incident(nil), r.incidents...)
}

// Administrators returns a copy of the administrator collection.
func (r *Reconciler) Administrators() []domain.Administrator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Administrator(nil), r.admins...)
}

func (r *Reconciler) incidentByID(id string) (domain.Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inc := range r.incidents {
		if inc.ID == id {
			return inc, nil
		}
	}
	return domain.Incident{}, fmt.Errorf("incident %s: %w", id, ErrNotFound)
}

func (r *Reconciler) administratorByID(id string) (domain.Administrator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.admins {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Administrator{}, fmt.Errorf("administrator %s: %w", id, ErrNotFound)
}

// begin marks an action in flight and snapshots the generation its result
// may be applied to.
func (r *Reconciler) begin(action string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[action]; busy {
		return 0, fmt.Errorf("%s: %w", action, ErrMutationInFlight)
	}
	r.inflight[action] = struct{}{}
	return r.gen, nil
}

func (r *Reconciler) end(action string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, action)
}

// merge applies a confirmed mutation unless the board moved to a new
// generation while the call was outstanding; stale results are dropped.
func (r *Reconciler) merge(gen uint64, what string, apply func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		r.logger().Printf("ignoring %s result from a discarded action", what)
		return
	}
	apply()
}
