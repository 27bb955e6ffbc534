package catalogsync

import (
	"context"
	"time"

	"openprices_sync/internal/catalog"
	"openprices_sync/internal/core/models"
)

type Decision int

const (
	DecisionCreate Decision = iota
	DecisionUpdate
	DecisionSkip
)

func (d Decision) String() string {
	switch d {
	case DecisionCreate:
		return "create"
	case DecisionUpdate:
		return "update"
	case DecisionSkip:
		return "skip"
	}
	return "unknown"
}

type StateReader interface {
	SyncState(ctx context.Context, code string) (*models.SyncState, error)
}

// IsStale reports whether a stored product may be refreshed by a flavor
// record modified at modifiedAt: the row must belong to the flavor (or to
// nobody) and must not have been synced since the record changed.
func IsStale(state *models.SyncState, flavor catalog.Flavor, modifiedAt time.Time) bool {
	if state.Source != nil && *state.Source != string(flavor) {
		return false
	}
	return state.SourceLastSynced == nil || state.SourceLastSynced.Before(modifiedAt)
}

type Reconciler struct {
	store  StateReader
	flavor catalog.Flavor
}

func NewReconciler(store StateReader, flavor catalog.Flavor) *Reconciler {
	return &Reconciler{store: store, flavor: flavor}
}

// Decide classifies rec against the codes already synced from the flavor.
// Only known codes cost a storage lookup.
func (r *Reconciler) Decide(ctx context.Context, rec *catalog.Record, existing *catalog.CodeSet) (Decision, error) {
	if !existing.Contains(rec.Code) {
		return DecisionCreate, nil
	}

	state, err := r.store.SyncState(ctx, rec.Code)
	if err != nil {
		return DecisionSkip, err
	}
	if state == nil {
		return DecisionCreate, nil
	}
	if IsStale(state, r.flavor, rec.LastModifiedAt) {
		return DecisionUpdate, nil
	}
	return DecisionSkip, nil
}
