package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/darsh8000an/study-buddy-matcher/internal/logging"
	"github.com/darsh8000an/study-buddy-matcher/internal/models"
)

var errMirrorAppeared = errors.New("mirror relation appeared during repair")

// ReconcileReport summarises one pass over the drift ledger.
type ReconcileReport struct {
	Checked    int `json:"checked"`
	Repaired   int `json:"repaired"`
	Clean      int `json:"clean"`
	Failed     int `json:"failed"`
	Superseded int `json:"superseded"`
}

// Reconciler makes the counterpart side of each drifted pair match the
// authority side.
type Reconciler struct {
	repo   ProfileRepository
	ledger DriftLedger
	logger *logging.Logger
}

func NewReconciler(repo ProfileRepository, ledger DriftLedger, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default
	}
	return &Reconciler{repo: repo, ledger: ledger, logger: logger}
}

// Run repairs every pending entry. Entries that fail stay in the ledger for
// the next run. The returned error is only set when the ledger itself cannot
// be read or ctx ends.
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport

	entries, err := r.ledger.Pending(ctx)
	if err != nil {
		return report, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++

		fields := map[string]interface{}{
			"op":             entry.Op,
			"authority_id":   entry.AuthorityID.String(),
			"counterpart_id": entry.CounterpartID.String(),
		}

		changed, err := r.repair(ctx, entry)
		if err != nil {
			report.Failed++
			fields["error"] = err.Error()
			r.logger.Error("Failed to repair relation drift", fields)
			continue
		}
		if err := r.ledger.Resolve(ctx, entry); errors.Is(err, ErrDriftSuperseded) {
			report.Superseded++
			r.logger.Info("Drift entry superseded; leaving it for the next run", fields)
			continue
		} else if err != nil {
			report.Failed++
			fields["error"] = err.Error()
			r.logger.Error("Failed to resolve drift entry", fields)
			continue
		}

		if changed {
			report.Repaired++
			r.logger.Info("Repaired relation drift", fields)
		} else {
			report.Clean++
		}
	}

	return report, nil
}

func (r *Reconciler) repair(ctx context.Context, entry models.DriftEntry) (bool, error) {
	counterpart, err := r.repo.FindByID(ctx, entry.CounterpartID)
	if errors.Is(err, ErrProfileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("loading counterpart: %w", err)
	}
	mirror, hasMirror := counterpart.RelationTo(entry.AuthorityID)

	var rel *models.Relation
	authority, err := r.repo.FindByID(ctx, entry.AuthorityID)
	switch {
	case errors.Is(err, ErrProfileNotFound):
	case err != nil:
		return false, fmt.Errorf("loading authority: %w", err)
	default:
		rel, _ = authority.RelationTo(entry.CounterpartID)
	}

	if rel == nil {
		if !hasMirror {
			return false, nil
		}
		if err := r.repo.RemoveRelation(ctx, entry.CounterpartID, entry.AuthorityID); err != nil {
			return false, err
		}
		return true, nil
	}

	want := rel.Mirror(entry.AuthorityID)
	if !hasMirror {
		added, err := r.repo.AppendRelation(ctx, entry.CounterpartID, want)
		if err != nil {
			return false, err
		}
		if added {
			return true, nil
		}
		return false, errMirrorAppeared
	}

	if mirror.Direction != want.Direction {
		// Both sides claim the same role; rewrite the mirror from the authority.
		if err := r.repo.RemoveRelation(ctx, entry.CounterpartID, entry.AuthorityID); err != nil {
			return false, err
		}
		added, err := r.repo.AppendRelation(ctx, entry.CounterpartID, want)
		if err != nil {
			return false, err
		}
		if !added {
			return false, errMirrorAppeared
		}
		return true, nil
	}
	if mirror.Status == want.Status {
		return false, nil
	}
	if _, err := r.repo.UpdateRelationStatus(ctx, entry.CounterpartID, entry.AuthorityID, "", want.Status); err != nil {
		return false, err
	}
	return true, nil
}
