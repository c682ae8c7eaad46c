// Package workflow implements the application review lifecycle: legal
// transitions, the resubmission gate and the services that commit a change
// before notifying Discord.
package workflow

import (
	"slices"
	"time"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
)

var reviewActions = map[ds.Status][]ds.Status{
	ds.StatusPending: {ds.StatusApproved, ds.StatusRejected, ds.StatusOnHold, ds.StatusClosed},
	ds.StatusOnHold:  {ds.StatusApproved, ds.StatusRejected, ds.StatusClosed},
}

// ReviewActions returns the statuses a reviewer is offered from "from".
// Approved, rejected and closed applications offer nothing.
func ReviewActions(from ds.Status) []ds.Status {
	return slices.Clone(reviewActions[from])
}

func CanTransition(from, to ds.Status) bool {
	return slices.Contains(reviewActions[from], to)
}

// IsDecision reports whether entering s records a review decision.
func IsDecision(s ds.Status) bool {
	return s == ds.StatusApproved || s == ds.StatusRejected
}

// Decide builds the single write for a review. Entering approved or rejected
// stamps reviewer and time together with the status; other targets leave the
// stored review stamp alone, so reviewed_at is set iff a decision was ever
// recorded. force skips the transition check.
func Decide(app ds.Application, to ds.Status, notes *string, reviewer string, now time.Time, force bool) (ds.ReviewUpdate, error) {
	if !to.Valid() {
		return ds.ReviewUpdate{}, apperrors.NewValidationError("Unknown status", string(to))
	}
	if to == ds.StatusPending && !force {
		return ds.ReviewUpdate{}, apperrors.NewValidationError("Applications cannot be moved back to pending")
	}
	if !force && !CanTransition(app.Status, to) {
		return ds.ReviewUpdate{}, apperrors.NewValidationError(
			"Illegal status change", string(app.Status)+" -> "+string(to))
	}

	u := ds.ReviewUpdate{Status: to, AdminNotes: notes}
	if IsDecision(to) {
		if reviewer == "" {
			return ds.ReviewUpdate{}, apperrors.NewValidationError("Reviewer is required for a decision")
		}
		at := now.UTC()
		u.ReviewedBy = &reviewer
		u.ReviewedAt = &at
	}
	return u, nil
}
