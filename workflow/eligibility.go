package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	ds "gtarp/main_backend/database_service"
)

// BlockReason says why a new submission is refused.
type BlockReason string

const (
	ReasonNone     BlockReason = ""
	ReasonApproved BlockReason = "approved"
	ReasonOnHold   BlockReason = "on_hold"
	ReasonPending  BlockReason = "pending"
	ReasonCooldown BlockReason = "cooldown"
)

// Eligibility is the gate's answer for one user and one kind. Remaining and
// AvailableAt are only set for ReasonCooldown.
type Eligibility struct {
	Allowed     bool          `json:"allowed"`
	Reason      BlockReason   `json:"reason,omitempty"`
	Message     string        `json:"message,omitempty"`
	Remaining   time.Duration `json:"remaining_ns,omitempty"`
	AvailableAt *time.Time    `json:"available_at,omitempty"`
}

func (e Eligibility) same(o Eligibility) bool {
	if e.Allowed != o.Allowed || e.Reason != o.Reason {
		return false
	}
	if (e.AvailableAt == nil) != (o.AvailableAt == nil) {
		return false
	}
	return e.AvailableAt == nil || e.AvailableAt.Equal(*o.AvailableAt)
}

// rejectedAt is the cooldown reference of a rejected record.
func rejectedAt(a ds.Application) time.Time {
	if a.ReviewedAt != nil {
		return *a.ReviewedAt
	}
	return a.UpdatedAt
}

// EvaluateEligibility applies the gate to every record the user has of one
// kind. Precedence is fixed: any approved record blocks, then on hold, then
// pending, then a rejection still inside the cooldown. Only the rejection
// block expires.
func EvaluateEligibility(records []ds.Application, cooldown time.Duration, now time.Time) Eligibility {
	var approved, onHold, pending bool
	var lastRejected time.Time
	for _, r := range records {
		switch r.Status {
		case ds.StatusApproved:
			approved = true
		case ds.StatusOnHold:
			onHold = true
		case ds.StatusPending:
			pending = true
		case ds.StatusRejected:
			if at := rejectedAt(r); at.After(lastRejected) {
				lastRejected = at
			}
		}
	}

	switch {
	case approved:
		return Eligibility{Reason: ReasonApproved, Message: "Your application has already been approved."}
	case onHold:
		return Eligibility{Reason: ReasonOnHold, Message: "Your application is on hold. Staff will contact you."}
	case pending:
		return Eligibility{Reason: ReasonPending, Message: "You already have a pending application."}
	}

	if !lastRejected.IsZero() {
		available := lastRejected.Add(cooldown)
		if now.Before(available) {
			remaining := available.Sub(now)
			return Eligibility{
				Reason:      ReasonCooldown,
				Message:     fmt.Sprintf("You can reapply in %s.", formatRemaining(remaining)),
				Remaining:   remaining,
				AvailableAt: &available,
			}
		}
	}
	return Eligibility{Allowed: true}
}

func formatRemaining(d time.Duration) string {
	d = d.Round(time.Minute)
	if d < time.Minute {
		return "less than a minute"
	}
	h, m := int(d.Hours()), int(d.Minutes())%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

// EligibilityWatch configures WatchEligibility.
type EligibilityWatch struct {
	Load     func(ctx context.Context) ([]ds.Application, error)
	Cooldown time.Duration
	Poll     time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
}

// WatchEligibility emits the gate's answer whenever it changes. Records are
// reloaded on every poll tick and on every push; a timer set to the end of a
// cooldown flips a blocked user to allowed without a reload. The channel
// closes when ctx is done.
func WatchEligibility(ctx context.Context, w EligibilityWatch, push <-chan struct{}) <-chan Eligibility {
	if w.Now == nil {
		w.Now = time.Now
	}
	out := make(chan Eligibility)

	go func() {
		defer close(out)

		poll := time.NewTicker(w.Poll)
		defer poll.Stop()
		expiry := time.NewTimer(time.Hour)
		expiry.Stop()
		defer expiry.Stop()

		var records []ds.Application
		var last Eligibility
		first := true

		evaluate := func(reload bool) bool {
			if reload {
				r, err := w.Load(ctx)
				if err != nil {
					if ctx.Err() == nil && w.Logger != nil {
						w.Logger.Warn("eligibility reload failed", "error", err)
					}
					return true
				}
				records = r
			}
			now := w.Now()
			e := EvaluateEligibility(records, w.Cooldown, now)

			expiry.Stop()
			if e.AvailableAt != nil {
				expiry.Reset(e.AvailableAt.Sub(now))
			}

			if !first && e.same(last) {
				return true
			}
			first, last = false, e
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !evaluate(true) {
			return
		}
		for {
			reload := true
			select {
			case <-ctx.Done():
				return
			case <-poll.C:
			case <-expiry.C:
				reload = false
			case _, ok := <-push:
				if !ok {
					push = nil
					continue
				}
			}
			if !evaluate(reload) {
				return
			}
		}
	}()
	return out
}
