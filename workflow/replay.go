package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/discordbot"
)

// ReplayReport summarises one pass over undelivered notifications.
type ReplayReport struct {
	Attempted int      `json:"attempted"`
	Delivered int      `json:"delivered"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors,omitempty"`
}

// Replayer resends notifications recorded as undelivered.
type Replayer struct {
	notify  *notifications
	tickets TicketStore
	logger  *slog.Logger
}

func NewReplayer(notifier Notifier, dedup Deduplicator, log NotificationLog, tickets TicketStore, timeout time.Duration, logger *slog.Logger) *Replayer {
	return &Replayer{
		notify: &notifications{
			notifier: notifier,
			dedup:    dedup,
			log:      log,
			timeout:  timeout,
			logger:   logger,
		},
		tickets: tickets,
		logger:  logger,
	}
}

// ReplayFailed retries up to limit undelivered notifications, oldest first.
// Records that can no longer be rebuilt are counted as skipped.
func (r *Replayer) ReplayFailed(ctx context.Context, limit int) (ReplayReport, error) {
	var report ReplayReport
	if r.notify.log == nil {
		return report, nil
	}
	records, err := r.notify.log.ListFailedNotifications(ctx, limit)
	if err != nil {
		return report, fmt.Errorf("failed to list undelivered notifications: %w", err)
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		d, err := r.rebuild(ctx, rec)
		if err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("%s %s: %v", rec.Scope, rec.SubjectID, err))
			r.logger.Warn("cannot replay notification", "id", rec.ID, "scope", rec.Scope, "subject_id", rec.SubjectID, "error", err)
			continue
		}
		out := r.notify.deliver(ctx, d)
		if !out.Attempted {
			report.Skipped++
			continue
		}
		report.Attempted++
		if out.Delivered {
			report.Delivered++
		} else {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s %s: %s", rec.Scope, rec.SubjectID, out.Error))
		}
	}
	r.logger.Info("notification replay finished",
		"attempted", report.Attempted, "delivered", report.Delivered, "failed", report.Failed, "skipped", report.Skipped)
	return report, nil
}

func (r *Replayer) rebuild(ctx context.Context, rec ds.NotificationRecord) (delivery, error) {
	d := delivery{scope: rec.Scope, subjectID: rec.SubjectID, status: rec.Status, payload: rec.Payload}

	switch rec.Scope {
	case ScopeApplication:
		var notice discordbot.ApplicationNotice
		if err := remarshal(rec.Payload, &notice); err != nil {
			return delivery{}, err
		}
		if notice.ApplicationType == "" || notice.Status == "" {
			return delivery{}, fmt.Errorf("payload is missing the application type or status")
		}
		d.send = func(ctx context.Context) (string, error) {
			return r.notify.notifier.DispatchApplication(ctx, notice)
		}
		return d, nil

	case ScopeTicket:
		if r.tickets == nil {
			return delivery{}, fmt.Errorf("no ticket store configured")
		}
		var p struct {
			TicketID   string          `json:"ticket_id"`
			Status     ds.TicketStatus `json:"status"`
			AdminNotes string          `json:"admin_notes"`
			Resolution string          `json:"resolution"`
			IsNew      bool            `json:"is_new"`
		}
		if err := remarshal(rec.Payload, &p); err != nil {
			return delivery{}, err
		}
		if p.TicketID == "" {
			p.TicketID = rec.SubjectID
		}
		t, err := r.tickets.GetTicket(ctx, p.TicketID)
		if err != nil {
			return delivery{}, err
		}
		if t == nil {
			return delivery{}, fmt.Errorf("ticket %s no longer exists", p.TicketID)
		}
		notice := discordbot.TicketNotice{
			Ticket:         *t,
			OwnerDiscordID: deref(t.DiscordID),
			Status:         p.Status,
			AdminNotes:     p.AdminNotes,
			Resolution:     p.Resolution,
			IsNew:          p.IsNew,
		}
		d.send = func(ctx context.Context) (string, error) {
			return r.notify.notifier.DispatchTicket(ctx, notice)
		}
		return d, nil
	}
	return delivery{}, fmt.Errorf("unknown notification scope %q", rec.Scope)
}

func remarshal(in map[string]any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid notification payload: %w", err)
	}
	return nil
}
