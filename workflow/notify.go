package workflow

import (
	"context"
	"log/slog"
	"time"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/discordbot"
	"gtarp/main_backend/metrics"
)

// Notification scopes as stored in notification_log.
const (
	ScopeApplication = "application"
	ScopeTicket      = "ticket"
)

// Notifier posts rendered notifications; discordbot.Dispatcher implements it.
type Notifier interface {
	DispatchApplication(ctx context.Context, n discordbot.ApplicationNotice) (string, error)
	DispatchTicket(ctx context.Context, n discordbot.TicketNotice) (string, error)
}

// Deduplicator claims a (scope, subject, status) notification so a retried
// transition does not post twice. cache.NotificationDeduplicator implements it.
type Deduplicator interface {
	TryAcquire(ctx context.Context, scope, subjectID, status string) (bool, error)
	Release(ctx context.Context, scope, subjectID, status string) error
}

// NotificationLog persists dispatch outcomes for inspection and replay.
type NotificationLog interface {
	RecordNotification(ctx context.Context, rec ds.NotificationRecord) (ds.NotificationRecord, error)
	ListFailedNotifications(ctx context.Context, limit int) ([]ds.NotificationRecord, error)
}

// NotificationOutcome is the result of the best-effort phase of a mutation.
// It is reported alongside a successful result, never as its error.
type NotificationOutcome struct {
	Attempted bool   `json:"attempted"`
	Delivered bool   `json:"delivered"`
	Duplicate bool   `json:"duplicate,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// notifications runs the second phase shared by reviews, tickets and replay.
// dedup and log may be nil.
type notifications struct {
	notifier Notifier
	dedup    Deduplicator
	log      NotificationLog
	timeout  time.Duration
	logger   *slog.Logger
}

type delivery struct {
	scope     string
	subjectID string
	status    string
	payload   map[string]any
	send      func(ctx context.Context) (string, error)
}

func (n *notifications) deliver(ctx context.Context, d delivery) NotificationOutcome {
	if n == nil || n.notifier == nil {
		return NotificationOutcome{}
	}
	// The primary write has committed; a caller hanging up must not cancel
	// the post.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	log := n.logger.With("scope", d.scope, "subject_id", d.subjectID, "status", d.status)

	if n.dedup != nil {
		acquired, err := n.dedup.TryAcquire(ctx, d.scope, d.subjectID, d.status)
		switch {
		case err != nil:
			log.Warn("notification dedup unavailable, sending anyway", "error", err)
		case !acquired:
			log.Info("notification already sent for this transition")
			metrics.Notifications.WithLabelValues(d.scope, metrics.OutcomeSkipped).Inc()
			return NotificationOutcome{Duplicate: true}
		}
	}

	out := NotificationOutcome{Attempted: true}
	rec := ds.NotificationRecord{Scope: d.scope, SubjectID: d.subjectID, Status: d.status, Payload: d.payload}

	id, err := d.send(ctx)
	if err != nil {
		out.Error = publicMessage(err)
		msg := err.Error()
		rec.Error = &msg
		log.Error("notification failed", "error", err)
		metrics.Notifications.WithLabelValues(d.scope, metrics.OutcomeFailed).Inc()
		if n.dedup != nil {
			if rerr := n.dedup.Release(ctx, d.scope, d.subjectID, d.status); rerr != nil {
				log.Warn("failed to release notification key", "error", rerr)
			}
		}
	} else {
		out.Delivered, out.MessageID = true, id
		rec.Delivered, rec.MessageID = true, &id
		metrics.Notifications.WithLabelValues(d.scope, metrics.OutcomeDelivered).Inc()
	}

	if n.log != nil {
		if _, err := n.log.RecordNotification(ctx, rec); err != nil {
			log.Warn("failed to record notification outcome", "error", err)
		}
	}
	return out
}

// publicMessage keeps remote response bodies out of API responses.
func publicMessage(err error) string {
	if appErr := apperrors.Get(err); appErr != nil {
		return appErr.Message
	}
	return "notification could not be delivered"
}
