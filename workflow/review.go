package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/discordbot"
	"gtarp/main_backend/forms"
	"gtarp/main_backend/metrics"
	"gtarp/main_backend/transformer"
)

// ApplicationStore is the persistence the application services need.
type ApplicationStore interface {
	InsertApplication(ctx context.Context, actor string, app ds.Application) (ds.Application, error)
	GetApplication(ctx context.Context, kind ds.Kind, id string) (*ds.Application, error)
	ListUserApplications(ctx context.Context, kind ds.Kind, userID string) ([]ds.Application, error)
	UpdateApplicationReview(ctx context.Context, actor string, kind ds.Kind, id string, u ds.ReviewUpdate) (ds.Application, error)
}

// inFlight rejects a second mutation of the same key while the first runs.
type inFlight struct {
	m sync.Map
}

func (f *inFlight) acquire(key string) (func(), bool) {
	if _, busy := f.m.LoadOrStore(key, struct{}{}); busy {
		return nil, false
	}
	return func() { f.m.Delete(key) }, true
}

type ReviewCommand struct {
	Kind          ds.Kind
	ApplicationID string
	Status        ds.Status
	AdminNotes    *string `json:"admin_notes" validate:"omitempty,max=2000"`
	Reviewer      ds.User
	// Force applies an administrative override and skips the transition check.
	Force bool
}

type ReviewResult struct {
	Application    ds.Application      `json:"application"`
	PreviousStatus ds.Status           `json:"previous_status"`
	Notification   NotificationOutcome `json:"notification"`
}

// ReviewService records review decisions. Review commits the status write
// first and only then notifies; a failed notification never undoes or fails
// the review.
type ReviewService struct {
	store  ApplicationStore
	notify *notifications
	busy   inFlight
	logger *slog.Logger
	now    func() time.Time
}

func NewReviewService(store ApplicationStore, notifier Notifier, dedup Deduplicator, log NotificationLog, timeout time.Duration, logger *slog.Logger) *ReviewService {
	return &ReviewService{
		store: store,
		notify: &notifications{
			notifier: notifier,
			dedup:    dedup,
			log:      log,
			timeout:  timeout,
			logger:   logger,
		},
		logger: logger,
		now:    time.Now,
	}
}

func (s *ReviewService) Review(ctx context.Context, cmd ReviewCommand) (*ReviewResult, error) {
	if !cmd.Kind.Valid() {
		return nil, apperrors.NewValidationError("Unknown application type", string(cmd.Kind))
	}
	if cmd.ApplicationID == "" {
		return nil, apperrors.NewValidationError("Application id is required")
	}
	if !cmd.Reviewer.CanReview(cmd.Kind) {
		return nil, apperrors.NewForbiddenError("You cannot review this application type")
	}
	if cmd.Force && cmd.Reviewer.Role != ds.RoleAdmin {
		return nil, apperrors.NewForbiddenError("Only admins can override the review flow")
	}
	if err := forms.ValidateStruct(cmd); err != nil {
		return nil, err
	}

	release, ok := s.busy.acquire(string(cmd.Kind) + ":" + cmd.ApplicationID)
	if !ok {
		return nil, apperrors.NewConflictError("A review of this application is already in progress")
	}
	defer release()

	log := s.logger.With("kind", cmd.Kind, "application_id", cmd.ApplicationID, "reviewer", cmd.Reviewer.ID)

	app, err := s.store.GetApplication(ctx, cmd.Kind, cmd.ApplicationID)
	if err != nil {
		log.Error("failed to load application", "error", err)
		return nil, apperrors.NewInternalError("Failed to load application")
	}
	if app == nil {
		return nil, apperrors.NewNotFoundError("Application not found", cmd.ApplicationID)
	}

	reviewer := cmd.Reviewer.DiscordUsername
	update, err := Decide(*app, cmd.Status, cmd.AdminNotes, reviewer, s.now(), cmd.Force)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateApplicationReview(ctx, "review:"+cmd.Reviewer.ID, cmd.Kind, cmd.ApplicationID, update)
	if err != nil {
		if errors.Is(err, ds.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("Application not found", cmd.ApplicationID)
		}
		log.Error("failed to update application", "error", err)
		return nil, apperrors.NewInternalError("Failed to update application")
	}
	metrics.Reviews.WithLabelValues(string(cmd.Kind), string(cmd.Status)).Inc()
	log.Info("application reviewed", "from", app.Status, "to", updated.Status, "forced", cmd.Force)

	result := &ReviewResult{Application: updated, PreviousStatus: app.Status}
	if cmd.Status == ds.StatusPending {
		// Nothing to announce when an override reopens an application.
		return result, nil
	}

	notice := applicationNotice(updated, cmd.Reviewer)
	result.Notification = s.notify.deliver(ctx, delivery{
		scope:     ScopeApplication,
		subjectID: string(updated.Kind) + ":" + updated.ID,
		status:    string(updated.Status),
		payload:   noticePayload(notice),
		send: func(ctx context.Context) (string, error) {
			return s.notify.notifier.DispatchApplication(ctx, notice)
		},
	})
	return result, nil
}

// applicationNotice builds the dispatcher request for a reviewed application.
func applicationNotice(app ds.Application, reviewer ds.User) discordbot.ApplicationNotice {
	n := discordbot.ApplicationNotice{
		ApplicationType: string(app.Kind),
		Status:          string(app.Status),
		ModeratorName:   reviewer.DiscordUsername,
	}
	if reviewer.DiscordUserID != 0 {
		n.ModeratorDiscordID = strconv.FormatInt(reviewer.DiscordUserID, 10)
	}
	if app.DiscordID != nil {
		n.ApplicantDiscordID = *app.DiscordID
	}
	if app.AdminNotes != nil {
		n.AdminNotes = *app.AdminNotes
	}
	if payload, err := forms.Decode(app.Kind, app.Answers); err == nil {
		n.ApplicantName = payload.ApplicantName()
		if job, ok := payload.(*forms.Job); ok {
			n.ApplicationType = discordbot.NotificationType(app.Kind, string(transformer.ClassifyJobType(job.JobType)))
		}
	}
	if n.ApplicantName == "" && app.DiscordUsername != nil {
		n.ApplicantName = *app.DiscordUsername
	}
	return n
}

func noticePayload(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("unencodable payload: %v", err)}
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}
