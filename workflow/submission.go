package workflow

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/forms"
	"gtarp/main_backend/metrics"
)

type SubmitCommand struct {
	User    ds.User
	Payload forms.Payload
}

// SubmissionService accepts new applications behind the eligibility gate.
type SubmissionService struct {
	store    ApplicationStore
	cooldown time.Duration
	busy     inFlight
	logger   *slog.Logger
	now      func() time.Time
}

func NewSubmissionService(store ApplicationStore, cooldown time.Duration, logger *slog.Logger) *SubmissionService {
	return &SubmissionService{store: store, cooldown: cooldown, logger: logger, now: time.Now}
}

// Eligibility evaluates the gate for user and kind.
func (s *SubmissionService) Eligibility(ctx context.Context, userID string, kind ds.Kind) (Eligibility, error) {
	if !kind.Valid() {
		return Eligibility{}, apperrors.NewValidationError("Unknown application type", string(kind))
	}
	records, err := s.store.ListUserApplications(ctx, kind, userID)
	if err != nil {
		s.logger.Error("failed to load previous applications", "user_id", userID, "kind", kind, "error", err)
		return Eligibility{}, apperrors.NewInternalError("Failed to load previous applications")
	}
	return EvaluateEligibility(records, s.cooldown, s.now()), nil
}

// Watch streams eligibility changes for user and kind. See WatchEligibility.
func (s *SubmissionService) Watch(ctx context.Context, userID string, kind ds.Kind, poll time.Duration, push <-chan struct{}) <-chan Eligibility {
	return WatchEligibility(ctx, EligibilityWatch{
		Load: func(ctx context.Context) ([]ds.Application, error) {
			return s.store.ListUserApplications(ctx, kind, userID)
		},
		Cooldown: s.cooldown,
		Poll:     poll,
		Now:      s.now,
		Logger:   s.logger,
	}, push)
}

// Submit validates the form, applies the gate and stores a new pending row.
// Every failure here happens before the insert.
func (s *SubmissionService) Submit(ctx context.Context, cmd SubmitCommand) (ds.Application, error) {
	if cmd.Payload == nil {
		return ds.Application{}, apperrors.NewValidationError("Application form is required")
	}
	kind := cmd.Payload.Kind()

	forms.Sanitize(cmd.Payload)
	if err := forms.Validate(cmd.Payload); err != nil {
		metrics.Submissions.WithLabelValues(string(kind), "invalid").Inc()
		return ds.Application{}, err
	}

	release, ok := s.busy.acquire(cmd.User.ID + ":" + string(kind))
	if !ok {
		return ds.Application{}, apperrors.NewConflictError("A submission is already being processed")
	}
	defer release()

	gate, err := s.Eligibility(ctx, cmd.User.ID, kind)
	if err != nil {
		return ds.Application{}, err
	}
	if !gate.Allowed {
		metrics.Submissions.WithLabelValues(string(kind), "blocked").Inc()
		return ds.Application{}, apperrors.NewValidationError(gate.Message, string(gate.Reason))
	}

	answers, err := forms.Encode(cmd.Payload)
	if err != nil {
		return ds.Application{}, apperrors.NewInternalError("Failed to encode application")
	}
	app := ds.Application{UserID: cmd.User.ID, Kind: kind, Answers: answers}
	if cmd.User.DiscordUserID != 0 {
		id := strconv.FormatInt(cmd.User.DiscordUserID, 10)
		app.DiscordID = &id
	}
	if cmd.User.DiscordUsername != "" {
		name := cmd.User.DiscordUsername
		app.DiscordUsername = &name
	}

	stored, err := s.store.InsertApplication(ctx, "submit:"+cmd.User.ID, app)
	if err != nil {
		s.logger.Error("failed to store application", "user_id", cmd.User.ID, "kind", kind, "error", err)
		return ds.Application{}, apperrors.NewInternalError("Failed to submit application")
	}
	metrics.Submissions.WithLabelValues(string(kind), "accepted").Inc()
	s.logger.Info("application submitted", "user_id", cmd.User.ID, "kind", kind, "application_id", stored.ID)
	return stored, nil
}
