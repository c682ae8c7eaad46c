package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/discordbot"
	"gtarp/main_backend/forms"
)

// TicketStore is the persistence the ticket service needs.
type TicketStore interface {
	InsertTicket(ctx context.Context, actor string, t ds.Ticket) (ds.Ticket, error)
	GetTicket(ctx context.Context, id string) (*ds.Ticket, error)
	ListTickets(ctx context.Context, f ds.TicketFilter, limit int) ([]ds.Ticket, error)
	UpdateTicket(ctx context.Context, actor string, id string, u ds.TicketUpdate) (ds.Ticket, error)
	InsertChatMessage(ctx context.Context, actor string, m ds.ChatMessage) (ds.ChatMessage, error)
	ListChatMessages(ctx context.Context, ticketID string) ([]ds.ChatMessage, error)
}

// NumberGenerator produces the human-readable ticket number.
type NumberGenerator interface {
	Generate(now time.Time) string
}

// RandomNumberGenerator yields T-YYYYMMDD-XXXXXX with a random suffix, so
// several portal instances can allocate numbers without coordination.
type RandomNumberGenerator struct{}

func (RandomNumberGenerator) Generate(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("T-%s-%s", now.UTC().Format("20060102"), suffix)
}

type CreateTicketCommand struct {
	User          ds.User           `json:"-"`
	Category      string            `json:"category" validate:"required,max=64"`
	Priority      ds.TicketPriority `json:"priority"`
	Subject       string            `json:"subject" validate:"required,min=3,max=200"`
	Description   string            `json:"description" validate:"required,min=10,max=5000"`
	AttachmentURL string            `json:"attachment_url" validate:"omitempty,url,max=512"`
}

type TicketStatusCommand struct {
	TicketID   string
	Status     ds.TicketStatus
	AdminNotes *string `json:"admin_notes" validate:"omitempty,max=2000"`
	Resolution *string `json:"resolution" validate:"omitempty,max=2000"`
	Staff      ds.User
}

type TicketResult struct {
	Ticket       ds.Ticket           `json:"ticket"`
	Notification NotificationOutcome `json:"notification"`
}

type ChatCommand struct {
	TicketID string  `json:"-"`
	Author   ds.User `json:"-"`
	Message  string  `json:"message" validate:"required,max=2000"`
}

type TicketService struct {
	store   TicketStore
	numbers NumberGenerator
	notify  *notifications
	busy    inFlight
	logger  *slog.Logger
	now     func() time.Time
}

func NewTicketService(store TicketStore, notifier Notifier, dedup Deduplicator, log NotificationLog, timeout time.Duration, logger *slog.Logger) *TicketService {
	return &TicketService{
		store:   store,
		numbers: RandomNumberGenerator{},
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

func isStaff(u ds.User) bool {
	return u.Role == ds.RoleStaff || u.Role == ds.RoleAdmin
}

// Create opens a ticket and announces it to the staff channel.
func (s *TicketService) Create(ctx context.Context, cmd CreateTicketCommand) (*TicketResult, error) {
	cmd.Category = forms.CleanText(cmd.Category)
	cmd.Subject = forms.CleanText(cmd.Subject)
	cmd.Description = forms.CleanText(cmd.Description)
	cmd.AttachmentURL = strings.TrimSpace(cmd.AttachmentURL)
	if cmd.Priority == "" {
		cmd.Priority = ds.PriorityNormal
	}
	if err := forms.ValidateStruct(cmd); err != nil {
		return nil, err
	}
	if !cmd.Priority.Valid() {
		return nil, apperrors.NewValidationError("Unknown priority", string(cmd.Priority))
	}

	t := ds.Ticket{
		TicketNumber: s.numbers.Generate(s.now()),
		UserID:       cmd.User.ID,
		Category:     cmd.Category,
		Priority:     cmd.Priority,
		Subject:      cmd.Subject,
		Description:  cmd.Description,
	}
	if cmd.User.DiscordUserID != 0 {
		id := fmt.Sprint(cmd.User.DiscordUserID)
		t.DiscordID = &id
	}
	if cmd.AttachmentURL != "" {
		t.AttachmentURL = &cmd.AttachmentURL
	}

	stored, err := s.store.InsertTicket(ctx, "ticket:"+cmd.User.ID, t)
	if err != nil {
		s.logger.Error("failed to create ticket", "user_id", cmd.User.ID, "error", err)
		return nil, apperrors.NewInternalError("Failed to create ticket")
	}
	s.logger.Info("ticket created", "ticket", stored.TicketNumber, "user_id", cmd.User.ID)

	res := &TicketResult{Ticket: stored}
	res.Notification = s.deliver(ctx, stored, ds.TicketOpen, "", "", true)
	return res, nil
}

// ChangeStatus moves a ticket and notifies its owner. Resolving requires a
// resolution; any other status clears it in the same write.
func (s *TicketService) ChangeStatus(ctx context.Context, cmd TicketStatusCommand) (*TicketResult, error) {
	if !isStaff(cmd.Staff) {
		return nil, apperrors.NewForbiddenError("Only staff can change ticket status")
	}
	if !cmd.Status.Valid() {
		return nil, apperrors.NewValidationError("Unknown ticket status", string(cmd.Status))
	}
	if err := forms.ValidateStruct(cmd); err != nil {
		return nil, err
	}

	update := ds.TicketUpdate{Status: cmd.Status, AdminNotes: trimmed(cmd.AdminNotes)}
	if cmd.Status == ds.TicketResolved {
		res := trimmed(cmd.Resolution)
		if res == nil {
			return nil, apperrors.NewFieldValidationError("Validation failed", map[string]string{
				"resolution": "resolution is required when resolving a ticket",
			})
		}
		by := cmd.Staff.DiscordUsername
		at := s.now().UTC()
		update.Resolution, update.ResolvedBy, update.ResolvedAt = res, &by, &at
	} else if trimmed(cmd.Resolution) != nil {
		return nil, apperrors.NewValidationError("A resolution can only be set when resolving a ticket")
	}

	release, ok := s.busy.acquire("ticket:" + cmd.TicketID)
	if !ok {
		return nil, apperrors.NewConflictError("This ticket is already being updated")
	}
	defer release()

	updated, err := s.store.UpdateTicket(ctx, "staff:"+cmd.Staff.ID, cmd.TicketID, update)
	if err != nil {
		if errors.Is(err, ds.ErrNotFound) {
			return nil, apperrors.NewNotFoundError("Ticket not found", cmd.TicketID)
		}
		s.logger.Error("failed to update ticket", "ticket_id", cmd.TicketID, "error", err)
		return nil, apperrors.NewInternalError("Failed to update ticket")
	}
	s.logger.Info("ticket status changed", "ticket", updated.TicketNumber, "status", updated.Status, "staff", cmd.Staff.ID)

	res := &TicketResult{Ticket: updated}
	res.Notification = s.deliver(ctx, updated, updated.Status, deref(update.AdminNotes), deref(updated.Resolution), false)
	return res, nil
}

// Notify dispatches a ticket notification on request and returns the posted
// message id. Unlike ChangeStatus, dispatch errors are returned.
func (s *TicketService) Notify(ctx context.Context, ticketID string, status ds.TicketStatus, adminNotes, resolution string, isNew bool) (string, error) {
	if s.notify.notifier == nil {
		return "", apperrors.NewConfigurationError("Discord is not configured")
	}
	t, err := s.Get(ctx, ticketID)
	if err != nil {
		return "", err
	}
	if status == "" {
		status = t.Status
	}
	return s.notify.notifier.DispatchTicket(ctx, discordbot.TicketNotice{
		Ticket:         *t,
		OwnerDiscordID: deref(t.DiscordID),
		Status:         status,
		AdminNotes:     adminNotes,
		Resolution:     resolution,
		IsNew:          isNew,
	})
}

func (s *TicketService) deliver(ctx context.Context, t ds.Ticket, status ds.TicketStatus, notes, resolution string, isNew bool) NotificationOutcome {
	notice := discordbot.TicketNotice{
		Ticket:         t,
		OwnerDiscordID: deref(t.DiscordID),
		Status:         status,
		AdminNotes:     notes,
		Resolution:     resolution,
		IsNew:          isNew,
	}
	key := string(status)
	if isNew {
		key = "new"
	}
	return s.notify.deliver(ctx, delivery{
		scope:     ScopeTicket,
		subjectID: t.ID,
		status:    key,
		payload:   ticketPayload(t.ID, status, notes, resolution, isNew),
		send: func(ctx context.Context) (string, error) {
			return s.notify.notifier.DispatchTicket(ctx, notice)
		},
	})
}

func ticketPayload(id string, status ds.TicketStatus, notes, resolution string, isNew bool) map[string]any {
	return map[string]any{
		"ticket_id":   id,
		"status":      string(status),
		"admin_notes": notes,
		"resolution":  resolution,
		"is_new":      isNew,
	}
}

// Get returns a ticket or a not-found error.
func (s *TicketService) Get(ctx context.Context, id string) (*ds.Ticket, error) {
	t, err := s.store.GetTicket(ctx, id)
	if err != nil {
		s.logger.Error("failed to load ticket", "ticket_id", id, "error", err)
		return nil, apperrors.NewInternalError("Failed to load ticket")
	}
	if t == nil {
		return nil, apperrors.NewNotFoundError("Ticket not found", id)
	}
	return t, nil
}

// GetFor returns a ticket visible to viewer: its owner or staff.
func (s *TicketService) GetFor(ctx context.Context, id string, viewer ds.User) (*ds.Ticket, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.UserID != viewer.ID && !isStaff(viewer) {
		// Same answer as a missing ticket so ids cannot be probed.
		return nil, apperrors.NewNotFoundError("Ticket not found", id)
	}
	return t, nil
}

// List returns the viewer's tickets, or every ticket for staff when all is set.
func (s *TicketService) List(ctx context.Context, viewer ds.User, all bool, status *ds.TicketStatus) ([]ds.Ticket, error) {
	f := ds.TicketFilter{Status: status}
	if !all || !isStaff(viewer) {
		f.UserID = &viewer.ID
	}
	tickets, err := s.store.ListTickets(ctx, f, 0)
	if err != nil {
		s.logger.Error("failed to list tickets", "user_id", viewer.ID, "error", err)
		return nil, apperrors.NewInternalError("Failed to list tickets")
	}
	return tickets, nil
}

// PostMessage appends a chat message to a ticket the author can see.
func (s *TicketService) PostMessage(ctx context.Context, cmd ChatCommand) (ds.ChatMessage, error) {
	cmd.Message = forms.CleanText(cmd.Message)
	if err := forms.ValidateStruct(cmd); err != nil {
		return ds.ChatMessage{}, err
	}
	t, err := s.GetFor(ctx, cmd.TicketID, cmd.Author)
	if err != nil {
		return ds.ChatMessage{}, err
	}
	if t.Status == ds.TicketResolved && !isStaff(cmd.Author) {
		return ds.ChatMessage{}, apperrors.NewValidationError("This ticket is resolved")
	}
	msg, err := s.store.InsertChatMessage(ctx, "chat:"+cmd.Author.ID, ds.ChatMessage{
		TicketID:   t.ID,
		AuthorID:   cmd.Author.ID,
		AuthorName: cmd.Author.DiscordUsername,
		IsStaff:    isStaff(cmd.Author),
		Message:    cmd.Message,
	})
	if err != nil {
		s.logger.Error("failed to store chat message", "ticket_id", t.ID, "error", err)
		return ds.ChatMessage{}, apperrors.NewInternalError("Failed to send message")
	}
	return msg, nil
}

// Messages returns the chat of a ticket the viewer can see.
func (s *TicketService) Messages(ctx context.Context, ticketID string, viewer ds.User) ([]ds.ChatMessage, error) {
	if _, err := s.GetFor(ctx, ticketID, viewer); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListChatMessages(ctx, ticketID)
	if err != nil {
		s.logger.Error("failed to list chat messages", "ticket_id", ticketID, "error", err)
		return nil, apperrors.NewInternalError("Failed to load messages")
	}
	return msgs, nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
