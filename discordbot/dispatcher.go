package discordbot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
)

// ApplicationNotice is the decision notification request. JSON names follow
// the public function contract.
type ApplicationNotice struct {
	ApplicationType    string `json:"applicationType"`
	ApplicantName      string `json:"applicantName"`
	ApplicantDiscordID string `json:"applicantDiscordId,omitempty"`
	Status             string `json:"status"`
	ModeratorName      string `json:"moderatorName"`
	ModeratorDiscordID string `json:"moderatorDiscordId,omitempty"`
	AdminNotes         string `json:"adminNotes,omitempty"`
}

// TicketNotice describes one ticket status change.
type TicketNotice struct {
	Ticket         ds.Ticket
	OwnerDiscordID string
	Status         ds.TicketStatus
	AdminNotes     string
	Resolution     string
	IsNew          bool
}

// Dispatcher renders and posts notifications. It never retries; callers
// decide whether a failed post is worth replaying.
type Dispatcher struct {
	client    Client
	lookup    func(key string) string
	imageBase string
	logger    *slog.Logger
	now       func() time.Time
}

// NewDispatcher wires a dispatcher. lookup resolves channel keys such as
// DISCORD_WHITELIST_CHANNEL_ID to ids.
func NewDispatcher(client Client, lookup func(string) string, imageBase string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client:    client,
		lookup:    lookup,
		imageBase: strings.TrimRight(imageBase, "/"),
		logger:    logger,
		now:       time.Now,
	}
}

// BuildApplicationMessage resolves routing and renders the message without
// sending it.
func (d *Dispatcher) BuildApplicationMessage(ctx context.Context, n ApplicationNotice) (string, *discordgo.MessageSend, error) {
	cfg, ok := lookupType(n.ApplicationType)
	if !ok {
		return "", nil, apperrors.NewConfigurationError("Unknown application type", n.ApplicationType)
	}
	channelID := d.lookup(cfg.ChannelEnv)
	if channelID == "" {
		return "", nil, apperrors.NewConfigurationError("Notification channel is not configured", cfg.ChannelEnv)
	}

	status := ds.Status(strings.ToLower(n.Status))
	var color int
	var verb, statusText string
	switch status {
	case ds.StatusApproved:
		color, verb, statusText = cfg.ApprovedColor, "approved", "✅ Approved"
	case ds.StatusRejected:
		color, verb, statusText = cfg.RejectedColor, "rejected", "❌ Rejected"
	case ds.StatusOnHold:
		color, verb, statusText = colorOnHold, "put on hold", "⏸️ On Hold"
	case ds.StatusClosed:
		color, verb, statusText = colorClosed, "closed", "🔒 Closed"
	default:
		return "", nil, apperrors.NewValidationError("Unsupported notification status", n.Status)
	}

	applicant := n.ApplicantName
	if applicant == "" {
		applicant = "Unknown applicant"
	}
	reviewer, avatar := d.reviewer(ctx, n.ModeratorName, n.ModeratorDiscordID)

	fields := []*discordgo.MessageEmbedField{
		{Name: "Applicant", Value: applicant, Inline: true},
		{Name: "Reviewer", Value: reviewer, Inline: true},
		{Name: "Status", Value: statusText, Inline: true},
	}
	if notes := strings.TrimSpace(n.AdminNotes); notes != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Notes", Value: clip(notes, 1024)})
	}
	if steps := nextSteps(cfg, status); steps != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Next Steps", Value: steps})
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s %s %s", cfg.Emoji, cfg.Title, statusWord(status)),
		Description: fmt.Sprintf("**%s**'s %s has been **%s** by the %s.", applicant, strings.ToLower(cfg.Title), verb, cfg.Department),
		Color:       color,
		Fields:      fields,
		Image:       &discordgo.MessageEmbedImage{URL: d.imageURL(cfg.ImageKey, string(status))},
		Footer:      &discordgo.MessageEmbedFooter{Text: cfg.Department},
		Author:      &discordgo.MessageEmbedAuthor{Name: reviewer, IconURL: avatar},
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	}

	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}
	if n.ApplicantDiscordID != "" {
		msg.Content = fmt.Sprintf("<@%s>", n.ApplicantDiscordID)
		msg.AllowedMentions = &discordgo.MessageAllowedMentions{Users: []string{n.ApplicantDiscordID}}
	}
	return channelID, msg, nil
}

// DispatchApplication posts a decision and returns the Discord message id.
func (d *Dispatcher) DispatchApplication(ctx context.Context, n ApplicationNotice) (string, error) {
	channelID, msg, err := d.BuildApplicationMessage(ctx, n)
	if err != nil {
		d.logger.Warn("application notification rejected", "type", n.ApplicationType, "status", n.Status, "error", err)
		return "", err
	}
	id, err := d.client.SendMessage(ctx, channelID, msg)
	if err != nil {
		d.logRemote("application notification failed", err, "type", n.ApplicationType, "channel", channelID)
		return "", err
	}
	d.logger.Info("application notification sent", "type", n.ApplicationType, "status", n.Status, "message_id", id)
	return id, nil
}

// BuildTicketMessage renders a ticket notification. New tickets go to the
// staff channel; every later change goes to the response channel and
// mentions the owner.
func (d *Dispatcher) BuildTicketMessage(n TicketNotice) (string, *discordgo.MessageSend, error) {
	key := string(n.Status)
	if n.IsNew && n.Status == ds.TicketOpen {
		key = "new"
	}
	tpl, ok := ticketTemplates[key]
	if !ok {
		return "", nil, apperrors.NewValidationError("Unsupported ticket status", string(n.Status))
	}

	channelEnv := ticketResponseChannelEnv
	if key == "new" {
		channelEnv = ticketStaffChannelEnv
	}
	channelID := d.lookup(channelEnv)
	if channelID == "" {
		return "", nil, apperrors.NewConfigurationError("Ticket channel is not configured", channelEnv)
	}

	t := n.Ticket
	fields := []*discordgo.MessageEmbedField{
		{Name: "Ticket", Value: t.TicketNumber, Inline: true},
		{Name: "Category", Value: orDash(t.Category), Inline: true},
		{Name: "Priority", Value: orDash(string(t.Priority)), Inline: true},
		{Name: "Subject", Value: clip(orDash(t.Subject), 1024)},
	}
	if key == "new" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Description", Value: clip(orDash(t.Description), 1024)})
	}
	if notes := strings.TrimSpace(n.AdminNotes); notes != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Staff Notes", Value: clip(notes, 1024)})
	}
	if res := strings.TrimSpace(n.Resolution); res != "" && n.Status == ds.TicketResolved {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Resolution", Value: clip(res, 1024)})
	}

	msg := &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{{
		Title:       fmt.Sprintf("%s · %s", tpl.Title, t.TicketNumber),
		Description: tpl.Description,
		Color:       tpl.Color,
		Fields:      fields,
		Image:       &discordgo.MessageEmbedImage{URL: fmt.Sprintf("%s/tickets/%s.png", d.imageBase, tpl.Image)},
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	}}}

	if key == "new" {
		if role := d.lookup(supportRoleEnv); role != "" {
			msg.Content = fmt.Sprintf("<@&%s>", role)
			msg.AllowedMentions = &discordgo.MessageAllowedMentions{Roles: []string{role}}
		}
	} else if n.OwnerDiscordID != "" {
		msg.Content = fmt.Sprintf("<@%s>", n.OwnerDiscordID)
		msg.AllowedMentions = &discordgo.MessageAllowedMentions{Users: []string{n.OwnerDiscordID}}
	}
	return channelID, msg, nil
}

// DispatchTicket posts a ticket notification and returns the message id.
func (d *Dispatcher) DispatchTicket(ctx context.Context, n TicketNotice) (string, error) {
	channelID, msg, err := d.BuildTicketMessage(n)
	if err != nil {
		d.logger.Warn("ticket notification rejected", "ticket", n.Ticket.TicketNumber, "status", n.Status, "error", err)
		return "", err
	}
	id, err := d.client.SendMessage(ctx, channelID, msg)
	if err != nil {
		d.logRemote("ticket notification failed", err, "ticket", n.Ticket.TicketNumber, "channel", channelID)
		return "", err
	}
	d.logger.Info("ticket notification sent", "ticket", n.Ticket.TicketNumber, "status", n.Status, "message_id", id)
	return id, nil
}

// reviewer resolves the reviewer's Discord display name and avatar. Lookup
// failures fall back to the supplied name.
func (d *Dispatcher) reviewer(ctx context.Context, name, discordID string) (string, string) {
	if name == "" {
		name = "Staff"
	}
	if discordID == "" {
		return name, ""
	}
	u, err := d.client.LookupUser(ctx, discordID)
	if err != nil || u == nil {
		d.logger.Debug("reviewer lookup failed", "discord_id", discordID, "error", err)
		return name, ""
	}
	display := u.DisplayName()
	if display == "" {
		display = name
	}
	return display, u.AvatarURL("128")
}

func (d *Dispatcher) imageURL(key, status string) string {
	stem, ok := images[key]
	if !ok {
		stem = "default"
	}
	return fmt.Sprintf("%s/applications/%s-%s.png", d.imageBase, stem, status)
}

func (d *Dispatcher) logRemote(msg string, err error, args ...any) {
	if appErr := apperrors.Get(err); appErr != nil && appErr.Details != "" {
		args = append(args, "response_body", appErr.Details)
	}
	d.logger.Error(msg, append(args, "error", err)...)
}

func nextSteps(cfg typeConfig, status ds.Status) string {
	switch status {
	case ds.StatusApproved:
		return cfg.NextSteps
	case ds.StatusRejected:
		return "You may submit a new application once the cooldown has passed. Please read the feedback above."
	case ds.StatusOnHold:
		return "No action needed yet. Staff will follow up once the review continues."
	}
	return ""
}

func statusWord(s ds.Status) string {
	switch s {
	case ds.StatusApproved:
		return "Approved"
	case ds.StatusRejected:
		return "Rejected"
	case ds.StatusOnHold:
		return "On Hold"
	case ds.StatusClosed:
		return "Closed"
	}
	return string(s)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
