package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/discordbot"
)

// The function routes keep the flat {success, messageId} / {error} shape the
// bot and older clients were built against, not the APIResponse envelope.

type functionError struct {
	Error string `json:"error"`
}

type applicationNotificationResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

type ticketNotificationRequest struct {
	TicketID   string          `json:"ticketId"`
	Status     ds.TicketStatus `json:"status"`
	AdminNotes string          `json:"adminNotes"`
	Resolution string          `json:"resolution"`
	IsNew      bool            `json:"isNew"`
}

type ticketNotificationResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
}

// functionFailure answers with the error's status. Callers hold the bot key,
// so remote response bodies are passed through.
func functionFailure(c *gin.Context, err error) {
	appErr := apperrors.Get(err)
	if appErr == nil {
		c.JSON(http.StatusInternalServerError, functionError{Error: err.Error()})
		return
	}
	msg := appErr.Message
	if appErr.Details != "" {
		msg += ": " + appErr.Details
	}
	c.JSON(appErr.Code, functionError{Error: msg})
}

func (s *Server) sendApplicationNotification(c *gin.Context) {
	var n discordbot.ApplicationNotice
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, functionError{Error: "invalid request body"})
		return
	}
	if n.ApplicationType == "" || n.ApplicantName == "" || n.ModeratorName == "" {
		c.JSON(http.StatusBadRequest, functionError{Error: "applicationType, applicantName and moderatorName are required"})
		return
	}

	if s.notifier == nil {
		functionFailure(c, apperrors.NewConfigurationError("Discord is not configured"))
		return
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()
	id, err := s.notifier.DispatchApplication(ctx, n)
	if err != nil {
		s.logger.Warn("application notification request failed", "type", n.ApplicationType, "status", n.Status, "error", err)
		functionFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, applicationNotificationResponse{Success: true, MessageID: id})
}

func (s *Server) sendTicketNotification(c *gin.Context) {
	var req ticketNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TicketID == "" {
		c.JSON(http.StatusBadRequest, functionError{Error: "ticketId is required"})
		return
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()
	id, err := s.tickets.Notify(ctx, req.TicketID, req.Status, req.AdminNotes, req.Resolution, req.IsNew)
	if err != nil {
		s.logger.Warn("ticket notification request failed", "ticket_id", req.TicketID, "status", req.Status, "error", err)
		functionFailure(c, err)
		return
	}
	c.JSON(http.StatusOK, ticketNotificationResponse{Success: true, MessageID: id})
}
