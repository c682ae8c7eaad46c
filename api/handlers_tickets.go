package api

import (
	"github.com/gin-gonic/gin"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/workflow"
)

func (s *Server) listTickets(c *gin.Context) {
	var status *ds.TicketStatus
	if st := c.Query("status"); st != "" {
		v := ds.TicketStatus(st)
		if !v.Valid() {
			errorWithError(c, apperrors.NewValidationError("Unknown ticket status", st))
			return
		}
		status = &v
	}
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	tickets, err := s.tickets.List(ctx, currentUser(c), c.Query("all") == "true", status)
	if err != nil {
		errorWithError(c, err)
		return
	}
	ok(c, tickets)
}

func (s *Server) createTicket(c *gin.Context) {
	var cmd workflow.CreateTicketCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		errorWithError(c, apperrors.NewValidationError("invalid request body"))
		return
	}
	cmd.User = currentUser(c)

	ctx, cancel := s.withTimeout(c)
	defer cancel()
	res, err := s.tickets.Create(ctx, cmd)
	if err != nil {
		errorWithError(c, err)
		return
	}
	created(c, res, "Ticket "+res.Ticket.TicketNumber+" created")
}

func (s *Server) getTicket(c *gin.Context) {
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	t, err := s.tickets.GetFor(ctx, c.Param("id"), currentUser(c))
	if err != nil {
		errorWithError(c, err)
		return
	}
	ok(c, t)
}

func (s *Server) listMessages(c *gin.Context) {
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	msgs, err := s.tickets.Messages(ctx, c.Param("id"), currentUser(c))
	if err != nil {
		errorWithError(c, err)
		return
	}
	ok(c, msgs)
}

func (s *Server) postMessage(c *gin.Context) {
	var cmd workflow.ChatCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		errorWithError(c, apperrors.NewValidationError("invalid request body"))
		return
	}
	cmd.TicketID = c.Param("id")
	cmd.Author = currentUser(c)

	ctx, cancel := s.withTimeout(c)
	defer cancel()
	msg, err := s.tickets.PostMessage(ctx, cmd)
	if err != nil {
		errorWithError(c, err)
		return
	}
	created(c, msg)
}

type ticketStatusRequest struct {
	Status     ds.TicketStatus `json:"status"`
	AdminNotes *string         `json:"admin_notes"`
	Resolution *string         `json:"resolution"`
}

func (s *Server) changeTicketStatus(c *gin.Context) {
	var req ticketStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorWithError(c, apperrors.NewValidationError("invalid request body"))
		return
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()
	res, err := s.tickets.ChangeStatus(ctx, workflow.TicketStatusCommand{
		TicketID:   c.Param("id"),
		Status:     req.Status,
		AdminNotes: cleanPtr(req.AdminNotes),
		Resolution: cleanPtr(req.Resolution),
		Staff:      currentUser(c),
	})
	if err != nil {
		errorWithError(c, err)
		return
	}
	ok(c, res, "Ticket status updated")
}
