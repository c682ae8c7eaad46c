package api

import (
	"github.com/gin-gonic/gin"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/discordbot"
	"gtarp/main_backend/realtime"
)

func (s *Server) staffAvailability(c *gin.Context) {
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	rows, err := s.staff.Availability(ctx, c.Query("department"))
	if err != nil {
		errorWithError(c, err)
		return
	}
	ok(c, rows)
}

type availabilityRequest struct {
	Department string `json:"department"`
	Available  bool   `json:"available"`
}

func (s *Server) setStaffAvailability(c *gin.Context) {
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorWithError(c, apperrors.NewValidationError("invalid request body"))
		return
	}
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	row, err := s.staff.SetAvailability(ctx, currentUser(c), req.Department, req.Available)
	if err != nil {
		errorWithError(c, err)
		return
	}
	ok(c, row)
}

// watchStaffAvailability streams the presence board of one department, or all
// of them when none is given.
func (s *Server) watchStaffAvailability(c *gin.Context) {
	dept := c.Query("department")
	streamSocket(s, c, realtime.Filter{Table: "staff_availability", Action: "*"},
		func(ctx streamContext) <-chan []ds.StaffAvailability {
			return s.staff.Watch(ctx, dept, s.presencePoll, ctx.push)
		})
}

func (s *Server) rebalanceStaff(c *gin.Context) {
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	moved, err := s.staff.Rebalance(ctx, currentUser(c))
	if err != nil {
		errorWithError(c, err)
		return
	}
	ok(c, gin.H{"moved": moved})
}

func (s *Server) guildMembers(c *gin.Context) {
	if s.discord == nil {
		errorWithError(c, apperrors.NewConfigurationError("Discord is not configured"))
		return
	}
	users, err := discordbot.GuildUsers(c.Request.Context(), s.discord, s.guildID)
	if err != nil {
		s.logger.Error("failed to list guild members", "guild_id", s.guildID, "error", err)
		errorWithError(c, err)
		return
	}
	ok(c, discordbot.GuildUsersResponse{GuildID: s.guildID, Users: users})
}
