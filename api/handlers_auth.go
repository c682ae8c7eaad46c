package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
)

type loginTokenRequest struct {
	DiscordID string `json:"discord_id"`
	Username  string `json:"username"`
}

type loginTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type exchangeRequest struct {
	Token string `json:"token"`
}

type exchangeResponse struct {
	SessionToken string  `json:"session_token"`
	ExpiresAt    string  `json:"expires_at"`
	User         ds.User `json:"user"`
}

// createLoginToken is called by the bot's /login command. It ensures the
// user exists and hands back a one-time token for the web login link.
func (s *Server) createLoginToken(c *gin.Context) {
	var body loginTokenRequest
	if err := c.ShouldBindJSON(&body); err != nil || body.DiscordID == "" || strings.TrimSpace(body.Username) == "" {
		errorWithError(c, apperrors.NewValidationError("discord_id and username are required"))
		return
	}
	discordID, err := strconv.ParseInt(body.DiscordID, 10, 64)
	if err != nil {
		errorWithError(c, apperrors.NewValidationError("invalid discord_id"))
		return
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()
	_, tok, err := s.users.CreateOrRotateLoginToken(ctx, "api:create_token", discordID, strings.TrimSpace(body.Username), s.loginTokenTTL)
	if err != nil {
		s.logger.Error("failed to create login token", "discord_id", body.DiscordID, "error", err)
		errorWithError(c, apperrors.NewInternalError("Failed to create login token"))
		return
	}
	created(c, loginTokenResponse{
		Token:     tok.Token,
		ExpiresAt: tok.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// exchangeToken consumes a one-time token and starts a browser session.
func (s *Server) exchangeToken(c *gin.Context) {
	var req exchangeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		errorWithError(c, apperrors.NewValidationError("token is required"))
		return
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()
	user, err := s.users.ConsumeToken(ctx, "api:exchange", req.Token)
	if err != nil {
		if errors.Is(err, ds.ErrInvalidOrExpiredToken) {
			errorWithError(c, apperrors.NewUnauthorizedError("invalid or expired token"))
			return
		}
		s.logger.Error("failed to consume login token", "error", err)
		errorWithError(c, apperrors.NewInternalError("Failed to sign in"))
		return
	}

	session, exp, err := s.sessions.Issue(user)
	if err != nil {
		s.logger.Error("failed to issue session", "user_id", user.ID, "error", err)
		errorWithError(c, apperrors.NewInternalError("Failed to sign in"))
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, session, int(time.Until(exp).Seconds()), "/", "", c.Request.TLS != nil, true)
	s.logger.Info("user signed in", "user_id", user.ID, "role", user.Role)
	ok(c, exchangeResponse{
		SessionToken: session,
		ExpiresAt:    exp.Format(time.RFC3339),
		User:         user,
	})
}

func (s *Server) me(c *gin.Context) {
	ok(c, currentUser(c))
}

// userByDiscordID resolves a portal account from a Discord snowflake so an
// admin can grant a role to someone they only know from the guild.
func (s *Server) userByDiscordID(c *gin.Context) {
	discordID, err := strconv.ParseInt(c.Param("discord_id"), 10, 64)
	if err != nil {
		errorWithError(c, apperrors.NewValidationError("invalid discord_id"))
		return
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()
	u, err := s.users.GetUserByDiscordID(ctx, discordID)
	if err != nil {
		s.logger.Error("failed to look up user", "discord_id", discordID, "error", err)
		errorWithError(c, apperrors.NewInternalError("Failed to load user"))
		return
	}
	if u == nil {
		errorWithError(c, apperrors.NewNotFoundError("User not found", c.Param("discord_id")))
		return
	}
	ok(c, u)
}

type setRoleRequest struct {
	Role        string   `json:"role"`
	Departments []string `json:"departments"`
}

func (s *Server) setUserRole(c *gin.Context) {
	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorWithError(c, apperrors.NewValidationError("invalid request body"))
		return
	}
	switch req.Role {
	case ds.RoleUser, ds.RoleStaff, ds.RoleAdmin:
	default:
		errorWithError(c, apperrors.NewValidationError("unknown role", req.Role))
		return
	}

	admin := currentUser(c)
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	u, err := s.users.SetUserRole(ctx, "admin:"+admin.ID, c.Param("id"), req.Role, req.Departments)
	if err != nil {
		if errors.Is(err, ds.ErrNotFound) {
			errorWithError(c, apperrors.NewNotFoundError("User not found", c.Param("id")))
			return
		}
		s.logger.Error("failed to set user role", "user_id", c.Param("id"), "error", err)
		errorWithError(c, apperrors.NewInternalError("Failed to update user"))
		return
	}
	s.logger.Info("user role changed", "user_id", u.ID, "role", u.Role, "admin", admin.ID)
	ok(c, u)
}
