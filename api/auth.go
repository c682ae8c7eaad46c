package api

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
)

const (
	contextKeyUser = "portal_user"
	sessionCookie  = "portal_session"
	botKeyHeader   = "X-Bot-Key"
)

// Claims is the session carried by the browser after a login-token exchange.
type Claims struct {
	UserID      string   `json:"uid"`
	DiscordID   string   `json:"did"`
	Role        string   `json:"role"`
	Departments []string `json:"depts,omitempty"`
	jwt.RegisteredClaims
}

// SessionIssuer signs and verifies session tokens.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionIssuer(secret string, ttl time.Duration) *SessionIssuer {
	return &SessionIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (s *SessionIssuer) Issue(u ds.User) (string, time.Time, error) {
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := &Claims{
		UserID:      u.ID,
		DiscordID:   fmt.Sprint(u.DiscordUserID),
		Role:        u.Role,
		Departments: u.Departments,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return token, exp, nil
}

func (s *SessionIssuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// UserStore resolves the user behind a session and drives the login flow.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*ds.User, error)
	GetUserByDiscordID(ctx context.Context, discordUserID int64) (*ds.User, error)
	CreateOrRotateLoginToken(ctx context.Context, actor string, discordUserID int64, discordUsername string, ttl time.Duration) (ds.User, ds.LoginToken, error)
	ConsumeToken(ctx context.Context, actor string, token string) (ds.User, error)
	SetUserRole(ctx context.Context, actor string, userID string, role string, departments []string) (ds.User, error)
}

func bearerToken(c *gin.Context) string {
	if cookie, err := c.Cookie(sessionCookie); err == nil && cookie != "" {
		return cookie
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && parts[0] == "Bearer" {
		return parts[1]
	}
	// Browsers cannot set headers on a websocket upgrade.
	return c.Query("access_token")
}

// requireAuth loads the session user on every request so role changes apply
// without waiting for the token to expire.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			abortWithError(c, apperrors.NewUnauthorizedError("missing authorization token"))
			return
		}
		claims, err := s.sessions.Verify(token)
		if err != nil {
			s.logger.Warn("failed to verify session", "error", err)
			abortWithError(c, apperrors.NewUnauthorizedError("invalid or expired token"))
			return
		}
		user, err := s.users.GetUser(c.Request.Context(), claims.UserID)
		if err != nil {
			s.logger.Error("failed to load session user", "user_id", claims.UserID, "error", err)
			abortWithError(c, apperrors.NewInternalError("Failed to load user"))
			return
		}
		if user == nil {
			abortWithError(c, apperrors.NewUnauthorizedError("user no longer exists"))
			return
		}
		c.Set(contextKeyUser, *user)
		c.Next()
	}
}

func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := currentUser(c)
		for _, r := range roles {
			if u.Role == r {
				c.Next()
				return
			}
		}
		abortWithError(c, apperrors.NewForbiddenError("insufficient permissions"))
	}
}

// requireBotKey guards routes called by the Discord bot and the edge
// functions rather than by a browser session.
func (s *Server) requireBotKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(botKeyHeader)
		if s.botKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.botKey)) != 1 {
			abortWithError(c, apperrors.NewUnauthorizedError("invalid bot key"))
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) ds.User {
	if v, ok := c.Get(contextKeyUser); ok {
		if u, ok := v.(ds.User); ok {
			return u
		}
	}
	return ds.User{}
}
