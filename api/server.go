// Package api is the HTTP surface of the portal: applicant routes, the staff
// back office, the bot-facing notification functions and the realtime socket.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/discordbot"
	"gtarp/main_backend/metrics"
	"gtarp/main_backend/realtime"
	"gtarp/main_backend/workflow"
)

// ApplicationQuery is the read side of the application tables plus the
// administrative bulk delete.
type ApplicationQuery interface {
	FindApplications(ctx context.Context, f ds.ApplicationFilter, limit int, offset int) ([]ds.Application, error)
	GetApplication(ctx context.Context, kind ds.Kind, id string) (*ds.Application, error)
	DeleteApplications(ctx context.Context, actor string, kind ds.Kind, ids []string) (int64, error)
}

type Deps struct {
	Users        UserStore
	Applications ApplicationQuery
	Submissions  *workflow.SubmissionService
	Reviews      *workflow.ReviewService
	Tickets      *workflow.TicketService
	Staff        *workflow.StaffService
	Notifier     workflow.Notifier
	Discord      discordbot.Client
	Hub          *realtime.Hub
	Sessions     *SessionIssuer

	GuildID         string
	BotAPIKey       string
	LoginTokenTTL   time.Duration
	AllowedOrigins  []string
	RequestTimeout  time.Duration
	EligibilityPoll time.Duration
	PresencePoll    time.Duration
	Logger          *slog.Logger
}

type Server struct {
	users        UserStore
	applications ApplicationQuery
	submissions  *workflow.SubmissionService
	reviews      *workflow.ReviewService
	tickets      *workflow.TicketService
	staff        *workflow.StaffService
	notifier     workflow.Notifier
	discord      discordbot.Client
	hub          *realtime.Hub
	sessions     *SessionIssuer
	upgrader     *websocket.Upgrader

	guildID         string
	botKey          string
	loginTokenTTL   time.Duration
	allowedOrigins  []string
	requestTimeout  time.Duration
	eligibilityPoll time.Duration
	presencePoll    time.Duration
	logger          *slog.Logger
	now             func() time.Time
}

func NewServer(d Deps) *Server {
	return &Server{
		users:           d.Users,
		applications:    d.Applications,
		submissions:     d.Submissions,
		reviews:         d.Reviews,
		tickets:         d.Tickets,
		staff:           d.Staff,
		notifier:        d.Notifier,
		discord:         d.Discord,
		hub:             d.Hub,
		sessions:        d.Sessions,
		upgrader:        realtime.NewUpgrader(d.AllowedOrigins),
		guildID:         d.GuildID,
		botKey:          d.BotAPIKey,
		loginTokenTTL:   d.LoginTokenTTL,
		allowedOrigins:  d.AllowedOrigins,
		requestTimeout:  d.RequestTimeout,
		eligibilityPoll: d.EligibilityPoll,
		presencePoll:    d.PresencePoll,
		logger:          d.Logger,
		now:             time.Now,
	}
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(s.recovery(), s.requestLogger(), requestMetrics(), s.cors())

	r.GET("/healthz", func(c *gin.Context) { ok(c, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/login-token", s.requireBotKey(), s.createLoginToken)
	auth.POST("/exchange", s.exchangeToken)
	auth.GET("/me", s.requireAuth(), s.me)

	functions := api.Group("/functions", s.requireBotKey())
	functions.POST("/send-application-notification", s.sendApplicationNotification)
	functions.POST("/send-ticket-notification", s.sendTicketNotification)

	user := api.Group("", s.requireAuth())
	user.GET("/application-types", s.applicationTypes)
	user.GET("/me/applications", s.myApplications)
	user.GET("/applications/:kind/eligibility", s.eligibility)
	user.GET("/applications/:kind/eligibility/watch", s.watchEligibility)
	user.POST("/applications/:kind", s.submitApplication)
	user.GET("/tickets", s.listTickets)
	user.POST("/tickets", s.createTicket)
	user.GET("/tickets/:id", s.getTicket)
	user.GET("/tickets/:id/messages", s.listMessages)
	user.POST("/tickets/:id/messages", s.postMessage)
	user.GET("/realtime", s.realtimeSocket)

	admin := api.Group("/admin", s.requireAuth(), requireRole(ds.RoleStaff, ds.RoleAdmin))
	admin.GET("/applications", s.adminListApplications)
	admin.GET("/applications/:kind/:id", s.adminGetApplication)
	admin.GET("/applications/:kind/:id/pdf", s.adminApplicationPDF)
	admin.POST("/applications/:kind/:id/review", s.reviewApplication)
	admin.DELETE("/applications/:kind", requireRole(ds.RoleAdmin), s.deleteApplications)
	admin.GET("/export", s.exportApplications)
	admin.PATCH("/tickets/:id/status", s.changeTicketStatus)
	admin.GET("/staff/availability", s.staffAvailability)
	admin.PUT("/staff/availability", s.setStaffAvailability)
	admin.GET("/staff/availability/watch", s.watchStaffAvailability)
	admin.POST("/staff/rebalance", requireRole(ds.RoleAdmin), s.rebalanceStaff)
	admin.GET("/guild/members", requireRole(ds.RoleAdmin), s.guildMembers)
	admin.GET("/users/discord/:discord_id", requireRole(ds.RoleAdmin), s.userByDiscordID)
	admin.PUT("/users/:id/role", requireRole(ds.RoleAdmin), s.setUserRole)

	return r
}

// withTimeout bounds a handler's store work by the configured request timeout.
func (s *Server) withTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.requestTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), s.requestTimeout)
}

func (s *Server) cors() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", botKeyHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(s.allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = s.allowedOrigins
	}
	return cors.New(cfg)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if u := currentUser(c); u.ID != "" {
			args = append(args, "user_id", u.ID)
		}
		status := c.Writer.Status()
		switch {
		case status >= 500:
			s.logger.Error("HTTP request completed with server error", args...)
		case status >= 400:
			s.logger.Warn("HTTP request completed with client error", args...)
		default:
			s.logger.Debug("HTTP request completed", args...)
		}
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("panic recovered",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"error", recovered)
		errorResponse(c, http.StatusInternalServerError, "Internal server error occurred")
		c.Abort()
	})
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
