package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/export_service"
	"gtarp/main_backend/forms"
	"gtarp/main_backend/realtime"
	"gtarp/main_backend/transformer"
	"gtarp/main_backend/workflow"
)

const maxFormBytes = 64 << 10

func kindParam(c *gin.Context) (ds.Kind, error) {
	kind := ds.Kind(strings.ToLower(c.Param("kind")))
	if !kind.Valid() {
		return "", apperrors.NewValidationError("Unknown application type", c.Param("kind"))
	}
	return kind, nil
}

func (s *Server) applicationTypes(c *gin.Context) {
	categories := transformer.Categories()
	slices.Sort(categories)
	ok(c, gin.H{"kinds": ds.Kinds, "categories": categories})
}

func (s *Server) myApplications(c *gin.Context) {
	u := currentUser(c)
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	apps, err := s.applications.FindApplications(ctx, ds.ApplicationFilter{UserID: &u.ID}, 0, 0)
	if err != nil {
		s.logger.Error("failed to list user applications", "user_id", u.ID, "error", err)
		errorWithError(c, apperrors.NewInternalError("Failed to load applications"))
		return
	}
	ok(c, apps)
}

func (s *Server) eligibility(c *gin.Context) {
	kind, err := kindParam(c)
	if err != nil {
		errorWithError(c, err)
		return
	}
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	e, err := s.submissions.Eligibility(ctx, currentUser(c).ID, kind)
	if err != nil {
		errorWithError(c, err)
		return
	}
	ok(c, e)
}

// watchEligibility streams the gate over a websocket. Changes to the user's
// rows of that kind re-evaluate at once; the poll covers missed events.
func (s *Server) watchEligibility(c *gin.Context) {
	kind, err := kindParam(c)
	if err != nil {
		errorWithError(c, err)
		return
	}
	u := currentUser(c)
	streamSocket(s, c, realtime.Filter{Table: kind.Table(), Action: "*", Column: "user_id", Value: u.ID},
		func(ctx streamContext) <-chan workflow.Eligibility {
			return s.submissions.Watch(ctx, u.ID, kind, s.eligibilityPoll, ctx.push)
		})
}

func (s *Server) submitApplication(c *gin.Context) {
	kind, err := kindParam(c)
	if err != nil {
		errorWithError(c, err)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxFormBytes))
	if err != nil {
		errorWithError(c, apperrors.NewValidationError("Failed to read request body"))
		return
	}
	payload, err := forms.Parse(kind, raw)
	if err != nil {
		errorWithError(c, apperrors.NewValidationError("Invalid application form", err.Error()))
		return
	}

	ctx, cancel := s.withTimeout(c)
	defer cancel()
	app, err := s.submissions.Submit(ctx, workflow.SubmitCommand{User: currentUser(c), Payload: payload})
	if err != nil {
		errorWithError(c, err)
		return
	}
	created(c, app, "Application submitted")
}

// adminFilter parses the list and export query string and narrows it to the
// kinds the caller may review.
func adminFilter(c *gin.Context, u ds.User) (export_service.Query, error) {
	q := export_service.Query{Category: c.Query("category")}

	if k := c.Query("kind"); k != "" {
		kind := ds.Kind(strings.ToLower(k))
		if !kind.Valid() {
			return q, apperrors.NewValidationError("Unknown application type", k)
		}
		if !u.CanReview(kind) {
			return q, apperrors.NewForbiddenError("You cannot view this application type")
		}
		q.Filter.Kinds = []ds.Kind{kind}
	} else {
		for _, kind := range ds.Kinds {
			if u.CanReview(kind) {
				q.Filter.Kinds = append(q.Filter.Kinds, kind)
			}
		}
		if len(q.Filter.Kinds) == 0 {
			return q, apperrors.NewForbiddenError("You are not assigned to any department")
		}
	}

	if st := c.Query("status"); st != "" {
		status := ds.Status(st)
		if !status.Valid() {
			return q, apperrors.NewValidationError("Unknown status", st)
		}
		q.Filter.StatusEquals = &status
	}
	for name, dst := range map[string]**time.Time{"from": &q.Filter.CreatedAfter, "to": &q.Filter.CreatedBefore} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		t, err := parseTime(v)
		if err != nil {
			return q, apperrors.NewValidationError("Invalid date", name+"="+v)
		}
		*dst = &t
	}
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			return q, apperrors.NewValidationError("Invalid limit", l)
		}
		q.Limit = n
	}
	return q, nil
}

// cleanPtr sanitizes an optional free-text field.
func cleanPtr(v *string) *string {
	if v == nil {
		return nil
	}
	cleaned := forms.CleanText(*v)
	return &cleaned
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

func (s *Server) adminListApplications(c *gin.Context) {
	u := currentUser(c)
	q, err := adminFilter(c, u)
	if err != nil {
		errorWithError(c, err)
		return
	}
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	records, err := export_service.Collect(ctx, s.applications, q, s.logger)
	if err != nil {
		s.logger.Error("failed to list applications", "error", err)
		errorWithError(c, apperrors.NewInternalError("Failed to load applications"))
		return
	}
	ok(c, records)
}

func (s *Server) loadForReview(c *gin.Context) (*ds.Application, bool) {
	kind, err := kindParam(c)
	if err != nil {
		errorWithError(c, err)
		return nil, false
	}
	if !currentUser(c).CanReview(kind) {
		errorWithError(c, apperrors.NewForbiddenError("You cannot view this application type"))
		return nil, false
	}
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	app, err := s.applications.GetApplication(ctx, kind, c.Param("id"))
	if err != nil {
		s.logger.Error("failed to load application", "kind", kind, "id", c.Param("id"), "error", err)
		errorWithError(c, apperrors.NewInternalError("Failed to load application"))
		return nil, false
	}
	if app == nil {
		errorWithError(c, apperrors.NewNotFoundError("Application not found", c.Param("id")))
		return nil, false
	}
	return app, true
}

type applicationDetail struct {
	Application ds.Application      `json:"application"`
	Record      transformer.Unified `json:"record"`
	Actions     []ds.Status         `json:"actions"`
}

func (s *Server) adminGetApplication(c *gin.Context) {
	app, found := s.loadForReview(c)
	if !found {
		return
	}
	record, err := transformer.Transform(*app)
	if err != nil {
		s.logger.Error("failed to transform application", "kind", app.Kind, "id", app.ID, "error", err)
		errorWithError(c, apperrors.NewInternalError("Failed to render application"))
		return
	}
	ok(c, applicationDetail{Application: *app, Record: record, Actions: workflow.ReviewActions(app.Status)})
}

func (s *Server) adminApplicationPDF(c *gin.Context) {
	app, found := s.loadForReview(c)
	if !found {
		return
	}
	record, err := transformer.Transform(*app)
	if err != nil {
		s.logger.Error("failed to transform application", "kind", app.Kind, "id", app.ID, "error", err)
		errorWithError(c, apperrors.NewInternalError("Failed to render application"))
		return
	}
	var buf bytes.Buffer
	if err := export_service.WriteApplication(&buf, record, s.now()); err != nil {
		s.logger.Error("failed to render application pdf", "id", app.ID, "error", err)
		errorWithError(c, apperrors.NewInternalError("Failed to render PDF"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-%s.pdf"`, app.Kind, app.ID))
	c.Data(http.StatusOK, export_service.FormatPDF.ContentType(), buf.Bytes())
}

func (s *Server) exportApplications(c *gin.Context) {
	format, err := export_service.ParseFormat(c.Query("format"))
	if err != nil {
		errorWithError(c, apperrors.NewValidationError(err.Error()))
		return
	}
	q, err := adminFilter(c, currentUser(c))
	if err != nil {
		errorWithError(c, err)
		return
	}
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	records, err := export_service.Collect(ctx, s.applications, q, s.logger)
	if err != nil {
		s.logger.Error("failed to collect export", "error", err)
		errorWithError(c, apperrors.NewInternalError("Failed to load applications"))
		return
	}

	now := s.now()
	var buf bytes.Buffer
	if err := export_service.Write(&buf, format, "Applications export", records, now); err != nil {
		s.logger.Error("failed to render export", "format", format, "error", err)
		errorWithError(c, apperrors.NewInternalError("Failed to render export"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.Filename(q.Category, now)))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

type reviewRequest struct {
	Status     ds.Status `json:"status"`
	AdminNotes *string   `json:"admin_notes"`
	Force      bool      `json:"force"`
}

func (s *Server) reviewApplication(c *gin.Context) {
	kind, err := kindParam(c)
	if err != nil {
		errorWithError(c, err)
		return
	}
	var req reviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorWithError(c, apperrors.NewValidationError("invalid request body"))
		return
	}
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	res, err := s.reviews.Review(ctx, workflow.ReviewCommand{
		Kind:          kind,
		ApplicationID: c.Param("id"),
		Status:        req.Status,
		AdminNotes:    cleanPtr(req.AdminNotes),
		Reviewer:      currentUser(c),
		Force:         req.Force,
	})
	if err != nil {
		errorWithError(c, err)
		return
	}
	ok(c, res, "Application "+transformer.StatusLabel(res.Application.Status))
}

type deleteRequest struct {
	IDs []string `json:"ids"`
}

func (s *Server) deleteApplications(c *gin.Context) {
	kind, err := kindParam(c)
	if err != nil {
		errorWithError(c, err)
		return
	}
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		errorWithError(c, apperrors.NewValidationError("ids are required"))
		return
	}
	admin := currentUser(c)
	ctx, cancel := s.withTimeout(c)
	defer cancel()
	n, err := s.applications.DeleteApplications(ctx, "admin:"+admin.ID, kind, req.IDs)
	if err != nil {
		s.logger.Error("failed to delete applications", "kind", kind, "error", err)
		errorWithError(c, apperrors.NewInternalError("Failed to delete applications"))
		return
	}
	s.logger.Info("applications deleted", "kind", kind, "count", n, "admin", admin.ID)
	ok(c, gin.H{"deleted": n})
}
