package export_service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/transformer"
)

// Finder is the part of the store an export reads from.
type Finder interface {
	FindApplications(ctx context.Context, f ds.ApplicationFilter, limit int, offset int) ([]ds.Application, error)
}

// Query selects the records of one export.
type Query struct {
	Filter   ds.ApplicationFilter
	Category string
	Limit    int
}

// Collect loads, transforms and filters the records of q, newest first. Rows
// that fail to decode are logged and left out rather than failing the export.
func Collect(ctx context.Context, finder Finder, q Query, logger *slog.Logger) ([]transformer.Unified, error) {
	apps, err := finder.FindApplications(ctx, q.Filter, q.Limit, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load applications: %w", err)
	}
	records, err := transformer.TransformAll(apps)
	if err != nil && logger != nil {
		logger.Warn("skipped undecodable applications", "error", err)
	}
	return transformer.FilterByCategory(transformer.Combine(records), q.Category), nil
}

// Format is an export file format.
type Format string

const (
	FormatCSV Format = "csv"
	FormatPDF Format = "pdf"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatPDF:
		return f, nil
	case "":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "text/csv; charset=utf-8"
}

// Filename is the suggested download name for an export made at now.
func (f Format) Filename(category string, now time.Time) string {
	if category == "" {
		category = "all"
	}
	return fmt.Sprintf("applications-%s-%s.%s", category, now.UTC().Format("20060102-150405"), f)
}

// Write renders records in format f.
func Write(w io.Writer, f Format, title string, records []transformer.Unified, now time.Time) error {
	if f == FormatPDF {
		return WriteReport(w, title, records, now)
	}
	return WriteCSV(w, records)
}
