// Package export_service renders unified application records as CSV and PDF.
package export_service

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"gtarp/main_backend/transformer"
)

var baseColumns = []string{
	"ID", "Type", "Applicant", "Organization", "Discord ID", "Status",
	"Handled By", "Admin Notes", "Created At",
}

// FieldLabels returns the union of field labels in first-seen order.
func FieldLabels(records []transformer.Unified) []string {
	seen := map[string]bool{}
	var labels []string
	for _, r := range records {
		for _, f := range r.Fields {
			if !seen[f.Label] {
				seen[f.Label] = true
				labels = append(labels, f.Label)
			}
		}
	}
	return labels
}

// formulaPrefixes start a formula when a spreadsheet opens the file.
const formulaPrefixes = "=+-@\t\r"

// safeCell quotes applicant text that a spreadsheet would evaluate.
func safeCell(v string) string {
	if v != "" && strings.ContainsRune(formulaPrefixes, rune(v[0])) {
		return "'" + v
	}
	return v
}

// WriteCSV writes one row per record: the fixed columns followed by one
// column per field label. Quoting follows RFC 4180.
func WriteCSV(w io.Writer, records []transformer.Unified) error {
	labels := FieldLabels(records)
	cw := csv.NewWriter(w)

	header := append(append([]string{}, baseColumns...), labels...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.ID,
			r.ApplicationType,
			r.ApplicantName,
			r.Organization,
			r.DiscordID,
			transformer.StatusLabel(r.Status),
			r.HandledBy,
			r.AdminNotes,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		for _, l := range labels {
			v, _ := r.Value(l)
			row = append(row, v)
		}
		for i := range row {
			row[i] = safeCell(row[i])
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
