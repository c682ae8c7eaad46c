package export_service

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"gtarp/main_backend/transformer"
)

type column struct {
	title string
	width float64
	value func(transformer.Unified) string
}

var reportColumns = []column{
	{"Created", 30, func(u transformer.Unified) string { return u.CreatedAt.UTC().Format("2006-01-02 15:04") }},
	{"Type", 28, func(u transformer.Unified) string { return u.ApplicationType }},
	{"Applicant", 50, func(u transformer.Unified) string { return u.ApplicantName }},
	{"Organization", 50, func(u transformer.Unified) string { return u.Organization }},
	{"Discord ID", 40, func(u transformer.Unified) string { return u.DiscordID }},
	{"Status", 24, func(u transformer.Unified) string { return transformer.StatusLabel(u.Status) }},
	{"Handled By", 55, func(u transformer.Unified) string { return u.HandledBy }},
}

const (
	rowHeight = 7.0
	margin    = 10.0
)

func newDocument(orientation, title string, generated time.Time) (*fpdf.Fpdf, func(string) string) {
	pdf := fpdf.New(orientation, "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 5, fmt.Sprintf("Generated %s", generated.UTC().Format(time.RFC1123)), "", 0, "L", false, 0, "")
		pdf.SetX(margin)
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "R", false, 0, "")
	})
	return pdf, tr
}

// WriteReport renders a paginated table of records with a repeated header row,
// followed by a detail block per record.
func WriteReport(w io.Writer, title string, records []transformer.Unified, generated time.Time) error {
	pdf, tr := newDocument("L", title, generated)

	header := func() {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(35, 39, 47)
		pdf.SetTextColor(255, 255, 255)
		for _, c := range reportColumns {
			pdf.CellFormat(c.width, rowHeight, c.title, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d applications", len(records)), "", 1, "L", false, 0, "")
	pdf.Ln(2)
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for i, r := range records {
		if pdf.GetY()+rowHeight > pageHeight-bottom-15 {
			pdf.AddPage()
			header()
		}
		fill := i%2 == 1
		pdf.SetFillColor(242, 243, 245)
		for _, c := range reportColumns {
			pdf.CellFormat(c.width, rowHeight, tr(truncate(c.value(r), int(c.width/1.8))), "1", 0, "L", fill, 0, "")
		}
		pdf.Ln(-1)
	}

	for _, r := range records {
		pdf.AddPage()
		writeDetail(pdf, tr, r)
	}

	return pdf.Output(w)
}

// WriteApplication renders one record as a full-page document.
func WriteApplication(w io.Writer, r transformer.Unified, generated time.Time) error {
	title := fmt.Sprintf("Application %s", r.ID)
	pdf, tr := newDocument("P", title, generated)
	pdf.AddPage()
	writeDetail(pdf, tr, r)
	return pdf.Output(w)
}

func writeDetail(pdf *fpdf.Fpdf, tr func(string) string, r transformer.Unified) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 9, tr(fmt.Sprintf("%s - %s", r.ApplicantName, r.ApplicationType)), "", 1, "L", false, 0, "")

	meta := []transformer.Field{
		{Label: "ID", Value: r.ID},
		{Label: "Status", Value: transformer.StatusLabel(r.Status)},
		{Label: "Organization", Value: r.Organization},
		{Label: "Discord ID", Value: r.DiscordID},
		{Label: "Handled By", Value: r.HandledBy},
		{Label: "Submitted", Value: r.CreatedAt.UTC().Format(time.RFC1123)},
	}
	writeFields(pdf, tr, meta)
	pdf.Ln(3)
	writeFields(pdf, tr, r.Fields)

	if r.AdminNotes != "" {
		pdf.Ln(3)
		writeFields(pdf, tr, []transformer.Field{{Label: "Admin Notes", Value: r.AdminNotes}})
	}
}

func writeFields(pdf *fpdf.Fpdf, tr func(string) string, fields []transformer.Field) {
	for _, f := range fields {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(0, 6, tr(f.Label), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		value := f.Value
		if value == "" {
			value = "-"
		}
		pdf.MultiCell(0, 5, tr(value), "", "L", false)
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if max <= 3 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
