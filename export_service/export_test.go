package export_service

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/transformer"
)

func sampleRecords() []transformer.Unified {
	created := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	return []transformer.Unified{
		{
			ID: "a1", ApplicationType: "whitelist", ApplicantName: "Niko Bellic", Status: ds.StatusOnHold,
			CreatedAt: created,
			Fields: []transformer.Field{
				{Label: "Character Name", Value: "Niko Bellic"},
				{Label: "Character Backstory", Value: "He said, \"war is hell\",\nthen left."},
			},
		},
		{
			ID: "a2", ApplicationType: "gang", ApplicantName: "Sweet", Status: ds.StatusApproved,
			HandledBy: "admin", AdminNotes: "Welcome", CreatedAt: created.Add(-time.Hour),
			Fields: []transformer.Field{
				{Label: "Gang Name", Value: "Families"},
				{Label: "Character Name", Value: "Sean Johnson"},
			},
		},
	}
}

func TestWriteCSVEscapesAndRoundTrips(t *testing.T) {
	records := sampleRecords()
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))

	tricky := records[0].Fields[1].Value
	assert.Contains(t, buf.String(), `"He said, ""war is hell"",`)

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	header := rows[0]
	assert.Equal(t, append(append([]string{}, baseColumns...), "Character Name", "Character Backstory", "Gang Name"), header)

	col := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		t.Fatalf("missing column %q", name)
		return -1
	}
	assert.Equal(t, tricky, rows[1][col("Character Backstory")])
	assert.Equal(t, "On Hold", rows[1][col("Status")])
	assert.Equal(t, "", rows[1][col("Gang Name")])
	assert.Equal(t, "Sean Johnson", rows[2][col("Character Name")])
	assert.Equal(t, "Welcome", rows[2][col("Admin Notes")])
	assert.Equal(t, "2026-10-19T11:00:00Z", rows[2][col("Created At")])
}

func TestWriteCSVNeutralizesFormulas(t *testing.T) {
	records := []transformer.Unified{{
		ID: "a3", ApplicationType: "job", ApplicantName: "=HYPERLINK(\"http://evil.test\",\"x\")", Status: ds.StatusPending,
		AdminNotes: "@SUM(A1:A9)",
		Fields: []transformer.Field{
			{Label: "Phone", Value: "+1 555 0100"},
			{Label: "Experience", Value: "-cmd|' /C calc'!A0"},
			{Label: "Motivation", Value: "Plain answer = fine"},
		},
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	row := rows[1]
	assert.Equal(t, `'=HYPERLINK("http://evil.test","x")`, row[2])
	assert.Equal(t, "'@SUM(A1:A9)", row[7])
	assert.Equal(t, "'+1 555 0100", row[len(baseColumns)])
	assert.Equal(t, "'-cmd|' /C calc'!A0", row[len(baseColumns)+1])
	assert.Equal(t, "Plain answer = fine", row[len(baseColumns)+2])
}

func TestSafeCell(t *testing.T) {
	for in, want := range map[string]string{
		"":        "",
		"=1+1":    "'=1+1",
		"\tx":     "'\tx",
		"Niko":    "Niko",
		"a=b":     "a=b",
		"'quoted": "'quoted",
	} {
		assert.Equal(t, want, safeCell(in), "%q", in)
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, strings.Join(baseColumns, ",")+"\n", buf.String())
}

func TestWriteReport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReport(&buf, "Applications – October", sampleRecords(), time.Now()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
	assert.Greater(t, buf.Len(), 1000)
}

func TestWriteApplication(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteApplication(&buf, sampleRecords()[0], time.Now()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ünï...", truncate("ünïcödé-text", 6))
}
