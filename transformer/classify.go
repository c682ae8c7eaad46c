package transformer

import "strings"

// JobType is the department a job application is routed to.
type JobType string

const (
	JobPolice JobType = "police"
	JobEMS    JobType = "ems"
	JobJudge  JobType = "judge"
	JobGang   JobType = "gang"
	JobState  JobType = "state"
)

// ClassifyJobType buckets the free-text job_type of a job application.
// Checks run in a fixed order and the first match wins; anything unmatched is
// police. Stored rows depend on this exact order, so change it only together
// with a backfill of job_applications.
func ClassifyJobType(raw string) JobType {
	s := strings.ToLower(raw)
	switch {
	case strings.Contains(s, "police"):
		return JobPolice
	case strings.Contains(s, "ems"), strings.Contains(s, "medical"):
		return JobEMS
	case strings.Contains(s, "judge"):
		return JobJudge
	case strings.Contains(s, "gang"):
		return JobGang
	case strings.Contains(s, "state"):
		return JobState
	}
	return JobPolice
}

// categories maps the coarse filter of the admin table onto application types.
var categories = map[string][]string{
	"whitelist":   {"whitelist"},
	"job":         {string(JobPolice), string(JobEMS), string(JobJudge), string(JobState)},
	"staff":       {"staff"},
	"ban":         {"ban_appeal"},
	"creator":     {"creator"},
	"firefighter": {"firefighter"},
	"weazel":      {"weazel_news"},
	"pdm":         {"pdm"},
	"gang":        {"gang"},
	"business":    {"business"},
	"doj":         {"doj"},
}

// Categories returns the known coarse category names.
func Categories() []string {
	out := make([]string, 0, len(categories))
	for c := range categories {
		out = append(out, c)
	}
	return out
}

// FilterByCategory keeps the records whose type belongs to category. An empty
// category or "all" keeps everything; an unknown category keeps nothing.
func FilterByCategory(records []Unified, category string) []Unified {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" || category == "all" {
		return records
	}
	types, ok := categories[category]
	if !ok {
		return nil
	}
	var out []Unified
	for _, r := range records {
		for _, t := range types {
			if r.ApplicationType == t {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
