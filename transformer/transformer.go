// Package transformer projects the per-kind application rows onto one unified
// record used by the admin table and the exports.
package transformer

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/forms"
)

// Field is one labelled answer, in display order.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

type Unified struct {
	ID              string    `json:"id"`
	Kind            ds.Kind   `json:"kind"`
	ApplicantName   string    `json:"applicant_name"`
	Organization    string    `json:"organization"`
	DiscordID       string    `json:"discord_id"`
	Status          ds.Status `json:"status"`
	HandledBy       string    `json:"handled_by"`
	ApplicationType string    `json:"application_type"`
	Fields          []Field   `json:"fields"`
	AdminNotes      string    `json:"admin_notes"`
	CreatedAt       time.Time `json:"created_at"`
}

// Value returns the value of the first field labelled label.
func (u Unified) Value(label string) (string, bool) {
	for _, f := range u.Fields {
		if f.Label == label {
			return f.Value, true
		}
	}
	return "", false
}

var title = cases.Title(language.English)

// StatusLabel renders a status for humans ("on_hold" -> "On Hold").
func StatusLabel(s ds.Status) string {
	return title.String(strings.ReplaceAll(string(s), "_", " "))
}

// Transform decodes the stored answers and builds the unified record.
func Transform(app ds.Application) (Unified, error) {
	payload, err := forms.Decode(app.Kind, app.Answers)
	if err != nil {
		return Unified{}, err
	}
	org, fields, err := project(payload)
	if err != nil {
		return Unified{}, err
	}

	u := Unified{
		ID:              app.ID,
		Kind:            app.Kind,
		ApplicantName:   payload.ApplicantName(),
		Organization:    org,
		DiscordID:       deref(app.DiscordID),
		Status:          app.Status,
		HandledBy:       deref(app.ReviewedBy),
		ApplicationType: string(app.Kind),
		Fields:          fields,
		AdminNotes:      deref(app.AdminNotes),
		CreatedAt:       app.CreatedAt,
	}
	if job, ok := payload.(*forms.Job); ok {
		u.ApplicationType = string(ClassifyJobType(job.JobType))
	}
	if u.ApplicantName == "" {
		u.ApplicantName = deref(app.DiscordUsername)
	}
	return u, nil
}

// TransformAll transforms every row. Rows that cannot be decoded are left
// out and reported together in the returned error.
func TransformAll(apps []ds.Application) ([]Unified, error) {
	out := make([]Unified, 0, len(apps))
	var errs []error
	for _, app := range apps {
		u, err := Transform(app)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", app.Kind, app.ID, err))
			continue
		}
		out = append(out, u)
	}
	return out, errors.Join(errs...)
}

// project is the per-variant mapping. Adding a form type means adding a case
// here; the default branch keeps an unmapped type from passing silently.
func project(p forms.Payload) (string, []Field, error) {
	switch f := p.(type) {
	case *forms.Whitelist:
		return "", []Field{
			{"Character Name", f.CharacterName},
			{"Character Age", number(f.CharacterAge)},
			{"Real Age", number(f.RealAge)},
			{"Steam Name", f.SteamName},
			{"RP Experience", f.RPExperience},
			{"Character Backstory", f.Backstory},
			{"Why Join", f.WhyJoin},
			{"Accepts Rules", yesNo(f.AcceptsRules)},
		}, nil
	case *forms.Job:
		return f.JobType, []Field{
			{"Job Type", f.JobType},
			{"Character Name", f.CharacterName},
			{"Character Age", number(f.CharacterAge)},
			{"Phone Number", f.PhoneNumber},
			{"Experience", f.Experience},
			{"Motivation", f.Motivation},
			{"Availability", f.Availability},
		}, nil
	case *forms.Staff:
		return "Staff Team", []Field{
			{"In-Game Name", f.InGameName},
			{"Age", number(f.Age)},
			{"Timezone", f.Timezone},
			{"Hours Per Week", number(f.HoursPerWeek)},
			{"Previous Experience", f.PreviousExperience},
			{"Why Staff", f.WhyStaff},
			{"Scenario Response", f.ScenarioResponse},
		}, nil
	case *forms.BanAppeal:
		return "", []Field{
			{"In-Game Name", f.InGameName},
			{"Ban Reason", f.BanReason},
			{"Banned By", f.BannedBy},
			{"Ban Date", f.BanDate},
			{"Appeal Reason", f.AppealReason},
			{"What Learned", f.WhatLearned},
		}, nil
	case *forms.Gang:
		return f.GangName, []Field{
			{"Gang Name", f.GangName},
			{"Leader Name", f.LeaderName},
			{"Member Count", number(f.MemberCount)},
			{"Territory", f.Territory},
			{"Backstory", f.Backstory},
			{"RP Goals", f.RPGoals},
		}, nil
	case *forms.Creator:
		return f.Platform, []Field{
			{"Creator Name", f.CreatorName},
			{"Platform", f.Platform},
			{"Channel URL", f.ChannelURL},
			{"Follower Count", number(f.FollowerCount)},
			{"Content Plan", f.ContentPlan},
		}, nil
	case *forms.Firefighter:
		return "Fire Department", []Field{
			{"Character Name", f.CharacterName},
			{"Character Age", number(f.CharacterAge)},
			{"Certifications", f.Certifications},
			{"Experience", f.Experience},
			{"Motivation", f.Motivation},
		}, nil
	case *forms.WeazelNews:
		return "Weazel News", []Field{
			{"Character Name", f.CharacterName},
			{"Position", f.Position},
			{"Writing Sample", f.WritingSample},
			{"Experience", f.Experience},
		}, nil
	case *forms.PDM:
		return "Premium Deluxe Motorsport", []Field{
			{"Character Name", f.CharacterName},
			{"Sales Experience", f.SalesExperience},
			{"Availability", f.Availability},
			{"Motivation", f.Motivation},
		}, nil
	case *forms.Business:
		return f.BusinessName, []Field{
			{"Business Name", f.BusinessName},
			{"Business Type", f.BusinessType},
			{"Owner Name", f.OwnerName},
			{"Location", f.Location},
			{"Startup Funds", number(f.StartupFunds)},
			{"Business Plan", f.BusinessPlan},
		}, nil
	case *forms.DOJ:
		return "Department of Justice", []Field{
			{"Character Name", f.CharacterName},
			{"Position", f.Position},
			{"Legal Experience", f.LegalExperience},
			{"Case Study", f.CaseStudy},
		}, nil
	}
	return "", nil, fmt.Errorf("no projection for %T", p)
}

// Combine merges record lists into one list, newest first.
func Combine(lists ...[]Unified) []Unified {
	var out []Unified
	for _, l := range lists {
		out = append(out, l...)
	}
	slices.SortStableFunc(out, func(a, b Unified) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// number renders a missing (zero) scalar as empty.
func number(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
