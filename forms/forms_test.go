package forms

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
)

func validWhitelist() *Whitelist {
	return &Whitelist{
		CharacterName: "Tommy Vercetti",
		CharacterAge:  34,
		RealAge:       22,
		RPExperience:  "Two years on a serious RP server.",
		Backstory:     strings.Repeat("Grew up in Vice City. ", 6),
		WhyJoin:       "Looking for long-form criminal roleplay.",
		AcceptsRules:  true,
	}
}

func TestNewCoversEveryKind(t *testing.T) {
	for _, k := range ds.Kinds {
		p, err := New(k)
		require.NoError(t, err, k)
		assert.Equal(t, k, p.Kind())
	}
	_, err := New("racing")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(validWhitelist()))

	f := validWhitelist()
	f.CharacterAge = 12
	f.AcceptsRules = false
	f.Backstory = "short"

	err := Validate(f)
	require.Error(t, err)
	appErr := apperrors.Get(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.TypeValidation, appErr.Type)
	assert.Contains(t, appErr.Fields, "character_age")
	assert.Contains(t, appErr.Fields, "accepts_rules")
	assert.Equal(t, "character_backstory must be at least 100 characters long", appErr.Fields["character_backstory"])
}

func TestValidateOneOf(t *testing.T) {
	f := &Creator{
		CreatorName: "Lazlow",
		Platform:    "myspace",
		ChannelURL:  "https://twitch.tv/lazlow",
		ContentPlan: "Weekly talk show streamed from the radio station.",
	}
	err := Validate(f)
	require.Error(t, err)
	assert.Equal(t, "platform must be one of: twitch youtube tiktok kick", apperrors.Get(err).Fields["platform"])
}

func TestParseRejectsUnknownFields(t *testing.T) {
	p, err := Parse(ds.KindGang, []byte(`{"gang_name":"Ballas","leader_name":"Big Smoke","member_count":8}`))
	require.NoError(t, err)
	g, ok := p.(*Gang)
	require.True(t, ok)
	assert.Equal(t, 8, g.MemberCount)
	assert.Equal(t, "Big Smoke", p.ApplicantName())

	_, err = Parse(ds.KindGang, []byte(`{"gang_name":"Ballas","color":"purple"}`))
	assert.Error(t, err)
}

func TestDecodeStoredAnswers(t *testing.T) {
	answers := map[string]any{
		"job_type":       "EMS Paramedic",
		"character_name": "Jane Doe",
		"character_age":  float64(29),
		"legacy_field":   "ignored",
	}
	p, err := Decode(ds.KindJob, answers)
	require.NoError(t, err)
	job := p.(*Job)
	assert.Equal(t, "EMS Paramedic", job.JobType)
	assert.Equal(t, 29, job.CharacterAge)

	out, err := Encode(job)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", out["character_name"])
	assert.NotContains(t, out, "legacy_field")
}

func TestSanitize(t *testing.T) {
	f := validWhitelist()
	f.CharacterName = `  <b>Tommy</b> & <script>alert(1)</script>Co `
	Sanitize(f)
	assert.Equal(t, "Tommy & Co", f.CharacterName)
	assert.Equal(t, 34, f.CharacterAge)
}

func TestCleanTextKeepsEscapedMarkupInert(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"&lt;script&gt;alert(1)&lt;/script&gt;", "&lt;script&gt;alert(1)&lt;/script&gt;"},
		{"&amp;lt;b&amp;gt;", "&lt;b&gt;"},
		{`Tom & Jerry's "garage"`, `Tom & Jerry's "garage"`},
		{"<i>plain</i> text", "plain text"},
	}
	for _, tt := range tests {
		got := CleanText(tt.in)
		assert.Equal(t, tt.want, got)
		assert.NotContains(t, got, "<")
	}
}
