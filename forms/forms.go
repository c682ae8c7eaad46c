// Package forms holds the typed submission payload of every application kind.
// Each kind is one struct; the set of structs is closed and consumers switch
// over it exhaustively.
package forms

import (
	"bytes"
	"encoding/json"
	"fmt"

	ds "gtarp/main_backend/database_service"
)

// Payload is implemented by every application form.
type Payload interface {
	Kind() ds.Kind
	// ApplicantName is the in-character (or display) name shown to reviewers.
	ApplicantName() string
}

type Whitelist struct {
	CharacterName string `json:"character_name" validate:"required,min=3,max=64"`
	CharacterAge  int    `json:"character_age" validate:"required,gte=18,lte=100"`
	RealAge       int    `json:"real_age" validate:"required,gte=16,lte=99"`
	SteamName     string `json:"steam_name" validate:"omitempty,max=64"`
	RPExperience  string `json:"rp_experience" validate:"required,min=20,max=2000"`
	Backstory     string `json:"character_backstory" validate:"required,min=100,max=5000"`
	WhyJoin       string `json:"why_join" validate:"required,min=20,max=2000"`
	AcceptsRules  bool   `json:"accepts_rules" validate:"required"`
}

// Job is the shared form for the job bucket; JobType is free text and is
// classified into a department downstream.
type Job struct {
	JobType       string `json:"job_type" validate:"required,max=64"`
	CharacterName string `json:"character_name" validate:"required,min=3,max=64"`
	CharacterAge  int    `json:"character_age" validate:"required,gte=18,lte=100"`
	PhoneNumber   string `json:"phone_number" validate:"omitempty,max=20"`
	Experience    string `json:"experience" validate:"required,min=20,max=3000"`
	Motivation    string `json:"motivation" validate:"required,min=20,max=2000"`
	Availability  string `json:"availability" validate:"required,max=500"`
}

type Staff struct {
	InGameName         string `json:"in_game_name" validate:"required,min=3,max=64"`
	Age                int    `json:"age" validate:"required,gte=16,lte=99"`
	Timezone           string `json:"timezone" validate:"required,max=64"`
	HoursPerWeek       int    `json:"hours_per_week" validate:"required,gte=1,lte=80"`
	PreviousExperience string `json:"previous_experience" validate:"required,min=20,max=3000"`
	WhyStaff           string `json:"why_staff" validate:"required,min=50,max=3000"`
	ScenarioResponse   string `json:"scenario_response" validate:"required,min=50,max=3000"`
}

type BanAppeal struct {
	InGameName   string `json:"in_game_name" validate:"required,min=3,max=64"`
	BanReason    string `json:"ban_reason" validate:"required,max=500"`
	BannedBy     string `json:"banned_by" validate:"omitempty,max=64"`
	BanDate      string `json:"ban_date" validate:"omitempty,max=32"`
	AppealReason string `json:"appeal_reason" validate:"required,min=50,max=3000"`
	WhatLearned  string `json:"what_learned" validate:"required,min=20,max=2000"`
}

type Gang struct {
	GangName    string `json:"gang_name" validate:"required,min=3,max=64"`
	LeaderName  string `json:"leader_name" validate:"required,min=3,max=64"`
	MemberCount int    `json:"member_count" validate:"required,gte=3,lte=50"`
	Territory   string `json:"territory" validate:"omitempty,max=128"`
	Backstory   string `json:"backstory" validate:"required,min=100,max=5000"`
	RPGoals     string `json:"rp_goals" validate:"required,min=20,max=2000"`
}

type Creator struct {
	CreatorName   string `json:"creator_name" validate:"required,min=2,max=64"`
	Platform      string `json:"platform" validate:"required,oneof=twitch youtube tiktok kick"`
	ChannelURL    string `json:"channel_url" validate:"required,url,max=256"`
	FollowerCount int    `json:"follower_count" validate:"gte=0"`
	ContentPlan   string `json:"content_plan" validate:"required,min=20,max=2000"`
}

type Firefighter struct {
	CharacterName  string `json:"character_name" validate:"required,min=3,max=64"`
	CharacterAge   int    `json:"character_age" validate:"required,gte=18,lte=100"`
	Certifications string `json:"certifications" validate:"omitempty,max=500"`
	Experience     string `json:"experience" validate:"required,min=20,max=3000"`
	Motivation     string `json:"motivation" validate:"required,min=20,max=2000"`
}

type WeazelNews struct {
	CharacterName string `json:"character_name" validate:"required,min=3,max=64"`
	Position      string `json:"position" validate:"required,oneof=reporter camera_operator anchor editor"`
	WritingSample string `json:"writing_sample" validate:"required,min=100,max=5000"`
	Experience    string `json:"experience" validate:"omitempty,max=3000"`
}

type PDM struct {
	CharacterName   string `json:"character_name" validate:"required,min=3,max=64"`
	SalesExperience string `json:"sales_experience" validate:"required,min=20,max=3000"`
	Availability    string `json:"availability" validate:"required,max=500"`
	Motivation      string `json:"motivation" validate:"required,min=20,max=2000"`
}

type Business struct {
	BusinessName string `json:"business_name" validate:"required,min=3,max=64"`
	BusinessType string `json:"business_type" validate:"required,max=64"`
	OwnerName    string `json:"owner_name" validate:"required,min=3,max=64"`
	Location     string `json:"location" validate:"omitempty,max=128"`
	StartupFunds int    `json:"startup_funds" validate:"gte=0"`
	BusinessPlan string `json:"business_plan" validate:"required,min=100,max=5000"`
}

type DOJ struct {
	CharacterName   string `json:"character_name" validate:"required,min=3,max=64"`
	Position        string `json:"position" validate:"required,oneof=judge attorney prosecutor clerk"`
	LegalExperience string `json:"legal_experience" validate:"required,min=20,max=3000"`
	CaseStudy       string `json:"case_study" validate:"required,min=100,max=5000"`
}

func (*Whitelist) Kind() ds.Kind   { return ds.KindWhitelist }
func (*Job) Kind() ds.Kind         { return ds.KindJob }
func (*Staff) Kind() ds.Kind       { return ds.KindStaff }
func (*BanAppeal) Kind() ds.Kind   { return ds.KindBanAppeal }
func (*Gang) Kind() ds.Kind        { return ds.KindGang }
func (*Creator) Kind() ds.Kind     { return ds.KindCreator }
func (*Firefighter) Kind() ds.Kind { return ds.KindFirefighter }
func (*WeazelNews) Kind() ds.Kind  { return ds.KindWeazelNews }
func (*PDM) Kind() ds.Kind         { return ds.KindPDM }
func (*Business) Kind() ds.Kind    { return ds.KindBusiness }
func (*DOJ) Kind() ds.Kind         { return ds.KindDOJ }

func (f *Whitelist) ApplicantName() string   { return f.CharacterName }
func (f *Job) ApplicantName() string         { return f.CharacterName }
func (f *Staff) ApplicantName() string       { return f.InGameName }
func (f *BanAppeal) ApplicantName() string   { return f.InGameName }
func (f *Gang) ApplicantName() string        { return f.LeaderName }
func (f *Creator) ApplicantName() string     { return f.CreatorName }
func (f *Firefighter) ApplicantName() string { return f.CharacterName }
func (f *WeazelNews) ApplicantName() string  { return f.CharacterName }
func (f *PDM) ApplicantName() string         { return f.CharacterName }
func (f *Business) ApplicantName() string    { return f.OwnerName }
func (f *DOJ) ApplicantName() string         { return f.CharacterName }

// New returns an empty payload for kind.
func New(kind ds.Kind) (Payload, error) {
	switch kind {
	case ds.KindWhitelist:
		return &Whitelist{}, nil
	case ds.KindJob:
		return &Job{}, nil
	case ds.KindStaff:
		return &Staff{}, nil
	case ds.KindBanAppeal:
		return &BanAppeal{}, nil
	case ds.KindGang:
		return &Gang{}, nil
	case ds.KindCreator:
		return &Creator{}, nil
	case ds.KindFirefighter:
		return &Firefighter{}, nil
	case ds.KindWeazelNews:
		return &WeazelNews{}, nil
	case ds.KindPDM:
		return &PDM{}, nil
	case ds.KindBusiness:
		return &Business{}, nil
	case ds.KindDOJ:
		return &DOJ{}, nil
	}
	return nil, fmt.Errorf("unknown application kind %q", kind)
}

// Parse decodes a submitted JSON body into the payload for kind.
func Parse(kind ds.Kind, raw []byte) (Payload, error) {
	p, err := New(kind)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("decode %s form: %w", kind, err)
	}
	return p, nil
}

// Decode rebuilds the payload from stored answers. Unknown keys are ignored
// so older rows stay readable.
func Decode(kind ds.Kind, answers map[string]any) (Payload, error) {
	p, err := New(kind)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode stored %s answers: %w", kind, err)
	}
	return p, nil
}

// Encode flattens a payload into the answers map stored in jsonb.
func Encode(p Payload) (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
