package discordbot

import (
	"sort"
	"strings"

	ds "gtarp/main_backend/database_service"
)

// typeConfig is the routing and presentation of one application type.
type typeConfig struct {
	ChannelEnv    string
	Title         string
	Department    string
	ApprovedColor int
	RejectedColor int
	Emoji         string
	ImageKey      string
	NextSteps     string
}

const (
	colorOnHold = 0xF1C40F
	colorClosed = 0x95A5A6
)

var applicationTypes = map[string]typeConfig{
	"whitelist": {
		ChannelEnv: "DISCORD_WHITELIST_CHANNEL_ID", Title: "Whitelist Application", Department: "Whitelist Team",
		ApprovedColor: 0x2ECC71, RejectedColor: 0xE74C3C, Emoji: "📋", ImageKey: "whitelist",
		NextSteps: "Connect to the server and head to the city hall for your introduction.",
	},
	"job": {
		ChannelEnv: "DISCORD_JOB_CHANNEL_ID", Title: "Job Application", Department: "Human Resources",
		ApprovedColor: 0x3498DB, RejectedColor: 0xE74C3C, Emoji: "💼", ImageKey: "job",
		NextSteps: "Your supervisor will contact you in-game to schedule onboarding.",
	},
	"police": {
		ChannelEnv: "DISCORD_POLICE_CHANNEL_ID", Title: "LSPD Application", Department: "Los Santos Police Department",
		ApprovedColor: 0x1F4E9C, RejectedColor: 0xC0392B, Emoji: "🚓", ImageKey: "police",
		NextSteps: "Report to Mission Row for academy training.",
	},
	"ems": {
		ChannelEnv: "DISCORD_EMS_CHANNEL_ID", Title: "EMS Application", Department: "Emergency Medical Services",
		ApprovedColor: 0xE67E22, RejectedColor: 0xC0392B, Emoji: "🚑", ImageKey: "ems",
		NextSteps: "Report to Pillbox Hill for orientation.",
	},
	"judge": {
		ChannelEnv: "DISCORD_DOJ_CHANNEL_ID", Title: "Judicial Application", Department: "Department of Justice",
		ApprovedColor: 0x8E44AD, RejectedColor: 0xC0392B, Emoji: "⚖️", ImageKey: "doj",
		NextSteps: "The Chief Justice will arrange your swearing-in.",
	},
	"state": {
		ChannelEnv: "DISCORD_STATE_CHANNEL_ID", Title: "State Government Application", Department: "State Government",
		ApprovedColor: 0x16A085, RejectedColor: 0xC0392B, Emoji: "🏛️", ImageKey: "state",
		NextSteps: "Visit the governor's office to collect your credentials.",
	},
	"staff": {
		ChannelEnv: "DISCORD_STAFF_CHANNEL_ID", Title: "Staff Application", Department: "Management",
		ApprovedColor: 0x9B59B6, RejectedColor: 0xE74C3C, Emoji: "🛡️", ImageKey: "staff",
		NextSteps: "A manager will reach out to schedule your trial period.",
	},
	"ban_appeal": {
		ChannelEnv: "DISCORD_BAN_APPEAL_CHANNEL_ID", Title: "Ban Appeal", Department: "Moderation",
		ApprovedColor: 0x2ECC71, RejectedColor: 0x992D22, Emoji: "🔓", ImageKey: "ban_appeal",
		NextSteps: "Your ban has been lifted. Please review the rules before reconnecting.",
	},
	"gang": {
		ChannelEnv: "DISCORD_GANG_CHANNEL_ID", Title: "Gang Application", Department: "Gang Management",
		ApprovedColor: 0x27AE60, RejectedColor: 0xE74C3C, Emoji: "🔫", ImageKey: "gang",
		NextSteps: "Gang management will contact the leader about territory and roster.",
	},
	"creator": {
		ChannelEnv: "DISCORD_CREATOR_CHANNEL_ID", Title: "Content Creator Application", Department: "Media Team",
		ApprovedColor: 0xE91E63, RejectedColor: 0xE74C3C, Emoji: "🎥", ImageKey: "creator",
		NextSteps: "You will receive the creator role and streaming guidelines shortly.",
	},
	"firefighter": {
		ChannelEnv: "DISCORD_FIREFIGHTER_CHANNEL_ID", Title: "Firefighter Application", Department: "Fire Department",
		ApprovedColor: 0xD35400, RejectedColor: 0xC0392B, Emoji: "🚒", ImageKey: "firefighter",
		NextSteps: "Report to Station 7 for your first shift.",
	},
	"weazel_news": {
		ChannelEnv: "DISCORD_WEAZEL_NEWS_CHANNEL_ID", Title: "Weazel News Application", Department: "Weazel News",
		ApprovedColor: 0xF39C12, RejectedColor: 0xE74C3C, Emoji: "📰", ImageKey: "weazel_news",
		NextSteps: "The editor-in-chief will send your press pass.",
	},
	"pdm": {
		ChannelEnv: "DISCORD_PDM_CHANNEL_ID", Title: "PDM Application", Department: "Premium Deluxe Motorsport",
		ApprovedColor: 0x1ABC9C, RejectedColor: 0xE74C3C, Emoji: "🚗", ImageKey: "pdm",
		NextSteps: "Simeon expects you on the showroom floor.",
	},
	"business": {
		ChannelEnv: "DISCORD_BUSINESS_CHANNEL_ID", Title: "Business Application", Department: "Business Licensing",
		ApprovedColor: 0x2980B9, RejectedColor: 0xE74C3C, Emoji: "🏪", ImageKey: "business",
		NextSteps: "Collect your business licence from city hall.",
	},
	"doj": {
		ChannelEnv: "DISCORD_DOJ_CHANNEL_ID", Title: "DOJ Application", Department: "Department of Justice",
		ApprovedColor: 0x8E44AD, RejectedColor: 0xC0392B, Emoji: "⚖️", ImageKey: "doj",
		NextSteps: "The Chief Justice will arrange your onboarding.",
	},
}

var typeAliases = map[string]string{
	"lspd":        "police",
	"bcso":        "police",
	"medical":     "ems",
	"ban":         "ban_appeal",
	"weazel":      "weazel_news",
	"fire":        "firefighter",
	"gang_member": "gang",
	"justice":     "doj",
}

// images holds the banner file stem for every image key.
var images = map[string]string{
	"whitelist":   "whitelist",
	"job":         "jobs",
	"police":      "lspd",
	"ems":         "ems",
	"doj":         "doj",
	"state":       "state",
	"staff":       "staff",
	"ban_appeal":  "appeal",
	"gang":        "gangs",
	"creator":     "creators",
	"firefighter": "fire",
	"weazel_news": "weazel",
	"pdm":         "pdm",
	"business":    "business",
}

func normalizeType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	if alias, ok := typeAliases[s]; ok {
		return alias
	}
	return s
}

func lookupType(s string) (typeConfig, bool) {
	cfg, ok := applicationTypes[normalizeType(s)]
	return cfg, ok
}

// ApplicationTypes lists every configured type key, sorted.
func ApplicationTypes() []string {
	keys := make([]string, 0, len(applicationTypes))
	for k := range applicationTypes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ChannelKeys lists the deployment keys a complete configuration must set.
func ChannelKeys() []string {
	seen := map[string]bool{}
	keys := []string{ticketStaffChannelEnv, ticketResponseChannelEnv}
	for _, cfg := range applicationTypes {
		if !seen[cfg.ChannelEnv] {
			seen[cfg.ChannelEnv] = true
			keys = append(keys, cfg.ChannelEnv)
		}
	}
	sort.Strings(keys)
	return keys
}

// NotificationType maps a stored application onto its dispatcher key. Job
// applications are routed by their classified job type.
func NotificationType(kind ds.Kind, jobType string) string {
	if kind == ds.KindJob && jobType != "" {
		if _, ok := applicationTypes[jobType]; ok {
			return jobType
		}
	}
	return string(kind)
}

const (
	ticketStaffChannelEnv    = "DISCORD_TICKET_STAFF_CHANNEL_ID"
	ticketResponseChannelEnv = "DISCORD_TICKET_RESPONSE_CHANNEL_ID"
	supportRoleEnv           = "DISCORD_SUPPORT_ROLE_ID"
)

type ticketTemplate struct {
	Title       string
	Description string
	Color       int
	Image       string
}

// ticketTemplates is keyed by status; "new" is an open ticket seen for the
// first time.
var ticketTemplates = map[string]ticketTemplate{
	"new": {
		Title: "🎫 New Support Ticket", Description: "A new ticket needs a staff member.",
		Color: 0x3498DB, Image: "ticket_new",
	},
	string(ds.TicketOpen): {
		Title: "🎫 Ticket Reopened", Description: "Your ticket has been reopened and is back in the queue.",
		Color: 0x3498DB, Image: "ticket_open",
	},
	string(ds.TicketInProgress): {
		Title: "🛠️ Ticket In Progress", Description: "A staff member is now working on your ticket.",
		Color: 0xF39C12, Image: "ticket_progress",
	},
	string(ds.TicketOnHold): {
		Title: "⏸️ Ticket On Hold", Description: "Your ticket is on hold. Staff may need more information from you.",
		Color: colorOnHold, Image: "ticket_hold",
	},
	string(ds.TicketResolved): {
		Title: "✅ Ticket Resolved", Description: "Your ticket has been resolved.",
		Color: 0x2ECC71, Image: "ticket_resolved",
	},
}
