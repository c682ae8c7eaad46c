package database_service

import (
	"errors"
	"time"
)

// ErrNotFound is returned by mutations whose target row does not exist.
var ErrNotFound = errors.New("row not found")

// Status represents the application status lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusOnHold   Status = "on_hold"
	StatusClosed   Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusOnHold, StatusClosed:
		return true
	}
	return false
}

// Kind is an application type. Every kind owns one table.
type Kind string

const (
	KindWhitelist   Kind = "whitelist"
	KindJob         Kind = "job"
	KindStaff       Kind = "staff"
	KindBanAppeal   Kind = "ban_appeal"
	KindGang        Kind = "gang"
	KindCreator     Kind = "creator"
	KindFirefighter Kind = "firefighter"
	KindWeazelNews  Kind = "weazel_news"
	KindPDM         Kind = "pdm"
	KindBusiness    Kind = "business"
	KindDOJ         Kind = "doj"
)

// Kinds lists every application kind in display order.
var Kinds = []Kind{
	KindWhitelist, KindJob, KindStaff, KindBanAppeal, KindGang, KindCreator,
	KindFirefighter, KindWeazelNews, KindPDM, KindBusiness, KindDOJ,
}

var kindTables = map[Kind]string{
	KindWhitelist:   "whitelist_applications",
	KindJob:         "job_applications",
	KindStaff:       "staff_applications",
	KindBanAppeal:   "ban_appeals",
	KindGang:        "gang_applications",
	KindCreator:     "creator_applications",
	KindFirefighter: "firefighter_applications",
	KindWeazelNews:  "weazel_news_applications",
	KindPDM:         "pdm_applications",
	KindBusiness:    "business_applications",
	KindDOJ:         "doj_applications",
}

// Staff departments that review each kind.
var kindDepartments = map[Kind]string{
	KindWhitelist:   "whitelist",
	KindJob:         "jobs",
	KindStaff:       "management",
	KindBanAppeal:   "moderation",
	KindGang:        "gangs",
	KindCreator:     "media",
	KindFirefighter: "jobs",
	KindWeazelNews:  "media",
	KindPDM:         "business",
	KindBusiness:    "business",
	KindDOJ:         "jobs",
}

func (k Kind) Valid() bool {
	_, ok := kindTables[k]
	return ok
}

// Table returns the table name for k; the empty string for unknown kinds.
func (k Kind) Table() string { return kindTables[k] }

func (k Kind) Department() string { return kindDepartments[k] }

// KindForTable is the inverse of Kind.Table.
func KindForTable(table string) (Kind, bool) {
	for k, t := range kindTables {
		if t == table {
			return k, true
		}
	}
	return "", false
}

// Roles carried on the users table.
const (
	RoleUser  = "user"
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// User is a projection of the `users` table.
type User struct {
	ID              string    `json:"id"`
	DiscordUserID   int64     `json:"discord_user_id"`
	DiscordUsername string    `json:"discord_username"`
	Role            string    `json:"role"`
	Departments     []string  `json:"departments"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// CanReview reports whether u may see and review applications of kind k.
func (u User) CanReview(k Kind) bool {
	switch u.Role {
	case RoleAdmin:
		return true
	case RoleStaff:
		dept := k.Department()
		for _, d := range u.Departments {
			if d == dept {
				return true
			}
		}
	}
	return false
}

// Application mirrors the per-kind application tables.
type Application struct {
	ID              string         `json:"id"`
	UserID          string         `json:"user_id"`
	Kind            Kind           `json:"kind"`
	DiscordID       *string        `json:"discord_id,omitempty"`
	DiscordUsername *string        `json:"discord_username,omitempty"`
	Answers         map[string]any `json:"answers"`
	Status          Status         `json:"status"`
	AdminNotes      *string        `json:"admin_notes,omitempty"`
	ReviewedBy      *string        `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ReviewUpdate is the single write that records a review. Nil pointers keep
// the stored value.
type ReviewUpdate struct {
	Status     Status
	AdminNotes *string
	ReviewedBy *string
	ReviewedAt *time.Time
}

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketOnHold     TicketStatus = "on_hold"
	TicketResolved   TicketStatus = "resolved"
)

func (s TicketStatus) Valid() bool {
	switch s {
	case TicketOpen, TicketInProgress, TicketOnHold, TicketResolved:
		return true
	}
	return false
}

type TicketPriority string

const (
	PriorityLow      TicketPriority = "low"
	PriorityNormal   TicketPriority = "normal"
	PriorityHigh     TicketPriority = "high"
	PriorityCritical TicketPriority = "critical"
)

func (p TicketPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Ticket mirrors `support_tickets`.
type Ticket struct {
	ID            string         `json:"id"`
	TicketNumber  string         `json:"ticket_number"`
	UserID        string         `json:"user_id"`
	DiscordID     *string        `json:"discord_id,omitempty"`
	Category      string         `json:"category"`
	Priority      TicketPriority `json:"priority"`
	Status        TicketStatus   `json:"status"`
	Subject       string         `json:"subject"`
	Description   string         `json:"description"`
	AttachmentURL *string        `json:"attachment_url,omitempty"`
	AdminNotes    *string        `json:"admin_notes,omitempty"`
	Resolution    *string        `json:"resolution,omitempty"`
	ResolvedBy    *string        `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TicketUpdate is applied in one statement. Resolution fields are cleared
// when Status is not resolved.
type TicketUpdate struct {
	Status     TicketStatus
	AdminNotes *string
	Resolution *string
	ResolvedBy *string
	ResolvedAt *time.Time
}

// ChatMessage mirrors `support_chats`.
type ChatMessage struct {
	ID         string    `json:"id"`
	TicketID   string    `json:"ticket_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	IsStaff    bool      `json:"is_staff"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
}

// StaffAvailability mirrors `staff_availability`.
type StaffAvailability struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Department  string    `json:"department"`
	Available   bool      `json:"available"`
	ActiveLoad  int       `json:"active_load"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// LoginToken represents a temporary token linked to a user for web login
type LoginToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	AddedAt   time.Time `json:"added_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// NotificationRecord is the structured outcome of one best-effort dispatch.
// Payload holds the request so failed deliveries can be replayed.
type NotificationRecord struct {
	ID        string         `json:"id"`
	Scope     string         `json:"scope"`
	SubjectID string         `json:"subject_id"`
	Status    string         `json:"status"`
	Delivered bool           `json:"delivered"`
	MessageID *string        `json:"message_id,omitempty"`
	Error     *string        `json:"error,omitempty"`
	Payload   map[string]any `json:"payload"`
	Attempts  int            `json:"attempts"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ChangeEvent is emitted by row triggers via LISTEN/NOTIFY on channel
// `row_changes`. Old is nil for inserts, New is nil for deletes.
type ChangeEvent struct {
	Table  string         `json:"table"`
	Action string         `json:"action"`
	RowID  string         `json:"row_id"`
	UserID *string        `json:"user_id,omitempty"`
	Old    map[string]any `json:"old,omitempty"`
	New    map[string]any `json:"new,omitempty"`
	At     time.Time      `json:"at"`
}

// Event actions as written by the trigger.
const (
	ActionInsert = "insert"
	ActionUpdate = "update"
	ActionDelete = "delete"
)
