package database_service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildApplicationQuery(t *testing.T) {
	t.Run("no filters", func(t *testing.T) {
		sql, args := buildApplicationQuery("job_applications", ApplicationFilter{}, 0, -3)
		assert.Contains(t, sql, "FROM job_applications WHERE 1=1 ORDER BY created_at DESC LIMIT $1 OFFSET $2")
		assert.Equal(t, []any{500, 0}, args)
	})

	t.Run("all filters in order", func(t *testing.T) {
		user := "u-1"
		status := StatusRejected
		after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		before := after.Add(24 * time.Hour)

		sql, args := buildApplicationQuery("ban_appeals", ApplicationFilter{
			UserID:        &user,
			StatusEquals:  &status,
			CreatedAfter:  &after,
			CreatedBefore: &before,
		}, 10, 20)

		assert.Contains(t, sql, "user_id = $1 AND status = $2 AND created_at >= $3 AND created_at <= $4")
		assert.Contains(t, sql, "LIMIT $5 OFFSET $6")
		require.Len(t, args, 6)
		assert.Equal(t, "u-1", args[0])
		assert.Equal(t, StatusRejected, args[1])
		assert.Equal(t, 10, args[4])
		assert.Equal(t, 20, args[5])
	})
}

func TestKindTablesAndDepartments(t *testing.T) {
	for _, k := range Kinds {
		assert.True(t, k.Valid(), k)
		assert.NotEmpty(t, k.Table(), k)
		assert.NotEmpty(t, k.Department(), k)

		back, ok := KindForTable(k.Table())
		require.True(t, ok)
		assert.Equal(t, k, back)
	}
	assert.False(t, Kind("racing").Valid())
	_, ok := KindForTable("support_tickets")
	assert.False(t, ok)
}

func TestUserCanReview(t *testing.T) {
	admin := User{Role: RoleAdmin}
	staff := User{Role: RoleStaff, Departments: []string{"moderation"}}
	player := User{Role: RoleUser, Departments: []string{"moderation"}}

	assert.True(t, admin.CanReview(KindGang))
	assert.True(t, staff.CanReview(KindBanAppeal))
	assert.False(t, staff.CanReview(KindWhitelist))
	assert.False(t, player.CanReview(KindBanAppeal))
}

func TestDecodeChangeEvent(t *testing.T) {
	ev, err := DecodeChangeEvent(`{"table":"whitelist_applications","action":"update","row_id":"a1",
		"user_id":"u1","old":{"status":"pending"},"new":{"status":"approved"},"at":"2026-10-19T10:00:00.000001Z"}`)
	require.NoError(t, err)
	assert.Equal(t, "whitelist_applications", ev.Table)
	assert.Equal(t, ActionUpdate, ev.Action)
	require.NotNil(t, ev.UserID)
	assert.Equal(t, "u1", *ev.UserID)
	assert.Equal(t, "approved", ev.New["status"])
	assert.Equal(t, 2026, ev.At.Year())

	_, err = DecodeChangeEvent(`{"row_id":"a1"}`)
	assert.Error(t, err)
	_, err = DecodeChangeEvent(`not json`)
	assert.Error(t, err)
}

func TestStatusValidity(t *testing.T) {
	assert.True(t, StatusOnHold.Valid())
	assert.False(t, Status("archived").Valid())
	assert.True(t, TicketResolved.Valid())
	assert.False(t, TicketStatus("closed").Valid())
	assert.True(t, PriorityCritical.Valid())
	assert.False(t, TicketPriority("urgent").Valid())
}

func TestNoRow(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no rows", pgx.ErrNoRows, true},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), true},
		{"malformed uuid", &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"other", fmt.Errorf("connection reset"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, noRow(tt.err))
		})
	}
}

func TestChangeFeedOmitsFreeText(t *testing.T) {
	raw, err := migrationFS.ReadFile("migrations/00002_slim_change_feed.sql")
	require.NoError(t, err)
	up, _, found := strings.Cut(string(raw), "-- +goose Down")
	require.True(t, found)

	for _, col := range []string{"answers", "description", "admin_notes", "resolution", "message"} {
		assert.Contains(t, up, "'"+col+"'", "change payload must drop %s", col)
	}
	assert.Contains(t, up, "octet_length(payload)")
	assert.Contains(t, up, "FROM support_tickets", "chat events resolve the ticket owner")
}
