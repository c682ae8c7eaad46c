package database_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const applicationColumns = `id, user_id, discord_id, discord_username, answers, status, admin_notes, reviewed_by, reviewed_at, created_at, updated_at`

func scanApplication(row pgx.Row, kind Kind) (Application, error) {
	var a Application
	var answersRaw []byte
	if err := row.Scan(&a.ID, &a.UserID, &a.DiscordID, &a.DiscordUsername, &answersRaw, &a.Status,
		&a.AdminNotes, &a.ReviewedBy, &a.ReviewedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Application{}, err
	}
	a.Kind = kind
	if len(answersRaw) > 0 {
		if err := json.Unmarshal(answersRaw, &a.Answers); err != nil {
			return Application{}, err
		}
	}
	return a, nil
}

func tableFor(kind Kind) (string, error) {
	table := kind.Table()
	if table == "" {
		return "", fmt.Errorf("unknown application kind %q", kind)
	}
	return table, nil
}

// InsertApplication stores a new submission. Status is always forced to
// pending; resubmissions create a new row.
func (db *DB) InsertApplication(ctx context.Context, actor string, app Application) (Application, error) {
	if app.UserID == "" {
		return Application{}, errors.New("user_id required")
	}
	table, err := tableFor(app.Kind)
	if err != nil {
		return Application{}, err
	}
	if app.Answers == nil {
		app.Answers = map[string]any{}
	}

	var out Application
	err = db.inTx(ctx, actor, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            INSERT INTO `+table+` (user_id, discord_id, discord_username, answers, status)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING `+applicationColumns,
			app.UserID, app.DiscordID, app.DiscordUsername, app.Answers, StatusPending)
		var err error
		out, err = scanApplication(row, app.Kind)
		return err
	})
	if err != nil {
		return Application{}, err
	}
	return out, nil
}

// GetApplication returns the application or nil when it does not exist.
func (db *DB) GetApplication(ctx context.Context, kind Kind, id string) (*Application, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	row := db.pool.QueryRow(ctx, `SELECT `+applicationColumns+` FROM `+table+` WHERE id = $1`, id)
	a, err := scanApplication(row, kind)
	if err != nil {
		if noRow(err) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ListUserApplications returns every submission of kind by the user, newest first.
func (db *DB) ListUserApplications(ctx context.Context, kind Kind, userID string) ([]Application, error) {
	uid := userID
	return db.FindApplications(ctx, ApplicationFilter{Kinds: []Kind{kind}, UserID: &uid}, 0, 0)
}

// UpdateApplicationReview writes status, notes and review metadata in one
// statement so the reviewer and timestamp land atomically with the status.
func (db *DB) UpdateApplicationReview(ctx context.Context, actor string, kind Kind, id string, u ReviewUpdate) (Application, error) {
	table, err := tableFor(kind)
	if err != nil {
		return Application{}, err
	}
	var out Application
	err = db.inTx(ctx, actor, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            UPDATE `+table+` SET
                status      = $2,
                admin_notes = COALESCE($3, admin_notes),
                reviewed_by = COALESCE($4, reviewed_by),
                reviewed_at = COALESCE($5, reviewed_at),
                updated_at  = now()
            WHERE id = $1
            RETURNING `+applicationColumns,
			id, u.Status, u.AdminNotes, u.ReviewedBy, u.ReviewedAt)
		var err error
		out, err = scanApplication(row, kind)
		return err
	})
	if err != nil {
		if noRow(err) {
			return Application{}, ErrNotFound
		}
		return Application{}, err
	}
	return out, nil
}

// DeleteApplications is the administrative bulk delete. It is not part of
// the review lifecycle.
func (db *DB) DeleteApplications(ctx context.Context, actor string, kind Kind, ids []string) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.inTx(ctx, actor, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE id = ANY($1)`, ids)
		n = tag.RowsAffected()
		return err
	})
	return n, err
}
