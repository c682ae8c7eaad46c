package database_service

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const userColumns = `id, discord_user_id, discord_username, role, departments, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.DiscordUserID, &u.DiscordUsername, &u.Role, &u.Departments, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// UpsertUser inserts or updates a user row based on Discord user id. Role and
// departments are never touched here.
func (db *DB) UpsertUser(ctx context.Context, actor string, u User) (User, error) {
	var out User
	err := db.inTx(ctx, actor, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            INSERT INTO users (discord_user_id, discord_username)
            VALUES ($1, $2)
            ON CONFLICT (discord_user_id)
            DO UPDATE SET discord_username = EXCLUDED.discord_username, updated_at = now()
            RETURNING `+userColumns, u.DiscordUserID, u.DiscordUsername)
		var err error
		out, err = scanUser(row)
		return err
	})
	if err != nil {
		return User{}, err
	}
	return out, nil
}

// GetUser returns the user or nil when missing.
func (db *DB) GetUser(ctx context.Context, id string) (*User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if noRow(err) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByDiscordID finds a user by discord_user_id.
func (db *DB) GetUserByDiscordID(ctx context.Context, discordUserID int64) (*User, error) {
	u, err := scanUser(db.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE discord_user_id = $1`, discordUserID))
	if err != nil {
		if noRow(err) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// SetUserRole grants a role and department scope.
func (db *DB) SetUserRole(ctx context.Context, actor string, userID string, role string, departments []string) (User, error) {
	if departments == nil {
		departments = []string{}
	}
	var out User
	err := db.inTx(ctx, actor, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
            UPDATE users SET role = $2, departments = $3, updated_at = now()
            WHERE id = $1
            RETURNING `+userColumns, userID, role, departments)
		var err error
		out, err = scanUser(row)
		return err
	})
	if err != nil {
		if noRow(err) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return out, nil
}
