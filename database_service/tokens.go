package database_service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

var ErrInvalidOrExpiredToken = errors.New("invalid or expired token")

const tokenColumns = `id, user_id, token, added_at, expires_at, revoked`

func scanToken(row pgx.Row) (LoginToken, error) {
	var t LoginToken
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.AddedAt, &t.ExpiresAt, &t.Revoked)
	return t, err
}

// lockToken validates an active token, locks its row and revokes it.
func lockToken(ctx context.Context, tx pgx.Tx, token string) (string, error) {
	var userID string
	err := tx.QueryRow(ctx, `
        SELECT user_id FROM login_tokens
        WHERE token = $1 AND revoked = false AND expires_at > now()
        FOR UPDATE
    `, token).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrInvalidOrExpiredToken
		}
		return "", err
	}
	if _, err := tx.Exec(ctx, `UPDATE login_tokens SET revoked = true WHERE token = $1`, token); err != nil {
		return "", err
	}
	return userID, nil
}

// ConsumeToken marks a one-time login token as used and returns its user.
// The web login exchanges it for a session.
func (db *DB) ConsumeToken(ctx context.Context, actor string, token string) (User, error) {
	var u User
	err := db.inTx(ctx, actor, func(tx pgx.Tx) error {
		userID, err := lockToken(ctx, tx, token)
		if err != nil {
			return err
		}
		u, err = scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
		return err
	})
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// CreateOrRotateLoginToken ensures a user exists and issues a fresh token,
// revoking any still-active one. Called by the Discord bot, which already
// knows the snowflake and username.
func (db *DB) CreateOrRotateLoginToken(ctx context.Context, actor string, discordUserID int64, discordUsername string, ttl time.Duration) (User, LoginToken, error) {
	user, err := db.UpsertUser(ctx, actor, User{DiscordUserID: discordUserID, DiscordUsername: discordUsername})
	if err != nil {
		return User{}, LoginToken{}, err
	}

	var tok LoginToken
	err = db.inTx(ctx, actor, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE login_tokens SET revoked = true WHERE user_id = $1 AND revoked = false AND expires_at > now()`, user.ID); err != nil {
			return err
		}
		var err error
		tok, err = scanToken(tx.QueryRow(ctx, `
            INSERT INTO login_tokens (user_id, token, added_at, expires_at)
            VALUES ($1, gen_random_uuid(), now(), now() + make_interval(secs => $2))
            RETURNING `+tokenColumns, user.ID, ttl.Seconds()))
		return err
	})
	if err != nil {
		return User{}, LoginToken{}, err
	}
	return user, tok, nil
}
