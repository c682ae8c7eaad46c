package database_service

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
)

const notificationColumns = `id, scope, subject_id, status, delivered, message_id, error, payload, attempts, created_at, updated_at`

func scanNotification(row pgx.Row) (NotificationRecord, error) {
	var n NotificationRecord
	var payload []byte
	if err := row.Scan(&n.ID, &n.Scope, &n.SubjectID, &n.Status, &n.Delivered, &n.MessageID, &n.Error,
		&payload, &n.Attempts, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return NotificationRecord{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return NotificationRecord{}, err
		}
	}
	return n, nil
}

// RecordNotification upserts the outcome for (scope, subject, status).
// Attempts counts every recorded try.
func (db *DB) RecordNotification(ctx context.Context, rec NotificationRecord) (NotificationRecord, error) {
	if rec.Payload == nil {
		rec.Payload = map[string]any{}
	}
	var out NotificationRecord
	err := db.inTx(ctx, "notifier", func(tx pgx.Tx) error {
		var err error
		out, err = scanNotification(tx.QueryRow(ctx, `
            INSERT INTO notification_log (scope, subject_id, status, delivered, message_id, error, payload, attempts)
            VALUES ($1, $2, $3, $4, $5, $6, $7, 1)
            ON CONFLICT (scope, subject_id, status)
            DO UPDATE SET delivered = EXCLUDED.delivered, message_id = EXCLUDED.message_id,
                          error = EXCLUDED.error, payload = EXCLUDED.payload,
                          attempts = notification_log.attempts + 1, updated_at = now()
            RETURNING `+notificationColumns,
			rec.Scope, rec.SubjectID, rec.Status, rec.Delivered, rec.MessageID, rec.Error, rec.Payload))
		return err
	})
	if err != nil {
		return NotificationRecord{}, err
	}
	return out, nil
}

// ListFailedNotifications returns undelivered records, oldest first.
func (db *DB) ListFailedNotifications(ctx context.Context, limit int) ([]NotificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.pool.Query(ctx, `
        SELECT `+notificationColumns+` FROM notification_log
        WHERE delivered = false ORDER BY created_at ASC LIMIT $1
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NotificationRecord
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
