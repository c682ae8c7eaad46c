package database_service

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// ListStaffAvailability returns every staff presence row, optionally for one
// department.
func (db *DB) ListStaffAvailability(ctx context.Context, department string) ([]StaffAvailability, error) {
	rows, err := db.pool.Query(ctx, `
        SELECT user_id, display_name, department, available, active_load, last_seen_at
        FROM staff_availability
        WHERE $1 = '' OR department = $1
        ORDER BY department, display_name
    `, department)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StaffAvailability
	for rows.Next() {
		var s StaffAvailability
		if err := rows.Scan(&s.UserID, &s.DisplayName, &s.Department, &s.Available, &s.ActiveLoad, &s.LastSeenAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetStaffAvailability upserts the caller's presence row.
func (db *DB) SetStaffAvailability(ctx context.Context, actor string, s StaffAvailability) (StaffAvailability, error) {
	var out StaffAvailability
	err := db.inTx(ctx, actor, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
            INSERT INTO staff_availability (user_id, display_name, department, available, last_seen_at)
            VALUES ($1, $2, $3, $4, now())
            ON CONFLICT (user_id, department)
            DO UPDATE SET display_name = EXCLUDED.display_name, available = EXCLUDED.available, last_seen_at = now()
            RETURNING user_id, display_name, department, available, active_load, last_seen_at
        `, s.UserID, s.DisplayName, s.Department, s.Available).Scan(
			&out.UserID, &out.DisplayName, &out.Department, &out.Available, &out.ActiveLoad, &out.LastSeenAt)
	})
	if err != nil {
		return StaffAvailability{}, err
	}
	return out, nil
}

// RebalanceStaffWorkload runs the rebalance_staff_workload procedure and
// returns how many assignments it moved. The algorithm lives in the database.
func (db *DB) RebalanceStaffWorkload(ctx context.Context, actor string) (int, error) {
	var moved int
	err := db.inTx(ctx, actor, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `SELECT rebalance_staff_workload()`).Scan(&moved)
	})
	return moved, err
}
