package database_service

import (
	"context"
	"sort"
	"strconv"
	"time"
)

// ApplicationFilter narrows FindApplications. Empty Kinds means every kind.
type ApplicationFilter struct {
	Kinds         []Kind
	UserID        *string
	StatusEquals  *Status
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

// buildApplicationQuery renders the per-table SELECT for f. Kept separate
// from FindApplications so the clause building can be tested without a
// database.
func buildApplicationQuery(table string, f ApplicationFilter, limit, offset int) (string, []any) {
	where := "WHERE 1=1"
	args := []any{}

	if f.UserID != nil {
		args = append(args, *f.UserID)
		where += " AND user_id = $" + strconv.Itoa(len(args))
	}
	if f.StatusEquals != nil {
		args = append(args, *f.StatusEquals)
		where += " AND status = $" + strconv.Itoa(len(args))
	}
	if f.CreatedAfter != nil {
		args = append(args, *f.CreatedAfter)
		where += " AND created_at >= $" + strconv.Itoa(len(args))
	}
	if f.CreatedBefore != nil {
		args = append(args, *f.CreatedBefore)
		where += " AND created_at <= $" + strconv.Itoa(len(args))
	}

	if limit <= 0 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}

	sql := "SELECT " + applicationColumns + " FROM " + table + " " + where +
		" ORDER BY created_at DESC LIMIT $" + strconv.Itoa(len(args)+1) + " OFFSET $" + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)
	return sql, args
}

// FindApplications queries each selected kind's table and merges the rows,
// newest first. limit and offset apply per table.
func (db *DB) FindApplications(ctx context.Context, f ApplicationFilter, limit int, offset int) ([]Application, error) {
	kinds := f.Kinds
	if len(kinds) == 0 {
		kinds = Kinds
	}

	var out []Application
	for _, kind := range kinds {
		table, err := tableFor(kind)
		if err != nil {
			return nil, err
		}
		sql, args := buildApplicationQuery(table, f, limit, offset)
		rows, err := db.pool.Query(ctx, sql, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			a, err := scanApplication(rows, kind)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
