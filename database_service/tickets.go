package database_service

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
)

const ticketColumns = `id, ticket_number, user_id, discord_id, category, priority, status, subject, description,
    attachment_url, admin_notes, resolution, resolved_by, resolved_at, created_at, updated_at`

func scanTicket(row pgx.Row) (Ticket, error) {
	var t Ticket
	err := row.Scan(&t.ID, &t.TicketNumber, &t.UserID, &t.DiscordID, &t.Category, &t.Priority, &t.Status,
		&t.Subject, &t.Description, &t.AttachmentURL, &t.AdminNotes, &t.Resolution, &t.ResolvedBy,
		&t.ResolvedAt, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

// InsertTicket stores a new ticket in the open state.
func (db *DB) InsertTicket(ctx context.Context, actor string, t Ticket) (Ticket, error) {
	if t.UserID == "" {
		return Ticket{}, errors.New("user_id required")
	}
	var out Ticket
	err := db.inTx(ctx, actor, func(tx pgx.Tx) error {
		var err error
		out, err = scanTicket(tx.QueryRow(ctx, `
            INSERT INTO support_tickets (ticket_number, user_id, discord_id, category, priority, status, subject, description, attachment_url)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
            RETURNING `+ticketColumns,
			t.TicketNumber, t.UserID, t.DiscordID, t.Category, t.Priority, TicketOpen, t.Subject, t.Description, t.AttachmentURL))
		return err
	})
	if err != nil {
		return Ticket{}, err
	}
	return out, nil
}

// GetTicket returns the ticket or nil when missing.
func (db *DB) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	t, err := scanTicket(db.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM support_tickets WHERE id = $1`, id))
	if err != nil {
		if noRow(err) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

type TicketFilter struct {
	UserID *string
	Status *TicketStatus
}

// ListTickets returns tickets newest first.
func (db *DB) ListTickets(ctx context.Context, f TicketFilter, limit int) ([]Ticket, error) {
	where := "WHERE 1=1"
	args := []any{}
	if f.UserID != nil {
		args = append(args, *f.UserID)
		where += " AND user_id = $" + strconv.Itoa(len(args))
	}
	if f.Status != nil {
		args = append(args, *f.Status)
		where += " AND status = $" + strconv.Itoa(len(args))
	}
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)

	rows, err := db.pool.Query(ctx, `SELECT `+ticketColumns+` FROM support_tickets `+where+
		` ORDER BY created_at DESC LIMIT $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTicket applies a status change. When the new status is not
// resolved the resolution columns are cleared in the same statement.
func (db *DB) UpdateTicket(ctx context.Context, actor string, id string, u TicketUpdate) (Ticket, error) {
	var out Ticket
	err := db.inTx(ctx, actor, func(tx pgx.Tx) error {
		var err error
		out, err = scanTicket(tx.QueryRow(ctx, `
            UPDATE support_tickets SET
                status      = $2,
                admin_notes = COALESCE($3, admin_notes),
                resolution  = CASE WHEN $2::text = 'resolved' THEN $4::text ELSE NULL END,
                resolved_by = CASE WHEN $2::text = 'resolved' THEN $5::text ELSE NULL END,
                resolved_at = CASE WHEN $2::text = 'resolved' THEN $6::timestamptz ELSE NULL END,
                updated_at  = now()
            WHERE id = $1
            RETURNING `+ticketColumns,
			id, u.Status, u.AdminNotes, u.Resolution, u.ResolvedBy, u.ResolvedAt))
		return err
	})
	if err != nil {
		if noRow(err) {
			return Ticket{}, ErrNotFound
		}
		return Ticket{}, err
	}
	return out, nil
}

// InsertChatMessage appends a live-chat message to a ticket.
func (db *DB) InsertChatMessage(ctx context.Context, actor string, m ChatMessage) (ChatMessage, error) {
	var out ChatMessage
	err := db.inTx(ctx, actor, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
            INSERT INTO support_chats (ticket_id, author_id, author_name, is_staff, message)
            VALUES ($1, $2, $3, $4, $5)
            RETURNING id, ticket_id, author_id, author_name, is_staff, message, created_at
        `, m.TicketID, m.AuthorID, m.AuthorName, m.IsStaff, m.Message).Scan(
			&out.ID, &out.TicketID, &out.AuthorID, &out.AuthorName, &out.IsStaff, &out.Message, &out.CreatedAt)
	})
	if err != nil {
		return ChatMessage{}, err
	}
	return out, nil
}

// ListChatMessages returns a ticket's chat in posting order.
func (db *DB) ListChatMessages(ctx context.Context, ticketID string) ([]ChatMessage, error) {
	rows, err := db.pool.Query(ctx, `
        SELECT id, ticket_id, author_id, author_name, is_staff, message, created_at
        FROM support_chats WHERE ticket_id = $1 ORDER BY created_at ASC
    `, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.TicketID, &m.AuthorID, &m.AuthorName, &m.IsStaff, &m.Message, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
