package database_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ChangeChannel is the NOTIFY channel written by the row_change trigger.
const ChangeChannel = "row_changes"

// ListenChanges subscribes to ChangeChannel and emits decoded events.
// Cancel the provided context to stop listening; both returned channels
// then close and the connection goes back to the pool.
func (db *DB) ListenChanges(ctx context.Context) (<-chan ChangeEvent, <-chan error, error) {
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}

	raw := conn.Conn()
	if _, err := raw.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		conn.Release()
		return nil, nil, err
	}

	events := make(chan ChangeEvent)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)
		defer func() {
			_, _ = raw.Exec(context.Background(), "UNLISTEN "+ChangeChannel)
			conn.Release()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			// Wait with a timeout so the loop re-checks ctx.
			ctxWait, cancel := context.WithTimeout(ctx, 55*time.Second)
			notif, err := raw.WaitForNotification(ctxWait)
			cancel()
			if err != nil {
				if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
					continue
				}
				if errors.Is(err, context.Canceled) {
					return
				}
				errs <- fmt.Errorf("listen error: %w", err)
				return
			}

			ev, err := DecodeChangeEvent(notif.Payload)
			if err != nil {
				select {
				case errs <- err:
				default:
				}
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, errs, nil
}

// DecodeChangeEvent parses a trigger payload.
func DecodeChangeEvent(payload string) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode notify payload: %w", err)
	}
	if ev.Table == "" || ev.Action == "" {
		return ChangeEvent{}, fmt.Errorf("decode notify payload: missing table or action")
	}
	return ev, nil
}
