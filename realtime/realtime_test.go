package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/logger"
)

func strPtr(s string) *string { return &s }

func event(table, action, userID string, row map[string]any) ds.ChangeEvent {
	ev := ds.ChangeEvent{Table: table, Action: action, RowID: "r1", UserID: strPtr(userID), At: time.Now()}
	if action == ds.ActionDelete {
		ev.Old = row
	} else {
		ev.New = row
	}
	return ev
}

func TestFilterMatch(t *testing.T) {
	upd := event("gang_applications", ds.ActionUpdate, "u1", map[string]any{"status": "approved", "id": "r1"})
	del := event("gang_applications", ds.ActionDelete, "u1", map[string]any{"status": "pending"})

	assert.True(t, Filter{Table: "gang_applications", Action: "*"}.Match(upd))
	assert.True(t, Filter{Table: "gang_applications"}.Match(del))
	assert.False(t, Filter{Table: "gang_applications", Action: ds.ActionInsert}.Match(upd))
	assert.False(t, Filter{Table: "pdm_applications", Action: "*"}.Match(upd))
	assert.True(t, Filter{Table: "gang_applications", Action: "*", Column: "user_id", Value: "u1"}.Match(upd))
	assert.False(t, Filter{Table: "gang_applications", Action: "*", Column: "user_id", Value: "u2"}.Match(upd))
	assert.True(t, Filter{Table: "gang_applications", Action: "*", Column: "status", Value: "pending"}.Match(del))
	assert.False(t, Filter{Table: "gang_applications", Action: "*", Column: "answers", Value: "x"}.Match(upd))
}

func TestFilterValidate(t *testing.T) {
	assert.NoError(t, Filter{Table: "support_tickets", Action: "update"}.Validate())
	assert.Error(t, Filter{Action: "*"}.Validate())
	assert.Error(t, Filter{Table: "t", Action: "truncate"}.Validate())
	assert.Error(t, Filter{Table: "t", Column: "status"}.Validate())
}

func TestHubSubscribePublishClose(t *testing.T) {
	h := NewHub(1, logger.Nop())
	mine, err := h.Subscribe(Filter{Table: "support_tickets", Action: "*", Column: "user_id", Value: "u1"})
	require.NoError(t, err)
	other, err := h.Subscribe(Filter{Table: "support_tickets", Action: ds.ActionInsert})
	require.NoError(t, err)
	assert.Equal(t, 2, h.Len())

	h.Publish(event("support_tickets", ds.ActionUpdate, "u1", map[string]any{"status": "resolved"}))
	select {
	case ev := <-mine.C:
		assert.Equal(t, ds.ActionUpdate, ev.Action)
	default:
		t.Fatal("expected event for matching subscription")
	}
	select {
	case <-other.C:
		t.Fatal("insert-only subscription received an update")
	default:
	}

	// Buffer of one: the second publish is dropped instead of blocking.
	h.Publish(event("support_tickets", ds.ActionUpdate, "u1", nil))
	h.Publish(event("support_tickets", ds.ActionUpdate, "u1", nil))
	assert.Equal(t, uint64(1), h.Dropped())

	mine.Close()
	mine.Close()
	other.Close()
	assert.Equal(t, 0, h.Len())
	_, ok := <-other.C
	assert.False(t, ok)
}

type fakeSource struct {
	starts atomic.Int32
	events chan ds.ChangeEvent
}

func (f *fakeSource) ListenChanges(ctx context.Context) (<-chan ds.ChangeEvent, <-chan error, error) {
	if f.starts.Add(1) == 1 {
		return nil, nil, errors.New("connection refused")
	}
	errs := make(chan error)
	out := make(chan ds.ChangeEvent)
	go func() {
		defer close(out)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-f.events:
				out <- ev
			}
		}
	}()
	return out, errs, nil
}

func TestRunReconnectsAndPublishes(t *testing.T) {
	h := NewHub(4, logger.Nop())
	sub, err := h.Subscribe(Filter{Table: "whitelist_applications", Action: "*"})
	require.NoError(t, err)
	defer sub.Close()

	src := &fakeSource{events: make(chan ds.ChangeEvent)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx, src) }()

	src.events <- event("whitelist_applications", ds.ActionInsert, "u1", map[string]any{"status": "pending"})
	select {
	case ev := <-sub.C:
		assert.Equal(t, ds.ActionInsert, ev.Action)
	case <-time.After(5 * time.Second):
		t.Fatal("event not delivered")
	}
	assert.GreaterOrEqual(t, src.starts.Load(), int32(2))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestWatcherPollAndPush(t *testing.T) {
	var loads atomic.Int32
	values := []int{1, 1, 2, 2, 3}
	w := Watcher[int]{
		Interval: time.Hour,
		Load: func(ctx context.Context) (int, error) {
			n := int(loads.Add(1)) - 1
			if n >= len(values) {
				return values[len(values)-1], nil
			}
			return values[n], nil
		},
		Equal: func(a, b int) bool { return a == b },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	push := make(chan struct{})
	out := w.Run(ctx, push)

	assert.Equal(t, 1, <-out)
	push <- struct{}{} // 1 again: suppressed
	push <- struct{}{} // 2
	assert.Equal(t, 2, <-out)
	push <- struct{}{} // 2 again: suppressed
	push <- struct{}{} // 3
	assert.Equal(t, 3, <-out)

	cancel()
	for range out {
	}
}

func TestWatcherPollsWithoutPush(t *testing.T) {
	var loads atomic.Int32
	w := Watcher[int32]{
		Interval: 10 * time.Millisecond,
		Load:     func(context.Context) (int32, error) { return loads.Add(1), nil },
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := w.Run(ctx, nil)
	assert.Equal(t, int32(1), <-out)
	assert.Equal(t, int32(2), <-out)
}

func TestServeConn(t *testing.T) {
	h := NewHub(8, logger.Nop())
	upgrader := NewUpgrader(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.ServeConn(r.Context(), conn, func(f Filter) (Filter, error) {
			if f.Table == "users" {
				return f, errors.New("forbidden table")
			}
			f.Column, f.Value = "user_id", "u1"
			return f, nil
		})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() ServerMessage {
		var m ServerMessage
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&m))
		return m
	}

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgSubscribe, ID: "s1", Filter: Filter{Table: "users", Action: "*"}}))
	m := read()
	assert.Equal(t, MsgError, m.Type)
	assert.Equal(t, "forbidden table", m.Message)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgSubscribe, ID: "s1", Filter: Filter{Table: "support_tickets", Action: "*"}}))
	assert.Equal(t, MsgSubscribed, read().Type)
	assert.Equal(t, 1, h.Len())

	h.Publish(event("support_tickets", ds.ActionUpdate, "u2", map[string]any{"status": "open"}))
	h.Publish(event("support_tickets", ds.ActionUpdate, "u1", map[string]any{"status": "resolved"}))
	m = read()
	assert.Equal(t, MsgChange, m.Type)
	assert.Equal(t, "s1", m.ID)
	require.NotNil(t, m.Event)
	assert.Equal(t, "resolved", m.Event.New["status"])

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgUnsubscribe, ID: "s1"}))
	assert.Equal(t, MsgUnsubscribed, read().Type)
	assert.Equal(t, 0, h.Len())

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MsgSubscribe, ID: "s2", Filter: Filter{Table: "support_tickets"}}))
	assert.Equal(t, MsgSubscribed, read().Type)
	conn.Close()
	assert.Eventually(t, func() bool { return h.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
}
