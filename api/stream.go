package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gtarp/main_backend/apperrors"
	ds "gtarp/main_backend/database_service"
	"gtarp/main_backend/realtime"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = 30 * time.Second
)

// streamContext is the lifetime of one streaming socket. push fires when the
// change feed reports a matching row.
type streamContext struct {
	context.Context
	push <-chan struct{}
}

type streamFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// streamSocket upgrades the request and writes every value produced by start
// until either side goes away. The feed subscription is released on return.
func streamSocket[T any](s *Server, c *gin.Context, filter realtime.Filter, start func(streamContext) <-chan T) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "path", c.Request.URL.Path, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var push <-chan struct{}
	if s.hub != nil {
		sub, err := s.hub.Subscribe(filter)
		if err != nil {
			s.logger.Warn("stream subscription rejected", "table", filter.Table, "error", err)
		} else {
			defer sub.Close()
			push = realtime.Signal(ctx, sub)
		}
	}

	// The read side only handles control frames and notices the close.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	values := start(streamContext{Context: ctx, push: push})
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case v, open := <-values:
			if !open {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(streamFrame{Type: "update", Data: v}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// realtimeSocket bridges the change feed to the browser. Non-staff callers
// only ever receive rows they own.
func (s *Server) realtimeSocket(c *gin.Context) {
	if s.hub == nil {
		errorWithError(c, apperrors.NewConfigurationError("Realtime feed is not enabled"))
		return
	}
	u := currentUser(c)
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "path", c.Request.URL.Path, "error", err)
		return
	}
	s.hub.ServeConn(c.Request.Context(), conn, authorizeFilter(u))
}

// authorizeFilter pins non-staff subscriptions to the caller's own rows and
// keeps staff to the tables of their departments.
func authorizeFilter(u ds.User) realtime.Authorizer {
	return func(f realtime.Filter) (realtime.Filter, error) {
		if u.Role == ds.RoleAdmin {
			return f, nil
		}
		if kind, isApplication := ds.KindForTable(f.Table); isApplication && u.CanReview(kind) {
			return f, nil
		}
		if u.Role == ds.RoleStaff && staffTables[f.Table] {
			return f, nil
		}
		if !userTables[f.Table] {
			if _, isApplication := ds.KindForTable(f.Table); !isApplication {
				return f, apperrors.NewForbiddenError("table is not available", f.Table)
			}
		}
		f.Column, f.Value = "user_id", u.ID
		return f, nil
	}
}

var (
	// Chat events carry the owning ticket's user_id, so pinning to the
	// caller limits them to chats on their own tickets.
	userTables  = map[string]bool{"support_tickets": true, "support_chats": true}
	staffTables = map[string]bool{"support_tickets": true, "support_chats": true, "staff_availability": true}
)
