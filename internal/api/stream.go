package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/feed"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = wsPongWait * 9 / 10
	wsMaxLifetime = 30 * time.Minute
)

// newUpgrader accepts browsers from the allowed origins; "*" allows all.
// Requests without an Origin header are not from a browser and pass.
func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			u, err := url.Parse(origin)
			if err != nil {
				return false
			}

			for _, a := range allowed {
				if a == "*" || strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host) {
					return true
				}
			}

			return false
		},
	}
}

// DepositStreamHandler handles GET /deposits/{id}/stream. The socket
// receives the current deposit state and then every update until the
// deposit settles.
func (h *HandlerProvider) DepositStreamHandler(w http.ResponseWriter, r *http.Request) {
	if h.svc.Stream == nil {
		h.writeError(w, http.StatusNotImplemented, "STREAM_DISABLED", "deposit stream is disabled")
		return
	}

	ctx := r.Context()
	depositID := chi.URLParam(r, "id")

	d, err := h.svc.Deposits.GetDeposit(ctx, depositID, userID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var sub *feed.Subscription

	if !d.Status.Terminal() {
		sub, err = h.svc.Stream.SubscribeDeposit(ctx, depositID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		defer sub.Close()

		// the callback may have landed between the read and the subscribe
		d, err = h.svc.Deposits.GetDeposit(ctx, depositID, userID(r))
		if err != nil {
			h.fail(w, r, err)
			return
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade", zap.String("deposit_id", depositID), zap.Error(err))
		return
	}
	defer conn.Close()

	// clear the deadlines inherited from the http server
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	_ = conn.SetWriteDeadline(time.Time{})

	if !h.sendEvent(conn, feed.NewDepositEvent(d)) || d.Status.Terminal() {
		closeSocket(conn, "settled")
		return
	}

	gone := make(chan struct{})

	go func() {
		defer close(gone)

		conn.SetReadLimit(512)
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})

		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	lifetime := time.NewTimer(wsMaxLifetime)
	defer lifetime.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case <-lifetime.C:
			closeSocket(conn, "timeout")
			return
		case <-ping.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			if err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				closeSocket(conn, "feed closed")
				return
			}

			if !h.sendEvent(conn, ev) {
				return
			}

			if ev.Status != models.DepositPending {
				closeSocket(conn, "settled")
				return
			}
		}
	}
}

func (h *HandlerProvider) sendEvent(conn *websocket.Conn, ev feed.DepositEvent) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))

	err := conn.WriteJSON(ev)
	if err != nil {
		h.log.Debug("websocket write", zap.String("deposit_id", ev.DepositID), zap.Error(err))
		return false
	}

	return true
}

func closeSocket(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
}
