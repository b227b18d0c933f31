package ws

import (
	"context"
	"errors"
	stdnet "net"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	server "github.com/pschroen/multiuser-balls"
	"github.com/pschroen/multiuser-balls/internal/session"
	"github.com/pschroen/multiuser-balls/internal/telemetry"
)

// Hub is the session owner the handler feeds.
type Hub interface {
	Connect(ctx context.Context, conn session.Conn, req server.ConnectRequest) (server.Admission, error)
	Deliver(id int, conn session.Conn, payload []byte)
	Disconnect(id int, conn session.Conn)
}

type HandlerConfig struct {
	Logger     telemetry.Logger
	Conn       ConnConfig
	TrustProxy bool
}

type Handler struct {
	hub      Hub
	logger   telemetry.Logger
	cfg      HandlerConfig
	upgrader websocket.Upgrader
}

func NewHandler(hub Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.LoggerFunc(nil)
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *nethttp.Request) bool {
			return true
		},
	}

	return &Handler{
		hub:      hub,
		logger:   logger,
		cfg:      cfg,
		upgrader: upgrader,
	}
}

// Handle upgrades the request and serves the session until either side
// closes. The observer query parameter requests a session without a pointer.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	address := RemoteAddress(r, h.cfg.TrustProxy)
	_, observer := r.URL.Query()["observer"]

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[ws] upgrade failed address=%s: %v", address, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	conn := NewConn(wsConn, h.cfg.Conn)
	admission, err := h.hub.Connect(ctx, conn, server.ConnectRequest{Address: address, Observer: observer})
	cancel()
	if err != nil {
		code, reason := websocket.CloseInternalServerErr, "unavailable"
		if errors.Is(err, session.ErrFull) {
			code, reason = websocket.CloseTryAgainLater, "server full"
		}
		h.logger.Printf("[ws] rejecting address=%s: %v", address, err)
		deadline := time.Now().Add(writeWait)
		wsConn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		wsConn.Close()
		return
	}

	go conn.WritePump()

	err = conn.ReadPump(func(payload []byte) {
		h.hub.Deliver(admission.ID, conn, payload)
	})
	if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
		h.logger.Printf("[ws] read error id=%d address=%s: %v", admission.ID, admission.Address, err)
	}
	h.hub.Disconnect(admission.ID, conn)
	conn.Close()
}

// RemoteAddress returns the client address: the first X-Forwarded-For entry
// when trustProxy is set and the header is present, otherwise the peer host.
func RemoteAddress(r *nethttp.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := stdnet.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
