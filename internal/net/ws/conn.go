package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pschroen/multiuser-balls/internal/telemetry"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("ws: connection closed")
	// ErrSendQueueFull is returned when the peer cannot keep up with broadcasts.
	ErrSendQueueFull = errors.New("ws: send queue full")
)

// ConnConfig tunes one connection.
type ConnConfig struct {
	SendBuffer     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	Metrics        telemetry.Metrics
}

func (cfg ConnConfig) normalized() ConnConfig {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 512
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = writeWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = pongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = (cfg.PongWait * 9) / 10
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NopMetrics()
	}
	return cfg
}

// Conn adapts a websocket to the hub's outbound connection contract: Send
// never blocks and is safe from any goroutine; a single write pump owns
// the socket's writer.
type Conn struct {
	ws  *websocket.Conn
	cfg ConnConfig

	send      chan []byte
	closing   chan struct{}
	closeOnce sync.Once
}

// NewConn wraps ws. Call WritePump in its own goroutine and ReadPump on the
// serving goroutine.
func NewConn(ws *websocket.Conn, cfg ConnConfig) *Conn {
	cfg = cfg.normalized()
	return &Conn{
		ws:      ws,
		cfg:     cfg,
		send:    make(chan []byte, cfg.SendBuffer),
		closing: make(chan struct{}),
	}
}

// Send queues one binary message.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.closing:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.closing:
		return ErrClosed
	default:
		c.cfg.Metrics.Add(telemetry.MetricSendQueueDrops, 1)
		return ErrSendQueueFull
	}
}

// Close asks the write pump to send a close frame and release the socket.
// It is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closing) })
	return nil
}

// WritePump drains the send queue and keeps the peer alive with pings.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, message); err != nil {
				return
			}
			c.cfg.Metrics.Add(telemetry.MetricBytesSent, uint64(len(message)))
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closing:
			c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// ReadPump delivers every inbound message to onMessage in arrival order and
// returns the error that ended the connection.
func (c *Conn) ReadPump(onMessage func([]byte)) error {
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		onMessage(data)
	}
}
