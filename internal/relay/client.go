package relay

import (
	"errors"
	"io"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/gochat/internal/config"
	"github.com/Tyrowin/gochat/internal/protocol"
	"github.com/Tyrowin/gochat/internal/transport"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Client is one relay connection. Identity and room fields are owned by the
// hub goroutine.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	addr    string
	host    string
	limiter *rate.Limiter
	logger  *zap.Logger

	username string
	named    bool
	room     string
}

func newClient(hub *Hub, conn *websocket.Conn, addr, host string, cfg config.RelayConfig) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limit := rate.Limit(float64(cfg.RateLimit.Burst) / cfg.RateLimit.RefillInterval.Seconds())

	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		addr:    addr,
		host:    host,
		limiter: rate.NewLimiter(limit, cfg.RateLimit.Burst),
		logger:  hub.logger.With(zap.String("remote", addr)),
	}
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Debug("set read deadline", zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// logReadError reports why the read loop ended.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("message exceeded maximum size")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.logger.Info("client disconnected", zap.Error(err))
	case errors.Is(err, io.EOF) || transport.IsExpectedCloseError(err):
		c.logger.Info("client connection closed", zap.Error(err))
	default:
		c.logger.Warn("websocket read error", zap.Error(err))
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		if err := c.conn.Close(); err != nil && !transport.IsExpectedCloseError(err) {
			c.logger.Debug("close connection", zap.Error(err))
		}
	}()

	c.setupReadConnection()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.limiter.Allow() {
			c.hub.metrics.RateLimited()
			c.logger.Warn("rate limit exceeded, discarding message")
			continue
		}

		env, err := protocol.Decode(data)
		if err != nil {
			c.hub.metrics.DecodeError()
			c.logger.Warn("invalid message", zap.Error(err))
		} else {
			c.hub.metrics.EnvelopeReceived(string(env.Kind))
		}

		if !c.hub.submit(inbound{client: c, env: env, err: err}) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !transport.IsExpectedCloseError(err) {
			c.logger.Debug("close connection", zap.Error(err))
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if !c.write(websocket.TextMessage, message) {
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) write(messageType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		if !transport.IsExpectedCloseError(err) {
			c.logger.Warn("websocket write error", zap.Error(err))
		}
		return false
	}
	return true
}
