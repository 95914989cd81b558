package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Timing shared by the client pumps and the relay pumps.
const (
	WriteWait  = 10 * time.Second
	PongWait   = 60 * time.Second
	PingPeriod = (PongWait * 9) / 10
)

// conn wraps one open socket with its write queue. A conn is used for a
// single connection cycle and discarded on close.
type conn struct {
	ws         *websocket.Conn
	send       chan []byte
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
	pingPeriod time.Duration
	pongWait   time.Duration
	logger     *zap.Logger
}

func newConn(ws *websocket.Conn, buffer int, pingPeriod, pongWait time.Duration, logger *zap.Logger) *conn {
	return &conn{
		ws:         ws,
		send:       make(chan []byte, buffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		pingPeriod: pingPeriod,
		pongWait:   pongWait,
		logger:     logger,
	}
}

// enqueue hands a frame to the write pump without blocking.
func (c *conn) enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrNotConnected
	default:
		return ErrSendQueueFull
	}
}

// serve runs the pumps until the socket closes or ctx is cancelled. Frames
// are delivered to h from the calling goroutine, so they are ordered before
// the returned close reason.
func (c *conn) serve(ctx context.Context, h Handler) error {
	stop := context.AfterFunc(ctx, c.closeGracefully)
	defer stop()

	go c.writePump()

	err := c.readPump(h)
	c.shutdown()
	<-c.writerDone
	return err
}

func (c *conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		if err := c.ws.Close(); err != nil && !IsExpectedCloseError(err) {
			c.logger.Debug("error closing socket", zap.Error(err))
		}
	})
}

// closeGracefully sends a normal-closure frame; the read pump then sees the
// close and unwinds.
func (c *conn) closeGracefully() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client shutdown")
	if err := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(WriteWait)); err != nil && !IsExpectedCloseError(err) {
		c.logger.Debug("error writing close frame", zap.Error(err))
	}
	c.shutdown()
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *conn) setupReadConnection() {
	if err := c.ws.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
		c.logger.Debug("error setting initial read deadline", zap.Error(err))
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	})
}

func (c *conn) readPump(h Handler) error {
	c.setupReadConnection()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return c.readError(err)
		}
		if err := c.ws.SetReadDeadline(time.Now().Add(c.pongWait)); err != nil {
			c.logger.Debug("error extending read deadline", zap.Error(err))
		}
		h.OnFrame(data)
	}
}

// readError classifies why the read loop ended and wraps it in
// ErrTransportClosed.
func (c *conn) readError(err error) error {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.logger.Info("server closed connection", zap.Error(err))
	case errors.Is(err, io.EOF) || IsExpectedCloseError(err):
		c.logger.Info("connection closed", zap.Error(err))
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.logger.Warn("unexpected websocket close", zap.Error(err))
	default:
		c.logger.Warn("websocket read error", zap.Error(err))
	}
	return fmt.Errorf("%w: %w", ErrTransportClosed, err)
}

func (c *conn) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.writerDone)
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if !c.write(websocket.TextMessage, data) {
				c.shutdown()
				return
			}
		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				c.shutdown()
				return
			}
		}
	}
}

func (c *conn) write(messageType int, data []byte) bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(WriteWait)); err != nil {
		c.logger.Debug("error setting write deadline", zap.Error(err))
		return false
	}
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		if !IsExpectedCloseError(err) {
			c.logger.Warn("websocket write error", zap.Error(err))
		}
		return false
	}
	return true
}
