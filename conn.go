package imremote

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by connection operations.
var (
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrBufferFull is returned when the send queue cannot take another message.
	// The message is dropped; the session recovers with a keyframe.
	ErrBufferFull = errors.New("send buffer full")
)

// Default configuration values.
const (
	// defaultBufferSize leaves room for the init reply and the font atlas.
	defaultBufferSize = 16
	// defaultMaxMessageSize bounds inbound text commands (clipboard included).
	defaultMaxMessageSize = 64 * 1024
	defaultHeartbeat      = 15 * time.Second
	defaultWriteTimeout   = 5 * time.Second
)

// outbound is a queued message and its websocket frame type.
type outbound struct {
	frameType int
	data      []byte
}

// Conn is a client WebSocket connection. It runs a read loop that delivers
// Messages to the OnMessage callback and a write loop that drains a bounded
// send queue and keeps the peer alive with pings.
type Conn struct {
	ws     *websocket.Conn
	logger Logger

	opts options

	sendMsg chan outbound
	closed  atomic.Bool
	cancel  context.CancelFunc
}

// NewConn wraps an upgraded WebSocket connection.
// Returns an error if the OnMessage callback is missing.
func NewConn(ws *websocket.Conn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return &Conn{
		ws:      ws,
		logger:  opts.logger,
		opts:    opts,
		sendMsg: make(chan outbound, opts.bufferSize),
	}, nil
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.maxReadLength <= 0 {
		opts.maxReadLength = defaultMaxMessageSize
	}

	if opts.onMessage == nil {
		return ErrInvalidOnMessage
	}

	if opts.heartbeat <= 0 {
		opts.heartbeat = defaultHeartbeat
	}

	if opts.writeTimeout <= 0 {
		opts.writeTimeout = defaultWriteTimeout
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

// Run starts the read and write loops and blocks until either fails or ctx
// is canceled. The connection is closed and a DisconnectMessage delivered
// before Run returns.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("connection established", "addr", c.Addr())
	c.logger.Debug("connection options", "addr", c.Addr(),
		"buffer_size", c.opts.bufferSize,
		"max_read_length", c.opts.maxReadLength,
		"heartbeat", c.opts.heartbeat)

	ctx, c.cancel = context.WithCancel(ctx)
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	// ReadMessage only returns once the socket is closed.
	group.Go(func() error {
		<-child.Done()
		c.closeConn()
		return nil
	})

	err := group.Wait()
	c.closeConn()
	_ = c.opts.onMessage(Message{Kind: DisconnectMessage})

	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "addr", c.Addr(), "error", err.Error())
	} else {
		c.logger.Info("connection closed", "addr", c.Addr())
	}

	return err
}

// Close gracefully closes the connection. Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.opts.writeTimeout))
	return c.ws.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// SendText queues a text message without blocking.
func (c *Conn) SendText(text string) error {
	return c.enqueue(websocket.TextMessage, []byte(text))
}

// SendBinary queues a binary message without blocking. data must not be
// modified after the call.
func (c *Conn) SendBinary(data []byte) error {
	return c.enqueue(websocket.BinaryMessage, data)
}

// enqueue is fire-and-forget: it fails with ErrBufferFull instead of
// waiting for the write loop.
func (c *Conn) enqueue(frameType int, data []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendMsg <- outbound{frameType: frameType, data: data}:
		return nil
	default:
		return ErrBufferFull
	}
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.ws.RemoteAddr()
}

// readLoop delivers inbound messages until the socket fails or closes.
// Control frames are surfaced as PingMessage and PongMessage.
func (c *Conn) readLoop(ctx context.Context) error {
	deadline := func() {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.heartbeat * 2))
	}

	c.ws.SetReadLimit(c.opts.maxReadLength)
	deadline()

	c.ws.SetPongHandler(func(data string) error {
		deadline()
		return c.opts.onMessage(Message{Kind: PongMessage, Data: []byte(data)})
	})
	c.ws.SetPingHandler(func(data string) error {
		deadline()
		err := c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.opts.writeTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return c.opts.onMessage(Message{Kind: PingMessage, Data: []byte(data)})
	})

	for {
		frameType, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				c.logger.Debug("read error", "addr", c.Addr(), "error", err.Error())
			}
			return errors.WithMessage(ErrConnectionClosed, err.Error())
		}

		deadline()

		kind := TextMessage
		if frameType == websocket.BinaryMessage {
			kind = BinaryMessage
		}
		if err = c.opts.onMessage(Message{Kind: kind, Data: data}); err != nil {
			return err
		}
	}
}

// writeLoop drains the send queue and pings the peer every heartbeat.
func (c *Conn) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-c.sendMsg:
			if err := c.write(m.frameType, m.data); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// write sends one frame with a deadline. Errors are propagated only when
// onError asks to disconnect.
func (c *Conn) write(frameType int, data []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))

	err := c.ws.WriteMessage(frameType, data)
	if err != nil {
		c.logger.Debug("write error", "addr", c.Addr(), "error", err.Error())
		if c.opts.onError(err) == Disconnect {
			return err
		}
	}

	return nil
}

// closeConn marks the connection as closed and closes the socket.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	_ = c.ws.Close()
}
