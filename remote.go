// Package imremote streams the draw lists of an immediate-mode UI to a thin
// remote client over WebSocket and feeds the client's mouse and keyboard back
// to the host.
//
// Frames are encoded as fixed-layout records, delta-encoded against the
// previous frame except on keyframes, LZ4-compressed and sent as one binary
// message each. Input arrives as short text commands.
package imremote

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// Remote is the host-facing side: it owns the server, the session and the
// single attached client connection.
type Remote struct {
	session *Session
	server  *Server
	logger  Logger
	conn    []Option

	mu     sync.Mutex
	client *Conn

	cancel    context.CancelFunc
	done      chan error
	closeOnce sync.Once
	closeErr  error
}

// Init starts serving on address:port. The returned Remote accepts one
// client at a time.
func Init(ctx context.Context, address string, port int, renderer Renderer, opt ...RemoteOption) (*Remote, error) {
	opts := newRemoteOptions(opt...)

	registry := prometheus.NewRegistry()
	session, err := NewSession(renderer, append([]SessionOption{
		SessionLoggerOption(opts.logger),
		MetricsRegistryOption(registry),
	}, opts.session...)...)
	if err != nil {
		return nil, err
	}

	server, err := New(net.JoinHostPort(address, strconv.Itoa(port)), append([]ServerOption{
		ServerLoggerOption(opts.logger),
		MetricsGathererOption(registry),
	}, opts.server...)...)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	r := &Remote{
		session: session,
		server:  server,
		logger:  opts.logger,
		conn:    opts.conn,
		cancel:  cancel,
		done:    make(chan error, 1),
	}

	go func() {
		r.done <- server.Serve(ctx, r)
	}()

	return r, nil
}

// Handle implements Handler. A second client is turned away while one is attached.
func (r *Remote) Handle(ctx context.Context, ws *websocket.Conn) {
	conn, err := NewConn(ws, append(append([]Option{LoggerOption(r.logger)}, r.conn...),
		OnMessageOption(func(m Message) error {
			r.session.HandleMessage(m)
			return nil
		}))...)
	if err != nil {
		r.logger.Error("create connection", "error", err)
		_ = ws.Close()
		return
	}

	r.mu.Lock()
	if r.client != nil {
		r.mu.Unlock()
		r.logger.Warn("client rejected, another client is attached", "addr", ws.RemoteAddr())
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "client already attached"))
		_ = ws.Close()
		return
	}
	r.client = conn
	r.mu.Unlock()

	r.session.Attach(conn)
	_ = conn.Run(ctx)

	r.mu.Lock()
	r.client = nil
	r.mu.Unlock()
}

// Update advances the frame counter. Call once per render tick.
func (r *Remote) Update() {
	r.session.Update()
}

// SubmitFrame sends the frame's draw lists to the client, subject to the
// send interval. See Session.SubmitFrame.
func (r *Remote) SubmitFrame(lists []DrawList) error {
	return r.session.SubmitFrame(lists)
}

// ReadInput returns the remote input and whether it is still fresh.
func (r *Remote) ReadInput() (InputState, bool) {
	return r.session.ReadInput()
}

// Session returns the protocol session.
func (r *Remote) Session() *Session {
	return r.session
}

// Addr returns the listening address.
func (r *Remote) Addr() net.Addr {
	return r.server.Addr()
}

// Close stops the server and disconnects the client. Safe to call multiple times.
func (r *Remote) Close() error {
	r.closeOnce.Do(func() {
		r.cancel()
		r.closeErr = r.server.Close()
		<-r.done
	})
	return r.closeErr
}
