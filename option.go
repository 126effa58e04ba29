package imremote

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// options holds the configuration for a connection.
type options struct {
	logger Logger

	onMessage func(message Message) error
	// onError is called when a read or write error occurs.
	// Returns Disconnect to close the connection, Continue to suppress the error.
	onError func(error) ErrorAction

	bufferSize    int           // size of the send queue
	maxReadLength int64         // maximum size of a single inbound message
	heartbeat     time.Duration // ping interval; read deadline is twice this
	writeTimeout  time.Duration // deadline of a single write
}

// Option is a function that configures connection options.
type Option func(*options)

// BufferSizeOption returns an Option that sets the size of the send queue.
// A larger queue absorbs more packets before sends fail with ErrBufferFull.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// HeartbeatOption returns an Option that sets the ping interval.
// The read deadline is extended by twice this on every pong.
func HeartbeatOption(heartbeat time.Duration) Option {
	return func(o *options) {
		o.heartbeat = heartbeat
	}
}

// WriteTimeoutOption returns an Option that bounds each write to the peer.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// MessageMaxSize returns an Option that sets the maximum inbound message size.
func MessageMaxSize(size int64) Option {
	return func(o *options) {
		o.maxReadLength = size
	}
}

// OnErrorOption returns an Option that sets the error callback.
// Return Disconnect to close the connection, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnMessageOption returns an Option that sets the message handler callback.
// This callback is required and is invoked for each received message,
// followed by exactly one Disconnect message when the connection ends.
func OnMessageOption(cb func(Message) error) Option {
	return func(o *options) {
		o.onMessage = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// sessionOptions holds the configuration for a Session.
type sessionOptions struct {
	logger     Logger
	registry   prometheus.Registerer
	compressor Compressor

	keyframeInterval uint64
	inputFrames      uint64
	sendInterval     int
	maxPacketSize    int
	staleKeys        StaleKeyPolicy
}

// SessionOption configures a Session.
type SessionOption func(*sessionOptions)

func newSessionOptions(opt ...SessionOption) sessionOptions {
	opts := sessionOptions{
		keyframeInterval: DefaultKeyframeInterval,
		inputFrames:      DefaultInputFrames,
		sendInterval:     DefaultSendInterval,
		maxPacketSize:    DefaultMaxPacketSize,
	}
	for _, o := range opt {
		o(&opts)
	}

	if opts.keyframeInterval == 0 {
		opts.keyframeInterval = DefaultKeyframeInterval
	}
	if opts.inputFrames == 0 {
		opts.inputFrames = DefaultInputFrames
	}
	if opts.sendInterval < 0 {
		opts.sendInterval = DefaultSendInterval
	}
	if opts.maxPacketSize <= 0 {
		opts.maxPacketSize = DefaultMaxPacketSize
	}
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
	return opts
}

// KeyframeIntervalOption sets the frame cadence of unconditional keyframes.
func KeyframeIntervalOption(frames uint64) SessionOption {
	return func(o *sessionOptions) {
		o.keyframeInterval = frames
	}
}

// InputFramesOption sets how many frames remote input stays valid.
func InputFramesOption(frames uint64) SessionOption {
	return func(o *sessionOptions) {
		o.inputFrames = frames
	}
}

// SendIntervalOption sets how many draw submissions are skipped between
// two sends. Zero sends every submission.
func SendIntervalOption(n int) SessionOption {
	return func(o *sessionOptions) {
		o.sendInterval = n
	}
}

// MaxPacketSizeOption bounds the compressed size of a packet. Frames that
// do not fit are dropped.
func MaxPacketSizeOption(size int) SessionOption {
	return func(o *sessionOptions) {
		o.maxPacketSize = size
	}
}

// CompressorOption replaces the LZ4 block compressor.
func CompressorOption(c Compressor) SessionOption {
	return func(o *sessionOptions) {
		o.compressor = c
	}
}

// StaleKeyPolicyOption selects how the key table is treated once input goes stale.
func StaleKeyPolicyOption(p StaleKeyPolicy) SessionOption {
	return func(o *sessionOptions) {
		o.staleKeys = p
	}
}

// SessionLoggerOption sets the session logger.
func SessionLoggerOption(logger Logger) SessionOption {
	return func(o *sessionOptions) {
		o.logger = logger
	}
}

// MetricsRegistryOption registers the session collectors with reg.
func MetricsRegistryOption(reg prometheus.Registerer) SessionOption {
	return func(o *sessionOptions) {
		o.registry = reg
	}
}

// Logger is the structured logger used by connections, servers and sessions.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

func defaultLogger() Logger {
	return slog.Default()
}

// remoteOptions holds the configuration of Init.
type remoteOptions struct {
	logger  Logger
	session []SessionOption
	conn    []Option
	server  []ServerOption
}

// RemoteOption configures Init.
type RemoteOption func(*remoteOptions)

func newRemoteOptions(opt ...RemoteOption) remoteOptions {
	var opts remoteOptions
	for _, o := range opt {
		o(&opts)
	}
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
	return opts
}

// RemoteLoggerOption sets the logger shared by the server, connections and session.
func RemoteLoggerOption(logger Logger) RemoteOption {
	return func(o *remoteOptions) {
		o.logger = logger
	}
}

// WithSessionOptions passes options to the session.
func WithSessionOptions(opts ...SessionOption) RemoteOption {
	return func(o *remoteOptions) {
		o.session = append(o.session, opts...)
	}
}

// WithConnOptions passes options to every client connection. OnMessageOption is ignored.
func WithConnOptions(opts ...Option) RemoteOption {
	return func(o *remoteOptions) {
		o.conn = append(o.conn, opts...)
	}
}

// WithServerOptions passes options to the server.
func WithServerOptions(opts ...ServerOption) RemoteOption {
	return func(o *remoteOptions) {
		o.server = append(o.server, opts...)
	}
}
