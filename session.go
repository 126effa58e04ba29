package imremote

import (
	"sync"

	"github.com/pkg/errors"
)

// Session defaults.
const (
	// DefaultKeyframeInterval is the frame cadence of unconditional keyframes.
	DefaultKeyframeInterval = 60
	// DefaultInputFrames is the number of frames remote input stays valid.
	DefaultInputFrames = 120
	// DefaultSendInterval is the number of draw submissions skipped between sends.
	DefaultSendInterval = 2
)

var (
	// ErrNotActive is returned by SubmitFrame when no client has completed the handshake.
	ErrNotActive = errors.New("session not active")
	// ErrInvalidRenderer is returned when no renderer is provided.
	ErrInvalidRenderer = errors.New("invalid renderer")
)

// Renderer is the rendering library seen from the session. AddInputCharacter
// and SetClipboardText are called from the connection goroutine.
type Renderer interface {
	// FontAtlas returns the alpha8 font texture.
	FontAtlas() (pixels []byte, width, height int)
	// AddInputCharacter delivers a typed character.
	AddInputCharacter(c rune)
	// SetClipboardText delivers clipboard contents pasted on the client.
	SetClipboardText(text string)
}

// StaleKeyPolicy selects what happens to the key table when input goes stale.
type StaleKeyPolicy int

const (
	// KeepKeysOnStale clears only the modifiers and leaves KeysDown as is.
	KeepKeysOnStale StaleKeyPolicy = iota
	// ClearKeysOnStale clears the modifiers and every entry of KeysDown.
	ClearKeysOnStale
)

// Session is the per-connection protocol state machine. It turns draw lists
// into packets and text commands into InputState.
//
// The render tick (Update, SubmitFrame, ReadInput) and the connection
// (HandleMessage) may run on different goroutines.
type Session struct {
	renderer Renderer
	logger   Logger
	metrics  *metrics
	opts     sessionOptions

	// encMu guards packet building and sending.
	encMu   sync.Mutex
	encoder Encoder
	framer  *Framer
	skipped int

	// mu guards the connection state and input. Never acquire encMu while holding mu.
	mu            sync.Mutex
	sender        Sender
	active        bool
	forceKeyframe bool
	lastKeyframe  uint64
	frame         uint64
	frameReceived uint64
	input         InputState
}

// NewSession creates an idle session.
func NewSession(renderer Renderer, opt ...SessionOption) (*Session, error) {
	if renderer == nil {
		return nil, ErrInvalidRenderer
	}

	opts := newSessionOptions(opt...)
	return &Session{
		renderer: renderer,
		logger:   opts.logger,
		metrics:  newMetrics(opts.registry),
		opts:     opts,
		framer:   NewFramer(opts.compressor, opts.maxPacketSize),
	}, nil
}

// Attach binds the connection replies are sent on.
func (s *Session) Attach(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sender = sender
}

// Active reports whether a client has completed the handshake.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.active
}

// Frame returns the current frame counter.
func (s *Session) Frame() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.frame
}

// Update advances the frame counter. Call it once per render tick.
func (s *Session) Update() {
	s.mu.Lock()
	s.frame++
	s.mu.Unlock()
}

// HandleMessage processes one message from the connection. Unknown or
// malformed messages are ignored.
func (s *Session) HandleMessage(m Message) {
	switch m.Kind {
	case TextMessage:
		s.handleText(string(m.Data))
	case BinaryMessage:
		s.logger.Debug("binary message ignored", "size", len(m.Data))
	case PingMessage:
		s.logger.Debug("ping received")
	case PongMessage:
		s.logger.Debug("pong received")
	case DisconnectMessage:
		s.mu.Lock()
		s.active = false
		s.sender = nil
		s.mu.Unlock()

		s.metrics.clientActive.Set(0)
		s.logger.Info("client disconnected")
	}
}

func (s *Session) handleText(text string) {
	if !s.Active() {
		if text == InitToken {
			s.handshake()
		}
		return
	}

	cmd, ok := parseCommand(text)
	if !ok {
		s.logger.Debug("ignored command", "text", text)
		return
	}
	s.metrics.inputCommands.WithLabelValues(cmd.name).Inc()

	if cmd.forward != nil {
		cmd.forward(s.renderer)
		return
	}

	s.mu.Lock()
	cmd.apply(&s.input)
	s.frameReceived = s.frame
	s.mu.Unlock()
}

// handshake echoes the init token, sends the font atlas and activates the
// session. When the atlas cannot be framed or queued the session stays idle
// and the next init token retries.
func (s *Session) handshake() {
	s.encMu.Lock()
	defer s.encMu.Unlock()

	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	sender := s.sender
	s.mu.Unlock()
	if sender == nil {
		s.logger.Warn("handshake without a connection")
		return
	}

	if err := s.sendFontAtlas(sender); err != nil {
		s.logger.Warn("handshake failed", "error", err.Error())
		return
	}

	s.mu.Lock()
	s.active = true
	s.forceKeyframe = true
	s.mu.Unlock()

	s.metrics.handshakes.Inc()
	s.metrics.clientActive.Set(1)
	s.logger.Info("client handshake")
}

// sendFontAtlas queues the init reply and the atlas packet. The atlas is
// framed first so that nothing is sent when it does not compress.
func (s *Session) sendFontAtlas(sender Sender) error {
	s.encoder.Reset()

	pixels, width, height := s.renderer.FontAtlas()
	if err := BuildFontAtlas(&s.encoder, pixels, width, height); err != nil {
		return err
	}
	payload := s.encoder.Bytes()
	s.encoder.Commit()

	packet, err := s.framer.FrameFit(payload)
	if err != nil {
		s.metrics.packetsDropped.WithLabelValues(dropReason(err)).Inc()
		return errors.WithMessagef(err, "frame %s packet", PacketFontAtlas)
	}
	if err := sender.SendText(InitToken); err != nil {
		return errors.WithMessage(err, "send init reply")
	}
	if err := sender.SendBinary(packet); err != nil {
		s.metrics.packetsDropped.WithLabelValues(dropReason(err)).Inc()
		return errors.WithMessagef(err, "send %s packet", PacketFontAtlas)
	}

	s.packetSent(PacketFontAtlas, len(payload), len(packet))
	return nil
}

// SubmitFrame encodes and sends the draw lists of the current frame. Sends
// are throttled by the send interval; throttled calls return nil. A frame
// that cannot be compressed or queued is dropped, its error returned, and
// the next frame is forced to be a keyframe.
func (s *Session) SubmitFrame(lists []DrawList) error {
	s.encMu.Lock()
	defer s.encMu.Unlock()

	s.mu.Lock()
	if !s.active || s.sender == nil {
		s.mu.Unlock()
		return ErrNotActive
	}
	if s.skipped < s.opts.sendInterval {
		s.skipped++
		s.mu.Unlock()
		return nil
	}
	s.skipped = 0

	// A multiple of the interval passed on a throttled tick still counts.
	interval := s.opts.keyframeInterval
	keyframe := s.forceKeyframe || s.frame%interval == 0 || s.frame/interval > s.lastKeyframe/interval
	if keyframe {
		s.lastKeyframe = s.frame
	}
	s.forceKeyframe = false
	sender := s.sender
	frame := s.frame
	s.mu.Unlock()

	BuildFrame(&s.encoder, lists, keyframe)
	t := PacketType(s.encoder.Bytes()[0])
	if err := s.sendPacket(sender, t); err != nil {
		s.mu.Lock()
		s.forceKeyframe = true
		s.mu.Unlock()

		s.logger.Warn("frame dropped", "frame", frame, "error", err.Error())
		return err
	}
	return nil
}

// sendPacket frames the encoder payload and queues it. Callers hold encMu.
func (s *Session) sendPacket(sender Sender, t PacketType) error {
	payload := s.encoder.Bytes()
	s.encoder.Commit()

	packet, err := s.framer.Frame(payload)
	if err != nil {
		s.metrics.packetsDropped.WithLabelValues(dropReason(err)).Inc()
		return errors.WithMessagef(err, "frame %s packet", t)
	}
	if err := sender.SendBinary(packet); err != nil {
		s.metrics.packetsDropped.WithLabelValues(dropReason(err)).Inc()
		return errors.WithMessagef(err, "send %s packet", t)
	}

	s.packetSent(t, len(payload), len(packet))
	return nil
}

func (s *Session) packetSent(t PacketType, payloadSize, packetSize int) {
	s.metrics.packetsSent.WithLabelValues(t.String()).Inc()
	s.metrics.payloadBytes.Add(float64(payloadSize))
	s.metrics.packetBytes.Add(float64(packetSize))
	s.logger.Debug("packet sent", "type", t, "size", payloadSize, "compressed", packetSize-HeaderSize)
}

// ReadInput returns a copy of the remote input while it is fresh. Once no
// command arrived for the validity window it returns false and clears the
// modifiers (and the key table under ClearKeysOnStale).
func (s *Session) ReadInput() (InputState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return InputState{}, false
	}
	if s.frame-s.frameReceived < s.opts.inputFrames {
		return s.input, true
	}

	s.input.KeyCtrl = false
	s.input.KeyShift = false
	if s.opts.staleKeys == ClearKeysOnStale {
		s.input.KeysDown = [NumKeys]bool{}
	}
	return InputState{}, false
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, ErrCompressionOverflow):
		return "overflow"
	case errors.Is(err, ErrBufferFull):
		return "backpressure"
	case errors.Is(err, ErrConnectionClosed):
		return "closed"
	default:
		return "error"
	}
}
