package imremote

// MessageKind distinguishes the messages delivered by a connection.
type MessageKind int

const (
	// TextMessage is a UTF-8 text message.
	TextMessage MessageKind = iota
	// BinaryMessage is a binary message.
	BinaryMessage
	// DisconnectMessage reports that the connection is gone. It is always the last message.
	DisconnectMessage
	// PingMessage is a ping control frame from the peer.
	PingMessage
	// PongMessage is a pong control frame from the peer.
	PongMessage
)

// String returns the string representation of the message kind.
func (k MessageKind) String() string {
	switch k {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	case DisconnectMessage:
		return "disconnect"
	case PingMessage:
		return "ping"
	case PongMessage:
		return "pong"
	default:
		return "unknown"
	}
}

// Message is one inbound message from the client.
type Message struct {
	Kind MessageKind
	Data []byte
}

// Sender is the outbound half of a connection. Sends are fire-and-forget:
// a nil error means the message was queued, not delivered.
type Sender interface {
	SendText(text string) error
	SendBinary(data []byte) error
}
