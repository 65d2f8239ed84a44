package realtime

const (
	EnvelopeChatMessage = "chat.message"
	EnvelopeChatClosed  = "chat.closed"
	EnvelopeError       = "error"
)

// Envelope is the JSON frame written to sockets.
type Envelope struct {
	Type    string `json:"type"`
	Message any    `json:"message,omitempty"`
	ChatID  uint64 `json:"chat_id,omitempty"`
}

func ErrorEnvelope(msg string) Envelope {
	return Envelope{Type: EnvelopeError, Message: msg}
}
