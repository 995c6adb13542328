package whatsapp

import (
	"fmt"
	"strings"
	"time"
)

// Event kinds produced by the transport adapters
const (
	EventKindMessage = "message" // inbound customer message
	EventKindEcho    = "echo"    // outbound-from-business message replay
	EventKindStatus  = "status"  // delivery ack callback
	EventKindIgnore  = "ignore"  // anything the pipeline does not process
)

// InboundEvent is the canonical shape every transport adapter produces.
// Exactly one of Message/Status is set, per Kind.
type InboundEvent struct {
	Kind    string
	Message *InboundMessage
	Status  *StatusEvent
}

// InboundMessage is the canonical message record. Text extraction is
// synchronous; media is flagged pending and resolved by the background
// fetcher.
type InboundMessage struct {
	ProviderMessageID string
	FromPhone         string
	ToPhone           string
	PushName          string
	FromMe            bool

	Type    string // text, image, audio, video, document
	Text    string // body for text, placeholder otherwise
	Caption string

	MediaID      string
	MediaURL     string // direct URL when the transport already carries one
	MimeType     string
	MediaPending bool

	Quoted *QuotedPayload

	Timestamp time.Time
}

// QuotedPayload is the raw quoted-message reference as carried by the
// provider payload; resolution against the message log happens later.
type QuotedPayload struct {
	ProviderMessageID string
	SenderPhone       string
	Text              string
}

// StatusEvent is a delivery-status callback for a previously sent message.
type StatusEvent struct {
	ProviderMessageID string
	Status            string
	RecipientPhone    string
}

// Placeholder contents for media and unknown types, shown until the media
// fetcher resolves a durable URL (or permanently, for unsupported types).
func PlaceholderContent(msgType string) string {
	switch msgType {
	case "image":
		return "[Image]"
	case "audio":
		return "[Audio]"
	case "video":
		return "[Video]"
	case "document":
		return "[Document]"
	default:
		return "[Unsupported message]"
	}
}

// ErrorPlaceholder is the content written when media resolution fails, so
// downstream consumers never see a permanently pending record.
func ErrorPlaceholder(msgType string) string {
	return fmt.Sprintf("[could not process %s]", msgType)
}

// NormalizePhone strips WhatsApp JID suffixes and a leading plus sign
// (e.g. "628123456789@c.us" -> "628123456789").
func NormalizePhone(raw string) string {
	phone := raw
	if idx := strings.Index(phone, "@"); idx >= 0 {
		phone = phone[:idx]
	}
	return strings.TrimPrefix(phone, "+")
}
