package whatsapp

import "time"

// BSPWebhookPayload is the generic Business-Solution-Provider webhook
// shape (WAHA-compatible engines).
type BSPWebhookPayload struct {
	Event   string `json:"event"`
	Session string `json:"session"`
	Payload struct {
		ID        string `json:"id"`
		Timestamp int64  `json:"timestamp"`
		From      string `json:"from"` // 628xxx@c.us
		FromMe    bool   `json:"fromMe"`
		To        string `json:"to"`
		PushName  string `json:"pushName"`
		Body      string `json:"body"`
		Type      string `json:"type"`
		HasMedia  bool   `json:"hasMedia"`
		Media     *struct {
			ID       string `json:"id"`
			URL      string `json:"url"`
			MimeType string `json:"mimetype"`
			Caption  string `json:"caption"`
		} `json:"media"`
		QuotedMsg *struct {
			ID          string `json:"id"`
			Participant string `json:"participant"`
			Body        string `json:"body"`
		} `json:"quotedMsg"`
		Ack     int    `json:"ack"`
		AckName string `json:"ackName"`
	} `json:"payload"`
}

// BSP message.ack values
var bspAckNames = map[int]string{
	1: "sent",
	2: "delivered",
	3: "read",
	4: "read",
	5: "failed",
}

// ParseBSPEvent maps a BSP webhook payload into the canonical event
// shape. Unknown message types yield a placeholder message rather than an
// error: rejecting the webhook would only trigger provider retries.
func ParseBSPEvent(payload *BSPWebhookPayload) InboundEvent {
	switch payload.Event {
	case "message", "message.any":
		// fall through to message handling below
	case "message.ack":
		status := payload.Payload.AckName
		if status == "" {
			status = bspAckNames[payload.Payload.Ack]
		}
		if status == "" || payload.Payload.ID == "" {
			return InboundEvent{Kind: EventKindIgnore}
		}
		return InboundEvent{
			Kind: EventKindStatus,
			Status: &StatusEvent{
				ProviderMessageID: payload.Payload.ID,
				Status:            status,
				RecipientPhone:    NormalizePhone(payload.Payload.To),
			},
		}
	default:
		return InboundEvent{Kind: EventKindIgnore}
	}

	if payload.Payload.ID == "" || payload.Payload.From == "" {
		return InboundEvent{Kind: EventKindIgnore}
	}

	msg := &InboundMessage{
		ProviderMessageID: payload.Payload.ID,
		FromPhone:         NormalizePhone(payload.Payload.From),
		ToPhone:           NormalizePhone(payload.Payload.To),
		PushName:          payload.Payload.PushName,
		FromMe:            payload.Payload.FromMe,
		Timestamp:         time.Unix(payload.Payload.Timestamp, 0),
	}
	if payload.Payload.Timestamp == 0 {
		msg.Timestamp = time.Now()
	}

	msg.Type = bspMessageType(payload)
	switch msg.Type {
	case "text":
		msg.Text = payload.Payload.Body
	case "image", "audio", "video", "document":
		msg.Text = PlaceholderContent(msg.Type)
		msg.MediaPending = true
		if payload.Payload.Media != nil {
			msg.MediaID = payload.Payload.Media.ID
			msg.MediaURL = payload.Payload.Media.URL
			msg.MimeType = payload.Payload.Media.MimeType
			msg.Caption = payload.Payload.Media.Caption
		}
		if msg.Caption == "" && payload.Payload.Body != "" {
			msg.Caption = payload.Payload.Body
		}
		if msg.MediaID == "" && msg.MediaURL == "" {
			// nothing to fetch; degrade to a permanent placeholder
			msg.MediaPending = false
		}
	default:
		msg.Type = "text"
		msg.Text = PlaceholderContent("unknown")
	}

	if payload.Payload.QuotedMsg != nil && payload.Payload.QuotedMsg.ID != "" {
		msg.Quoted = &QuotedPayload{
			ProviderMessageID: payload.Payload.QuotedMsg.ID,
			SenderPhone:       NormalizePhone(payload.Payload.QuotedMsg.Participant),
			Text:              payload.Payload.QuotedMsg.Body,
		}
	}

	if msg.FromMe {
		return InboundEvent{Kind: EventKindEcho, Message: msg}
	}
	return InboundEvent{Kind: EventKindMessage, Message: msg}
}

func bspMessageType(payload *BSPWebhookPayload) string {
	switch payload.Payload.Type {
	case "chat", "text", "":
		if payload.Payload.HasMedia {
			if payload.Payload.Media != nil {
				return mediaTypeFromMime(payload.Payload.Media.MimeType)
			}
			return "document"
		}
		return "text"
	case "image", "audio", "video", "document":
		return payload.Payload.Type
	case "ptt", "voice":
		return "audio"
	case "sticker":
		return "image"
	default:
		return payload.Payload.Type
	}
}

func mediaTypeFromMime(mime string) string {
	switch {
	case len(mime) >= 5 && mime[:5] == "image":
		return "image"
	case len(mime) >= 5 && mime[:5] == "audio":
		return "audio"
	case len(mime) >= 5 && mime[:5] == "video":
		return "video"
	default:
		return "document"
	}
}
