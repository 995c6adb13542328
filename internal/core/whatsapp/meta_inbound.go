package whatsapp

import (
	"strconv"
	"time"
)

// MetaWebhookPayload is the Meta Cloud API webhook envelope.
// https://developers.facebook.com/docs/whatsapp/cloud-api/webhooks
type MetaWebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string        `json:"field"`
			Value MetaEventValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type MetaEventValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
		WaID string `json:"wa_id"`
	} `json:"contacts"`
	Messages []MetaMessage `json:"messages"`
	Statuses []struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		Timestamp   string `json:"timestamp"`
		RecipientID string `json:"recipient_id"`
	} `json:"statuses"`
}

type MetaMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *MetaMedia `json:"image"`
	Audio    *MetaMedia `json:"audio"`
	Video    *MetaMedia `json:"video"`
	Document *MetaMedia `json:"document"`
	Context  *struct {
		From string `json:"from"`
		ID   string `json:"id"`
	} `json:"context"`
}

type MetaMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

// ParseMetaEvents flattens a Meta webhook envelope into canonical events.
// One envelope may carry several messages and statuses; each becomes its
// own event. Unknown message types degrade to a placeholder.
func ParseMetaEvents(payload *MetaWebhookPayload) []InboundEvent {
	var events []InboundEvent

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}

			names := map[string]string{}
			for _, contact := range change.Value.Contacts {
				names[contact.WaID] = contact.Profile.Name
			}
			businessPhone := NormalizePhone(change.Value.Metadata.DisplayPhoneNumber)

			for _, m := range change.Value.Messages {
				events = append(events, metaMessageEvent(m, names, businessPhone))
			}

			for _, st := range change.Value.Statuses {
				if st.ID == "" {
					continue
				}
				events = append(events, InboundEvent{
					Kind: EventKindStatus,
					Status: &StatusEvent{
						ProviderMessageID: st.ID,
						Status:            st.Status,
						RecipientPhone:    NormalizePhone(st.RecipientID),
					},
				})
			}
		}
	}

	return events
}

func metaMessageEvent(m MetaMessage, names map[string]string, businessPhone string) InboundEvent {
	if m.ID == "" || m.From == "" {
		return InboundEvent{Kind: EventKindIgnore}
	}

	msg := &InboundMessage{
		ProviderMessageID: m.ID,
		FromPhone:         NormalizePhone(m.From),
		ToPhone:           businessPhone,
		PushName:          names[m.From],
		Timestamp:         metaTimestamp(m.Timestamp),
	}
	// Cloud API replays the business number's own sends as messages with
	// from == the business phone.
	msg.FromMe = businessPhone != "" && msg.FromPhone == businessPhone

	var media *MetaMedia
	switch m.Type {
	case "text":
		msg.Type = "text"
		if m.Text != nil {
			msg.Text = m.Text.Body
		}
	case "image":
		msg.Type, media = "image", m.Image
	case "audio":
		msg.Type, media = "audio", m.Audio
	case "video":
		msg.Type, media = "video", m.Video
	case "document":
		msg.Type, media = "document", m.Document
	default:
		msg.Type = "text"
		msg.Text = PlaceholderContent("unknown")
	}

	if media != nil {
		msg.Text = PlaceholderContent(msg.Type)
		msg.MediaID = media.ID
		msg.MimeType = media.MimeType
		msg.Caption = media.Caption
		msg.MediaPending = media.ID != ""
	} else if msg.Type != "text" {
		msg.Text = PlaceholderContent(msg.Type)
	}

	if m.Context != nil && m.Context.ID != "" {
		msg.Quoted = &QuotedPayload{
			ProviderMessageID: m.Context.ID,
			SenderPhone:       NormalizePhone(m.Context.From),
		}
	}

	if msg.FromMe {
		return InboundEvent{Kind: EventKindEcho, Message: msg}
	}
	return InboundEvent{Kind: EventKindMessage, Message: msg}
}

func metaTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Now()
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(secs, 0)
}
