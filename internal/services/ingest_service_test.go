package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/feliperodres/crm-wipsy-sub001/internal/core/jobs"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/whatsapp"
	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
)

func TestHandleEvent_InboundTextCreatesEverything(t *testing.T) {
	env := newTestEnv(t)

	err := env.ingest.HandleEvent(context.Background(), env.tc(), textEvent("wamid.1", "628111222333", "halo kak"))
	if err != nil {
		t.Fatal(err)
	}

	customer, err := env.customers.GetByPhone(env.tenant.ID, "628111222333")
	if err != nil {
		t.Fatal("customer should be created on first contact")
	}
	if customer.LastSeenAt == nil {
		t.Error("LastSeenAt should be touched")
	}

	msgs := env.messages.bySender(models.SenderCustomer)
	if len(msgs) != 1 {
		t.Fatalf("got %d customer messages, want 1", len(msgs))
	}
	if msgs[0].Content != "halo kak" || msgs[0].ProviderMessageID != "wamid.1" {
		t.Errorf("message = %+v", msgs[0])
	}

	group, err := env.groups.FindOpen(env.tenant.ID, customer.ID)
	if err != nil {
		t.Fatal("text from an active-agent customer must enter the buffer")
	}
	if len(group.Items) != 1 {
		t.Fatalf("group has %d items", len(group.Items))
	}
	if len(env.queue.byType(jobs.TypeGroupFlush)) != 1 {
		t.Error("a flush job should be armed")
	}
}

func TestHandleEvent_DuplicateDeliveryDiscarded(t *testing.T) {
	env := newTestEnv(t)
	evt := textEvent("wamid.dup", "628111222333", "halo")

	if err := env.ingest.HandleEvent(context.Background(), env.tc(), evt); err != nil {
		t.Fatal(err)
	}
	if err := env.ingest.HandleEvent(context.Background(), env.tc(), evt); err != nil {
		t.Fatal(err)
	}

	if n := len(env.messages.bySender(models.SenderCustomer)); n != 1 {
		t.Fatalf("got %d messages, want 1 after redelivery", n)
	}
	if n := len(env.queue.byType(jobs.TypeGroupFlush)); n != 1 {
		t.Fatalf("got %d flush jobs, want 1 after redelivery", n)
	}
}

func TestHandleEvent_DuplicateInUnflushedGroupDiscarded(t *testing.T) {
	env := newTestEnv(t)
	customer, chat := env.seedCustomer(t, "628111222333")

	// A member that reached the group but whose message-log write was
	// lost: the group check is the second guard.
	group, err := env.groups.FindOpenOrCreate(env.tenant.ID, customer.ID, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.groups.AppendItem(group.ID, models.GroupItem{
		MessageID:         "m-lost",
		ProviderMessageID: "wamid.ghost",
		Type:              models.MessageTypeText,
		Content:           "halo",
	}); err != nil {
		t.Fatal(err)
	}

	if err := env.ingest.HandleEvent(context.Background(), env.tc(), textEvent("wamid.ghost", "628111222333", "halo")); err != nil {
		t.Fatal(err)
	}

	if n := len(env.messages.bySender(models.SenderCustomer)); n != 0 {
		t.Fatalf("got %d messages, duplicate should be discarded", n)
	}
}

func TestHandleEvent_AgentDisabledSkipsBuffer(t *testing.T) {
	env := newTestEnv(t)
	customer, _ := env.seedCustomer(t, "628111222333")
	customer.AIAgentEnabled = false

	if err := env.ingest.HandleEvent(context.Background(), env.tc(), textEvent("wamid.1", "628111222333", "halo")); err != nil {
		t.Fatal(err)
	}

	if n := len(env.messages.bySender(models.SenderCustomer)); n != 1 {
		t.Fatal("message must still be persisted for the human operator")
	}
	if _, err := env.groups.FindOpen(env.tenant.ID, customer.ID); err == nil {
		t.Error("no group should open while the agent is off")
	}
}

func mediaEvent(id, from string) *whatsapp.InboundEvent {
	return &whatsapp.InboundEvent{
		Kind: whatsapp.EventKindMessage,
		Message: &whatsapp.InboundMessage{
			ProviderMessageID: id,
			FromPhone:         from,
			ToPhone:           "628999888777",
			Type:              models.MessageTypeImage,
			Text:              "[Image]",
			Caption:           "ini fotonya",
			MediaID:           "media-9",
			MimeType:          "image/jpeg",
			MediaPending:      true,
			Timestamp:         time.Now(),
		},
	}
}

func TestHandleEvent_MediaWithoutBurstQueuesOwnTurn(t *testing.T) {
	env := newTestEnv(t)

	if err := env.ingest.HandleEvent(context.Background(), env.tc(), mediaEvent("wamid.img", "628111222333")); err != nil {
		t.Fatal(err)
	}

	fetches := env.queue.byType(jobs.TypeMediaFetch)
	if len(fetches) != 1 {
		t.Fatalf("got %d media jobs, want 1", len(fetches))
	}
	var p mediaFetchPayload
	if err := json.Unmarshal(fetches[0].Payload, &p); err != nil {
		t.Fatal(err)
	}
	if !p.Invoke {
		t.Error("media with no open burst is its own agent turn")
	}
	if p.GroupID != "" {
		t.Error("no group to join")
	}
	if p.MediaID != "media-9" || p.Caption != "ini fotonya" {
		t.Errorf("payload = %+v", p)
	}

	msgs := env.messages.bySender(models.SenderCustomer)
	if len(msgs) != 1 || msgs[0].Metadata.MediaStatus != models.MediaStatusPending {
		t.Errorf("media message should be persisted pending, got %+v", msgs)
	}
}

func TestHandleEvent_MediaJoinsOpenBurst(t *testing.T) {
	env := newTestEnv(t)

	if err := env.ingest.HandleEvent(context.Background(), env.tc(), textEvent("wamid.1", "628111222333", "ini ya")); err != nil {
		t.Fatal(err)
	}
	if err := env.ingest.HandleEvent(context.Background(), env.tc(), mediaEvent("wamid.img", "628111222333")); err != nil {
		t.Fatal(err)
	}

	fetches := env.queue.byType(jobs.TypeMediaFetch)
	if len(fetches) != 1 {
		t.Fatalf("got %d media jobs", len(fetches))
	}
	var p mediaFetchPayload
	if err := json.Unmarshal(fetches[0].Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Invoke {
		t.Error("media joining a burst must not trigger its own turn")
	}
	if p.GroupID == "" {
		t.Fatal("payload should carry the joined group")
	}

	customer, _ := env.customers.GetByPhone(env.tenant.ID, "628111222333")
	group, err := env.groups.FindOpen(env.tenant.ID, customer.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(group.Items) != 2 {
		t.Fatalf("group has %d items, media should be a member", len(group.Items))
	}
	// Joining re-arms the window with the media member's sequence.
	flushes := env.queue.byType(jobs.TypeGroupFlush)
	var last flushPayload
	if err := json.Unmarshal(flushes[len(flushes)-1].Payload, &last); err != nil {
		t.Fatal(err)
	}
	if last.Sequence != 2 {
		t.Errorf("latest flush sequence = %d, want 2", last.Sequence)
	}
}

func echoEvent(id, to string) *whatsapp.InboundEvent {
	return &whatsapp.InboundEvent{
		Kind: whatsapp.EventKindEcho,
		Message: &whatsapp.InboundMessage{
			ProviderMessageID: id,
			FromPhone:         "628999888777",
			ToPhone:           to,
			FromMe:            true,
			Type:              models.MessageTypeText,
			Text:              "saya bantu cek dulu ya",
			Timestamp:         time.Now(),
		},
	}
}

func TestHandleEvent_ManualReplyDisablesAgent(t *testing.T) {
	env := newTestEnv(t)
	customer, chat := env.seedCustomer(t, "628111222333")

	if err := env.ingest.HandleEvent(context.Background(), env.tc(), echoEvent("wamid.human", "628111222333")); err != nil {
		t.Fatal(err)
	}

	if customer.AIAgentEnabled {
		t.Error("manual reply should hand the customer over to the human")
	}
	if chat.AIAgentEnabled {
		t.Error("chat agent flag should be off too")
	}
	if n := len(env.messages.bySender(models.SenderBusiness)); n != 1 {
		t.Fatalf("got %d business messages, want the manual reply persisted", n)
	}
}

func TestHandleEvent_ManualReplyOptOutKeepsAgentOn(t *testing.T) {
	env := newTestEnv(t)
	optOut := false
	env.tenant.DisableAgentOnManualReply = &optOut
	customer, chat := env.seedCustomer(t, "628111222333")

	if err := env.ingest.HandleEvent(context.Background(), env.tc(), echoEvent("wamid.human", "628111222333")); err != nil {
		t.Fatal(err)
	}

	if !customer.AIAgentEnabled || !chat.AIAgentEnabled {
		t.Error("tenant opted out, agent must stay on")
	}
	if n := len(env.messages.bySender(models.SenderBusiness)); n != 1 {
		t.Error("the reply is still recorded")
	}
}

func TestHandleEvent_ManualReplyMediaResolvesWithoutInvoking(t *testing.T) {
	env := newTestEnv(t)
	env.provider.mediaData = []byte("jpeg-bytes")
	env.provider.mediaMime = "image/jpeg"
	env.seedCustomer(t, "628111222333")

	evt := &whatsapp.InboundEvent{
		Kind: whatsapp.EventKindEcho,
		Message: &whatsapp.InboundMessage{
			ProviderMessageID: "wamid.humanimg",
			FromPhone:         "628999888777",
			ToPhone:           "628111222333",
			FromMe:            true,
			Type:              models.MessageTypeImage,
			MediaID:           "media-123",
			MimeType:          "image/jpeg",
			MediaPending:      true,
			Timestamp:         time.Now(),
		},
	}
	if err := env.ingest.HandleEvent(context.Background(), env.tc(), evt); err != nil {
		t.Fatal(err)
	}

	fetches := env.queue.byType(jobs.TypeMediaFetch)
	if len(fetches) != 1 {
		t.Fatalf("got %d media jobs, want the operator media fetched", len(fetches))
	}
	var p mediaFetchPayload
	if err := json.Unmarshal(fetches[0].Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.Invoke {
		t.Error("operator media must not open an agent turn")
	}
	if p.GroupID != "" {
		t.Error("operator media never joins a burst")
	}

	msgs := env.messages.bySender(models.SenderBusiness)
	if len(msgs) != 1 || msgs[0].Metadata.MediaStatus != models.MediaStatusPending {
		t.Fatalf("manual media reply should be persisted pending, got %+v", msgs)
	}

	if err := env.media.Handle(context.Background(), fetches[0].asJob()); err != nil {
		t.Fatal(err)
	}
	if msgs[0].Metadata.MediaStatus != models.MediaStatusResolved {
		t.Error("fetch must clear the pending status")
	}
	if env.invocationCount() != 0 {
		t.Error("no agent invocation for an operator send")
	}
}

func TestHandleEvent_OwnSendEchoIsNoOp(t *testing.T) {
	env := newTestEnv(t)
	customer, chat := env.seedCustomer(t, "628111222333")

	// An agent send already carries this provider id.
	agentMsg := &models.Message{
		TenantID:          env.tenant.ID,
		ChatID:            chat.ID,
		Sender:            models.SenderAgent,
		Type:              models.MessageTypeText,
		Content:           "halo juga!",
		ProviderMessageID: "wamid.agent",
	}
	if err := env.messages.Create(agentMsg); err != nil {
		t.Fatal(err)
	}

	if err := env.ingest.HandleEvent(context.Background(), env.tc(), echoEvent("wamid.agent", "628111222333")); err != nil {
		t.Fatal(err)
	}

	if !customer.AIAgentEnabled {
		t.Error("our own echo must never disable the agent")
	}
	if n := len(env.messages.bySender(models.SenderBusiness)); n != 0 {
		t.Error("our own echo must not be re-persisted")
	}
}

func TestHandleEvent_GraceWindowAdoptsAgentSend(t *testing.T) {
	env := newTestEnv(t)
	customer, chat := env.seedCustomer(t, "628111222333")

	// Agent send persisted but its provider id backfill raced the echo.
	pending := &models.Message{
		TenantID: env.tenant.ID,
		ChatID:   chat.ID,
		Sender:   models.SenderAgent,
		Type:     models.MessageTypeText,
		Content:  "sebentar ya",
	}
	if err := env.messages.Create(pending); err != nil {
		t.Fatal(err)
	}

	if err := env.ingest.HandleEvent(context.Background(), env.tc(), echoEvent("wamid.late", "628111222333")); err != nil {
		t.Fatal(err)
	}

	if pending.ProviderMessageID != "wamid.late" {
		t.Errorf("pending send should adopt the echo id, got %q", pending.ProviderMessageID)
	}
	if !customer.AIAgentEnabled {
		t.Error("adopted echo must not disable the agent")
	}
}

func TestHandleEvent_EchoToUnknownRecipientIgnored(t *testing.T) {
	env := newTestEnv(t)

	if err := env.ingest.HandleEvent(context.Background(), env.tc(), echoEvent("wamid.x", "628000000000")); err != nil {
		t.Fatal(err)
	}
	if len(env.messages.messages) != 0 {
		t.Error("no thread with this recipient, nothing to persist")
	}
}

func TestHandleEvent_StatusUpdatesDelivery(t *testing.T) {
	env := newTestEnv(t)
	_, chat := env.seedCustomer(t, "628111222333")

	msg := &models.Message{
		TenantID:          env.tenant.ID,
		ChatID:            chat.ID,
		Sender:            models.SenderAgent,
		Type:              models.MessageTypeText,
		ProviderMessageID: "wamid.sent",
	}
	if err := env.messages.Create(msg); err != nil {
		t.Fatal(err)
	}

	evt := &whatsapp.InboundEvent{
		Kind: whatsapp.EventKindStatus,
		Status: &whatsapp.StatusEvent{
			ProviderMessageID: "wamid.sent",
			Status:            models.DeliveryStatusRead,
		},
	}
	if err := env.ingest.HandleEvent(context.Background(), env.tc(), evt); err != nil {
		t.Fatal(err)
	}
	if msg.DeliveryStatus != models.DeliveryStatusRead {
		t.Errorf("DeliveryStatus = %q", msg.DeliveryStatus)
	}
}

func TestHandleEvent_QuotedReplyResolution(t *testing.T) {
	env := newTestEnv(t)
	_, chat := env.seedCustomer(t, "628111222333")

	original := &models.Message{
		TenantID:          env.tenant.ID,
		ChatID:            chat.ID,
		Sender:            models.SenderAgent,
		Type:              models.MessageTypeText,
		Content:           "promo sepatu 20% hari ini",
		ProviderMessageID: "wamid.promo",
	}
	if err := env.messages.Create(original); err != nil {
		t.Fatal(err)
	}

	t.Run("known quote is authoritative", func(t *testing.T) {
		evt := textEvent("wamid.r1", "628111222333", "yang ini masih?")
		evt.Message.Quoted = &whatsapp.QuotedPayload{ProviderMessageID: "wamid.promo"}
		if err := env.ingest.HandleEvent(context.Background(), env.tc(), evt); err != nil {
			t.Fatal(err)
		}

		stored, err := env.messages.GetByProviderID(env.tenant.ID, "wamid.r1")
		if err != nil {
			t.Fatal(err)
		}
		q := stored.Metadata.Quoted
		if q == nil {
			t.Fatal("quote should be recorded")
		}
		if q.Content != "promo sepatu 20% hari ini" || q.Sender != models.SenderAgent {
			t.Errorf("quote = %+v", q)
		}
	})

	t.Run("unknown quote keeps inferred reference", func(t *testing.T) {
		evt := textEvent("wamid.r2", "628111222333", "itu yang kemarin")
		evt.Message.Quoted = &whatsapp.QuotedPayload{
			ProviderMessageID: "wamid.gone",
			SenderPhone:       "628111222333",
			Text:              "mau yang hitam",
		}
		if err := env.ingest.HandleEvent(context.Background(), env.tc(), evt); err != nil {
			t.Fatal(err)
		}

		stored, err := env.messages.GetByProviderID(env.tenant.ID, "wamid.r2")
		if err != nil {
			t.Fatal(err)
		}
		q := stored.Metadata.Quoted
		if q == nil {
			t.Fatal("quote should be recorded even when unresolvable")
		}
		if q.Sender != models.SenderCustomer || q.Content != "mau yang hitam" {
			t.Errorf("quote = %+v", q)
		}
	})
}
