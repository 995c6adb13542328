package whatsapp

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"image/png"
	"log"
	"sync"
	"time"

	_ "github.com/lib/pq"
	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"
)

// WhatsmeowProvider drives a direct WhatsApp Web session. Meant for
// development and small tenants without a BSP contract.
type WhatsmeowProvider struct {
	mu       sync.Mutex
	client   *whatsmeow.Client
	storeURL string
}

func NewWhatsmeowProvider(storeURL string) *WhatsmeowProvider {
	return &WhatsmeowProvider{
		storeURL: storeURL,
	}
}

func (w *WhatsmeowProvider) GetProviderName() string {
	return "Whatsmeow"
}

func (w *WhatsmeowProvider) initStore() (*sqlstore.Container, error) {
	ctx := context.Background()
	dbLog := waLog.Stdout("Database", "ERROR", true)

	if w.storeURL != "" {
		log.Println("🌐 Using PostgreSQL database for WhatsApp store")
		container, err := sqlstore.New(ctx, "postgres", w.storeURL, dbLog)
		if err != nil {
			return nil, fmt.Errorf("failed to init PostgreSQL store: %w", err)
		}
		if err := container.Upgrade(ctx); err != nil {
			return nil, fmt.Errorf("failed to upgrade PostgreSQL schema: %w", err)
		}
		return container, nil
	}

	log.Println("💾 Using local SQLite store (store.db)")
	rawDB, err := sql.Open("sqlite", "file:store.db?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err = rawDB.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		log.Printf("⚠️ Failed to enable foreign_keys pragma: %v", err)
	}

	container := sqlstore.NewWithDB(rawDB, "sqlite", dbLog)
	if err := container.Upgrade(ctx); err != nil {
		return nil, fmt.Errorf("failed to upgrade SQLite schema: %w", err)
	}

	return container, nil
}

// EnsureConnected lazily brings the shared session up. Pairing happens
// through the QR endpoint, never on a send path: an unpaired device
// store fails fast here.
func (w *WhatsmeowProvider) EnsureConnected() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.client == nil {
		container, err := w.initStore()
		if err != nil {
			return fmt.Errorf("failed to init store: %w", err)
		}

		deviceStore, err := container.GetFirstDevice(context.Background())
		if err != nil {
			return fmt.Errorf("failed to get device: %w", err)
		}
		if deviceStore.ID == nil {
			return fmt.Errorf("direct channel is not paired, scan the pairing QR first")
		}

		w.client = whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))
	}

	if !w.client.IsConnected() {
		if err := w.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		log.Println("✅ Connected to WhatsApp")
	}

	return nil
}

func (w *WhatsmeowProvider) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.client != nil {
		w.client.Disconnect()
		log.Println("🔌 Whatsmeow client disconnected")
	}
}

func (w *WhatsmeowProvider) SendText(ctx context.Context, to, text string) (string, error) {
	if err := w.EnsureConnected(); err != nil {
		return "", err
	}

	jid := types.NewJID(NormalizePhone(to), "s.whatsapp.net")
	msg := &waProto.Message{
		Conversation: proto.String(text),
	}

	resp, err := w.client.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", err
	}

	return string(resp.ID), nil
}

func (w *WhatsmeowProvider) SendMedia(ctx context.Context, to, mediaURL, caption string) (string, error) {
	// Media upload needs the whatsmeow upload flow; not wired for the
	// direct channel yet, senders fall back to a text link.
	return "", fmt.Errorf("media send not supported on direct channels")
}

func (w *WhatsmeowProvider) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	// Direct-channel media arrives with a URL already resolved by the
	// event handler, so there is nothing to fetch by id.
	return nil, "", fmt.Errorf("media download by id not supported on direct channels")
}

// GenerateQR produces a login QR as PNG bytes for pairing a device.
func (w *WhatsmeowProvider) GenerateQR() ([]byte, error) {
	container, err := w.initStore()
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", "INFO", true))
	qrChan, _ := client.GetQRChannel(context.Background())

	go func() {
		_ = client.Connect()
	}()

	for evt := range qrChan {
		if evt.Event == "code" {
			var buf bytes.Buffer
			img, err := qrcode.New(evt.Code, qrcode.Medium)
			if err != nil {
				client.Disconnect()
				return nil, fmt.Errorf("failed to generate QR: %w", err)
			}

			if err := png.Encode(&buf, img.Image(256)); err != nil {
				client.Disconnect()
				return nil, fmt.Errorf("failed to encode QR png: %w", err)
			}

			// Leave the connection open long enough for the scan.
			go func(cli *whatsmeow.Client) {
				time.Sleep(5 * time.Minute)
				cli.Disconnect()
			}(client)

			return buf.Bytes(), nil
		} else if evt.Event == "timeout" || evt.Event == "error" {
			client.Disconnect()
			return nil, fmt.Errorf("QR generation failed: %s", evt.Event)
		}
	}

	return nil, fmt.Errorf("no QR generated")
}

func (w *WhatsmeowProvider) IsConnected() bool {
	return w.client != nil && w.client.IsConnected()
}
