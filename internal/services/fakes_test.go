package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/feliperodres/crm-wipsy-sub001/internal/core/agent"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/commerce"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/jobs"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/tenant"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/upload"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/whatsapp"
	"github.com/feliperodres/crm-wipsy-sub001/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ---- repositories ----

type fakeTenantRepo struct {
	tenants map[uuid.UUID]*models.Tenant
	rates   []models.ShippingRate
}

func (r *fakeTenantRepo) GetByID(id uuid.UUID) (*models.Tenant, error) {
	if t, ok := r.tenants[id]; ok {
		return t, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeTenantRepo) ListShippingRates(tenantID uuid.UUID) ([]models.ShippingRate, error) {
	return r.rates, nil
}

type fakeChannelRepo struct {
	channels map[uuid.UUID]*models.Channel
}

func (r *fakeChannelRepo) GetByID(id uuid.UUID) (*models.Channel, error) {
	if c, ok := r.channels[id]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeChannelRepo) GetByWebhookToken(token string) (*models.Channel, error) {
	for _, c := range r.channels {
		if c.WebhookToken == token {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeChannelRepo) ListByTenant(tenantID uuid.UUID) ([]models.Channel, error) {
	var out []models.Channel
	for _, c := range r.channels {
		if c.TenantID == tenantID {
			out = append(out, *c)
		}
	}
	return out, nil
}

type fakeCustomerRepo struct {
	customers []*models.Customer
	tags      map[uuid.UUID][]string
}

func (r *fakeCustomerRepo) GetByID(id uuid.UUID) (*models.Customer, error) {
	for _, c := range r.customers {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeCustomerRepo) GetByPhone(tenantID uuid.UUID, phone string) (*models.Customer, error) {
	for _, c := range r.customers {
		if c.TenantID == tenantID && c.Phone == phone {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeCustomerRepo) FindOrCreate(tenantID uuid.UUID, phone, name string) (*models.Customer, error) {
	if c, err := r.GetByPhone(tenantID, phone); err == nil {
		return c, nil
	}
	c := &models.Customer{
		ID:             uuid.New(),
		TenantID:       tenantID,
		Phone:          phone,
		Name:           name,
		AIAgentEnabled: true,
	}
	r.customers = append(r.customers, c)
	return c, nil
}

func (r *fakeCustomerRepo) Update(customer *models.Customer) error {
	for i, c := range r.customers {
		if c.ID == customer.ID {
			r.customers[i] = customer
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeCustomerRepo) SetAgentEnabled(customerID uuid.UUID, enabled bool) error {
	c, err := r.GetByID(customerID)
	if err != nil {
		return err
	}
	c.AIAgentEnabled = enabled
	return nil
}

func (r *fakeCustomerRepo) TouchLastSeen(customerID uuid.UUID) error {
	c, err := r.GetByID(customerID)
	if err != nil {
		return err
	}
	now := time.Now()
	c.LastSeenAt = &now
	return nil
}

func (r *fakeCustomerRepo) AddTag(customerID uuid.UUID, tag string) error {
	if r.tags == nil {
		r.tags = map[uuid.UUID][]string{}
	}
	r.tags[customerID] = append(r.tags[customerID], tag)
	return nil
}

type fakeChatRepo struct {
	chats []*models.Chat
}

func (r *fakeChatRepo) GetByID(id uuid.UUID) (*models.Chat, error) {
	for _, c := range r.chats {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeChatRepo) FindOrCreate(tenantID, customerID, channelID uuid.UUID) (*models.Chat, error) {
	for _, c := range r.chats {
		if c.TenantID == tenantID && c.CustomerID == customerID && c.ChannelID == channelID {
			return c, nil
		}
	}
	c := &models.Chat{
		ID:             uuid.New(),
		TenantID:       tenantID,
		CustomerID:     customerID,
		ChannelID:      channelID,
		Status:         models.ChatStatusActive,
		AIAgentEnabled: true,
	}
	r.chats = append(r.chats, c)
	return c, nil
}

func (r *fakeChatRepo) TouchLastMessage(chatID uuid.UUID, at time.Time) error {
	c, err := r.GetByID(chatID)
	if err != nil {
		return err
	}
	c.LastMessageAt = at
	return nil
}

func (r *fakeChatRepo) SetAgentEnabled(chatID uuid.UUID, enabled bool) error {
	c, err := r.GetByID(chatID)
	if err != nil {
		return err
	}
	c.AIAgentEnabled = enabled
	return nil
}

type fakeMessageRepo struct {
	messages []*models.Message
}

func (r *fakeMessageRepo) Create(message *models.Message) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	message.CreatedAt = time.Now()
	r.messages = append(r.messages, message)
	return nil
}

func (r *fakeMessageRepo) GetByID(id uuid.UUID) (*models.Message, error) {
	for _, m := range r.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeMessageRepo) GetByProviderID(tenantID uuid.UUID, providerMessageID string) (*models.Message, error) {
	if providerMessageID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	for _, m := range r.messages {
		if m.TenantID == tenantID && m.ProviderMessageID == providerMessageID {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeMessageRepo) ExistsByProviderID(tenantID uuid.UUID, providerMessageID string) (bool, error) {
	_, err := r.GetByProviderID(tenantID, providerMessageID)
	return err == nil, nil
}

func (r *fakeMessageRepo) UpdateDeliveryStatus(tenantID uuid.UUID, providerMessageID, status string) error {
	m, err := r.GetByProviderID(tenantID, providerMessageID)
	if err != nil {
		return err
	}
	m.DeliveryStatus = status
	return nil
}

func (r *fakeMessageRepo) UpdateDeliveryStatusByID(messageID uuid.UUID, status string) error {
	m, err := r.GetByID(messageID)
	if err != nil {
		return err
	}
	m.DeliveryStatus = status
	return nil
}

func (r *fakeMessageRepo) SetProviderID(messageID uuid.UUID, providerMessageID string) error {
	m, err := r.GetByID(messageID)
	if err != nil {
		return err
	}
	m.ProviderMessageID = providerMessageID
	return nil
}

func (r *fakeMessageRepo) LatestPendingAgentSend(chatID uuid.UUID, since time.Time) (*models.Message, error) {
	var latest *models.Message
	for _, m := range r.messages {
		if m.ChatID != chatID || m.Sender != models.SenderAgent || m.ProviderMessageID != "" {
			continue
		}
		if m.CreatedAt.Before(since) {
			continue
		}
		if latest == nil || m.CreatedAt.After(latest.CreatedAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (r *fakeMessageRepo) UpdateMedia(messageID uuid.UUID, content string, meta models.MessageMeta) error {
	m, err := r.GetByID(messageID)
	if err != nil {
		return err
	}
	m.Content = content
	m.Metadata = meta
	return nil
}

func (r *fakeMessageRepo) ListByChat(chatID uuid.UUID, limit int) ([]models.Message, error) {
	var out []models.Message
	for _, m := range r.messages {
		if m.ChatID == chatID {
			out = append(out, *m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// bySender returns the persisted messages with the given sender class.
func (r *fakeMessageRepo) bySender(sender string) []*models.Message {
	var out []*models.Message
	for _, m := range r.messages {
		if m.Sender == sender {
			out = append(out, m)
		}
	}
	return out
}

type fakeGroupRepo struct {
	groups []*models.MessageGroup
}

func (r *fakeGroupRepo) GetByID(id uuid.UUID) (*models.MessageGroup, error) {
	for _, g := range r.groups {
		if g.ID == id {
			return g, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeGroupRepo) FindOpen(tenantID, customerID uuid.UUID) (*models.MessageGroup, error) {
	for i := len(r.groups) - 1; i >= 0; i-- {
		g := r.groups[i]
		if g.TenantID == tenantID && g.CustomerID == customerID && !g.Sent {
			return g, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeGroupRepo) FindOpenOrCreate(tenantID, customerID, chatID uuid.UUID) (*models.MessageGroup, error) {
	if g, err := r.FindOpen(tenantID, customerID); err == nil {
		return g, nil
	}
	g := &models.MessageGroup{
		ID:             uuid.New(),
		TenantID:       tenantID,
		CustomerID:     customerID,
		ChatID:         chatID,
		Items:          models.GroupItems{},
		LastActivityAt: time.Now(),
	}
	r.groups = append(r.groups, g)
	return g, nil
}

func (r *fakeGroupRepo) AppendItem(groupID uuid.UUID, item models.GroupItem) (*models.MessageGroup, error) {
	g, err := r.GetByID(groupID)
	if err != nil {
		return nil, err
	}
	if g.Sent {
		return nil, gorm.ErrRecordNotFound
	}
	item.Sequence = g.NextSequence()
	g.Items = append(g.Items, item)
	g.LastActivityAt = time.Now()
	return g, nil
}

func (r *fakeGroupRepo) MarkSent(groupID uuid.UUID) (bool, error) {
	g, err := r.GetByID(groupID)
	if err != nil {
		return false, err
	}
	if g.Sent {
		return false, nil
	}
	g.Sent = true
	return true, nil
}

func (r *fakeGroupRepo) UpdateItemContent(groupID uuid.UUID, messageID uuid.UUID, content string) error {
	g, err := r.GetByID(groupID)
	if err != nil {
		return err
	}
	for i := range g.Items {
		if g.Items[i].MessageID == messageID.String() {
			g.Items[i].Content = content
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (r *fakeGroupRepo) ListOverdue(cutoff time.Time, limit int) ([]models.MessageGroup, error) {
	var out []models.MessageGroup
	for _, g := range r.groups {
		if !g.Sent && g.LastActivityAt.Before(cutoff) {
			out = append(out, *g)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeProductRepo struct {
	products []*models.Product
	created  []*models.Product
}

func (r *fakeProductRepo) Create(product *models.Product) error {
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	r.products = append(r.products, product)
	r.created = append(r.created, product)
	return nil
}

func (r *fakeProductRepo) find(match func(*models.Product) bool) (*models.Product, error) {
	for _, p := range r.products {
		if match(p) {
			return p, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeProductRepo) GetByID(tenantID, id uuid.UUID) (*models.Product, error) {
	return r.find(func(p *models.Product) bool {
		return p.TenantID == tenantID && p.ID == id
	})
}

func (r *fakeProductRepo) GetByVariantID(tenantID uuid.UUID, variantID string) (*models.Product, error) {
	return r.find(func(p *models.Product) bool {
		return p.TenantID == tenantID && variantID != "" && p.VariantID == variantID
	})
}

func (r *fakeProductRepo) GetByShopifyVariantID(tenantID uuid.UUID, shopifyVariantID string) (*models.Product, error) {
	return r.find(func(p *models.Product) bool {
		return p.TenantID == tenantID && shopifyVariantID != "" && p.ShopifyVariantID == shopifyVariantID
	})
}

func (r *fakeProductRepo) GetByShopifyProductID(tenantID uuid.UUID, shopifyProductID string) (*models.Product, error) {
	return r.find(func(p *models.Product) bool {
		return p.TenantID == tenantID && shopifyProductID != "" && p.ShopifyProductID == shopifyProductID
	})
}

func (r *fakeProductRepo) GetByName(tenantID uuid.UUID, name string) (*models.Product, error) {
	return r.find(func(p *models.Product) bool {
		return p.TenantID == tenantID && name != "" && p.Name == name
	})
}

func (r *fakeProductRepo) Update(product *models.Product) error {
	return nil
}

type fakeOrderRepo struct {
	orders []*models.Order
	items  map[uuid.UUID][]models.OrderItem
}

func (r *fakeOrderRepo) Create(order *models.Order, items []models.OrderItem) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if r.items == nil {
		r.items = map[uuid.UUID][]models.OrderItem{}
	}
	r.orders = append(r.orders, order)
	r.items[order.ID] = items
	return nil
}

func (r *fakeOrderRepo) GetByID(id uuid.UUID) (*models.Order, error) {
	for _, o := range r.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeOrderRepo) GetByOrderNumber(orderNumber string) (*models.Order, error) {
	for _, o := range r.orders {
		if o.OrderNumber == orderNumber {
			return o, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeOrderRepo) ListByCustomer(tenantID, customerID uuid.UUID, limit int) ([]models.Order, error) {
	var out []models.Order
	for _, o := range r.orders {
		if o.TenantID == tenantID && o.CustomerID == customerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (r *fakeOrderRepo) UpdateStatus(orderID uuid.UUID, status string) error {
	o, err := r.GetByID(orderID)
	if err != nil {
		return err
	}
	o.Status = status
	return nil
}

type fakeUsageRepo struct {
	invocations map[uuid.UUID]int64
}

func (r *fakeUsageRepo) IncrementAgentInvocations(tenantID uuid.UUID) error {
	if r.invocations == nil {
		r.invocations = map[uuid.UUID]int64{}
	}
	r.invocations[tenantID]++
	return nil
}

func (r *fakeUsageRepo) GetCurrent(tenantID uuid.UUID) (*models.UsageRecord, error) {
	return &models.UsageRecord{
		TenantID:         tenantID,
		AgentInvocations: r.invocations[tenantID],
	}, nil
}

// ---- queue, transport, uploads, commerce ----

type enqueuedJob struct {
	TenantID uuid.UUID
	Type     string
	Payload  []byte
	Opts     jobs.EnqueueOptions
}

type fakeQueue struct {
	jobs []enqueuedJob
}

func (q *fakeQueue) Enqueue(ctx context.Context, tenantID uuid.UUID, jobType string, payload interface{}, opts jobs.EnqueueOptions) (*jobs.Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	q.jobs = append(q.jobs, enqueuedJob{TenantID: tenantID, Type: jobType, Payload: body, Opts: opts})
	return &jobs.Job{
		ID:       uuid.New(),
		TenantID: tenantID,
		Type:     jobType,
		Payload:  datatypes.JSON(body),
	}, nil
}

func (q *fakeQueue) byType(jobType string) []enqueuedJob {
	var out []enqueuedJob
	for _, j := range q.jobs {
		if j.Type == jobType {
			out = append(out, j)
		}
	}
	return out
}

// asJob converts an enqueued record back into a runnable job row.
func (j enqueuedJob) asJob() *jobs.Job {
	return &jobs.Job{
		ID:       uuid.New(),
		TenantID: j.TenantID,
		Type:     j.Type,
		Payload:  datatypes.JSON(j.Payload),
	}
}

type sentMessage struct {
	To       string
	Text     string
	MediaURL string
}

type fakeProvider struct {
	sent      []sentMessage
	failText  bool
	failMedia bool

	mediaData []byte
	mediaMime string
	mediaErr  error

	nextID int
}

func (p *fakeProvider) SendText(ctx context.Context, to, text string) (string, error) {
	if p.failText {
		return "", fmt.Errorf("send failed")
	}
	p.nextID++
	p.sent = append(p.sent, sentMessage{To: to, Text: text})
	return fmt.Sprintf("wamid.fake%03d", p.nextID), nil
}

func (p *fakeProvider) SendMedia(ctx context.Context, to, mediaURL, caption string) (string, error) {
	if p.failMedia {
		return "", fmt.Errorf("media send failed")
	}
	p.nextID++
	p.sent = append(p.sent, sentMessage{To: to, Text: caption, MediaURL: mediaURL})
	return fmt.Sprintf("wamid.fake%03d", p.nextID), nil
}

func (p *fakeProvider) DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	if p.mediaErr != nil {
		return nil, "", p.mediaErr
	}
	return p.mediaData, p.mediaMime, nil
}

func (p *fakeProvider) GetProviderName() string {
	return "fake"
}

type uploadedFile struct {
	Filename string
	Folder   string
	Size     int
}

type fakeUploader struct {
	uploads []uploadedFile
	fail    bool
}

func (u *fakeUploader) Upload(file io.Reader, filename string, options *upload.UploadOptions) (*upload.UploadResult, error) {
	if u.fail {
		return nil, fmt.Errorf("upload failed")
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	folder := ""
	if options != nil {
		folder = options.Folder
	}
	u.uploads = append(u.uploads, uploadedFile{Filename: filename, Folder: folder, Size: len(data)})
	return &upload.UploadResult{
		URL:      "https://cdn.test/" + filename,
		FileName: filename,
		Size:     int64(len(data)),
	}, nil
}

type fakeShopify struct {
	pushes []*commerce.OrderPush
	fail   bool
}

func (f *fakeShopify) CreateOrder(ctx context.Context, push *commerce.OrderPush) (string, error) {
	if f.fail {
		return "", fmt.Errorf("shopify unavailable")
	}
	f.pushes = append(f.pushes, push)
	return "7700001", nil
}

// ---- wiring ----

// testEnv wires the pipeline services onto in-memory fakes and an
// httptest agent endpoint that records every invocation it receives.
type testEnv struct {
	tenant  *models.Tenant
	channel *models.Channel

	tenants   *fakeTenantRepo
	channels  *fakeChannelRepo
	customers *fakeCustomerRepo
	chats     *fakeChatRepo
	messages  *fakeMessageRepo
	groups    *fakeGroupRepo
	products  *fakeProductRepo
	orders    *fakeOrderRepo
	usage     *fakeUsageRepo
	queue     *fakeQueue
	provider  *fakeProvider
	uploader  *fakeUploader
	shopify   *fakeShopify

	agent  *AgentService
	buffer *BufferService
	ingest *IngestService
	media  *MediaService
	orderS *OrderService

	mu          sync.Mutex
	invocations []agent.Invocation
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		customers: &fakeCustomerRepo{},
		chats:     &fakeChatRepo{},
		messages:  &fakeMessageRepo{},
		groups:    &fakeGroupRepo{},
		products:  &fakeProductRepo{},
		orders:    &fakeOrderRepo{},
		usage:     &fakeUsageRepo{},
		queue:     &fakeQueue{},
		provider:  &fakeProvider{},
		uploader:  &fakeUploader{},
		shopify:   &fakeShopify{},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var inv agent.Invocation
		if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		env.mu.Lock()
		env.invocations = append(env.invocations, inv)
		env.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	tn := &models.Tenant{
		ID:            uuid.New(),
		BusinessName:  "Toko Sepatu",
		Phone:         "628999000111",
		BufferSeconds: 5,
		SalesMode:     "assisted",
		AgentEndpoint: srv.URL,
	}
	ch := &models.Channel{
		ID:           uuid.New(),
		TenantID:     tn.ID,
		Provider:     models.ChannelProviderBSP,
		PhoneNumber:  "628999888777",
		WebhookToken: "tok-test",
		IsActive:     true,
	}
	env.tenant = tn
	env.channel = ch
	env.tenants = &fakeTenantRepo{tenants: map[uuid.UUID]*models.Tenant{tn.ID: tn}}
	env.channels = &fakeChannelRepo{channels: map[uuid.UUID]*models.Channel{ch.ID: ch}}

	providerFor := func(channel *models.Channel) (whatsapp.Provider, error) {
		return env.provider, nil
	}

	env.agent = NewAgentService(env.tenants, env.messages, env.chats, env.usage, providerFor, "", 5*time.Second)
	env.buffer = NewBufferService(env.groups, env.tenants, env.customers, env.chats, env.channels, env.queue, env.agent, 6)
	env.ingest = NewIngestService(env.customers, env.chats, env.messages, env.groups, env.buffer, env.queue, 10*time.Second)
	env.media = NewMediaService(env.messages, env.groups, env.tenants, env.customers, env.chats, env.channels, env.uploader, env.agent, providerFor)
	env.orderS = NewOrderService(env.tenants, env.customers, env.chats, env.products, env.orders, env.agent, func(domain, token string) ShopifyPusher {
		return env.shopify
	})

	return env
}

func (env *testEnv) tc() *tenant.Context {
	return &tenant.Context{Tenant: env.tenant, Channel: env.channel}
}

func (env *testEnv) invocationCount() int {
	env.mu.Lock()
	defer env.mu.Unlock()
	return len(env.invocations)
}

func (env *testEnv) lastInvocation(t *testing.T) agent.Invocation {
	t.Helper()
	env.mu.Lock()
	defer env.mu.Unlock()
	if len(env.invocations) == 0 {
		t.Fatal("no agent invocations recorded")
	}
	return env.invocations[len(env.invocations)-1]
}

// seedCustomer registers a customer with an open chat on the test channel.
func (env *testEnv) seedCustomer(t *testing.T, phone string) (*models.Customer, *models.Chat) {
	t.Helper()
	customer, err := env.customers.FindOrCreate(env.tenant.ID, phone, "Budi")
	if err != nil {
		t.Fatal(err)
	}
	chat, err := env.chats.FindOrCreate(env.tenant.ID, customer.ID, env.channel.ID)
	if err != nil {
		t.Fatal(err)
	}
	return customer, chat
}

func textEvent(id, from, body string) *whatsapp.InboundEvent {
	return &whatsapp.InboundEvent{
		Kind: whatsapp.EventKindMessage,
		Message: &whatsapp.InboundMessage{
			ProviderMessageID: id,
			FromPhone:         from,
			ToPhone:           "628999888777",
			Type:              models.MessageTypeText,
			Text:              body,
			Timestamp:         time.Now(),
		},
	}
}
