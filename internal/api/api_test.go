package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsecrm/engage/internal/ai"
	"github.com/pulsecrm/engage/internal/api"
	"github.com/pulsecrm/engage/internal/campaign"
	"github.com/pulsecrm/engage/internal/domain"
	"github.com/pulsecrm/engage/internal/personalize"
	"github.com/pulsecrm/engage/internal/queue"
	"github.com/pulsecrm/engage/internal/segmentation"
)

type memBroker struct {
	mu     sync.Mutex
	queues map[string][][]byte
}

func newMemBroker() *memBroker {
	return &memBroker{queues: make(map[string][][]byte)}
}

func (b *memBroker) Push(_ context.Context, q string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.queues[q] = append(b.queues[q], cp)
	return nil
}

func (b *memBroker) Pop(_ context.Context, q string, _ time.Duration) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.queues[q]
	if len(items) == 0 {
		return nil, queue.ErrEmpty
	}
	head := items[0]
	b.queues[q] = items[1:]
	return head, nil
}

func (b *memBroker) Depth(_ context.Context, q string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.queues[q])), nil
}

type memSegmentRepo struct {
	mu       sync.Mutex
	segments map[string]*domain.Segment
}

func (r *memSegmentRepo) Get(_ context.Context, id string) (*domain.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segments[id]
	if !ok {
		return nil, segmentation.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *memSegmentRepo) List(_ context.Context) ([]domain.Segment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Segment
	for _, s := range r.segments {
		out = append(out, *s)
	}
	return out, nil
}

func (r *memSegmentRepo) Create(_ context.Context, s *domain.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.segments[s.ID] = &cp
	return nil
}

func (r *memSegmentRepo) Update(_ context.Context, s *domain.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.segments[s.ID]; !ok {
		return segmentation.ErrNotFound
	}
	cp := *s
	r.segments[s.ID] = &cp
	return nil
}

func (r *memSegmentRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.segments[id]; !ok {
		return segmentation.ErrNotFound
	}
	delete(r.segments, id)
	return nil
}

type fixtureResolver struct {
	customers []domain.Customer
}

func (f *fixtureResolver) Count(_ context.Context, p segmentation.Predicate) (int, error) {
	n := 0
	for i := range f.customers {
		if p.Matches(&f.customers[i]) {
			n++
		}
	}
	return n, nil
}

func (f *fixtureResolver) Find(_ context.Context, p segmentation.Predicate) ([]domain.Customer, error) {
	var out []domain.Customer
	for i := range f.customers {
		if p.Matches(&f.customers[i]) {
			out = append(out, f.customers[i])
		}
	}
	return out, nil
}

type memCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
}

func (r *memCampaignRepo) Get(_ context.Context, id string) (*domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCampaignRepo) List(_ context.Context) ([]domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Campaign
	for _, c := range r.campaigns {
		out = append(out, *c)
	}
	return out, nil
}

func (r *memCampaignRepo) Create(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *memCampaignRepo) Update(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.campaigns[c.ID]; !ok {
		return campaign.ErrNotFound
	}
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

type memLogRepo struct {
	mu   sync.Mutex
	logs []domain.CommunicationLog
}

func (r *memLogRepo) Create(_ context.Context, l *domain.CommunicationLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *l)
	return nil
}

func (r *memLogRepo) ListByCampaign(_ context.Context, campaignID string) ([]domain.CommunicationLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.CommunicationLog
	for _, l := range r.logs {
		if l.CampaignID == campaignID {
			out = append(out, l)
		}
	}
	return out, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memBroker) {
	t.Helper()

	broker := newMemBroker()
	customers := []domain.Customer{
		{ID: "c1", FirstName: "Ada", Email: "ada@example.com", TotalSpend: 600, Visits: 5},
		{ID: "c2", FirstName: "Ben", Email: "ben@example.com", TotalSpend: 120, Visits: 2},
	}

	segSvc := segmentation.NewService(
		&memSegmentRepo{segments: make(map[string]*domain.Segment)},
		&fixtureResolver{customers: customers},
	)
	campSvc := campaign.NewService(&memCampaignRepo{campaigns: make(map[string]*domain.Campaign)}, &memLogRepo{}, segSvc, broker)
	aiSvc := ai.NewService(nil, ai.WithMaxRetries(1))

	router := api.SetupRoutes(&api.Handlers{
		Segments:    api.NewSegmentAPI(segSvc),
		Campaigns:   api.NewCampaignAPI(campSvc),
		Receipts:    api.NewReceiptAPI(broker),
		AI:          api.NewAIAPI(aiSvc, campSvc),
		Personalize: api.NewPersonalizeAPI(personalize.NewLiquidEngine()),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, broker
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestSegmentPreviewEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/segments/preview", map[string]any{
		"rules": []map[string]any{
			{"field": "total_spend", "operator": "greater_than", "value": 500},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]int
	decodeBody(t, resp, &out)
	assert.Equal(t, 1, out["customer_count"])
}

type createCampaignResponse struct {
	Campaign domain.Campaign          `json:"campaign"`
	Dispatch *campaign.DispatchResult `json:"dispatch"`
}

func createSegment(t *testing.T, srv *httptest.Server) domain.Segment {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/v1/segments", map[string]any{
		"name":  "All Customers",
		"rules": []map[string]any{},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var seg domain.Segment
	decodeBody(t, resp, &seg)
	return seg
}

// Creating an unscheduled campaign dispatches it within the same request:
// the response arrives once every recipient has a PENDING log and a queued
// job.
func TestCampaignCreateWithoutScheduleDispatches(t *testing.T) {
	srv, broker := newTestServer(t)
	seg := createSegment(t, srv)
	assert.Equal(t, 2, seg.CustomerCount)

	resp := postJSON(t, srv.URL+"/api/v1/campaigns", map[string]any{
		"name":       "Launch",
		"message":    "Hi {{firstName}}!",
		"segment_id": seg.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createCampaignResponse
	decodeBody(t, resp, &created)

	assert.Equal(t, domain.CampaignRunning, created.Campaign.Status)
	require.NotNil(t, created.Dispatch)
	assert.Equal(t, 2, created.Dispatch.TotalRecipients)
	assert.Equal(t, 2, created.Dispatch.Enqueued)

	depth, err := broker.Depth(context.Background(), queue.DeliveryQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	resp, err = http.Get(srv.URL + "/api/v1/campaigns/" + created.Campaign.ID + "/logs")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Logs []domain.CommunicationLog `json:"logs"`
	}
	decodeBody(t, resp, &out)
	require.Len(t, out.Logs, 2)
	for _, l := range out.Logs {
		assert.Equal(t, domain.LogPending, l.Status)
	}

	// An explicit send afterwards conflicts with the running campaign.
	resp = postJSON(t, srv.URL+"/api/v1/campaigns/"+created.Campaign.ID+"/send", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCampaignCreateScheduledDefersDispatch(t *testing.T) {
	srv, broker := newTestServer(t)
	seg := createSegment(t, srv)

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	resp := postJSON(t, srv.URL+"/api/v1/campaigns", map[string]any{
		"name":         "Later",
		"message":      "Hi {{firstName}}!",
		"segment_id":   seg.ID,
		"scheduled_at": future,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created createCampaignResponse
	decodeBody(t, resp, &created)

	assert.Equal(t, domain.CampaignScheduled, created.Campaign.Status)
	assert.Nil(t, created.Dispatch)

	depth, err := broker.Depth(context.Background(), queue.DeliveryQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestReceiptWebhookQueuesValidReceipt(t *testing.T) {
	srv, broker := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/receipts", map[string]any{
		"communication_log_id": "log-1",
		"status":               "DELIVERED",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	payload, err := broker.Pop(context.Background(), queue.ReceiptQueue, time.Second)
	require.NoError(t, err)
	var receipt domain.DeliveryReceipt
	require.NoError(t, json.Unmarshal(payload, &receipt))
	assert.Equal(t, "log-1", receipt.CommunicationLogID)
	assert.Equal(t, domain.LogDelivered, receipt.Status)
	assert.False(t, receipt.ReceivedAt.IsZero())
}

func TestReceiptWebhookRejectsInvalid(t *testing.T) {
	srv, broker := newTestServer(t)

	// Missing log ID.
	resp := postJSON(t, srv.URL+"/api/v1/receipts", map[string]any{"status": "DELIVERED"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Non-terminal status.
	resp = postJSON(t, srv.URL+"/api/v1/receipts", map[string]any{
		"communication_log_id": "log-1",
		"status":               "PENDING",
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	depth, err := broker.Depth(context.Background(), queue.ReceiptQueue)
	require.NoError(t, err)
	assert.Equal(t, int64(0), depth)
}

func TestAIInferRulesEndpointFallsBack(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/ai/infer-rules", map[string]any{
		"prompt": "customers who spent over $500",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out ai.RuleInference
	decodeBody(t, resp, &out)
	assert.Equal(t, ai.SourceHeuristic, out.Source)
	require.Len(t, out.Rules, 1)
	assert.Equal(t, domain.FieldTotalSpend, out.Rules[0].Field)
}

func TestPersonalizePreviewSmartMode(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/personalize/preview", map[string]any{
		"message": "Hi there, check out our new arrivals.",
		"mode":    "smart",
		"customer": map[string]any{
			"first_name":  "Ada",
			"total_spend": 1200,
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	decodeBody(t, resp, &out)
	assert.Equal(t, "Hi Ada!", out["subject"])
	assert.Contains(t, out["body"], "VIP")
	assert.Contains(t, out["body"], "15% off")
}

func TestPersonalizePreviewTemplateDefault(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/personalize/preview", map[string]any{
		"message": "Hello {{firstName}}, you have {{visits}} visits.",
		"customer": map[string]any{
			"first_name": "Ada",
			"visits":     4,
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]string
	decodeBody(t, resp, &out)
	assert.Equal(t, "Hello Ada, you have 4 visits.", out["body"])
}

func TestAIHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/v1/ai/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out ai.Health
	decodeBody(t, resp, &out)
	assert.Equal(t, "offline", out.Status)
}
