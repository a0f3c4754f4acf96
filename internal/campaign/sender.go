package campaign

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pulsecrm/engage/internal/domain"
	"github.com/pulsecrm/engage/internal/pkg/httpretry"
)

// HTTPSender posts delivery jobs to an outbound message vendor. The vendor
// acknowledges synchronously; final disposition arrives later on the
// receipt webhook.
type HTTPSender struct {
	client   httpretry.HTTPDoer
	endpoint string
	apiKey   string
}

// NewHTTPSender builds a sender for the given vendor endpoint. A nil client
// gets a retrying default.
func NewHTTPSender(endpoint, apiKey string, client httpretry.HTTPDoer) *HTTPSender {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 2)
	}
	return &HTTPSender{client: client, endpoint: endpoint, apiKey: apiKey}
}

// Send implements Sender. A 2xx acknowledgement maps to SENT; a definitive
// vendor rejection maps to FAILED without error so the receipt records the
// reason.
func (s *HTTPSender) Send(ctx context.Context, job domain.DeliveryJob) (domain.LogStatus, string, error) {
	body, err := json.Marshal(map[string]string{
		"reference": job.CommunicationLogID,
		"to":        job.Email,
		"subject":   job.Subject,
		"body":      job.Message,
	})
	if err != nil {
		return domain.LogFailed, "", fmt.Errorf("marshal vendor payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.LogFailed, "", fmt.Errorf("build vendor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.LogFailed, "", fmt.Errorf("vendor unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return domain.LogSent, "", nil
	case resp.StatusCode == http.StatusUnprocessableEntity, resp.StatusCode == http.StatusBadRequest:
		return domain.LogFailed, fmt.Sprintf("vendor rejected message: status %d", resp.StatusCode), nil
	default:
		return domain.LogFailed, "", fmt.Errorf("vendor returned status %d", resp.StatusCode)
	}
}
