package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

// BillingClient is the HTTP-backed UsageGate. The billing service owns
// minute-limit math and overage accounting; we only ask and report.
type BillingClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewBillingClient(baseURL, apiKey string) *BillingClient {
	return &BillingClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type minutesLimitResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func (c *BillingClient) CheckMinutesLimit(ctx context.Context, orgID int) (*UsageDecision, error) {
	url := fmt.Sprintf("%s/v1/organizations/%d/minutes-limit", c.BaseURL, orgID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build minutes-limit request")
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "billing service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("billing service returned %d", resp.StatusCode)
	}

	var out minutesLimitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode minutes-limit response")
	}
	return &UsageDecision{Allowed: out.Allowed, Reason: out.Reason}, nil
}

type recordUsageRequest struct {
	DurationSeconds int    `json:"duration_seconds"`
	CallID          string `json:"call_id"`
}

func (c *BillingClient) RecordCallUsage(ctx context.Context, orgID int, durationSeconds int, callID string) error {
	body, err := json.Marshal(recordUsageRequest{DurationSeconds: durationSeconds, CallID: callID})
	if err != nil {
		return errors.Wrap(err, "marshal usage record")
	}

	url := fmt.Sprintf("%s/v1/organizations/%d/usage", c.BaseURL, orgID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build usage request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "billing service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Newf("billing service returned %d", resp.StatusCode)
	}
	return nil
}

var _ UsageGate = (*BillingClient)(nil)
