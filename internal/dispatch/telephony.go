package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/unclebandit/calleopard-backend/internal/model"
)

// TelephonyClient dispatches calls over the provider's HTTP API. A shared
// rate limiter keeps the whole process under the provider's requests-per-
// second ceiling regardless of how many campaigns are mid-batch.
type TelephonyClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Logger     *zap.SugaredLogger
}

func NewTelephonyClient(baseURL, apiKey string, callsPerSecond float64, log *zap.SugaredLogger) *TelephonyClient {
	return &TelephonyClient{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Limiter:    rate.NewLimiter(rate.Limit(callsPerSecond), 1),
		Logger:     log,
	}
}

type createCallRequest struct {
	AgentID        string            `json:"agent_id"`
	PhoneNumber    string            `json:"phone_number"`
	IdempotencyKey string            `json:"idempotency_key"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type createCallResponse struct {
	ID              string `json:"id"`
	Status          string `json:"status"`
	DurationSeconds int    `json:"duration_seconds"`
}

func (c *TelephonyClient) CreateCall(ctx context.Context, agentID, phoneNumber string, metadata map[string]string) (*CallResult, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload := createCallRequest{
		AgentID:        agentID,
		PhoneNumber:    phoneNumber,
		IdempotencyKey: uuid.NewString(),
		Metadata:       metadata,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal call request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/calls", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build call request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "telephony provider unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, errors.Newf("telephony provider returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		// 4xx is a permanent rejection of this particular call, not an outage
		return &CallResult{Outcome: model.OutcomeProviderRejected}, nil
	}

	var out createCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "decode call response")
	}

	c.Logger.Debugw("call placed", "provider_call_id", out.ID, "status", out.Status)

	return &CallResult{
		ProviderCallID:  out.ID,
		Outcome:         outcomeFromProviderStatus(out.Status),
		DurationSeconds: out.DurationSeconds,
	}, nil
}

// outcomeFromProviderStatus maps provider status strings onto our outcome
// enum. Unknown statuses count as still-pending so the webhook settles them.
func outcomeFromProviderStatus(status string) model.CallOutcome {
	switch status {
	case "completed":
		return model.OutcomeCompleted
	case "no_answer", "no-answer":
		return model.OutcomeNoAnswer
	case "busy":
		return model.OutcomeBusy
	case "timeout":
		return model.OutcomeProviderTimeout
	case "rejected":
		return model.OutcomeProviderRejected
	case "dnc_requested":
		return model.OutcomeDNCRequested
	}
	return model.OutcomePending
}

var _ CallDispatcher = (*TelephonyClient)(nil)
