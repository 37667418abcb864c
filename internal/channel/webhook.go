package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Webhook is the automation round-trip channel: the dose payload is POSTed
// to a configured automation endpoint and the endpoint's reply decides the
// outcome. The automation side reports one of "success", "error", "cancel"
// or "passcode_fail"; the latter two both end the request without a dose.
type Webhook struct {
	url        string
	httpClient *http.Client
}

// NewWebhook creates a webhook channel for the given endpoint.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name implements DeliveryChannel.
func (w *Webhook) Name() string { return "webhook" }

// webhookReply is the automation endpoint's response body.
type webhookReply struct {
	Result  string `json:"result"`
	Message string `json:"message,omitempty"`
}

// Send implements DeliveryChannel.
func (w *Webhook) Send(ctx context.Context, req Request) (Outcome, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Outcome{}, fmt.Errorf("encoding payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return Outcome{}, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return Outcome{}, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{}, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{}, fmt.Errorf("automation error %d: %s", resp.StatusCode, string(body))
	}

	var reply webhookReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return Outcome{}, fmt.Errorf("parsing reply: %w", err)
	}

	switch reply.Result {
	case "success":
		return Outcome{Kind: OutcomeConfirmed}, nil
	case "cancel":
		return Outcome{Kind: OutcomeCancelled, Reason: reply.Message}, nil
	case "passcode_fail":
		return Outcome{Kind: OutcomeFailed, Reason: "passcode failed"}, nil
	case "error":
		reason := reply.Message
		if reason == "" {
			reason = "automation reported an error"
		}
		return Outcome{Kind: OutcomeFailed, Reason: reason}, nil
	default:
		return Outcome{}, fmt.Errorf("unknown automation result %q", reply.Result)
	}
}
