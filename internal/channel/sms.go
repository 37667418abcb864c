package channel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mrcode/mealdose/internal/models"
)

// SMS delivers the dose request as a text message through a REST SMS
// gateway. A gateway acceptance counts as confirmation; a rejected or
// undeliverable message is a failure. There is no cancel path over SMS.
type SMS struct {
	gatewayURL string
	token      string
	recipient  string
	httpClient *http.Client
}

// NewSMS creates an SMS channel for the given gateway.
func NewSMS(gatewayURL, token, recipient string) *SMS {
	return &SMS{
		gatewayURL: strings.TrimRight(gatewayURL, "/"),
		token:      token,
		recipient:  recipient,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name implements DeliveryChannel.
func (s *SMS) Name() string { return "sms" }

// Send implements DeliveryChannel.
func (s *SMS) Send(ctx context.Context, req Request) (Outcome, error) {
	form := url.Values{}
	form.Set("To", s.recipient)
	form.Set("Body", formatSMS(req))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.gatewayURL+"/messages", strings.NewReader(form.Encode()))
	if err != nil {
		return Outcome{}, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(httpReq)
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
		return Outcome{
			Kind:   OutcomeFailed,
			Reason: fmt.Sprintf("gateway error %d: %s", resp.StatusCode, string(body)),
		}, nil
	}
	return Outcome{Kind: OutcomeConfirmed}, nil
}

func formatSMS(req Request) string {
	var kind string
	switch req.Kind {
	case models.DosePreBolus:
		kind = "pre-bolus"
	case models.DoseStart:
		kind = "start dose"
	case models.DoseRemaining:
		kind = "remaining dose"
	default:
		kind = string(req.Kind)
	}
	return fmt.Sprintf("mealdose %s: %.1fg carbs, %.2fU insulin (ref %s)",
		kind, req.Amounts.Carbs, req.Amounts.Bolus, req.ID.String()[:8])
}
