package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mrcode/mealdose/internal/models"
)

func testRequest() Request {
	return Request{
		ID:          uuid.New(),
		Kind:        models.DoseStart,
		Amounts:     models.DoseAmounts{Carbs: 30, Bolus: 3.0},
		RequestedAt: time.Now(),
	}
}

func TestWebhook_Outcomes(t *testing.T) {
	tests := []struct {
		name     string
		result   string
		message  string
		want     OutcomeKind
		wantsErr bool
	}{
		{"Success confirms", "success", "", OutcomeConfirmed, false},
		{"Cancel cancels", "cancel", "changed my mind", OutcomeCancelled, false},
		{"Error fails", "error", "shortcut crashed", OutcomeFailed, false},
		{"Passcode failure fails", "passcode_fail", "", OutcomeFailed, false},
		{"Unknown result is a transport error", "maybe", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("Unexpected method: %s", r.Method)
				}
				var req Request
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
					t.Errorf("decoding payload: %v", err)
				}
				if req.Kind != models.DoseStart {
					t.Errorf("payload kind = %s, want %s", req.Kind, models.DoseStart)
				}

				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(webhookReply{Result: tt.result, Message: tt.message})
			}))
			defer server.Close()

			wh := NewWebhook(server.URL)
			outcome, err := wh.Send(context.Background(), testRequest())

			if tt.wantsErr {
				if err == nil {
					t.Fatal("Send() error = nil, want transport error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if outcome.Kind != tt.want {
				t.Errorf("outcome = %s, want %s", outcome.Kind, tt.want)
			}
		})
	}
}

func TestWebhook_HTTPErrorIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	wh := NewWebhook(server.URL)
	if _, err := wh.Send(context.Background(), testRequest()); err == nil {
		t.Error("Send() error = nil for HTTP 500, want error")
	}
}

func TestSMS_GatewayAcceptConfirms(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token123" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parsing form: %v", err)
		}
		if got := r.PostForm.Get("To"); got != "+1555000" {
			t.Errorf("To = %q, want +1555000", got)
		}
		if body := r.PostForm.Get("Body"); !strings.Contains(body, "start dose") {
			t.Errorf("Body = %q, want dose kind mentioned", body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	sms := NewSMS(server.URL, "token123", "+1555000")
	outcome, err := sms.Send(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if outcome.Kind != OutcomeConfirmed {
		t.Errorf("outcome = %s, want %s", outcome.Kind, OutcomeConfirmed)
	}
}

func TestSMS_GatewayRejectFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid recipient", http.StatusBadRequest)
	}))
	defer server.Close()

	sms := NewSMS(server.URL, "", "+1555000")
	outcome, err := sms.Send(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if outcome.Kind != OutcomeFailed {
		t.Errorf("outcome = %s, want %s", outcome.Kind, OutcomeFailed)
	}
	if outcome.Reason == "" {
		t.Error("failed outcome carries no reason")
	}
}

func TestManual_Confirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  OutcomeKind
	}{
		{"Yes confirms", "y\n", OutcomeConfirmed},
		{"Full yes confirms", "yes\n", OutcomeConfirmed},
		{"No cancels", "n\n", OutcomeCancelled},
		{"Empty cancels", "\n", OutcomeCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			m := NewManual(strings.NewReader(tt.input), &out, false)
			m.notify = func(title, message string) error { return nil }

			outcome, err := m.Send(context.Background(), testRequest())
			if err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if outcome.Kind != tt.want {
				t.Errorf("outcome = %s, want %s", outcome.Kind, tt.want)
			}
			if !strings.Contains(out.String(), "Start dose") {
				t.Errorf("prompt %q does not name the dose step", out.String())
			}
		})
	}
}

func TestManual_NotifyFailureStillPrompts(t *testing.T) {
	var out strings.Builder
	m := NewManual(strings.NewReader("y\n"), &out, false)
	m.notify = func(title, message string) error {
		return context.DeadlineExceeded // any error will do
	}

	outcome, err := m.Send(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if outcome.Kind != OutcomeConfirmed {
		t.Errorf("outcome = %s, want %s", outcome.Kind, OutcomeConfirmed)
	}
}
