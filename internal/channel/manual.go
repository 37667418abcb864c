package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gen2brain/beeep"

	"github.com/mrcode/mealdose/internal/models"
)

// Manual is the local confirmation channel: a desktop alert draws the
// user's attention and the dose is confirmed or dismissed interactively.
type Manual struct {
	// Sound plays the alert sound with the notification.
	Sound bool

	// In/Out carry the interactive confirmation. They default to the
	// process terminal when nil.
	In  io.Reader
	Out io.Writer

	// notify is swapped out in tests.
	notify func(title, message string) error
}

// NewManual creates a manual channel reading confirmations from in and
// prompting on out.
func NewManual(in io.Reader, out io.Writer, sound bool) *Manual {
	return &Manual{Sound: sound, In: in, Out: out}
}

// Name implements DeliveryChannel.
func (m *Manual) Name() string { return "manual" }

// Send raises a desktop alert for the dose and waits for the user to
// confirm or dismiss it. Dismissal is a cancellation, never a failure.
func (m *Manual) Send(ctx context.Context, req Request) (Outcome, error) {
	in := m.In
	if in == nil {
		in = os.Stdin
	}
	out := m.Out
	if out == nil {
		out = os.Stderr
	}

	title, message := formatAlert(req)
	notify := m.notify
	if notify == nil {
		if m.Sound {
			notify = func(t, msg string) error { return beeep.Alert(t, msg, "") }
		} else {
			notify = func(t, msg string) error { return beeep.Notify(t, msg, "") }
		}
	}
	if err := notify(title, message); err != nil {
		// The prompt below still works without the desktop alert.
		fmt.Fprintf(out, "(desktop alert unavailable: %v)\n", err)
	}

	fmt.Fprintf(out, "%s\n%s\nConfirm delivery? [y/N]: ", title, message)

	answer := make(chan string, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		if scanner.Scan() {
			answer <- strings.TrimSpace(strings.ToLower(scanner.Text()))
			return
		}
		answer <- ""
	}()

	select {
	case <-ctx.Done():
		return Outcome{Kind: OutcomeCancelled, Reason: "request cancelled"}, nil
	case a := <-answer:
		if a == "y" || a == "yes" {
			return Outcome{Kind: OutcomeConfirmed}, nil
		}
		return Outcome{Kind: OutcomeCancelled, Reason: "dismissed"}, nil
	}
}

func formatAlert(req Request) (string, string) {
	var title string
	switch req.Kind {
	case models.DosePreBolus:
		title = "Pre-bolus"
	case models.DoseStart:
		title = "Start dose"
	case models.DoseRemaining:
		title = "Remaining dose"
	default:
		title = "Dose"
	}
	message := fmt.Sprintf("%.1f g carbs, %.2f U insulin", req.Amounts.Carbs, req.Amounts.Bolus)
	if req.Amounts.Fat > 0 || req.Amounts.Protein > 0 {
		message = fmt.Sprintf("%s (%.1f g fat, %.1f g protein)",
			message, req.Amounts.Fat, req.Amounts.Protein)
	}
	return title, message
}
