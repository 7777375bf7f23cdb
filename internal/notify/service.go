package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/cardio-intake/pkg/logging"
)

// IntakeNotice tells reception that a patient produced an intake PDF and
// should be emailing it shortly. It deliberately carries no form contents.
type IntakeNotice struct {
	Reference   string
	GeneratedAt time.Time
}

// ReceptionNotifier sends the reception heads-up email.
type ReceptionNotifier struct {
	email      EmailSender
	recipient  string
	clinicName string
	location   *time.Location
	logger     *logging.Logger
}

// NewReceptionNotifier creates a notifier. A nil sender or empty recipient
// disables it.
func NewReceptionNotifier(email EmailSender, recipient, clinicName string, logger *logging.Logger) *ReceptionNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReceptionNotifier{
		email:      email,
		recipient:  strings.TrimSpace(recipient),
		clinicName: clinicName,
		location:   time.Local,
		logger:     logger,
	}
}

// Enabled reports whether notices will be sent.
func (n *ReceptionNotifier) Enabled() bool {
	return n != nil && n.email != nil && n.recipient != ""
}

// NotifyIntakeGenerated emails reception about a freshly generated intake.
func (n *ReceptionNotifier) NotifyIntakeGenerated(ctx context.Context, notice IntakeNotice) error {
	if !n.Enabled() {
		if n != nil {
			n.logger.Debug("notify: reception notices disabled, skipping")
		}
		return nil
	}
	at := notice.GeneratedAt
	if at.IsZero() {
		at = time.Now()
	}

	subject := "Patient intake form generated"
	if n.clinicName != "" {
		subject = fmt.Sprintf("%s: patient intake form generated", n.clinicName)
	}

	var b strings.Builder
	b.WriteString("A patient has just completed the online intake form.\n\n")
	fmt.Fprintf(&b, "Reference: %s\n", notice.Reference)
	fmt.Fprintf(&b, "Generated: %s\n\n", at.In(n.location).Format("Monday, January 2 at 3:04 PM"))
	b.WriteString("The patient downloaded the PDF and was asked to email it to this inbox as an attachment. ")
	b.WriteString("If it has not arrived, the patient may need help attaching the file.\n")

	if err := n.email.Send(ctx, EmailMessage{
		To:      n.recipient,
		Subject: subject,
		Body:    b.String(),
	}); err != nil {
		n.logger.Warn("notify: reception notice failed", "error", err, "reference", notice.Reference)
		return fmt.Errorf("notify: reception notice: %w", err)
	}
	return nil
}
