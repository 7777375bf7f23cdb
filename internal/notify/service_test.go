package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/cardio-intake/pkg/logging"
)

type mockEmailSender struct {
	sent []EmailMessage
	err  error
}

func (m *mockEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	m.sent = append(m.sent, msg)
	return m.err
}

func TestReceptionNotifier_NotifyIntakeGenerated(t *testing.T) {
	sender := &mockEmailSender{}
	n := NewReceptionNotifier(sender, " reception@clinic.example ", "Heart Health", logging.Discard())
	n.location = time.UTC

	err := n.NotifyIntakeGenerated(context.Background(), IntakeNotice{
		Reference:   "A1B2C3",
		GeneratedAt: time.Date(2026, 5, 4, 14, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "reception@clinic.example", msg.To)
	assert.Equal(t, "Heart Health: patient intake form generated", msg.Subject)
	assert.Contains(t, msg.Body, "Reference: A1B2C3")
	assert.Contains(t, msg.Body, "Monday, May 4 at 2:30 PM")
}

func TestReceptionNotifier_Disabled(t *testing.T) {
	tests := []struct {
		name string
		n    *ReceptionNotifier
	}{
		{name: "nil notifier", n: nil},
		{name: "no sender", n: NewReceptionNotifier(nil, "reception@clinic.example", "", logging.Discard())},
		{name: "no recipient", n: NewReceptionNotifier(&mockEmailSender{}, "  ", "", logging.Discard())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.n.Enabled())
			assert.NoError(t, tt.n.NotifyIntakeGenerated(context.Background(), IntakeNotice{Reference: "x"}))
		})
	}
}

func TestReceptionNotifier_SendFailure(t *testing.T) {
	sender := &mockEmailSender{err: errors.New("smtp down")}
	n := NewReceptionNotifier(sender, "reception@clinic.example", "", logging.Discard())

	err := n.NotifyIntakeGenerated(context.Background(), IntakeNotice{Reference: "x"})
	require.Error(t, err)
	assert.Equal(t, "Patient intake form generated", sender.sent[0].Subject)
}
