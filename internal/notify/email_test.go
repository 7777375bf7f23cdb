package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/cardio-intake/pkg/logging"
)

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "",
		FromEmail: "test@example.com",
	}, nil)

	if sender != nil {
		t.Error("expected nil sender when API key is empty")
	}
}

func TestNewSendGridSender_DefaultFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "test-key",
		FromEmail: "test@example.com",
	}, nil)

	require.NotNil(t, sender)
	assert.Equal(t, defaultFromName, sender.fromName)
}

type fakeSendGrid struct {
	status int
	err    error
	sent   []*mail.SGMailV3
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func TestSendGridSender_Send(t *testing.T) {
	tests := []struct {
		name    string
		client  *fakeSendGrid
		wantErr bool
	}{
		{name: "accepted", client: &fakeSendGrid{status: 202}},
		{name: "rejected status", client: &fakeSendGrid{status: 401}, wantErr: true},
		{name: "transport error", client: &fakeSendGrid{err: errors.New("dial tcp: timeout")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &SendGridSender{
				client:    tt.client,
				fromEmail: "web@clinic.example",
				fromName:  "Clinic",
				logger:    logging.Discard(),
			}
			err := sender.Send(context.Background(), EmailMessage{
				To:      "reception@clinic.example",
				Subject: "Test",
				Body:    "Body",
			})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			require.Len(t, tt.client.sent, 1)
			assert.Equal(t, "Test", tt.client.sent[0].Subject)
		})
	}
}

func TestSendGridSender_Send_NilClient(t *testing.T) {
	sender := &SendGridSender{}

	err := sender.Send(context.Background(), EmailMessage{To: "recipient@example.com"})
	assert.Error(t, err)
}

type fakeSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	client := &fakeSES{}
	sender := NewSESSender(client, SESConfig{FromEmail: "web@clinic.example"}, logging.Discard())
	require.NotNil(t, sender)

	err := sender.Send(context.Background(), EmailMessage{
		To:      "reception@clinic.example",
		Subject: "Hello",
		Body:    "Plain",
	})
	require.NoError(t, err)

	require.NotNil(t, client.input)
	assert.Equal(t, "Clinic Website <web@clinic.example>", aws.ToString(client.input.FromEmailAddress))
	assert.Equal(t, []string{"reception@clinic.example"}, client.input.Destination.ToAddresses)
	assert.Equal(t, "Plain", aws.ToString(client.input.Content.Simple.Body.Text.Data))
	assert.Nil(t, client.input.Content.Simple.Body.Html)
}

func TestSESSender_SendError(t *testing.T) {
	sender := NewSESSender(&fakeSES{err: errors.New("throttled")}, SESConfig{FromEmail: "a@b.c"}, logging.Discard())
	assert.Error(t, sender.Send(context.Background(), EmailMessage{To: "x@y.z", Body: "b"}))
}

func TestNewSESSender_NilClient(t *testing.T) {
	assert.Nil(t, NewSESSender(nil, SESConfig{}, nil))
}

func TestStubEmailSender(t *testing.T) {
	assert.NoError(t, NewStubEmailSender(logging.Discard()).Send(context.Background(), EmailMessage{To: "a@b.c"}))
}
