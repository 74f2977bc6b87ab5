package ses

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/smithy-go"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/mimemsg"
	"github.com/shineum/mailkit/internal/transport"
)

// mockSESClient implements API for testing.
type mockSESClient struct {
	sendFn       func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	getAccountFn func(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
	callCount    int
	lastInput    *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params, optFns...)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

func (m *mockSESClient) GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error) {
	if m.getAccountFn != nil {
		return m.getAccountFn(ctx, params, optFns...)
	}
	return &sesv2.GetAccountOutput{SendingEnabled: true}, nil
}

func dial(t *testing.T, mock *mockSESClient) transport.Transport {
	t.Helper()
	tr, err := NewWithClient(mock).Dial(context.Background(),
		email.Credentials{Principal: "AKIDEXAMPLE", Secret: "secret"}, "us-east-1", "sender@example.com")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	return tr
}

func TestName(t *testing.T) {
	t.Parallel()
	d := NewWithClient(&mockSESClient{})
	if got := d.Name(); got != "ses" {
		t.Errorf("Name(): got %q, want %q", got, "ses")
	}
}

func TestDial_RejectedCredentials(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code string
		auth bool
	}{
		{"unrecognized client", "UnrecognizedClientException", true},
		{"invalid token", "InvalidClientTokenId", true},
		{"bad signature", "SignatureDoesNotMatch", true},
		{"access denied", "AccessDeniedException", true},
		{"throttled", "TooManyRequestsException", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := &mockSESClient{
				getAccountFn: func(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error) {
					return nil, &smithy.GenericAPIError{Code: tt.code, Message: "denied"}
				},
			}

			_, err := NewWithClient(mock).Dial(context.Background(),
				email.Credentials{Principal: "AKIDEXAMPLE", Secret: "secret"}, "us-east-1", "sender@example.com")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if got := errors.Is(err, transport.ErrAuthorization); got != tt.auth {
				t.Errorf("errors.Is(ErrAuthorization) = %v, want %v (err = %v)", got, tt.auth, err)
			}
			if mock.callCount != 0 {
				t.Errorf("SendEmail calls = %d, want 0", mock.callCount)
			}
		})
	}
}

func TestSend_SimpleHTMLMessage(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := dial(t, mock)

	msg := &email.Message{
		To:      []string{"to1@example.com", "to2@example.com"},
		Cc:      []string{"cc@example.com"},
		Subject: "HTML Test",
		Body:    "<h1>Hello</h1>",
	}

	receipt, err := tr.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}
	if receipt.MessageID != "test-message-id" {
		t.Errorf("MessageID: got %q, want %q", receipt.MessageID, "test-message-id")
	}

	input := mock.lastInput
	if input.Content.Simple == nil {
		t.Fatal("expected simple email content, got nil")
	}
	if got := *input.FromEmailAddress; got != "sender@example.com" {
		t.Errorf("FromEmailAddress: got %q, want %q", got, "sender@example.com")
	}
	if got := *input.Content.Simple.Subject.Data; got != "HTML Test" {
		t.Errorf("Subject: got %q, want %q", got, "HTML Test")
	}
	if got := *input.Content.Simple.Body.Html.Data; got != "<h1>Hello</h1>" {
		t.Errorf("Html: got %q, want %q", got, "<h1>Hello</h1>")
	}
	if len(input.Destination.ToAddresses) != 2 || len(input.Destination.CcAddresses) != 1 {
		t.Errorf("Destination: got %+v", input.Destination)
	}
}

func TestSend_WithAttachmentsUsesRawMIME(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	tr := dial(t, mock)

	msg := &email.Message{
		To:      []string{"to@example.com"},
		Subject: "With Attachment",
		Body:    "<p>see attached</p>",
		Attachments: []email.Attachment{
			{Name: "report.csv", ContentType: "text/csv", ContentID: "report.csv", Content: []byte(",a\n0,1\n")},
		},
	}

	if _, err := tr.Send(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := mock.lastInput
	if input.Content.Raw == nil {
		t.Fatal("expected raw content, got nil")
	}

	parsed, err := mimemsg.Parse(bytes.NewReader(input.Content.Raw.Data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed.From != "sender@example.com" {
		t.Errorf("From: got %q, want %q", parsed.From, "sender@example.com")
	}
	if len(parsed.Attachments) != 1 || parsed.Attachments[0].Name != "report.csv" {
		t.Errorf("Attachments: got %+v", parsed.Attachments)
	}
}

func TestSend_ErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{
		sendFn: func(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
			return nil, errors.New("transient error")
		},
	}
	tr := dial(t, mock)

	_, err := tr.Send(context.Background(), &email.Message{To: []string{"to@example.com"}})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if mock.callCount != 1 {
		t.Errorf("call count: got %d, want 1", mock.callCount)
	}
	if errors.Is(err, transport.ErrAuthorization) {
		t.Errorf("plain error classified as authorization failure: %v", err)
	}
}

func TestBuildSimpleInput(t *testing.T) {
	t.Parallel()

	msg := &email.Message{
		To:      []string{"to@example.com"},
		Subject: "Subject",
		Body:    "<b>Body</b>",
	}

	input := buildSimpleInput("sender@example.com", msg)

	if *input.FromEmailAddress != "sender@example.com" {
		t.Errorf("FromEmailAddress: got %q", *input.FromEmailAddress)
	}
	if *input.Content.Simple.Body.Html.Charset != "UTF-8" {
		t.Errorf("Charset: got %q, want UTF-8", *input.Content.Simple.Body.Html.Charset)
	}
	if input.Content.Simple.Body.Text != nil {
		t.Error("expected no text body")
	}
}
