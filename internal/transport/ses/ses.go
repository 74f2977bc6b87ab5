// Package ses implements a Transport that sends mail via AWS SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/mimemsg"
	"github.com/shineum/mailkit/internal/transport"
)

// API is the subset of the SES v2 client used by the transport.
// Used for testing with mock implementations.
type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
	GetAccount(ctx context.Context, params *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
}

// authErrorCodes are the SES/STS error codes that mean the credentials
// were rejected.
var authErrorCodes = map[string]bool{
	"UnrecognizedClientException": true,
	"InvalidClientTokenId":        true,
	"SignatureDoesNotMatch":       true,
	"ExpiredToken":                true,
	"ExpiredTokenException":       true,
}

// Dialer builds SES clients from an access key pair and a region.
// @MX:ANCHOR: [AUTO] External system integration point for AWS SES
// @MX:REASON: All SES delivery flows through this dialer
type Dialer struct {
	newClient func(aws.Config) API
}

// New creates a Dialer backed by the real SES v2 client.
func New() *Dialer {
	return &Dialer{
		newClient: func(cfg aws.Config) API {
			return sesv2.NewFromConfig(cfg)
		},
	}
}

// NewWithClient creates a Dialer that always uses client, used for testing.
func NewWithClient(client API) *Dialer {
	return &Dialer{
		newClient: func(aws.Config) API {
			return client
		},
	}
}

// Name returns the provider name.
func (d *Dialer) Name() string {
	return "ses"
}

// Dial treats creds as an access key ID and secret access key and server
// as the AWS region. The credentials are verified with GetAccount.
func (d *Dialer) Dial(ctx context.Context, creds email.Credentials, server, mailbox string) (transport.Transport, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(server),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.Principal, creds.Secret, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := d.newClient(awsCfg)

	account, err := client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		if isAuthError(err) {
			return nil, &transport.AuthorizationError{Provider: d.Name(), Principal: creds.Principal, Err: err}
		}
		return nil, fmt.Errorf("failed to verify SES account: %w", err)
	}

	if !account.SendingEnabled {
		slog.Warn("SES sending is disabled for this account", "region", server)
	}

	return &Transport{
		principal: creds.Principal,
		sender:    mailbox,
		client:    client,
	}, nil
}

// Transport sends messages through an SES v2 client.
type Transport struct {
	principal string
	sender    string
	client    API
}

// Send delivers msg with a single SendEmail call.
// Messages with attachments are sent as raw MIME; others use the simple format.
func (t *Transport) Send(ctx context.Context, msg *email.Message) (*transport.Receipt, error) {
	if msg.From == "" {
		msg.From = t.sender
	}
	if msg.MessageID == "" {
		msg.MessageID = mimemsg.NewMessageID(t.sender)
	}

	var input *sesv2.SendEmailInput
	if len(msg.Attachments) > 0 {
		raw, err := mimemsg.Build(msg)
		if err != nil {
			return nil, fmt.Errorf("failed to build raw message: %w", err)
		}
		input = &sesv2.SendEmailInput{
			FromEmailAddress: aws.String(t.sender),
			Destination: &types.Destination{
				ToAddresses: msg.To,
				CcAddresses: msg.Cc,
			},
			Content: &types.EmailContent{
				Raw: &types.RawMessage{
					Data: raw,
				},
			},
		}
	} else {
		input = buildSimpleInput(t.sender, msg)
	}

	out, err := t.client.SendEmail(ctx, input)
	if err != nil {
		if isAuthError(err) {
			return nil, &transport.AuthorizationError{Provider: t.Name(), Principal: t.principal, Err: err}
		}
		return nil, fmt.Errorf("SES SendEmail failed: %w", err)
	}

	return transport.NewReceipt(t.Name(), aws.ToString(out.MessageId), msg), nil
}

// Name returns the provider name.
func (t *Transport) Name() string {
	return "ses"
}

// Close is a no-op; the SDK client holds no session state.
func (t *Transport) Close() error {
	return nil
}

// buildSimpleInput creates a SES SendEmailInput for messages without attachments.
func buildSimpleInput(sender string, msg *email.Message) *sesv2.SendEmailInput {
	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination: &types.Destination{
			ToAddresses: msg.To,
			CcAddresses: msg.Cc,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(msg.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(string(msg.Body)),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}
}

func isAuthError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	code := apiErr.ErrorCode()
	return authErrorCodes[code] || strings.HasPrefix(code, "AccessDenied")
}
