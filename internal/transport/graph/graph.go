// Package graph implements a Transport that sends mail through the
// Microsoft Graph sendMail API (Exchange Online).
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/mimemsg"
	"github.com/shineum/mailkit/internal/transport"
)

// Supported OAuth2 flows.
const (
	// FlowPassword exchanges the mailbox user's credentials for a token
	// (resource owner password grant).
	FlowPassword = "password"
	// FlowClientCredentials treats the credentials as an app registration's
	// client ID and secret.
	FlowClientCredentials = "client_credentials"
)

const (
	defaultHost      = "graph.microsoft.com"
	defaultAuthority = "https://login.microsoftonline.com"
)

// DialerConfig holds the Azure AD application settings.
type DialerConfig struct {
	TenantID string
	// ClientID and ClientSecret identify the app for the password flow.
	ClientID     string
	ClientSecret string
	Flow         string
	// AuthorityURL overrides the identity platform root.
	AuthorityURL string
	HTTPClient   *http.Client
}

// Dialer acquires an OAuth2 token and returns a Graph Transport.
// @MX:ANCHOR: [AUTO] External system integration point for Microsoft Graph API
// @MX:REASON: All Exchange Online delivery flows through this dialer
type Dialer struct {
	cfg DialerConfig
}

// New creates a Dialer. An empty Flow defaults to FlowPassword.
func New(cfg DialerConfig) *Dialer {
	if cfg.Flow == "" {
		cfg.Flow = FlowPassword
	}
	if cfg.AuthorityURL == "" {
		cfg.AuthorityURL = defaultAuthority
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Dialer{cfg: cfg}
}

// Name returns the provider name.
func (d *Dialer) Name() string {
	return "msgraph"
}

// Dial fetches a token for creds and binds the transport to mailbox.
// server is the Graph API host or base URL; empty means graph.microsoft.com.
func (d *Dialer) Dial(ctx context.Context, creds email.Credentials, server, mailbox string) (transport.Transport, error) {
	baseURL, err := apiBaseURL(server)
	if err != nil {
		return nil, err
	}

	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token",
		strings.TrimRight(d.cfg.AuthorityURL, "/"),
		url.PathEscape(d.cfg.TenantID),
	)
	scopes := []string{baseURL.Scheme + "://" + baseURL.Host + "/.default"}

	// The token source outlives ctx; it refreshes on later sends.
	bg := context.WithValue(context.Background(), oauth2.HTTPClient, d.cfg.HTTPClient)
	dialCtx := context.WithValue(ctx, oauth2.HTTPClient, d.cfg.HTTPClient)

	var ts oauth2.TokenSource
	switch d.cfg.Flow {
	case FlowPassword:
		conf := &oauth2.Config{
			ClientID:     d.cfg.ClientID,
			ClientSecret: d.cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: scopes,
		}
		tok, err := conf.PasswordCredentialsToken(dialCtx, creds.Principal, creds.Secret)
		if err != nil {
			return nil, d.tokenError(creds, err)
		}
		ts = conf.TokenSource(bg, tok)
	case FlowClientCredentials:
		conf := &clientcredentials.Config{
			ClientID:     creds.Principal,
			ClientSecret: creds.Secret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		tok, err := conf.Token(dialCtx)
		if err != nil {
			return nil, d.tokenError(creds, err)
		}
		ts = oauth2.ReuseTokenSource(tok, conf.TokenSource(bg))
	default:
		return nil, fmt.Errorf("unsupported Graph OAuth2 flow %q", d.cfg.Flow)
	}

	slog.Debug("Graph API token acquired",
		"flow", d.cfg.Flow,
		"mailbox", mailbox,
	)

	sendURL := fmt.Sprintf("%s/v1.0/users/%s/sendMail",
		strings.TrimRight(baseURL.String(), "/"),
		url.PathEscape(mailbox),
	)

	return &Transport{
		principal:  creds.Principal,
		mailbox:    mailbox,
		sendURL:    sendURL,
		httpClient: oauth2.NewClient(bg, ts),
	}, nil
}

// tokenError maps rejected credentials to *transport.AuthorizationError.
func (d *Dialer) tokenError(creds email.Credentials, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "invalid_grant", "invalid_client", "unauthorized_client":
			return &transport.AuthorizationError{Provider: d.Name(), Principal: creds.Principal, Err: err}
		}
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusUnauthorized {
			return &transport.AuthorizationError{Provider: d.Name(), Principal: creds.Principal, Err: err}
		}
	}
	return fmt.Errorf("failed to get access token: %w", err)
}

func apiBaseURL(server string) (*url.URL, error) {
	if server == "" {
		server = defaultHost
	}
	if !strings.Contains(server, "://") {
		server = "https://" + server
	}
	u, err := url.Parse(server)
	if err != nil {
		return nil, fmt.Errorf("invalid Graph API host %q: %w", server, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid Graph API host %q", server)
	}
	return u, nil
}

// Transport posts messages to a single mailbox's sendMail endpoint.
type Transport struct {
	principal  string
	mailbox    string
	sendURL    string
	httpClient *http.Client
}

// Send delivers msg with a single sendMail request. Failures are returned
// as *APIError (or *transport.AuthorizationError for HTTP 401) and are
// never retried.
func (t *Transport) Send(ctx context.Context, msg *email.Message) (*transport.Receipt, error) {
	if msg.MessageID == "" {
		msg.MessageID = mimemsg.NewMessageID(t.mailbox)
	}

	bodyJSON, err := json.Marshal(buildSendMailRequest(msg))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	if err := t.doSendRequest(ctx, bodyJSON); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return nil, &transport.AuthorizationError{Provider: t.Name(), Principal: t.principal, Err: err}
		}
		return nil, err
	}

	return transport.NewReceipt(t.Name(), msg.MessageID, msg), nil
}

// Name returns the provider name.
func (t *Transport) Name() string {
	return "msgraph"
}

// Close releases idle HTTP connections.
func (t *Transport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}

// doSendRequest performs a single HTTP request to the Graph API sendMail endpoint.
func (t *Transport) doSendRequest(ctx context.Context, bodyJSON []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.sendURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("Graph API request failed: %w", err)
	}
	defer resp.Body.Close()

	// HTTP 202 Accepted is success for sendMail
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)

	var graphErrResp graphErrorResponse
	if jsonErr := json.Unmarshal(body, &graphErrResp); jsonErr == nil && graphErrResp.Error.Message != "" {
		return classifyError(resp.StatusCode, graphErrResp.Error.Code, graphErrResp.Error.Message, resp.Header.Get("Retry-After"))
	}

	return classifyError(resp.StatusCode, "", string(body), resp.Header.Get("Retry-After"))
}

// APIError is a non-success response from the Graph API. Transient marks
// failures a caller may choose to retry later.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Transient  bool
	RetryAfter string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("Graph API error (HTTP %d, %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("Graph API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// classifyError categorizes an HTTP error response.
func classifyError(statusCode int, code, message, retryAfter string) *APIError {
	err := &APIError{
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		RetryAfter: retryAfter,
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		err.Transient = true
	case statusCode >= 500:
		err.Transient = true
	}

	return err
}
