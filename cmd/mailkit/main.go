// Package main is the mailkit command: it builds a message from flags and
// configuration and sends it through the configured provider.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/yuin/goldmark"

	"github.com/shineum/mailkit/internal/config"
	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/mailer"
	"github.com/shineum/mailkit/internal/table"
	"github.com/shineum/mailkit/internal/transport"
	"github.com/shineum/mailkit/internal/transport/graph"
	"github.com/shineum/mailkit/internal/transport/resend"
	"github.com/shineum/mailkit/internal/transport/ses"
	"github.com/shineum/mailkit/internal/transport/smtp"
	"github.com/shineum/mailkit/internal/transport/stdout"
)

// Exit codes.
const (
	exitError         = 1
	exitAuthorization = 3
)

// multiFlag collects a repeatable string flag.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

// options holds the parsed command line.
type options struct {
	configPath   string
	to           string
	subject      string
	body         string
	bodyFile     string
	markdown     bool
	tableFile    string
	attach       multiFlag
	attachTables multiFlag
	strict       bool
	dryRun       bool
	out          string
	eml          string
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("mailkit", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "path to YAML configuration file (optional)")
	fs.StringVar(&opts.to, "to", "", "recipients, one address or a ';'-separated list (default MAIL_TO)")
	fs.StringVar(&opts.subject, "subject", "", "message subject")
	fs.StringVar(&opts.body, "body", "", "message body (HTML, or Markdown with -markdown)")
	fs.StringVar(&opts.bodyFile, "body-file", "", "read the message body from a file")
	fs.BoolVar(&opts.markdown, "markdown", false, "render the body from Markdown")
	fs.StringVar(&opts.tableFile, "table", "", "CSV file rendered as an HTML table after the body")
	fs.Var(&opts.attach, "attach", "attach a file as [name=]path (repeatable)")
	fs.Var(&opts.attachTables, "attach-table", "attach a CSV re-serialized with its index as name=path.csv (repeatable)")
	fs.BoolVar(&opts.strict, "strict", false, "fail on unsupported attachment sources")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "build the message without sending it")
	fs.StringVar(&opts.out, "out", "", "with -dry-run, write the draft to this .eml file")
	fs.StringVar(&opts.eml, "eml", "", "send a saved .eml draft instead of building one")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.body != "" && opts.bodyFile != "" {
		return nil, errors.New("-body and -body-file are mutually exclusive")
	}
	if opts.out != "" && !opts.dryRun {
		return nil, errors.New("-out requires -dry-run")
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if path, err := config.LoadDotEnv("."); err != nil {
		slog.Warn("failed to load .env", "error", err)
	} else if path != "" {
		slog.Debug("loaded .env", "path", path)
	}

	// Load configuration
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(exitError)
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, opts, os.Stdout); err != nil {
		slog.Error("mailkit failed", "error", err)
		if errors.Is(err, transport.ErrAuthorization) {
			os.Exit(exitAuthorization)
		}
		os.Exit(exitError)
	}
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output on stderr
// and the specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

func run(ctx context.Context, cfg *config.Config, opts *options, out io.Writer) error {
	provider, err := cfg.ResolveProvider()
	if err != nil {
		return err
	}
	dialer := selectDialer(cfg, provider, out)
	creds, server, mailbox := sessionArgs(cfg, provider)

	slog.Info("using provider",
		"provider", dialer.Name(),
		"server", server,
		"mailbox", mailbox,
	)

	m := mailer.New(dialer)

	if opts.eml != "" {
		return sendSavedDraft(ctx, m, creds, server, mailbox, opts.eml, out)
	}

	body, err := buildBody(opts)
	if err != nil {
		return err
	}

	attachments, err := buildSources(opts)
	if err != nil {
		return err
	}

	to := cfg.Recipients()
	if opts.to != "" {
		to = config.ParseRecipients(opts.to)
	}

	res, err := m.SendMail(ctx, mailer.Request{
		Credentials: creds,
		Server:      server,
		Mailbox:     mailbox,
		To:          to,
		Subject:     opts.subject,
		Body:        body,
		Attachments: attachments,
		DryRun:      opts.dryRun,
		Strict:      opts.strict,
	})
	if err != nil {
		return err
	}
	defer res.Close()

	if opts.dryRun {
		return writeDraft(res.Draft, opts.out, out)
	}

	fmt.Fprintf(out, "sent %s via %s to %s\n",
		res.Receipt.MessageID, res.Receipt.Provider, strings.Join(res.Receipt.Recipients, ", "))
	return nil
}

// selectDialer chooses the delivery backend for provider.
func selectDialer(cfg *config.Config, provider string, out io.Writer) transport.Dialer {
	switch provider {
	case config.ProviderGraph:
		return graph.New(graph.DialerConfig{
			TenantID:     cfg.Graph.TenantID,
			ClientID:     cfg.Graph.ClientID,
			ClientSecret: cfg.Graph.ClientSecret,
			Flow:         cfg.Graph.Flow,
		})
	case config.ProviderSMTP:
		return smtp.New(smtp.DialerConfig{
			RequireTLS:         cfg.SMTP.StartTLS,
			CAFile:             cfg.SMTP.CAFile,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
			AllowInsecureAuth:  cfg.SMTP.AllowInsecureAuth,
		})
	case config.ProviderSES:
		return ses.New()
	case config.ProviderResend:
		return resend.New()
	default:
		return stdout.NewWithWriter(out)
	}
}

// sessionArgs fills provider defaults for arguments the configuration left
// empty.
func sessionArgs(cfg *config.Config, provider string) (email.Credentials, string, string) {
	creds := cfg.Credentials()
	server := cfg.Mail.Server
	mailbox := cfg.Mail.Mailbox

	switch provider {
	case config.ProviderGraph:
		if server == "" {
			server = "graph.microsoft.com"
		}
		if mailbox == "" {
			mailbox = creds.Principal
		}
	case config.ProviderResend:
		if server == "" {
			server = "https://api.resend.com/"
		}
	case config.ProviderSMTP:
		if mailbox == "" {
			mailbox = creds.Principal
		}
	case config.ProviderStdout:
		if server == "" {
			server = "localhost"
		}
		if mailbox == "" {
			mailbox = "mailkit@localhost"
		}
		if creds.Principal == "" {
			creds.Principal = mailbox
		}
		if creds.Secret == "" {
			creds.Secret = "unused"
		}
	}
	return creds, server, mailbox
}

func buildBody(opts *options) (string, error) {
	body := []byte(opts.body)
	if opts.bodyFile != "" {
		data, err := os.ReadFile(opts.bodyFile)
		if err != nil {
			return "", fmt.Errorf("failed to read body file: %w", err)
		}
		body = data
	}

	if opts.markdown {
		var buf bytes.Buffer
		if err := goldmark.Convert(body, &buf); err != nil {
			return "", fmt.Errorf("failed to render markdown: %w", err)
		}
		body = buf.Bytes()
	}

	html := string(body)
	if opts.tableFile != "" {
		t, err := table.ReadCSVFile(opts.tableFile)
		if err != nil {
			return "", fmt.Errorf("failed to read table: %w", err)
		}
		html += mailer.TableHTML(t)
	}
	return html, nil
}

func buildSources(opts *options) ([]mailer.Source, error) {
	var sources []mailer.Source

	for _, v := range opts.attach {
		name, path := splitAttachFlag(v)
		sources = append(sources, mailer.Source{Name: name, Value: path})
	}

	for _, v := range opts.attachTables {
		name, path, ok := strings.Cut(v, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("-attach-table %q: want name=path.csv", v)
		}
		t, err := table.ReadCSVFile(path)
		if err != nil {
			return nil, fmt.Errorf("-attach-table %q: %w", v, err)
		}
		sources = append(sources, mailer.Source{Name: name, Value: t})
	}

	return sources, nil
}

// splitAttachFlag parses [name=]path; the name defaults to the file's base
// name.
func splitAttachFlag(v string) (name, path string) {
	if n, p, ok := strings.Cut(v, "="); ok && n != "" && p != "" {
		return n, p
	}
	return filepath.Base(v), v
}

func writeDraft(d *mailer.Draft, path string, out io.Writer) error {
	if path == "" {
		fmt.Fprintf(out, "draft %s: %q to %s with %d attachment(s), not sent\n",
			d.MessageID(), d.Subject(), strings.Join(d.Recipients(), ", "), len(d.Attachments()))
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create draft file: %w", err)
	}
	if _, err := d.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write draft file: %w", err)
	}
	fmt.Fprintf(out, "draft written to %s\n", path)
	return nil
}

func sendSavedDraft(ctx context.Context, m *mailer.Mailer, creds email.Credentials, server, mailbox, path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open draft: %w", err)
	}
	defer f.Close()

	session, err := m.Connect(ctx, creds, server, mailbox)
	if err != nil {
		return err
	}
	defer session.Close()

	draft, err := mailer.LoadDraft(session, f)
	if err != nil {
		return err
	}

	receipt, err := draft.Send(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "sent %s via %s to %s\n",
		receipt.MessageID, receipt.Provider, strings.Join(receipt.Recipients, ", "))
	return nil
}
