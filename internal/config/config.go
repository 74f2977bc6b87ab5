// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback and .env discovery.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/shineum/mailkit/internal/email"
)

// Provider names accepted in PROVIDER.
const (
	ProviderGraph  = "graph"
	ProviderSMTP   = "smtp"
	ProviderSES    = "ses"
	ProviderResend = "resend"
	ProviderStdout = "stdout"
)

// awsRegion matches AWS region names such as us-east-1 or us-gov-west-1.
var awsRegion = regexp.MustCompile(`^[a-z]{2}(-gov)?-[a-z]+-\d+$`)

// Config holds the complete application configuration.
type Config struct {
	Provider string        `yaml:"provider"`
	Mail     MailConfig    `yaml:"mail"`
	Graph    GraphConfig   `yaml:"graph"`
	SMTP     SMTPConfig    `yaml:"smtp"`
	Logging  LoggingConfig `yaml:"logging"`
}

// MailConfig holds the session arguments and default recipients.
type MailConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Server   string `yaml:"server"`
	Mailbox  string `yaml:"mailbox"`
	To       string `yaml:"to"`
}

// GraphConfig holds the Azure AD application used for Microsoft Graph.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Flow         string `yaml:"flow"`
}

// SMTPConfig holds SMTP client TLS settings.
type SMTPConfig struct {
	StartTLS           bool   `yaml:"starttls"`
	CAFile             string `yaml:"ca_file"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	AllowInsecureAuth  bool   `yaml:"allow_insecure_auth"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	return cfg, nil
}

// LoadDotEnv loads the nearest .env file found walking up from dir.
// Variables already set in the environment are kept. It returns the path
// loaded, or "" when no file was found.
func LoadDotEnv(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %q: %w", dir, err)
	}

	for {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err != nil {
				return "", fmt.Errorf("failed to load %s: %w", path, err)
			}
			return path, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to stat %s: %w", path, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Credentials returns the configured session credentials.
func (c *Config) Credentials() email.Credentials {
	return email.Credentials{Principal: c.Mail.Username, Secret: c.Mail.Password}
}

// Recipients returns the default recipients parsed from Mail.To.
func (c *Config) Recipients() []string {
	return ParseRecipients(c.Mail.To)
}

// GraphConfigured returns true if a Graph tenant is set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != ""
}

// ResolveProvider returns the explicit PROVIDER, or detects one: graph when
// a tenant is set, resend for "re_" API keys, ses when the server is an
// AWS region, smtp for any other server, and stdout otherwise.
func (c *Config) ResolveProvider() (string, error) {
	switch p := strings.ToLower(c.Provider); p {
	case ProviderGraph, ProviderSMTP, ProviderSES, ProviderResend, ProviderStdout:
		return p, nil
	case "":
	default:
		return "", fmt.Errorf("unknown provider %q", c.Provider)
	}

	switch {
	case c.GraphConfigured():
		return ProviderGraph, nil
	case strings.HasPrefix(c.Mail.Password, "re_"):
		return ProviderResend, nil
	case awsRegion.MatchString(c.Mail.Server):
		return ProviderSES, nil
	case c.Mail.Server != "":
		return ProviderSMTP, nil
	default:
		return ProviderStdout, nil
	}
}

// ParseRecipients normalizes a recipient string. A value with exactly one
// '@' is a single address; anything else is split on ';' with blank
// entries dropped.
func ParseRecipients(s string) []string {
	if strings.Count(s, "@") == 1 {
		return []string{strings.TrimSpace(s)}
	}

	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Graph.Flow = "password"
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	if v := os.Getenv("MAIL_USERNAME"); v != "" {
		c.Mail.Username = v
	}
	if v := os.Getenv("MAIL_PASSWORD"); v != "" {
		c.Mail.Password = v
	}
	if v := os.Getenv("MAIL_SERVER"); v != "" {
		c.Mail.Server = v
	}
	if v := os.Getenv("MAIL_BOX"); v != "" {
		c.Mail.Mailbox = v
	}
	if v := os.Getenv("MAIL_TO"); v != "" {
		c.Mail.To = v
	}

	if v := os.Getenv("GRAPH_TENANT_ID"); v != "" {
		c.Graph.TenantID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_ID"); v != "" {
		c.Graph.ClientID = v
	}
	if v := os.Getenv("GRAPH_CLIENT_SECRET"); v != "" {
		c.Graph.ClientSecret = v
	}
	if v := os.Getenv("GRAPH_FLOW"); v != "" {
		c.Graph.Flow = strings.ToLower(v)
	}

	if v := os.Getenv("SMTP_STARTTLS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SMTP.StartTLS = b
		}
	}
	if v := os.Getenv("SMTP_CA_FILE"); v != "" {
		c.SMTP.CAFile = v
	}
	if v := os.Getenv("SMTP_INSECURE_SKIP_VERIFY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SMTP.InsecureSkipVerify = b
		}
	}

	if v := os.Getenv("SMTP_ALLOW_INSECURE_AUTH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SMTP.AllowInsecureAuth = b
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
