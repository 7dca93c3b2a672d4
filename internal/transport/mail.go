package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/GabrielNunesIT/motion-relay/internal/config"
	"github.com/GabrielNunesIT/motion-relay/internal/model"
)

// SMTPClient is the subset of *smtp.Client used for one mail session.
type SMTPClient interface {
	Auth(a smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// Ensure smtp.Client implements SMTPClient.
var _ SMTPClient = (*smtp.Client)(nil)

// SMTPDialer opens a connected, TLS-protected SMTP session.
type SMTPDialer func(ctx context.Context, cfg config.MailDestinationConfig) (SMTPClient, error)

// MailOption configures the Mail transport.
type MailOption func(*Mail)

// WithDialer sets a custom SMTP dialer for testing.
func WithDialer(d SMTPDialer) MailOption {
	return func(m *Mail) {
		m.dial = d
	}
}

// Mail sends notifications as plain-text email. Every send opens its own
// session so concurrent background sends never share a connection.
type Mail struct {
	cfg  config.MailDestinationConfig
	dial SMTPDialer
	log  logger.ILogger
	mu   sync.RWMutex
}

// NewMail creates a Mail transport. Server, address and password are
// required.
func NewMail(cfg config.MailDestinationConfig, log logger.ILogger, opts ...MailOption) (*Mail, error) {
	if cfg.Server == "" || cfg.Address == "" || cfg.Password == "" {
		return nil, fmt.Errorf("mail: server, address and password are required: %w", ErrMissingCredentials)
	}
	if cfg.ServerPort == 0 {
		cfg.ServerPort = 465
	}

	m := &Mail{
		cfg:  cfg,
		dial: dialSMTP,
		log:  log.SubLogger("Mail"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Name returns the transport identifier.
func (m *Mail) Name() string {
	return "Mail"
}

// Open logs in once to validate the credentials.
func (m *Mail) Open(ctx context.Context) error {
	cfg := m.config()
	m.log.Infof("logging in: server=%s, port=%d", cfg.Server, cfg.ServerPort)

	c, err := m.session(ctx, cfg)
	if err != nil {
		return err
	}
	return c.Quit()
}

// Handshake is a no-op; Open already authenticated.
func (m *Mail) Handshake(ctx context.Context) error {
	return nil
}

// SendText mails body with subject to the configured recipients.
func (m *Mail) SendText(ctx context.Context, body, subject string) error {
	cfg := m.config()
	if cfg.Password == "" {
		return fmt.Errorf("mail: %w", ErrMissingCredentials)
	}

	c, err := m.session(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	to := recipients(cfg)
	if err := c.Mail(cfg.Address); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(composeMessage(cfg.Address, to, subject, body, time.Now())); err != nil {
		w.Close()
		return fmt.Errorf("writing message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finishing message: %w", err)
	}

	m.log.Debugf("mail sent: to=%s, subject=%q", strings.Join(to, ","), subject)
	return c.Quit()
}

// SendFile is unsupported; mail never carries media.
func (m *Mail) SendFile(ctx context.Context, asset model.CapturedAsset) error {
	return fmt.Errorf("mail: %s files are not supported", asset.Kind)
}

// Close is a no-op; sessions are closed after each send.
func (m *Mail) Close() error {
	return nil
}

// Wipe clears the password.
func (m *Mail) Wipe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.Password = ""
}

func (m *Mail) config() config.MailDestinationConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Mail) session(ctx context.Context, cfg config.MailDestinationConfig) (SMTPClient, error) {
	c, err := m.dial(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s:%d: %w", cfg.Server, cfg.ServerPort, err)
	}

	auth := smtp.PlainAuth("", cfg.Address, cfg.Password, cfg.Server)
	if err := c.Auth(auth); err != nil {
		c.Close()
		return nil, fmt.Errorf("authenticating %s: %w", cfg.Address, err)
	}
	return c, nil
}

func recipients(cfg config.MailDestinationConfig) []string {
	if len(cfg.To) > 0 {
		return cfg.To
	}
	return []string{cfg.Address}
}

func composeMessage(from string, to []string, subject, body string, now time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", now.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// dialSMTP connects with implicit TLS, or upgrades a plain connection with
// STARTTLS when configured.
func dialSMTP(ctx context.Context, cfg config.MailDestinationConfig) (SMTPClient, error) {
	addr := net.JoinHostPort(cfg.Server, strconv.Itoa(cfg.ServerPort))
	tlsCfg := &tls.Config{
		ServerName:         cfg.Server,
		InsecureSkipVerify: cfg.SkipVerify,
	}

	if cfg.StartTLS {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		c, err := smtp.NewClient(conn, cfg.Server)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if err := c.StartTLS(tlsCfg); err != nil {
			c.Close()
			return nil, err
		}
		return c, nil
	}

	d := tls.Dialer{Config: tlsCfg}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, err := smtp.NewClient(conn, cfg.Server)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}
