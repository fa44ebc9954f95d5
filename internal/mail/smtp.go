package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTPConfig holds relay settings for SMTPSender.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration // Upper bound on dial plus the whole SMTP exchange.
}

// SMTPSender delivers mail through an SMTP relay. STARTTLS is used when the
// server offers it; PLAIN auth is used when a user is configured.
type SMTPSender struct {
	cfg SMTPConfig
	now func() time.Time

	// tlsConfig is overridable in tests.
	tlsConfig *tls.Config
}

// NewSMTPSender creates an SMTPSender. A zero timeout defaults to 10s.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPSender{
		cfg:       cfg,
		now:       time.Now,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}
}

// Send delivers e. The exchange is abandoned when ctx is done or the
// configured timeout elapses, whichever comes first.
func (s *SMTPSender) Send(ctx context.Context, e Email) error {
	from, rcpts, err := parseEnvelope(e)
	if err != nil {
		return err
	}
	msg, err := buildMessage(from, rcpts, e.Subject, e.Body, s.now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp: dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// Closing the connection unblocks any in-flight read or write on cancel.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return s.wrap(ctx, "greeting", err)
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(s.tlsConfig); err != nil {
			return s.wrap(ctx, "starttls", err)
		}
	}
	if s.cfg.User != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return fmt.Errorf("smtp: server does not support AUTH")
		}
		if err := c.Auth(smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)); err != nil {
			return s.wrap(ctx, "auth", err)
		}
	}

	if err := c.Mail(from.Address); err != nil {
		return s.wrap(ctx, "mail from", err)
	}
	for _, r := range rcpts {
		if err := c.Rcpt(r.Address); err != nil {
			return s.wrap(ctx, "rcpt to", err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return s.wrap(ctx, "data", err)
	}
	if _, err := w.Write(msg); err != nil {
		return s.wrap(ctx, "write body", err)
	}
	if err := w.Close(); err != nil {
		return s.wrap(ctx, "end data", err)
	}
	return s.wrap(ctx, "quit", c.Quit())
}

// wrap prefers the context error over the I/O error it caused, so callers
// see "context deadline exceeded" rather than "use of closed connection".
func (s *SMTPSender) wrap(ctx context.Context, step string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("smtp: %s: %w", step, ctxErr)
	}
	return fmt.Errorf("smtp: %s: %w", step, err)
}

func parseEnvelope(e Email) (*mail.Address, []*mail.Address, error) {
	if strings.TrimSpace(e.To) == "" {
		return nil, nil, ErrNoRecipient
	}
	if strings.TrimSpace(e.From) == "" {
		return nil, nil, ErrNoSender
	}
	if hasLineBreak(e.To) || hasLineBreak(e.From) || hasLineBreak(e.Subject) {
		return nil, nil, ErrHeaderInjection
	}
	from, err := mail.ParseAddress(e.From)
	if err != nil {
		return nil, nil, fmt.Errorf("mail: invalid sender %q: %w", e.From, err)
	}
	rcpts, err := mail.ParseAddressList(e.To)
	if err != nil {
		return nil, nil, fmt.Errorf("mail: invalid recipient %q: %w", e.To, err)
	}
	return from, rcpts, nil
}

func hasLineBreak(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}

// buildMessage renders a text/plain UTF-8 RFC 5322 message. The SMTP data
// writer handles dot-stuffing and line ending normalization of the body.
func buildMessage(from *mail.Address, to []*mail.Address, subject, body string, now time.Time) ([]byte, error) {
	if len(to) == 0 {
		return nil, ErrNoRecipient
	}
	rcpts := make([]string, len(to))
	for i, a := range to {
		rcpts[i] = a.String()
	}

	var b bytes.Buffer
	writeHeader := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	writeHeader("From", from.String())
	writeHeader("To", strings.Join(rcpts, ", "))
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", subject))
	writeHeader("Date", now.Format(time.RFC1123Z))
	writeHeader("Message-ID", "<"+uuid.NewString()+"@"+domainOf(from.Address)+">")
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", "text/plain; charset=UTF-8")
	writeHeader("Content-Transfer-Encoding", "8bit")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.Bytes(), nil
}

func domainOf(addr string) string {
	if i := strings.LastIndexByte(addr, '@'); i >= 0 && i < len(addr)-1 {
		return addr[i+1:]
	}
	return "localhost"
}
