// Package mailer отправляет письма с уведомлениями по SMTP.
package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/smtp"
	"path"
	"strconv"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/infra/metrics"
)

//go:embed templates/notifications/*.html
var templateFS embed.FS

const sendTimeout = 30 * time.Second

// Translator переводит строки шаблонов на язык письма.
type Translator interface {
	T(locale, msgID string, vars ...any) string
}

// Config задаёт параметры SMTP-сервера.
type Config struct {
	Server        string
	Port          int
	Username      string
	Password      string
	DefaultSender string
}

// SMTP отправляет письма по шаблонам из templates/notifications.
type SMTP struct {
	cfg       Config
	tr        Translator
	templates *template.Template
	log       zerolog.Logger
	deliver   func(ctx context.Context, from string, to []string, body []byte) error
}

var _ domain.Mailer = (*SMTP)(nil)

// New разбирает встроенные шаблоны и создаёт отправителя.
func New(cfg Config, tr Translator, logger zerolog.Logger) (*SMTP, error) {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	tmpl, err := template.New("notifications").
		Funcs(template.FuncMap{"t": func(msgID string, vars ...any) string { return fmt.Sprintf(msgID, vars...) }}).
		ParseFS(templateFS, "templates/notifications/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	m := &SMTP{cfg: cfg, tr: tr, templates: tmpl, log: logger}
	m.deliver = m.sendSMTP
	return m, nil
}

// SendEmail реализует domain.Mailer.
func (m *SMTP) SendEmail(ctx context.Context, msg domain.EmailMessage) error {
	if m.cfg.Server == "" {
		return errors.New("mailer: smtp server is not configured")
	}
	body, err := m.Compose(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	start := time.Now()
	err = m.deliver(ctx, m.cfg.DefaultSender, []string{msg.To}, body)
	metrics.ObserveNetworkRequest("smtp", "send_mail", m.cfg.Server, start, err)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	m.log.Info().Str("template", msg.Template).Msg("mailer: письмо отправлено")
	return nil
}

// Compose собирает MIME-сообщение с HTML-телом из шаблона.
func (m *SMTP) Compose(msg domain.EmailMessage) ([]byte, error) {
	if msg.To == "" {
		return nil, errors.New("mailer: empty recipient")
	}
	html, err := m.render(msg)
	if err != nil {
		return nil, err
	}

	from, err := mail.ParseAddress(m.cfg.DefaultSender)
	if err != nil {
		return nil, fmt.Errorf("parse sender: %w", err)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, fmt.Errorf("parse recipient: %w", err)
	}

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{from})
	h.SetAddressList("To", []*mail.Address{to})
	h.SetSubject(msg.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	h.SetContentType("text/html", map[string]string{"charset": "utf-8"})

	var buf bytes.Buffer
	w, err := mail.CreateSingleInlineWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create writer: %w", err)
	}
	if _, err := w.Write(html); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *SMTP) render(msg domain.EmailMessage) ([]byte, error) {
	name := path.Base(msg.Template) + ".html"
	tmpl, err := m.templates.Clone()
	if err != nil {
		return nil, err
	}
	locale := msg.Locale
	tmpl.Funcs(template.FuncMap{"t": func(msgID string, vars ...any) string {
		return m.tr.T(locale, msgID, vars...)
	}})
	if tmpl.Lookup(name) == nil {
		return nil, fmt.Errorf("mailer: unknown template %s", msg.Template)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, msg.Vars); err != nil {
		return nil, fmt.Errorf("render %s: %w", msg.Template, err)
	}
	return buf.Bytes(), nil
}

func (m *SMTP) sendSMTP(ctx context.Context, from string, to []string, body []byte) error {
	addr := net.JoinHostPort(m.cfg.Server, strconv.Itoa(m.cfg.Port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	c, err := smtp.NewClient(conn, m.cfg.Server)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Server}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}
	if m.cfg.Username != "" {
		if err := c.Auth(smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Server)); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	sender, err := mail.ParseAddress(from)
	if err != nil {
		return err
	}
	if err := c.Mail(sender.Address); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
