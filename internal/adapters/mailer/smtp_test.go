package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-tracker-bot/internal/domain"
)

type localeTranslator struct{}

func (localeTranslator) T(locale, msgID string, vars ...any) string {
	return fmt.Sprintf("[%s] ", locale) + fmt.Sprintf(msgID, vars...)
}

func newTestMailer(t *testing.T) *SMTP {
	t.Helper()
	m, err := New(Config{Server: "smtp.example.com", DefaultSender: "Price Tracker <noreply@example.com>"}, localeTranslator{}, zerolog.Nop())
	require.NoError(t, err)
	return m
}

func testMessage() domain.EmailMessage {
	return domain.EmailMessage{
		To:       "user@example.com",
		Subject:  "Price Drop for Phone!",
		Template: "notifications/price_drop",
		Locale:   "ru",
		Vars: map[string]any{
			"ProductName":  "Phone <X>",
			"ProductURL":   "https://amazon.com/dp/1",
			"OldPrice":     "$120.00",
			"NewPrice":     "$80.00",
			"DashboardURL": "http://localhost:5000/profile/tracked-products?highlight=7",
		},
	}
}

func TestComposeRendersTemplate(t *testing.T) {
	m := newTestMailer(t)

	raw, err := m.Compose(testMessage())
	require.NoError(t, err)
	assert.Contains(t, string(raw), "To: <user@example.com>")

	r, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	subject, err := r.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Price Drop for Phone!", subject)

	part, err := r.NextPart()
	require.NoError(t, err)
	contentType, _, err := part.Header.(*mail.InlineHeader).ContentType()
	require.NoError(t, err)
	assert.Equal(t, "text/html", contentType)
	decoded, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	body := string(decoded)

	assert.Contains(t, body, "[ru] Price drop!")
	assert.Contains(t, body, "Phone &lt;X&gt;")
	assert.Contains(t, body, "highlight=7")
}

func TestComposeUnknownTemplate(t *testing.T) {
	m := newTestMailer(t)
	msg := testMessage()
	msg.Template = "notifications/unknown"

	_, err := m.Compose(msg)
	assert.Error(t, err)
}

func TestAllNotificationTemplatesRender(t *testing.T) {
	m := newTestMailer(t)
	for _, name := range []string{"target_price_reached", "price_drop", "price_increase"} {
		msg := testMessage()
		msg.Template = "notifications/" + name
		msg.Vars["TargetPrice"] = "$60.00"
		_, err := m.Compose(msg)
		require.NoError(t, err, name)
	}
}

func TestSendEmailUsesDeliver(t *testing.T) {
	m := newTestMailer(t)
	var gotFrom string
	var gotTo []string
	m.deliver = func(_ context.Context, from string, to []string, body []byte) error {
		gotFrom, gotTo = from, to
		if !strings.Contains(string(body), "Subject:") {
			return errors.New("no subject")
		}
		return nil
	}

	require.NoError(t, m.SendEmail(context.Background(), testMessage()))
	assert.Equal(t, "Price Tracker <noreply@example.com>", gotFrom)
	assert.Equal(t, []string{"user@example.com"}, gotTo)

	m.deliver = func(context.Context, string, []string, []byte) error { return errors.New("refused") }
	assert.Error(t, m.SendEmail(context.Background(), testMessage()))
}

func TestSendEmailRequiresServer(t *testing.T) {
	m, err := New(Config{}, localeTranslator{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Error(t, m.SendEmail(context.Background(), testMessage()))
}
