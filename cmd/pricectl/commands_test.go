package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"price-tracker-bot/internal/adapters/fetcher"
	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/infra/config"
	"price-tracker-bot/internal/usecase/check"
	"price-tracker-bot/internal/usecase/notify"
)

func TestParseCheck(t *testing.T) {
	opts, err := parseCommand("check", []string{"-product", "12", "-mock", fetcher.MockTargetReached, "-target", "10", "-current", "99.5", "-inline"})
	require.NoError(t, err)
	o := opts.(checkOptions)
	assert.True(t, o.Inline)

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	job, err := o.job(now)
	require.NoError(t, err)
	assert.Equal(t, int64(12), job.ProductID)
	assert.Equal(t, domain.CheckCauseManual, job.Cause)
	assert.True(t, job.IsMock())
	require.NotNil(t, job.MockTargetPrice)
	assert.True(t, job.MockTargetPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, job.MockCurrentPrice.Equal(decimal.RequireFromString("99.5")))
	assert.Equal(t, now, job.RequestedAt)
	assert.NotEmpty(t, job.ID)
}

func TestParseCheckRejects(t *testing.T) {
	cases := [][]string{
		{},
		{"-product", "1", "-mock", "sale"},
		{"-product", "1", "-target", "5"},
	}
	for _, args := range cases {
		_, err := parseCommand("check", args)
		assert.ErrorIs(t, err, errUsage, args)
	}
}

func TestParseCheckBadPrice(t *testing.T) {
	opts, err := parseCommand("check", []string{"-product", "1", "-mock", fetcher.MockPriceDrop, "-target", "ten"})
	require.NoError(t, err)
	_, err = opts.(checkOptions).job(time.Now())
	assert.Error(t, err)
}

func TestParseOtherCommands(t *testing.T) {
	opts, err := parseCommand("test-notification", []string{"-email", "a@example.com", "-type", "target_reached"})
	require.NoError(t, err)
	assert.Equal(t, domain.AlertTargetReached, opts.(notificationOptions).Type)

	_, err = parseCommand("test-notification", []string{"-email", "a@example.com", "-type", "system_message"})
	assert.ErrorIs(t, err, errUsage)

	opts, err = parseCommand("message", []string{"-user", "3", "-channel", "Telegram", "-text", "hi"})
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelTelegram, opts.(messageOptions).Channel)

	_, err = parseCommand("message", []string{"-user", "3", "-channel", "sms", "-text", "hi"})
	assert.ErrorIs(t, err, errUsage)

	opts, err = parseCommand("history", []string{"-product", "4"})
	require.NoError(t, err)
	assert.Equal(t, 20, opts.(historyOptions).Limit)

	_, err = parseCommand("nope", nil)
	assert.ErrorIs(t, err, errUsage)
}

func TestRunFetchMock(t *testing.T) {
	var buf bytes.Buffer
	err := runFetch(context.Background(), []string{"-url", "mock://price-drop/5"}, config.AppConfig{}, zerolog.Nop(), &buf)
	require.NoError(t, err)

	var res fetcher.Result
	require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "Mock Product 'price-drop' (5)", res.Name)
}

func TestRunFetchUnknownDomain(t *testing.T) {
	var buf bytes.Buffer
	err := runFetch(context.Background(), []string{"-url", "https://shop.example.org/item/1"}, config.AppConfig{}, zerolog.Nop(), &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"code": "no_strategy"`)
	assert.Contains(t, buf.String(), "shop.example.org")
}

func TestViewOutcomeAndReport(t *testing.T) {
	v := viewOutcome(check.Outcome{
		Kind: check.OutcomeOK, Stage: check.StageDone, Price: decimal.RequireFromString("80"),
		Alerts:  []domain.AlertType{domain.AlertPriceDrop},
		Reports: []notify.Report{{Delivered: []domain.Channel{domain.ChannelAccount}}},
	})
	assert.Equal(t, "80.00", v.Price)
	assert.Equal(t, []domain.Channel{domain.ChannelAccount}, v.Delivered)

	r := viewReport(notify.Report{Failed: map[domain.Channel]error{domain.ChannelEmail: errors.New("smtp down")}})
	assert.Equal(t, "smtp down", r.Failed[domain.ChannelEmail])
}

func TestWriteHistory(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, writeHistory(&buf, []domain.PriceHistoryEntry{
		{Price: decimal.RequireFromString("1234.5"), RecordedAt: now.Add(-2 * time.Hour)},
	}, now))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "RECORDED"))
	assert.Contains(t, out, "$1,234.50")
	assert.Contains(t, out, "2 hours ago")

	buf.Reset()
	require.NoError(t, writeHistory(&buf, nil, now))
	assert.Equal(t, "no price history\n", buf.String())
}
