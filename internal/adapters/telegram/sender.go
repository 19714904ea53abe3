package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/infra/metrics"
)

// BotAPI описывает используемую часть клиента Bot API.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// Sender отправляет сообщения с ограничением частоты запросов к Bot API.
type Sender struct {
	api     BotAPI
	limiter *rate.Limiter
	log     zerolog.Logger
}

var _ domain.ChatSender = (*Sender)(nil)

// NewSender создаёт отправителя. rps <= 0 отключает ограничение.
func NewSender(api BotAPI, rps float64, logger zerolog.Logger) *Sender {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &Sender{api: api, limiter: rate.NewLimiter(limit, burst), log: logger}
}

// SendMessage реализует domain.ChatSender. Длинный текст уходит несколькими
// сообщениями, клавиатура прикрепляется к последнему.
func (s *Sender) SendMessage(ctx context.Context, out domain.OutgoingMessage) error {
	parts := SplitMessage(out.Text)
	if out.ParseMode == tgbotapi.ModeMarkdownV2 {
		parts = SplitMarkdownV2(out.Text)
	}
	target := strconv.FormatInt(out.ChatID, 10)
	for i, part := range parts {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(out.ChatID, part)
		msg.ParseMode = out.ParseMode
		if i == len(parts)-1 && len(out.Buttons) > 0 {
			msg.ReplyMarkup = keyboard(out.Buttons)
		}
		start := time.Now()
		_, err := s.api.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", target, start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			s.log.Error().Err(err).Int64("chat", out.ChatID).Msg("telegram: не удалось отправить сообщение")
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// AnswerCallback подтверждает нажатие inline-кнопки.
func (s *Sender) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	_, err := s.api.Request(tgbotapi.NewCallback(callbackID, text))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", "", start, err)
	return err
}

// SetWebhook регистрирует вебхук с секретным токеном.
func (s *Sender) SetWebhook(webhookURL, secret string) error {
	if webhookURL == "" {
		return errors.New("webhook url is empty")
	}
	params := tgbotapi.Params{"url": webhookURL}
	params.AddNonEmpty("secret_token", secret)
	start := time.Now()
	resp, err := s.api.MakeRequest("setWebhook", params)
	metrics.ObserveNetworkRequest("telegram_bot", "set_webhook", "", start, err)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if resp != nil && !resp.Ok {
		return fmt.Errorf("set webhook: %s", resp.Description)
	}
	return nil
}

func keyboard(rows [][]domain.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}
