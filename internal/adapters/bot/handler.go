package bot

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/usecase/chat"
)

// WebhookPath задаёт путь вебхука Telegram.
const WebhookPath = "/telegram/webhook"

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Conversation ведёт диалог с пользователем.
type Conversation interface {
	Handle(ctx context.Context, in chat.Input) []domain.OutgoingMessage
}

// Replier отправляет ответы в Telegram.
type Replier interface {
	SendMessage(ctx context.Context, msg domain.OutgoingMessage) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

const (
	shardCount    = 8
	shardBuffer   = 64
	updateTimeout = 2 * time.Minute
)

// Handler обслуживает вебхук бота. Апдейты принимаются сразу, а обрабатываются
// в фоне: апдейты одного чата попадают в один шард и идут по порядку.
type Handler struct {
	conv   Conversation
	out    Replier
	secret string
	log    zerolog.Logger

	mu     sync.RWMutex
	closed bool
	shards []chan tgbotapi.Update
}

// NewHandler создаёт обработчик. Пустой secret отключает проверку заголовка.
func NewHandler(conv Conversation, out Replier, secret string, logger zerolog.Logger) *Handler {
	shards := make([]chan tgbotapi.Update, shardCount)
	for i := range shards {
		shards[i] = make(chan tgbotapi.Update, shardBuffer)
	}
	return &Handler{conv: conv, out: out, secret: secret, log: logger, shards: shards}
}

// Mount регистрирует вебхук в роутере.
func (h *Handler) Mount(r chi.Router) {
	r.Post(WebhookPath, h.ServeHTTP)
}

// Run обрабатывает принятые апдейты, пока не вызван Close, и дожидается
// обработки уже принятых. Отмена ctx не прерывает начатые диалоги.
func (h *Handler) Run(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for _, ch := range h.shards {
		wg.Add(1)
		go func(ch <-chan tgbotapi.Update) {
			defer wg.Done()
			for upd := range ch {
				uctx, cancel := context.WithTimeout(base, updateTimeout)
				h.HandleUpdate(uctx, upd)
				cancel()
			}
		}(ch)
	}
	wg.Wait()
}

// Close перестаёт принимать апдейты. Вызывается после остановки HTTP сервера.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, ch := range h.shards {
		close(ch)
	}
}

// ServeHTTP принимает апдейт и отвечает, не дожидаясь обработки, чтобы
// Telegram не повторял доставку медленных апдейтов.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			h.log.Warn().Str("remote", r.RemoteAddr).Msg("bot: неверный секрет вебхука")
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		h.log.Warn().Err(err).Msg("bot: не удалось разобрать апдейт")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !h.accept(update) {
		h.log.Warn().Int("update", update.UpdateID).Msg("bot: очередь апдейтов занята")
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// accept ставит апдейт в шард его чата. Апдейты без чата подтверждаются сразу.
func (h *Handler) accept(upd tgbotapi.Update) bool {
	chatID, ok := updateChat(upd)
	if !ok {
		h.log.Debug().Int("update", upd.UpdateID).Msg("bot: апдейт пропущен")
		return true
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return false
	}
	shard := chatID % int64(len(h.shards))
	if shard < 0 {
		shard = -shard
	}
	select {
	case h.shards[shard] <- upd:
		return true
	default:
		return false
	}
}

func updateChat(upd tgbotapi.Update) (int64, bool) {
	switch {
	case upd.Message != nil && upd.Message.Chat != nil:
		return upd.Message.Chat.ID, true
	case upd.CallbackQuery != nil && upd.CallbackQuery.Message != nil && upd.CallbackQuery.Message.Chat != nil:
		return upd.CallbackQuery.Message.Chat.ID, true
	case upd.CallbackQuery != nil && upd.CallbackQuery.From != nil:
		return upd.CallbackQuery.From.ID, true
	}
	return 0, false
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		h.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		h.handleCallback(ctx, upd.CallbackQuery)
	default:
		h.log.Debug().Int("update", upd.UpdateID).Msg("bot: апдейт пропущен")
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil || strings.TrimSpace(msg.Text) == "" {
		return
	}
	in := chat.Input{ChatID: msg.Chat.ID, Text: msg.Text}
	if msg.From != nil {
		in.LanguageCode = msg.From.LanguageCode
	}
	h.reply(ctx, h.conv.Handle(ctx, in))
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if err := h.out.AnswerCallback(ctx, cb.ID, ""); err != nil {
		h.log.Warn().Err(err).Msg("bot: не удалось ответить на нажатие")
	}
	in := chat.Input{CallbackData: cb.Data}
	switch {
	case cb.Message != nil && cb.Message.Chat != nil:
		in.ChatID = cb.Message.Chat.ID
	case cb.From != nil:
		in.ChatID = cb.From.ID
	default:
		return
	}
	if cb.From != nil {
		in.LanguageCode = cb.From.LanguageCode
	}
	h.reply(ctx, h.conv.Handle(ctx, in))
}

func (h *Handler) reply(ctx context.Context, messages []domain.OutgoingMessage) {
	for _, m := range messages {
		if err := h.out.SendMessage(ctx, m); err != nil {
			h.log.Error().Err(err).Int64("chat", m.ChatID).Msg("bot: не удалось отправить ответ")
		}
	}
}
