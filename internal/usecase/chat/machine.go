// Package chat ведёт диалог добавления и удаления товаров в Telegram.
package chat

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-tracker-bot/internal/adapters/telegram"
	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/usecase/pricing"
	"price-tracker-bot/internal/usecase/products"
)

// Данные кнопок inline-клавиатуры.
const (
	CallbackUseParsedName   = "use_parsed_name"
	CallbackEnterManualName = "enter_manual_name"
)

// Frequencies задаёт интервалы проверки для кнопок выбора частоты, в часах.
var Frequencies = map[string]int{
	"twice_a_day":  12,
	"once_a_day":   24,
	"every_2_days": 48,
	"once_a_week":  168,
}

var frequencyOrder = []struct{ data, label string }{
	{"twice_a_day", "Twice a day"},
	{"once_a_day", "Once a day"},
	{"every_2_days", "Every 2 days"},
	{"once_a_week", "Once a week"},
}

// Ключи данных сессии.
const (
	keyURL        = "url"
	keyParsedName = "parsed_name"
	keyPrice      = "price"
	keyName       = "name"
	keyTarget     = "target_price"
	keyMethods    = "methods"
)

// Input описывает входящее сообщение или нажатие кнопки.
type Input struct {
	ChatID       int64
	Text         string
	CallbackData string
	LanguageCode string
}

// IsCallback сообщает, что вход пришёл от inline-кнопки.
func (in Input) IsCallback() bool {
	return in.CallbackData != ""
}

// Translator переводит реплики бота.
type Translator interface {
	T(locale, msgID string, vars ...any) string
}

// ProductService управляет товарами пользователя.
type ProductService interface {
	Create(ctx context.Context, in products.CreateInput) (domain.Product, error)
	Remove(ctx context.Context, userID, productID int64) error
	List(ctx context.Context, userID int64) ([]domain.Product, error)
}

// Machine реализует конечный автомат диалога. Состояние хранится во внешнем хранилище.
type Machine struct {
	users    domain.UserRepo
	sessions domain.ChatSessionStore
	products ProductService
	fetcher  domain.PriceFetcher
	tr       Translator
	log      zerolog.Logger
	siteURL  string
	pick     func(n int) int
}

// Option настраивает автомат.
type Option func(*Machine)

// WithSiteURL задаёт адрес сайта для команды /site.
func WithSiteURL(siteURL string) Option {
	return func(m *Machine) { m.siteURL = strings.TrimRight(siteURL, "/") }
}

// NewMachine создаёт автомат.
func NewMachine(users domain.UserRepo, sessions domain.ChatSessionStore, productService ProductService, f domain.PriceFetcher, tr Translator, logger zerolog.Logger, opts ...Option) *Machine {
	m := &Machine{users: users, sessions: sessions, products: productService, fetcher: f, tr: tr, log: logger, pick: rand.IntN}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// conversation собирает ответы на один вход.
type conversation struct {
	m       *Machine
	chatID  int64
	locale  string
	user    domain.User
	session domain.ChatSession
	out     []domain.OutgoingMessage
}

func (c *conversation) say(msgID string, vars ...any) {
	c.out = append(c.out, domain.OutgoingMessage{ChatID: c.chatID, Text: c.m.tr.T(c.locale, msgID, vars...)})
}

func (c *conversation) send(msg domain.OutgoingMessage) {
	msg.ChatID = c.chatID
	c.out = append(c.out, msg)
}

func (c *conversation) t(msgID string, vars ...any) string {
	return c.m.tr.T(c.locale, msgID, vars...)
}

// Handle обрабатывает вход и возвращает сообщения для отправки.
func (m *Machine) Handle(ctx context.Context, in Input) []domain.OutgoingMessage {
	c := &conversation{m: m, chatID: in.ChatID, locale: in.LanguageCode}
	text := strings.TrimSpace(in.Text)
	logger := m.log.With().Int64("chat", in.ChatID).Logger()

	if !in.IsCallback() && isCommand(text, "/start") {
		if token := strings.TrimSpace(strings.TrimPrefix(text, "/start")); token != "" {
			m.link(ctx, c, token)
			return c.out
		}
	}

	user, err := m.users.GetUserByChatID(ctx, in.ChatID)
	if err != nil {
		if in.IsCallback() {
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Error().Err(err).Msg("chat: не удалось найти пользователя")
			c.say("Something went wrong. Please try again later.")
			return c.out
		}
		c.say("Please link your Telegram account via the website first. 🔗")
		return c.out
	}
	c.user = user
	c.locale = user.Locale(in.LanguageCode)

	session, err := m.sessions.LoadSession(ctx, user.ID)
	if err != nil {
		logger.Error().Err(err).Int64("user", user.ID).Msg("chat: не удалось загрузить сессию")
		c.say("Something went wrong. Please try again later.")
		return c.out
	}
	session.UserID = user.ID
	c.session = session
	before := session.State

	switch {
	case in.IsCallback():
		m.handleCallback(ctx, c, in.CallbackData)
	case c.session.Active() && strings.HasPrefix(text, "/"):
		if isCommand(text, "/cancel") {
			c.session.Reset()
			c.say("Operation cancelled. How can I assist you now? Use /help for options. 😊")
		} else {
			c.say("You're currently in the middle of an operation. Use /cancel to stop or continue with the current task. ⚠️")
		}
	case c.session.Active():
		m.handleState(ctx, c, text)
	default:
		m.handleCommand(ctx, c, text)
	}

	if err := m.sessions.SaveSession(ctx, c.session); err != nil {
		logger.Error().Err(err).Int64("user", user.ID).Msg("chat: не удалось сохранить сессию")
	}
	if before != c.session.State {
		logger.Debug().Str("from", string(before)).Str("to", string(c.session.State)).Msg("chat: смена состояния")
	}
	return c.out
}

func (m *Machine) link(ctx context.Context, c *conversation, token string) {
	user, err := m.users.LinkTelegram(ctx, token, c.chatID)
	switch {
	case err == nil:
		c.locale = user.Locale(c.locale)
		m.log.Info().Int64("user", user.ID).Int64("chat", c.chatID).Msg("chat: telegram привязан")
		c.say("Your Telegram account has been successfully linked! Welcome! Use /help for a list of commands. 🎉")
	case errors.Is(err, domain.ErrNotFound):
		m.log.Warn().Int64("chat", c.chatID).Msg("chat: неизвестный токен привязки")
		c.say("Invalid token. Please try to bind again through the site.")
	case errors.Is(err, domain.ErrAccountAlreadyLinked):
		c.say("This account is already linked to another Telegram chat.")
	case errors.Is(err, domain.ErrChatAlreadyLinked):
		c.say("This Telegram chat is already linked to another account.")
	default:
		m.log.Error().Err(err).Int64("chat", c.chatID).Msg("chat: ошибка привязки")
		c.say("Something went wrong. Please try again later.")
	}
}

func (m *Machine) handleCommand(ctx context.Context, c *conversation, text string) {
	switch {
	case isCommand(text, "/start"):
		c.say("Welcome! Use /help to see available commands. 😊")
	case isCommand(text, "/help"):
		lines := []string{
			c.t("Available commands:"),
			"",
			"/products - " + c.t("Show your tracked products."),
			"/site - " + c.t("Go to your profile on the website."),
			"/add - " + c.t("Add a new product to track."),
			"/remove - " + c.t("Remove a tracked product."),
			"/random - " + c.t("Show a random tracked product."),
			"/coffee - " + c.t("Get a coffee break message and tip."),
			"/quote - " + c.t("Get a random savings quote."),
			"/cancel - " + c.t("Cancel the current operation."),
			"/help - " + c.t("Show this help message."),
		}
		c.send(domain.OutgoingMessage{Text: strings.Join(lines, "\n")})
	case isCommand(text, "/products"):
		m.listProducts(ctx, c)
	case isCommand(text, "/add"):
		c.session.Reset()
		c.session.State = domain.ChatStateAwaitingURL
		c.say("Please send the product URL. 🔗")
	case isCommand(text, "/remove"):
		m.startRemove(ctx, c)
	case isCommand(text, "/site"):
		if m.siteURL == "" {
			c.say("The profile feature is under development. Stay tuned! 🚀")
			return
		}
		c.say("Open your profile: %s", m.siteURL+"/profile")
	case isCommand(text, "/random"):
		m.randomProduct(ctx, c)
	case isCommand(text, "/coffee"):
		tip := coffeeTips[m.pick(len(coffeeTips))]
		c.send(domain.OutgoingMessage{Text: c.t("Time for a coffee break! ☕") + "\n\n" + c.t("Tip:") + " " + tip})
	case isCommand(text, "/quote"):
		c.send(domain.OutgoingMessage{Text: savingsQuotes[m.pick(len(savingsQuotes))]})
	case isCommand(text, "/cancel"):
		c.say("Nothing to cancel. Use /help for options.")
	default:
		c.say("Unknown command. Use /help for options. 🤔")
	}
}

func (m *Machine) listProducts(ctx context.Context, c *conversation) {
	list, err := m.products.List(ctx, c.user.ID)
	if err != nil {
		m.log.Error().Err(err).Int64("user", c.user.ID).Msg("chat: не удалось получить товары")
		c.say("Something went wrong. Please try again later.")
		return
	}
	if len(list) == 0 {
		c.say("You have no tracked products. 😕")
		return
	}
	var b strings.Builder
	b.WriteString(c.t("Your tracked products:"))
	b.WriteString("\n\n")
	for _, p := range list {
		fmt.Fprintf(&b, "ID: %d\n", p.ID)
		writeProduct(&b, c, p)
		b.WriteString("\n")
	}
	c.send(domain.OutgoingMessage{Text: b.String()})
}

func (m *Machine) randomProduct(ctx context.Context, c *conversation) {
	list, err := m.products.List(ctx, c.user.ID)
	if err != nil {
		m.log.Error().Err(err).Int64("user", c.user.ID).Msg("chat: не удалось получить товары")
		c.say("Something went wrong. Please try again later.")
		return
	}
	if len(list) == 0 {
		c.say("You have no tracked products. 😕")
		return
	}
	var b strings.Builder
	b.WriteString(c.t("Random product:"))
	b.WriteString("\n")
	writeProduct(&b, c, list[m.pick(len(list))])
	c.send(domain.OutgoingMessage{Text: strings.TrimRight(b.String(), "\n")})
}

func writeProduct(b *strings.Builder, c *conversation, p domain.Product) {
	current := c.t("N/A")
	if p.CurrentPrice.Valid {
		current = p.CurrentPrice.Decimal.StringFixed(2)
	}
	fmt.Fprintf(b, "%s %s\n", c.t("Name:"), p.Name)
	fmt.Fprintf(b, "%s %s\n", c.t("Current Price:"), current)
	fmt.Fprintf(b, "%s %s\n", c.t("Target Price:"), p.TargetPrice.StringFixed(2))
	fmt.Fprintf(b, "URL: %s\n", p.URL)
}

func (m *Machine) startRemove(ctx context.Context, c *conversation) {
	list, err := m.products.List(ctx, c.user.ID)
	if err != nil {
		m.log.Error().Err(err).Int64("user", c.user.ID).Msg("chat: не удалось получить товары")
		c.say("Something went wrong. Please try again later.")
		return
	}
	if len(list) == 0 {
		c.say("You have no tracked products to remove. 😕")
		return
	}
	var b strings.Builder
	b.WriteString(c.t("Your tracked products:"))
	b.WriteString("\n")
	for _, p := range list {
		fmt.Fprintf(&b, "- %s (ID: %d)\n", p.Name, p.ID)
	}
	b.WriteString("\n")
	b.WriteString(c.t("Please send the ID of the product to remove. 🗑️"))
	c.send(domain.OutgoingMessage{Text: b.String()})
	c.session.Reset()
	c.session.State = domain.ChatStateAwaitingRemoveID
}

func (m *Machine) handleState(ctx context.Context, c *conversation, text string) {
	switch c.session.State {
	case domain.ChatStateAwaitingURL:
		m.acceptURL(ctx, c, text)
	case domain.ChatStateAwaitingNameChoice:
		c.say("Please choose one of the options above.")
	case domain.ChatStateAwaitingName:
		if text == "" {
			c.say("Product name cannot be empty. Please enter a valid name. 📝")
			return
		}
		c.session.Set(keyName, text)
		c.session.State = domain.ChatStateAwaitingTargetPrice
		c.say("Great! Now enter the target price (e.g., 23300, 23 300, or 23,300). 💰")
	case domain.ChatStateAwaitingTargetPrice:
		target, ok := pricing.ParseUserPrice(text)
		if !ok {
			c.say("Invalid price. Please enter a positive number. 🚫")
			return
		}
		c.session.Set(keyTarget, target.String())
		c.session.State = domain.ChatStateAwaitingNotificationMethods
		c.say("Enter notification methods (e.g., Email, Telegram, Account), separated by commas. 📩")
	case domain.ChatStateAwaitingNotificationMethods:
		methods, ok := parseMethods(text)
		if !ok {
			c.say("Invalid methods. Please use: Email, Telegram, Account. 😅")
			return
		}
		c.session.Set(keyMethods, joinMethods(methods))
		c.session.State = domain.ChatStateAwaitingCheckFrequency
		c.send(domain.OutgoingMessage{Text: c.t("How often should we check the price? ⏰"), Buttons: frequencyButtons(c)})
	case domain.ChatStateAwaitingCheckFrequency:
		c.say("Please choose a frequency using the buttons above.")
	case domain.ChatStateAwaitingRemoveID:
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			c.say("Invalid ID. Please send a number. 🚫")
			return
		}
		if err := m.products.Remove(ctx, c.user.ID, id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				c.say("Product not found or not yours. 😕")
			} else {
				m.log.Error().Err(err).Int64("product", id).Msg("chat: не удалось удалить товар")
				c.say("Something went wrong. Please try again later.")
			}
		} else {
			c.say("Product removed successfully. ✅")
		}
		c.session.Reset()
	default:
		m.log.Warn().Str("state", string(c.session.State)).Msg("chat: неизвестное состояние, сбрасываем")
		c.session.Reset()
		c.say("Unknown command. Use /help for options. 🤔")
	}
}

func (m *Machine) acceptURL(ctx context.Context, c *conversation, rawURL string) {
	snap, err := m.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		m.log.Warn().Err(err).Str("code", domain.FetchErrorCode(err)).Int64("user", c.user.ID).Msg("chat: не удалось получить товар")
		c.session.Reset()
		c.say("Failed to fetch product data: %s. Please try again. 😔", err.Error())
		return
	}
	price, ok := pricing.Normalize(snap.RawPrice)
	if !ok || !price.IsPositive() {
		c.session.Reset()
		c.say("Could not determine a valid price from the product page. Please try again. 😕")
		return
	}

	c.session.Set(keyURL, rawURL)
	c.session.Set(keyParsedName, strings.TrimSpace(snap.Name))
	c.session.Set(keyPrice, price.String())
	c.session.State = domain.ChatStateAwaitingNameChoice

	name := strings.TrimSpace(snap.Name)
	if name == "" {
		name = c.t("N/A")
	}
	text := fmt.Sprintf("%s *%s*\n\n%s",
		telegram.EscapeMarkdownV2(c.t("Found product:")),
		telegram.EscapeMarkdownV2(name),
		telegram.EscapeMarkdownV2(c.t("Use this name or enter your own? 🤔")))
	c.send(domain.OutgoingMessage{
		Text:      text,
		ParseMode: "MarkdownV2",
		Buttons: [][]domain.Button{
			{{Label: c.t("Use extracted name"), Data: CallbackUseParsedName}},
			{{Label: c.t("Enter name manually"), Data: CallbackEnterManualName}},
		},
	})
}

func (m *Machine) handleCallback(ctx context.Context, c *conversation, data string) {
	switch c.session.State {
	case domain.ChatStateAwaitingNameChoice:
		switch data {
		case CallbackUseParsedName:
			if name := c.session.Data[keyParsedName]; name != "" {
				c.session.Set(keyName, name)
				c.session.State = domain.ChatStateAwaitingTargetPrice
				c.say("Great! Now enter the target price (e.g., 23300, 23 300, or 23,300). 💰")
				return
			}
			c.session.State = domain.ChatStateAwaitingName
			c.say("Couldn't retrieve a name. Please enter the product name manually. 📝")
		case CallbackEnterManualName:
			c.session.State = domain.ChatStateAwaitingName
			c.say("Please enter the product name manually. 📝")
		default:
			c.say("Invalid selection. Please try again. 😅")
		}
	case domain.ChatStateAwaitingCheckFrequency:
		hours, ok := Frequencies[data]
		if !ok {
			c.say("Invalid selection. Please try again. 😅")
			return
		}
		m.createProduct(ctx, c, hours)
		c.session.Reset()
	default:
		c.say("Invalid selection. Please try again. 😅")
	}
}

func (m *Machine) createProduct(ctx context.Context, c *conversation, hours int) {
	data := c.session.Data
	target, err := decimal.NewFromString(data[keyTarget])
	if err != nil {
		c.say("Failed to add product: %s 😔", c.t("Unknown error."))
		return
	}
	in := products.CreateInput{
		UserID:              c.user.ID,
		URL:                 data[keyURL],
		Name:                data[keyName],
		TargetPrice:         target,
		CheckFrequency:      hours,
		NotificationMethods: splitMethods(data[keyMethods]),
		Locale:              c.locale,
	}
	if current, err := decimal.NewFromString(data[keyPrice]); err == nil {
		in.CurrentPrice = decimal.NewNullDecimal(current)
	}

	product, err := m.products.Create(ctx, in)
	if err != nil {
		m.log.Warn().Err(err).Int64("user", c.user.ID).Msg("chat: не удалось добавить товар")
		reason := c.t("Unknown error.")
		switch {
		case errors.Is(err, domain.ErrAlreadyTracked):
			reason = c.t("This product is already being tracked.")
		case errors.Is(err, products.ErrInvalidProduct):
			reason = c.t("Some of the product details are invalid.")
		}
		c.say("Failed to add product: %s 😔", reason)
		return
	}
	c.say("Product '%s' added successfully! 🎉", product.Name)
}

func frequencyButtons(c *conversation) [][]domain.Button {
	rows := make([][]domain.Button, 0, len(frequencyOrder))
	for _, f := range frequencyOrder {
		rows = append(rows, []domain.Button{{Label: c.t(f.label), Data: f.data}})
	}
	return rows
}

// parseMethods разбирает список каналов через запятую. Любой неизвестный канал делает ввод недействительным.
func parseMethods(text string) ([]domain.Channel, bool) {
	var out []domain.Channel
	for _, raw := range strings.Split(text, ",") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		ch, ok := domain.ParseChannel(raw)
		if !ok {
			return nil, false
		}
		out = append(out, ch)
	}
	return out, len(out) > 0
}

func joinMethods(methods []domain.Channel) string {
	parts := make([]string, len(methods))
	for i, m := range methods {
		parts[i] = string(m)
	}
	return strings.Join(parts, ",")
}

func splitMethods(s string) []domain.Channel {
	var out []domain.Channel
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			out = append(out, domain.Channel(part))
		}
	}
	return out
}

// isCommand сравнивает первое слово с командой, допуская суффикс @botname.
func isCommand(text, command string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	head, _, _ := strings.Cut(fields[0], "@")
	return strings.EqualFold(head, command)
}
