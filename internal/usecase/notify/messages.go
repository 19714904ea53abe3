package notify

import (
	"fmt"
	"html"
	"math/big"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"price-tracker-bot/internal/adapters/telegram"
	"price-tracker-bot/internal/domain"
)

const currency = "$"

// FormatPrice форматирует сумму в долларах с разделителями разрядов.
// Сумма округляется до центов без перехода через float64.
func FormatPrice(d decimal.Decimal) string {
	rounded := d.Round(2)
	whole, frac, _ := strings.Cut(rounded.Abs().StringFixed(2), ".")
	grouped := whole
	if n, ok := new(big.Int).SetString(whole, 10); ok {
		grouped = humanize.BigComma(n)
	}
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
	}
	return sign + currency + grouped + "." + frac
}

func (d *Dispatcher) dashboardURL(productID int64) string {
	base := strings.TrimRight(d.siteURL, "/") + "/profile/tracked-products"
	if productID <= 0 {
		return base
	}
	return base + "?highlight=" + strconv.FormatInt(productID, 10)
}

func (d *Dispatcher) accountNotification(ev domain.AlertEvent, locale string) domain.UserNotification {
	p := ev.Product
	newPrice := FormatPrice(ev.NewPrice)
	var short, body string
	switch ev.Type {
	case domain.AlertTargetReached:
		short = d.tr.T(locale, "🎯 Price for %s reached your target!", p.Name)
		body = d.tr.T(locale, "Current price: %s. Target: %s.", newPrice, FormatPrice(p.TargetPrice))
	case domain.AlertPriceDrop:
		short = d.tr.T(locale, "📉 Price dropped for %s to %s!", p.Name, newPrice)
	default:
		short = d.tr.T(locale, "📈 Price increased for %s to %s!", p.Name, newPrice)
	}
	if ev.Type != domain.AlertTargetReached && ev.OldPrice.Valid {
		body = d.tr.T(locale, "Previous price was %s.", FormatPrice(ev.OldPrice.Decimal))
	}
	link := fmt.Sprintf("<a href='%s' target='_blank'>%s</a>", html.EscapeString(p.URL), html.EscapeString(p.Name))
	message := strings.TrimSpace(html.EscapeString(short)+" "+html.EscapeString(body)) + "<br>" + d.tr.T(locale, "Product:") + " " + link

	n := domain.UserNotification{
		UserID:       p.UserID,
		Type:         ev.Type,
		ShortMessage: short,
		Message:      message,
		Data:         payload(ev),
	}
	if p.ID > 0 {
		id := p.ID
		n.ProductID = &id
	}
	return n
}

// payload собирает структурированные данные уведомления, разница цен
// считается как старая минус новая с округлением до центов.
func payload(ev domain.AlertEvent) domain.NotificationPayload {
	newPrice, _ := ev.NewPrice.Float64()
	out := domain.NotificationPayload{NewPrice: &newPrice, Currency: currency}
	if ev.OldPrice.Valid {
		old, _ := ev.OldPrice.Decimal.Float64()
		diff, _ := ev.OldPrice.Decimal.Sub(ev.NewPrice).Round(2).Float64()
		out.OldPrice = &old
		out.PriceDiff = &diff
	}
	return out
}

func (d *Dispatcher) emailMessage(ev domain.AlertEvent, user domain.User, locale string) domain.EmailMessage {
	p := ev.Product
	vars := map[string]any{
		"ProductName":  p.Name,
		"ProductURL":   p.URL,
		"NewPrice":     FormatPrice(ev.NewPrice),
		"OldPrice":     FormatPrice(ev.OldPrice.Decimal),
		"TargetPrice":  FormatPrice(p.TargetPrice),
		"DashboardURL": d.dashboardURL(p.ID),
	}
	msg := domain.EmailMessage{To: user.Email, Locale: locale, Vars: vars}
	switch ev.Type {
	case domain.AlertTargetReached:
		msg.Subject = d.tr.T(locale, "🎯 Price Alert! %s reached your target price!", p.Name)
		msg.Template = "notifications/target_price_reached"
	case domain.AlertPriceDrop:
		msg.Subject = d.tr.T(locale, "📉 Price Drop for %s!", p.Name)
		msg.Template = "notifications/price_drop"
	default:
		msg.Subject = d.tr.T(locale, "📈 Price Increase for %s!", p.Name)
		msg.Template = "notifications/price_increase"
	}
	return msg
}

func (d *Dispatcher) telegramMessage(ev domain.AlertEvent, chatID int64, locale string) domain.OutgoingMessage {
	esc := telegram.EscapeMarkdownV2
	p := ev.Product
	newPrice := esc(FormatPrice(ev.NewPrice))

	var b strings.Builder
	switch ev.Type {
	case domain.AlertTargetReached:
		fmt.Fprintf(&b, "🎯 *%s*\n\n", esc(d.tr.T(locale, "Target Price Reached!")))
		fmt.Fprintf(&b, "%s *%s*\n", esc(d.tr.T(locale, "Product:")), esc(p.Name))
		fmt.Fprintf(&b, "%s *%s* %s\n\n", esc(d.tr.T(locale, "New Price:")), newPrice,
			esc(d.tr.T(locale, "(Target: %s)", FormatPrice(p.TargetPrice))))
	case domain.AlertPriceDrop:
		fmt.Fprintf(&b, "📉 *%s*\n\n", esc(d.tr.T(locale, "Price Drop!")))
		fmt.Fprintf(&b, "%s *%s*\n", esc(d.tr.T(locale, "Product:")), esc(p.Name))
		fmt.Fprintf(&b, "%s *%s* %s\n\n", esc(d.tr.T(locale, "New Price:")), newPrice,
			esc(d.tr.T(locale, "(was %s)", FormatPrice(ev.OldPrice.Decimal))))
	default:
		fmt.Fprintf(&b, "📈 *%s*\n\n", esc(d.tr.T(locale, "Price Increase")))
		fmt.Fprintf(&b, "%s *%s*\n", esc(d.tr.T(locale, "Product:")), esc(p.Name))
		fmt.Fprintf(&b, "%s *%s* %s\n\n", esc(d.tr.T(locale, "New Price:")), newPrice,
			esc(d.tr.T(locale, "(was %s)", FormatPrice(ev.OldPrice.Decimal))))
	}
	fmt.Fprintf(&b, "[%s](%s)", esc(d.tr.T(locale, "View Product")), telegram.EscapeMarkdownV2URL(p.URL))

	return domain.OutgoingMessage{ChatID: chatID, Text: b.String(), ParseMode: "MarkdownV2"}
}
