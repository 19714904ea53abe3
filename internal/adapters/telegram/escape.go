package telegram

import "strings"

// markdownV2Special перечисляет символы, которые MarkdownV2 требует экранировать.
const markdownV2Special = "_[]()~`>#+-=|{}.!"

// EscapeMarkdownV2 экранирует служебные символы MarkdownV2 обратной косой чертой.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(markdownV2Special, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeMarkdownV2URL экранирует адрес внутри (...) у inline-ссылки.
func EscapeMarkdownV2URL(rawURL string) string {
	r := strings.NewReplacer(`\`, `\\`, `)`, `\)`)
	return r.Replace(rawURL)
}
