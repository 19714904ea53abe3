package telegram

import "strings"

const messageLimit = 4096

// SplitMessage режет обычный текст на части в пределах лимита Telegram,
// по возможности по переводам строк.
func SplitMessage(text string) []string {
	return split(text, func(runes []rune) []bool {
		safe := make([]bool, len(runes)+1)
		for i := range safe {
			safe[i] = true
		}
		return safe
	})
}

// SplitMarkdownV2 режет MarkdownV2-текст так, чтобы каждая часть разбиралась
// отдельно: разрез не отрывает символ от экранирующей косой черты и не попадает
// внутрь сущности. Сущность длиннее лимита всё равно режется по лимиту.
func SplitMarkdownV2(text string) []string {
	return split(text, markdownV2Boundaries)
}

func split(text string, boundaries func([]rune) []bool) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	runes := []rune(trimmed)
	if len(runes) <= messageLimit {
		return []string{trimmed}
	}
	safe := boundaries(runes)

	var parts []string
	for start := 0; start < len(runes); {
		end := start + messageLimit
		if end >= len(runes) {
			if chunk := strings.Trim(string(runes[start:]), "\n"); chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		cut := lastBoundary(runes, safe, start, end, true)
		if cut == -1 {
			cut = lastBoundary(runes, safe, start, end, false)
		}
		if cut == -1 {
			cut = end
		}

		if chunk := strings.Trim(string(runes[start:cut]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		start = cut
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}
	return parts
}

// lastBoundary ищет самую правую допустимую позицию разреза в (start, end].
func lastBoundary(runes []rune, safe []bool, start, end int, newline bool) int {
	for i := end; i > start; i-- {
		if safe[i] && (!newline || runes[i-1] == '\n') {
			return i
		}
	}
	return -1
}

// mdState отслеживает открытые сущности MarkdownV2 при проходе по тексту.
type mdState struct {
	escaped   bool
	code      bool
	link      int // 1 в тексте ссылки, 2 в адресе
	bold      bool
	italic    bool
	underline bool
	strike    bool
	spoiler   bool
}

func (s mdState) closed() bool {
	return !s.escaped && !s.code && s.link == 0 && !s.bold && !s.italic && !s.underline && !s.strike && !s.spoiler
}

// markdownV2Boundaries отмечает позиции, перед которыми можно разрезать текст.
func markdownV2Boundaries(runes []rune) []bool {
	safe := make([]bool, len(runes)+1)
	safe[0] = true
	var st mdState
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		double := i+1 < len(runes) && runes[i+1] == r
		switch {
		case st.escaped:
			st.escaped = false
		case r == '\\':
			st.escaped = true
		case r == '`':
			st.code = !st.code
		case st.code:
		case r == '[' && st.link == 0:
			st.link = 1
		case r == '(' && st.link == 1 && i > 0 && runes[i-1] == ']':
			st.link = 2
		case r == ')' && st.link == 2:
			st.link = 0
		case st.link == 2:
		case r == '_' && double:
			st.underline = !st.underline
			i++
		case r == '|' && double:
			st.spoiler = !st.spoiler
			i++
		case r == '*':
			st.bold = !st.bold
		case r == '_':
			st.italic = !st.italic
		case r == '~':
			st.strike = !st.strike
		}
		safe[i+1] = st.closed()
	}
	return safe
}
