package telegram

import (
	"strings"
	"testing"
)

func TestSplitMessagePrefersNewlines(t *testing.T) {
	var builder strings.Builder
	builder.WriteString(strings.Repeat("a", 3000))
	builder.WriteString("\n\n")
	builder.WriteString(strings.Repeat("b", 2000))
	builder.WriteString("\n")
	builder.WriteString(strings.Repeat("c", 500))

	parts := SplitMessage(builder.String())
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	for i, part := range parts {
		if n := len([]rune(part)); n > messageLimit {
			t.Fatalf("часть %d превышает лимит: %d", i, n)
		}
	}
	if parts[0] != strings.Repeat("a", 3000) {
		t.Fatalf("неожиданное содержимое первой части")
	}
	if !strings.HasPrefix(parts[1], "b") || !strings.HasSuffix(parts[1], strings.Repeat("c", 500)) {
		t.Fatalf("неожиданное содержимое второй части")
	}
}

func TestSplitMessageShortAndEmpty(t *testing.T) {
	if parts := SplitMessage("hello world"); len(parts) != 1 || parts[0] != "hello world" {
		t.Fatalf("короткий текст должен остаться целым: %q", parts)
	}
	if parts := SplitMessage("   \n  "); len(parts) != 0 {
		t.Fatalf("пустой текст не должен давать частей, получили %d", len(parts))
	}
}

func TestSplitMarkdownV2KeepsEscapes(t *testing.T) {
	text := EscapeMarkdownV2(strings.Repeat("a", 4095) + ".tail")

	parts := SplitMarkdownV2(text)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	if strings.HasSuffix(parts[0], `\`) {
		t.Fatalf("первая часть заканчивается экранирующей чертой")
	}
	if parts[1] != `\.tail` {
		t.Fatalf("вторая часть должна начинаться с экранированной точки: %q", parts[1])
	}
	if parts[0]+parts[1] != text {
		t.Fatalf("при разрезе потерян текст")
	}
}

func TestSplitMarkdownV2KeepsEntities(t *testing.T) {
	bold := "*" + strings.Repeat("b", 200) + "*"
	text := strings.Repeat("a", 4000) + bold + strings.Repeat("c", 100)

	parts := SplitMarkdownV2(text)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	if parts[0] != strings.Repeat("a", 4000) {
		t.Fatalf("разрез попал внутрь жирного текста: длина первой части %d", len([]rune(parts[0])))
	}
	if !strings.HasPrefix(parts[1], bold) {
		t.Fatalf("жирный текст должен целиком перейти во вторую часть")
	}
}

func TestSplitMarkdownV2PrefersNewlineOutsideEntities(t *testing.T) {
	// перевод строки внутри ссылки не годится для разреза
	link := "[" + strings.Repeat("l", 50) + "\n" + strings.Repeat("l", 50) + "](https://example.com)"
	text := strings.Repeat("a", 3000) + "\n" + strings.Repeat("b", 980) + link + strings.Repeat("c", 200)

	parts := SplitMarkdownV2(text)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	if parts[0] != strings.Repeat("a", 3000) {
		t.Fatalf("ожидали разрез по переводу строки вне ссылки")
	}
}

func TestMarkdownV2Boundaries(t *testing.T) {
	cases := []struct {
		text string
		want string // 1 для допустимой позиции разреза
	}{
		{`a\.b`, "11011"},
		{"*b*c", "10011"},
		{"__u__", "100001"},
		{"`*`x", "10011"},
		{"||s||", "100001"},
	}
	for _, tc := range cases {
		safe := markdownV2Boundaries([]rune(tc.text))
		var got strings.Builder
		for _, ok := range safe {
			if ok {
				got.WriteByte('1')
			} else {
				got.WriteByte('0')
			}
		}
		if got.String() != tc.want {
			t.Fatalf("%q: ожидали %s, получили %s", tc.text, tc.want, got.String())
		}
	}
}
