package telegram

import "testing"

func TestEscapeMarkdownV2(t *testing.T) {
	cases := map[string]string{
		"Price: $5.99 (was $6.99)!": `Price: $5\.99 \(was $6\.99\)\!`,
		"snake_case [x]":            `snake\_case \[x\]`,
		"a~b`c>d#e+f-g=h|i{j}k":     "a\\~b\\`c\\>d\\#e\\+f\\-g\\=h\\|i\\{j\\}k",
		"Привет, мир":               "Привет, мир",
		"":                          "",
	}
	for in, want := range cases {
		if got := EscapeMarkdownV2(in); got != want {
			t.Fatalf("EscapeMarkdownV2(%q) = %q, ожидали %q", in, got, want)
		}
	}
}

func TestEscapeMarkdownV2URL(t *testing.T) {
	got := EscapeMarkdownV2URL(`https://example.com/a_(b)\c`)
	want := `https://example.com/a_(b\)\\c`
	if got != want {
		t.Fatalf("получили %q, ожидали %q", got, want)
	}
}
