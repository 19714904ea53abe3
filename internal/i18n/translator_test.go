package i18n

import (
	"testing"
)

func newTranslator(t *testing.T) *Translator {
	t.Helper()
	tr, err := New("en")
	if err != nil {
		t.Fatalf("не удалось загрузить каталоги: %v", err)
	}
	return tr
}

func TestResolve(t *testing.T) {
	tr := newTranslator(t)
	cases := map[string]string{
		"":      "en",
		"ru":    "ru",
		"ru-RU": "ru",
		"de-AT": "de",
		"en-GB": "en",
		"fr":    "en",
	}
	for in, want := range cases {
		if got := tr.Resolve(in); got != want {
			t.Fatalf("Resolve(%q) = %q, ожидали %q", in, got, want)
		}
	}
}

func TestTranslateWithArguments(t *testing.T) {
	tr := newTranslator(t)
	if got := tr.T("ru", "(was %s)", "$5.99"); got != "(было $5.99)" {
		t.Fatalf("неожиданный перевод: %q", got)
	}
	if got := tr.T("de", "Product:"); got != "Produkt:" {
		t.Fatalf("неожиданный перевод: %q", got)
	}
	if got := tr.T("en", "Previous price was %s.", "$1.00"); got != "Previous price was $1.00." {
		t.Fatalf("английский текст должен совпадать с ключом: %q", got)
	}
}

func TestUnknownMessageFallsBackToID(t *testing.T) {
	tr := newTranslator(t)
	if got := tr.T("ru", "No such message %d", 3); got != "No such message 3" {
		t.Fatalf("ожидали исходный текст, получили %q", got)
	}
}

func TestCatalogsCoverUserFacingMessages(t *testing.T) {
	tr := newTranslator(t)
	ids := []string{
		"Please link your Telegram account via the website first. 🔗",
		"Great! Now enter the target price (e.g., 23300, 23 300, or 23,300). 💰",
		"You're currently in the middle of an operation. Use /cancel to stop or continue with the current task. ⚠️",
		"Once a week",
		"Target Price Reached!",
		"View Product",
		"Open your tracked products",
		"A message from our admin",
	}
	for _, locale := range []string{"ru", "de"} {
		for _, id := range ids {
			if got := tr.T(locale, id); got == id {
				t.Fatalf("нет перевода %q для %s", id, locale)
			}
		}
	}
}

func TestLocales(t *testing.T) {
	tr := newTranslator(t)
	got := map[string]bool{}
	for _, l := range tr.Locales() {
		got[l] = true
	}
	for _, want := range []string{"en", "ru", "de"} {
		if !got[want] {
			t.Fatalf("нет языка %s в %v", want, tr.Locales())
		}
	}
}
