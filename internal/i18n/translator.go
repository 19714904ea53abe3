// Package i18n переводит пользовательские сообщения на язык получателя.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"strings"

	"github.com/leonelquinteros/gotext"
	"golang.org/x/text/language"
)

// DefaultLocale используется, если язык пользователя не поддерживается.
const DefaultLocale = "en"

//go:embed locales/*.po
var localeFS embed.FS

// Translator хранит каталоги переводов. Безопасен для конкурентного чтения.
type Translator struct {
	fallback string
	catalogs map[string]*gotext.Po
	tags     []language.Tag
	matcher  language.Matcher
}

// New загружает встроенные каталоги. Исходный язык сообщений английский.
func New(fallback string) (*Translator, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("чтение каталогов переводов: %w", err)
	}
	t := &Translator{
		catalogs: make(map[string]*gotext.Po, len(entries)),
		tags:     []language.Tag{language.English},
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".po" {
			continue
		}
		data, err := localeFS.ReadFile(path.Join("locales", name))
		if err != nil {
			return nil, fmt.Errorf("чтение %s: %w", name, err)
		}
		po := gotext.NewPo()
		po.Parse(data)
		lang := strings.TrimSuffix(name, ".po")
		t.catalogs[lang] = po
		t.tags = append(t.tags, language.Make(lang))
	}
	t.matcher = language.NewMatcher(t.tags)
	t.fallback = DefaultLocale
	if fallback != "" {
		t.fallback = t.Resolve(fallback)
	}
	return t, nil
}

// Resolve сводит произвольный код языка к одному из поддерживаемых.
func (t *Translator) Resolve(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return t.fallback
	}
	_, idx, confidence := t.matcher.Match(language.Make(locale))
	if confidence == language.No {
		return t.fallback
	}
	base, _ := t.tags[idx].Base()
	return base.String()
}

// T переводит сообщение и подставляет аргументы в стиле fmt.
func (t *Translator) T(locale, msgID string, vars ...any) string {
	if po, ok := t.catalogs[t.Resolve(locale)]; ok {
		return po.Get(msgID, vars...)
	}
	if len(vars) == 0 {
		return msgID
	}
	return fmt.Sprintf(msgID, vars...)
}

// Locales возвращает список поддерживаемых языков.
func (t *Translator) Locales() []string {
	out := make([]string, 0, len(t.tags))
	for _, tag := range t.tags {
		base, _ := tag.Base()
		out = append(out, base.String())
	}
	return out
}
