package pricing

import (
	"encoding/json"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Normalize приводит сырую цену к точному десятичному значению.
// Второе значение ложно, если цену получить не удалось.
func Normalize(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case nil:
		return decimal.Decimal{}, false
	case decimal.Decimal:
		return v, true
	case *decimal.Decimal:
		if v == nil {
			return decimal.Decimal{}, false
		}
		return *v, true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case float64:
		return decimal.NewFromFloat(v), true
	case json.Number:
		if value, err := decimal.NewFromString(v.String()); err == nil {
			return value, true
		}
		return parseDecimalString(v.String())
	case string:
		return parseDecimalString(v)
	}
	return decimal.Decimal{}, false
}

// ParseUserPrice разбирает цену, введённую пользователем: "23 300", "23,300", "19.99".
// Допускаются только положительные значения.
func ParseUserPrice(raw string) (decimal.Decimal, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if r == ',' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(raw))
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil || !value.IsPositive() {
		return decimal.Decimal{}, false
	}
	return value, true
}

func parseDecimalString(raw string) (decimal.Decimal, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, raw)
	cleaned = collapseDots(cleaned)
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return value, true
}

// collapseDots оставляет одну десятичную точку. Первая точка считается
// десятичной, остальные группы склеиваются. Если все группы после первой
// состоят ровно из трёх цифр, точки считаются разделителями тысяч.
func collapseDots(s string) string {
	if strings.Count(s, ".") <= 1 {
		return s
	}
	parts := strings.Split(s, ".")
	thousands := parts[0] != ""
	for _, group := range parts[1:] {
		if len(group) != 3 {
			thousands = false
			break
		}
	}
	if thousands {
		return strings.Join(parts, "")
	}
	return parts[0] + "." + strings.Join(parts[1:], "")
}
