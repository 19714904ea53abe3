package repo

import (
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"price-tracker-bot/internal/domain"
)

// fakeRow раскладывает заранее заданные значения по указателям Scan.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch ptr := d.(type) {
		case *int64:
			*ptr = r.values[i].(int64)
		case *int:
			*ptr = r.values[i].(int)
		case *string:
			*ptr = r.values[i].(string)
		case **string:
			if v, ok := r.values[i].(string); ok {
				*ptr = &v
			}
		case *bool:
			*ptr = r.values[i].(bool)
		case **bool:
			if v, ok := r.values[i].(bool); ok {
				*ptr = &v
			}
		case *decimal.Decimal:
			*ptr = r.values[i].(decimal.Decimal)
		case *decimal.NullDecimal:
			if v, ok := r.values[i].(decimal.Decimal); ok {
				*ptr = decimal.NewNullDecimal(v)
			}
		case **time.Time:
			if v, ok := r.values[i].(time.Time); ok {
				*ptr = &v
			}
		case *[]string:
			*ptr = r.values[i].([]string)
		}
	}
	return nil
}

func TestScanProduct(t *testing.T) {
	checked := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	row := fakeRow{values: []any{
		int64(7), int64(3), "https://amazon.com/dp/1", "Phone", decimal.RequireFromString("99.90"), nil,
		decimal.RequireFromString("5"), decimal.RequireFromString("120.00"), checked, 24,
		[]string{"email", "Telegram", "pigeon"}, true, checked,
	}}

	p, err := scanProduct(row)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if p.ID != 7 || p.UserID != 3 || p.CheckFrequency != 24 || !p.TargetNotified {
		t.Fatalf("неожиданный товар: %+v", p)
	}
	if p.PriceDropThreshold.Valid || !p.PriceIncreaseThreshold.Valid {
		t.Fatalf("пороги разобраны неверно: %+v", p)
	}
	if len(p.NotificationMethods) != 2 || p.NotificationMethods[1] != domain.ChannelTelegram {
		t.Fatalf("неизвестный канал должен отбрасываться: %v", p.NotificationMethods)
	}
	if p.LastChecked == nil || !p.LastChecked.Equal(checked) {
		t.Fatalf("неверное время проверки: %v", p.LastChecked)
	}
}

func TestScanUserParsesChatID(t *testing.T) {
	row := fakeRow{values: []any{int64(1), "u@example.com", nil, true, true, false, "123456", nil}}
	u, err := scanUser(row)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if u.TelegramChatID == nil || *u.TelegramChatID != 123456 {
		t.Fatalf("неверный chat id: %v", u.TelegramChatID)
	}
	if u.Language != "" || u.TelegramLinkingToken != "" {
		t.Fatalf("пустые поля должны остаться пустыми: %+v", u)
	}

	bad := fakeRow{values: []any{int64(1), "u@example.com", "en", true, true, false, "abc", nil}}
	if _, err := scanUser(bad); err == nil {
		t.Fatal("ожидали ошибку для нечислового chat id")
	}
}

func TestIgnoreNoRows(t *testing.T) {
	if ignoreNoRows(pgx.ErrNoRows) != nil {
		t.Fatal("ErrNoRows не считается ошибкой запроса")
	}
	other := errors.New("boom")
	if !errors.Is(ignoreNoRows(other), other) {
		t.Fatal("прочие ошибки должны проходить")
	}
}
