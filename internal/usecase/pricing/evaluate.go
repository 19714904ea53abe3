package pricing

import (
	"github.com/shopspring/decimal"

	"price-tracker-bot/internal/domain"
)

// Thresholds задаёт пороги изменения цены в абсолютных единицах валюты.
type Thresholds struct {
	Drop     decimal.NullDecimal
	Increase decimal.NullDecimal
}

// Preferences отражает глобальные настройки уведомлений пользователя.
type Preferences struct {
	TargetReached bool
	PriceDrop     bool
}

// Input содержит всё, что нужно для оценки одной проверки.
type Input struct {
	OldPrice       decimal.NullDecimal
	NewPrice       decimal.Decimal
	TargetPrice    decimal.Decimal
	Thresholds     Thresholds
	Preferences    Preferences
	TargetNotified bool
}

// Decision содержит сработавшие события и новое значение флага цели.
type Decision struct {
	Alerts         []domain.AlertType
	TargetNotified bool
}

// Fired сообщает, сработало ли событие указанного типа.
func (d Decision) Fired(t domain.AlertType) bool {
	for _, a := range d.Alerts {
		if a == t {
			return true
		}
	}
	return false
}

// InputFor собирает вход оценщика из товара, пользователя и новой цены.
func InputFor(p domain.Product, u domain.User, newPrice decimal.Decimal) Input {
	return Input{
		OldPrice:    p.CurrentPrice,
		NewPrice:    newPrice,
		TargetPrice: p.TargetPrice,
		Thresholds: Thresholds{
			Drop:     p.PriceDropThreshold,
			Increase: p.PriceIncreaseThreshold,
		},
		Preferences: Preferences{
			TargetReached: u.EnableTargetReachedNotifications,
			PriceDrop:     u.EnablePriceDropNotifications,
		},
		TargetNotified: p.TargetNotified,
	}
}

// Evaluate решает, какие события сработали. Порядок фиксирован:
// достижение цели исключает падение цены, рост цены проверяется независимо.
func Evaluate(in Input) Decision {
	out := Decision{TargetNotified: in.TargetNotified}

	if in.NewPrice.LessThanOrEqual(in.TargetPrice) && in.Preferences.TargetReached {
		out.Alerts = append(out.Alerts, domain.AlertTargetReached)
		out.TargetNotified = true
	} else if in.OldPrice.Valid && in.NewPrice.LessThan(in.OldPrice.Decimal) && in.Preferences.PriceDrop {
		drop := in.OldPrice.Decimal.Sub(in.NewPrice)
		if !in.Thresholds.Drop.Valid || drop.GreaterThanOrEqual(in.Thresholds.Drop.Decimal) {
			out.Alerts = append(out.Alerts, domain.AlertPriceDrop)
		}
	}

	if in.OldPrice.Valid && in.NewPrice.GreaterThan(in.OldPrice.Decimal) && in.Thresholds.Increase.Valid {
		rise := in.NewPrice.Sub(in.OldPrice.Decimal)
		if rise.GreaterThanOrEqual(in.Thresholds.Increase.Decimal) {
			out.Alerts = append(out.Alerts, domain.AlertPriceIncrease)
		}
	}

	if in.OldPrice.Valid && in.NewPrice.GreaterThan(in.TargetPrice) && in.TargetNotified {
		out.TargetNotified = false
	}
	return out
}
