package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"price-tracker-bot/internal/domain"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func known(v string) decimal.NullDecimal {
	return decimal.NewNullDecimal(dec(v))
}

var allPrefs = Preferences{TargetReached: true, PriceDrop: true}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want []domain.AlertType
	}{
		{
			name: "target takes precedence over drop",
			in:   Input{OldPrice: known("100"), NewPrice: dec("50"), TargetPrice: dec("60"), Preferences: allPrefs},
			want: []domain.AlertType{domain.AlertTargetReached},
		},
		{
			name: "drop above threshold",
			in: Input{OldPrice: known("100"), NewPrice: dec("90"), TargetPrice: dec("60"),
				Thresholds: Thresholds{Drop: known("5")}, Preferences: allPrefs},
			want: []domain.AlertType{domain.AlertPriceDrop},
		},
		{
			name: "drop below threshold",
			in: Input{OldPrice: known("100"), NewPrice: dec("90"), TargetPrice: dec("60"),
				Thresholds: Thresholds{Drop: known("15")}, Preferences: allPrefs},
			want: nil,
		},
		{
			name: "increase over threshold",
			in: Input{OldPrice: known("80"), NewPrice: dec("120"), TargetPrice: dec("60"),
				Thresholds: Thresholds{Increase: known("20")}, Preferences: allPrefs},
			want: []domain.AlertType{domain.AlertPriceIncrease},
		},
		{
			name: "increase without threshold is silent",
			in:   Input{OldPrice: known("80"), NewPrice: dec("120"), TargetPrice: dec("60"), Preferences: allPrefs},
			want: nil,
		},
		{
			name: "drop without threshold",
			in:   Input{OldPrice: known("100"), NewPrice: dec("99.99"), TargetPrice: dec("60"), Preferences: allPrefs},
			want: []domain.AlertType{domain.AlertPriceDrop},
		},
		{
			name: "drop needs known old price",
			in:   Input{NewPrice: dec("90"), TargetPrice: dec("60"), Preferences: allPrefs},
			want: nil,
		},
		{
			name: "target disabled falls through to drop",
			in: Input{OldPrice: known("100"), NewPrice: dec("50"), TargetPrice: dec("60"),
				Preferences: Preferences{PriceDrop: true}},
			want: []domain.AlertType{domain.AlertPriceDrop},
		},
		{
			name: "drop disabled",
			in: Input{OldPrice: known("100"), NewPrice: dec("90"), TargetPrice: dec("60"),
				Preferences: Preferences{TargetReached: true}},
			want: nil,
		},
		{
			name: "target reached with equal price",
			in:   Input{OldPrice: known("60"), NewPrice: dec("60"), TargetPrice: dec("60"), Preferences: allPrefs},
			want: []domain.AlertType{domain.AlertTargetReached},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.in)
			assert.Equal(t, tc.want, got.Alerts)
		})
	}
}

func TestEvaluateTargetFlag(t *testing.T) {
	t.Run("set when target fires", func(t *testing.T) {
		got := Evaluate(Input{OldPrice: known("100"), NewPrice: dec("50"), TargetPrice: dec("60"), Preferences: allPrefs})
		assert.True(t, got.TargetNotified)
		assert.True(t, got.Fired(domain.AlertTargetReached))
	})

	t.Run("cleared when price rises above target", func(t *testing.T) {
		got := Evaluate(Input{OldPrice: known("50"), NewPrice: dec("70"), TargetPrice: dec("60"),
			Preferences: allPrefs, TargetNotified: true})
		assert.False(t, got.TargetNotified)
		assert.Empty(t, got.Alerts)
	})

	t.Run("kept without known old price", func(t *testing.T) {
		got := Evaluate(Input{NewPrice: dec("70"), TargetPrice: dec("60"), Preferences: allPrefs, TargetNotified: true})
		assert.True(t, got.TargetNotified)
	})

	t.Run("untouched when target pref disabled", func(t *testing.T) {
		got := Evaluate(Input{OldPrice: known("100"), NewPrice: dec("50"), TargetPrice: dec("60")})
		assert.False(t, got.TargetNotified)
	})
}

func TestInputFor(t *testing.T) {
	product := domain.Product{
		TargetPrice:        dec("60"),
		CurrentPrice:       known("100"),
		PriceDropThreshold: known("5"),
		TargetNotified:     true,
	}
	user := domain.User{EnablePriceDropNotifications: true}

	in := InputFor(product, user, dec("90"))
	assert.True(t, in.OldPrice.Decimal.Equal(dec("100")))
	assert.True(t, in.Thresholds.Drop.Valid)
	assert.False(t, in.Thresholds.Increase.Valid)
	assert.Equal(t, Preferences{PriceDrop: true}, in.Preferences)
	assert.True(t, in.TargetNotified)
}
