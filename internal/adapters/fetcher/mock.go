package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"price-tracker-bot/internal/domain"
)

const mockScheme = "mock"

// Сценарии тестовых ссылок вида mock://<scenario>/<id>.
const (
	MockPriceDrop     = "price-drop"
	MockTargetReached = "target-reached"
	MockPriceIncrease = "price-increase"
	MockNoChange      = "no-change"
)

var (
	// MockOldPrice задаёт исходную цену копии товара в тестовом прогоне.
	MockOldPrice = decimal.NewFromInt(100)
	// MockTargetPrice задаёт целевую цену копии товара в тестовом прогоне.
	MockTargetPrice = decimal.NewFromInt(60)
)

// Mock отдаёт заранее известные данные без сетевых запросов.
type Mock struct{}

// Name реализует Strategy.
func (Mock) Name() string { return "mock" }

// Fetch реализует Strategy.
func (Mock) Fetch(_ context.Context, rawURL string) (domain.Snapshot, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return domain.Snapshot{}, &domain.FetchError{Code: CodeInvalidURL, Details: err.Error()}
	}
	scenario := parsed.Host
	productID := strings.Trim(parsed.Path, "/")
	return domain.Snapshot{
		Name:     fmt.Sprintf("Mock Product '%s' (%s)", scenario, productID),
		RawPrice: MockPrice(scenario),
	}, nil
}

// MockPrice возвращает цену для сценария. Неизвестный сценарий считается no-change.
func MockPrice(scenario string) decimal.Decimal {
	switch scenario {
	case MockPriceDrop:
		return decimal.NewFromInt(80)
	case MockTargetReached:
		return decimal.NewFromInt(50)
	case MockPriceIncrease:
		return decimal.NewFromInt(120)
	}
	return MockOldPrice
}

// MockURL строит тестовую ссылку для товара.
func MockURL(scenario string, productID int64) string {
	return fmt.Sprintf("%s://%s/%d", mockScheme, scenario, productID)
}
