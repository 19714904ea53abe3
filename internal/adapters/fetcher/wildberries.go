package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"price-tracker-bot/internal/domain"
)

const wildberriesCardURL = "https://card.wb.ru/cards/v2/detail"

var wildberriesProductID = regexp.MustCompile(`(?:catalog|product)/(\d+)`)

var (
	wildberriesNameSelectors = []string{
		"h1.product-page__title",
		".product-page__header h1",
		"[data-link*='productCard'] h1",
		"h1",
	}
	wildberriesPriceSelectors = []string{
		"ins.price-block__final-price",
		".price-block__final-price",
		"[class*='price-block__final-price']",
		".product-page__price-block ins",
		"[class*='priceBlockFinalPrice']",
	}
)

// Wildberries сначала пробует карточку через API, затем рендер в браузере.
type Wildberries struct {
	apiBase string
	client  *http.Client
	browser Renderer
	log     zerolog.Logger
}

// NewWildberries создаёт стратегию. Без browser резервный путь отключён.
func NewWildberries(browser Renderer, logger zerolog.Logger) *Wildberries {
	return &Wildberries{
		apiBase: wildberriesCardURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		browser: browser,
		log:     logger,
	}
}

// Name реализует Strategy.
func (w *Wildberries) Name() string { return "wildberries" }

// Fetch реализует Strategy.
func (w *Wildberries) Fetch(ctx context.Context, rawURL string) (domain.Snapshot, error) {
	match := wildberriesProductID.FindStringSubmatch(rawURL)
	if match == nil {
		return domain.Snapshot{}, &domain.FetchError{Code: "wildberries_invalid_url", Details: rawURL}
	}
	productID := match[1]

	snap, apiErr := w.fromAPI(ctx, productID)
	if apiErr == nil {
		return snap, nil
	}
	if w.browser == nil {
		return domain.Snapshot{}, apiErr
	}
	w.log.Warn().Err(apiErr).Str("product", productID).Msg("fetcher: API Wildberries не ответил, пробуем браузер")

	rendered, err := w.browser.Render(ctx, rawURL, RenderSpec{
		NameSelectors:  wildberriesNameSelectors,
		PriceSelectors: wildberriesPriceSelectors,
		Languages:      []string{"ru-RU", "ru"},
	})
	if err != nil {
		return domain.Snapshot{}, &domain.FetchError{
			Code:    "wildberries_scrape_failed",
			Message: "wildberries page could not be rendered",
			Details: fmt.Sprintf("api: %v; browser: %v", apiErr, err),
		}
	}
	if rendered.Name == "" && rendered.Price == "" {
		return domain.Snapshot{}, &domain.FetchError{
			Code:    "wildberries_scrape_failed",
			Message: "no name or price found on wildberries page",
			Details: fmt.Sprintf("api: %v", apiErr),
		}
	}
	snap = domain.Snapshot{Name: rendered.Name}
	if rendered.Price != "" {
		snap.RawPrice = rendered.Price
	}
	return snap, nil
}

func (w *Wildberries) fromAPI(ctx context.Context, productID string) (domain.Snapshot, error) {
	query := url.Values{}
	query.Set("appType", "1")
	query.Set("curr", "rub")
	query.Set("dest", "-1257786")
	query.Set("nm", productID)
	query.Set("spp", "30")

	req, err := http.NewRequest(http.MethodGet, w.apiBase+"?"+query.Encode(), nil)
	if err != nil {
		return domain.Snapshot{}, &domain.FetchError{Code: "wildberries_parse_error", Details: err.Error()}
	}
	status, body, err := doRequest(ctx, w.client, req, "wildberries", "card_detail")
	if err != nil {
		return domain.Snapshot{}, &domain.FetchError{Code: "wildberries_network_error", Details: err.Error()}
	}
	if status != http.StatusOK {
		return domain.Snapshot{}, &domain.FetchError{Code: fmt.Sprintf("wildberries_api_error_%d", status), Status: status, Details: truncate(body)}
	}

	product := gjson.GetBytes(body, "data.products.0")
	if !product.Exists() {
		return domain.Snapshot{}, &domain.FetchError{Code: "wildberries_product_not_found", Details: productID}
	}
	price := product.Get("sizes.0.price")
	if !price.Exists() {
		return domain.Snapshot{}, &domain.FetchError{Code: "wildberries_price_not_found", Details: productID}
	}
	kopecks := price.Get("total")
	if kopecks.Int() == 0 {
		kopecks = price.Get("product")
	}
	value, err := decimal.NewFromString(kopecks.Raw)
	if err != nil || value.IsZero() {
		return domain.Snapshot{}, &domain.FetchError{Code: "wildberries_price_not_found", Details: price.Raw}
	}

	name := product.Get("name").String()
	if name == "" {
		name = "Name not specified"
	}
	return domain.Snapshot{Name: name, RawPrice: value.Div(decimal.NewFromInt(100))}, nil
}
