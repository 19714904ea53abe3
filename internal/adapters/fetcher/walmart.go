package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"price-tracker-bot/internal/domain"
)

const scraperAPIEndpoint = "http://api.scraperapi.com"

// Walmart получает отрендеренную страницу через ScraperAPI и читает __NEXT_DATA__.
type Walmart struct {
	apiKey   string
	endpoint string
	attempts int
	client   *http.Client
	log      zerolog.Logger
}

// NewWalmart создаёт стратегию Walmart.
func NewWalmart(apiKey string, logger zerolog.Logger) *Walmart {
	return &Walmart{
		apiKey:   apiKey,
		endpoint: scraperAPIEndpoint,
		attempts: 2,
		client:   &http.Client{Timeout: 45 * time.Second},
		log:      logger,
	}
}

// Name реализует Strategy.
func (w *Walmart) Name() string { return "walmart" }

// Fetch реализует Strategy.
func (w *Walmart) Fetch(ctx context.Context, rawURL string) (domain.Snapshot, error) {
	if w.apiKey == "" {
		return domain.Snapshot{}, &domain.FetchError{Code: CodeNotConfigured, Message: "scraperapi key is not set"}
	}
	html, err := w.render(ctx, rawURL)
	if err != nil {
		return domain.Snapshot{}, &domain.FetchError{Code: "scraperapi_fetch_error", Message: "rendering proxy failed", Details: err.Error()}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.Snapshot{}, &domain.FetchError{Code: "walmart_parse_error", Details: err.Error()}
	}
	script := strings.TrimSpace(doc.Find("script#__NEXT_DATA__").First().Text())
	if script == "" {
		return domain.Snapshot{}, &domain.FetchError{Code: "walmart_parse_error", Message: "__NEXT_DATA__ block not found"}
	}
	if !gjson.Valid(script) {
		return domain.Snapshot{}, &domain.FetchError{Code: "walmart_parse_error", Message: "__NEXT_DATA__ is not valid json"}
	}
	product := gjson.Get(script, "props.pageProps.initialData.data.product")
	price := product.Get("priceInfo.currentPrice.price")
	if !product.Exists() || !price.Exists() {
		return domain.Snapshot{}, &domain.FetchError{Code: "walmart_parse_error", Message: "product data not found in __NEXT_DATA__"}
	}
	return domain.Snapshot{Name: product.Get("name").String(), RawPrice: rawPrice(price)}, nil
}

// render запрашивает страницу у прокси, повторяя запрос при ошибке или плохом статусе.
func (w *Walmart) render(ctx context.Context, rawURL string) (string, error) {
	query := url.Values{}
	query.Set("api_key", w.apiKey)
	query.Set("url", rawURL)
	query.Set("render", "true")
	query.Set("premium", "true")

	var lastErr error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		req, err := http.NewRequest(http.MethodGet, w.endpoint+"?"+query.Encode(), nil)
		if err != nil {
			return "", err
		}
		status, body, err := doRequest(ctx, w.client, req, "scraperapi", "render")
		switch {
		case err != nil:
			lastErr = err
		case status != http.StatusOK:
			lastErr = fmt.Errorf("scraperapi status %d", status)
		default:
			return string(body), nil
		}
		w.log.Warn().Err(lastErr).Int("attempt", attempt).Msg("fetcher: ScraperAPI не вернул страницу")
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", lastErr
}
