package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"price-tracker-bot/internal/domain"
)

const rainforestEndpoint = "https://api.rainforestapi.com/request"

// Amazon получает данные через Rainforest API.
type Amazon struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

// NewAmazon создаёт стратегию Amazon.
func NewAmazon(apiKey string) *Amazon {
	return &Amazon{
		apiKey:   apiKey,
		endpoint: rainforestEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Name реализует Strategy.
func (a *Amazon) Name() string { return "amazon" }

// Fetch реализует Strategy.
func (a *Amazon) Fetch(ctx context.Context, rawURL string) (domain.Snapshot, error) {
	if a.apiKey == "" {
		return domain.Snapshot{}, &domain.FetchError{Code: CodeNotConfigured, Message: "rainforest api key is not set"}
	}
	query := url.Values{}
	query.Set("api_key", a.apiKey)
	query.Set("type", "product")
	query.Set("url", rawURL)

	req, err := http.NewRequest(http.MethodGet, a.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return domain.Snapshot{}, &domain.FetchError{Code: "amazon_parse_error", Details: err.Error()}
	}
	status, body, err := doRequest(ctx, a.client, req, "rainforest", "product")
	if err != nil {
		return domain.Snapshot{}, &domain.FetchError{Code: "amazon_network_error", Message: "rainforest request failed", Details: err.Error()}
	}
	product := gjson.GetBytes(body, "product")
	if status != http.StatusOK || !product.Exists() {
		return domain.Snapshot{}, &domain.FetchError{Code: "api_error", Message: "rainforest api error", Status: status, Details: truncate(body)}
	}
	return domain.Snapshot{
		Name:     product.Get("title").String(),
		RawPrice: rawPrice(product.Get("buybox_winner.price.raw")),
	}, nil
}
