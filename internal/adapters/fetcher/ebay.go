package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"price-tracker-bot/internal/domain"
)

const (
	ebayTokenURL   = "https://api.ebay.com/identity/v1/oauth2/token"
	ebayBrowseBase = "https://api.ebay.com/buy/browse/v1"
	ebayScope      = "https://api.ebay.com/oauth/api_scope"

	// EbayTokenKey задаёт ключ кэша OAuth-токена eBay.
	EbayTokenKey = "ebay_oauth_token"

	ebayDefaultTokenTTL = 7200 * time.Second
	ebayTokenTTLBuffer  = 300 * time.Second
)

var ebayItemID = regexp.MustCompile(`/itm/(\d+)`)

var ebayMarketplaces = map[string]string{
	"ebay.com":    "EBAY_US",
	"ebay.co.uk":  "EBAY_GB",
	"ebay.de":     "EBAY_DE",
	"ebay.ca":     "EBAY_CA",
	"ebay.com.au": "EBAY_AU",
}

// Ebay получает данные через Browse API с OAuth client credentials.
type Ebay struct {
	appID    string
	certID   string
	tokenURL string
	apiBase  string
	client   *http.Client
	tokens   domain.TokenCache
	refresh  singleflight.Group
	log      zerolog.Logger
}

// NewEbay создаёт стратегию eBay. Кэш токенов разделяется всеми вызовами.
func NewEbay(appID, certID string, tokens domain.TokenCache, logger zerolog.Logger) *Ebay {
	return &Ebay{
		appID:    appID,
		certID:   certID,
		tokenURL: ebayTokenURL,
		apiBase:  ebayBrowseBase,
		client:   &http.Client{Timeout: 15 * time.Second},
		tokens:   tokens,
		log:      logger,
	}
}

// Name реализует Strategy.
func (e *Ebay) Name() string { return "ebay" }

// Fetch реализует Strategy.
func (e *Ebay) Fetch(ctx context.Context, rawURL string) (domain.Snapshot, error) {
	match := ebayItemID.FindStringSubmatch(rawURL)
	if match == nil {
		return domain.Snapshot{}, &domain.FetchError{Code: "ebay_item_id_not_found", Details: rawURL}
	}
	itemID := match[1]

	token, err := e.token(ctx)
	if err != nil {
		return domain.Snapshot{}, &domain.FetchError{Code: "ebay_auth_failed", Message: "ebay token request failed", Details: err.Error()}
	}

	marketplace := "EBAY_US"
	if parsed, err := url.Parse(rawURL); err == nil {
		if id, ok := ebayMarketplaces[DomainKey(parsed.Host)]; ok {
			marketplace = id
		}
	}

	req, err := http.NewRequest(http.MethodGet, e.apiBase+"/item/"+url.PathEscape(itemID), nil)
	if err != nil {
		return domain.Snapshot{}, &domain.FetchError{Code: "ebay_api_error", Details: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", marketplace)

	status, body, err := doRequest(ctx, e.client, req, "ebay", "browse_item")
	if err != nil {
		return domain.Snapshot{}, &domain.FetchError{Code: "ebay_api_error", Details: err.Error()}
	}
	if status != http.StatusOK {
		e.log.Error().Str("item", itemID).Str("marketplace", marketplace).Int("status", status).Msg("fetcher: ошибка eBay API")
		return domain.Snapshot{}, &domain.FetchError{Code: "ebay_api_error", Message: "ebay api error", Status: status, Details: truncate(body)}
	}
	return domain.Snapshot{
		Name:     gjson.GetBytes(body, "title").String(),
		RawPrice: rawPrice(gjson.GetBytes(body, "price.value")),
	}, nil
}

// token возвращает токен из кэша или запрашивает новый.
// Параллельные обновления внутри процесса схлопываются в один запрос.
func (e *Ebay) token(ctx context.Context) (string, error) {
	if e.tokens != nil {
		cached, ok, err := e.tokens.GetToken(ctx, EbayTokenKey)
		if err != nil {
			e.log.Warn().Err(err).Msg("fetcher: кэш токена eBay недоступен")
		}
		if ok && cached != "" {
			return cached, nil
		}
	}
	value, err, _ := e.refresh.Do(EbayTokenKey, func() (any, error) {
		return e.requestToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return value.(string), nil
}

func (e *Ebay) requestToken(ctx context.Context) (string, error) {
	if e.appID == "" || e.certID == "" {
		return "", errors.New("ebay credentials are not set")
	}
	body := "grant_type=client_credentials&scope=" + ebayScope
	req, err := http.NewRequest(http.MethodPost, e.tokenURL, strings.NewReader(body))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(e.appID, e.certID)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	status, respBody, err := doRequest(ctx, e.client, req, "ebay", "oauth_token")
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("token endpoint status %d: %s", status, truncate(respBody))
	}
	token := gjson.GetBytes(respBody, "access_token").String()
	if token == "" {
		return "", errors.New("token endpoint returned no access_token")
	}
	ttl := ebayDefaultTokenTTL
	if expires := gjson.GetBytes(respBody, "expires_in"); expires.Exists() {
		ttl = time.Duration(expires.Int()) * time.Second
	}
	ttl -= ebayTokenTTLBuffer
	if e.tokens != nil && ttl > 0 {
		if err := e.tokens.SetToken(ctx, EbayTokenKey, token, ttl); err != nil {
			e.log.Warn().Err(err).Msg("fetcher: не удалось сохранить токен eBay")
		}
	}
	e.log.Info().Dur("ttl", ttl).Msg("fetcher: получен новый токен eBay")
	return token, nil
}
