// Package fetcher получает название и цену товара из внешних источников.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/infra/metrics"
)

// Коды ошибок, общие для всех источников.
const (
	CodeInvalidURL    = "invalid_url"
	CodeNoStrategy    = "no_strategy"
	CodeUnexpected    = "unexpected"
	CodeNotConfigured = "not_configured"
)

// Strategy получает данные о товаре из одного источника.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context, rawURL string) (domain.Snapshot, error)
}

// Registry выбирает стратегию по домену ссылки.
type Registry struct {
	log        zerolog.Logger
	strategies map[string]Strategy
	mock       Strategy
}

var _ domain.PriceFetcher = (*Registry)(nil)

// NewRegistry создаёт реестр по явной таблице домен -> стратегия.
func NewRegistry(logger zerolog.Logger, table map[string]Strategy) *Registry {
	strategies := make(map[string]Strategy, len(table))
	for domainKey, strategy := range table {
		strategies[DomainKey(domainKey)] = strategy
	}
	return &Registry{log: logger, strategies: strategies, mock: Mock{}}
}

// Options содержит ключи внешних API и зависимости стратегий.
type Options struct {
	RainforestAPIKey string
	ScraperAPIKey    string
	EbayAppID        string
	EbayCertID       string
	Tokens           domain.TokenCache
	Browser          Renderer
}

// NewDefaultRegistry собирает реестр со всеми поддерживаемыми магазинами.
func NewDefaultRegistry(logger zerolog.Logger, opts Options) *Registry {
	amazon := NewAmazon(opts.RainforestAPIKey)
	ebay := NewEbay(opts.EbayAppID, opts.EbayCertID, opts.Tokens, logger)
	wildberries := NewWildberries(opts.Browser, logger)
	walmart := NewWalmart(opts.ScraperAPIKey, logger)

	table := map[string]Strategy{
		"amazon.com":     amazon,
		"wildberries.ru": wildberries,
		"walmart.com":    walmart,
	}
	for host := range ebayMarketplaces {
		table[host] = ebay
	}
	return NewRegistry(logger, table)
}

// Domains возвращает список доменов, для которых есть стратегия.
func (r *Registry) Domains() []string {
	out := make([]string, 0, len(r.strategies))
	for key := range r.strategies {
		out = append(out, key)
	}
	return out
}

// Fetch получает снимок товара. Паника внутри стратегии превращается в ошибку.
func (r *Registry) Fetch(ctx context.Context, rawURL string) (snap domain.Snapshot, err error) {
	parsed, perr := url.Parse(strings.TrimSpace(rawURL))
	if perr != nil || parsed.Scheme == "" || parsed.Host == "" {
		return domain.Snapshot{}, &domain.FetchError{Code: CodeInvalidURL, Message: "invalid product url", Details: rawURL}
	}

	var strategy Strategy
	if parsed.Scheme == mockScheme {
		strategy = r.mock
	} else {
		key := DomainKey(parsed.Host)
		found, ok := r.strategies[key]
		if !ok {
			return domain.Snapshot{}, &domain.FetchError{Code: CodeNoStrategy, Message: "no parser found for domain: " + key}
		}
		strategy = found
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error().Str("parser", strategy.Name()).Interface("panic", rec).Str("url", rawURL).Msg("fetcher: стратегия завершилась паникой")
			snap = domain.Snapshot{}
			err = &domain.FetchError{
				Code:    CodeUnexpected,
				Message: fmt.Sprintf("parser %s failed unexpectedly", strategy.Name()),
				Details: fmt.Sprint(rec),
			}
		}
	}()

	start := time.Now()
	snap, err = strategy.Fetch(ctx, rawURL)
	metrics.ObserveFetch(strategy.Name(), start, err)
	if err != nil {
		var fe *domain.FetchError
		if !errors.As(err, &fe) {
			err = &domain.FetchError{
				Code:    CodeUnexpected,
				Message: fmt.Sprintf("parser %s failed unexpectedly", strategy.Name()),
				Details: err.Error(),
			}
		}
		return domain.Snapshot{}, err
	}
	return snap, nil
}

// DomainKey нормализует хост: нижний регистр, без порта и префикса www.
func DomainKey(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, found := strings.Cut(host, ":"); found {
		host = h
	}
	return strings.TrimPrefix(host, "www.")
}

// Result описывает единую форму результата для логов и CLI.
type Result struct {
	Success bool   `json:"success"`
	Name    string `json:"name,omitempty"`
	Price   any    `json:"price,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Describe сводит снимок и ошибку к Result.
func Describe(snap domain.Snapshot, err error) Result {
	if err == nil {
		return Result{Success: true, Name: snap.Name, Price: snap.RawPrice}
	}
	res := Result{Error: err.Error()}
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		res.Code = fe.Code
		res.Details = fe.Details
	}
	return res
}
