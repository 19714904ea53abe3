package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"price-tracker-bot/internal/infra/metrics"
)

// RenderSpec описывает, что искать на странице. Селекторы проверяются по порядку.
type RenderSpec struct {
	NameSelectors  []string
	PriceSelectors []string
	Languages      []string
}

// RenderResult содержит найденный текст.
type RenderResult struct {
	Name  string
	Price string
}

// Renderer открывает страницу в браузере и извлекает текст по селекторам.
type Renderer interface {
	Render(ctx context.Context, rawURL string, spec RenderSpec) (RenderResult, error)
}

// Browser запускает headless Chrome на каждый рендер.
// Число одновременных процессов ограничено семафором.
type Browser struct {
	sem         *semaphore.Weighted
	navTimeout  time.Duration
	waitTimeout time.Duration
	execPath    string
	log         zerolog.Logger
}

// NewBrowser создаёт рендерер с ограничением параллельности.
func NewBrowser(concurrency int, navTimeout time.Duration, execPath string, logger zerolog.Logger) *Browser {
	if concurrency <= 0 {
		concurrency = 1
	}
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	return &Browser{
		sem:         semaphore.NewWeighted(int64(concurrency)),
		navTimeout:  navTimeout,
		waitTimeout: navTimeout / 4,
		execPath:    execPath,
		log:         logger,
	}
}

// Render реализует Renderer.
func (b *Browser) Render(ctx context.Context, rawURL string, spec RenderSpec) (RenderResult, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return RenderResult{}, fmt.Errorf("browser slot: %w", err)
	}
	defer b.sem.Release(1)

	metrics.BrowserSessions.Inc()
	defer metrics.BrowserSessions.Dec()

	agent := RandomUserAgent()
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(agent),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1366, 768),
	)
	if len(spec.Languages) > 0 {
		opts = append(opts, chromedp.Flag("lang", spec.Languages[0]))
	}
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	runCtx, cancelRun := context.WithTimeout(tabCtx, b.navTimeout)
	defer cancelRun()

	start := time.Now()
	err := chromedp.Run(runCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript(spec.Languages)).Do(ctx)
			return err
		}),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	metrics.ObserveNetworkRequest("browser", "navigate", hostOf(rawURL), start, err)
	if err != nil {
		return RenderResult{}, fmt.Errorf("navigate: %w", err)
	}

	var res RenderResult
	pollErr := chromedp.Run(runCtx, chromedp.Poll(firstTextScript(spec.PriceSelectors), &res.Price, chromedp.WithPollingTimeout(b.waitTimeout)))
	if pollErr != nil && !errors.Is(pollErr, chromedp.ErrPollingTimeout) {
		b.log.Warn().Err(pollErr).Str("url", rawURL).Msg("fetcher: ошибка ожидания цены в браузере")
	}
	if err := chromedp.Run(runCtx, chromedp.Evaluate(firstTextScript(spec.NameSelectors), &res.Name)); err != nil {
		b.log.Warn().Err(err).Str("url", rawURL).Msg("fetcher: не удалось прочитать название в браузере")
	}
	res.Name = strings.TrimSpace(res.Name)
	res.Price = strings.TrimSpace(res.Price)
	return res, nil
}

// firstTextScript возвращает выражение, которое отдаёт текст первого непустого селектора.
func firstTextScript(selectors []string) string {
	list, _ := json.Marshal(selectors)
	return fmt.Sprintf(`(() => {
	for (const selector of %s) {
		const el = document.querySelector(selector);
		const text = el && el.textContent ? el.textContent.trim() : "";
		if (text) return text;
	}
	return "";
})()`, list)
}

func stealthScript(languages []string) string {
	if len(languages) == 0 {
		languages = []string{"en-US", "en"}
	}
	list, _ := json.Marshal(languages)
	return fmt.Sprintf(`
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
window.chrome = { runtime: {}, loadTimes: () => {}, csi: () => {} };
Object.defineProperty(navigator, 'languages', { get: () => %s });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
`, list)
}

func hostOf(rawURL string) string {
	rest := rawURL
	if _, after, ok := strings.Cut(rawURL, "://"); ok {
		rest = after
	}
	host, _, _ := strings.Cut(rest, "/")
	return DomainKey(host)
}
