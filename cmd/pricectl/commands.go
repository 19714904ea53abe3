package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"price-tracker-bot/internal/adapters/fetcher"
	"price-tracker-bot/internal/adapters/memory"
	"price-tracker-bot/internal/app"
	"price-tracker-bot/internal/domain"
	"price-tracker-bot/internal/infra/config"
	"price-tracker-bot/internal/usecase/check"
	"price-tracker-bot/internal/usecase/notify"
)

type checkOptions struct {
	ProductID int64
	Scenario  string
	Target    string
	Current   string
	Locale    string
	Inline    bool
}

type notificationOptions struct {
	Email string
	Type  domain.AlertType
}

type messageOptions struct {
	UserID  int64
	Channel domain.Channel
	Text    string
}

type webhookOptions struct {
	URL string
}

type historyOptions struct {
	ProductID int64
	Limit     int
}

var mockScenarios = []string{fetcher.MockPriceDrop, fetcher.MockTargetReached, fetcher.MockPriceIncrease, fetcher.MockNoChange}

// parseCommand разбирает флаги подкоманды.
func parseCommand(cmd string, args []string) (any, error) {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch cmd {
	case "check":
		var o checkOptions
		fs.Int64Var(&o.ProductID, "product", 0, "product id")
		fs.StringVar(&o.Scenario, "mock", "", "mock scenario: "+strings.Join(mockScenarios, ", "))
		fs.StringVar(&o.Target, "target", "", "mock target price")
		fs.StringVar(&o.Current, "current", "", "mock current price")
		fs.StringVar(&o.Locale, "locale", "", "fallback locale for notifications")
		fs.BoolVar(&o.Inline, "inline", false, "run the check in this process instead of the queue")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if o.ProductID <= 0 {
			return nil, fmt.Errorf("%w: -product is required", errUsage)
		}
		if o.Scenario != "" && !knownScenario(o.Scenario) {
			return nil, fmt.Errorf("%w: unknown mock scenario %q", errUsage, o.Scenario)
		}
		if o.Scenario == "" && (o.Target != "" || o.Current != "") {
			return nil, fmt.Errorf("%w: -target and -current need -mock", errUsage)
		}
		return o, nil
	case "test-notification":
		var (
			o   notificationOptions
			typ string
		)
		fs.StringVar(&o.Email, "email", "", "user email")
		fs.StringVar(&typ, "type", string(domain.AlertPriceDrop), "target_reached, price_drop or price_increase")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if o.Email == "" {
			return nil, fmt.Errorf("%w: -email is required", errUsage)
		}
		o.Type = domain.AlertType(typ)
		switch o.Type {
		case domain.AlertTargetReached, domain.AlertPriceDrop, domain.AlertPriceIncrease:
		default:
			return nil, fmt.Errorf("%w: unknown type %q", errUsage, typ)
		}
		return o, nil
	case "message":
		var (
			o       messageOptions
			channel string
		)
		fs.Int64Var(&o.UserID, "user", 0, "user id")
		fs.StringVar(&channel, "channel", string(domain.ChannelAccount), "account, email or telegram")
		fs.StringVar(&o.Text, "text", "", "message text")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		ch, ok := domain.ParseChannel(channel)
		if !ok {
			return nil, fmt.Errorf("%w: unknown channel %q", errUsage, channel)
		}
		o.Channel = ch
		if o.UserID <= 0 || strings.TrimSpace(o.Text) == "" {
			return nil, fmt.Errorf("%w: -user and -text are required", errUsage)
		}
		return o, nil
	case "set-webhook":
		var o webhookOptions
		fs.StringVar(&o.URL, "url", "", "webhook url, TELEGRAM_WEBHOOK_URL by default")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		return o, nil
	case "history":
		var o historyOptions
		fs.Int64Var(&o.ProductID, "product", 0, "product id")
		fs.IntVar(&o.Limit, "limit", 20, "number of rows, 0 for all")
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if o.ProductID <= 0 {
			return nil, fmt.Errorf("%w: -product is required", errUsage)
		}
		return o, nil
	}
	return nil, fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func knownScenario(s string) bool {
	for _, known := range mockScenarios {
		if s == known {
			return true
		}
	}
	return false
}

// job строит задачу ручной проверки.
func (o checkOptions) job(now time.Time) (domain.PriceCheckJob, error) {
	job := domain.PriceCheckJob{
		ID:           uuid.NewString(),
		ProductID:    o.ProductID,
		MockScenario: o.Scenario,
		Locale:       o.Locale,
		RequestedAt:  now,
		Cause:        domain.CheckCauseManual,
	}
	if o.Target != "" {
		v, err := decimal.NewFromString(o.Target)
		if err != nil {
			return domain.PriceCheckJob{}, fmt.Errorf("parse -target: %w", err)
		}
		job.MockTargetPrice = &v
	}
	if o.Current != "" {
		v, err := decimal.NewFromString(o.Current)
		if err != nil {
			return domain.PriceCheckJob{}, fmt.Errorf("parse -current: %w", err)
		}
		job.MockCurrentPrice = &v
	}
	return job, nil
}

type outcomeView struct {
	Kind      check.OutcomeKind  `json:"outcome"`
	Stage     check.Stage        `json:"stage"`
	Error     string             `json:"error,omitempty"`
	Price     string             `json:"price,omitempty"`
	Alerts    []domain.AlertType `json:"alerts,omitempty"`
	Delivered []domain.Channel   `json:"delivered,omitempty"`
}

func viewOutcome(out check.Outcome) outcomeView {
	v := outcomeView{Kind: out.Kind, Stage: out.Stage, Alerts: out.Alerts}
	if out.Err != nil {
		v.Error = out.Err.Error()
	}
	if !out.Price.IsZero() {
		v.Price = out.Price.StringFixed(2)
	}
	for _, r := range out.Reports {
		v.Delivered = append(v.Delivered, r.Delivered...)
	}
	return v
}

func runCheck(ctx context.Context, deps *app.Deps, o checkOptions, out io.Writer) error {
	job, err := o.job(time.Now().UTC())
	if err != nil {
		return err
	}
	if !o.Inline {
		if err := deps.Queue.Enqueue(ctx, job); err != nil {
			return fmt.Errorf("enqueue: %w", err)
		}
		fmt.Fprintf(out, "enqueued job %s for product %d\n", job.ID, job.ProductID)
		return nil
	}
	dispatcher, err := deps.Dispatcher()
	if err != nil {
		return err
	}
	task := check.NewTask(deps.Repo, deps.Repo, deps.Registry(), dispatcher, deps.Log)
	return writeJSON(out, viewOutcome(task.Run(ctx, job)))
}

type reportView struct {
	Delivered []domain.Channel          `json:"delivered"`
	Skipped   []domain.Channel          `json:"skipped,omitempty"`
	Failed    map[domain.Channel]string `json:"failed,omitempty"`
}

func viewReport(r notify.Report) reportView {
	v := reportView{Delivered: r.Delivered, Skipped: r.Skipped}
	for ch, err := range r.Failed {
		if v.Failed == nil {
			v.Failed = make(map[domain.Channel]string)
		}
		v.Failed[ch] = err.Error()
	}
	return v
}

func runTestNotification(ctx context.Context, deps *app.Deps, o notificationOptions, out io.Writer) error {
	dispatcher, err := deps.Dispatcher()
	if err != nil {
		return err
	}
	report, err := dispatcher.SendTestNotification(ctx, o.Email, o.Type)
	if err != nil {
		return err
	}
	return writeJSON(out, viewReport(report))
}

func runMessage(ctx context.Context, deps *app.Deps, o messageOptions, out io.Writer) error {
	dispatcher, err := deps.Dispatcher()
	if err != nil {
		return err
	}
	if err := dispatcher.SendSystemMessage(ctx, o.UserID, o.Channel, o.Text); err != nil {
		return err
	}
	fmt.Fprintf(out, "message sent to user %d via %s\n", o.UserID, o.Channel)
	return nil
}

func runSetWebhook(deps *app.Deps, o webhookOptions, out io.Writer) error {
	if deps.Sender == nil {
		return errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	url := o.URL
	if url == "" {
		url = deps.Cfg.Telegram.WebhookURL
	}
	if err := deps.Sender.SetWebhook(url, deps.Cfg.Telegram.SecretToken); err != nil {
		return err
	}
	fmt.Fprintf(out, "webhook set to %s\n", url)
	return nil
}

func runHistory(ctx context.Context, deps *app.Deps, o historyOptions, out io.Writer) error {
	entries, err := deps.Repo.ListPriceHistory(ctx, o.ProductID, o.Limit)
	if err != nil {
		return err
	}
	return writeHistory(out, entries, time.Now())
}

func writeHistory(out io.Writer, entries []domain.PriceHistoryEntry, now time.Time) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "no price history")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORDED\tAGO\tPRICE")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.RecordedAt.UTC().Format(time.RFC3339), humanize.RelTime(e.RecordedAt, now, "ago", "from now"), notify.FormatPrice(e.Price))
	}
	return tw.Flush()
}

// runFetch не требует БД: токены кэшируются в памяти процесса.
func runFetch(ctx context.Context, args []string, cfg config.AppConfig, logger zerolog.Logger, out io.Writer) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	rawURL := fs.String("url", "", "product url or mock://<scenario>/<id>")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rawURL == "" {
		return fmt.Errorf("%w: -url is required", errUsage)
	}
	registry := fetcher.NewDefaultRegistry(logger, fetcher.Options{
		RainforestAPIKey: cfg.Sources.RainforestAPIKey,
		ScraperAPIKey:    cfg.Sources.ScraperAPIKey,
		EbayAppID:        cfg.Sources.EbayAppID,
		EbayCertID:       cfg.Sources.EbayCertID,
		Tokens:           memory.NewTokenCache(),
		Browser:          fetcher.NewBrowser(cfg.Browser.Concurrency, cfg.Browser.NavTimeout, cfg.Browser.ExecPath, logger),
	})
	snap, err := registry.Fetch(ctx, *rawURL)
	return writeJSON(out, fetcher.Describe(snap, err))
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
