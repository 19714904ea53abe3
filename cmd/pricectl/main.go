// Команда pricectl запускает служебные операции: ручную проверку цены,
// тестовые уведомления, регистрацию вебхука и просмотр истории цен.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"price-tracker-bot/internal/app"
	"price-tracker-bot/internal/infra/config"
	applog "price-tracker-bot/internal/infra/log"
)

const usage = `usage: pricectl <command> [flags]

commands:
  check              enqueue (or run with -inline) a price check, real or mock
  test-notification  dispatch a synthetic alert to a user's channels
  message            send an admin message to one user channel
  set-webhook        register the Telegram webhook with the secret token
  fetch              fetch one URL and print the result as JSON
  history            print the latest price observations of a product
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "pricectl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, cfg.LogFile)

	if cmd == "fetch" {
		return runFetch(ctx, rest, cfg, logger, out)
	}

	opts, err := parseCommand(cmd, rest)
	if err != nil {
		return err
	}

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	switch cmd {
	case "check":
		return runCheck(ctx, deps, opts.(checkOptions), out)
	case "test-notification":
		return runTestNotification(ctx, deps, opts.(notificationOptions), out)
	case "message":
		return runMessage(ctx, deps, opts.(messageOptions), out)
	case "set-webhook":
		return runSetWebhook(deps, opts.(webhookOptions), out)
	case "history":
		return runHistory(ctx, deps, opts.(historyOptions), out)
	}
	return errUsage
}
