// Package main is the quick-action binary: the short-lived execution
// context the OS invokes when the user taps check in or I'm safe on a
// surface rendered outside the primary process. It performs exactly one
// action under a hard time budget, leaves its breadcrumbs in the shared
// mailbox, pings the daemon, and exits. It has no durable UI: failures
// surface only through the exit code and the mailbox state.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/waymark-app/waymark/internal/config"
	"github.com/waymark-app/waymark/internal/gateway"
	"github.com/waymark-app/waymark/internal/mailbox"
	"github.com/waymark-app/waymark/internal/quickaction"
	"github.com/waymark-app/waymark/internal/session"
)

func main() {
	action := flag.String("action", "", `safety action to perform: "checkin" or "checkout"`)
	token := flag.String("token", "", "single-use capability token authorizing the action")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(2)
	}

	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if *action != "checkin" && *action != "checkout" {
		slog.Error("unknown action", "action", *action)
		os.Exit(2)
	}

	box, err := mailbox.Open(cfg.MailboxPath)
	if err != nil {
		slog.Error("failed to open mailbox", "path", cfg.MailboxPath, "error", err)
		os.Exit(1)
	}
	defer box.Close()

	// Capability-token calls need no authenticated session, but the
	// session value still carries the base URL.
	sess, err := session.FromBearer(cfg.ServerURL, cfg.Bearer)
	if err != nil {
		slog.Error("invalid session configuration", "error", err)
		os.Exit(1)
	}

	runner := quickaction.New(
		box,
		gateway.New(sess, nil, logger),
		mailbox.NewHTTPWaker(cfg.WakeAddr, logger),
		nil,
		logger,
	)

	// The OS enforces a hard ~30s cap; the configured budget stays under
	// it so mailbox cleanup still happens inside the window.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ActionBudget)
	defer cancel()

	switch *action {
	case "checkin":
		err = runner.CheckIn(ctx, *token)
	case "checkout":
		err = runner.CheckOut(ctx, *token)
	}
	if err != nil {
		slog.Error("action failed", "action", *action, "error", err)
		os.Exit(1)
	}
	slog.Info("action completed", "action", *action)
}
