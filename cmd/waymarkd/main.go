// Package main is the entry point for the Waymark primary-process daemon.
// Its sole responsibility is wiring dependencies together and starting the
// reconciliation loop, the auto-start scheduler, and the localhost wake
// server. No business logic belongs here.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/waymark-app/waymark/internal/autostart"
	"github.com/waymark-app/waymark/internal/clock"
	"github.com/waymark-app/waymark/internal/config"
	"github.com/waymark-app/waymark/internal/events"
	"github.com/waymark-app/waymark/internal/gateway"
	"github.com/waymark-app/waymark/internal/mailbox"
	"github.com/waymark-app/waymark/internal/reconcile"
	"github.com/waymark-app/waymark/internal/session"
	"github.com/waymark-app/waymark/internal/wakeserver"
)

// passBudget bounds one reconciliation pass, mirroring the bounded
// execution window the OS grants for background refresh.
const passBudget = 20 * time.Second

func main() {
	// --- Config -----------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	// --- Logger -----------------------------------------------------------
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// --- Mailbox ----------------------------------------------------------
	// Opening the store also applies pending schema migrations, so the
	// daemon and the quick-action binary can be updated independently.
	box, err := mailbox.Open(cfg.MailboxPath)
	if err != nil {
		slog.Error("failed to open mailbox", "path", cfg.MailboxPath, "error", err)
		os.Exit(1)
	}
	defer box.Close()

	// --- Session & gateway ------------------------------------------------
	sess, err := session.FromBearer(cfg.ServerURL, cfg.Bearer)
	if err != nil {
		slog.Error("invalid session configuration", "error", err)
		os.Exit(1)
	}
	gw := gateway.New(sess, nil, logger)

	// --- Core components --------------------------------------------------
	bus := events.NewDispatcher()
	clk := clock.NewSystem()
	rec := reconcile.New(box, gw, bus, clk, logger)
	sched := autostart.New(gw, rec, bus, clk, logger, rec.Adopt)

	// Wake signals and foreground entries both drive a prompt pass. The
	// channel has capacity one: coalescing bursts is fine because a pass
	// reads whatever is in the mailbox when it runs.
	trigger := make(chan struct{}, 1)
	kick := func(events.Event) {
		select {
		case trigger <- struct{}{}:
		default:
		}
	}
	bus.Subscribe(kick, events.KindWake)
	bus.Subscribe(func(e events.Event) {
		sched.ResetSession()
		kick(e)
	}, events.KindForeground)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go rec.Loop(ctx, trigger, cfg.ReconcileInterval, passBudget)
	go sched.Run(ctx)

	// SIGHUP stands in for foreground re-entry on a daemonized build: it
	// resets the auto-start session and forces a reconciliation pass.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			slog.Info("foreground entry")
			bus.Publish(events.Event{Kind: events.KindForeground, At: clk.Now()})
		}
	}()

	// Initial pass on boot counts as a foreground entry.
	bus.Publish(events.Event{Kind: events.KindForeground, At: clk.Now()})

	// --- Wake server ------------------------------------------------------
	srv := &http.Server{
		Addr:         cfg.WakeAddr,
		Handler:      wakeserver.New(bus, logger).Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("wake server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("wake server error", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	slog.Info("daemon stopped")
}
