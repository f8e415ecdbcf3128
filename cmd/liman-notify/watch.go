package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/liman-notify/internal/app"
	"github.com/nhle/liman-notify/internal/model"
	"github.com/nhle/liman-notify/internal/notify"
	appsync "github.com/nhle/liman-notify/internal/sync"
)

// tokenCheckInterval is how often a running watcher looks for a login or
// logout made from another terminal.
const tokenCheckInterval = 5 * time.Second

func runWatch(ctx context.Context, opts options) error {
	e, err := setup(opts, true)
	if err != nil {
		return err
	}
	if opts.plain {
		return watchPlain(ctx, e)
	}
	return watchPanel(ctx, e)
}

func watchPanel(ctx context.Context, e *env) error {
	p, err := e.pipeline(nil)
	if err != nil {
		return err
	}
	defer p.close()
	go p.session.WatchStored(ctx, tokenCheckInterval, e.storedToken, e.log)

	bridge := appsync.New(p.center, appsync.Options{
		Pruner:    p.journal,
		Retention: retention(e.cfg),
		Logout:    func() { p.session.Close(notify.ErrLoggedOut) },
		Logger:    e.log,
	})
	defer bridge.Stop()

	program := tea.NewProgram(
		app.New(bridge, p.session.User()),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	final, err := program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running panel: %w", err)
	}

	if m, ok := final.(app.Model); ok {
		if ended, reason := m.Ended(); ended {
			return e.finish(p, reason)
		}
	}
	return nil
}

func watchPlain(ctx context.Context, e *env) error {
	p, err := e.pipeline(printDelivery)
	if err != nil {
		return err
	}
	defer p.close()
	go p.session.WatchStored(ctx, tokenCheckInterval, e.storedToken, e.log)

	if r := retention(e.cfg); r > 0 {
		if _, err := p.journal.Prune(ctx, time.Now().Add(-r)); err != nil {
			e.log.WithError(err).Warn("pruning journal")
		}
	}

	fmt.Println(dim.Sprintf("Watching notifications for %s (ctrl+c to stop)", e.cfg.Host()))
	return e.finish(p, p.center.Run(ctx))
}

func printDelivery(n model.Notification, source model.Source) {
	marker := " "
	if source == model.SourcePush {
		marker = "+"
	}
	fmt.Printf("%s %s %s %s\n",
		dim.Sprint(time.Now().Format("15:04:05")),
		marker,
		levelColor(n.Level).Sprintf("%-8s", n.Level),
		n.Title,
	)
	if n.Content != "" {
		fmt.Println(dim.Sprint("           " + n.Content))
	}
}

func retention(cfg *model.AppConfig) time.Duration {
	return time.Duration(cfg.Journal.RetentionDays) * 24 * time.Hour
}
