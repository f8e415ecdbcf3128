package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"

	"github.com/nhle/liman-notify/internal/model"
	"github.com/nhle/liman-notify/internal/ui/panel"
)

var (
	dim  = color.New(color.Faint)
	bold = color.New(color.Bold)
)

func levelColor(level model.Level) *color.Color {
	switch level {
	case model.LevelCritical:
		return color.New(color.FgMagenta, color.Bold)
	case model.LevelError:
		return color.New(color.FgRed, color.Bold)
	case model.LevelWarning:
		return color.New(color.FgYellow)
	case model.LevelSuccess:
		return color.New(color.FgGreen)
	case model.LevelInfo:
		return color.New(color.FgCyan)
	default:
		return dim
	}
}

func runUnread(ctx context.Context, opts options) error {
	e, err := setup(opts, true)
	if err != nil {
		return err
	}
	_, client, err := e.session()
	if err != nil {
		return err
	}

	list, err := client.UnreadNotifications(ctx)
	if err != nil {
		return e.checkAuth(err)
	}

	if len(list) == 0 {
		fmt.Println("No unread notifications.")
		return nil
	}

	for _, n := range list {
		marker := " "
		if n.SeenAt == nil {
			marker = bold.Sprint("●")
		}
		fmt.Printf("%s %s %s  %s\n",
			marker,
			levelColor(n.Level).Sprintf("%-8s", n.Level),
			n.Title,
			dim.Sprint(panel.When(n)),
		)
	}
	return nil
}

func runReadAll(ctx context.Context, opts options) error {
	e, err := setup(opts, true)
	if err != nil {
		return err
	}
	_, client, err := e.session()
	if err != nil {
		return err
	}

	if err := client.MarkAllRead(ctx); err != nil {
		return e.checkAuth(err)
	}
	color.Green("All notifications marked read.")
	return nil
}

func runHistory(ctx context.Context, opts options) error {
	e, err := setup(opts, true)
	if err != nil {
		return err
	}

	journal, err := e.openJournal()
	if err != nil {
		return err
	}
	defer journal.Close()

	deliveries, err := journal.RecentDeliveries(ctx, opts.limit)
	if err != nil {
		return err
	}
	if len(deliveries) == 0 {
		fmt.Println("Journal is empty.")
		return nil
	}

	for _, d := range deliveries {
		ack := dim.Sprint("pending")
		switch d.AckStatus {
		case model.AckStatusOK:
			ack = color.GreenString("seen")
		case model.AckStatusFailed:
			ack = color.RedString("ack failed: %s", d.AckError)
		}
		fmt.Printf("%s %-5s %s %s  %s\n",
			dim.Sprint(d.ReceivedAt.Local().Format("2006-01-02 15:04:05")),
			d.Source,
			levelColor(d.Level).Sprintf("%-8s", d.Level),
			d.Title,
			ack,
		)
	}
	return nil
}
