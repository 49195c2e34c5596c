package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/gatekeep/internal/notify"
	"github.com/alfredjeanlab/gatekeep/internal/session"
	"github.com/alfredjeanlab/gatekeep/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch <gate>",
	Short:   "Open the interactive console for a gate",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gateID := args[0]
		interval, _ := cmd.Flags().GetDuration("interval")
		logger := cliLogger()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		l, err := openLive(gateClient, natsURL, interval, logger)
		if err != nil {
			return err
		}
		defer l.close()

		notifier := notify.Multi{notify.NewTerminal(os.Stdout, ui.ShouldUseColor())}
		if l.bus != nil {
			notifier = append(notifier, l.bus)
		}

		sess, err := session.Open(ctx, l.store, gateID, session.Options{
			OnChange:  func(v session.View) { printView(os.Stdout, v) },
			Notifier:  notifier,
			Confirmer: confirmer(),
			Logger:    logger,
		})
		if err != nil {
			return err
		}
		defer sess.Close()

		fmt.Printf("watching gate %s (session %s); type help for commands\n", gateID, sess.ID())
		printView(os.Stdout, sess.View())

		done := make(chan error, 1)
		go func() { done <- runConsole(ctx, sess, stdin, os.Stdout) }()

		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			fmt.Println()
			return nil
		}
	},
}

func init() {
	watchCmd.Flags().Duration("interval", 2*time.Second, "poll interval when NATS is not configured")
}
