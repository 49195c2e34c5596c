package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/gatekeep/internal/dashboard"
	"github.com/alfredjeanlab/gatekeep/internal/docstore"
	"github.com/alfredjeanlab/gatekeep/internal/ui"
)

var gatesCmd = &cobra.Command{
	Use:     "gates",
	Short:   "List every gate with its usage time",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetDuration("interval")
		logger := cliLogger()
		board := dashboard.NewBoard(logger)

		if !watch {
			if err := board.Apply(docstore.Read(cmd.Context(), gateClient, docstore.GatesPath)); err != nil {
				return err
			}
			rows := board.Rows(time.Now())
			if jsonOutput {
				printJSON(os.Stdout, rows)
				return nil
			}
			dashboard.Print(os.Stdout, rows)
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		l, err := openLive(gateClient, natsURL, interval, logger)
		if err != nil {
			return err
		}
		defer l.close()

		clearScreen := ui.IsInteractive() && !jsonOutput
		return dashboard.Run(ctx, l.store, board, time.Second, func(rows []dashboard.Row) {
			if jsonOutput {
				printJSON(os.Stdout, rows)
				return
			}
			if clearScreen {
				fmt.Print("\033[H\033[2J")
			}
			dashboard.Print(os.Stdout, rows)
		})
	},
}

func init() {
	gatesCmd.Flags().BoolP("watch", "w", false, "keep the board updated")
	gatesCmd.Flags().Duration("interval", 2*time.Second, "poll interval when NATS is not configured")
}
