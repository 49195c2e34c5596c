package main

import (
	"bufio"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/gatekeep/internal/client"
	"github.com/alfredjeanlab/gatekeep/internal/session"
	"github.com/alfredjeanlab/gatekeep/internal/ui"
)

var (
	httpURL    string
	token      string
	natsURL    string
	jsonOutput bool
	assumeYes  bool
	verbose    bool

	gateClient client.GateClient

	// stdin is shared by console commands and confirmation prompts.
	stdin = bufio.NewReader(os.Stdin)
)

var rootCmd = &cobra.Command{
	Use:          "gk <command>",
	Short:        "Operator console for gatekeep access gates",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		gateClient = client.NewHTTPClient(httpURL, token)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if gateClient != nil {
			gateClient.Close()
		}
	},
}

// cliLogger logs warnings to stderr, or everything with --verbose.
func cliLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// confirmer picks how destructive commands are confirmed: --yes accepts,
// a terminal is asked, anything else refuses.
func confirmer() session.Confirmer {
	switch {
	case assumeYes:
		return ui.AutoConfirm{}
	case ui.IsInteractive():
		return ui.NewPrompt(stdin, os.Stdout)
	default:
		return ui.Refuse{}
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", defaultToken(), "bearer token")
	rootCmd.PersistentFlags().StringVar(&natsURL, "nats-url", defaultNATSURL(), "NATS URL for the change feed (empty = polling)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "answer yes to confirmation prompts")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	rootCmd.AddGroup(
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "control", Title: "Gate control:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false

	// Views
	rootCmd.AddCommand(gatesCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(watchCmd)

	// Gate control
	rootCmd.AddCommand(flapCmd)
	rootCmd.AddCommand(tiltCmd)
	rootCmd.AddCommand(overrideCmd)
	rootCmd.AddCommand(userTiltCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
