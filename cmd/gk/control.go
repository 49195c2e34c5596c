package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/gatekeep/internal/docstore"
	"github.com/alfredjeanlab/gatekeep/internal/model"
	"github.com/alfredjeanlab/gatekeep/internal/notify"
	"github.com/alfredjeanlab/gatekeep/internal/session"
	"github.com/alfredjeanlab/gatekeep/internal/ui"
)

// newIssuer builds a command issuer that reports to the terminal.
func newIssuer(gateID string) (*session.Issuer, error) {
	if !model.ValidID(gateID) {
		return nil, fmt.Errorf("%w: gate id %q", docstore.ErrInvalidPath, gateID)
	}
	return session.NewIssuer(gateID, gateClient, session.Options{
		Notifier:  notify.NewTerminal(os.Stderr, ui.ShouldUseColor()),
		Confirmer: confirmer(),
		Logger:    cliLogger(),
	}), nil
}

// quietCancel turns an operator decline into a message instead of a
// failing exit status.
func quietCancel(err error) error {
	if errors.Is(err, session.ErrCancelled) {
		fmt.Println("cancelled")
		return nil
	}
	return err
}

var flapCmd = &cobra.Command{
	Use:     "flap <gate> front|back open|close",
	Short:   "Open or close a gate flap",
	GroupID: "control",
	Args:    cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		gateID, which := args[0], args[1]
		open, err := parseOpenClose(args[2])
		if err != nil {
			return err
		}
		if which != "front" && which != "back" {
			return fmt.Errorf("expected front or back, got %q", which)
		}
		issuer, err := newIssuer(gateID)
		if err != nil {
			return err
		}

		// Lifecycle transitions depend on the current status.
		var cache session.Cache
		snap := docstore.Read(cmd.Context(), gateClient, docstore.GatePath(gateID))
		if snap.Err != nil {
			return snap.Err
		}
		if err := cache.ApplyGate(snap); err != nil {
			return err
		}
		if cache.Gate() == nil {
			return session.ErrNoGate
		}

		if which == "front" {
			return quietCancel(issuer.SetFrontFlap(cmd.Context(), open, cache.Status()))
		}
		return quietCancel(issuer.SetBackFlap(cmd.Context(), open, cache.Status()))
	},
}

var tiltCmd = &cobra.Command{
	Use:     "tilt <gate> low|original|high",
	Short:   "Request a tilt mode",
	GroupID: "control",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, err := model.ParseTiltMode(args[1])
		if err != nil {
			return err
		}
		issuer, err := newIssuer(args[0])
		if err != nil {
			return err
		}
		return issuer.SetTilt(cmd.Context(), mode)
	},
}

var overrideCmd = &cobra.Command{
	Use:     "override <gate> <user>",
	Short:   "Manually approve a user whose scan failed",
	GroupID: "control",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		issuer, err := newIssuer(args[0])
		if err != nil {
			return err
		}
		return quietCancel(issuer.OverrideUser(cmd.Context(), args[1]))
	},
}

var userTiltCmd = &cobra.Command{
	Use:        "user-tilt <gate> <user> <direction>",
	Short:      "Write a per-user tilt request",
	GroupID:    "control",
	Args:       cobra.ExactArgs(3),
	Deprecated: "use 'gk tilt <gate> <mode>' instead",
	RunE: func(cmd *cobra.Command, args []string) error {
		issuer, err := newIssuer(args[0])
		if err != nil {
			return err
		}
		return issuer.SetUserTilt(cmd.Context(), args[1], args[2])
	},
}

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the server",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := gateClient.Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	},
}
