package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/alfredjeanlab/gatekeep/internal/model"
	"github.com/alfredjeanlab/gatekeep/internal/session"
)

const consoleHelp = `commands:
  front open|close     move the front flap
  back open|close      move the back flap
  tilt low|original|high
  override <user>      manually approve a user
  user-tilt <user> <direction>
  pending              list users awaiting an override
  status               show the gate
  help
  quit`

// gateConsole is the part of a session the console drives.
type gateConsole interface {
	SetFrontFlap(ctx context.Context, open bool) error
	SetBackFlap(ctx context.Context, open bool) error
	SetTilt(ctx context.Context, mode model.TiltMode) error
	OverrideUser(ctx context.Context, userID string) error
	SetUserTilt(ctx context.Context, userID, direction string) error
	PendingOverrides() []string
	View() session.View
}

var errQuit = errors.New("quit")

// parseOpenClose accepts open/close and a few synonyms.
func parseOpenClose(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "open", "up", "on":
		return true, nil
	case "close", "closed", "down", "off":
		return false, nil
	}
	return false, fmt.Errorf("expected open or close, got %q", s)
}

// execute runs one console line.
func execute(ctx context.Context, g gateConsole, line string, out io.Writer) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	want := func(n int, usage string) error {
		if len(args) != n {
			return fmt.Errorf("usage: %s", usage)
		}
		return nil
	}

	switch cmd {
	case "quit", "exit", "q":
		return errQuit
	case "help", "?":
		fmt.Fprintln(out, consoleHelp)
		return nil
	case "status":
		printView(out, g.View())
		return nil
	case "pending":
		pending := g.PendingOverrides()
		if len(pending) == 0 {
			fmt.Fprintln(out, "no users awaiting an override")
			return nil
		}
		fmt.Fprintln(out, "awaiting override: "+strings.Join(pending, ", "))
		return nil
	case "front", "back":
		if err := want(1, cmd+" open|close"); err != nil {
			return err
		}
		open, err := parseOpenClose(args[0])
		if err != nil {
			return err
		}
		if cmd == "front" {
			return g.SetFrontFlap(ctx, open)
		}
		return g.SetBackFlap(ctx, open)
	case "tilt":
		if err := want(1, "tilt low|original|high"); err != nil {
			return err
		}
		mode, err := model.ParseTiltMode(args[0])
		if err != nil {
			return err
		}
		return g.SetTilt(ctx, mode)
	case "override":
		if err := want(1, "override <user>"); err != nil {
			return err
		}
		return g.OverrideUser(ctx, args[0])
	case "user-tilt":
		if err := want(2, "user-tilt <user> <direction>"); err != nil {
			return err
		}
		return g.SetUserTilt(ctx, args[0], args[1])
	}
	return fmt.Errorf("unknown command %q (try help)", cmd)
}

// runConsole reads commands from in until quit or end of input. Command
// errors are reported and the console keeps going.
func runConsole(ctx context.Context, g gateConsole, in *bufio.Reader, out io.Writer) error {
	for {
		fmt.Fprint(out, "> ")
		line, err := in.ReadString('\n')
		if line != "" {
			switch cerr := execute(ctx, g, line, out); {
			case errors.Is(cerr, errQuit):
				return nil
			case errors.Is(cerr, session.ErrCancelled):
				fmt.Fprintln(out, "cancelled")
			case cerr != nil:
				fmt.Fprintln(out, "error: "+cerr.Error())
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading console input: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
