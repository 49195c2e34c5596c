package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/gatekeep/internal/model"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage the gatekeep servers this CLI can talk to",
	GroupID: "system",
	// Remote subcommands only touch the local file; skip the root's client setup.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or replace a server",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !model.ValidID(name) {
			return fmt.Errorf("invalid remote name %q: use letters, digits, '-' or '_'", name)
		}
		token, _ := cmd.Flags().GetString("token")
		natsURL, _ := cmd.Flags().GetString("nats")
		r := Remote{URL: args[1], Token: token, NATSURL: natsURL}
		if err := r.validate(); err != nil {
			return err
		}

		var replaced bool
		err := editRemotes(func(cfg *RemotesConfig) error {
			_, replaced = cfg.Remotes[name]
			cfg.Remotes[name] = r
			return nil
		})
		if err != nil {
			return err
		}
		verb := "added"
		if replaced {
			verb = "updated"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q %s (%s)\n", name, verb, r.URL)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Forget a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := editRemotes(func(cfg *RemotesConfig) error {
			if _, ok := cfg.Remotes[name]; !ok {
				return fmt.Errorf("remote %q not found", name)
			}
			delete(cfg.Remotes, name)
			if cfg.Active == name {
				cfg.Active = ""
			}
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", name)
		return nil
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Point the CLI at a server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		err := editRemotes(func(cfg *RemotesConfig) error {
			if _, ok := cfg.Remotes[name]; !ok {
				return fmt.Errorf("remote %q not found", name)
			}
			cfg.Active = name
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "now using %q\n", name)
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List servers; * marks the one in use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(cfg.Remotes) == 0 {
			fmt.Fprintln(out, "no remotes configured; add one with 'gk remote add <name> <url>'")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tSERVER\tLIVE FEED\tTOKEN")
		for _, name := range slices.Sorted(maps.Keys(cfg.Remotes)) {
			r := cfg.Remotes[name]
			marker := "  "
			if name == cfg.Active {
				marker = "* "
			}
			feed := "polling"
			if r.NATSURL != "" {
				feed = r.NATSURL
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n", marker, name, r.URL, feed, maskToken(r.Token, "..."))
		}
		return w.Flush()
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show one server (defaults to the one in use)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadRemotesConfig()
		if err != nil {
			return err
		}
		name := cfg.Active
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return fmt.Errorf("no remote in use; name one or run 'gk remote use <name>'")
		}
		r, ok := cfg.Remotes[name]
		if !ok {
			return fmt.Errorf("remote %q not found", name)
		}
		return printRemote(cmd.OutOrStdout(), name, r, name == cfg.Active)
	},
}

func printRemote(out io.Writer, name string, r Remote, active bool) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if active {
		name += " (active)"
	}
	fmt.Fprintf(w, "name:\t%s\n", name)
	fmt.Fprintf(w, "server:\t%s\n", r.URL)
	if r.NATSURL != "" {
		fmt.Fprintf(w, "live feed:\t%s\n", r.NATSURL)
	} else {
		fmt.Fprintln(w, "live feed:\tpolling")
	}
	if r.Token != "" {
		fmt.Fprintf(w, "token:\t%s\n", maskToken(r.Token, "********"))
	}
	return w.Flush()
}

// maskToken keeps the first 8 characters of a token and replaces the rest
// with mask. Short tokens are shown as is.
func maskToken(token, mask string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + mask
}

func init() {
	remoteAddCmd.Flags().String("token", "", "bearer token for the server")
	remoteAddCmd.Flags().String("nats", "", "NATS URL for live gate updates (omit to poll)")

	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteListCmd, remoteUseCmd, remoteShowCmd)
}
