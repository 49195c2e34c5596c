package main

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/gatekeep/internal/blob"
	"github.com/alfredjeanlab/gatekeep/internal/docstore"
	"github.com/alfredjeanlab/gatekeep/internal/model"
	"github.com/alfredjeanlab/gatekeep/internal/session"
	"github.com/alfredjeanlab/gatekeep/internal/ui"
)

// gateDetail is the JSON form of `gk show`.
type gateDetail struct {
	ID    string       `json:"id"`
	Gate  *model.Gate  `json:"gate"`
	Users []model.User `json:"users"`
}

// loadGateDetail reads a gate and its users once.
func loadGateDetail(ctx context.Context, r docstore.Reader, gateID string) (*gateDetail, error) {
	var cache session.Cache
	gateSnap := docstore.Read(ctx, r, docstore.GatePath(gateID))
	if gateSnap.Err != nil {
		return nil, gateSnap.Err
	}
	if err := cache.ApplyGate(gateSnap); err != nil {
		return nil, err
	}
	usersSnap := docstore.Read(ctx, r, docstore.UsersPath(gateID))
	if usersSnap.Err != nil {
		return nil, usersSnap.Err
	}
	if err := cache.ApplyUsers(usersSnap); err != nil {
		return nil, err
	}
	users := cache.Users()
	d := &gateDetail{ID: gateID, Gate: cache.Gate(), Users: []model.User{}}
	for _, id := range slices.Sorted(maps.Keys(users)) {
		d.Users = append(d.Users, *users[id])
	}
	return d, nil
}

var showCmd = &cobra.Command{
	Use:     "show <gate>",
	Short:   "Show a gate and its users",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noImages, _ := cmd.Flags().GetBool("no-images")
		d, err := loadGateDetail(cmd.Context(), gateClient, args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(os.Stdout, d)
			return nil
		}

		var resolver blob.Resolver
		if !noImages {
			resolver = blob.ResolverFunc(gateClient.ResolveBlob)
		}
		fmt.Printf("Gate %s\n", ui.RenderAccent(d.ID))
		printGateInfo(os.Stdout, d.Gate)
		printUsers(cmd.Context(), os.Stdout, d.Users, resolver, cliLogger())
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("no-images", false, "do not resolve image URLs")
}
