package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/gatekeep/internal/blob"
	"github.com/alfredjeanlab/gatekeep/internal/model"
	"github.com/alfredjeanlab/gatekeep/internal/session"
	"github.com/alfredjeanlab/gatekeep/internal/ui"
)

func printJSON(w io.Writer, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(data))
}

func openClosed(open bool) string {
	if open {
		return "open"
	}
	return "closed"
}

func yesNo(b *bool) string {
	if b == nil {
		return "-"
	}
	if *b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// printGateInfo prints the gate block, or the unavailable message.
func printGateInfo(w io.Writer, g *model.Gate) {
	if g == nil {
		fmt.Fprintln(w, ui.RenderMuted("gate information not available"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	fmt.Fprintf(tw, "Status:\t%s\n", orDash(string(g.Status)))
	fmt.Fprintf(tw, "Height sensor:\t%g\n", g.MaxHeight())
	fmt.Fprintf(tw, "Front flap:\t%s\n", openClosed(g.FrontFlap))
	fmt.Fprintf(tw, "Back flap:\t%s\n", openClosed(g.BackFlap))
	tilt := orDash(string(g.TiltMode))
	if g.ToTilt {
		tilt += " (requested)"
	}
	fmt.Fprintf(tw, "Tilt:\t%s\n", tilt)
	fmt.Fprintf(tw, "People:\t%s\n", yesNo(g.People))
	if g.Alerts != "" {
		fmt.Fprintf(tw, "Alert:\t%s\n", ui.RenderWarn(g.Alerts))
	}
	tw.Flush()
}

func scanStatus(u *model.User) string {
	switch {
	case u.ScanStatus == "":
		return "N/A"
	case u.ScanStatus == model.ScanApproved:
		return ui.RenderOK(u.ScanStatus)
	default:
		return ui.RenderFail(u.ScanStatus)
	}
}

// printUsers lists users with their resolved image URLs. A nil resolver
// skips the images.
func printUsers(ctx context.Context, w io.Writer, users []model.User, r blob.Resolver, logger *slog.Logger) {
	if len(users) == 0 {
		fmt.Fprintln(w, "No users found for this gate")
		return
	}
	for i := range users {
		u := &users[i]
		fmt.Fprintf(w, "\n%s  %s\n", ui.RenderAccent(u.ID), orDash(u.Name))
		fmt.Fprintf(w, "  Passport no:  %s\n", orDash(u.PassportNo))
		fmt.Fprintf(w, "  Scan status:  %s\n", scanStatus(u))
		if u.Override {
			fmt.Fprintln(w, "  Override:     yes")
		}
		if r == nil {
			continue
		}
		for _, kind := range model.ImageKinds {
			url := blob.ResolveOrPlaceholder(ctx, r, u.ImagePath(kind), logger)
			fmt.Fprintf(w, "  %-13s %s\n", string(kind)+":", url)
		}
	}
}

// printView prints the one-line gate summary used by the console.
func printView(w io.Writer, v session.View) {
	if v.Gate == nil {
		fmt.Fprintf(w, "[%s] %s\n", v.GateID, ui.RenderMuted("gate information not available"))
		return
	}
	g := v.Gate
	processed := 0
	for i := range v.Users {
		if v.Users[i].Processed() {
			processed++
		}
	}
	parts := []string{
		"status=" + orDash(string(g.Status)),
		"front=" + openClosed(g.FrontFlap),
		"back=" + openClosed(g.BackFlap),
		"tilt=" + orDash(string(g.TiltMode)),
		fmt.Sprintf("height=%g", g.MaxHeight()),
		fmt.Sprintf("users=%d/%d", processed, len(v.Users)),
	}
	line := fmt.Sprintf("[%s] %s", v.GateID, strings.Join(parts, " "))
	if v.AllProcessed {
		line += " " + ui.RenderOK("all processed")
	}
	if len(v.PendingOverrides) > 0 {
		line += " " + ui.RenderWarn("pending: "+strings.Join(v.PendingOverrides, ","))
	}
	fmt.Fprintln(w, line)
}
