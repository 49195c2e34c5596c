// Package dashboard summarizes every gate for the overview screen: usage
// time since the gate session started, an urgency level, the height
// sensor reading and the presence flag.
package dashboard

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/gatekeep/internal/docstore"
	"github.com/alfredjeanlab/gatekeep/internal/model"
	"github.com/alfredjeanlab/gatekeep/internal/ui"
)

// Level is the urgency of a gate session.
type Level string

const (
	LevelIdle    Level = "idle"    // no session running
	LevelActive  Level = "active"  // running for at most OverdueAfter
	LevelOverdue Level = "overdue" // running for longer than OverdueAfter
)

// OverdueAfter is the number of whole minutes a session may run before it
// is flagged.
const OverdueAfter = 5

// Row is one gate on the dashboard.
type Row struct {
	ID        string           `json:"id"`
	Status    model.GateStatus `json:"status,omitempty"`
	InUse     bool             `json:"in_use"`
	Usage     string           `json:"usage"`
	Level     Level            `json:"level"`
	MaxHeight float64          `json:"max_height"`
	People    *bool            `json:"people,omitempty"`
}

func elapsed(start *time.Time, now time.Time) time.Duration {
	if start == nil {
		return 0
	}
	return max(now.Sub(*start), 0)
}

// UsageTime formats the time since start as M:SS, or 0:00 without a start.
func UsageTime(start *time.Time, now time.Time) string {
	secs := int(elapsed(start, now) / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// LevelFor classifies a session by its whole elapsed minutes.
func LevelFor(start *time.Time, now time.Time) Level {
	if start == nil {
		return LevelIdle
	}
	if int(elapsed(start, now)/time.Minute) > OverdueAfter {
		return LevelOverdue
	}
	return LevelActive
}

// Board holds the latest gates collection.
type Board struct {
	logger *slog.Logger

	mu    sync.Mutex
	gates []model.Gate
}

func NewBoard(logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{logger: logger.With("component", "dashboard")}
}

// Apply replaces the board with a gates collection snapshot. Gates missing
// from the snapshot disappear. A snapshot with an error, or one that fails
// to decode, leaves the board unchanged.
func (b *Board) Apply(s docstore.Snapshot) error {
	if s.Err != nil {
		return s.Err
	}
	gates := make([]model.Gate, 0, len(s.Docs))
	for i := range s.Docs {
		var g model.Gate
		if err := s.Docs[i].Decode(&g); err != nil {
			return err
		}
		g.ID = s.Docs[i].ID
		gates = append(gates, g)
	}
	slices.SortFunc(gates, func(a, b model.Gate) int { return cmp.Compare(a.ID, b.ID) })

	b.mu.Lock()
	b.gates = gates
	b.mu.Unlock()
	return nil
}

// Rows computes the dashboard at now.
func (b *Board) Rows(now time.Time) []Row {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows := make([]Row, 0, len(b.gates))
	for i := range b.gates {
		g := &b.gates[i]
		rows = append(rows, Row{
			ID:        g.ID,
			Status:    g.Status,
			InUse:     g.Timestamp != nil,
			Usage:     UsageTime(g.Timestamp, now),
			Level:     LevelFor(g.Timestamp, now),
			MaxHeight: g.MaxHeight(),
			People:    g.People,
		})
	}
	return rows
}

// Run feeds the board from the gates collection and calls render on every
// snapshot and every tick, until ctx ends or the feed closes.
func Run(ctx context.Context, sub docstore.Subscriber, b *Board, tick time.Duration, render func([]Row)) error {
	ch, cancel, err := sub.Subscribe(ctx, docstore.GatesPath)
	if err != nil {
		return fmt.Errorf("subscribing to gates: %w", err)
	}
	defer cancel()

	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			if err := b.Apply(snap); err != nil {
				b.logger.Warn("gates snapshot not applied", "err", err)
				continue
			}
		case <-ticker.C:
		}
		render(b.Rows(time.Now()))
	}
}

// Print writes rows as a table.
func Print(w io.Writer, rows []Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No gates found in the database")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GATE\tSTATUS\tUSAGE\tMAX HEIGHT\tPEOPLE")
	for _, r := range rows {
		usage := ui.RenderMuted("Not in use")
		switch r.Level {
		case LevelActive:
			usage = ui.RenderOK(r.Usage + " minutes")
		case LevelOverdue:
			usage = ui.RenderWarn(r.Usage + " minutes")
		}
		status := string(r.Status)
		if status == "" {
			status = "-"
		}
		people := "-"
		if r.People != nil {
			people = fmt.Sprint(*r.People)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%s\n", ui.RenderAccent(r.ID), status, usage, r.MaxHeight, people)
	}
	tw.Flush()
}
