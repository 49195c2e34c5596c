// Package notify delivers transient operator notifications. Delivery is
// fire-and-forget: no acknowledgment and no ordering relative to store
// writes.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fatih/color"

	"github.com/alfredjeanlab/gatekeep/internal/events"
)

// Kind classifies a notification.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Notification is one operator-facing message.
type Notification struct {
	Kind   Kind      `json:"kind"`
	Title  string    `json:"title"`
	Body   string    `json:"body,omitempty"`
	GateID string    `json:"gate_id,omitempty"`
	At     time.Time `json:"at"`
}

// Notifier delivers notifications. Implementations must not block for long.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(n Notification) {
	for _, nn := range m {
		nn.Notify(n)
	}
}

// Terminal prints notifications as single coloured lines.
type Terminal struct {
	w       io.Writer
	noColor bool
}

// NewTerminal writes to w. Colour is disabled when useColor is false.
func NewTerminal(w io.Writer, useColor bool) *Terminal {
	return &Terminal{w: w, noColor: !useColor}
}

func (t *Terminal) Notify(n Notification) {
	var c *color.Color
	switch n.Kind {
	case KindSuccess:
		c = color.New(color.FgGreen)
	case KindError:
		c = color.New(color.FgRed, color.Bold)
	default:
		c = color.New(color.FgCyan)
	}
	if t.noColor {
		c.DisableColor()
	}
	line := c.Sprint(n.Title)
	if n.Body != "" {
		line += " " + n.Body
	}
	fmt.Fprintln(t.w, line)
}

// Log records notifications as structured log lines.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(n Notification) {
	level := slog.LevelInfo
	if n.Kind == KindError {
		level = slog.LevelWarn
	}
	l.logger.Log(context.Background(), level, n.Title, "kind", n.Kind, "body", n.Body, "gate_id", n.GateID)
}

// publishTimeout bounds a bus publish so a stalled connection cannot hold
// up the caller.
const publishTimeout = 2 * time.Second

// Bus publishes notifications on the gate's notification topic so other
// consoles watching the gate see them too.
type Bus struct {
	pub    events.Publisher
	logger *slog.Logger
}

func NewBus(pub events.Publisher, logger *slog.Logger) *Bus {
	return &Bus{pub: pub, logger: logger}
}

func (b *Bus) Notify(n Notification) {
	if n.GateID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.pub.Publish(ctx, events.NotifyTopic(n.GateID), n); err != nil {
		b.logger.Warn("publishing notification failed", "gate_id", n.GateID, "err", err)
	}
}
