package docstore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Poller is the change feed used when no event bus is configured. It
// re-reads the path every interval and delivers a snapshot whenever the
// revision changes. Repeated read errors are delivered once until the
// next successful read.
type Poller struct {
	reader   Reader
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller creates a Poller over r.
func NewPoller(r Reader, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{reader: r, interval: interval, logger: logger.With("component", "poller")}
}

// Subscribe implements Subscriber.
func (p *Poller) Subscribe(ctx context.Context, path string) (<-chan Snapshot, func(), error) {
	parsed, err := subscribable(path)
	if err != nil {
		return nil, nil, err
	}
	path = parsed.String()

	out := make(chan Snapshot, feedBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(done) }) }

	go func() {
		defer close(out)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var (
			last    Snapshot
			started bool
			failing bool
		)
		for {
			s := Read(ctx, p.reader, path)
			switch {
			case s.Err != nil:
				if failing {
					s = Snapshot{}
				} else {
					p.logger.Debug("poll failed", "path", path, "err", s.Err)
				}
				failing = true
			case started && !failing && s.Revision == last.Revision:
				s = Snapshot{}
			default:
				failing = false
				started = true
				last = s
			}
			if s.Path != "" {
				select {
				case out <- s:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ticker.C:
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}
