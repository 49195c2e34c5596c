package main

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/gatekeep/internal/docstore"
	"github.com/alfredjeanlab/gatekeep/internal/events"
	"github.com/alfredjeanlab/gatekeep/internal/notify"
)

// liveStore pairs the HTTP client with a change feed.
type liveStore struct {
	docstore.Backend
	docstore.Subscriber
}

// live is the document store plus the optional notification bus used by
// the interactive commands.
type live struct {
	store docstore.Store
	bus   notify.Notifier // nil without NATS
	close func()
}

// openLive builds a store whose change feed comes from NATS when a URL is
// configured, or from polling every interval otherwise.
func openLive(backend docstore.Backend, natsURL string, interval time.Duration, logger *slog.Logger) (*live, error) {
	if natsURL == "" {
		logger.Debug("no NATS URL; polling for changes", "interval", interval)
		return &live{
			store: liveStore{Backend: backend, Subscriber: docstore.NewPoller(backend, interval, logger)},
			close: func() {},
		}, nil
	}

	var feed atomic.Pointer[docstore.Feed]
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats: disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("nats: reconnected")
			if f := feed.Load(); f != nil {
				f.Resync()
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	f := docstore.NewFeed(backend, sub, logger)
	feed.Store(f)

	l := &live{
		store: liveStore{Backend: backend, Subscriber: f},
		close: func() { sub.Close() },
	}
	if pub, err := events.NewNATSPublisher(natsURL); err != nil {
		logger.Warn("operator notifications stay local", "err", err)
	} else {
		l.bus = notify.NewBus(pub, logger)
		l.close = func() {
			pub.Close()
			sub.Close()
		}
	}
	return l, nil
}
