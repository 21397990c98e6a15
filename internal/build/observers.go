package build

import (
	"context"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/pkgbuilder/internal/events"
	"git.home.luguber.info/inful/pkgbuilder/internal/history"
	"git.home.luguber.info/inful/pkgbuilder/internal/logfields"
)

// HistoryObserver appends every event to a history store.
type HistoryObserver struct {
	Store history.Store
}

func (h *HistoryObserver) Observe(ctx context.Context, ev Event) {
	rec := history.Record{
		BuildID:  ev.BuildID,
		Kind:     historyKind(ev.Kind),
		Strategy: ev.Strategy,
		Message:  ev.Message,
		Time:     ev.Time,
	}
	if err := h.Store.Append(ctx, rec); err != nil {
		slog.Warn("Failed to record build event", logfields.BuildID(ev.BuildID), logfields.Error(err))
	}
}

func historyKind(k EventKind) history.Kind {
	switch k {
	case EventStarted:
		return history.KindStarted
	case EventSuccess:
		return history.KindSuccess
	case EventFailure:
		return history.KindFailure
	default:
		return history.KindLog
	}
}

// publishQueueSize bounds the events waiting for a slow broker.
const publishQueueSize = 256

// PublishObserver forwards lifecycle events to a publisher from its own
// goroutine, so a slow or unreachable broker never holds up callbacks. Log
// lines are only published when includeLogs is set. Events arriving while the
// queue is full are dropped.
type PublishObserver struct {
	publisher   events.Publisher
	includeLogs bool

	mu     sync.RWMutex
	closed bool
	queue  chan events.BuildEvent
	done   chan struct{}
}

// NewPublishObserver starts the publishing goroutine. Close stops it.
func NewPublishObserver(pub events.Publisher, includeLogs bool) *PublishObserver {
	p := &PublishObserver{
		publisher:   pub,
		includeLogs: includeLogs,
		queue:       make(chan events.BuildEvent, publishQueueSize),
		done:        make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *PublishObserver) run() {
	defer close(p.done)
	for ev := range p.queue {
		if err := p.publisher.Publish(context.Background(), ev); err != nil {
			slog.Warn("Failed to publish build event", logfields.BuildID(ev.BuildID), logfields.Error(err))
		}
	}
}

func (p *PublishObserver) Observe(_ context.Context, ev Event) {
	if ev.Kind == EventLog && !p.includeLogs {
		return
	}
	out := events.BuildEvent{
		BuildID:   ev.BuildID,
		Kind:      ev.Kind.String(),
		Strategy:  ev.Strategy,
		Message:   ev.Message,
		Timestamp: ev.Time,
	}
	if ev.Kind == EventSuccess {
		out.Artifact = ev.Message
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- out:
	default:
		slog.Warn("Dropped build event, publisher is behind", logfields.BuildID(ev.BuildID))
	}
}

// Close publishes what is already queued and waits for the goroutine to exit.
func (p *PublishObserver) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
	return nil
}
