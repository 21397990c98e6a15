package build

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/events"
	"git.home.luguber.info/inful/pkgbuilder/internal/history"
	"git.home.luguber.info/inful/pkgbuilder/internal/process"
)

type memPublisher struct {
	mu     sync.Mutex
	events []events.BuildEvent
}

func (m *memPublisher) Publish(_ context.Context, ev events.BuildEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memPublisher) Close() error { return nil }

func TestObservers(t *testing.T) {
	store, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	pub := &memPublisher{}
	obs := NewPublishObserver(pub, false)
	b := builderFunc(func(_ context.Context, _ Request, sink process.Sink) (string, error) {
		sink("Executing ResourceCompile")
		return "/proj/build/app-signed.apk", nil
	})
	svc := NewService(
		WithBuilder(config.StrategyLocal, b),
		WithObserver(&HistoryObserver{Store: store}),
		WithObserver(obs),
		fixedID("build-7"),
	)
	require.NoError(t, svc.StartBuild("/proj", nil))
	svc.Wait()
	require.NoError(t, obs.Close())

	t.Run("history keeps every event", func(t *testing.T) {
		recs, err := store.ByBuild(t.Context(), "build-7")
		require.NoError(t, err)
		require.Len(t, recs, 3)
		require.Equal(t, history.KindStarted, recs[0].Kind)
		require.Equal(t, history.KindLog, recs[1].Kind)
		require.Equal(t, history.KindSuccess, recs[2].Kind)
		require.Equal(t, "/proj/build/app-signed.apk", recs[2].Message)

		sums, err := store.Builds(t.Context(), 10)
		require.NoError(t, err)
		require.Len(t, sums, 1)
		require.Equal(t, history.KindSuccess, sums[0].Outcome)
		require.WithinDuration(t, time.Now(), sums[0].Finished, time.Minute)
	})

	t.Run("publisher skips log lines", func(t *testing.T) {
		require.Len(t, pub.events, 2)
		require.Equal(t, "started", pub.events[0].Kind)
		require.Equal(t, "success", pub.events[1].Kind)
		require.Equal(t, "/proj/build/app-signed.apk", pub.events[1].Artifact)
	})
}

// stalledPublisher blocks every Publish until release is closed.
type stalledPublisher struct {
	memPublisher
	release chan struct{}
}

func (s *stalledPublisher) Publish(ctx context.Context, ev events.BuildEvent) error {
	<-s.release
	return s.memPublisher.Publish(ctx, ev)
}

func TestPublishObserverDoesNotDelayCallbacks(t *testing.T) {
	pub := &stalledPublisher{release: make(chan struct{})}
	obs := NewPublishObserver(pub, true)
	svc := NewService(
		WithBuilder(config.StrategyLocal, builderFunc(func(_ context.Context, _ Request, sink process.Sink) (string, error) {
			sink("Executing PackageSign")
			return "/proj/build/app-signed.apk", nil
		})),
		WithObserver(obs),
	)
	cb := &recorder{}
	require.NoError(t, svc.StartBuild("/proj", cb))

	finished := make(chan struct{})
	go func() {
		svc.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("terminal callback waited on the publisher")
	}
	require.Equal(t, []string{"/proj/build/app-signed.apk"}, cb.success)

	close(pub.release)
	require.NoError(t, obs.Close())
	require.Len(t, pub.events, 3)
	require.Equal(t, "log", pub.events[1].Kind)

	// events after Close are ignored
	obs.Observe(t.Context(), Event{Kind: EventSuccess})
	require.Len(t, pub.events, 3)
}
