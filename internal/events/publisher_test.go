package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pkgbuilder/internal/config"
	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
)

type fakeConn struct {
	subjects   []string
	payloads   [][]byte
	publishErr error
	flushErr   error
	drained    bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) FlushWithContext(context.Context) error { return f.flushErr }

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestPublish(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, "pkgbuilder.builds", 0)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	err := p.Publish(t.Context(), BuildEvent{BuildID: "b1", Kind: "success", Artifact: "/out/app.apk", Timestamp: ts})
	require.NoError(t, err)
	require.Equal(t, []string{"pkgbuilder.builds.success"}, fc.subjects)

	var got BuildEvent
	require.NoError(t, json.Unmarshal(fc.payloads[0], &got))
	require.Equal(t, "b1", got.BuildID)
	require.Equal(t, "/out/app.apk", got.Artifact)
	require.True(t, got.Timestamp.Equal(ts))

	require.NoError(t, p.Close())
	require.True(t, fc.drained)
}

func TestPublishErrors(t *testing.T) {
	t.Run("publish", func(t *testing.T) {
		p := newPublisher(&fakeConn{publishErr: stderrors.New("connection closed")}, "s", time.Second)
		err := p.Publish(t.Context(), BuildEvent{Kind: "log"})
		require.True(t, errors.HasCategory(err, errors.CategoryNetwork))
	})
	t.Run("flush", func(t *testing.T) {
		p := newPublisher(&fakeConn{flushErr: context.DeadlineExceeded}, "s", time.Second)
		err := p.Publish(t.Context(), BuildEvent{Kind: "log"})
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestNewNATSPublisherRequiresURL(t *testing.T) {
	_, err := NewNATSPublisher(&config.EventsConfig{})
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
}
