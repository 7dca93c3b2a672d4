package destination

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GabrielNunesIT/motion-relay/internal/config"
	"github.com/GabrielNunesIT/motion-relay/internal/model"
	"github.com/GabrielNunesIT/motion-relay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allCaps() config.Policy {
	return config.Policy{Active: true, SendMessages: true, SendImages: true, SendVideos: true}
}

func started(t *testing.T, ft *testutil.FakeTransport, p config.Policy, opts ...Option) *Destination {
	t.Helper()

	d := New(ft, p, testutil.NewTestLogger(), opts...)
	require.NoError(t, d.Init(context.Background()))
	require.NoError(t, d.Start(context.Background()))
	return d
}

func TestDestination_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("start before init fails", func(t *testing.T) {
		ft := testutil.NewFakeTransport("Fake")
		d := New(ft, allCaps(), testutil.NewTestLogger())

		err := d.Start(ctx)
		assert.ErrorIs(t, err, ErrNotInitialized)
		assert.Equal(t, model.StateUninitialized, d.State())
		_, handshakes, _, _ := ft.Calls()
		assert.Zero(t, handshakes)
	})

	t.Run("init failure keeps state", func(t *testing.T) {
		ft := testutil.NewFakeTransport("Fake")
		ft.OpenErr = errors.New("bad credentials")
		d := New(ft, allCaps(), testutil.NewTestLogger())

		assert.Error(t, d.Init(ctx))
		assert.Equal(t, model.StateUninitialized, d.State())
	})

	t.Run("handshake failure keeps initialized", func(t *testing.T) {
		ft := testutil.NewFakeTransport("Fake")
		ft.HandshakeErr = errors.New("unauthorized")
		d := New(ft, allCaps(), testutil.NewTestLogger())

		require.NoError(t, d.Init(ctx))
		assert.Error(t, d.Start(ctx))
		assert.Equal(t, model.StateInitialized, d.State())
	})

	t.Run("full cycle is idempotent", func(t *testing.T) {
		ft := testutil.NewFakeTransport("Fake")
		d := New(ft, allCaps(), testutil.NewTestLogger())

		require.NoError(t, d.Init(ctx))
		require.NoError(t, d.Init(ctx))
		require.NoError(t, d.Start(ctx))
		require.NoError(t, d.Start(ctx))
		assert.Equal(t, model.StateStarted, d.State())

		assert.ErrorIs(t, d.Cleanup(), ErrNotStopped)

		require.NoError(t, d.Stop())
		assert.Equal(t, model.StateStopped, d.State())
		assert.ErrorIs(t, d.Stop(), ErrNotStarted)

		require.NoError(t, d.Cleanup())
		require.NoError(t, d.Cleanup())
		assert.Equal(t, model.StateCleanedUp, d.State())
		assert.ErrorIs(t, d.Stop(), ErrCleanedUp)

		opens, handshakes, closes, wipes := ft.Calls()
		assert.Equal(t, 1, opens)
		assert.Equal(t, 1, handshakes)
		assert.Equal(t, 1, closes)
		assert.Equal(t, 1, wipes)
	})

	t.Run("cleanup without init fails", func(t *testing.T) {
		d := New(testutil.NewFakeTransport("Fake"), allCaps(), testutil.NewTestLogger())
		assert.ErrorIs(t, d.Cleanup(), ErrNotInitialized)
	})

	t.Run("cleaned up can init again", func(t *testing.T) {
		ft := testutil.NewFakeTransport("Fake")
		d := started(t, ft, allCaps())
		require.NoError(t, d.Stop())
		require.NoError(t, d.Cleanup())

		require.NoError(t, d.Init(ctx))
		assert.Equal(t, model.StateInitialized, d.State())
	})
}

func TestDestination_CapabilityGating(t *testing.T) {
	ctx := context.Background()
	ft := testutil.NewFakeTransport("Fake")
	ft.TextErr = errors.New("must not be called")
	ft.FileErr = errors.New("must not be called")

	// Not even started: vacuous success comes before the state check.
	d := New(ft, config.Policy{Active: true}, testutil.NewTestLogger())

	sent, err := d.SendMessage(ctx, "body", "subject", true)
	assert.NoError(t, err)
	assert.True(t, sent)
	assert.NoError(t, d.SendImage(ctx, model.NewCapturedAsset("/a.jpg", "s", "")))
	assert.NoError(t, d.SendVideo(ctx, model.NewCapturedAsset("/a.mp4", "s", "")))

	assert.Empty(t, ft.Texts())
	assert.Empty(t, ft.Files())
}

func TestDestination_SendRequiresStarted(t *testing.T) {
	ctx := context.Background()
	ft := testutil.NewFakeTransport("Fake")
	d := New(ft, allCaps(), testutil.NewTestLogger())

	sent, err := d.SendMessage(ctx, "body", "subject", true)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.False(t, sent)
	assert.ErrorIs(t, d.SendImage(ctx, model.NewCapturedAsset("/a.jpg", "s", "")), ErrNotStarted)
	assert.Empty(t, ft.Files())
}

func TestDestination_RateLimit(t *testing.T) {
	ctx := context.Background()
	p := allCaps()
	p.MessageInterval = 60 * time.Second

	t.Run("second send within interval is skipped", func(t *testing.T) {
		clock := testutil.FixedClock()
		ft := testutil.NewFakeTransport("Fake")
		d := started(t, ft, p, WithClock(clock))

		sent, err := d.SendMessage(ctx, "one", "s", false)
		require.NoError(t, err)
		assert.True(t, sent)

		clock.Advance(30 * time.Second)
		sent, err = d.SendMessage(ctx, "two", "s", false)
		require.NoError(t, err)
		assert.False(t, sent)

		assert.Len(t, ft.Texts(), 1)
	})

	t.Run("send after interval", func(t *testing.T) {
		clock := testutil.FixedClock()
		ft := testutil.NewFakeTransport("Fake")
		d := started(t, ft, p, WithClock(clock))

		_, _ = d.SendMessage(ctx, "one", "s", false)
		clock.Advance(61 * time.Second)
		sent, err := d.SendMessage(ctx, "two", "s", false)
		require.NoError(t, err)
		assert.True(t, sent)
		assert.Len(t, ft.Texts(), 2)
		assert.Equal(t, clock.Now(), d.LastSent())
	})

	t.Run("force bypasses interval", func(t *testing.T) {
		clock := testutil.FixedClock()
		ft := testutil.NewFakeTransport("Fake")
		d := started(t, ft, p, WithClock(clock))

		for i := 0; i < 3; i++ {
			sent, err := d.SendMessage(ctx, "forced", "s", true)
			require.NoError(t, err)
			assert.True(t, sent)
		}
		assert.Len(t, ft.Texts(), 3)
	})

	t.Run("forced send leaves interval untouched", func(t *testing.T) {
		clock := testutil.FixedClock()
		ft := testutil.NewFakeTransport("Fake")
		d := started(t, ft, p, WithClock(clock))

		sent, err := d.SendMessage(ctx, "started", "s", true)
		require.NoError(t, err)
		assert.True(t, sent)
		assert.True(t, d.LastSent().IsZero())

		clock.Advance(10 * time.Second)
		sent, err = d.SendMessage(ctx, "motion", "s", false)
		require.NoError(t, err)
		assert.True(t, sent)
		assert.Equal(t, clock.Now(), d.LastSent())
		assert.Len(t, ft.Texts(), 2)
	})

	t.Run("prefix applies to body and subject", func(t *testing.T) {
		pp := allCaps()
		pp.Prefix = "[cam] "
		ft := testutil.NewFakeTransport("Fake")
		d := started(t, ft, pp)

		_, err := d.SendMessage(ctx, "body", "subject", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"[cam] subject|[cam] body"}, ft.Texts())
	})

	t.Run("transport error", func(t *testing.T) {
		ft := testutil.NewFakeTransport("Fake")
		ft.TextErr = errors.New("timeout")
		d := started(t, ft, p)

		sent, err := d.SendMessage(ctx, "body", "s", true)
		assert.Error(t, err)
		assert.False(t, sent)
	})
}

func TestDestination_AsyncMessages(t *testing.T) {
	ctx := context.Background()
	ft := testutil.NewFakeTransport("Mail")
	ft.Gate = make(chan struct{})
	d := started(t, ft, allCaps(), WithAsyncMessages())

	assert.True(t, d.IsFinished())

	sent, err := d.SendMessage(ctx, "body", "subject", true)
	require.NoError(t, err)
	assert.True(t, sent)
	assert.False(t, d.IsFinished())
	assert.Equal(t, int64(1), d.Outstanding())

	close(ft.Gate)
	assert.Eventually(t, d.IsFinished, time.Second, 5*time.Millisecond)
	assert.Len(t, ft.Texts(), 1)
}

func TestDestination_SendFile(t *testing.T) {
	ctx := context.Background()

	t.Run("video only", func(t *testing.T) {
		ft := testutil.NewFakeTransport("Fake")
		d := started(t, ft, config.Policy{Active: true, SendVideos: true})

		require.NoError(t, d.SendImage(ctx, model.NewCapturedAsset("/a.jpg", "s", "")))
		require.NoError(t, d.SendVideo(ctx, model.NewCapturedAsset("/a.mp4", "s", "")))

		files := ft.Files()
		require.Len(t, files, 1)
		assert.Equal(t, model.KindVideo, files[0].Kind)
	})

	t.Run("failure is returned", func(t *testing.T) {
		ft := testutil.NewFakeTransport("Fake")
		ft.FileErr = errors.New("quota exceeded")
		d := started(t, ft, allCaps())

		err := d.SendImage(ctx, model.NewCapturedAsset("/a.jpg", "s", ""))
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "quota exceeded")
	})
}
