package audit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/audit/mocks"
)

func buildEvent(t *testing.T) audit.Event {
	t.Helper()
	ev, err := audit.NewBuilder().Build(context.Background(), audit.Func("rotate_keys"), nil, nil, 0)
	require.NoError(t, err)
	return ev
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDispatcher_FansOutToEverySink(t *testing.T) {
	ctrl := gomock.NewController(t)
	first := mocks.NewMockSink(ctrl)
	second := mocks.NewMockSink(ctrl)
	ev := buildEvent(t)

	gomock.InOrder(
		first.EXPECT().Write(gomock.Any(), ev).Return(nil),
		second.EXPECT().Write(gomock.Any(), ev).Return(nil),
	)

	d := audit.NewDispatcher(discardLogger(), audit.WithSink("first", first), audit.WithSink("second", second))
	d.Dispatch(context.Background(), ev)
}

func TestDispatcher_SinkErrorIsIsolated(t *testing.T) {
	ctrl := gomock.NewController(t)
	broken := mocks.NewMockSink(ctrl)
	healthy := mocks.NewMockSink(ctrl)
	ev := buildEvent(t)

	broken.EXPECT().Write(gomock.Any(), ev).Return(errors.New("connection refused"))
	healthy.EXPECT().Write(gomock.Any(), ev).Return(nil)

	m := audit.NewMetrics(prometheus.NewRegistry())
	d := audit.NewDispatcher(discardLogger(),
		audit.WithSink("broken", broken),
		audit.WithSink("healthy", healthy),
		audit.WithMetrics(m),
	)
	d.Dispatch(context.Background(), ev)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDispatched))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkFailures.WithLabelValues("broken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkWrites.WithLabelValues("healthy")))
}

func TestDispatcher_NoSinks(t *testing.T) {
	d := audit.NewDispatcher(nil)
	assert.NotPanics(t, func() { d.Dispatch(context.Background(), buildEvent(t)) })
	assert.NoError(t, d.Close())

	var nilDispatcher *audit.Dispatcher
	assert.NotPanics(t, func() { nilDispatcher.Dispatch(context.Background(), buildEvent(t)) })
}

func TestDispatcher_CloseClosesSinksOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mocks.NewMockSink(ctrl)
	b := mocks.NewMockSink(ctrl)
	closeErr := errors.New("flush failed")

	a.EXPECT().Close().Return(nil).Times(1)
	b.EXPECT().Close().Return(closeErr).Times(1)

	m := audit.NewMetrics(prometheus.NewRegistry())
	d := audit.NewDispatcher(discardLogger(), audit.WithSink("a", a), audit.WithSink("b", b), audit.WithMetrics(m))

	err := d.Close()
	require.ErrorIs(t, err, closeErr)
	assert.ErrorIs(t, d.Close(), closeErr)

	// Writes after close are dropped, not delivered.
	d.Dispatch(context.Background(), buildEvent(t))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues("dispatcher", "closed")))
}

type pingingSink struct {
	*mocks.MockSink
	*mocks.MockPinger
}

func TestDispatcher_Health(t *testing.T) {
	ctrl := gomock.NewController(t)
	remote := pingingSink{MockSink: mocks.NewMockSink(ctrl), MockPinger: mocks.NewMockPinger(ctrl)}
	queued := pingingSink{MockSink: mocks.NewMockSink(ctrl), MockPinger: mocks.NewMockPinger(ctrl)}
	local := mocks.NewMockSink(ctrl)
	down := errors.New("broker unreachable")

	remote.MockPinger.EXPECT().Ping(gomock.Any()).Return(nil)
	queued.MockPinger.EXPECT().Ping(gomock.Any()).Return(down)
	queued.MockSink.EXPECT().Close().Return(nil)

	q := audit.NewAsyncWriter("queued", queued, audit.AsyncConfig{}, discardLogger(), nil)
	d := audit.NewDispatcher(discardLogger(),
		audit.WithSink("remote", remote),
		audit.WithSink("queued", q),
		audit.WithSink("local", local),
	)

	health := d.Health(context.Background())
	assert.Len(t, health, 2)
	assert.NoError(t, health["remote"])
	assert.ErrorIs(t, health["queued"], down)
	assert.NotContains(t, health, "local")

	require.NoError(t, q.Close())
}
