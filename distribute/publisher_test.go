package distribute

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/percept/errors"
	"github.com/c360/percept/event"
	"github.com/c360/percept/pipeline"
	"github.com/c360/percept/testutil"
)

func waitForMessage(t *testing.T, conn *testutil.MockConn, subject string) []byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if msgs := conn.Messages(subject); len(msgs) > 0 {
			return msgs[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no message on %s", subject)
	return nil
}

func TestNewPublisherValidation(t *testing.T) {
	bus := event.NewBus()
	defer bus.Close()

	_, err := NewPublisher(nil, bus)
	assert.Error(t, err)

	_, err = NewPublisher(testutil.NewMockConn(), nil)
	assert.Error(t, err)
}

func TestPublisherForwardsBusEvents(t *testing.T) {
	conn := testutil.NewMockConn()
	bus := event.NewBus()
	defer bus.Close()

	p, err := NewPublisher(conn, bus)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer func() { _ = p.Stop(time.Second) }()

	bus.Publish(event.New(event.TypeBreakerStateChanged, "face-a", map[string]any{
		"from": "closed",
		"to":   "open",
	}))

	raw := waitForMessage(t, conn, "percept.events.breaker.state_changed")
	var e event.Event
	require.NoError(t, json.Unmarshal(raw, &e))
	assert.Equal(t, event.TypeBreakerStateChanged, e.Type)
	assert.Equal(t, "face-a", e.Pipeline)
	assert.Equal(t, "open", e.Data["to"])
}

func TestPublishResult(t *testing.T) {
	conn := testutil.NewMockConn()
	bus := event.NewBus()
	defer bus.Close()

	p, err := NewPublisher(conn, bus)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer func() { _ = p.Stop(time.Second) }()

	res := pipeline.Result{
		Source:      "gaze",
		Data:        map[string]any{"x": 0.25, "y": 0.75},
		CollectedAt: time.Now(),
	}
	require.NoError(t, p.PublishResult(res))

	raw := waitForMessage(t, conn, "percept.results.gaze")
	var got pipeline.Result
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "gaze", got.Source)
	assert.Equal(t, 0.25, got.Data["x"])
}

func TestPublishResultRequiresStart(t *testing.T) {
	conn := testutil.NewMockConn()
	bus := event.NewBus()
	defer bus.Close()

	p, err := NewPublisher(conn, bus)
	require.NoError(t, err)

	err = p.PublishResult(pipeline.Result{Source: "gaze"})
	assert.ErrorIs(t, err, errors.ErrNotStarted)
}

func TestPublisherLifecycle(t *testing.T) {
	conn := testutil.NewMockConn()
	bus := event.NewBus()
	defer bus.Close()

	p, err := NewPublisher(conn, bus)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	// Double start fails.
	assert.ErrorIs(t, p.Start(context.Background()), errors.ErrAlreadyStarted)

	require.NoError(t, p.Stop(time.Second))
	// Stop twice is a no-op.
	require.NoError(t, p.Stop(time.Second))

	// Publisher no longer receives bus events.
	bus.Publish(event.New(event.TypeProcessCompleted, "face", nil))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, conn.Messages("percept.events.process.completed"))
}

func TestPublisherSurvivesPublishErrors(t *testing.T) {
	conn := testutil.NewMockConn()
	conn.SetPublishErr(assert.AnError)
	bus := event.NewBus()
	defer bus.Close()

	p, err := NewPublisher(conn, bus)
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer func() { _ = p.Stop(time.Second) }()

	require.NoError(t, p.PublishResult(pipeline.Result{Source: "gaze"}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p.Stats().Failed > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Greater(t, p.Stats().Failed, int64(0))

	// Later publishes still flow once the connection recovers.
	conn.SetPublishErr(nil)
	require.NoError(t, p.PublishResult(pipeline.Result{Source: "gaze"}))
	waitForMessage(t, conn, "percept.results.gaze")
}
