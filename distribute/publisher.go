// Package distribute pushes orchestration results and events to external
// subscribers over NATS.
package distribute

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/percept/errors"
	"github.com/c360/percept/event"
	"github.com/c360/percept/metric"
	"github.com/c360/percept/pipeline"
	"github.com/c360/percept/pkg/worker"
)

// Subject layout for published messages
const (
	// ResultSubjectPrefix carries pipeline results, one subject per source
	// pipeline: percept.results.<pipeline>
	ResultSubjectPrefix = "percept.results"
	// EventSubjectPrefix carries orchestration events, one subject per
	// event type: percept.events.<type>
	EventSubjectPrefix = "percept.events"
)

// Conn is the slice of a NATS connection the publisher needs. *nats.Conn
// satisfies it; tests use an in-memory double.
type Conn interface {
	Publish(subject string, data []byte) error
	Flush() error
	Drain() error
}

// Publisher bridges the in-process event bus to NATS. It subscribes to the
// bus, serializes events and results to JSON, and publishes them through a
// worker pool so slow or disconnected NATS never stalls the orchestrator.
// Delivery is asynchronous and at-most-once: a full queue or failed publish
// drops the message.
type Publisher struct {
	conn   Conn
	bus    *event.Bus
	logger *slog.Logger

	registry *metric.MetricsRegistry
	metrics  *metric.Metrics
	pool     *worker.Pool[outbound]
	sub      *event.Subscription

	mu      sync.Mutex
	started bool
	done    chan struct{}
}

type outbound struct {
	subject string
	payload []byte
}

// PublisherOption configures a Publisher
type PublisherOption func(*Publisher)

// WithLogger sets the publisher logger
func WithLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetricsRegistry wires publish counters and pool metrics into a shared
// registry
func WithMetricsRegistry(reg *metric.MetricsRegistry) PublisherOption {
	return func(p *Publisher) {
		p.registry = reg
		p.metrics = reg.CoreMetrics()
	}
}

// NewPublisher creates a publisher over an established connection and bus.
// Call Start to begin forwarding.
func NewPublisher(conn Conn, bus *event.Bus, opts ...PublisherOption) (*Publisher, error) {
	if conn == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Publisher", "NewPublisher", "nil connection")
	}
	if bus == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"Publisher", "NewPublisher", "nil event bus")
	}
	p := &Publisher{
		conn:   conn,
		bus:    bus,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	var poolOpts []worker.Option[outbound]
	if p.registry != nil {
		poolOpts = append(poolOpts, worker.WithMetricsRegistry[outbound](p.registry, "nats_publisher"))
	}
	p.pool = worker.NewPool(2, 512, p.send, poolOpts...)
	return p, nil
}

// Start subscribes to the bus and begins forwarding events to NATS. The
// context bounds the worker pool's lifetime.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Publisher", "Start", "state check")
	}
	if err := p.pool.Start(ctx); err != nil {
		return errors.Wrap(err, "Publisher", "Start", "worker pool start")
	}
	p.sub = p.bus.Subscribe()
	if p.sub == nil {
		_ = p.pool.Stop(time.Second)
		return errors.WrapInvalid(errors.ErrShuttingDown, "Publisher", "Start", "bus closed")
	}
	p.done = make(chan struct{})
	p.started = true

	go p.forward(p.sub, p.done)
	p.logger.Info("publisher started")
	return nil
}

// forward drains bus events into the worker pool until the subscription
// closes.
func (p *Publisher) forward(sub *event.Subscription, done chan struct{}) {
	defer close(done)
	for e := range sub.C {
		payload, err := json.Marshal(e)
		if err != nil {
			p.logger.Warn("event serialization failed", "type", string(e.Type), "error", err)
			continue
		}
		p.enqueue(eventSubject(e), payload)
	}
}

// PublishResult pushes one pipeline result to its per-pipeline subject.
func (p *Publisher) PublishResult(res pipeline.Result) error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if !started {
		return errors.WrapInvalid(errors.ErrNotStarted, "Publisher", "PublishResult", "state check")
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return errors.WrapInvalid(err, "Publisher", "PublishResult", "result serialization")
	}
	p.enqueue(fmt.Sprintf("%s.%s", ResultSubjectPrefix, res.Source), payload)
	return nil
}

func (p *Publisher) enqueue(subject string, payload []byte) {
	if err := p.pool.Submit(outbound{subject: subject, payload: payload}); err != nil {
		p.logger.Warn("publish dropped", "subject", subject, "error", err)
	}
}

// send runs on pool workers.
func (p *Publisher) send(_ context.Context, msg outbound) error {
	if err := p.conn.Publish(msg.subject, msg.payload); err != nil {
		p.logger.Warn("nats publish failed", "subject", msg.subject, "error", err)
		return err
	}
	if p.metrics != nil {
		p.metrics.RecordResultPublished(msg.subject)
	}
	return nil
}

// Stop unsubscribes from the bus, drains queued messages, and flushes the
// connection. The connection itself is the caller's to close.
func (p *Publisher) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	sub, done := p.sub, p.done
	p.sub, p.done = nil, nil
	p.mu.Unlock()

	p.bus.Unsubscribe(sub)
	select {
	case <-done:
	case <-time.After(timeout):
	}
	if err := p.pool.Stop(timeout); err != nil {
		return errors.Wrap(err, "Publisher", "Stop", "worker pool drain")
	}
	if err := p.conn.Flush(); err != nil {
		return errors.WrapTransient(err, "Publisher", "Stop", "connection flush")
	}
	p.logger.Info("publisher stopped")
	return nil
}

// Stats exposes the underlying publish queue statistics.
func (p *Publisher) Stats() worker.PoolStats {
	return p.pool.Stats()
}

func eventSubject(e event.Event) string {
	return fmt.Sprintf("%s.%s", EventSubjectPrefix, string(e.Type))
}

// Connect dials NATS with reconnection settings suitable for a long-lived
// publisher. Callers own the returned connection.
func Connect(url string, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, errors.WrapTransient(err, "Publisher", "Connect", "nats dial")
	}
	return conn, nil
}
