// Package watch turns bursts of remote change notifications into single
// re-fetches. Each subscription owns one goroutine, one debounce timer and
// the listeners it attached; there is no shared registry.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"trovekit/observability/metrics"
)

const (
	DefaultWindow    = 25 * time.Millisecond
	defaultQueueSize = 64
)

var (
	errNoSources = errors.New("watch: at least one source required")
	errNilFetch  = errors.New("watch: fetch and callback required")
)

// Notification reports that something changed at Block.
type Notification struct {
	Block uint64
}

// Source attaches a listener that pushes notifications into sink. The
// returned detach function removes it.
type Source interface {
	Attach(ctx context.Context, sink chan<- Notification) (detach func(), err error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, sink chan<- Notification) (func(), error)

func (f SourceFunc) Attach(ctx context.Context, sink chan<- Notification) (func(), error) {
	return f(ctx, sink)
}

// Notify delivers n unless ctx ends first.
func Notify(ctx context.Context, sink chan<- Notification, n Notification) bool {
	select {
	case sink <- n:
		return true
	case <-ctx.Done():
		return false
	}
}

// Config tunes a subscription.
type Config struct {
	// Entity labels logs and metrics, e.g. "trove".
	Entity string
	// Window is how long after the first notification of a burst the
	// re-fetch runs. Notifications inside the window join that fetch.
	Window    time.Duration
	QueueSize int
	Logger    *slog.Logger
	Metrics   *metrics.MirrorMetrics
}

func (c Config) normalize() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.Entity == "" {
		c.Entity = "entity"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Mirror()
	}
	return c
}

// Subscription is the handle returned by Start.
type Subscription struct {
	id         string
	cancel     context.CancelFunc
	detach     []func()
	once       sync.Once
	done       chan struct{}
	inCallback atomic.Bool
	metrics    *metrics.MirrorMetrics
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Done is closed once the subscription goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	if s == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// Unsubscribe detaches every listener, cancels any pending or in-flight
// fetch and stops the timer. It is idempotent. Outside a callback it returns
// only after the subscription goroutine has exited, so no callback fires
// afterwards.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.cancel()
		for _, detach := range s.detach {
			detach()
		}
		s.metrics.SubscriptionClosed()
	})
	if !s.inCallback.Load() {
		<-s.done
	}
}

// Start attaches sources and runs the coalescing loop until ctx ends or the
// subscription is unsubscribed. A fetch runs one Window after the first
// notification of a burst, at the highest block seen so far, followed by one
// callback. A steady stream therefore yields one fetch per Window. A failed
// fetch is logged and counted; the subscription stays alive.
func Start[T any](ctx context.Context, cfg Config, sources []Source, fetch func(ctx context.Context, block uint64) (T, error), callback func(T)) (*Subscription, error) {
	if len(sources) == 0 {
		return nil, errNoSources
	}
	if fetch == nil || callback == nil {
		return nil, errNilFetch
	}
	cfg = cfg.normalize()
	ctx, cancel := context.WithCancel(ctx)
	queue := make(chan Notification, cfg.QueueSize)
	sub := &Subscription{
		id:      uuid.NewString(),
		cancel:  cancel,
		done:    make(chan struct{}),
		metrics: cfg.Metrics,
	}
	for _, source := range sources {
		detach, err := source.Attach(ctx, queue)
		if err != nil {
			cancel()
			for _, d := range sub.detach {
				d()
			}
			return nil, err
		}
		if detach != nil {
			sub.detach = append(sub.detach, detach)
		}
	}
	cfg.Metrics.SubscriptionOpened()
	logger := cfg.Logger.With(slog.String("subscription", sub.id), slog.String("entity", cfg.Entity))
	go coalesce(ctx, sub, cfg, logger, queue, fetch, callback)
	return sub, nil
}

func coalesce[T any](ctx context.Context, sub *Subscription, cfg Config, logger *slog.Logger, queue <-chan Notification, fetch func(context.Context, uint64) (T, error), callback func(T)) {
	defer close(sub.done)
	timer := time.NewTimer(cfg.Window)
	timer.Stop()
	defer timer.Stop()

	var (
		latest uint64
		armed  bool
	)
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-queue:
			cfg.Metrics.ObserveEvent(cfg.Entity)
			if n.Block > latest {
				latest = n.Block
			}
			if !armed {
				timer.Reset(cfg.Window)
				armed = true
			}
		case <-timer.C:
			armed = false
			value, err := fetch(ctx, latest)
			if ctx.Err() != nil {
				return
			}
			cfg.Metrics.ObserveRefetch(cfg.Entity, err)
			if err != nil {
				logger.Warn("watch refetch failed", slog.Uint64("block", latest), slog.Any("error", err))
				continue
			}
			sub.inCallback.Store(true)
			callback(value)
			sub.inCallback.Store(false)
		}
	}
}
