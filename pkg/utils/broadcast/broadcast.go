package broadcast

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/lapclock/log"
)

//nolint:lll // by design
// see https://betterprogramming.pub/how-to-broadcast-messages-in-go-using-channels-b68f42bdf32e

type BroadcastServer[T any] interface {
	// Subscribe returns a channel receiving all messages from now on.
	// The channel is closed when the subscription is cancelled or the server is closed.
	Subscribe() <-chan T
	CancelSubscription(<-chan T)
	// Close stops the server and waits until all listeners are closed
	Close()
}

type broadcastServer[T any] struct {
	name           string
	source         <-chan T
	listeners      []chan T
	addListener    chan chan T
	removeListener chan (<-chan T)
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
	sendTimeout    time.Duration
	numRcv         atomic.Int64
	numSnd         atomic.Int64
	numSkip        atomic.Int64
	numListeners   atomic.Int64
	registration   metric.Registration
	log            *log.Logger
}

type Option[T any] func(*broadcastServer[T])

// WithSendTimeout sets how long the server waits for a slow listener
// before the message is skipped for that listener
func WithSendTimeout[T any](d time.Duration) Option[T] {
	return func(b *broadcastServer[T]) {
		b.sendTimeout = d
	}
}

//nolint:whitespace // false positive
func NewBroadcastServer[T any](
	name string,
	source <-chan T,
	opts ...Option[T],
) BroadcastServer[T] {
	ctx, cancel := context.WithCancel(context.Background())
	b := &broadcastServer[T]{
		name:           name,
		source:         source,
		addListener:    make(chan chan T),
		removeListener: make(chan (<-chan T)),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		sendTimeout:    50 * time.Millisecond,
		log:            log.Default().Named("broadcast"),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.setupMetrics()
	go b.serve()
	return b
}

func (b *broadcastServer[T]) Subscribe() <-chan T {
	ch := make(chan T)
	select {
	case b.addListener <- ch:
	case <-b.done:
		close(ch)
	}
	return ch
}

func (b *broadcastServer[T]) CancelSubscription(ch <-chan T) {
	select {
	case b.removeListener <- ch:
	case <-b.done:
	}
}

func (b *broadcastServer[T]) Close() {
	b.cancel()
	<-b.done
	if b.registration != nil {
		if err := b.registration.Unregister(); err != nil {
			b.log.Debug("could not unregister metrics", log.ErrorField(err))
		}
	}
	b.log.Debug("Closed broadcast server",
		log.String("name", b.name),
		log.Int64("rcv", b.numRcv.Load()),
		log.Int64("snd", b.numSnd.Load()),
		log.Int64("skip", b.numSkip.Load()))
}

//nolint:lll,funlen // readability
func (b *broadcastServer[T]) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("lapclock.broadcast.%s", b.name))
	attrs := metric.WithAttributes(attribute.String("name", b.name))
	type data struct {
		name  string
		desc  string
		value *atomic.Int64
	}
	gauges := make([]metric.Int64ObservableGauge, 0, 4)
	values := make(map[metric.Int64ObservableGauge]*atomic.Int64)
	for _, d := range []data{
		{"lapclock.broadcast.rcv", "Number of received messages", &b.numRcv},
		{"lapclock.broadcast.snd", "Number of sent messages", &b.numSnd},
		{"lapclock.broadcast.skip", "Number of skipped messages", &b.numSkip},
		{"lapclock.broadcast.listener", "Number of listeners", &b.numListeners},
	} {
		g, err := meter.Int64ObservableGauge(d.name,
			metric.WithDescription(d.desc),
			metric.WithUnit("{count}"))
		if err != nil {
			b.log.Error("failed to register metric",
				log.String("metric", d.name),
				log.ErrorField(err))
			continue
		}
		gauges = append(gauges, g)
		values[g] = d.value
	}
	instruments := make([]metric.Observable, len(gauges))
	for i := range gauges {
		instruments[i] = gauges[i]
	}
	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for g, v := range values {
			o.ObserveInt64(g, v.Load(), attrs)
		}
		return nil
	}, instruments...)
	if err != nil {
		b.log.Error("failed to register metric callback", log.ErrorField(err))
		return
	}
	b.registration = reg
}

//nolint:funlen,cyclop,gocognit // by design
func (b *broadcastServer[T]) serve() {
	defer func() {
		for _, listener := range b.listeners {
			close(listener)
		}
		b.listeners = nil
		b.numListeners.Store(0)
		close(b.done)
	}()
	for {
		select {
		case <-b.ctx.Done():
			b.log.Debug("broadcast server about to be closed", log.String("name", b.name))
			return
		case ch := <-b.addListener:
			b.listeners = append(b.listeners, ch)
			b.numListeners.Store(int64(len(b.listeners)))
		case ch := <-b.removeListener:
			for i, listener := range b.listeners {
				if listener == ch {
					b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
					close(listener)
					b.log.Debug("removed listener",
						log.String("name", b.name), log.Int("len", len(b.listeners)))
					break
				}
			}
			b.numListeners.Store(int64(len(b.listeners)))
		case msg, ok := <-b.source:
			if !ok {
				b.log.Debug("source closed", log.String("name", b.name))
				return
			}
			b.numRcv.Add(1)
			for _, listener := range b.listeners {
				timer := time.NewTimer(b.sendTimeout)
				select {
				case listener <- msg:
					b.numSnd.Add(1)
				case <-timer.C:
					b.numSkip.Add(1)
				}
				timer.Stop()
			}
		}
	}
}
