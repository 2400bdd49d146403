package sync

import (
	"context"
	"sync"
)

// Virtual ring entries per channel. Enough to keep the spread across a few
// dozen channels within a couple of percent.
const entriesPerChannel = 200

// StripedChannel fans values out over a fixed set of buffered channels,
// routing by key on a consistent hash ring. Values sent for the same key
// arrive in order on the same channel, so one consumer per channel processes
// each key sequentially.
type StripedChannel[T any] struct {
	channels []chan T
	ring     *ring
	close    sync.Once
}

// NewStripedChannel returns a StripedChannel of count channels, each buffering
// up to queueSize values. A count of zero is treated as one.
func NewStripedChannel[T any](count, queueSize uint) *StripedChannel[T] {
	count = max(count, 1)

	c := &StripedChannel[T]{
		channels: make([]chan T, count),
		ring:     newRing("chan", int(count), entriesPerChannel),
	}
	for i := range c.channels {
		c.channels[i] = make(chan T, queueSize)
	}
	return c
}

// Receivers returns every channel, indexed consistently across calls.
func (c *StripedChannel[T]) Receivers() []<-chan T {
	receivers := make([]<-chan T, 0, len(c.channels))
	for _, ch := range c.channels {
		receivers = append(receivers, ch)
	}
	return receivers
}

func (c *StripedChannel[T]) route(key []byte) chan<- T {
	return c.channels[c.ring.shard(key)]
}

// Send queues the value without blocking, reporting whether there was room.
func (c *StripedChannel[T]) Send(key []byte, value T) bool {
	select {
	case c.route(key) <- value:
		return true
	default:
		return false
	}
}

// BlockingSend queues the value, waiting for room until ctx is done.
func (c *StripedChannel[T]) BlockingSend(ctx context.Context, key []byte, value T) error {
	select {
	case c.route(key) <- value:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes every channel. Sends after Close panic.
func (c *StripedChannel[T]) Close() {
	c.close.Do(func() {
		for _, ch := range c.channels {
			close(ch)
		}
	})
}
