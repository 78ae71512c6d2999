package biz

import (
	"context"
	"sync"

	"github.com/lk2023060901/agent-hydration/internal/hydration/types"
)

// Sink receives the UI event sequence of one connection.
type Sink interface {
	// Emit delivers one event. An error means the consumer is gone.
	Emit(ctx context.Context, event types.Event) error
	// Complete signals that the sequence ended with RUN_FINISHED.
	Complete()
	// Fail signals that the sequence could not be delivered to the end.
	Fail(err error)
}

// CollectSink buffers events in memory.
type CollectSink struct {
	mu        sync.Mutex
	events    []types.Event
	completed bool
	err       error
}

func NewCollectSink() *CollectSink {
	return &CollectSink{}
}

func (c *CollectSink) Emit(_ context.Context, event types.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *CollectSink) Complete() {
	c.mu.Lock()
	c.completed = true
	c.mu.Unlock()
}

func (c *CollectSink) Fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// Events returns a copy of the collected events.
func (c *CollectSink) Events() []types.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Event(nil), c.events...)
}

// Types returns the collected event types in order.
func (c *CollectSink) Types() []types.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.EventType, len(c.events))
	for i, e := range c.events {
		out[i] = e.EventType()
	}
	return out
}

func (c *CollectSink) Completed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.completed
}

func (c *CollectSink) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
