// Package bus carries in-process notifications between pipeline stages, so
// a finished download can trigger normalization without the stages holding
// references to each other.
package bus

import (
	"context"
	"sync"

	messagebus "github.com/vardius/message-bus"
)

// Topics.
const (
	// TopicMediaDownloaded carries the path of a freshly downloaded file.
	TopicMediaDownloaded = "media.downloaded"
)

const queueSize = 64

// Broker wraps the message bus and tracks in-flight deliveries, so a
// publisher can wait for everything it published to be handled.
type Broker struct {
	bus messagebus.MessageBus

	mu   sync.Mutex
	subs map[string]int
	wg   sync.WaitGroup
}

func New() *Broker {
	return &Broker{
		bus:  messagebus.New(queueSize),
		subs: make(map[string]int),
	}
}

// Subscribe registers a handler for one topic. Handlers run on the bus's
// delivery goroutines, sequentially per subscription.
func (b *Broker) Subscribe(topic string, fn func(path string)) error {
	wrapped := func(path string) {
		defer b.wg.Done()
		fn(path)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.bus.Subscribe(topic, wrapped); err != nil {
		return err
	}
	b.subs[topic]++
	return nil
}

// Publish hands a path to every subscriber of the topic. It does not wait
// for the handlers to run.
func (b *Broker) Publish(topic, path string) {
	b.mu.Lock()
	n := b.subs[topic]
	b.mu.Unlock()
	b.wg.Add(n)
	b.bus.Publish(topic, path)
}

// Wait blocks until every delivery published so far has been handled, or
// the context ends.
func (b *Broker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Close tears down one topic's subscriptions.
func (b *Broker) Close(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bus.Close(topic)
	delete(b.subs, topic)
}
