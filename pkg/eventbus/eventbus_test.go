package eventbus

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

type TestEvent struct {
	Message string
}

type AnotherEvent struct {
	Value int
}

func TestEventBus_PublishAsync(t *testing.T) {
	bus := New(nil)

	var mu sync.Mutex
	var received []string
	On(bus, func(e TestEvent) {
		mu.Lock()
		received = append(received, e.Message)
		mu.Unlock()
	})

	bus.Publish(TestEvent{Message: "hello"})
	bus.Wait()

	assert.Equal(t, []string{"hello"}, received)
}

func TestEventBus_PublishSync(t *testing.T) {
	bus := New(nil)

	var received TestEvent
	bus.Subscribe(TestEvent{}, func(event any) {
		received = event.(TestEvent)
	})

	bus.PublishSync(TestEvent{Message: "sync"})
	assert.Equal(t, "sync", received.Message)
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := New(nil)

	var count atomic.Int32
	for i := 0; i < 3; i++ {
		On(bus, func(TestEvent) { count.Add(1) })
	}

	bus.Publish(TestEvent{Message: "test"})
	bus.Wait()
	assert.EqualValues(t, 3, count.Load())
}

func TestEventBus_RoutesByType(t *testing.T) {
	bus := New(nil)

	var tests, others atomic.Int32
	On(bus, func(TestEvent) { tests.Add(1) })
	On(bus, func(AnotherEvent) { others.Add(1) })

	bus.PublishSync(TestEvent{})
	bus.PublishSync(AnotherEvent{Value: 42})
	bus.PublishSync(AnotherEvent{Value: 43})

	assert.EqualValues(t, 1, tests.Load())
	assert.EqualValues(t, 2, others.Load())
}

func TestEventBus_HandlerPanicIsContained(t *testing.T) {
	bus := New(nil)

	var after atomic.Bool
	On(bus, func(TestEvent) { panic("boom") })
	On(bus, func(TestEvent) { after.Store(true) })

	assert.NotPanics(t, func() { bus.PublishSync(TestEvent{}) })
	assert.True(t, after.Load())
}

func TestEventBus_SubscriberCount(t *testing.T) {
	bus := New(nil)

	assert.Equal(t, 0, bus.SubscriberCount(TestEvent{}))
	bus.Subscribe(TestEvent{}, func(any) {})
	bus.Subscribe(TestEvent{}, func(any) {})
	assert.Equal(t, 2, bus.SubscriberCount(TestEvent{}))
	assert.Equal(t, 0, bus.SubscriberCount(AnotherEvent{}))
}
