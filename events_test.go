package harbor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBusFireInvokesListenersInSubscriptionOrder(t *testing.T) {
	b := NewEventBus()

	var order []int
	b.On("x", func(e *Event) { order = append(order, 1) })
	b.On("x", func(e *Event) { order = append(order, 2) })

	b.Fire("x", nil)

	assert.Equal(t, []int{1, 2}, order)
}

func TestEventCancelStopsTheOperationNotTheRemainingListeners(t *testing.T) {
	b := NewEventBus()

	var secondRan bool
	b.On("x", func(e *Event) { e.Cancel() })
	b.On("x", func(e *Event) { secondRan = true })

	ev := b.Fire("x", nil)

	assert.True(t, ev.Cancelled())
	assert.True(t, secondRan, "every subscribed listener still runs; cancellation is read by the caller after Fire returns")
}

func TestEventBusFireWithNoListenersIsNotCancelled(t *testing.T) {
	b := NewEventBus()

	ev := b.Fire("nothing-subscribed", nil)
	assert.False(t, ev.Cancelled())
}

func TestEventDataPayloadIsPassedThrough(t *testing.T) {
	b := NewEventBus()

	var got *RequestEventData
	b.On(EventRequest, func(e *Event) {
		got = e.Data.(*RequestEventData)
	})

	req := &Request{Path: "/x"}
	resp := &Response{}
	b.Fire(EventRequest, &RequestEventData{Request: req, Response: resp})

	assert.Same(t, req, got.Request)
	assert.Same(t, resp, got.Response)
}
