package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlers_EmitInRegistrationOrder(t *testing.T) {
	var hs Handlers
	var got []int

	hs.On(EventStreamMessage, func(Event) { got = append(got, 1) })
	hs.On(EventStreamMessage, func(Event) { got = append(got, 2) })
	hs.On(EventNetworkQuality, func(Event) { got = append(got, 99) })

	hs.Emit(Event{Name: EventStreamMessage})

	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, 3, hs.Total())
}

func TestHandlers_UnsubscribeIsIdempotent(t *testing.T) {
	var hs Handlers
	calls := 0
	sub := hs.On(EventException, func(Event) { calls++ })

	sub.Unsubscribe()
	sub.Unsubscribe()
	hs.Emit(Event{Name: EventException})

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, hs.Count(EventException))
}

func TestRegistry_CloseReleasesInReverseOrder(t *testing.T) {
	r := NewRegistry()
	var order []string

	r.Add(SubscriptionFunc(func() { order = append(order, "first") }))
	r.Add(SubscriptionFunc(func() { order = append(order, "second") }))
	r.Add(nil)
	assert.Equal(t, 2, r.Len())

	r.Close()
	r.Close()

	assert.Equal(t, []string{"second", "first"}, order)
	assert.Equal(t, 0, r.Len())
}
