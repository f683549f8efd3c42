package events

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type testEventA struct {
	baseEvent
	Value int
}

type testEventB struct {
	baseEvent
	Value string
}

func TestPublish_DeliversOnlyToMatchingType(t *testing.T) {
	b := New(zerolog.Nop())

	var gotA []int
	var gotB []string
	Subscribe(b, func(e testEventA) { gotA = append(gotA, e.Value) })
	Subscribe(b, func(e testEventB) { gotB = append(gotB, e.Value) })

	Publish(b, testEventA{Value: 1})
	Publish(b, testEventB{Value: "x"})
	Publish(b, testEventA{Value: 2})

	assert.Equal(t, []int{1, 2}, gotA)
	assert.Equal(t, []string{"x"}, gotB)
}

func TestPublish_FansOutToMultipleSubscribers(t *testing.T) {
	b := New(zerolog.Nop())

	var first, second int
	Subscribe(b, func(e testEventA) { first = e.Value })
	Subscribe(b, func(e testEventA) { second = e.Value * 10 })

	Publish(b, testEventA{Value: 3})

	assert.Equal(t, 3, first)
	assert.Equal(t, 30, second)
}

func TestPublish_RecoversFromPanickingHandler(t *testing.T) {
	b := New(zerolog.Nop())

	var ran bool
	Subscribe(b, func(e testEventA) { panic("boom") })
	Subscribe(b, func(e testEventA) { ran = true })

	assert.NotPanics(t, func() { Publish(b, testEventA{Value: 1}) })
	assert.True(t, ran, "a handler after a panicking one must still run")
}

func TestSubscribe_UnsubscribeStopsDelivery(t *testing.T) {
	b := New(zerolog.Nop())

	var count int
	unsubscribe := Subscribe(b, func(e testEventA) { count++ })

	Publish(b, testEventA{Value: 1})
	unsubscribe()
	Publish(b, testEventA{Value: 2})

	assert.Equal(t, 1, count)
}

func TestPublish_NoSubscribersIsNoop(t *testing.T) {
	b := New(zerolog.Nop())
	assert.NotPanics(t, func() { Publish(b, testEventA{Value: 1}) })
}
