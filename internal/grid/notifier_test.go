package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifierDeliversInSubscriptionOrder(t *testing.T) {
	n := NewNotifier()
	var calls []string

	n.Subscribe(func(rec RegionRecord) { calls = append(calls, "first:"+rec.Name) })
	n.Subscribe(func(rec RegionRecord) { calls = append(calls, "second:"+rec.Name) })

	delivered := n.Publish(RegionRecord{Name: "A"})
	assert.Equal(t, 2, delivered)
	assert.Equal(t, []string{"first:A", "second:A"}, calls)
}

func TestNotifierPanicDoesNotStopOthers(t *testing.T) {
	n := NewNotifier()
	var failures int
	n.onFailure = func(RegionRecord, interface{}) { failures++ }

	var got []string
	n.Subscribe(func(RegionRecord) { panic("подписчик сломан") })
	n.Subscribe(func(rec RegionRecord) { got = append(got, rec.Name) })

	delivered := n.Publish(RegionRecord{Name: "B"})
	assert.Equal(t, 1, delivered)
	assert.Equal(t, []string{"B"}, got)
	assert.Equal(t, 1, failures)
}

func TestNotifierUnsubscribe(t *testing.T) {
	n := NewNotifier()
	count := 0
	sub := n.Subscribe(func(RegionRecord) { count++ })
	n.Subscribe(func(RegionRecord) {})

	n.Publish(RegionRecord{})
	sub.Unsubscribe()
	sub.Unsubscribe()
	n.Publish(RegionRecord{})

	assert.Equal(t, 1, count)
	assert.Equal(t, 1, n.Len())
}

func TestNotifierUnsubscribeFromInsideSubscriber(t *testing.T) {
	n := NewNotifier()
	count := 0
	var sub Subscription
	sub = n.Subscribe(func(RegionRecord) {
		count++
		sub.Unsubscribe()
	})

	n.Publish(RegionRecord{})
	n.Publish(RegionRecord{})
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, n.Len())
}

func TestNotifierWithoutSubscribers(t *testing.T) {
	n := NewNotifier()
	assert.Equal(t, 0, n.Publish(RegionRecord{Name: "никому"}))
}
