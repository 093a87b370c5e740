package observable

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubjectReplaysLatestValue(t *testing.T) {
	s := NewSubject(1)
	s.Next(2)

	var got []int
	sub := s.Subscribe(func(v int) { got = append(got, v) })
	defer sub.Unsubscribe()

	s.Next(3)
	assert.Equal(t, []int{2, 3}, got)
	assert.Equal(t, 3, s.Value())
}

func TestSubjectUnsubscribe(t *testing.T) {
	s := NewSubject("a")

	var got []string
	sub := s.Subscribe(func(v string) { got = append(got, v) })
	assert.Equal(t, 1, s.ObserverCount())

	sub.Unsubscribe()
	sub.Unsubscribe()
	s.Next("b")

	assert.Equal(t, []string{"a"}, got)
	assert.Equal(t, 0, s.ObserverCount())
}

func TestSubjectUnsubscribeDuringDelivery(t *testing.T) {
	s := NewSubject(0)

	var first, second []int
	var sub Subscription
	sub = s.Subscribe(func(v int) {
		first = append(first, v)
		if v == 1 {
			sub.Unsubscribe()
		}
	})
	other := s.Subscribe(func(v int) { second = append(second, v) })
	defer other.Unsubscribe()

	s.Next(1)
	s.Next(2)

	assert.Equal(t, []int{0, 1}, first)
	assert.Equal(t, []int{0, 1, 2}, second)
}

func TestSubjectUpdate(t *testing.T) {
	s := NewSubject(map[string]int{"a": 1})

	var got []map[string]int
	sub := s.Subscribe(func(v map[string]int) { got = append(got, v) })
	defer sub.Unsubscribe()

	next := s.Update(func(current map[string]int) map[string]int {
		return map[string]int{"a": current["a"] + 1}
	})

	assert.Equal(t, map[string]int{"a": 2}, next)
	require.Len(t, got, 2)
	assert.Equal(t, map[string]int{"a": 2}, got[1])
}

func TestSubjectOrderedConcurrentPublishers(t *testing.T) {
	s := NewSubject(0)

	var mu sync.Mutex
	last := 0
	outOfOrder := false
	sub := s.Subscribe(func(v int) {
		mu.Lock()
		defer mu.Unlock()
		if v < last {
			outOfOrder = true
		}
		last = v
	})
	defer sub.Unsubscribe()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Update(func(current int) int { return current + 1 })
		}()
	}
	wg.Wait()

	assert.False(t, outOfOrder)
	assert.Equal(t, 50, s.Value())
}

func TestSubscriptions(t *testing.T) {
	var order []string
	var subs Subscriptions
	subs.Add(SubscriptionFunc(func() { order = append(order, "first") }))
	subs.Add(SubscriptionFunc(func() { order = append(order, "second") }))

	subs.Unsubscribe()
	assert.Equal(t, []string{"second", "first"}, order)

	subs.Add(SubscriptionFunc(func() { order = append(order, "late") }))
	assert.Equal(t, []string{"second", "first", "late"}, order)
}

func TestFunc(t *testing.T) {
	var unsubscribed bool
	o := Func[int](func(observer func(int)) Subscription {
		observer(42)
		return SubscriptionFunc(func() { unsubscribed = true })
	})

	var got int
	o.Subscribe(func(v int) { got = v }).Unsubscribe()
	assert.Equal(t, 42, got)
	assert.True(t, unsubscribed)
}
