package otp

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTick = 10 * time.Millisecond

func TestRegistryStart_SecondCallIsNoOp(t *testing.T) {
	r := NewRegistry(5, testTick, nil)
	assert.True(t, r.Start("a@b.com"))
	assert.False(t, r.Start("a@b.com"))

	n, ok := r.Remaining("a@b.com")
	require.True(t, ok)
	assert.LessOrEqual(t, n, 5)
	r.Cancel("a@b.com")
}

func TestRegistryStart_IndependentEmails(t *testing.T) {
	r := NewRegistry(5, testTick, nil)
	assert.True(t, r.Start("a@b.com"))
	assert.True(t, r.Start("c@d.com"))
	r.Cancel("a@b.com")
	r.Cancel("c@d.com")
}

func TestRegistryStart_ConcurrentSameEmail_ExactlyOneWins(t *testing.T) {
	r := NewRegistry(5, testTick, nil)
	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Start("race@x.com") {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), wins)
	r.Cancel("race@x.com")
}

func TestRegistryCancel_NoExpirySideEffects(t *testing.T) {
	var expired int64
	r := NewRegistry(2, testTick, func(string) { atomic.AddInt64(&expired, 1) })
	require.True(t, r.Start("a@b.com"))
	r.Cancel("a@b.com")

	_, ok := r.Remaining("a@b.com")
	assert.False(t, ok)

	// Long enough that a leaked timer would have expired.
	time.Sleep(5 * testTick)
	assert.Equal(t, int64(0), atomic.LoadInt64(&expired))
}

func TestRegistryNaturalExpiry_RunsCallbackOnceAndRemovesEntry(t *testing.T) {
	done := make(chan string, 2)
	r := NewRegistry(3, testTick, func(email string) { done <- email })
	require.True(t, r.Start("a@b.com"))

	select {
	case email := <-done:
		assert.Equal(t, "a@b.com", email)
	case <-time.After(time.Second):
		t.Fatal("expiry callback never fired")
	}

	_, ok := r.Remaining("a@b.com")
	assert.False(t, ok)

	select {
	case <-done:
		t.Fatal("expiry callback fired twice")
	case <-time.After(5 * testTick):
	}

	// The email is free for a new countdown now.
	assert.True(t, r.Start("a@b.com"))
	r.Cancel("a@b.com")
}

func TestRegistrySubscribe_StreamsCountdownThenCloses(t *testing.T) {
	r := NewRegistry(3, testTick, nil)
	require.True(t, r.Start("a@b.com"))

	ch, unsub, ok := r.Subscribe("a@b.com")
	require.True(t, ok)
	defer unsub()

	var got []int
	deadline := time.After(time.Second)
	for {
		select {
		case n, open := <-ch:
			if !open {
				assert.Equal(t, []int{2, 1, 0}, got)
				return
			}
			got = append(got, n)
		case <-deadline:
			t.Fatalf("stream never closed, got %v", got)
		}
	}
}

func TestRegistrySubscribe_NoCountdown(t *testing.T) {
	r := NewRegistry(3, testTick, nil)
	_, _, ok := r.Subscribe("nobody@x.com")
	assert.False(t, ok)
}

func TestRegistrySubscribe_UnsubscribeStopsDelivery(t *testing.T) {
	r := NewRegistry(60, testTick, nil)
	require.True(t, r.Start("a@b.com"))
	defer r.Cancel("a@b.com")

	ch, unsub, ok := r.Subscribe("a@b.com")
	require.True(t, ok)

	// Wait for at least one tick, then detach.
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no tick delivered")
	}
	unsub()

	// Channel must be closed now; draining must terminate.
	for range ch {
	}
}

func TestRegistryCancel_ClosesSubscriberStreams(t *testing.T) {
	r := NewRegistry(60, testTick, nil)
	require.True(t, r.Start("a@b.com"))

	ch, _, ok := r.Subscribe("a@b.com")
	require.True(t, ok)

	r.Cancel("a@b.com")

	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-ch:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("subscriber stream not closed on cancel")
		}
	}
}
