package otp

import (
	"sync"
	"time"
)

// ExpireFunc runs when a cooldown reaches zero naturally. It is invoked
// outside the registry lock and never runs for cancelled entries.
type ExpireFunc func(email string)

// Registry tracks one countdown per email. It is the single authority for
// cooldown timing: Start is an atomic test-and-set, so two near-simultaneous
// requests for the same email can never produce two timers. The OTP value
// itself always lives in the credential store, never here.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	seconds int
	tick    time.Duration
	expire  ExpireFunc
}

type entry struct {
	remaining int
	stop      chan struct{}
	subs      map[chan int]struct{}
}

// NewRegistry creates a registry counting down from seconds, ticking every
// tick (1s in production; tests pass something shorter).
func NewRegistry(seconds int, tick time.Duration, expire ExpireFunc) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		seconds: seconds,
		tick:    tick,
		expire:  expire,
	}
}

// Start begins a countdown for email. Returns false without side effects if
// a countdown is already running for that email.
func (r *Registry) Start(email string) bool {
	r.mu.Lock()
	if _, ok := r.entries[email]; ok {
		r.mu.Unlock()
		return false
	}
	e := &entry{
		remaining: r.seconds,
		stop:      make(chan struct{}),
		subs:      make(map[chan int]struct{}),
	}
	r.entries[email] = e
	r.mu.Unlock()

	go r.run(email, e)
	return true
}

// Cancel stops the countdown for email immediately, without running expiry
// side effects. Safe to call when no countdown exists.
func (r *Registry) Cancel(email string) {
	r.mu.Lock()
	if e, ok := r.entries[email]; ok {
		delete(r.entries, email)
		close(e.stop)
		for ch := range e.subs {
			close(ch)
		}
		e.subs = nil
	}
	r.mu.Unlock()
}

// Remaining reports the seconds left on the countdown for email, if any.
func (r *Registry) Remaining(email string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[email]; ok {
		return e.remaining, true
	}
	return 0, false
}

// Subscribe attaches a listener to the countdown for email. The channel
// receives the remaining seconds after every tick (down to and including 0)
// and is closed when the countdown ends or is cancelled. The returned func
// detaches the listener. ok is false when no countdown is running.
func (r *Registry) Subscribe(email string) (ch <-chan int, unsubscribe func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, found := r.entries[email]
	if !found {
		return nil, nil, false
	}
	c := make(chan int, 64)
	e.subs[c] = struct{}{}
	unsub := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		// The countdown may have ended already, closing c on its way out.
		if e.subs != nil {
			if _, still := e.subs[c]; still {
				delete(e.subs, c)
				close(c)
			}
		}
	}
	return c, unsub, true
}

func (r *Registry) run(email string, e *entry) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.entries[email] != e {
				// Cancelled between the tick firing and acquiring the lock.
				r.mu.Unlock()
				return
			}
			e.remaining--
			n := e.remaining
			for ch := range e.subs {
				select {
				case ch <- n:
				default: // slow listener, drop the tick
				}
			}
			if n <= 0 {
				delete(r.entries, email)
				for ch := range e.subs {
					close(ch)
				}
				e.subs = nil
				r.mu.Unlock()
				if r.expire != nil {
					r.expire(email)
				}
				return
			}
			r.mu.Unlock()
		}
	}
}
