package ws

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// registrationProgress is the per-session step ladder. Each step only
// unlocks once the previous one has been accepted on this connection, so a
// client cannot jump straight to the commit.
type registrationProgress struct {
	verifiedEmail string
	usernameOK    bool
	nameOK        bool
}

// session wraps one client connection: a write-serialized sender, the
// session lifetime context, the registration ladder and the active
// countdown subscriptions.
type session struct {
	conn *websocket.Conn

	mu       sync.Mutex
	hook     func(Frame)
	progress registrationProgress
	unsubs   map[string]func()

	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(conn *websocket.Conn) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{conn: conn, unsubs: map[string]func(){}, ctx: ctx, cancel: cancel}
}

// setSendHook replaces the WebSocket writer (used in tests).
func (s *session) setSendHook(fn func(Frame)) {
	s.mu.Lock()
	s.hook = fn
	s.mu.Unlock()
}

// send drops the frame once the session is closed. close cancels the
// context while holding mu, so a send that observed a live context always
// finishes before close returns.
func (s *session) send(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return
	}
	if s.hook != nil {
		s.hook(f)
		return
	}
	if s.conn == nil {
		return
	}
	_ = s.conn.WriteJSON(f)
}

// after schedules fn on the session's lifetime: it never fires once the
// connection is gone.
func (s *session) after(d time.Duration, fn func()) {
	t := time.AfterFunc(d, func() {
		select {
		case <-s.ctx.Done():
		default:
			fn()
		}
	})
	go func() {
		<-s.ctx.Done()
		t.Stop()
	}()
}

// trackUnsub registers the countdown unsubscriber for email, detaching any
// previous stream for the same address first.
func (s *session) trackUnsub(email string, unsub func()) {
	s.mu.Lock()
	prev := s.unsubs[email]
	s.unsubs[email] = unsub
	s.mu.Unlock()
	if prev != nil {
		prev()
	}
}

func (s *session) close() {
	s.mu.Lock()
	s.cancel()
	unsubs := s.unsubs
	s.unsubs = map[string]func(){}
	s.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

func (s *session) markEmailVerified(email string) {
	s.mu.Lock()
	s.progress = registrationProgress{verifiedEmail: email}
	s.mu.Unlock()
}

func (s *session) emailVerified(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.verifiedEmail != "" && s.progress.verifiedEmail == email
}

func (s *session) progressEmail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.verifiedEmail
}

func (s *session) usernameAccepted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.usernameOK
}

func (s *session) markUsernameOK() {
	s.mu.Lock()
	s.progress.usernameOK = true
	s.mu.Unlock()
}

func (s *session) markNameOK() {
	s.mu.Lock()
	s.progress.nameOK = true
	s.mu.Unlock()
}

func (s *session) readyToCommit(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.verifiedEmail == email && s.progress.usernameOK && s.progress.nameOK
}
