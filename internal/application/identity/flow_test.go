package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/foraling/foraling-server/internal/application/otp"
	"github.com/foraling/foraling-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUserStore is a map-backed store good enough to run both the
// verification engine and the lifecycle controller against.
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*domain.User{}}
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserStore) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserStore) Put(_ context.Context, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.users[u.UserID] = &cp
	return nil
}

func (f *fakeUserStore) Update(_ context.Context, userID string, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	for k, v := range updates {
		switch k {
		case "otp_code":
			u.OTPCode = v.(string)
		case "password_hash":
			u.PasswordHash = v.(string)
		case "first_name":
			u.FirstName = v.(string)
		case "last_name":
			u.LastName = v.(string)
		case "username":
			u.Username = v.(string)
		case "age":
			u.Age = v.(int)
		default:
			return fmt.Errorf("fake store: unknown field %q", k)
		}
	}
	return nil
}

func (f *fakeUserStore) Delete(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return domain.ErrNotFound
	}
	delete(f.users, userID)
	return nil
}

// fakeMailer records the last delivered body so tests can read the code back.
type fakeMailer struct {
	mu   sync.Mutex
	last string
	fail bool
}

func (f *fakeMailer) SendEmail(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp unavailable")
	}
	f.last = body
	return nil
}

func (f *fakeMailer) lastCode() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Body format: "Your OTP code is: 123456".
	return f.last[len(f.last)-6:]
}

const flowTick = 10 * time.Millisecond

func TestFullRegistrationThenSignInThenReset(t *testing.T) {
	store := newFakeUserStore()
	mailer := &fakeMailer{}
	engine := otp.NewService(store, mailer, 60, flowTick)
	lifecycle := NewService(store, engine)
	ctx := context.Background()

	const email = "dara@foraling.la"

	// Request a registration code; a second immediate request is throttled.
	require.NoError(t, engine.RequestOTP(ctx, email, otp.PurposeRegister))
	err := engine.RequestOTP(ctx, email, otp.PurposeRegister)
	assert.True(t, errors.Is(err, domain.ErrCooldownActive))

	// The pending record holds the delivered code, nothing else.
	pending, err := store.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.True(t, pending.Pending())
	assert.Equal(t, mailer.lastCode(), pending.OTPCode)

	// A wrong code is rejected, the delivered one passes and stays valid.
	ok, err := engine.ValidateOTP(ctx, email, "000000")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = engine.ValidateOTP(ctx, email, mailer.lastCode())
	require.NoError(t, err)
	assert.True(t, ok)

	// Step through username and name.
	require.NoError(t, lifecycle.CheckUsername(ctx, "daradev", 24))
	require.NoError(t, lifecycle.CheckName("Dara", "Keo"))

	// Commit completes the pending record and frees the cooldown.
	u, err := lifecycle.Commit(ctx, CommitRequest{
		Email:     email,
		FirstName: "Dara",
		LastName:  "Keo",
		Username:  "daradev",
		Age:       24,
		Password:  "orchid66",
		Confirm:   "orchid66",
	})
	require.NoError(t, err)
	assert.Equal(t, pending.UserID, u.UserID)

	_, active := engine.Remaining(email)
	assert.False(t, active)

	committed, err := store.GetByEmail(ctx, email)
	require.NoError(t, err)
	assert.False(t, committed.Pending())
	assert.Equal(t, "", committed.OTPCode)

	// The consumed code is dead.
	ok, err = engine.ValidateOTP(ctx, email, mailer.lastCode())
	require.NoError(t, err)
	assert.False(t, ok)

	// Sign in by email and by username.
	got, err := lifecycle.SignIn(ctx, email, "orchid66")
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)
	got, err = lifecycle.SignIn(ctx, "daradev", "orchid66")
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)

	// Now a full password reset round trip.
	require.NoError(t, engine.RequestOTP(ctx, email, otp.PurposeResetPassword))
	ok, err = engine.ValidateOTP(ctx, email, mailer.lastCode())
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = lifecycle.ResetPassword(ctx, email, "lotus777", "lotus777")
	require.NoError(t, err)

	_, err = lifecycle.SignIn(ctx, email, "orchid66")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredential))
	got, err = lifecycle.SignIn(ctx, email, "lotus777")
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)
}

func TestAbandonedRegistrationExpiresAndFreesEmail(t *testing.T) {
	store := newFakeUserStore()
	mailer := &fakeMailer{}
	engine := otp.NewService(store, mailer, 2, flowTick)
	ctx := context.Background()

	const email = "ghost@foraling.la"
	require.NoError(t, engine.RequestOTP(ctx, email, otp.PurposeRegister))

	// Wait out the cooldown; the pending row must be reaped.
	deadline := time.After(time.Second)
	for {
		if _, err := store.GetByEmail(ctx, email); errors.Is(err, domain.ErrNotFound) {
			break
		}
		select {
		case <-deadline:
			t.Fatal("pending registration was never reaped")
		case <-time.After(flowTick):
		}
	}

	// The email can start over immediately.
	require.NoError(t, engine.RequestOTP(ctx, email, otp.PurposeRegister))
	engine.CancelCooldown(email)
}
