package identity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/foraling/foraling-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

type mockCooldowns struct{ mock.Mock }

func (m *mockCooldowns) CancelCooldown(email string) { m.Called(email) }

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func completedUser(t *testing.T, email, username, password string) *domain.User {
	return &domain.User{
		UserID:       "u1",
		Email:        email,
		Username:     username,
		FirstName:    "Bob",
		LastName:     "Lee",
		Age:          21,
		PasswordHash: mustHash(t, password),
	}
}

// --- CheckUsername ---

func TestCheckUsername(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByUsername", mock.Anything, "taken").Return(&domain.User{UserID: "u2", Username: "taken"}, nil)
	us.On("GetByUsername", mock.Anything, "newname").Return(nil, domain.ErrNotFound)

	svc := NewService(us, &mockCooldowns{})

	assert.True(t, errors.Is(svc.CheckUsername(context.Background(), "", 20), domain.ErrInvalidInput))
	assert.True(t, errors.Is(svc.CheckUsername(context.Background(), "ab", 20), domain.ErrConflict))
	assert.True(t, errors.Is(svc.CheckUsername(context.Background(), "taken", 20), domain.ErrConflict))
	assert.True(t, errors.Is(svc.CheckUsername(context.Background(), "newname", 0), domain.ErrInvalidInput))
	assert.NoError(t, svc.CheckUsername(context.Background(), "newname", 20))
}

// --- CheckName ---

func TestCheckName(t *testing.T) {
	svc := NewService(nil, &mockCooldowns{})

	assert.True(t, errors.Is(svc.CheckName("", "Lee"), domain.ErrInvalidInput))
	assert.True(t, errors.Is(svc.CheckName("Bo", "Lee"), domain.ErrInvalidInput))
	assert.True(t, errors.Is(svc.CheckName("Bob", "Le"), domain.ErrInvalidInput))
	assert.NoError(t, svc.CheckName("Bob", "Lee"))
}

// --- Commit ---

func validCommit() CommitRequest {
	return CommitRequest{
		Email:     "a@b.com",
		FirstName: "Bob",
		LastName:  "Lee",
		Username:  "boblee",
		Age:       21,
		Password:  "secret1",
		Confirm:   "secret1",
	}
}

func TestCommit_PasswordRules(t *testing.T) {
	svc := NewService(&mockUserStore{}, &mockCooldowns{})

	short := validCommit()
	short.Password, short.Confirm = "abc", "abc"
	_, err := svc.Commit(context.Background(), short)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	mismatch := validCommit()
	mismatch.Confirm = "secret2"
	_, err = svc.Commit(context.Background(), mismatch)
	assert.True(t, errors.Is(err, domain.ErrPasswordMismatch))
}

func TestCommit_RechecksUniqueness(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(completedUser(t, "a@b.com", "other", "pw123456"), nil)

	svc := NewService(us, &mockCooldowns{})
	_, err := svc.Commit(context.Background(), validCommit())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	us2 := &mockUserStore{}
	us2.On("GetByEmail", mock.Anything, "a@b.com").Return(nil, domain.ErrNotFound)
	us2.On("GetByUsername", mock.Anything, "boblee").Return(&domain.User{UserID: "u9", Username: "boblee"}, nil)

	svc2 := NewService(us2, &mockCooldowns{})
	_, err = svc2.Commit(context.Background(), validCommit())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestCommit_CompletesPendingRecordInPlace(t *testing.T) {
	us := &mockUserStore{}
	pending := &domain.User{UserID: "u1", Email: "a@b.com", OTPCode: "123456"}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(pending, nil)
	us.On("GetByUsername", mock.Anything, "boblee").Return(nil, domain.ErrNotFound)

	var updates map[string]interface{}
	us.On("Update", mock.Anything, "u1", mock.Anything).Run(func(args mock.Arguments) {
		updates = args.Get(2).(map[string]interface{})
	}).Return(nil)

	cd := &mockCooldowns{}
	cd.On("CancelCooldown", "a@b.com").Return()

	svc := NewService(us, cd)
	u, err := svc.Commit(context.Background(), validCommit())
	require.NoError(t, err)

	assert.Equal(t, "u1", u.UserID)
	assert.Equal(t, "boblee", u.Username)
	require.NotNil(t, updates)
	assert.Equal(t, "Bob", updates["first_name"])
	assert.Equal(t, "", updates["otp_code"])

	hash, ok := updates["password_hash"].(string)
	require.True(t, ok)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret1")))

	cd.AssertCalled(t, "CancelCooldown", "a@b.com")
	us.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestCommit_CreatesRecordWhenNonePending(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(nil, domain.ErrNotFound)
	us.On("GetByUsername", mock.Anything, "boblee").Return(nil, domain.ErrNotFound)

	var created *domain.User
	us.On("Put", mock.Anything, mock.AnythingOfType("*domain.User")).Run(func(args mock.Arguments) {
		created = args.Get(1).(*domain.User)
	}).Return(nil)

	cd := &mockCooldowns{}
	cd.On("CancelCooldown", "a@b.com").Return()

	svc := NewService(us, cd)
	u, err := svc.Commit(context.Background(), validCommit())
	require.NoError(t, err)

	require.NotNil(t, created)
	assert.NotEmpty(t, created.UserID)
	assert.False(t, created.Pending())
	assert.Equal(t, u.UserID, created.UserID)
}

// slowWriteStore is a map-backed store whose writes take a while, widening
// the window between the uniqueness re-check and the write.
type slowWriteStore struct {
	mu         sync.Mutex
	delay      time.Duration
	byEmail    map[string]*domain.User
	byUsername map[string]*domain.User
	puts       int
}

func newSlowWriteStore(delay time.Duration) *slowWriteStore {
	return &slowWriteStore{
		delay:      delay,
		byEmail:    map[string]*domain.User{},
		byUsername: map[string]*domain.User{},
	}
}

func (s *slowWriteStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byEmail[email]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (s *slowWriteStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byUsername[username]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (s *slowWriteStore) Put(ctx context.Context, u *domain.User) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byEmail[u.Email] = u
	s.byUsername[u.Username] = u
	s.puts++
	return nil
}

func (s *slowWriteStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return nil
}

func TestCommit_ConcurrentSameUsernameOneWins(t *testing.T) {
	store := newSlowWriteStore(20 * time.Millisecond)
	cd := &mockCooldowns{}
	cd.On("CancelCooldown", mock.Anything).Return()
	svc := NewService(store, cd)

	// Two registrations race for "boblee" from different emails. Exactly
	// one may land; the other must see the name as taken.
	emails := []string{"a@b.com", "c@d.com"}
	errs := make([]error, len(emails))
	var wg sync.WaitGroup
	for i, email := range emails {
		wg.Add(1)
		go func(i int, email string) {
			defer wg.Done()
			req := validCommit()
			req.Email = email
			_, errs[i] = svc.Commit(context.Background(), req)
		}(i, email)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected commit error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Equal(t, 1, store.puts)
}

func TestCommit_StoreFailureSkipsCancel(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(nil, domain.ErrNotFound)
	us.On("GetByUsername", mock.Anything, "boblee").Return(nil, domain.ErrNotFound)
	us.On("Put", mock.Anything, mock.Anything).Return(errors.New("dynamo down"))

	cd := &mockCooldowns{}
	svc := NewService(us, cd)
	_, err := svc.Commit(context.Background(), validCommit())
	require.Error(t, err)
	cd.AssertNotCalled(t, "CancelCooldown", mock.Anything)
}

// --- SignIn ---

func TestSignIn_ByEmailAndByUsername(t *testing.T) {
	account := completedUser(t, "a@b.com", "boblee", "secret1")

	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(account, nil)
	us.On("GetByUsername", mock.Anything, "boblee").Return(account, nil)

	svc := NewService(us, &mockCooldowns{})

	u, err := svc.SignIn(context.Background(), "a@b.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)

	u, err = svc.SignIn(context.Background(), "boblee", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.UserID)

	// The identifier routes by shape: email syntax never falls back to
	// username lookup.
	us.AssertNotCalled(t, "GetByUsername", mock.Anything, "a@b.com")
}

func TestSignIn_WrongPassword(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(completedUser(t, "a@b.com", "boblee", "secret1"), nil)

	svc := NewService(us, &mockCooldowns{})
	_, err := svc.SignIn(context.Background(), "a@b.com", "wrong-pass")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidCredential))
}

func TestSignIn_UnknownAndPendingIdentifiers(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "nobody@x.com").Return(nil, domain.ErrNotFound)
	us.On("GetByUsername", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)
	us.On("GetByEmail", mock.Anything, "pending@x.com").Return(&domain.User{UserID: "u3", Email: "pending@x.com", OTPCode: "111111"}, nil)

	svc := NewService(us, &mockCooldowns{})

	_, err := svc.SignIn(context.Background(), "nobody@x.com", "secret1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = svc.SignIn(context.Background(), "ghost", "secret1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	// A half-finished registration must not be signable-in.
	_, err = svc.SignIn(context.Background(), "pending@x.com", "secret1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

// --- ResetPassword ---

func TestResetPassword_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	account := completedUser(t, "a@b.com", "boblee", "oldpass1")
	account.OTPCode = "123456"
	us.On("GetByEmail", mock.Anything, "a@b.com").Return(account, nil)

	var updates map[string]interface{}
	us.On("Update", mock.Anything, "u1", mock.Anything).Run(func(args mock.Arguments) {
		updates = args.Get(2).(map[string]interface{})
	}).Return(nil)

	cd := &mockCooldowns{}
	cd.On("CancelCooldown", "a@b.com").Return()

	svc := NewService(us, cd)
	u, err := svc.ResetPassword(context.Background(), "a@b.com", "newpass1", "newpass1")
	require.NoError(t, err)

	require.NotNil(t, updates)
	assert.Equal(t, "", updates["otp_code"])
	hash := updates["password_hash"].(string)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("newpass1")))
	assert.Equal(t, "", u.OTPCode)
	cd.AssertCalled(t, "CancelCooldown", "a@b.com")
}

func TestResetPassword_Rules(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "pending@x.com").Return(&domain.User{UserID: "u3", Email: "pending@x.com", OTPCode: "111111"}, nil)

	svc := NewService(us, &mockCooldowns{})

	_, err := svc.ResetPassword(context.Background(), "a@b.com", "short", "short")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = svc.ResetPassword(context.Background(), "a@b.com", "newpass1", "newpass2")
	assert.True(t, errors.Is(err, domain.ErrPasswordMismatch))

	// Resets only apply to completed accounts.
	_, err = svc.ResetPassword(context.Background(), "pending@x.com", "newpass1", "newpass1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
