package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/foraling/foraling-server/internal/domain"
	"github.com/foraling/foraling-server/internal/pkg/id"
	"github.com/foraling/foraling-server/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// CommitRequest carries the final registration step.
type CommitRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Username  string `json:"username" validate:"required"`
	Age       int    `json:"age" validate:"required,gt=0"`
	Password  string `json:"password" validate:"required"`
	Confirm   string `json:"confirm" validate:"required"`
}

// Service is the identity lifecycle controller: the stepwise registration
// checks and commit, sign-in, and password reset.
type Service interface {
	// CheckUsername enforces the username step: length >= 3 and not used by
	// any record, pending registrations included, so two in-flight signups
	// can never both hold the same name.
	CheckUsername(ctx context.Context, username string, age int) error

	// CheckName enforces the name step: both components >= 3 characters.
	CheckName(first, last string) error

	// Commit finishes a registration: password rules, commit-time
	// re-check of email and username uniqueness, hash, single atomic write,
	// and cooldown cancellation.
	Commit(ctx context.Context, req CommitRequest) (*domain.User, error)

	// SignIn authenticates by email when the identifier parses as one,
	// falling back to username lookup otherwise.
	SignIn(ctx context.Context, identifier, password string) (*domain.User, error)

	// ResetPassword stores a new password for a completed account. The
	// caller is responsible for having validated an OTP for this email
	// first.
	ResetPassword(ctx context.Context, email, password, confirm string) (*domain.User, error)
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

// cooldowns is the slice of the verification engine this controller needs:
// successful flows cancel the countdown that was protecting them.
type cooldowns interface {
	CancelCooldown(email string)
}

type service struct {
	repo      userStore
	cooldowns cooldowns

	// commitMu serializes the uniqueness re-check and the write inside
	// Commit. Each session runs in its own goroutine and the store has no
	// unique constraint on username, so without this two racing commits
	// could both pass the re-check and both claim the same name.
	commitMu sync.Mutex
}

func NewService(repo userStore, cd cooldowns) Service {
	return &service{repo: repo, cooldowns: cd}
}

const (
	minUsernameLen = 3
	minNameLen     = 3
	minPasswordLen = 6
)

func (s *service) CheckUsername(ctx context.Context, username string, age int) error {
	if username == "" || age <= 0 {
		return fmt.Errorf("username and age required: %w", domain.ErrInvalidInput)
	}
	if len([]rune(username)) < minUsernameLen {
		return fmt.Errorf("username must be at least %d characters: %w", minUsernameLen, domain.ErrConflict)
	}
	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return fmt.Errorf("username already taken: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}

func (s *service) CheckName(first, last string) error {
	if first == "" || last == "" {
		return fmt.Errorf("first and last name required: %w", domain.ErrInvalidInput)
	}
	if len([]rune(first)) < minNameLen || len([]rune(last)) < minNameLen {
		return fmt.Errorf("names must be at least %d characters: %w", minNameLen, domain.ErrInvalidInput)
	}
	return nil
}

func (s *service) Commit(ctx context.Context, req CommitRequest) (*domain.User, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLen {
		return nil, fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, domain.ErrInvalidInput)
	}
	if req.Password != req.Confirm {
		return nil, fmt.Errorf("passwords do not match: %w", domain.ErrPasswordMismatch)
	}

	// Last-writer race guard: uniqueness is re-checked at the commit point,
	// not only during the earlier steps, and the check-plus-write runs under
	// the commit lock so concurrent commits resolve to exactly one winner.
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	existing, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil && !existing.Pending() {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	if _, err := s.repo.GetByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("username already taken: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	u := &domain.User{
		Email:        req.Email,
		Username:     req.Username,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Age:          req.Age,
		PasswordHash: string(hash),
		UpdatedAt:    now,
	}
	if existing != nil {
		// Complete the pending record in place. The single update is the
		// atomic commit point; it also clears the consumed code.
		u.UserID = existing.UserID
		u.CreatedAt = existing.CreatedAt
		err = s.repo.Update(ctx, existing.UserID, map[string]interface{}{
			"first_name":    req.FirstName,
			"last_name":     req.LastName,
			"username":      req.Username,
			"age":           req.Age,
			"password_hash": string(hash),
			"otp_code":      "",
		})
	} else {
		u.UserID = id.New()
		u.CreatedAt = now
		err = s.repo.Put(ctx, u)
	}
	if err != nil {
		return nil, err
	}

	// Registration success supersedes natural OTP expiry.
	s.cooldowns.CancelCooldown(req.Email)
	return u, nil
}

func (s *service) SignIn(ctx context.Context, identifier, password string) (*domain.User, error) {
	if identifier == "" || password == "" {
		return nil, fmt.Errorf("identifier and password required: %w", domain.ErrInvalidInput)
	}

	var (
		u   *domain.User
		err error
	)
	if domain.ValidEmail(identifier) {
		u, err = s.repo.GetByEmail(ctx, identifier)
	} else {
		u, err = s.repo.GetByUsername(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("no such user: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	if u.Pending() {
		return nil, fmt.Errorf("no such user: %w", domain.ErrNotFound)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("wrong password: %w", domain.ErrInvalidCredential)
	}
	return u, nil
}

func (s *service) ResetPassword(ctx context.Context, email, password, confirm string) (*domain.User, error) {
	if email == "" || password == "" || confirm == "" {
		return nil, fmt.Errorf("missing fields: %w", domain.ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, domain.ErrInvalidInput)
	}
	if password != confirm {
		return nil, fmt.Errorf("passwords do not match: %w", domain.ErrPasswordMismatch)
	}

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("no account for this email: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	if u.Pending() {
		return nil, fmt.Errorf("no account for this email: %w", domain.ErrNotFound)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, u.UserID, map[string]interface{}{
		"password_hash": string(hash),
		"otp_code":      "",
	}); err != nil {
		return nil, err
	}

	s.cooldowns.CancelCooldown(email)
	u.PasswordHash = string(hash)
	u.OTPCode = ""
	return u, nil
}
