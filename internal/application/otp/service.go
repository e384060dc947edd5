package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/foraling/foraling-server/internal/domain"
	"github.com/foraling/foraling-server/internal/infrastructure/mail"
	"github.com/foraling/foraling-server/internal/pkg/id"
)

// Purpose says why an OTP is being issued.
type Purpose string

const (
	PurposeRegister      Purpose = "register"
	PurposeResetPassword Purpose = "reset_password"
)

// Service is the verification engine: it issues, delivers and validates
// OTPs, and it is the sole writer of the otp_code field.
type Service interface {
	// RequestOTP validates the email for the given purpose, generates a
	// 6-digit code, dispatches it by mail, persists it against the identity
	// record (creating a pending registration when needed) and starts the
	// cooldown. A request during an active cooldown fails with
	// ErrCooldownActive and sends nothing.
	RequestOTP(ctx context.Context, email string, purpose Purpose) error

	// ValidateOTP reports whether code exactly matches the code currently
	// stored for email. Validation does not consume the code; the flow that
	// uses the verification clears it.
	ValidateOTP(ctx context.Context, email, code string) (bool, error)

	// Remaining is the pull query on the cooldown for email.
	Remaining(email string) (int, bool)

	// Subscribe is the push stream on the cooldown for email.
	Subscribe(email string) (<-chan int, func(), bool)

	// CancelCooldown stops the cooldown without expiry side effects. Flows
	// call this when they complete successfully before natural expiry.
	CancelCooldown(email string)
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	Delete(ctx context.Context, userID string) error
}

type service struct {
	repo     userStore
	mailer   mail.Mailer
	registry *Registry
}

// NewService builds the verification engine with an owned cooldown registry
// counting down from cooldownSeconds at the given tick interval.
func NewService(repo userStore, mailer mail.Mailer, cooldownSeconds int, tick time.Duration) Service {
	s := &service{repo: repo, mailer: mailer}
	s.registry = NewRegistry(cooldownSeconds, tick, s.expireCooldown)
	return s
}

func (s *service) RequestOTP(ctx context.Context, email string, purpose Purpose) error {
	if email == "" || !domain.ValidEmail(email) {
		return fmt.Errorf("malformed email: %w", domain.ErrInvalidInput)
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	switch purpose {
	case PurposeRegister:
		if existing != nil && !existing.Pending() {
			return fmt.Errorf("email already registered: %w", domain.ErrConflict)
		}
	case PurposeResetPassword:
		if existing == nil || existing.Pending() {
			return fmt.Errorf("no account for this email: %w", domain.ErrNotFound)
		}
	default:
		return fmt.Errorf("unknown purpose %q: %w", purpose, domain.ErrInvalidInput)
	}

	// Start is the atomic gate: the loser of a same-email race is rejected
	// here before anything is generated or sent.
	if !s.registry.Start(email) {
		return fmt.Errorf("code was recently sent: %w", domain.ErrCooldownActive)
	}

	code, err := generateCode()
	if err != nil {
		s.registry.Cancel(email)
		return err
	}

	if err := s.mailer.SendEmail(email, subjectFor(purpose), "Your OTP code is: "+code); err != nil {
		// Cancel before the first tick can fire any side effect, so a failed
		// delivery never throttles the next request.
		s.registry.Cancel(email)
		return fmt.Errorf("send otp mail: %v: %w", err, domain.ErrDeliveryFailed)
	}

	if existing != nil {
		err = s.repo.Update(ctx, existing.UserID, map[string]interface{}{"otp_code": code})
	} else {
		now := time.Now().UTC()
		err = s.repo.Put(ctx, &domain.User{
			UserID:    id.New(),
			Email:     email,
			OTPCode:   code,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err != nil {
		s.registry.Cancel(email)
		return err
	}
	return nil
}

func (s *service) ValidateOTP(ctx context.Context, email, code string) (bool, error) {
	if email == "" || code == "" {
		return false, fmt.Errorf("email and code required: %w", domain.ErrInvalidInput)
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	// A cleared code is stored as the empty string and can never validate.
	return u.OTPCode != "" && u.OTPCode == code, nil
}

func (s *service) Remaining(email string) (int, bool) {
	return s.registry.Remaining(email)
}

func (s *service) Subscribe(email string) (<-chan int, func(), bool) {
	return s.registry.Subscribe(email)
}

func (s *service) CancelCooldown(email string) {
	s.registry.Cancel(email)
}

// expireCooldown runs on natural expiry: a still-pending registration is
// deleted outright, a completed account merely loses its stored code. No
// session is necessarily attached, so failures are logged, not surfaced.
func (s *service) expireCooldown(email string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("otp expiry: lookup failed", "email", email, "err", err)
		}
		return
	}
	if u.Pending() {
		if err := s.repo.Delete(ctx, u.UserID); err != nil {
			slog.Warn("otp expiry: could not delete pending registration", "email", email, "err", err)
		}
		return
	}
	if u.OTPCode != "" {
		if err := s.repo.Update(ctx, u.UserID, map[string]interface{}{"otp_code": ""}); err != nil {
			slog.Warn("otp expiry: could not clear code", "email", email, "err", err)
		}
	}
}

func subjectFor(purpose Purpose) string {
	if purpose == PurposeResetPassword {
		return "Your OTP code for resetting your password"
	}
	return "Confirm your OTP code"
}

// generateCode returns a 6-digit code uniformly distributed over
// [100000, 999999].
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+100000), nil
}
