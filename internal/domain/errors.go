package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so transport layers can map to HTTP status codes or
// session alerts without leaking infrastructure details.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrNotFound          = errors.New("not found")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrPasswordMismatch  = errors.New("password mismatch")
	ErrCooldownActive    = errors.New("cooldown active")
	ErrDeliveryFailed    = errors.New("delivery failed")
	ErrForbidden         = errors.New("forbidden")
	ErrStorage           = errors.New("storage error")
)
