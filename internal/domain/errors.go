package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrValidation: a wizard-step precondition is unmet. Recovered locally;
	// never a system failure.
	ErrValidation = errors.New("validation failed")

	// ErrRoomUnavailable: the room no longer resolves available (lease
	// appeared, or a racing settlement confirmed first). Retryable.
	ErrRoomUnavailable = errors.New("room unavailable")

	// ErrPaymentCapture: the gateway declined or failed the capture.
	// Retryable; no records exist.
	ErrPaymentCapture = errors.New("payment capture failed")

	// ErrInvalidTransition: the wizard was asked to move somewhere its
	// current step does not permit.
	ErrInvalidTransition = errors.New("invalid wizard transition")

	// ErrAlreadyApproved: the payment's false->true approval transition
	// already happened; it never runs twice.
	ErrAlreadyApproved = errors.New("payment already approved")
)
