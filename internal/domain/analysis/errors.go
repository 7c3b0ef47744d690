package analysis

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidImage indicates the payload is not an image file.
	ErrInvalidImage = errors.New("invalid image: not an image file")

	// ErrImageTooLarge indicates the payload exceeds MaxImageBytes.
	ErrImageTooLarge = errors.New("image exceeds the 5 MiB limit")

	// ErrTrialExhausted indicates an anonymous caller used up the free
	// analyses. Callers should prompt sign-up, not retry.
	ErrTrialExhausted = errors.New("free trial exhausted")

	// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
	ErrQuotaExceeded = errors.New("ai quota exceeded")

	// ErrInvalidAPIKey indicates the provider rejected our credentials.
	ErrInvalidAPIKey = errors.New("ai api key invalid or expired")

	// ErrSafetyBlocked indicates the provider refused the image on safety grounds.
	ErrSafetyBlocked = errors.New("ai request blocked by safety filters")

	// ErrEmptyResponse indicates the provider returned no usable text.
	ErrEmptyResponse = errors.New("ai returned an empty response")

	// ErrNotFound indicates the requested record does not exist for this owner.
	ErrNotFound = errors.New("analysis not found")
)

// FailedError is the terminal inference failure, raised once retries are
// exhausted or a permanent provider error occurs.
type FailedError struct {
	Attempts int
	Cause    error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("analysis failed after %d attempt(s): %v", e.Attempts, e.Cause)
}

func (e *FailedError) Unwrap() error { return e.Cause }

// UserMessage returns a sanitized message safe to show end users. The raw
// provider error is only surfaced through Error()/Unwrap for logs.
func (e *FailedError) UserMessage() string {
	switch {
	case errors.Is(e.Cause, ErrQuotaExceeded):
		return "Quota d'API dépassé. Veuillez réessayer plus tard."
	case errors.Is(e.Cause, ErrInvalidAPIKey):
		return "Le service d'analyse est mal configuré. Veuillez contacter l'administrateur."
	case errors.Is(e.Cause, ErrSafetyBlocked):
		return "Le contenu a été bloqué pour des raisons de sécurité. Veuillez utiliser une image de médicament."
	default:
		return "Une erreur est survenue lors de l'analyse. Veuillez réessayer avec une image plus claire."
	}
}
