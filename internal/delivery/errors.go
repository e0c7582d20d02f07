package delivery

import (
	"context"
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

type Kind string

const (
	KindExhausted Kind = "exhausted"
	KindPermanent Kind = "permanent"
	KindAborted   Kind = "aborted"
)

var (
	ErrDeliveryExhausted = errors.New("delivery exhausted")
	ErrPermanentFailure  = errors.New("permanent delivery failure")
	ErrAborted           = errors.New("delivery aborted")
)

// Error is the terminal failure of a Send call.
type Error struct {
	Kind      Kind
	Operation string
	Recipient string
	Subject   string
	Attempts  int
	Err       error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindExhausted:
		return fmt.Sprintf("%s to %s: failed after %d attempts: %v", e.Operation, e.Recipient, e.Attempts, e.Err)
	case KindPermanent:
		return fmt.Sprintf("%s to %s: permanent failure on attempt %d: %v", e.Operation, e.Recipient, e.Attempts, e.Err)
	default:
		return fmt.Sprintf("%s to %s: aborted after %d attempts: %v", e.Operation, e.Recipient, e.Attempts, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrDeliveryExhausted:
		return e.Kind == KindExhausted
	case ErrPermanentFailure:
		return e.Kind == KindPermanent
	case ErrAborted:
		return e.Kind == KindAborted
	}
	return false
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
		WithTextCode("PERMANENT_FAILURE")
}

// IsTransient classifies an attempt error. Network failures and errors
// without a category are treated as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		switch rich.Category {
		case goerrors.CategoryBadInput,
			goerrors.CategoryValidation,
			goerrors.CategoryAuth,
			goerrors.CategoryAuthz,
			goerrors.CategoryNotFound,
			goerrors.CategoryConflict:
			return false
		default:
			return true
		}
	}
	return true
}
