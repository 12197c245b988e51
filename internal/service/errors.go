package service

import (
	"context"
	"errors"
	"fmt"

	"alcyxob/gym-notifier/internal/repository"
)

// --- Error Definitions ---
// Every error leaving the service layer wraps exactly one of these.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrTransient  = errors.New("store unavailable")

	// ErrCorruptRecord marks a stored document that no longer decodes into
	// its domain type.
	ErrCorruptRecord = errors.New("corrupt stored record")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func corruptError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorruptRecord, op, err)
}

// storeError classifies a repository failure. Context cancellation is passed
// through untouched so callers can tell it apart from store trouble.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	case errors.Is(err, repository.ErrBatchTooLarge), errors.Is(err, repository.ErrInvalidQuery):
		return fmt.Errorf("%w: %s: %v", ErrValidation, op, err)
	default:
		return fmt.Errorf("%w: %s: %v", ErrTransient, op, err)
	}
}
