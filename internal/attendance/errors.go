package attendance

import (
	"errors"
	"fmt"
)

// Business-rule outcomes. These are terminal: callers report them, they never retry them.
var (
	ErrAlreadyActive       = errors.New("a session is already active for this course")
	ErrNoActiveSession     = errors.New("no active session for this course")
	ErrCodeMismatch        = errors.New("attendance code does not match the active session")
	ErrNotEnrolled         = errors.New("student is not enrolled in this course")
	ErrAlreadyRecorded     = errors.New("attendance already recorded for this session")
	ErrGenerationExhausted = errors.New("could not generate a unique code")
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("not allowed for this user")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrOwnerCannotEnroll   = errors.New("course owner cannot enroll in their own course")
	ErrAlreadyExists       = errors.New("already exists")

	// ErrStorageUnavailable marks persistence failures, the only kind worth retrying.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrCodeTaken is returned by stores when a code is already held; the generator retries on it.
	ErrCodeTaken = errors.New("code already in use")
)

// StorageError wraps a driver or connection failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrStorageUnavailable, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes every StorageError match ErrStorageUnavailable.
func (e *StorageError) Is(target error) bool { return target == ErrStorageUnavailable }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Kind returns a stable, machine-readable name for err, or "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAlreadyActive):
		return "already_active"
	case errors.Is(err, ErrNoActiveSession):
		return "no_active_session"
	case errors.Is(err, ErrCodeMismatch):
		return "code_mismatch"
	case errors.Is(err, ErrNotEnrolled):
		return "not_enrolled"
	case errors.Is(err, ErrAlreadyRecorded):
		return "already_recorded"
	case errors.Is(err, ErrGenerationExhausted):
		return "generation_exhausted"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrOwnerCannotEnroll):
		return "owner_cannot_enroll"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}
