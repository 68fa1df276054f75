package form

import "errors"

var (
	// ErrDisposed is returned by every mutation after Dispose.
	ErrDisposed = errors.New("form: container disposed")
	// ErrSubmitting is returned by Submit while a previous submit has not
	// been completed.
	ErrSubmitting = errors.New("form: submit in progress")
	// ErrNoPersistence is returned by Save and Restore without WithPersistence.
	ErrNoPersistence = errors.New("form: persistence not configured")
)

// ruleCoerce tags issues produced while storing a value rather than by a
// validator, so a later successful store clears them.
const ruleCoerce = "coerce"
