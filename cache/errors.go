package cache

import (
	"errors"
	"fmt"
)

// ErrorKind classifies cache failures.
type ErrorKind uint8

const (
	KindUnavailable ErrorKind = iota
	KindQuotaExceeded
	KindCorrupted
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindQuotaExceeded:
		return "quota exceeded"
	case KindCorrupted:
		return "corrupted"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Sentinels matched by errors.Is against a *CacheError of the same kind.
var (
	ErrUnavailable   = errors.New("cache: tier unavailable")
	ErrQuotaExceeded = errors.New("cache: quota exceeded")
	ErrCorrupted     = errors.New("cache: corrupted entry")
)

// CacheError reports a failure of one tier for one id.
type CacheError struct {
	Tier Tier
	Kind ErrorKind
	ID   string
	Err  error
}

func (e *CacheError) Error() string {
	msg := fmt.Sprintf("cache: %s tier: %s", e.Tier, e.Kind)
	if e.ID != "" {
		msg += fmt.Sprintf(" (id %q)", e.ID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CacheError) Unwrap() error { return e.Err }

func (e *CacheError) Is(target error) bool {
	switch target {
	case ErrUnavailable:
		return e.Kind == KindUnavailable
	case ErrQuotaExceeded:
		return e.Kind == KindQuotaExceeded
	case ErrCorrupted:
		return e.Kind == KindCorrupted
	}
	return false
}
