package cache

import (
	"fmt"
	"strings"
	"time"
)

// Tier is one level of the persistence hierarchy, fastest first.
type Tier uint8

const (
	TierHot Tier = iota
	TierWarm
	TierCold
	TierArchive
)

func (t Tier) String() string {
	switch t {
	case TierHot:
		return "hot"
	case TierWarm:
		return "warm"
	case TierCold:
		return "cold"
	case TierArchive:
		return "archive"
	default:
		return fmt.Sprintf("tier(%d)", uint8(t))
	}
}

// ParseTier maps a tier name to a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hot":
		return TierHot, nil
	case "warm":
		return TierWarm, nil
	case "cold":
		return TierCold, nil
	case "archive":
		return TierArchive, nil
	default:
		return 0, fmt.Errorf("cache: unknown tier %q", s)
	}
}

// Entry is the persistence envelope. Entries are superseded, never mutated;
// stores hand out copies.
type Entry struct {
	ID        string    `codec:"id"`
	Payload   []byte    `codec:"p"`
	CreatedAt time.Time `codec:"c"`
	ExpiresAt time.Time `codec:"e"`
	Tier      Tier      `codec:"t"`
}

// Clone returns a copy with its own payload buffer.
func (e Entry) Clone() Entry {
	e.Payload = append([]byte(nil), e.Payload...)
	return e
}

// Expired reports whether the entry is past its expiry at now. A zero
// ExpiresAt never expires.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Size is the payload length in bytes.
func (e Entry) Size() int { return len(e.Payload) }
