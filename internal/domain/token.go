package domain

import "time"

// RotatingToken is a single-use, time-bounded request credential.
type RotatingToken struct {
	ID        int64
	AccountID int64
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
}

// Expired reports whether the token lifetime has elapsed at now.
func (t RotatingToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// ClaimOutcome is the ledger's answer to a single-use claim.
type ClaimOutcome int

const (
	ClaimAccepted ClaimOutcome = iota + 1
	ClaimReplay
	ClaimExpired
	ClaimUnknown
	// ClaimMalformed is decided before the ledger is consulted.
	ClaimMalformed
)

func (o ClaimOutcome) String() string {
	switch o {
	case ClaimAccepted:
		return "accepted"
	case ClaimReplay:
		return "replay"
	case ClaimExpired:
		return "expired"
	case ClaimUnknown:
		return "unknown"
	case ClaimMalformed:
		return "malformed"
	default:
		return "invalid"
	}
}
