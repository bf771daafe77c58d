package domain

import "time"

// Account is the points-reward identity bound to a mobile device.
type Account struct {
	ID          int64
	DeviceID    string
	ExternalID  *string
	Points      int64
	CreatedAt   time.Time
	LastLoginAt time.Time
}

// MasterSecret holds the per-account seed and session salt. Secret and Salt
// are plaintext in memory only; the store keeps them sealed.
type MasterSecret struct {
	AccountID int64
	Secret    []byte
	Salt      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SealedSecret is the at-rest form of a MasterSecret.
type SealedSecret struct {
	AccountID    int64
	SealedSecret []byte
	SealedSalt   []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
