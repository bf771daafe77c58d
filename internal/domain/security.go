package domain

import "time"

// SecurityMetric records an accepted protected request. Advisory only.
type SecurityMetric struct {
	AccountID    int64
	Route        string
	HeadersCount int
	Encrypted    bool
	CreatedAt    time.Time
}

// SecurityViolation records a rejected request. Advisory only.
type SecurityViolation struct {
	AccountID     int64
	Route         string
	ViolationType string
	Message       string
	CreatedAt     time.Time
}
