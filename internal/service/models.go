package service

import (
	"time"

	"github.com/smallbiznis/rewardguard/internal/domain"
)

// AccountViewModel is the account summary returned to clients.
type AccountViewModel struct {
	ID       int64  `json:"id"`
	DeviceID string `json:"device_id"`
	Points   int64  `json:"points"`
}

func accountView(a domain.Account) AccountViewModel {
	return AccountViewModel{ID: a.ID, DeviceID: a.DeviceID, Points: a.Points}
}

// EnrollmentResponse is returned by device login.
type EnrollmentResponse struct {
	Token          string           `json:"token"`
	TokenExpiresAt time.Time        `json:"token_expires_at"`
	EncryptedSeed  string           `json:"encrypted_seed"`
	SessionSalt    string           `json:"session_salt"`
	XReq           string           `json:"xreq"`
	XReqExpiresAt  time.Time        `json:"xreq_expires_at"`
	User           AccountViewModel `json:"user"`
}

// XReqResponse carries a freshly minted rotating token.
type XReqResponse struct {
	XReq          string    `json:"xreq"`
	XReqExpiresAt time.Time `json:"xreq_expires_at"`
}

// BalanceResponse is the points balance view.
type BalanceResponse struct {
	AccountID int64 `json:"account_id"`
	Points    int64 `json:"points"`
}

// ProfileResponse is the profile view.
type ProfileResponse struct {
	ID          int64     `json:"id"`
	DeviceID    string    `json:"device_id"`
	ExternalID  *string   `json:"external_id,omitempty"`
	Points      int64     `json:"points"`
	CreatedAt   time.Time `json:"created_at"`
	LastLoginAt time.Time `json:"last_login_at"`
}
