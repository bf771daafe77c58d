package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/rewardguard/internal/repository"
)

// ErrAccountNotFound is returned when the authenticated account no longer exists.
var ErrAccountNotFound = errors.New("account not found")

// AccountService serves account-scoped reads and token reissue.
type AccountService struct {
	accounts repository.AccountRepository
	tokens   TokenIssuer
}

// NewAccountService wires dependencies.
func NewAccountService(accounts repository.AccountRepository, tokens TokenIssuer) *AccountService {
	return &AccountService{accounts: accounts, tokens: tokens}
}

// Balance returns the account's points balance.
func (s *AccountService) Balance(ctx context.Context, accountID int64) (BalanceResponse, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return BalanceResponse{}, ErrAccountNotFound
		}
		return BalanceResponse{}, err
	}
	return BalanceResponse{AccountID: account.ID, Points: account.Points}, nil
}

// Profile returns the account profile.
func (s *AccountService) Profile(ctx context.Context, accountID int64) (ProfileResponse, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ProfileResponse{}, ErrAccountNotFound
		}
		return ProfileResponse{}, err
	}
	return ProfileResponse{
		ID:          account.ID,
		DeviceID:    account.DeviceID,
		ExternalID:  account.ExternalID,
		Points:      account.Points,
		CreatedAt:   account.CreatedAt,
		LastLoginAt: account.LastLoginAt,
	}, nil
}

// IssueXReq mints a fresh rotating token for a session-authenticated
// client whose token chain was broken.
func (s *AccountService) IssueXReq(ctx context.Context, accountID int64) (XReqResponse, error) {
	tok, err := s.tokens.Issue(ctx, accountID)
	if err != nil {
		return XReqResponse{}, fmt.Errorf("issue request token: %w", err)
	}
	return XReqResponse{XReq: tok.Value, XReqExpiresAt: tok.ExpiresAt}, nil
}
