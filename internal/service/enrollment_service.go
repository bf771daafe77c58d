package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/rewardguard/internal/domain"
	"github.com/smallbiznis/rewardguard/internal/repository"
	"github.com/smallbiznis/rewardguard/internal/seedvault"
	"github.com/smallbiznis/rewardguard/internal/telemetry"
)

const maxDeviceIDLength = 255

// ErrInvalidDeviceID is returned when the device identifier is absent or too long.
var ErrInvalidDeviceID = errors.New("device id is required")

// SecretStore persists master secrets.
type SecretStore interface {
	StoreSecrets(ctx context.Context, accountID int64, secret, salt []byte) error
}

// TokenIssuer mints rotating request tokens.
type TokenIssuer interface {
	Issue(ctx context.Context, accountID int64) (domain.RotatingToken, error)
}

// SessionIssuer signs session tokens.
type SessionIssuer interface {
	GenerateSessionToken(account domain.Account) (string, time.Time, error)
}

// EnrollmentService handles device login.
type EnrollmentService struct {
	accounts  repository.AccountRepository
	secrets   SecretStore
	tokens    TokenIssuer
	sessions  SessionIssuer
	snowflake *snowflake.Node
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewEnrollmentService wires dependencies.
func NewEnrollmentService(accounts repository.AccountRepository, secrets SecretStore, tokens TokenIssuer, sessions SessionIssuer, node *snowflake.Node, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.L()
	}
	return &EnrollmentService{
		accounts:  accounts,
		secrets:   secrets,
		tokens:    tokens,
		sessions:  sessions,
		snowflake: node,
		logger:    logger.Named("enrollment"),
		tracer:    telemetry.Tracer("service"),
		now:       time.Now,
	}
}

// Enroll finds or creates the device's account, issues a fresh master
// secret wrapped under the device key, and returns session credentials.
func (s *EnrollmentService) Enroll(ctx context.Context, deviceID string) (*EnrollmentResponse, error) {
	ctx, span := s.tracer.Start(ctx, "Enrollment.Enroll")
	defer span.End()

	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" || len(deviceID) > maxDeviceIDLength {
		return nil, ErrInvalidDeviceID
	}

	account, created, err := s.findOrCreate(ctx, deviceID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	secret, err := seedvault.GenerateMasterSecret()
	if err != nil {
		return nil, err
	}
	salt, err := seedvault.GenerateSessionSalt()
	if err != nil {
		return nil, err
	}
	encryptedSeed, err := seedvault.EncryptSecretWithDeviceKey(secret, deviceID)
	if err != nil {
		return nil, fmt.Errorf("wrap master secret: %w", err)
	}
	if err := s.secrets.StoreSecrets(ctx, account.ID, secret, salt); err != nil {
		s.logger.Warn("store master secret failed, continuing login",
			zap.Int64("account_id", account.ID),
			zap.Error(err),
		)
	}

	session, sessionExpiry, err := s.sessions.GenerateSessionToken(account)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	xreq, err := s.tokens.Issue(ctx, account.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("issue request token: %w", err)
	}

	s.logger.Info("device enrolled",
		zap.String("event", "device.login"),
		zap.Int64("account_id", account.ID),
		zap.Bool("new_account", created),
	)

	return &EnrollmentResponse{
		Token:          session,
		TokenExpiresAt: sessionExpiry,
		EncryptedSeed:  encryptedSeed,
		SessionSalt:    base64.StdEncoding.EncodeToString(salt),
		XReq:           xreq.Value,
		XReqExpiresAt:  xreq.ExpiresAt,
		User:           accountView(account),
	}, nil
}

func (s *EnrollmentService) findOrCreate(ctx context.Context, deviceID string) (domain.Account, bool, error) {
	now := s.now().UTC()
	account, err := s.accounts.GetByDeviceID(ctx, deviceID)
	if err == nil {
		if err := s.accounts.TouchLogin(ctx, account.ID, now); err != nil {
			s.logger.Warn("update last login failed", zap.Int64("account_id", account.ID), zap.Error(err))
		}
		account.LastLoginAt = now
		return account, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return domain.Account{}, false, fmt.Errorf("lookup account: %w", err)
	}

	account, err = s.accounts.Create(ctx, domain.Account{
		ID:          s.snowflake.Generate().Int64(),
		DeviceID:    deviceID,
		CreatedAt:   now,
		LastLoginAt: now,
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// Another request enrolled the same device first.
		account, err = s.accounts.GetByDeviceID(ctx, deviceID)
		if err != nil {
			return domain.Account{}, false, fmt.Errorf("lookup account: %w", err)
		}
		return account, false, nil
	}
	if err != nil {
		return domain.Account{}, false, fmt.Errorf("create account: %w", err)
	}
	return account, true, nil
}
