package jwt

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	gojose "github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"

	"github.com/smallbiznis/rewardguard/internal/domain"
)

// ErrInvalidToken is returned for any session token that fails validation.
var ErrInvalidToken = errors.New("invalid session token")

// Generator is responsible for signing and validating session JWTs.
type Generator struct {
	key    SigningKey
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewGenerator constructs a JWT generator.
func NewGenerator(key SigningKey, ttl time.Duration, issuer string) *Generator {
	return &Generator{key: key, ttl: ttl, issuer: issuer, now: time.Now}
}

// SessionClaims are the custom claims carried by session tokens.
type SessionClaims struct {
	DeviceID string `json:"device_id"`
}

// Session is a validated session token.
type Session struct {
	AccountID int64
	DeviceID  string
	ExpiresAt time.Time
}

// GenerateSessionToken signs a session token for the account.
func (g *Generator) GenerateSessionToken(account domain.Account) (string, time.Time, error) {
	signer, err := gojose.NewSigner(
		gojose.SigningKey{Algorithm: g.key.Algorithm, Key: g.key.Secret},
		(&gojose.SignerOptions{}).WithType("JWT").WithHeader("kid", g.key.KID),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("new signer: %w", err)
	}

	now := g.now().UTC()
	expiry := now.Add(g.ttl)
	stdClaims := gojwt.Claims{
		ID:        uuid.NewString(),
		Subject:   strconv.FormatInt(account.ID, 10),
		Issuer:    g.issuer,
		IssuedAt:  gojwt.NewNumericDate(now),
		Expiry:    gojwt.NewNumericDate(expiry),
		NotBefore: gojwt.NewNumericDate(now),
	}

	token, err := gojwt.Signed(signer).Claims(stdClaims).Claims(SessionClaims{DeviceID: account.DeviceID}).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("serialize jwt: %w", err)
	}
	return token, expiry, nil
}

// ValidateSessionToken verifies the signature and standard claims.
func (g *Generator) ValidateSessionToken(token string) (Session, error) {
	parsed, err := gojwt.ParseSigned(token, []gojose.SignatureAlgorithm{g.key.Algorithm})
	if err != nil {
		return Session{}, fmt.Errorf("%w: parse: %v", ErrInvalidToken, err)
	}

	var std gojwt.Claims
	var custom SessionClaims
	if err := parsed.Claims(g.key.Secret, &std, &custom); err != nil {
		return Session{}, fmt.Errorf("%w: verify: %v", ErrInvalidToken, err)
	}
	if err := std.ValidateWithLeeway(gojwt.Expected{Issuer: g.issuer, Time: g.now()}, 0); err != nil {
		return Session{}, fmt.Errorf("%w: claims: %v", ErrInvalidToken, err)
	}

	accountID, err := strconv.ParseInt(std.Subject, 10, 64)
	if err != nil || accountID <= 0 {
		return Session{}, fmt.Errorf("%w: subject", ErrInvalidToken)
	}
	var expiresAt time.Time
	if std.Expiry != nil {
		expiresAt = std.Expiry.Time()
	}
	return Session{AccountID: accountID, DeviceID: custom.DeviceID, ExpiresAt: expiresAt}, nil
}
