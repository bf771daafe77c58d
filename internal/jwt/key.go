package jwt

import (
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"

	"github.com/smallbiznis/rewardguard/internal/config"
)

// minSecretLen is the HS256 key floor in bytes.
const minSecretLen = 32

// SigningKey is the symmetric key used for session tokens.
type SigningKey struct {
	KID       string
	Secret    []byte
	Algorithm jose.SignatureAlgorithm
}

// NewSigningKey builds the HS256 session key from configuration. The key id
// is a name-based UUID of the secret so every replica agrees on it.
func NewSigningKey(cfg config.Config) (SigningKey, error) {
	secret := []byte(cfg.SessionSigningKey)
	if len(secret) < minSecretLen {
		return SigningKey{}, fmt.Errorf("session signing key must be at least %d bytes", minSecretLen)
	}
	return SigningKey{
		KID:       uuid.NewSHA1(uuid.NameSpaceOID, secret).String(),
		Secret:    secret,
		Algorithm: jose.HS256,
	}, nil
}
