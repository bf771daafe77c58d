package jwt_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/rewardguard/internal/config"
	"github.com/smallbiznis/rewardguard/internal/domain"
	customjwt "github.com/smallbiznis/rewardguard/internal/jwt"
)

func newGenerator(t *testing.T, secret string, ttl time.Duration) *customjwt.Generator {
	t.Helper()
	key, err := customjwt.NewSigningKey(config.Config{SessionSigningKey: secret})
	require.NoError(t, err)
	return customjwt.NewGenerator(key, ttl, "rewardguard")
}

func TestGeneratorRoundTrip(t *testing.T) {
	generator := newGenerator(t, strings.Repeat("k", 32), time.Hour)

	token, expiry, err := generator.GenerateSessionToken(domain.Account{ID: 99, DeviceID: "D1"})
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiry, 5*time.Second)

	session, err := generator.ValidateSessionToken(token)
	require.NoError(t, err)
	require.Equal(t, int64(99), session.AccountID)
	require.Equal(t, "D1", session.DeviceID)
}

func TestValidateRejectsForeignKey(t *testing.T) {
	a := newGenerator(t, strings.Repeat("a", 32), time.Hour)
	b := newGenerator(t, strings.Repeat("b", 32), time.Hour)

	token, _, err := a.GenerateSessionToken(domain.Account{ID: 1})
	require.NoError(t, err)

	_, err = b.ValidateSessionToken(token)
	require.ErrorIs(t, err, customjwt.ErrInvalidToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	generator := newGenerator(t, strings.Repeat("k", 32), -time.Minute)

	token, _, err := generator.GenerateSessionToken(domain.Account{ID: 1})
	require.NoError(t, err)

	_, err = generator.ValidateSessionToken(token)
	require.ErrorIs(t, err, customjwt.ErrInvalidToken)
}

func TestValidateRejectsGarbage(t *testing.T) {
	generator := newGenerator(t, strings.Repeat("k", 32), time.Hour)
	_, err := generator.ValidateSessionToken("not.a.jwt")
	require.ErrorIs(t, err, customjwt.ErrInvalidToken)
}

func TestSigningKeyRequiresLength(t *testing.T) {
	_, err := customjwt.NewSigningKey(config.Config{SessionSigningKey: "short"})
	require.Error(t, err)

	k1, err := customjwt.NewSigningKey(config.Config{SessionSigningKey: strings.Repeat("z", 40)})
	require.NoError(t, err)
	k2, err := customjwt.NewSigningKey(config.Config{SessionSigningKey: strings.Repeat("z", 40)})
	require.NoError(t, err)
	require.Equal(t, k1.KID, k2.KID)
}
