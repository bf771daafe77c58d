package seedvault_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/rewardguard/internal/ciphergate"
	"github.com/smallbiznis/rewardguard/internal/config"
	"github.com/smallbiznis/rewardguard/internal/domain"
	"github.com/smallbiznis/rewardguard/internal/repository"
	"github.com/smallbiznis/rewardguard/internal/seedvault"
)

type memorySecretRepo struct {
	mu      sync.Mutex
	rows    map[int64]domain.SealedSecret
	upserts int
	err     error
}

func newMemorySecretRepo() *memorySecretRepo {
	return &memorySecretRepo{rows: map[int64]domain.SealedSecret{}}
}

func (m *memorySecretRepo) Upsert(_ context.Context, s domain.SealedSecret) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.upserts++
	m.rows[s.AccountID] = s
	return nil
}

func (m *memorySecretRepo) Get(_ context.Context, accountID int64) (domain.SealedSecret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[accountID]
	if !ok {
		return domain.SealedSecret{}, repository.ErrNotFound
	}
	return s, nil
}

func testConfig(passphrase string) config.Config {
	return config.Config{VaultPassphrase: passphrase, VaultSalt: "test-salt"}
}

func TestGenerateSecretsAreRandom(t *testing.T) {
	a, err := seedvault.GenerateMasterSecret()
	require.NoError(t, err)
	b, err := seedvault.GenerateMasterSecret()
	require.NoError(t, err)
	salt, err := seedvault.GenerateSessionSalt()
	require.NoError(t, err)

	require.Len(t, a, seedvault.SecretSize)
	require.Len(t, salt, seedvault.SecretSize)
	require.NotEqual(t, a, b)
	require.NotEqual(t, a, salt)
}

func TestEnrollDeviceRecoversSecret(t *testing.T) {
	secret, err := seedvault.GenerateMasterSecret()
	require.NoError(t, err)

	envelope, err := seedvault.EncryptSecretWithDeviceKey(secret, "D1")
	require.NoError(t, err)
	require.NotContains(t, envelope, "D1")

	got, err := seedvault.DecryptSecretWithDeviceKey(envelope, "D1")
	require.NoError(t, err)
	require.Equal(t, secret, got)

	_, err = seedvault.DecryptSecretWithDeviceKey(envelope, "D2")
	require.ErrorIs(t, err, ciphergate.ErrDecrypt)
}

func TestEncryptSecretRequiresDevice(t *testing.T) {
	_, err := seedvault.EncryptSecretWithDeviceKey([]byte("s"), "")
	require.Error(t, err)
}

func TestStoreAndLoadSecrets(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySecretRepo()
	vault := seedvault.NewVault(repo, testConfig("passphrase"), zap.NewNop())

	secret, _ := seedvault.GenerateMasterSecret()
	salt, _ := seedvault.GenerateSessionSalt()
	require.NoError(t, vault.StoreSecrets(ctx, 42, secret, salt))

	stored := repo.rows[42]
	require.NotContains(t, string(stored.SealedSecret), string(secret))

	loaded, err := vault.LoadSecrets(ctx, 42)
	require.NoError(t, err)
	require.Equal(t, secret, loaded.Secret)
	require.Equal(t, salt, loaded.Salt)
}

func TestStoreSecretsOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySecretRepo()
	vault := seedvault.NewVault(repo, testConfig("passphrase"), zap.NewNop())

	first, _ := seedvault.GenerateMasterSecret()
	second, _ := seedvault.GenerateMasterSecret()
	salt, _ := seedvault.GenerateSessionSalt()
	require.NoError(t, vault.StoreSecrets(ctx, 1, first, salt))
	require.NoError(t, vault.StoreSecrets(ctx, 1, second, salt))

	require.Len(t, repo.rows, 1)
	loaded, err := vault.LoadSecrets(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, second, loaded.Secret)
}

func TestLoadSecretsFailures(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySecretRepo()
	vault := seedvault.NewVault(repo, testConfig("passphrase"), zap.NewNop())

	_, err := vault.LoadSecrets(ctx, 7)
	require.ErrorIs(t, err, seedvault.ErrNoSecret)

	secret, _ := seedvault.GenerateMasterSecret()
	require.NoError(t, vault.StoreSecrets(ctx, 7, secret, secret))

	other := seedvault.NewVault(repo, testConfig("different"), zap.NewNop())
	_, err = other.LoadSecrets(ctx, 7)
	require.ErrorIs(t, err, seedvault.ErrSealed)

	// A row moved to another account does not unseal.
	repo.rows[8] = repo.rows[7]
	_, err = vault.LoadSecrets(ctx, 8)
	require.ErrorIs(t, err, seedvault.ErrSealed)
}

func TestStoreSecretsPropagatesStoreError(t *testing.T) {
	repo := newMemorySecretRepo()
	repo.err = errors.New("db down")
	vault := seedvault.NewVault(repo, testConfig("passphrase"), zap.NewNop())

	err := vault.StoreSecrets(context.Background(), 1, []byte("s"), []byte("t"))
	require.ErrorIs(t, err, repo.err)
}

func TestDeriveRequestKey(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	salt := []byte("salt-salt-salt-salt-salt-salt-sa")

	k1, err := seedvault.DeriveRequestKey(secret, salt, "1700000000")
	require.NoError(t, err)
	k1again, err := seedvault.DeriveRequestKey(secret, salt, "1700000000")
	require.NoError(t, err)
	k2, err := seedvault.DeriveRequestKey(secret, salt, "1700000001")
	require.NoError(t, err)
	k3, err := seedvault.DeriveRequestKey(secret, []byte("other"), "1700000000")
	require.NoError(t, err)

	require.Len(t, k1, 64)
	require.Equal(t, k1, k1again)
	require.NotEqual(t, k1, k2)
	require.NotEqual(t, k1, k3)

	_, err = seedvault.DeriveRequestKey(nil, salt, "1")
	require.ErrorIs(t, err, seedvault.ErrNoSecret)
}

func TestVaultRequestKey(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySecretRepo()
	vault := seedvault.NewVault(repo, testConfig("passphrase"), zap.NewNop())

	secret, _ := seedvault.GenerateMasterSecret()
	salt, _ := seedvault.GenerateSessionSalt()
	require.NoError(t, vault.StoreSecrets(ctx, 3, secret, salt))

	key, err := vault.RequestKey(ctx, 3, "99")
	require.NoError(t, err)
	want, _ := seedvault.DeriveRequestKey(secret, salt, "99")
	require.Equal(t, want, key)
}
