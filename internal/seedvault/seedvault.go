// Package seedvault issues per-account master secrets and keeps them sealed at rest.
package seedvault

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/smallbiznis/rewardguard/internal/ciphergate"
	"github.com/smallbiznis/rewardguard/internal/config"
	"github.com/smallbiznis/rewardguard/internal/domain"
	"github.com/smallbiznis/rewardguard/internal/repository"
)

const (
	// SecretSize is the master secret and session salt length in bytes.
	SecretSize = 32

	vaultTime    uint32 = 3
	vaultMemory  uint32 = 64 * 1024
	vaultThreads uint8  = 2
)

var (
	// ErrNoSecret is returned when an account has no stored master secret.
	ErrNoSecret = errors.New("seedvault: no master secret")
	// ErrSealed is returned when a stored secret cannot be unsealed.
	ErrSealed = errors.New("seedvault: cannot unseal master secret")
)

// GenerateMasterSecret returns SecretSize bytes from the system CSPRNG.
func GenerateMasterSecret() ([]byte, error) {
	return randomBytes()
}

// GenerateSessionSalt returns an independent SecretSize random salt.
func GenerateSessionSalt() ([]byte, error) {
	return randomBytes()
}

func randomBytes() ([]byte, error) {
	buf := make([]byte, SecretSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("read random: %w", err)
	}
	return buf, nil
}

// EncryptSecretWithDeviceKey wraps secret under a key hashed from the device
// identifier and returns base64(iv || ciphertext).
func EncryptSecretWithDeviceKey(secret []byte, deviceID string) (string, error) {
	if deviceID == "" {
		return "", errors.New("seedvault: device id required")
	}
	return ciphergate.Encrypt(secret, deviceID)
}

// DecryptSecretWithDeviceKey reverses EncryptSecretWithDeviceKey.
func DecryptSecretWithDeviceKey(envelope, deviceID string) ([]byte, error) {
	return ciphergate.Decrypt(envelope, deviceID)
}

// DeriveRequestKey derives hex key material for a request window from the
// master secret, diversified by the session salt.
func DeriveRequestKey(secret, salt []byte, window string) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSecret
	}
	r := hkdf.New(sha256.New, secret, salt, []byte("rewardguard/request/"+window))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return "", fmt.Errorf("derive request key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// Vault persists master secrets sealed with XChaCha20-Poly1305 under a key
// stretched from the configured passphrase.
type Vault struct {
	secrets  repository.SecretRepository
	vaultKey []byte
	logger   *zap.Logger
	now      func() time.Time
}

// NewVault derives the vault key once at startup.
func NewVault(secrets repository.SecretRepository, cfg config.Config, logger *zap.Logger) *Vault {
	if logger == nil {
		logger = zap.L()
	}
	key := argon2.IDKey([]byte(cfg.VaultPassphrase), []byte(cfg.VaultSalt), vaultTime, vaultMemory, vaultThreads, chacha20poly1305.KeySize)
	return &Vault{
		secrets:  secrets,
		vaultKey: key,
		logger:   logger.Named("seedvault"),
		now:      time.Now,
	}
}

// StoreSecrets upserts the account's secret and salt, replacing any previous pair.
func (v *Vault) StoreSecrets(ctx context.Context, accountID int64, secret, salt []byte) error {
	aad := accountAAD(accountID)
	sealedSecret, err := v.seal(secret, aad)
	if err != nil {
		return err
	}
	sealedSalt, err := v.seal(salt, aad)
	if err != nil {
		return err
	}
	now := v.now().UTC()
	if err := v.secrets.Upsert(ctx, domain.SealedSecret{
		AccountID:    accountID,
		SealedSecret: sealedSecret,
		SealedSalt:   sealedSalt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}); err != nil {
		return fmt.Errorf("store secrets: %w", err)
	}
	return nil
}

// LoadSecrets returns the unsealed secret pair for an account.
func (v *Vault) LoadSecrets(ctx context.Context, accountID int64) (domain.MasterSecret, error) {
	row, err := v.secrets.Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.MasterSecret{}, ErrNoSecret
		}
		return domain.MasterSecret{}, fmt.Errorf("load secrets: %w", err)
	}
	aad := accountAAD(accountID)
	secret, err := v.open(row.SealedSecret, aad)
	if err != nil {
		v.logger.Warn("unseal master secret failed", zap.Int64("account_id", accountID))
		return domain.MasterSecret{}, ErrSealed
	}
	salt, err := v.open(row.SealedSalt, aad)
	if err != nil {
		v.logger.Warn("unseal session salt failed", zap.Int64("account_id", accountID))
		return domain.MasterSecret{}, ErrSealed
	}
	return domain.MasterSecret{
		AccountID: accountID,
		Secret:    secret,
		Salt:      salt,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

// RequestKey loads the account's secret pair and derives key material for window.
func (v *Vault) RequestKey(ctx context.Context, accountID int64, window string) (string, error) {
	ms, err := v.LoadSecrets(ctx, accountID)
	if err != nil {
		return "", err
	}
	return DeriveRequestKey(ms.Secret, ms.Salt, window)
}

func (v *Vault) seal(plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.vaultKey)
	if err != nil {
		return nil, fmt.Errorf("init vault cipher: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX, chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, aad), nil
}

func (v *Vault) open(sealed, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(v.vaultKey)
	if err != nil {
		return nil, err
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("sealed value too short")
	}
	return aead.Open(nil, sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:], aad)
}

// accountAAD binds a sealed value to its owning account row.
func accountAAD(accountID int64) []byte {
	aad := make([]byte, 8)
	binary.BigEndian.PutUint64(aad, uint64(accountID))
	return aad
}
