package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/rewardguard")
	t.Setenv("SESSION_SIGNING_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("VAULT_PASSPHRASE", "vault-pass")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.HTTPPort)
	require.Equal(t, LedgerPostgres, cfg.LedgerBackend)
	require.Equal(t, 90*time.Second, cfg.XReqTTL)
	require.Equal(t, time.Hour, cfg.XReqRetention)
	require.Equal(t, 32, cfg.XReqMinLength)
	require.True(t, cfg.EnforceRequestHash)
	require.False(t, cfg.AutoMigrate)
	require.Equal(t, 1.0, cfg.TelemetrySampling)
	require.EqualValues(t, 1, cfg.NodeID)
	require.Contains(t, cfg.CORSAllowedHeaders, "X-Req")
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("LEDGER_BACKEND", "Redis")
	t.Setenv("XREQ_TTL", "2m")
	t.Setenv("ENFORCE_REQUEST_HASH", "off")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, LedgerRedis, cfg.LedgerBackend)
	require.Equal(t, 2*time.Minute, cfg.XReqTTL)
	require.False(t, cfg.EnforceRequestHash)
	require.Empty(t, cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins))
}

func TestLoadRequiresSecrets(t *testing.T) {
	tests := []struct {
		name  string
		unset string
		value string
	}{
		{name: "database url", unset: "DATABASE_URL"},
		{name: "signing key", unset: "SESSION_SIGNING_KEY"},
		{name: "short signing key", unset: "SESSION_SIGNING_KEY", value: "short"},
		{name: "vault passphrase", unset: "VAULT_PASSPHRASE"},
		{name: "node id out of range", unset: "NODE_ID", value: "2048"},
		{name: "sampling ratio out of range", unset: "OTEL_TRACES_SAMPLER_RATIO", value: "1.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.unset, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Config{
		DatabaseURL:       "postgres://x",
		SessionSigningKey: "0123456789abcdef0123456789abcdef",
		VaultPassphrase:   "p",
		LedgerBackend:     "mysql",
	}
	require.Error(t, cfg.Validate())
}

func TestValidateClampsMinLength(t *testing.T) {
	cfg := Config{
		DatabaseURL:       "postgres://x",
		SessionSigningKey: "0123456789abcdef0123456789abcdef",
		VaultPassphrase:   "p",
		LedgerBackend:     LedgerMemory,
		XReqMinLength:     4,
	}
	require.NoError(t, cfg.Validate())
	require.Equal(t, 16, cfg.XReqMinLength)
	require.Equal(t, 90*time.Second, cfg.XReqTTL)
}
