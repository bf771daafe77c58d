package service

import (
	"github.com/smallbiznis/rewardguard/internal/ciphergate"
	"github.com/smallbiznis/rewardguard/internal/config"
	"github.com/smallbiznis/rewardguard/internal/headerauth"
)

// ClientConfig tells mobile clients how to talk to protected routes.
type ClientConfig struct {
	Service            string            `json:"service"`
	Headers            map[string]string `json:"headers"`
	XReqTTLSeconds     int64             `json:"xreq_ttl_seconds"`
	RequestHashEnforce bool              `json:"request_hash_enforced"`
	Envelope           EnvelopeConfig    `json:"envelope"`
}

// EnvelopeConfig describes the encrypted body format.
type EnvelopeConfig struct {
	Cipher     string `json:"cipher"`
	KeyDerive  string `json:"key_derivation"`
	NonceBytes int    `json:"nonce_bytes"`
	Encoding   string `json:"encoding"`
}

// ConfigService builds the public client configuration document.
type ConfigService struct {
	cfg config.Config
}

func NewConfigService(cfg config.Config) *ConfigService {
	return &ConfigService{cfg: cfg}
}

// ClientConfig returns the static document served on the public config route.
func (s *ConfigService) ClientConfig() ClientConfig {
	return ClientConfig{
		Service: s.cfg.ServiceName,
		Headers: map[string]string{
			"token":        headerauth.HeaderToken,
			"request_hash": headerauth.HeaderRequestHash,
			"device_model": headerauth.HeaderDeviceModel,
			"os_version":   headerauth.HeaderOSVersion,
			"window":       headerauth.HeaderWindow,
			"key_material": headerauth.HeaderKeyMaterial,
			"next_token":   headerauth.HeaderNextToken,
		},
		XReqTTLSeconds:     int64(s.cfg.XReqTTL.Seconds()),
		RequestHashEnforce: s.cfg.EnforceRequestHash,
		Envelope: EnvelopeConfig{
			Cipher:     "AES-256-GCM",
			KeyDerive:  "SHA-256(key material)",
			NonceBytes: ciphergate.NonceSize,
			Encoding:   "base64(nonce || ciphertext)",
		},
	}
}
