package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"go.uber.org/zap"
)

// VaultConfig contains configuration for the HashiCorp Vault provider
type VaultConfig struct {
	// Vault server address (e.g., "https://vault.example.com:8200")
	Address string

	// Authentication method: "token" or "approle"
	AuthMethod string

	Token string

	// AppRole credentials (if using AppRole auth)
	RoleID   string
	SecretID string

	// Vault namespace (Vault Enterprise)
	Namespace string

	// KV secrets engine mount path (default: "secret")
	MountPath string

	// KV version: "v1" or "v2" (default: "v2")
	KVVersion string

	CacheTTL      time.Duration
	EnableCache   bool
	TLSSkipVerify bool
}

// DefaultVaultConfig returns default configuration for the Vault provider
func DefaultVaultConfig(address string) *VaultConfig {
	return &VaultConfig{
		Address:     address,
		AuthMethod:  "token",
		MountPath:   "secret",
		KVVersion:   "v2",
		CacheTTL:    5 * time.Minute,
		EnableCache: true,
	}
}

type logicalReader interface {
	ReadWithContext(ctx context.Context, path string) (*vault.Secret, error)
}

// VaultProvider reads secrets from a Vault KV engine
type VaultProvider struct {
	reader logicalReader
	config *VaultConfig
	logger *zap.Logger
	cache  *secretCache
}

// NewVaultProvider creates and authenticates a Vault provider
func NewVaultProvider(ctx context.Context, cfg *VaultConfig, logger *zap.Logger) (*VaultProvider, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSSkipVerify {
		if err := vaultConfig.ConfigureTLS(&vault.TLSConfig{Insecure: true}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if err := authenticateVault(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("failed to authenticate with Vault: %w", err)
	}

	logger.Info("Vault provider initialized",
		zap.String("address", cfg.Address),
		zap.String("auth_method", cfg.AuthMethod),
		zap.String("mount_path", cfg.MountPath),
		zap.String("kv_version", cfg.KVVersion),
	)

	return newVaultProvider(client.Logical(), cfg, logger), nil
}

func newVaultProvider(reader logicalReader, cfg *VaultConfig, logger *zap.Logger) *VaultProvider {
	return &VaultProvider{
		reader: reader,
		config: cfg,
		logger: logger,
		cache:  newSecretCache(cfg.EnableCache, cfg.CacheTTL),
	}
}

func authenticateVault(ctx context.Context, client *vault.Client, cfg *VaultConfig) error {
	switch cfg.AuthMethod {
	case "token":
		if cfg.Token == "" {
			return fmt.Errorf("token is required for token auth")
		}
		client.SetToken(cfg.Token)
		return nil

	case "approle":
		if cfg.RoleID == "" || cfg.SecretID == "" {
			return fmt.Errorf("role_id and secret_id are required for AppRole auth")
		}
		resp, err := client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return fmt.Errorf("AppRole login failed: %w", err)
		}
		if resp == nil || resp.Auth == nil {
			return fmt.Errorf("AppRole login returned no auth info")
		}
		client.SetToken(resp.Auth.ClientToken)
		return nil

	default:
		return fmt.Errorf("unsupported auth method: %s", cfg.AuthMethod)
	}
}

// GetSecret retrieves the "value" field of the secret at path,
// e.g. "purchase-service/sites/{site_id}"
func (p *VaultProvider) GetSecret(ctx context.Context, path string) (*ports.Secret, error) {
	if cached, ok := p.cache.get(path); ok {
		return cached, nil
	}

	fullPath := fmt.Sprintf("%s/%s", p.config.MountPath, path)
	if p.config.KVVersion == "v2" {
		fullPath = fmt.Sprintf("%s/data/%s", p.config.MountPath, path)
	}

	raw, err := p.reader.ReadWithContext(ctx, fullPath)
	if err != nil {
		p.logger.Error("Failed to retrieve secret from Vault",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("secret not found: %s", path)
	}

	secret, err := parseVaultSecret(raw, p.config.KVVersion)
	if err != nil {
		return nil, fmt.Errorf("secret %s: %w", path, err)
	}
	p.cache.set(path, secret)
	return secret, nil
}

// parseVaultSecret extracts the value and version of a KV secret
func parseVaultSecret(raw *vault.Secret, kvVersion string) (*ports.Secret, error) {
	data := raw.Data
	version := "1"

	if kvVersion == "v2" {
		inner, ok := raw.Data["data"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("invalid secret format from Vault")
		}
		data = inner
		if metadata, ok := raw.Data["metadata"].(map[string]interface{}); ok {
			switch v := metadata["version"].(type) {
			case json.Number:
				version = v.String()
			case float64:
				version = fmt.Sprintf("%d", int64(v))
			}
		}
	}

	value, _ := data["value"].(string)
	if value == "" {
		return nil, fmt.Errorf("secret value is empty or not found")
	}
	return &ports.Secret{Value: value, Version: version}, nil
}
