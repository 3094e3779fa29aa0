package secrets

import (
	"context"
	"fmt"

	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"go.uber.org/zap"
)

// Backend names accepted by New
const (
	BackendLocal = "local"
	BackendAWS   = "aws"
	BackendVault = "vault"
)

// Config selects and configures one secret backend
type Config struct {
	Backend   string
	LocalPath string
	AWS       *AWSConfig
	Vault     *VaultConfig
}

// New builds the configured secret provider
func New(ctx context.Context, cfg Config, logger *zap.Logger) (ports.SecretProvider, error) {
	switch cfg.Backend {
	case BackendLocal, "":
		return NewLocalProvider(cfg.LocalPath, logger), nil
	case BackendAWS:
		if cfg.AWS == nil {
			return nil, fmt.Errorf("aws secret backend requires AWS config")
		}
		return NewAWSProvider(ctx, cfg.AWS, logger)
	case BackendVault:
		if cfg.Vault == nil {
			return nil, fmt.Errorf("vault secret backend requires Vault config")
		}
		return NewVaultProvider(ctx, cfg.Vault, logger)
	default:
		return nil, fmt.Errorf("unsupported secret backend: %s", cfg.Backend)
	}
}
