package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"go.uber.org/zap"
)

// ErrSecretNotFound is returned when no secret exists at the path
var ErrSecretNotFound = errors.New("secret not found")

// LocalProvider reads secrets from files under a base directory.
// Development only; use AWS Secrets Manager or Vault in production.
type LocalProvider struct {
	basePath string
	logger   *zap.Logger
}

// NewLocalProvider creates a filesystem secret provider
func NewLocalProvider(basePath string, logger *zap.Logger) *LocalProvider {
	return &LocalProvider{
		basePath: basePath,
		logger:   logger,
	}
}

// GetSecret reads the file at path. The file holds either plain text or
// JSON with a "value" field.
func (p *LocalProvider) GetSecret(_ context.Context, path string) (*ports.Secret, error) {
	filePath := filepath.Join(p.basePath, filepath.Clean("/"+path))

	data, err := os.ReadFile(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}

	var secretData struct {
		Value   string `json:"value"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &secretData); err == nil && secretData.Value != "" {
		if secretData.Version == "" {
			secretData.Version = "v1"
		}
		return &ports.Secret{Value: secretData.Value, Version: secretData.Version}, nil
	}

	p.logger.Debug("Read plain text secret", zap.String("path", path))
	return &ports.Secret{
		Value:   strings.TrimSpace(string(data)),
		Version: "v1",
	}, nil
}
