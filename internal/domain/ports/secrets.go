package ports

import (
	"context"
)

// Secret represents a retrieved secret with metadata
type Secret struct {
	Value   string
	Version string
}

// SecretProvider retrieves secrets from a secret management backend.
// Path format depends on implementation:
//   - AWS: "purchase-service/sites/{site_id}/postback"
//   - Vault: "secret/data/purchase-service/sites/{site_id}"
//   - Local: relative file path under the base directory
type SecretProvider interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
