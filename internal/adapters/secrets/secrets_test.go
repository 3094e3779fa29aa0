package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	vault "github.com/hashicorp/vault/api"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalProvider_GetSecret(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sites"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sites", "plain"), []byte("shh\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sites", "json"), []byte(`{"value":"k1","version":"3"}`), 0o600))

	p := NewLocalProvider(dir, zap.NewNop())

	t.Run("plain text", func(t *testing.T) {
		s, err := p.GetSecret(context.Background(), "sites/plain")
		require.NoError(t, err)
		assert.Equal(t, "shh", s.Value)
		assert.Equal(t, "v1", s.Version)
	})

	t.Run("json", func(t *testing.T) {
		s, err := p.GetSecret(context.Background(), "sites/json")
		require.NoError(t, err)
		assert.Equal(t, "k1", s.Value)
		assert.Equal(t, "3", s.Version)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := p.GetSecret(context.Background(), "sites/none")
		assert.ErrorIs(t, err, ErrSecretNotFound)
	})

	t.Run("path cannot escape base directory", func(t *testing.T) {
		_, err := p.GetSecret(context.Background(), "../../etc/passwd")
		assert.ErrorIs(t, err, ErrSecretNotFound)
	})
}

func TestSecretCache_Expiry(t *testing.T) {
	c := newSecretCache(true, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.set("a", &ports.Secret{Value: "x", Version: "1"})
	s, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, "x", s.Value)

	now = now.Add(2 * time.Minute)
	_, ok = c.get("a")
	assert.False(t, ok)
}

func TestSecretCache_Disabled(t *testing.T) {
	c := newSecretCache(false, time.Minute)
	c.set("a", &ports.Secret{Value: "x"})
	_, ok := c.get("a")
	assert.False(t, ok)
}

type fakeSecretsManager struct {
	err   error
	value string
	calls int
}

func (f *fakeSecretsManager) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &secretsmanager.GetSecretValueOutput{
		Name:         in.SecretId,
		SecretString: aws.String(f.value),
		VersionId:    aws.String("ver-1"),
	}, nil
}

func TestAWSProvider_GetSecretCaches(t *testing.T) {
	fake := &fakeSecretsManager{value: "postback-key"}
	p := newAWSProvider(fake, DefaultAWSConfig("us-east-1"), zap.NewNop())

	for i := 0; i < 3; i++ {
		s, err := p.GetSecret(context.Background(), "purchase-service/sites/s1/postback")
		require.NoError(t, err)
		assert.Equal(t, "postback-key", s.Value)
		assert.Equal(t, "ver-1", s.Version)
	}
	assert.Equal(t, 1, fake.calls)
}

func TestAWSProvider_GetSecretError(t *testing.T) {
	fake := &fakeSecretsManager{err: errors.New("access denied")}
	p := newAWSProvider(fake, DefaultAWSConfig("us-east-1"), zap.NewNop())

	_, err := p.GetSecret(context.Background(), "purchase-service/sites/s1/postback")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

type fakeVault struct {
	secrets map[string]*vault.Secret
	paths   []string
}

func (f *fakeVault) ReadWithContext(_ context.Context, path string) (*vault.Secret, error) {
	f.paths = append(f.paths, path)
	return f.secrets[path], nil
}

func TestVaultProvider_KVv2(t *testing.T) {
	fake := &fakeVault{secrets: map[string]*vault.Secret{
		"secret/data/purchase-service/sites/s1": {Data: map[string]interface{}{
			"data":     map[string]interface{}{"value": "vault-key"},
			"metadata": map[string]interface{}{"version": json.Number("4")},
		}},
	}}
	cfg := DefaultVaultConfig("http://vault:8200")
	p := newVaultProvider(fake, cfg, zap.NewNop())

	s, err := p.GetSecret(context.Background(), "purchase-service/sites/s1")
	require.NoError(t, err)
	assert.Equal(t, "vault-key", s.Value)
	assert.Equal(t, "4", s.Version)
	assert.Equal(t, []string{"secret/data/purchase-service/sites/s1"}, fake.paths)
}

func TestVaultProvider_KVv1(t *testing.T) {
	fake := &fakeVault{secrets: map[string]*vault.Secret{
		"kv/sites/s1": {Data: map[string]interface{}{"value": "v1-key"}},
	}}
	cfg := DefaultVaultConfig("http://vault:8200")
	cfg.MountPath = "kv"
	cfg.KVVersion = "v1"
	p := newVaultProvider(fake, cfg, zap.NewNop())

	s, err := p.GetSecret(context.Background(), "sites/s1")
	require.NoError(t, err)
	assert.Equal(t, "v1-key", s.Value)
}

func TestVaultProvider_Missing(t *testing.T) {
	p := newVaultProvider(&fakeVault{}, DefaultVaultConfig("http://vault:8200"), zap.NewNop())

	_, err := p.GetSecret(context.Background(), "sites/none")
	assert.Error(t, err)
}

func TestParseVaultSecret_EmptyValue(t *testing.T) {
	_, err := parseVaultSecret(&vault.Secret{Data: map[string]interface{}{
		"data": map[string]interface{}{"other": "x"},
	}}, "v2")
	assert.Error(t, err)
}

func TestNew_UnsupportedBackend(t *testing.T) {
	_, err := New(context.Background(), Config{Backend: "gcp"}, zap.NewNop())
	assert.Error(t, err)

	p, err := New(context.Background(), Config{Backend: BackendLocal, LocalPath: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &LocalProvider{}, p)
}
