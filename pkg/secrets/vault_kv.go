package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/vault/api"
	"go.uber.org/zap"
)

// TokenSource hands out the Vault token used for reads.
type TokenSource interface {
	Secret(ctx context.Context) (string, error)
	Invalidate(ctx context.Context) error
}

// VaultKV implements Provider on a Vault KV version 2 mount.
type VaultKV struct {
	client *api.Client
	mount  string
	tokens TokenSource
	logger *zap.Logger
}

func NewVaultKV(client *api.Client, mount string, tokens TokenSource, logger *zap.Logger) *VaultKV {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VaultKV{client: client, mount: mount, tokens: tokens, logger: logger}
}

// GetSecret reads the latest version of key. A 403 drops the session token
// and the read is retried once with a fresh one.
func (p *VaultKV) GetSecret(ctx context.Context, key string) (map[string]string, error) {
	data, err := p.read(ctx, key)
	if !isForbidden(err) {
		return data, err
	}

	p.logger.Info("vault.kv_forbidden_retry", zap.String("mount", p.mount), zap.String("path", key))
	if err := p.tokens.Invalidate(ctx); err != nil {
		p.logger.Warn("vault.token_invalidate_failed", zap.Error(err))
	}
	return p.read(ctx, key)
}

func (p *VaultKV) read(ctx context.Context, key string) (map[string]string, error) {
	token, err := p.tokens.Secret(ctx)
	if err != nil {
		return nil, err
	}

	c, err := p.client.Clone()
	if err != nil {
		return nil, fmt.Errorf("clone vault client: %w", err)
	}
	c.SetToken(token)

	secret, err := c.KVv2(p.mount).Get(ctx, key)
	if errors.Is(err, api.ErrSecretNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", p.mount, key, err)
	}

	out := make(map[string]string, len(secret.Data))
	for k, v := range secret.Data {
		switch s := v.(type) {
		case string:
			out[k] = s
		case nil:
		default:
			out[k] = fmt.Sprint(s)
		}
	}
	return out, nil
}

func isForbidden(err error) bool {
	var respErr *api.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusForbidden
}
