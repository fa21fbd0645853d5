package secrets

import "context"

// Provider defines a generic secrets manager interface.
// Concrete implementations (Vault KV, AWS, etc.) can satisfy this.
type Provider interface {
	// GetSecret retrieves a secret by key/path and returns a key-value map.
	// A secret that does not exist yields an empty map and no error.
	GetSecret(ctx context.Context, key string) (map[string]string, error)
}
