package httpclient

import (
	"context"
	"net/http"
	"strings"
)

// VaultTransport performs Vault logins over plain net/http, for deployments
// that configure the HTTP client themselves (e.g. a custom TLS dialer).
type VaultTransport struct {
	exec      *Executor
	baseURL   string
	namespace string
}

// NewVaultTransport targets the Vault server at baseURL. namespace, when
// set, is sent as X-Vault-Namespace.
func NewVaultTransport(exec *Executor, baseURL, namespace string) *VaultTransport {
	return &VaultTransport{
		exec:      exec,
		baseURL:   strings.TrimRight(baseURL, "/"),
		namespace: namespace,
	}
}

// Write POSTs body to {baseURL}/v1/{path}.
func (t *VaultTransport) Write(ctx context.Context, path string, body map[string]string) (map[string]any, error) {
	var header http.Header
	if t.namespace != "" {
		header = http.Header{"X-Vault-Namespace": []string{t.namespace}}
	}

	var out map[string]any
	if err := t.exec.PostJSON(ctx, t.baseURL+"/v1/"+strings.TrimLeft(path, "/"), path, header, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}
