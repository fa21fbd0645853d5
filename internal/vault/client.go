package vault

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/paasify/cfvault/internal/cfauth"
)

// ClientConfig holds configuration for creating a Vault client.
type ClientConfig struct {
	Address    string
	CACert     string
	SkipVerify bool
	Timeout    time.Duration
	Namespace  string
	// MaxRetries bounds the api client's own retries of 5xx/429 replies.
	MaxRetries int
}

// NewClient creates a Vault API client without a token; the token is
// obtained by logging in.
func NewClient(cfg ClientConfig) (*api.Client, error) {
	config := api.DefaultConfig()
	if cfg.Address != "" {
		config.Address = cfg.Address
	}
	if cfg.Timeout > 0 {
		config.Timeout = cfg.Timeout
	}
	config.MaxRetries = cfg.MaxRetries
	// Clones made for renewal and KV reads keep the namespace header.
	config.CloneHeaders = true

	if cfg.CACert != "" || cfg.SkipVerify {
		if err := config.ConfigureTLS(&api.TLSConfig{
			CACert:   cfg.CACert,
			Insecure: cfg.SkipVerify,
		}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	// api.NewClient picks up VAULT_TOKEN; logins must go out unauthenticated.
	client.ClearToken()
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	return client, nil
}

// Transport sends login requests through the Vault API client.
type Transport struct {
	client *api.Client
}

// NewTransport wraps client as a cfauth.Transport.
func NewTransport(client *api.Client) *Transport {
	return &Transport{client: client}
}

// Write POSTs body as JSON to /v1/{path}. Non-2xx replies come back as
// *api.ResponseError.
func (t *Transport) Write(ctx context.Context, path string, body map[string]string) (map[string]any, error) {
	req := t.client.NewRequest(http.MethodPost, "/v1/"+path)
	if err := req.SetJSONBody(body); err != nil {
		return nil, fmt.Errorf("encode request for %s: %w", path, err)
	}

	resp, err := t.client.RawRequestWithContext(ctx, req) //nolint:staticcheck
	if resp != nil {
		defer resp.Body.Close() //nolint:errcheck
	}
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, fmt.Errorf("decode response for %s: %w", path, err)
	}
	return out, nil
}

// Renewer extends renewable tokens through auth/token/renew-self.
type Renewer struct {
	client    *api.Client
	increment time.Duration
}

// NewRenewer returns a Renewer asking for increment per renewal; zero lets
// Vault pick the increment.
func NewRenewer(client *api.Client, increment time.Duration) *Renewer {
	return &Renewer{client: client, increment: increment}
}

// Renew renews tok and returns the token Vault hands back.
func (r *Renewer) Renew(ctx context.Context, tok cfauth.Token) (cfauth.Token, error) {
	if !tok.IsRenewable() {
		return cfauth.Token{}, fmt.Errorf("token is %s, not renewable", tok.Kind())
	}

	c, err := r.client.Clone()
	if err != nil {
		return cfauth.Token{}, fmt.Errorf("clone vault client: %w", err)
	}
	c.SetToken(tok.Secret())

	secret, err := c.Auth().Token().RenewSelfWithContext(ctx, int(r.increment/time.Second))
	if err != nil {
		return cfauth.Token{}, fmt.Errorf("renew token: %w", err)
	}
	if secret == nil || secret.Auth == nil {
		return cfauth.Token{}, &cfauth.MalformedResponseError{Reason: "renew response has no auth block"}
	}

	clientToken := secret.Auth.ClientToken
	if clientToken == "" {
		clientToken = tok.Secret()
	}
	return cfauth.InterpretAuth(map[string]any{
		"client_token":   clientToken,
		"renewable":      secret.Auth.Renewable,
		"lease_duration": secret.Auth.LeaseDuration,
	})
}
