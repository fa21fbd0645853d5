package cfauth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeTransport records login writes and replies with a canned response.
type fakeTransport struct {
	mu    sync.Mutex
	calls []LoginRequest
	resp  map[string]any
	err   error
}

func (f *fakeTransport) Write(_ context.Context, path string, body map[string]string) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, LoginRequest{Path: path, Body: body})
	return f.resp, f.err
}

type recordingObserver struct {
	succeeded []Token
	failed    []error
}

func (r *recordingObserver) LoginSucceeded(_ string, tok Token, _ time.Duration) {
	r.succeeded = append(r.succeeded, tok)
}

func (r *recordingObserver) LoginFailed(_ string, err error, _ time.Duration) {
	r.failed = append(r.failed, err)
}

func testOptions(t *testing.T, opts ...Option) Options {
	t.Helper()
	base := []Option{
		WithCertificate(StaticCredential{Content: testCertPEM}),
		WithKey(StaticCredential{Content: testKeyPEM}),
	}
	o, err := NewOptions(append(base, opts...)...)
	require.NoError(t, err)
	return o
}

// ─── Options ──────────────────────────────────────────────────────────────────

func TestNewOptions_Defaults(t *testing.T) {
	o := testOptions(t)
	assert.Equal(t, "cf", o.MountPath)

	o = testOptions(t, WithMountPath(""))
	assert.Equal(t, "cf", o.MountPath)

	o = testOptions(t, WithMountPath("cf-eu"))
	assert.Equal(t, "cf-eu", o.MountPath)
}

func TestNewOptions_DefaultFilesMissing(t *testing.T) {
	// The platform paths do not exist on a build machine.
	_, err := NewOptions(WithKey(StaticCredential{Content: testKeyPEM}))
	var loadErr *CredentialLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, DefaultInstanceCertificatePath, loadErr.Path)
}

// ─── Login: success ───────────────────────────────────────────────────────────

func TestLogin_Success(t *testing.T) {
	tr := &fakeTransport{resp: map[string]any{
		"auth": map[string]any{"client_token": "t1", "renewable": true, "lease_duration": float64(3600)},
	}}
	obs := &recordingObserver{}
	a := New(testOptions(t), tr, zap.NewNop(), obs)

	tok, err := a.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "t1", tok.Secret())
	assert.True(t, tok.IsRenewable())

	require.Len(t, tr.calls, 1)
	assert.Equal(t, "auth/cf/login", tr.calls[0].Path)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(testCertPEM)), tr.calls[0].Body["certificate"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte(testKeyPEM)), tr.calls[0].Body["key"])

	require.Len(t, obs.succeeded, 1)
	assert.Empty(t, obs.failed)
}

func TestLogin_CustomMount(t *testing.T) {
	tr := &fakeTransport{resp: map[string]any{"auth": map[string]any{"client_token": "t"}}}
	a := New(testOptions(t, WithMountPath("pcf")), tr, nil)

	_, err := a.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "auth/pcf/login", tr.calls[0].Path)
	assert.Equal(t, "pcf", a.MountPath())
}

func TestLogin_RequestBuiltFreshEachCall(t *testing.T) {
	tr := &fakeTransport{resp: map[string]any{"auth": map[string]any{"client_token": "t"}}}
	a := New(testOptions(t), tr, nil)

	for i := 0; i < 3; i++ {
		_, err := a.Login(context.Background())
		require.NoError(t, err)
	}
	require.Len(t, tr.calls, 3)
	assert.Equal(t, tr.calls[0], tr.calls[2])
}

func TestLogin_SecretNeverLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	tr := &fakeTransport{resp: map[string]any{
		"auth": map[string]any{"client_token": "hvs.very-secret", "lease_duration": float64(60)},
	}}
	a := New(testOptions(t), tr, zap.New(core))

	_, err := a.Login(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, logs.FilterMessage("cfauth.login_succeeded").Len())
	for _, entry := range logs.All() {
		for k, v := range entry.ContextMap() {
			assert.NotContains(t, k, "very-secret")
			assert.NotContains(t, fmt.Sprint(v), "very-secret")
		}
	}
}

// ─── Login: failures ──────────────────────────────────────────────────────────

func TestLogin_CredentialFailureIsNotAuthenticationError(t *testing.T) {
	tr := &fakeTransport{}
	obs := &recordingObserver{}
	opts := testOptions(t, WithKey(StaticCredential{Err: errors.New("unreadable")}))
	a := New(opts, tr, nil, obs)

	_, err := a.Login(context.Background())
	var loadErr *CredentialLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "key", loadErr.Kind)

	var authErr *AuthenticationError
	assert.False(t, errors.As(err, &authErr))
	assert.Empty(t, tr.calls, "transport must not be called")
	require.Len(t, obs.failed, 1)
}

func TestLogin_CredentialLoadErrorPassedThrough(t *testing.T) {
	orig := &CredentialLoadError{Kind: "certificate", Path: "/x", Err: errors.New("gone")}
	a := New(testOptions(t, WithCertificate(StaticCredential{Err: orig})), &fakeTransport{}, nil)

	_, err := a.Login(context.Background())
	var loadErr *CredentialLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Same(t, orig, loadErr)
}

func TestLogin_NilSupplier(t *testing.T) {
	a := New(Options{MountPath: "cf"}, &fakeTransport{}, nil)
	_, err := a.Login(context.Background())
	var loadErr *CredentialLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, "certificate", loadErr.Kind)
}

func TestLogin_TransportRejection(t *testing.T) {
	tr := &fakeTransport{err: &vaultapi.ResponseError{StatusCode: 403, Errors: []string{"permission denied"}}}
	obs := &recordingObserver{}
	a := New(testOptions(t), tr, nil, obs)

	_, err := a.Login(context.Background())
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "CloudFoundry", authErr.Method)
	assert.Contains(t, err.Error(), "permission denied")
	require.Len(t, obs.failed, 1)
	assert.Len(t, tr.calls, 1, "no retries")
}

func TestLogin_NetworkFailure(t *testing.T) {
	cause := errors.New("connection reset by peer")
	a := New(testOptions(t), &fakeTransport{err: cause}, nil)

	_, err := a.Login(context.Background())
	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "Cannot login using CloudFoundry", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestLogin_MalformedSuccessResponse(t *testing.T) {
	tests := []struct {
		name string
		resp map[string]any
	}{
		{"no auth block", map[string]any{"data": map[string]any{}}},
		{"auth not object", map[string]any{"auth": "nope"}},
		{"nil response", nil},
		{"missing client_token", map[string]any{"auth": map[string]any{"renewable": false}}},
		{"renewable without lease", map[string]any{"auth": map[string]any{"client_token": "t", "renewable": true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(testOptions(t), &fakeTransport{resp: tt.resp}, nil)
			_, err := a.Login(context.Background())

			var malformedErr *MalformedResponseError
			require.ErrorAs(t, err, &malformedErr)
			var authErr *AuthenticationError
			assert.False(t, errors.As(err, &authErr))
		})
	}
}

// ─── Concurrency ──────────────────────────────────────────────────────────────

func TestLogin_ConcurrentCalls(t *testing.T) {
	tr := &fakeTransport{resp: map[string]any{"auth": map[string]any{"client_token": "t"}}}
	a := New(testOptions(t), tr, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Login(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, tr.calls, 20)
}
