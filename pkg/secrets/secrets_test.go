package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/hashicorp/vault/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ─── Cache ────────────────────────────────────────────────────────────────────

func TestCache_PutAndGet(t *testing.T) {
	cache := NewCache[map[string]string](2 * time.Second)

	_, ok := cache.Get("kv/github")
	assert.False(t, ok, "expected miss on empty cache")

	cache.Put("kv/github", map[string]string{"github.oauth2.key": "foo"})
	got, ok := cache.Get("kv/github")
	require.True(t, ok)
	assert.Equal(t, "foo", got["github.oauth2.key"])
}

func TestCache_Expiration(t *testing.T) {
	cache := NewCache[string](50 * time.Millisecond)
	cache.Put("k", "v")

	time.Sleep(80 * time.Millisecond)
	_, ok := cache.Get("k")
	assert.False(t, ok)
}

func TestCache_PutWithTTLZeroNeverExpires(t *testing.T) {
	cache := NewCache[string](time.Millisecond)
	cache.PutWithTTL("k", "v", 0)

	time.Sleep(5 * time.Millisecond)
	v, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestCache_Bust(t *testing.T) {
	cache := NewCache[string](time.Minute)
	cache.Put("k", "v")
	cache.Bust("k")

	_, ok := cache.Get("k")
	assert.False(t, ok)
}

func TestCache_CleanerRemovesExpired(t *testing.T) {
	cache := NewCache[string](10 * time.Millisecond)
	cache.Put("short", "v")
	cache.PutWithTTL("forever", "v", 0)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		cache.StartCleaner(5*time.Millisecond, stop)
		close(done)
	}()

	assert.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, 5*time.Millisecond)
	close(stop)
	<-done
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache[string](time.Second)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cache.Put("k", "v")
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				cache.Get("k")
			}
		}()
	}
	wg.Wait()
}

// ─── VaultKV ──────────────────────────────────────────────────────────────────

type fakeTokens struct {
	issued      atomic.Int32
	invalidated atomic.Int32
	err         error
}

func (f *fakeTokens) Secret(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.issued.Add(1) == 1 {
		return "s.stale", nil
	}
	return "s.fresh", nil
}

func (f *fakeTokens) Invalidate(context.Context) error {
	f.invalidated.Add(1)
	return nil
}

func newVaultClient(t *testing.T, h http.HandlerFunc) *api.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := api.DefaultConfig()
	cfg.Address = srv.URL
	c, err := api.NewClient(cfg)
	require.NoError(t, err)
	c.ClearToken()
	return c
}

func kvResponse(data map[string]any) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"data": data,
			"metadata": map[string]any{
				"created_time":  "2024-05-01T12:00:00.000000Z",
				"deletion_time": "",
				"destroyed":     false,
				"version":       1,
			},
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestVaultKV_GetSecret(t *testing.T) {
	var gotPath, gotToken string
	client := newVaultClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Vault-Token")
		writeJSON(w, http.StatusOK, kvResponse(map[string]any{"github.oauth2.key": "foobar", "rotations": 3}))
	})

	tokens := &fakeTokens{}
	got, err := NewVaultKV(client, "kv", tokens, zap.NewNop()).GetSecret(context.Background(), "github")
	require.NoError(t, err)
	assert.Equal(t, "/v1/kv/data/github", gotPath)
	assert.Equal(t, "s.stale", gotToken)
	assert.Equal(t, map[string]string{"github.oauth2.key": "foobar", "rotations": "3"}, got)
	assert.Empty(t, client.Token(), "shared client must stay tokenless")
}

func TestVaultKV_NotFoundIsEmpty(t *testing.T) {
	client := newVaultClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"errors": []string{}})
	})

	got, err := NewVaultKV(client, "kv", &fakeTokens{}, nil).GetSecret(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVaultKV_ForbiddenRetriesWithFreshToken(t *testing.T) {
	var tokens []string
	client := newVaultClient(t, func(w http.ResponseWriter, r *http.Request) {
		tok := r.Header.Get("X-Vault-Token")
		tokens = append(tokens, tok)
		if tok == "s.stale" {
			writeJSON(w, http.StatusForbidden, map[string]any{"errors": []string{"permission denied"}})
			return
		}
		writeJSON(w, http.StatusOK, kvResponse(map[string]any{"k": "v"}))
	})

	src := &fakeTokens{}
	got, err := NewVaultKV(client, "kv", src, nil).GetSecret(context.Background(), "github")
	require.NoError(t, err)
	assert.Equal(t, "v", got["k"])
	assert.Equal(t, []string{"s.stale", "s.fresh"}, tokens)
	assert.Equal(t, int32(1), src.invalidated.Load())
}

func TestVaultKV_ForbiddenTwiceFails(t *testing.T) {
	var calls atomic.Int32
	client := newVaultClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusForbidden, map[string]any{"errors": []string{"permission denied"}})
	})

	_, err := NewVaultKV(client, "kv", &fakeTokens{}, nil).GetSecret(context.Background(), "github")
	var respErr *api.ResponseError
	require.ErrorAs(t, err, &respErr)
	assert.Equal(t, http.StatusForbidden, respErr.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestVaultKV_TokenSourceError(t *testing.T) {
	client := newVaultClient(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("vault must not be called without a token")
	})

	loginErr := errors.New("Cannot login using CloudFoundry")
	_, err := NewVaultKV(client, "kv", &fakeTokens{err: loginErr}, nil).GetSecret(context.Background(), "github")
	assert.ErrorIs(t, err, loginErr)
}

// ─── AWS Secrets Manager ──────────────────────────────────────────────────────

type fakeSM struct {
	out *secretsmanager.GetSecretValueOutput
	err error
	id  string
}

func (f *fakeSM) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.id = aws.ToString(in.SecretId)
	return f.out, f.err
}

func TestAWSProvider_GetSecret(t *testing.T) {
	sm := &fakeSM{out: &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`{"github.oauth2.key":"abc"}`)}}

	got, err := NewAWSProviderWithClient(sm).GetSecret(context.Background(), "kv/github")
	require.NoError(t, err)
	assert.Equal(t, "kv/github", sm.id)
	assert.Equal(t, "abc", got["github.oauth2.key"])
}

func TestAWSProvider_NotFoundIsEmpty(t *testing.T) {
	sm := &fakeSM{err: &types.ResourceNotFoundException{Message: aws.String("nope")}}

	got, err := NewAWSProviderWithClient(sm).GetSecret(context.Background(), "kv/github")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAWSProvider_InvalidFormat(t *testing.T) {
	sm := &fakeSM{out: &secretsmanager.GetSecretValueOutput{SecretString: aws.String(`not-json`)}}

	_, err := NewAWSProviderWithClient(sm).GetSecret(context.Background(), "kv/github")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid secret format")
}

func TestAWSProvider_BinarySecretRejected(t *testing.T) {
	sm := &fakeSM{out: &secretsmanager.GetSecretValueOutput{SecretBinary: []byte{0x1}}}

	_, err := NewAWSProviderWithClient(sm).GetSecret(context.Background(), "kv/github")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no string value")
}

func TestAWSProvider_FetchError(t *testing.T) {
	sm := &fakeSM{err: errors.New("throttled")}

	_, err := NewAWSProviderWithClient(sm).GetSecret(context.Background(), "kv/github")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch secret [kv/github]")
}
