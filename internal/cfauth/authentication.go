package cfauth

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// MethodName identifies this login strategy in errors, logs and metrics.
const MethodName = "CloudFoundry"

// Transport performs the login round trip. It returns the decoded JSON
// response object, or an error for network failures and non-2xx responses.
type Transport interface {
	Write(ctx context.Context, path string, body map[string]string) (map[string]any, error)
}

// Authenticator obtains a Vault token.
type Authenticator interface {
	Login(ctx context.Context) (Token, error)
}

// Observer is notified about every login attempt.
type Observer interface {
	LoginSucceeded(method string, token Token, elapsed time.Duration)
	LoginFailed(method string, err error, elapsed time.Duration)
}

// Options configures Authentication.
type Options struct {
	MountPath   string
	Certificate CredentialSupplier
	Key         CredentialSupplier
}

// Option customises Options.
type Option func(*Options)

// WithMountPath sets the auth backend mount; empty keeps the default.
func WithMountPath(path string) Option {
	return func(o *Options) {
		if path != "" {
			o.MountPath = path
		}
	}
}

// WithCertificate sets the certificate supplier.
func WithCertificate(s CredentialSupplier) Option {
	return func(o *Options) { o.Certificate = s }
}

// WithKey sets the private key supplier.
func WithKey(s CredentialSupplier) Option {
	return func(o *Options) { o.Key = s }
}

// NewOptions applies opts and reads the default instance credential files
// for any supplier left unset.
func NewOptions(opts ...Option) (Options, error) {
	o := Options{MountPath: DefaultMountPath}
	for _, opt := range opts {
		opt(&o)
	}

	if o.Certificate == nil {
		cert, err := NewInstanceCertificateFile(DefaultInstanceCertificatePath)
		if err != nil {
			return Options{}, err
		}
		o.Certificate = cert
	}
	if o.Key == nil {
		key, err := NewInstanceKeyFile(DefaultInstanceKeyPath)
		if err != nil {
			return Options{}, err
		}
		o.Key = key
	}
	return o, nil
}

// Authentication logs in to Vault with the Cloud Foundry instance identity.
// It keeps no state between calls and is safe for concurrent use.
type Authentication struct {
	opts      Options
	transport Transport
	logger    *zap.Logger
	observers []Observer
}

// New constructs an Authentication. A nil logger disables logging.
func New(opts Options, transport Transport, logger *zap.Logger, observers ...Observer) *Authentication {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MountPath == "" {
		opts.MountPath = DefaultMountPath
	}
	return &Authentication{
		opts:      opts,
		transport: transport,
		logger:    logger,
		observers: observers,
	}
}

// MountPath returns the configured auth mount.
func (a *Authentication) MountPath() string { return a.opts.MountPath }

// Login performs a single login attempt. Errors are *CredentialLoadError,
// *AuthenticationError or *MalformedResponseError. No retries are made.
func (a *Authentication) Login(ctx context.Context) (Token, error) {
	start := time.Now()

	token, err := a.login(ctx)
	elapsed := time.Since(start)
	if err != nil {
		a.logger.Warn("cfauth.login_failed",
			zap.String("mount", a.opts.MountPath),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		for _, o := range a.observers {
			o.LoginFailed(MethodName, err, elapsed)
		}
		return Token{}, err
	}

	a.logger.Debug("cfauth.login_succeeded",
		zap.String("mount", a.opts.MountPath),
		zap.Object("token", token),
		zap.Duration("elapsed", elapsed))
	for _, o := range a.observers {
		o.LoginSucceeded(MethodName, token, elapsed)
	}
	return token, nil
}

func (a *Authentication) login(ctx context.Context) (Token, error) {
	cert, err := supplierValue("certificate", a.opts.Certificate)
	if err != nil {
		return Token{}, err
	}
	key, err := supplierValue("key", a.opts.Key)
	if err != nil {
		return Token{}, err
	}

	req := BuildLoginRequest(cert, key, a.opts.MountPath)

	resp, err := a.transport.Write(ctx, req.Path, req.Body)
	if err != nil {
		return Token{}, NewLoginError(MethodName, err)
	}

	auth, err := authBlock(resp)
	if err != nil {
		return Token{}, err
	}
	return InterpretAuth(auth)
}

func supplierValue(kind string, s CredentialSupplier) (string, error) {
	if s == nil {
		return "", &CredentialLoadError{Kind: kind, Err: errors.New("no supplier configured")}
	}
	v, err := s.Value()
	if err != nil {
		var loadErr *CredentialLoadError
		if errors.As(err, &loadErr) {
			return "", err
		}
		return "", &CredentialLoadError{Kind: kind, Err: err}
	}
	if v == "" {
		return "", &CredentialLoadError{Kind: kind, Err: errEmptyCredential}
	}
	return v, nil
}

func authBlock(resp map[string]any) (map[string]any, error) {
	raw, ok := resp["auth"]
	if !ok || raw == nil {
		return nil, malformed("response has no auth block")
	}
	auth, ok := raw.(map[string]any)
	if !ok {
		return nil, malformed("auth block is %T, want object", raw)
	}
	return auth, nil
}
