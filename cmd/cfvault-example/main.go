package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	vaultapi "github.com/hashicorp/vault/api"
	"github.com/nats-io/nats.go"

	"github.com/paasify/cfvault/internal/api"
	"github.com/paasify/cfvault/internal/cfauth"
	"github.com/paasify/cfvault/internal/events"
	"github.com/paasify/cfvault/internal/httpclient"
	"github.com/paasify/cfvault/internal/metrics"
	"github.com/paasify/cfvault/internal/rate"
	internalsecrets "github.com/paasify/cfvault/internal/secrets"
	"github.com/paasify/cfvault/internal/session"
	"github.com/paasify/cfvault/internal/store"
	"github.com/paasify/cfvault/internal/vault"
	"github.com/paasify/cfvault/pkg/config"
	"github.com/paasify/cfvault/pkg/logger"
	"github.com/paasify/cfvault/pkg/secrets"
	"github.com/paasify/cfvault/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Infow("starting [cfvault-example]...",
		"vault", utils.MaskURL(cfg.VaultAddr),
		"mount", cfg.CFMount,
		"transport", cfg.LoginTransport)

	// --- Vault API client (no token until login) ---
	vaultClient, err := vault.NewClient(vault.ClientConfig{
		Address:    cfg.VaultAddr,
		CACert:     cfg.VaultCACert,
		SkipVerify: cfg.VaultSkipVerify,
		Timeout:    cfg.VaultTimeout,
		Namespace:  cfg.VaultNamespace,
	})
	if err != nil {
		logg.Fatalw("failed to create vault client", "error", err)
	}

	// --- CF instance identity ---
	cert, err := cfauth.NewInstanceCertificateFile(cfg.CFInstanceCert)
	if err != nil {
		logg.Fatalw("failed to load instance certificate", "error", err)
	}
	key, err := cfauth.NewInstanceKeyFile(cfg.CFInstanceKey)
	if err != nil {
		logg.Fatalw("failed to load instance key", "error", err)
	}
	opts, err := cfauth.NewOptions(
		cfauth.WithMountPath(cfg.CFMount),
		cfauth.WithCertificate(cert),
		cfauth.WithKey(key),
	)
	if err != nil {
		logg.Fatalw("invalid login options", "error", err)
	}

	// --- Login observers ---
	observers := []cfauth.Observer{metrics.Observer{}}
	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "url", utils.MaskURL(cfg.NATSURL), "error", err)
		}
		observers = append(observers, events.New(nc, cfg.EventsSubject, cfg.ServiceName, logger.L()))
	}

	// --- Authenticator ---
	transport := newTransport(cfg, vaultClient)
	auth := cfauth.New(opts, transport, logger.L(), observers...)

	// --- Token session ---
	tokenStore, checks, closeStore, err := newTokenStore(cfg)
	if err != nil {
		logg.Fatalw("failed to init token store", "store", cfg.TokenStore, "error", err)
	}
	if nc != nil {
		checks["nats"] = natsCheck(nc)
	}

	rateMgr := rate.NewManager(rate.Config{
		PerSecond: cfg.LoginRatePerSec,
		Burst:     cfg.LoginRateBurst,
	})
	sessions := session.NewManager(auth, tokenStore,
		session.Config{Key: auth.MountPath(), RenewBefore: cfg.TokenRenewBefore},
		logger.L(),
		session.WithRenewer(vault.NewRenewer(vaultClient, 0)),
		session.WithLimiter(rateMgr),
	)

	// --- Secret resolver ---
	provider, secretPath, err := newSecretProvider(ctx, cfg, vaultClient, sessions)
	if err != nil {
		logg.Fatalw("failed to create secrets provider", "backend", cfg.SecretsBackend, "error", err)
	}
	secretCache := secrets.NewCache[map[string]string](cfg.SecretCacheTTL)
	stopCleaner := make(chan struct{})
	if cfg.SecretCacheTTL > 0 {
		go secretCache.StartCleaner(cfg.SecretCacheTTL, stopCleaner)
	}
	resolver := internalsecrets.NewResolver(logger.L(), cfg.SecretsBackend, provider, secretCache)

	// --- Warm up: log in once so misconfiguration shows at start ---
	if _, err := sessions.Token(ctx); err != nil {
		logg.Warnw("initial login failed", "error", err)
	}

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	api.RegisterRoutes(app,
		api.NewSecretHandler(logger.L(), resolver, secretPath, cfg.KVKey),
		api.NewHealthHandler(sessions, checks),
	)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	<-ctx.Done()
	logg.Info("shutting down [cfvault-example]...")

	close(stopCleaner)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logg.Warnw("nats.drain_failed", "error", err)
		}
	}
	if err := closeStore(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}

// newTransport picks the login transport: the Vault API client, or the
// plain HTTP executor with its own retries.
func newTransport(cfg *config.Config, client *vaultapi.Client) cfauth.Transport {
	if cfg.LoginTransport == "http" {
		exec := httpclient.New(logger.L(), nil, &http.Client{Timeout: cfg.VaultTimeout}, cfg.LoginHTTPRetries, "vault")
		return httpclient.NewVaultTransport(exec, cfg.VaultAddr, cfg.VaultNamespace)
	}
	return vault.NewTransport(client)
}

func newTokenStore(cfg *config.Config) (session.Store, map[string]api.HealthCheck, func() error, error) {
	checks := map[string]api.HealthCheck{}
	if cfg.TokenStore == "redis" {
		st, err := store.NewRedis(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, logger.L())
		if err != nil {
			return nil, nil, nil, err
		}
		checks["store"] = st.HealthCheck
		return st, checks, st.Close, nil
	}

	st := store.NewMemory()
	stopCleaner := make(chan struct{})
	go st.StartCleaner(stopCleaner)
	return st, checks, func() error { close(stopCleaner); return nil }, nil
}

// newSecretProvider returns the provider for the demo secret and the path
// the secret is read from.
func newSecretProvider(ctx context.Context, cfg *config.Config, client *vaultapi.Client, sessions *session.Manager) (secrets.Provider, string, error) {
	switch cfg.SecretsBackend {
	case "aws":
		p, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			return nil, "", err
		}
		return p, cfg.KVMount + "/" + cfg.KVPath, nil
	case "vault", "":
		return secrets.NewVaultKV(client, cfg.KVMount, sessions, logger.L()), cfg.KVPath, nil
	default:
		return nil, "", fmt.Errorf("unknown secrets backend %q", cfg.SecretsBackend)
	}
}

func natsCheck(nc *nats.Conn) api.HealthCheck {
	return func(context.Context) error {
		if !nc.IsConnected() {
			return errors.New("disconnected")
		}
		return nc.FlushTimeout(time.Second)
	}
}
