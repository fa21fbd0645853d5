package config

import (
	"time"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration for cfvault-example.
type Config struct {
	ServiceName string
	Env         string
	LogLevel    string
	Port        int

	// Vault
	VaultAddr       string
	VaultCACert     string
	VaultSkipVerify bool
	VaultTimeout    time.Duration
	VaultNamespace  string
	CFMount         string

	// CF instance identity
	CFInstanceCert string
	CFInstanceKey  string

	// Login transport and throttle
	LoginTransport   string // "vault" or "http"
	LoginHTTPRetries int
	LoginRatePerSec  float64
	LoginRateBurst   int

	// Token session
	TokenStore       string // "memory" or "redis"
	RedisAddr        string
	RedisDB          int
	RedisPass        string
	TokenRenewBefore time.Duration

	// Demo secret
	SecretsBackend string // "vault" or "aws"
	KVMount        string
	KVPath         string
	KVKey          string
	AWSRegion      string
	SecretCacheTTL time.Duration

	// Login events
	NATSURL       string
	EventsSubject string
}

// Load loads configuration from environment variables and optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName:      GetEnv("SERVICE_NAME", "cfvault-example"),
		Env:              GetEnv("ENV", "dev"),
		LogLevel:         GetEnv("LOG_LEVEL", "info"),
		Port:             GetEnvInt("PORT", 8080),
		VaultAddr:        GetEnv("VAULT_ADDR", "http://127.0.0.1:8200"),
		VaultCACert:      GetEnv("VAULT_CACERT", ""),
		VaultSkipVerify:  GetEnvBool("VAULT_SKIP_VERIFY", false),
		VaultTimeout:     GetEnvDuration("VAULT_TIMEOUT", 30*time.Second),
		VaultNamespace:   GetEnv("VAULT_NAMESPACE", ""),
		CFMount:          GetEnv("VAULT_CF_MOUNT", "cf"),
		CFInstanceCert:   GetEnv("CF_INSTANCE_CERT", "/etc/cf-instance-credentials/instance.crt"),
		CFInstanceKey:    GetEnv("CF_INSTANCE_KEY", "/etc/cf-instance-credentials/instance.key"),
		LoginTransport:   GetEnv("LOGIN_TRANSPORT", "vault"),
		LoginHTTPRetries: GetEnvInt("LOGIN_HTTP_RETRIES", 0),
		LoginRatePerSec:  GetEnvFloat("LOGIN_RATE_PER_SEC", 1),
		LoginRateBurst:   GetEnvInt("LOGIN_RATE_BURST", 3),
		TokenStore:       GetEnv("TOKEN_STORE", "memory"),
		RedisAddr:        GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:          GetEnvInt("REDIS_DB", 0),
		RedisPass:        GetEnv("REDIS_PASS", ""),
		TokenRenewBefore: GetEnvDuration("TOKEN_RENEW_BEFORE", 30*time.Second),
		SecretsBackend:   GetEnv("SECRETS_BACKEND", "vault"),
		KVMount:          GetEnv("KV_MOUNT", "kv"),
		KVPath:           GetEnv("KV_PATH", "github"),
		KVKey:            GetEnv("KV_KEY", "github.oauth2.key"),
		AWSRegion:        GetEnv("AWS_REGION", "us-east-2"),
		SecretCacheTTL:   GetEnvDuration("SECRET_CACHE_TTL", time.Minute),
		NATSURL:          GetEnv("NATS_URL", ""),
		EventsSubject:    GetEnv("EVENTS_SUBJECT", "evt.vault.login.v1"),
	}
}
