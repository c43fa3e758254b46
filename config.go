package goimap

import (
	"crypto/tls"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the property bag §6 describes, loadable from the
// environment (mirroring cmd/mails's envOr helper and
// internal/storage/s3.go's configuration-from-env pattern) or from YAML
// (mirroring the teacher's account.Store / model.AccountsFile on-disk
// config).
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	ImplicitTLS bool        `yaml:"implicit_tls"`
	TLSConfig   *tls.Config `yaml:"-"`

	ConnectionPoolSize       int           `yaml:"connectionpoolsize"`
	ConnectionPoolTimeout    time.Duration `yaml:"connectionpooltimeout"`
	SeparateStoreConnection  bool          `yaml:"separatestoreconnection"`
	StartTLSEnable           bool          `yaml:"starttls.enable"`
	SASLEnable               bool          `yaml:"sasl.enable"`
	SASLRealm                string        `yaml:"sasl.realm"`
	SASLAuthorizationID      string        `yaml:"sasl.authorizationid"`
	AuthPlainDisable         bool          `yaml:"auth.plain.disable"`
	AuthLoginDisable         bool          `yaml:"auth.login.disable"`
	StatusCacheTimeout       time.Duration `yaml:"statuscachetimeout"`

	Debug bool `yaml:"debug"`
}

// DefaultConfig returns the §6 configuration-table defaults.
func DefaultConfig() Config {
	return Config{
		Host:                  "localhost",
		Port:                  143,
		ConnectionPoolSize:    1,
		ConnectionPoolTimeout: 45 * time.Second,
		StatusCacheTimeout:    time.Second,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolOr(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// LoadConfigEnv builds a Config from environment variables, falling back
// to DefaultConfig's values, in the same IMAP_HOST/IMAP_PORT style as
// cmd/mails/main.go's LISTEN_ADDR/DATA_DIR envOr calls.
func LoadConfigEnv() Config {
	d := DefaultConfig()
	port := d.Port
	if envBoolOr("IMAP_IMPLICIT_TLS", false) {
		port = 993
	}
	return Config{
		Host:                    envOr("IMAP_HOST", d.Host),
		Port:                    envIntOr("IMAP_PORT", port),
		Username:                envOr("IMAP_USER", ""),
		Password:                envOr("IMAP_PASSWORD", ""),
		ImplicitTLS:             envBoolOr("IMAP_IMPLICIT_TLS", false),
		ConnectionPoolSize:      envIntOr("IMAP_POOL_SIZE", d.ConnectionPoolSize),
		ConnectionPoolTimeout:   time.Duration(envIntOr("IMAP_POOL_TIMEOUT_MS", int(d.ConnectionPoolTimeout/time.Millisecond))) * time.Millisecond,
		SeparateStoreConnection: envBoolOr("IMAP_SEPARATE_STORE_CONNECTION", false),
		StartTLSEnable:          envBoolOr("IMAP_STARTTLS_ENABLE", false),
		SASLEnable:              envBoolOr("IMAP_SASL_ENABLE", false),
		SASLRealm:               envOr("IMAP_SASL_REALM", ""),
		SASLAuthorizationID:     envOr("IMAP_SASL_AUTHZID", ""),
		AuthPlainDisable:        envBoolOr("IMAP_AUTH_PLAIN_DISABLE", false),
		AuthLoginDisable:        envBoolOr("IMAP_AUTH_LOGIN_DISABLE", false),
		StatusCacheTimeout:      time.Duration(envIntOr("IMAP_STATUS_CACHE_TIMEOUT_MS", int(d.StatusCacheTimeout/time.Millisecond))) * time.Millisecond,
		Debug:                   envBoolOr("IMAP_DEBUG", false),
	}
}

// LoadConfigYAML reads a Config from a YAML file, the same
// gopkg.in/yaml.v3-backed approach the teacher uses for its
// accounts.yml.
func LoadConfigYAML(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
