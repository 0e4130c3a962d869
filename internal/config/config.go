package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env      string `yaml:"app_env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
		// BaseURL se usa para construir el issuer por aplicación: {base}/application/o/{slug}/
		BaseURL string `yaml:"base_url"`
		// LoginURL es la UI externa de login (LOGIN_REQUIRED redirige ahí con return_to)
		LoginURL string `yaml:"login_url"`
	} `yaml:"server"`

	Storage struct {
		// Vacío = directorio de usuarios y consents recordados en memoria.
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	JWT struct {
		// Issuer es el base de fallback cuando server.base_url está vacío.
		Issuer string `yaml:"issuer"`
		// SigningKeySeed: base64(32 bytes) de la seed Ed25519. Vacío = clave efímera (dev).
		SigningKeySeed string `yaml:"signing_key_seed"`
		KID            string `yaml:"kid"`
	} `yaml:"jwt"`

	Auth struct {
		Session struct {
			CookieName string `yaml:"cookie_name"`
		} `yaml:"session"`
	} `yaml:"auth"`

	Consent struct {
		// TTL por defecto del continuation token cuando el stage no define uno.
		TokenTTL string `yaml:"token_ttl"`
	} `yaml:"consent"`

	Policy struct {
		// Timeout por binding cuando el binding no define uno.
		DefaultTimeout string `yaml:"default_timeout"`
	} `yaml:"policy"`

	ControlPlane struct {
		// Path al YAML con providers, applications, policies, scope mappings y flows.
		Path string `yaml:"path"`
	} `yaml:"control_plane"`
}

// Load lee el YAML, aplica defaults, overrides por env y valida.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	c.applyDefaults()
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	// control plane relativo al directorio del YAML
	if p := strings.TrimSpace(c.ControlPlane.Path); p != "" && !filepath.IsAbs(p) {
		c.ControlPlane.Path = filepath.Clean(filepath.Join(filepath.Dir(path), p))
	}
	return &c, nil
}

// Default devuelve una config sólo con defaults + env (sin archivo).
func Default() *Config {
	var c Config
	c.applyDefaults()
	c.applyEnvOverrides()
	return &c
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":9000"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "10m"
	}
	if c.JWT.KID == "" {
		c.JWT.KID = "consentgate-1"
	}
	if c.Auth.Session.CookieName == "" {
		c.Auth.Session.CookieName = "sid"
	}
	if c.Consent.TokenTTL == "" {
		c.Consent.TokenTTL = "10m"
	}
	if c.Policy.DefaultTimeout == "" {
		c.Policy.DefaultTimeout = "30s"
	}
	if c.ControlPlane.Path == "" {
		c.ControlPlane.Path = "./controlplane.yaml"
	}
}

// Validate chequea que los strings de duración parseen y que los enums sean conocidos.
func (c *Config) Validate() error {
	durations := map[string]string{
		"cache.memory.default_ttl":           c.Cache.Memory.DefaultTTL,
		"consent.token_ttl":                  c.Consent.TokenTTL,
		"policy.default_timeout":             c.Policy.DefaultTimeout,
		"storage.postgres.conn_max_lifetime": c.Storage.Postgres.ConnMaxLifetime,
	}
	for field, v := range durations {
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", field, err)
		}
		if d <= 0 {
			return fmt.Errorf("config: %s must be positive", field)
		}
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.Cache.Redis.Addr) == "" {
			return fmt.Errorf("config: cache.redis.addr required when cache.kind=redis")
		}
	default:
		return fmt.Errorf("config: unknown cache.kind %q", c.Cache.Kind)
	}
	return nil
}

// MustDuration parsea una duración ya validada; devuelve def si está vacía.
func MustDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil && d > 0 {
		return d
	}
	return def
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvDur(key string) (string, bool) {
	if s, ok := getEnvStr(key); ok {
		s = strings.TrimSpace(s)
		if _, err := time.ParseDuration(s); err == nil {
			return s, true
		}
	}
	return "", false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}

	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("SERVER_BASE_URL"); ok {
		c.Server.BaseURL = v
	}
	if v, ok := getEnvStr("SERVER_LOGIN_URL"); ok {
		c.Server.LoginURL = v
	}

	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_CONNS"); ok {
		c.Storage.Postgres.MaxConns = v
	}

	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("SIGNING_KEY_SEED"); ok {
		c.JWT.SigningKeySeed = v
	}

	if v, ok := getEnvStr("AUTH_SESSION_COOKIE_NAME"); ok {
		c.Auth.Session.CookieName = v
	}
	if v, ok := getEnvDur("CONSENT_TOKEN_TTL"); ok {
		c.Consent.TokenTTL = v
	}
	if v, ok := getEnvDur("POLICY_TIMEOUT"); ok {
		c.Policy.DefaultTimeout = v
	}
	if v, ok := getEnvStr("CONTROLPLANE_PATH"); ok {
		c.ControlPlane.Path = v
	}
}
