// Package config carga la configuración del servicio desde YAML, con
// overrides por variables de entorno para todo lo que es secreto.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		Addr            string `yaml:"addr"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Cache struct {
		Driver string `yaml:"driver"` // redis | memory
		Redis  struct {
			Host     string `yaml:"host"`
			Port     int    `yaml:"port"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Session struct {
		Cookie struct {
			Name     string `yaml:"name"`
			Domain   string `yaml:"domain"`
			Secure   bool   `yaml:"secure"`
			SameSite string `yaml:"samesite"`
		} `yaml:"cookie"`

		// Políticas por tipo de cuenta. Si falta un tipo, usa el default.
		Policies map[string]struct {
			TTL              string `yaml:"ttl"`
			RefreshThreshold string `yaml:"refresh_threshold"`
			CookiePath       string `yaml:"cookie_path"`
		} `yaml:"policies"`
	} `yaml:"session"`

	Crypto struct {
		// base64(32 bytes). En prod SIEMPRE por env: SESSION_MASTER_KEY /
		// SESSION_PREVIOUS_KEY.
		CurrentKey      string `yaml:"current_key"`
		CurrentVersion  int    `yaml:"current_version"`
		PreviousKey     string `yaml:"previous_key"`
		PreviousVersion int    `yaml:"previous_version"`
	} `yaml:"crypto"`

	Auth struct {
		// JWTSecret por env: TRUSTGATE_JWT_SECRET.
		JWTSecret string `yaml:"jwt_secret"`
		// APIKeys por env: TRUSTGATE_API_KEYS (separadas por coma).
		APIKeys     []string `yaml:"api_keys"`
		KeyCacheTTL string   `yaml:"key_cache_ttl"`
	} `yaml:"auth"`

	Rate struct {
		Enabled bool   `yaml:"enabled"`
		Limit   int    `yaml:"limit"`
		Window  string `yaml:"window"`
	} `yaml:"rate"`

	Breaker struct {
		FailureThreshold int    `yaml:"failure_threshold"`
		SuccessThreshold int    `yaml:"success_threshold"`
		ResetTimeout     string `yaml:"reset_timeout"`
	} `yaml:"breaker"`

	Upstream struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Timeout string `yaml:"timeout"`
	} `yaml:"upstream"`
}

// Load lee el YAML, aplica defaults, overrides por env y valida.
func Load(path string) (*Config, error) {
	var c Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.Redis.Host == "" {
		c.Cache.Redis.Host = "127.0.0.1"
	}
	if c.Cache.Redis.Port == 0 {
		c.Cache.Redis.Port = 6379
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "tg:"
	}
	if c.Session.Cookie.Name == "" {
		c.Session.Cookie.Name = "tg_session"
	}
	if c.Session.Cookie.SameSite == "" {
		c.Session.Cookie.SameSite = "Lax"
	}
	if c.Crypto.CurrentVersion == 0 {
		c.Crypto.CurrentVersion = 1
	}
	if c.Auth.KeyCacheTTL == "" {
		c.Auth.KeyCacheTTL = "5m"
	}
	if c.Rate.Limit == 0 {
		c.Rate.Limit = 10
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = 2
	}
	if c.Breaker.ResetTimeout == "" {
		c.Breaker.ResetTimeout = "30s"
	}
	if c.Upstream.Timeout == "" {
		c.Upstream.Timeout = "5s"
	}

	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyEnvOverrides pisa la config con env. Los secretos sólo tienen sentido
// por esta vía.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.App.LogLevel = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("CACHE_DRIVER"); ok {
		c.Cache.Driver = v
	}
	if v, ok := getEnvStr("REDIS_HOST"); ok {
		c.Cache.Redis.Host = v
	}
	if v, ok := getEnvInt("REDIS_PORT"); ok {
		c.Cache.Redis.Port = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("SESSION_MASTER_KEY"); ok {
		c.Crypto.CurrentKey = v
	}
	if v, ok := getEnvInt("SESSION_KEY_VERSION"); ok {
		c.Crypto.CurrentVersion = v
	}
	if v, ok := getEnvStr("SESSION_PREVIOUS_KEY"); ok {
		c.Crypto.PreviousKey = v
	}
	if v, ok := getEnvInt("SESSION_PREVIOUS_KEY_VERSION"); ok {
		c.Crypto.PreviousVersion = v
	}
	if v, ok := getEnvStr("TRUSTGATE_JWT_SECRET"); ok {
		c.Auth.JWTSecret = v
	}
	if v, ok := getEnvStr("TRUSTGATE_API_KEYS"); ok {
		keys := strings.Split(v, ",")
		out := keys[:0]
		for _, k := range keys {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
		c.Auth.APIKeys = out
	}
	if v, ok := getEnvStr("UPSTREAM_BASE_URL"); ok {
		c.Upstream.BaseURL = v
	}
	if v, ok := getEnvStr("UPSTREAM_API_KEY"); ok {
		c.Upstream.APIKey = v
	}
	if v, ok := getEnvBool("SESSION_COOKIE_SECURE"); ok {
		c.Session.Cookie.Secure = v
	}
}

// Validate chequea lo mínimo para arrancar.
func (c *Config) Validate() error {
	switch c.Cache.Driver {
	case "redis", "memory":
	default:
		return fmt.Errorf("config: cache.driver desconocido: %q", c.Cache.Driver)
	}

	if c.Crypto.CurrentKey == "" {
		return fmt.Errorf("config: falta la clave de cifrado (SESSION_MASTER_KEY)")
	}
	if c.Crypto.PreviousKey != "" && c.Crypto.PreviousVersion >= c.Crypto.CurrentVersion {
		return fmt.Errorf("config: previous_version debe ser menor que current_version")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: falta el secreto JWT (TRUSTGATE_JWT_SECRET)")
	}

	// Durations en string se validan acá, se parsean donde se usan.
	for _, d := range []string{
		c.Server.ShutdownTimeout, c.Auth.KeyCacheTTL, c.Rate.Window,
		c.Breaker.ResetTimeout, c.Upstream.Timeout,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("config: duración inválida %q: %w", d, err)
		}
	}
	for name, p := range c.Session.Policies {
		if p.TTL != "" {
			if _, err := time.ParseDuration(p.TTL); err != nil {
				return fmt.Errorf("config: session.policies.%s.ttl inválido: %w", name, err)
			}
		}
		if p.RefreshThreshold != "" {
			if _, err := time.ParseDuration(p.RefreshThreshold); err != nil {
				return fmt.Errorf("config: session.policies.%s.refresh_threshold inválido: %w", name, err)
			}
		}
	}
	return nil
}

// Duration parsea una duración ya validada. Cadena vacía retorna el default.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
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

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
