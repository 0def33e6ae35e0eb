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
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxConns        int    `yaml:"max_conns"`
			MinConns        int    `yaml:"min_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Redis struct {
		Addr   string `yaml:"addr"` // vacío => sin redis, fallback a store
		DB     int    `yaml:"db"`
		Prefix string `yaml:"prefix"`
	} `yaml:"redis"`

	JWT struct {
		Issuer         string `yaml:"issuer"`
		Secret         string `yaml:"secret"` // >= 32 bytes, normalmente via JWT_SECRET
		AccessTTL      string `yaml:"access_ttl"`
		RefreshTTLDays int    `yaml:"refresh_ttl_days"`
	} `yaml:"jwt"`

	Rate struct {
		// Límite global de fallos por IP (anti-DDoS), independiente del
		// lockout por cuenta.
		GlobalIPMaxFailures int    `yaml:"global_ip_max_failures"`
		GlobalIPWindow      string `yaml:"global_ip_window"`
		GlobalIPBlockHours  int    `yaml:"global_ip_block_hours"`

		// Rate limit HTTP por IP en endpoints públicos.
		HTTP struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"http"`
	} `yaml:"rate"`

	Directory struct {
		// URL del endpoint de verificación de credenciales del directorio
		// de usuarios (POST). Vacío => verifier no configurado (fatal).
		URL     string `yaml:"url"`
		APIKey  string `yaml:"api_key"`
		Timeout string `yaml:"timeout"`
	} `yaml:"directory"`

	Seed struct {
		// FirstPartyClients habilita el auto-seed de clients first-party
		// cuando el registro está vacío.
		FirstPartyClients bool `yaml:"first_party_clients"`
	} `yaml:"seed"`

	Flags struct {
		Migrate bool `yaml:"migrate"`
	} `yaml:"flags"`
}

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
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "sso:rl:"
	}
	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "http://localhost:8080"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "15m"
	}
	if c.JWT.RefreshTTLDays == 0 {
		c.JWT.RefreshTTLDays = 30
	}
	if c.Rate.GlobalIPMaxFailures == 0 {
		c.Rate.GlobalIPMaxFailures = 100
	}
	if c.Rate.GlobalIPWindow == "" {
		c.Rate.GlobalIPWindow = "1h"
	}
	if c.Rate.GlobalIPBlockHours == 0 {
		c.Rate.GlobalIPBlockHours = 24
	}
	if c.Rate.HTTP.Limit == 0 {
		c.Rate.HTTP.Limit = 60
	}
	if c.Rate.HTTP.Window == "" {
		c.Rate.HTTP.Window = "1m"
	}
	if c.Storage.Postgres.MaxConns == 0 {
		c.Storage.Postgres.MaxConns = 10
	}
	if c.Directory.Timeout == "" {
		c.Directory.Timeout = "5s"
	}

	// Overrides por env
	c.applyEnvOverrides()

	// validate string durations
	for _, d := range []string{
		c.JWT.AccessTTL,
		c.Rate.GlobalIPWindow,
		c.Rate.HTTP.Window,
		c.Cache.Memory.DefaultTTL,
		c.Directory.Timeout,
	} {
		if d != "" {
			if _, err := time.ParseDuration(d); err != nil {
				return nil, err
			}
		}
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return nil, err
		}
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate aplica las reglas fatales de arranque. Un secret ausente o corto
// es un error de configuración, no un error diferido a request time.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("jwt.secret is required (env JWT_SECRET)")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("jwt.secret too short: need >= 32 bytes, got %d", len(c.JWT.Secret))
	}
	if strings.TrimSpace(c.Storage.DSN) == "" {
		return fmt.Errorf("storage.dsn is required (env DATABASE_URL)")
	}
	return nil
}

// AccessTTL retorna el TTL de access tokens ya parseado.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWT.AccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL retorna el TTL de refresh tokens ya parseado.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWT.RefreshTTLDays) * 24 * time.Hour
}

// DirectoryTimeout retorna el timeout del verifier HTTP ya parseado.
func (c *Config) DirectoryTimeout() time.Duration {
	d, err := time.ParseDuration(c.Directory.Timeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvStr("DATABASE_URL"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := getEnvStr("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v
	}
	if v, ok := getEnvInt("REFRESH_TTL_DAYS"); ok {
		c.JWT.RefreshTTLDays = v
	}
	if v, ok := getEnvStr("DIRECTORY_URL"); ok {
		c.Directory.URL = v
	}
	if v, ok := getEnvStr("DIRECTORY_API_KEY"); ok {
		c.Directory.APIKey = v
	}
	if v, ok := getEnvBool("SEED_FIRST_PARTY_CLIENTS"); ok {
		c.Seed.FirstPartyClients = v
	}
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
