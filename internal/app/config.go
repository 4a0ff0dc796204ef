package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/fabianovilela/buymore/pkg/httpmiddleware"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (BUYMORE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (BUYMORE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (BUYMORE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	UploadDir    string `default:"uploads" usage:"Directory uploaded images are written to" flag:"upload-dir"`
	ImageBaseURL string `default:"/uploads" usage:"Base URL prepended to image paths in responses" flag:"image-base-url"`
	Pagination   PaginationConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// PaginationConfig bounds list page sizes.
type PaginationConfig struct {
	DefaultLimit int `default:"20"  usage:"Page size when the request gives none"`
	MaxLimit     int `default:"100" usage:"Largest page size a request may ask for"`
}

// RateLimitConfig controls the per-client token bucket rate limiter.
type RateLimitConfig struct {
	RPS   float64 `default:"10" usage:"Sustained requests per second per client, 0 disables limiting"`
	Burst int     `default:"30" usage:"Requests a client may make at once"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
	MaxAge           int      `default:"86400" usage:"Preflight cache lifetime in seconds"`
}

func (c CORSConfig) middleware() httpmiddleware.CORSConfig {
	return httpmiddleware.CORSConfig{
		AllowOrigins:     c.Origins,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           c.MaxAge,
	}
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, flags, YAML
// config files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(os.Args[1:], []string{"config.yaml", "/etc/buymore/config.yaml"})
}

func loadConfig(args, files []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BUYMORE",
		Args:      args,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set BUYMORE_DATABASE_URL or DATABASE_URL")
	case c.APIKeyPepper == "":
		return errors.New("api key pepper is required: set BUYMORE_API_KEY_PEPPER")
	case c.UploadDir == "":
		return errors.New("upload dir must not be empty")
	case c.Pagination.DefaultLimit <= 0 || c.Pagination.MaxLimit < c.Pagination.DefaultLimit:
		return errors.Errorf("invalid pagination limits: default %d, max %d",
			c.Pagination.DefaultLimit, c.Pagination.MaxLimit)
	case c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0:
		return errors.Errorf("rate limit burst must be positive, got %d", c.RateLimit.Burst)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's BUYMORE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
