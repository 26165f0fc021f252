package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DefaultProxyPort   = 3001
	DefaultUpstreamURL = DefaultBaseURL + "/audio/transcriptions"
)

// ProxyConfig configures the relay server. Every key can be set through a
// NEXARA_PROXY_<KEY> environment variable or a .env file.
type ProxyConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port" validate:"required,gte=1,lte=65535"`
	UpstreamURL    string        `mapstructure:"upstream_url" validate:"required,url"`
	MaxUploadMB    int           `mapstructure:"max_upload_mb" validate:"gte=1"`
	StaticDir      string        `mapstructure:"static_dir"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	LogLevel       string        `mapstructure:"log_level"`
}

// Addr is the listen address.
func (c ProxyConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxUploadBytes is the request body cap for uploads.
func (c ProxyConfig) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func setProxyDefaults(v *viper.Viper) {
	v.SetDefault("host", "")
	v.SetDefault("port", DefaultProxyPort)
	v.SetDefault("upstream_url", DefaultUpstreamURL)
	v.SetDefault("max_upload_mb", 100)
	v.SetDefault("static_dir", "")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("request_timeout", 5*time.Minute)
	v.SetDefault("log_level", "info")
}

// LoadProxy resolves the proxy configuration. envFile is optional; when empty
// a .env in the working directory is used if present.
func LoadProxy(envFile string) (*ProxyConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("NEXARA_PROXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setProxyDefaults(v)

	var cfg ProxyConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode proxy config: %w", err)
	}

	if err := ValidateStruct(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
