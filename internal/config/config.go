// Package config loads configuration from a YAML file and LIVEDIR_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. LIVEDIR_S3_BUCKET.
const EnvPrefix = "LIVEDIR"

// ErrInvalid wraps every validation and parse failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all livedir configuration.
type Config struct {
	// Directory
	Root         string        `mapstructure:"root"`
	Deployment   string        `mapstructure:"deployment"`
	SignedURLTTL time.Duration `mapstructure:"signed_url_ttl"`

	S3    S3Config    `mapstructure:"s3"`
	Relay RelayConfig `mapstructure:"relay"`
	Log   LogConfig   `mapstructure:"log"`

	// MetricsAddr serves /metrics from long-running commands when set.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// S3Config holds object store settings.
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Region    string `mapstructure:"region"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// RelayConfig holds event relay settings. URL is what clients connect to;
// ListenAddr is where the relay command serves.
type RelayConfig struct {
	URL        string `mapstructure:"url"`
	ListenAddr string `mapstructure:"listen_addr"`
	JWTSecret  string `mapstructure:"jwt_secret"`
	Token      string `mapstructure:"token"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultConfigPaths returns the directories searched for livedir.yaml.
func DefaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "livedir"))
	}
	return paths
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("root", "")
	v.SetDefault("deployment", "DEV")
	v.SetDefault("signed_url_ttl", time.Hour)
	v.SetDefault("metrics_addr", "")

	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.bucket", "livedir")
	v.SetDefault("s3.access_key", "")
	v.SetDefault("s3.secret_key", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.use_ssl", true)

	v.SetDefault("relay.url", "")
	v.SetDefault("relay.listen_addr", ":8090")
	v.SetDefault("relay.jwt_secret", "")
	v.SetDefault("relay.token", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration. An explicit path must exist; with an empty path
// livedir.yaml is looked up in the default locations and may be absent.
func Load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("livedir")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	return decode(v)
}

// LoadFromString parses configuration from YAML content. Environment
// overrides still apply.
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Deployment == "" {
		return fmt.Errorf("%w: deployment is required", ErrInvalid)
	}
	if strings.ContainsAny(c.Deployment, "/#") {
		return fmt.Errorf("%w: deployment %q must not contain '/' or '#'", ErrInvalid, c.Deployment)
	}
	if c.S3.Bucket == "" {
		return fmt.Errorf("%w: s3.bucket is required", ErrInvalid)
	}
	if c.SignedURLTTL <= 0 {
		return fmt.Errorf("%w: signed_url_ttl must be positive", ErrInvalid)
	}
	return nil
}
