// Package config loads gateway settings from the environment and an optional
// config file.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mediagw/internal/objectstore"
)

const (
	MetadataJSON   = "json"
	MetadataSQLite = "sqlite"

	StorageMinio = "minio"
	StorageS3    = "s3"
	StorageLocal = "local"

	EnvPrefix = "MEDIAGW"

	minPartSize = objectstore.MinPartSize
)

type TLSConfig struct {
	Listen   string `mapstructure:"listen"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// Enabled reports whether both a certificate and a key were configured.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

type MetadataConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	DataDir   string `mapstructure:"data_dir"`
	PartSize  uint64 `mapstructure:"part_size"`
}

type ReconcileConfig struct {
	OrphanGrace time.Duration `mapstructure:"orphan_grace"`
}

type UIConfig struct {
	Listen     string `mapstructure:"listen"`
	GatewayURL string `mapstructure:"gateway_url"`
}

type Config struct {
	Listen          string          `mapstructure:"listen"`
	LogLevel        string          `mapstructure:"log_level"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	TLS             TLSConfig       `mapstructure:"tls"`
	Metadata        MetadataConfig  `mapstructure:"metadata"`
	Storage         StorageConfig   `mapstructure:"storage"`
	Reconcile       ReconcileConfig `mapstructure:"reconcile"`
	UI              UIConfig        `mapstructure:"ui"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Listen:          "3000",
		LogLevel:        "info",
		ShutdownTimeout: 15 * time.Second,
		TLS: TLSConfig{
			Listen: "8443",
		},
		Metadata: MetadataConfig{
			Driver: MetadataJSON,
			Path:   "./metadata.json",
		},
		Storage: StorageConfig{
			Driver:   StorageMinio,
			Endpoint: "minio:9000",
			Region:   "us-east-1",
			Bucket:   "media",
			DataDir:  "./data",
			PartSize: minPartSize,
		},
		Reconcile: ReconcileConfig{
			OrphanGrace: 15 * time.Minute,
		},
		UI: UIConfig{
			Listen:     "3100",
			GatewayURL: "http://localhost:3000",
		},
	}
}

// ListenAddr turns a bare port such as "3000" into ":3000". Anything
// containing a colon is returned unchanged.
func ListenAddr(listen string) string {
	if strings.Contains(listen, ":") {
		return listen
	}
	return ":" + listen
}

// Validate rejects configurations the gateway cannot start with.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen must not be empty"))
	}

	if !slices.Contains([]string{MetadataJSON, MetadataSQLite}, c.Metadata.Driver) {
		errs = append(errs, fmt.Errorf("unknown metadata driver %q", c.Metadata.Driver))
	}
	if c.Metadata.Path == "" {
		errs = append(errs, errors.New("metadata.path must not be empty"))
	}

	switch c.Storage.Driver {
	case StorageMinio, StorageS3:
		if c.Storage.Driver == StorageMinio && c.Storage.Endpoint == "" {
			errs = append(errs, errors.New("storage.endpoint is required for the minio driver"))
		}
	case StorageLocal:
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir is required for the local driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("storage.bucket must not be empty"))
	}
	if c.Storage.PartSize < minPartSize {
		errs = append(errs, fmt.Errorf("storage.part_size must be at least %d bytes", minPartSize))
	}

	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls.cert_file and tls.key_file must be set together"))
	}

	return errors.Join(errs...)
}

// legacyEnv lists variable names from earlier deployments that still
// override the matching key.
var legacyEnv = map[string]string{
	"storage.region":     "AWS_REGION",
	"storage.access_key": "MINIO_ROOT_USER",
	"storage.secret_key": "MINIO_ROOT_PASSWORD",
	"storage.bucket":     "BUCKET_NAME",
	"listen":             "PORT",
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("listen", cfg.Listen)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("tls.listen", cfg.TLS.Listen)
	v.SetDefault("tls.cert_file", cfg.TLS.CertFile)
	v.SetDefault("tls.key_file", cfg.TLS.KeyFile)
	v.SetDefault("metadata.driver", cfg.Metadata.Driver)
	v.SetDefault("metadata.path", cfg.Metadata.Path)
	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.endpoint", cfg.Storage.Endpoint)
	v.SetDefault("storage.region", cfg.Storage.Region)
	v.SetDefault("storage.access_key", cfg.Storage.AccessKey)
	v.SetDefault("storage.secret_key", cfg.Storage.SecretKey)
	v.SetDefault("storage.bucket", cfg.Storage.Bucket)
	v.SetDefault("storage.use_ssl", cfg.Storage.UseSSL)
	v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	v.SetDefault("storage.part_size", cfg.Storage.PartSize)
	v.SetDefault("reconcile.orphan_grace", cfg.Reconcile.OrphanGrace)
	v.SetDefault("ui.listen", cfg.UI.Listen)
	v.SetDefault("ui.gateway_url", cfg.UI.GatewayURL)
}

// Load reads configuration from the environment and, when path is not
// empty, from the file at path. Environment variables take precedence over
// the file. The result is validated.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		envName := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envName, legacy); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
