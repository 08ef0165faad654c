package config

type Option func(*Config)

func WithListen(listen string) Option {
	return func(cfg *Config) {
		cfg.Listen = listen
	}
}

func WithLogLevel(level string) Option {
	return func(cfg *Config) {
		cfg.LogLevel = level
	}
}

func WithMetadata(driver string, path string) Option {
	return func(cfg *Config) {
		cfg.Metadata.Driver = driver
		cfg.Metadata.Path = path
	}
}

func WithStorageDriver(driver string) Option {
	return func(cfg *Config) {
		cfg.Storage.Driver = driver
	}
}

func WithEndpoint(endpoint string, useSSL bool) Option {
	return func(cfg *Config) {
		cfg.Storage.Endpoint = endpoint
		cfg.Storage.UseSSL = useSSL
	}
}

func WithCredentials(accessKey string, secretKey string) Option {
	return func(cfg *Config) {
		cfg.Storage.AccessKey = accessKey
		cfg.Storage.SecretKey = secretKey
	}
}

func WithRegion(region string) Option {
	return func(cfg *Config) {
		cfg.Storage.Region = region
	}
}

func WithBucket(bucket string) Option {
	return func(cfg *Config) {
		cfg.Storage.Bucket = bucket
	}
}

func WithDataDir(dataDir string) Option {
	return func(cfg *Config) {
		cfg.Storage.DataDir = dataDir
	}
}

func WithTLS(listen string, certFile string, keyFile string) Option {
	return func(cfg *Config) {
		cfg.TLS = TLSConfig{Listen: listen, CertFile: certFile, KeyFile: keyFile}
	}
}

// New returns Default with opts applied.
func New(opts ...Option) Config {
	cfg := Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
