package config

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"nft-metadata-resolver/internal/domain/entity"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	App      AppConfig      `mapstructure:"app" yaml:"app"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Content  ContentConfig  `mapstructure:"content" yaml:"content"`
	Chains   ChainsConfig   `mapstructure:"chains" yaml:"chains"`
	Resolver ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	Version string `mapstructure:"version" yaml:"version"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port           string        `mapstructure:"port" yaml:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level    string `mapstructure:"level" yaml:"level"`
	Encoding string `mapstructure:"encoding" yaml:"encoding"`
	Output   string `mapstructure:"output" yaml:"output"`
}

// CacheConfig holds settings for the hot tier. Entry lifetime is fixed and not configurable.
type CacheConfig struct {
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// StorageConfig holds settings for the persistent tier.
type StorageConfig struct {
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// GatewayConfig describes one content gateway.
type GatewayConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	URL      string `mapstructure:"url" yaml:"url"`
	Priority int    `mapstructure:"priority" yaml:"priority"`
}

// ContentConfig holds settings for dereferencing token pointers.
type ContentConfig struct {
	Timeout        time.Duration   `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries     int             `mapstructure:"max_retries" yaml:"max_retries"`
	GatewayRetries int             `mapstructure:"gateway_retries" yaml:"gateway_retries"`
	BackoffBase    time.Duration   `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffMax     time.Duration   `mapstructure:"backoff_max" yaml:"backoff_max"`
	MaxRedirects   int             `mapstructure:"max_redirects" yaml:"max_redirects"`
	Gateways       []GatewayConfig `mapstructure:"gateways" yaml:"gateways"`
}

// ChainConfig holds the node connection for one chain.
type ChainConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	RPCURL      string        `mapstructure:"rpc_url" yaml:"rpc_url"`
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

// ChainsConfig lists the supported chains in registry order.
type ChainsConfig struct {
	Ethereum ChainConfig `mapstructure:"ethereum" yaml:"ethereum"`
	Polygon  ChainConfig `mapstructure:"polygon" yaml:"polygon"`
	Starknet ChainConfig `mapstructure:"starknet" yaml:"starknet"`
}

// ResolverConfig holds orchestrator behaviour switches.
type ResolverConfig struct {
	AsyncCacheWrites bool `mapstructure:"async_cache_writes" yaml:"async_cache_writes"`
	CoalesceInflight bool `mapstructure:"coalesce_inflight" yaml:"coalesce_inflight"`
	// CoalesceTimeout bounds a shared resolution, which no single caller can cancel.
	CoalesceTimeout time.Duration `mapstructure:"coalesce_timeout" yaml:"coalesce_timeout"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("app.name", "nft-metadata-resolver")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("cache.cleanup_interval", "10m")
	v.SetDefault("storage.sqlite_path", "data/nft-metadata.db")
	v.SetDefault("content.timeout", "5s")
	v.SetDefault("content.max_retries", 3)
	v.SetDefault("content.gateway_retries", 2)
	v.SetDefault("content.backoff_base", "1s")
	v.SetDefault("content.backoff_max", "5s")
	v.SetDefault("content.max_redirects", 5)
	v.SetDefault("content.gateways", defaultGateways())
	v.SetDefault("chains.ethereum.enabled", true)
	v.SetDefault("chains.ethereum.rpc_url", "https://eth.llamarpc.com")
	v.SetDefault("chains.ethereum.call_timeout", "4s")
	v.SetDefault("chains.polygon.enabled", true)
	v.SetDefault("chains.polygon.rpc_url", "https://polygon-rpc.com")
	v.SetDefault("chains.polygon.call_timeout", "4s")
	v.SetDefault("chains.starknet.enabled", true)
	v.SetDefault("chains.starknet.rpc_url", "https://starknet-mainnet.public.blastapi.io")
	v.SetDefault("chains.starknet.call_timeout", "4s")
	v.SetDefault("resolver.async_cache_writes", true)
	v.SetDefault("resolver.coalesce_inflight", false)
	v.SetDefault("resolver.coalesce_timeout", "30s")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("NFTMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaultGateways() []map[string]any {
	gateways := entity.DefaultGateways()
	out := make([]map[string]any, 0, len(gateways))
	for _, g := range gateways {
		out = append(out, map[string]any{"name": g.Name, "url": g.BaseURL, "priority": g.Priority})
	}
	return out
}

// Validate checks settings that would otherwise fail deep inside a component.
func (c Config) Validate() error {
	for name, chain := range c.Chains.Enabled() {
		if _, err := entity.NewRPCURL(chain.RPCURL); err != nil {
			return fmt.Errorf("chains.%s.rpc_url: %w", name, err)
		}
	}
	if len(c.Content.Gateways) == 0 {
		return fmt.Errorf("content.gateways: at least one gateway is required")
	}
	if c.Content.MaxRetries < 1 || c.Content.GatewayRetries < 1 {
		return fmt.Errorf("content retries must be at least 1")
	}
	return nil
}

// Marshal renders the configuration as YAML.
func Marshal(cfg Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// Enabled returns the enabled chains keyed by identifier.
func (c ChainsConfig) Enabled() map[string]ChainConfig {
	out := make(map[string]ChainConfig, 3)
	for _, name := range ChainOrder {
		chain := c.Get(name)
		if chain.Enabled {
			out[name] = chain
		}
	}
	return out
}

// ChainOrder is the order chains are registered and listed in.
var ChainOrder = []string{"ethereum", "polygon", "starknet"}

// Get returns the settings for a chain identifier.
func (c ChainsConfig) Get(name string) ChainConfig {
	switch name {
	case "ethereum":
		return c.Ethereum
	case "polygon":
		return c.Polygon
	case "starknet":
		return c.Starknet
	default:
		return ChainConfig{}
	}
}

func (c ChainConfig) GetCallTimeout() time.Duration {
	if c.CallTimeout <= 0 {
		return 4 * time.Second
	}
	return c.CallTimeout
}

func (c ResolverConfig) GetCoalesceTimeout() time.Duration {
	if c.CoalesceTimeout <= 0 {
		return 30 * time.Second
	}
	return c.CoalesceTimeout
}

func (c ContentConfig) GetTimeout() time.Duration {
	return c.Timeout
}

// GetGateways converts the configured gateways, sorted by priority.
func (c ContentConfig) GetGateways() []entity.Gateway {
	out := make([]entity.Gateway, 0, len(c.Gateways))
	for _, g := range c.Gateways {
		out = append(out, entity.Gateway{Name: g.Name, BaseURL: strings.TrimRight(g.URL, "/"), Priority: g.Priority})
	}
	slices.SortStableFunc(out, func(a, b entity.Gateway) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	return out
}

func (c CacheConfig) GetCleanupInterval() time.Duration {
	return c.CleanupInterval
}

func (c ServerConfig) GetRequestTimeout() time.Duration {
	return c.RequestTimeout
}
