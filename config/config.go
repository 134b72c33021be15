// Package config loads the server configuration from a YAML file, a .env
// file and TXGATE_ environment variables, and builds the gates it describes.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	txgate "github.com/x402-foundation/txgate"
	"github.com/x402-foundation/txgate/mechanisms/evm"
)

// EnvPrefix prefixes every environment override, e.g. TXGATE_CHAIN_RPC_URL.
const EnvPrefix = "TXGATE"

// Store backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQL    = "sql"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig         `mapstructure:"server"`
	Chain     ChainConfig          `mapstructure:"chain"`
	Store     StoreConfig          `mapstructure:"store"`
	Verifier  VerifierConfig       `mapstructure:"verifier"`
	Log       LogConfig            `mapstructure:"log"`
	Admin     AdminConfig          `mapstructure:"admin"`
	Telemetry TelemetryConfig      `mapstructure:"telemetry"`
	Routes    []txgate.RouteConfig `mapstructure:"routes"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address for the configured port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type ChainConfig struct {
	RPCURL      string        `mapstructure:"rpc_url"`
	NetworkID   uint64        `mapstructure:"network_id"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type StoreConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisURL      string        `mapstructure:"redis_url"`
	SQLDSN        string        `mapstructure:"sql_dsn"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	Grace         time.Duration `mapstructure:"grace"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type VerifierConfig struct {
	Policy string `mapstructure:"policy"`
}

// TelemetryConfig controls OTLP trace export. Endpoint is an http or https
// URL of an OTLP/HTTP collector.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
	ServiceName string  `mapstructure:"service_name"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// AdminConfig controls the diagnostic claim endpoint. When Token is set the
// endpoint requires it as a bearer token.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

// DefaultRoute is the demo route served when the configuration names none:
// one whole USD Coin on Sepolia for GET /weather.
func DefaultRoute() txgate.RouteConfig {
	asset, _ := evm.DefaultAsset(evm.ChainIDSepolia)
	return txgate.RouteConfig{
		Pattern:   "GET /weather",
		NetworkID: evm.ChainIDSepolia,
		Recipient: "0xd5de8324D526A201672B30584e495C71BeBb3e9A",
		Token: txgate.TokenConfig{
			Address:  asset.Address,
			Symbol:   asset.Symbol,
			Decimals: asset.Decimals,
		},
		Amount:        "1000000000000000000",
		MaxAgeSeconds: int(txgate.DefaultMaxAge / time.Second),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("chain.rpc_url", "")
	v.SetDefault("chain.network_id", evm.ChainIDSepolia)
	v.SetDefault("chain.call_timeout", evm.DefaultCallTimeout)

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.redis_url", "redis://localhost:6379")
	v.SetDefault("store.sql_dsn", "")
	v.SetDefault("store.key_prefix", txgate.DefaultKeyPrefix)
	v.SetDefault("store.grace", txgate.DefaultGrace)
	v.SetDefault("store.sweep_interval", time.Minute)

	v.SetDefault("verifier.policy", evm.PolicySubstring)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.token", "")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.service_name", "txgate")
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are skipped; variables already set are not overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load reads the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Variable names the reference deployment already uses.
	_ = v.BindEnv("chain.rpc_url", EnvPrefix+"_CHAIN_RPC_URL", "INFURA_RPC_URL")
	_ = v.BindEnv("store.redis_url", EnvPrefix+"_STORE_REDIS_URL", "REDIS_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	if raw := v.Get("routes"); raw != nil {
		if err := ValidateRoutes(raw); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize fills route defaults and checks cross-field constraints.
func (c *Config) normalize() error {
	if len(c.Routes) == 0 {
		c.Routes = []txgate.RouteConfig{DefaultRoute()}
	}

	for i := range c.Routes {
		route := &c.Routes[i]
		if route.NetworkID == 0 {
			route.NetworkID = c.Chain.NetworkID
		}
		if route.NetworkID != c.Chain.NetworkID {
			return fmt.Errorf("route %q: network %d differs from chain network %d", route.Pattern, route.NetworkID, c.Chain.NetworkID)
		}
		if route.Token.Address == "" {
			asset, ok := evm.DefaultAsset(route.NetworkID)
			if !ok {
				return fmt.Errorf("route %q: %w and network %d has no default asset", route.Pattern, txgate.ErrMissingToken, route.NetworkID)
			}
			route.Token = txgate.TokenConfig{
				Address:  asset.Address,
				Symbol:   asset.Symbol,
				Decimals: asset.Decimals,
			}
		}
		if _, _, err := SplitPattern(route.Pattern); err != nil {
			return err
		}
	}

	switch c.Store.Backend {
	case BackendMemory, BackendRedis, BackendSQL:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == BackendSQL && c.Store.SQLDSN == "" {
		return errors.New("store.sql_dsn is required for the sql backend")
	}
	if c.Store.Grace < 0 {
		return fmt.Errorf("store.grace must not be negative, got %s", c.Store.Grace)
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return errors.New("telemetry.endpoint is required when telemetry is enabled")
	}
	if c.Chain.CallTimeout <= 0 {
		return fmt.Errorf("chain.call_timeout must be positive, got %s", c.Chain.CallTimeout)
	}
	return nil
}

// SplitPattern splits "GET /weather" into method and path. A bare path
// means GET.
func SplitPattern(pattern string) (method, path string, err error) {
	fields := strings.Fields(pattern)
	switch len(fields) {
	case 1:
		method, path = "GET", fields[0]
	case 2:
		method, path = strings.ToUpper(fields[0]), fields[1]
	default:
		return "", "", fmt.Errorf("invalid route pattern %q", pattern)
	}
	if !strings.HasPrefix(path, "/") {
		return "", "", fmt.Errorf("invalid route pattern %q: path must start with /", pattern)
	}
	return method, path, nil
}
