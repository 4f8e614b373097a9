package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Chain     ChainConfig     `mapstructure:"chain"`
	Explorer  ExplorerConfig  `mapstructure:"explorer"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // postgres | sqlite
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// NetworkConfig 单个网络的参数
type NetworkConfig struct {
	ChainID int64  `mapstructure:"chain_id"`
	DSN     string `mapstructure:"dsn"` // 非空时覆盖 database.dsn，每个网络一份状态
}

// ChainConfig 模拟链配置
type ChainConfig struct {
	Network        string                   `mapstructure:"network"`
	Networks       map[string]NetworkConfig `mapstructure:"networks"`
	Accounts       []string                 `mapstructure:"accounts"`
	Seed           string                   `mapstructure:"seed"`
	AccountCount   int                      `mapstructure:"account_count"`
	MiningInterval string                   `mapstructure:"mining_interval"` // cron spec，空表示仅 automine
	AdminAddress   string                   `mapstructure:"admin_address"`
	MediaAddress   string                   `mapstructure:"media_address"`
}

// ExplorerConfig 区块浏览器合约验证配置（Etherscan 兼容）
type ExplorerConfig struct {
	APIURL          string        `mapstructure:"api_url"`
	APIKey          string        `mapstructure:"api_key"`
	SourceDir       string        `mapstructure:"source_dir"`
	CompilerVersion string        `mapstructure:"compiler_version"`
	Optimization    bool          `mapstructure:"optimization"`
	Runs            int           `mapstructure:"runs"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

type SentryConfig struct {
	DSN         string `mapstructure:"dsn"`
	Environment string `mapstructure:"environment"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// ChainID 返回当前网络的链 ID
func (c ChainConfig) ChainID() (int64, error) {
	n, ok := c.Networks[c.Network]
	if !ok {
		return 0, fmt.Errorf("unknown network %q", c.Network)
	}
	return n.ChainID, nil
}

// NetworkDatabase 当前网络使用的数据库配置
func (c *Config) NetworkDatabase() DatabaseConfig {
	db := c.Database
	if n, ok := c.Chain.Networks[c.Chain.Network]; ok && n.DSN != "" {
		db.DSN = n.DSN
	}
	return db
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "host=localhost user=postgres password=postgres dbname=qutee_media port=5432 sslmode=disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.ttl", 10*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("jwt.secret", "change-me")
	v.SetDefault("jwt.ttl", 24*time.Hour)

	v.SetDefault("chain.network", "hardhat")
	v.SetDefault("chain.networks", map[string]any{
		"hardhat":   map[string]any{"chain_id": 31337},
		"localhost": map[string]any{"chain_id": 31337},
		"sepolia":   map[string]any{"chain_id": 11155111},
	})
	v.SetDefault("chain.seed", "test test test test test test test test test test test junk")
	v.SetDefault("chain.account_count", 20)
	v.SetDefault("chain.admin_address", "0x77158c23cC2D9dd3067a82E2067182C85fA3b1F6")

	v.SetDefault("explorer.api_url", "https://api-sepolia.etherscan.io/api")
	v.SetDefault("explorer.source_dir", "contracts")
	v.SetDefault("explorer.compiler_version", "v0.8.24+commit.e11b9ed9")
	v.SetDefault("explorer.runs", 200)
	v.SetDefault("explorer.poll_interval", 5*time.Second)
	v.SetDefault("explorer.timeout", 2*time.Minute)

	v.SetDefault("tracing.service_name", "qutee-media")
	v.SetDefault("tracing.endpoint", "localhost:4318")

	v.SetDefault("ratelimit.rps", 50)
	v.SetDefault("ratelimit.burst", 100)
}

// Load 读取配置文件与环境变量（QM_ 前缀）
func Load() (*Config, error) {
	return LoadWithFlags(nil)
}

// LoadWithFlags 同 Load，额外把命令行参数绑定进配置（如 --chain.network）
func LoadWithFlags(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("..")

	v.SetEnvPrefix("QM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
