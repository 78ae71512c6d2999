package conf

import (
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/agent-hydration/internal/hydration/biz"
	"github.com/lk2023060901/agent-hydration/internal/pkg/logger"
	"github.com/lk2023060901/agent-hydration/internal/pkg/redis"
	"github.com/lk2023060901/agent-hydration/internal/pkg/workerpool"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       logger.Config   `mapstructure:"log"`
	Redis     redis.Config    `mapstructure:"redis"`
	Hydration HydrationConfig `mapstructure:"hydration"`
}

type ServerConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	GRPCPort int    `mapstructure:"grpc_port"`
}

// HydrationConfig 执行后端与流式输出配置
type HydrationConfig struct {
	Endpoint     string        `mapstructure:"endpoint"`
	GraphID      string        `mapstructure:"graph_id"`
	APIKey       string        `mapstructure:"api_key"`
	HistoryLimit int           `mapstructure:"history_limit"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Debug        bool          `mapstructure:"debug"`
	JoinRetries  int           `mapstructure:"join_retries"`
	JoinBackoff  time.Duration `mapstructure:"join_backoff"`
	StreamModes  []string      `mapstructure:"stream_modes"`
	Heartbeat    time.Duration `mapstructure:"heartbeat"`
	CacheTTL     time.Duration `mapstructure:"cache_ttl"`

	// MaxConnections 同时进行的连接数上限, <= 0 表示不限制
	MaxConnections int `mapstructure:"max_connections"`
}

// Base 转换为请求级配置的基准值
func (h HydrationConfig) Base() biz.Config {
	return biz.Config{
		Endpoint:     h.Endpoint,
		GraphID:      h.GraphID,
		APIKey:       h.APIKey,
		HistoryLimit: h.HistoryLimit,
		Timeout:      h.Timeout,
		Debug:        h.Debug,
		JoinRetries:  h.JoinRetries,
		JoinBackoff:  h.JoinBackoff,
		StreamModes:  append([]string(nil), h.StreamModes...),
	}.WithDefaults()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 9090)

	log := logger.DefaultConfig()
	v.SetDefault("log.level", log.Level)
	v.SetDefault("log.format", log.Format)
	v.SetDefault("log.output", log.Output)
	v.SetDefault("log.enablecaller", log.EnableCaller)
	v.SetDefault("log.enablestacktrace", log.EnableStacktrace)
	v.SetDefault("log.file.filename", log.File.Filename)
	v.SetDefault("log.file.maxsize", log.File.MaxSize)
	v.SetDefault("log.file.maxage", log.File.MaxAge)
	v.SetDefault("log.file.maxbackups", log.File.MaxBackups)
	v.SetDefault("log.file.compress", log.File.Compress)

	rdb := redis.DefaultConfig()
	v.SetDefault("redis.enabled", rdb.Enabled)
	v.SetDefault("redis.mode", string(rdb.Mode))
	v.SetDefault("redis.addr", rdb.Addr)
	v.SetDefault("redis.pool_size", rdb.PoolSize)
	v.SetDefault("redis.dial_timeout", rdb.DialTimeout)
	v.SetDefault("redis.read_timeout", rdb.ReadTimeout)
	v.SetDefault("redis.write_timeout", rdb.WriteTimeout)
	v.SetDefault("redis.max_retries", rdb.MaxRetries)

	v.SetDefault("hydration.endpoint", "")
	v.SetDefault("hydration.graph_id", "")
	v.SetDefault("hydration.api_key", "")
	v.SetDefault("hydration.history_limit", biz.DefaultHistoryLimit)
	v.SetDefault("hydration.timeout", biz.DefaultTimeout)
	v.SetDefault("hydration.debug", false)
	v.SetDefault("hydration.join_retries", biz.DefaultJoinRetries)
	v.SetDefault("hydration.join_backoff", biz.DefaultJoinBackoff)
	v.SetDefault("hydration.stream_modes", biz.DefaultStreamModes)
	v.SetDefault("hydration.heartbeat", 15*time.Second)
	v.SetDefault("hydration.cache_ttl", 5*time.Second)
	v.SetDefault("hydration.max_connections", workerpool.DefaultConfig().Size)
}

// LoadConfig 读取配置文件; path 为空时只使用默认值和环境变量
//
// 环境变量以 HYDRATION_ 为前缀, 例如 HYDRATION_HYDRATION_ENDPOINT、HYDRATION_SERVER_PORT。
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("hydration")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Log.Validate(); err != nil {
		return nil, fmt.Errorf("invalid log config: %w", err)
	}
	if config.Redis.Enabled {
		if err := config.Redis.Validate(); err != nil {
			return nil, fmt.Errorf("invalid redis config: %w", err)
		}
	}

	return &config, nil
}
