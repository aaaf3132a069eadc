package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Log        LogConfig        `mapstructure:"log"`
	OSS        OSSConfig        `mapstructure:"oss"`
	Email      EmailConfig      `mapstructure:"email"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Site       SiteConfig       `mapstructure:"site"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Search     SearchConfig     `mapstructure:"search"`
	Cache      CacheConfig      `mapstructure:"cache"`
	CDN        CDNConfig        `mapstructure:"cdn"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	CORS       CORSConfig       `mapstructure:"cors"`
}

type AppConfig struct {
	Env string `mapstructure:"env"` // production / staging / development
}

// IsProduction 是否为生产环境
func (c AppConfig) IsProduction() bool {
	return c.Env == "production"
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql（默认）/ sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	AccessKeySecret string `mapstructure:"access_key_secret"`
	BucketName      string `mapstructure:"bucket_name"`
	CDNDomain       string `mapstructure:"cdn_domain"`
}

type EmailConfig struct {
	SMTPHost          string        `mapstructure:"smtp_host"`
	SMTPPort          int           `mapstructure:"smtp_port"`
	Username          string        `mapstructure:"username"`
	Password          string        `mapstructure:"password"`
	From              string        `mapstructure:"from"`
	UnsubscribeSecret string        `mapstructure:"unsubscribe_secret"`
	UnsubscribeTTL    time.Duration `mapstructure:"unsubscribe_ttl"`
}

type QueueConfig struct {
	WorkflowQueue string        `mapstructure:"workflow_queue"`
	EmailQueue    string        `mapstructure:"email_queue"`
	MaxWorkers    int           `mapstructure:"max_workers"`
	PopTimeout    time.Duration `mapstructure:"pop_timeout"`
}

type SiteConfig struct {
	Name       string `mapstructure:"name"`
	BaseURL    string `mapstructure:"base_url"`
	AdminEmail string `mapstructure:"admin_email"`
}

type ModerationConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	RetryLimit    int           `mapstructure:"retry_limit"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay"`
}

type SearchConfig struct {
	Backend  string `mapstructure:"backend"` // redis / oss
	IndexKey string `mapstructure:"index_key"`
	MetaKey  string `mapstructure:"meta_key"`
}

type CacheConfig struct {
	Prefix string        `mapstructure:"prefix"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type CDNConfig struct {
	PurgeURL string `mapstructure:"purge_url"`
	APIToken string `mapstructure:"api_token"`
}

type WorkflowConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	setDefaults(v)

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("log.level", "info")
	v.SetDefault("email.unsubscribe_ttl", 30*24*time.Hour)
	v.SetDefault("queue.workflow_queue", "inkpress:workflows")
	v.SetDefault("queue.email_queue", "inkpress:emails")
	v.SetDefault("queue.max_workers", 4)
	v.SetDefault("queue.pop_timeout", 5*time.Second)
	v.SetDefault("moderation.model", "gemini-2.0-flash")
	v.SetDefault("moderation.retry_limit", 3)
	v.SetDefault("moderation.retry_delay", 5*time.Second)
	v.SetDefault("moderation.max_retry_delay", time.Minute)
	v.SetDefault("search.backend", "redis")
	v.SetDefault("search.index_key", "search:index")
	v.SetDefault("search.meta_key", "search:index:meta")
	v.SetDefault("cache.prefix", "inkpress:cache")
	v.SetDefault("cache.ttl", 10*time.Minute)
	v.SetDefault("workflow.sweep_interval", time.Minute)
	v.SetDefault("workflow.stale_after", 10*time.Minute)
	v.SetDefault("workflow.max_attempts", 5)
}
