package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // 报表时区不依赖宿主机 zoneinfo

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Report   ReportConfig   `mapstructure:"report"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
	Headers      HeadersConfig `mapstructure:"headers"`
}

// HeadersConfig 响应头配置（跨域与缓存策略）
type HeadersConfig struct {
	AllowOrigins []string      `mapstructure:"allow_origins"`
	AllowHeaders []string      `mapstructure:"allow_headers"`
	MaxAge       time.Duration `mapstructure:"max_age"`  // 预检结果缓存时间
	NoStore      bool          `mapstructure:"no_store"` // 报表含个人考勤数据，默认禁止中间层缓存
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 缓存配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 校验配置（Token 由外部认证服务签发）
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string   `mapstructure:"level"`
	Format  string   `mapstructure:"format"`
	Service string   `mapstructure:"service"` // 写入每条日志的 service 字段
	Outputs []string `mapstructure:"outputs"` // stdout、stderr 或文件路径
}

// ReportConfig 考勤矩阵报表配置
type ReportConfig struct {
	Timezone           string        `mapstructure:"timezone"`
	CacheSize          int           `mapstructure:"cache_size"`          // 进程内保留的周期数
	RedisTTL           time.Duration `mapstructure:"redis_ttl"`           // 共享缓存过期时间，0 为不过期
	RefreshDebounce    time.Duration `mapstructure:"refresh_debounce"`    // 刷新请求合并窗口
	FilterDebounce     time.Duration `mapstructure:"filter_debounce"`     // 会话筛选输入合并窗口
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`       // 单次拉取超时
	SynthesizeAbsences bool          `mapstructure:"synthesize_absences"` // 按排班分配补齐虚拟缺勤
	RateLimit          int           `mapstructure:"rate_limit"`          // 每分钟每 IP 请求数，0 为不限
}

// Location 解析报表时区
func (c *ReportConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.headers.allow_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.headers.allow_headers", []string{"Authorization", "Content-Type", "X-Request-ID"})
	v.SetDefault("server.headers.max_age", "12h")
	v.SetDefault("server.headers.no_store", true)

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "attendance")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "America/Mexico_City")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.issuer", "attendance-console")
	v.SetDefault("auth.access_token_ttl", "15m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.service", "attendance-console")
	v.SetDefault("log.outputs", []string{"stdout"})

	v.SetDefault("report.timezone", "America/Mexico_City")
	v.SetDefault("report.cache_size", 12)
	v.SetDefault("report.redis_ttl", "0s")
	v.SetDefault("report.refresh_debounce", "2s")
	v.SetDefault("report.filter_debounce", "300ms")
	v.SetDefault("report.fetch_timeout", "30s")
	v.SetDefault("report.synthesize_absences", true)
	v.SetDefault("report.rate_limit", 120)

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("ATTEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// ── 关键配置校验 ──
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Report.CacheSize < 1 {
		return fmt.Errorf("配置校验失败: report.cache_size 不能小于 1")
	}
	if _, err := c.Report.Location(); err != nil {
		return fmt.Errorf("配置校验失败: report.timezone 无效: %w", err)
	}
	if c.Report.RefreshDebounce < 0 || c.Report.FilterDebounce < 0 {
		return fmt.Errorf("配置校验失败: report 防抖窗口不能为负")
	}
	return nil
}
