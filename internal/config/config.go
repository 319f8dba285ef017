package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`   // 服务器配置
	Database DatabaseConfig `mapstructure:"database"` // 数据库配置
	Import   ImportConfig   `mapstructure:"import"`   // 导入配置
	Export   ExportConfig   `mapstructure:"export"`   // 导出配置
	Updater  UpdaterConfig  `mapstructure:"updater"`  // 客户端更新配置
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port     int    `mapstructure:"port"`      // 服务端口
	Mode     string `mapstructure:"mode"`      // Gin运行模式：debug/release/test
	LogLevel string `mapstructure:"log_level"` // logrus 日志级别
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`            // postgres / sqlite
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
	LogLevel        string        `mapstructure:"log_level"`         // GORM日志级别：silent/error/warn/info
}

// ImportConfig 导入配置
type ImportConfig struct {
	AutoFixSequences bool  `mapstructure:"auto_fix_sequences"` // 清空重灌或显式ID导入后自动修复自增序列
	MaxBodyBytes     int64 `mapstructure:"max_body_bytes"`     // 导入请求体上限
}

// ExportConfig 导出配置
type ExportConfig struct {
	DefaultVersion string `mapstructure:"default_version"` // Meta 中没有 dbVersion 时使用
}

// UpdaterConfig 客户端更新编排配置
type UpdaterConfig struct {
	APIBaseURL  string        `mapstructure:"api_base_url"` // 后端 API 地址（含 /api 前缀）
	ManifestURL string        `mapstructure:"manifest_url"` // manifest.json 地址
	DataSources []string      `mapstructure:"data_sources"` // 快照候选地址（按顺序尝试）
	Timeout     time.Duration `mapstructure:"timeout"`      // 单次请求超时
	Proxy       string        `mapstructure:"proxy"`        // 代理地址
	AutoUpdate  bool          `mapstructure:"auto_update"`  // Start 时发现更新即自动应用
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	// 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	return load(v)
}

// LoadConfigFile 从指定路径加载配置
func LoadConfigFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	v.SetTypeByDefaultValue(true)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	// 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("import.auto_fix_sequences", true)
	v.SetDefault("import.max_body_bytes", 32<<20)
	v.SetDefault("export.default_version", "0.0.1")
	v.SetDefault("updater.api_base_url", "http://localhost:8080/api")
	v.SetDefault("updater.manifest_url", "http://localhost:5173/manifest.json")
	v.SetDefault("updater.data_sources", []string{
		"http://localhost:5173/json/ayto-vip-2025.json",
		"http://localhost:5173/ayto-vip-2025.json",
		"http://localhost:5173/json/ayto-vip-2024.json",
	})
	v.SetDefault("updater.timeout", 30*time.Second)
	v.SetDefault("updater.auto_update", false)
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("UPDATER_API_BASE_URL"); v != "" {
		cfg.Updater.APIBaseURL = v
	}
	if v := os.Getenv("UPDATER_MANIFEST_URL"); v != "" {
		cfg.Updater.ManifestURL = v
	}
	if v := os.Getenv("UPDATER_PROXY"); v != "" {
		cfg.Updater.Proxy = v
	}
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	if c.Updater.Timeout <= 0 {
		return fmt.Errorf("updater.timeout 必须大于0")
	}
	return nil
}
