package config

import (
	"os"
	"strconv"
)

// DBConfig 数据库配置
type DBConfig struct {
	// Driver is "postgres" (default) or "sqlite".
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	// Path is the database file when Driver is "sqlite".
	Path string `yaml:"path"`

	MaxConns        int32 `yaml:"max_conns"`
	MinConns        int32 `yaml:"min_conns"`
	SlowQueryMillis int   `yaml:"slow_query_ms"`
	AutoMigrate     bool  `yaml:"auto_migrate"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// UserTTLSeconds bounds how long a resolved identity stays cached.
	UserTTLSeconds int `yaml:"user_ttl_seconds"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret   string `yaml:"secret"`
	TTLHours int    `yaml:"ttl_hours"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            string   `yaml:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	DefaultPageSize int      `yaml:"default_page_size"`
	MaxPageSize     int      `yaml:"max_page_size"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level string `yaml:"level"`
	// File enables a rotated log file next to stderr output.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// StorageConfig configures attachment blob storage.
type StorageConfig struct {
	Dir            string `yaml:"dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		cfg.Driver = driver
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		cfg.Path = path
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideJWTFromEnv 从环境变量覆盖JWT配置
func OverrideJWTFromEnv(cfg *JWTConfig) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Secret = secret
	}
	if ttl := os.Getenv("JWT_TTL_HOURS"); ttl != "" {
		if h, err := strconv.Atoi(ttl); err == nil {
			cfg.TTLHours = h
		}
	}
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideLogFromEnv overrides logging settings.
func OverrideLogFromEnv(cfg *LogConfig) {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = level
	}
	if file := os.Getenv("LOG_FILE"); file != "" {
		cfg.File = file
	}
}

// OverrideStorageFromEnv overrides attachment storage settings.
func OverrideStorageFromEnv(cfg *StorageConfig) {
	if dir := os.Getenv("STORAGE_DIR"); dir != "" {
		cfg.Dir = dir
	}
}

// OverrideOTelFromEnv overrides tracing settings.
func OverrideOTelFromEnv(cfg *OTelConfig) {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Endpoint = endpoint
	}
	if enabled := os.Getenv("OTEL_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.Enabled = b
		}
	}
}
