package config

import (
	"fmt"

	"taskmanager/pkg/config"
)

type Config struct {
	DB      config.DBConfig      `yaml:"db"`
	Redis   config.RedisConfig   `yaml:"redis"`
	JWT     config.JWTConfig     `yaml:"jwt"`
	Server  config.ServerConfig  `yaml:"server"`
	Log     config.LogConfig     `yaml:"log"`
	Storage config.StorageConfig `yaml:"storage"`
	OTel    config.OTelConfig    `yaml:"otel"`
}

// Load reads config/<CONFIG_ENV>.yaml on top of config/base.yaml, then applies env overrides.
func Load(configDir string) (*Config, error) {
	raw, err := config.LoadConfig(config.GetConfigEnv(), configDir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := config.Decode(raw, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideLogFromEnv(&cfg.Log)
	config.OverrideStorageFromEnv(&cfg.Storage)
	config.OverrideOTelFromEnv(&cfg.OTel)

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Server.MaxPageSize <= 0 || c.Server.MaxPageSize > 100 {
		c.Server.MaxPageSize = 100
	}
	if c.Server.DefaultPageSize <= 0 {
		c.Server.DefaultPageSize = 20
	}
	if c.Server.DefaultPageSize > c.Server.MaxPageSize {
		c.Server.DefaultPageSize = c.Server.MaxPageSize
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "postgres"
	}
	if c.JWT.TTLHours <= 0 {
		c.JWT.TTLHours = 24
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "./data/attachments"
	}
	if c.OTel.ServiceName == "" {
		c.OTel.ServiceName = "taskmanager-api"
	}
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" || c.JWT.Secret == "${JWT_SECRET}" {
		return fmt.Errorf("jwt.secret is not set")
	}
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
	}
	return nil
}
