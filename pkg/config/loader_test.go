package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestLoadConfig_MergesEnvironmentOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
db:
  host: localhost
  port: 5432
server:
  port: ":8080"
`)
	writeFile(t, dir, "production.yaml", `
db:
  host: db.internal
`)

	raw, err := LoadConfig("production", dir)
	require.NoError(t, err)

	var cfg struct {
		DB     DBConfig     `yaml:"db"`
		Server ServerConfig `yaml:"server"`
	}
	require.NoError(t, Decode(raw, &cfg))

	assert.Equal(t, "db.internal", cfg.DB.Host)
	assert.Equal(t, 5432, cfg.DB.Port)
	assert.Equal(t, ":8080", cfg.Server.Port)
}

func TestLoadConfig_SubstitutesSecrets(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
jwt:
  secret: "${JWT_SECRET_VALUE}"
`)
	writeFile(t, dir, "secrets.env", "JWT_SECRET_VALUE=\"s3cret\"\n")

	raw, err := LoadConfig("local", dir)
	require.NoError(t, err)

	var cfg struct {
		JWT JWTConfig `yaml:"jwt"`
	}
	require.NoError(t, Decode(raw, &cfg))
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
}

func TestLoadConfig_MissingBase(t *testing.T) {
	_, err := LoadConfig("local", t.TempDir())
	require.Error(t, err)
}

func TestOverrideDBFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "envhost")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_PORT_IGNORED", "x")

	cfg := DBConfig{Host: "localhost", Port: 5432}
	OverrideDBFromEnv(&cfg)

	assert.Equal(t, "envhost", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
}
