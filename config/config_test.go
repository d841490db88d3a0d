package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	inTempDir(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL())
	assert.Equal(t, 720*time.Hour, cfg.RefreshTokenTTL())
	assert.Equal(t, 15*time.Minute, cfg.OneTimeTokenTTL())
	assert.Equal(t, time.Minute, cfg.APIKeyCacheTTL())
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := inTempDir(t)

	yaml := "HTTP_PORT: \"9000\"\nSTORE_DRIVER: mongodb\nLOG_LEVEL: debug\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ONE_TIME_TOKEN_TTL_MIN=5\n"), 0o600))
	t.Setenv("LOG_LEVEL", "warn")
	// godotenv exports into the process environment.
	t.Cleanup(func() { _ = os.Unsetenv("ONE_TIME_TOKEN_TTL_MIN") })

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, DriverMongoDB, cfg.StoreDriver)
	assert.Equal(t, "warn", cfg.LogLevel, "environment wins over the file")
	assert.Equal(t, 5*time.Minute, cfg.OneTimeTokenTTL())
}

func TestValidate(t *testing.T) {
	base := ServerConfig{
		StoreDriver:         DriverMemory,
		JWTSecretKey:        "0123456789abcdef0123456789abcdef",
		AccessTokenTTLMin:   1,
		RefreshTokenTTLHour: 1,
		OneTimeTokenTTLMin:  1,
	}
	require.NoError(t, base.Validate())

	c := base
	c.StoreDriver = "sqlite"
	assert.Error(t, c.Validate())

	c = base
	c.StoreDriver = DriverPostgres
	assert.Error(t, c.Validate())

	c = base
	c.JWTSecretKey = "short"
	assert.Error(t, c.Validate())

	c = base
	c.FederatedKeys = "https://external-idp.local"
	assert.Error(t, c.Validate())
}

func TestFederatedKeyFiles(t *testing.T) {
	c := ServerConfig{FederatedKeys: "https://external-idp.local=/etc/idcore/ext.pem, https://other.example?x=1=/tmp/o.pem"}
	files, err := c.FederatedKeyFiles()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"https://external-idp.local": "/etc/idcore/ext.pem",
		"https://other.example?x=1":  "/tmp/o.pem",
	}, files)
}
