package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1", cfg.Host)
	require.Equal(t, 8765, cfg.Port)
	require.Equal(t, 8080, cfg.APIPort)
	require.Equal(t, 15, cfg.MaxSessions)
	require.Equal(t, 60, cfg.SessionIdleMinutes)
	require.Equal(t, 3, cfg.LLMMaxConcurrent)
	require.Equal(t, 90, cfg.AuditMaxDays)
}

func TestLoadConfig_DurationHelpersConvertCorrectly(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, time.Duration(cfg.SessionIdleMinutes)*time.Minute, cfg.SessionIdleTimeout())
	require.Equal(t, time.Duration(cfg.JWTTTLMin)*time.Minute, cfg.JWTTTL())
	require.Equal(t, time.Duration(cfg.LLMTimeoutS)*time.Second, cfg.LLMTimeout())
}

func TestLoadConfig_EnvOverridesDefault(t *testing.T) {
	t.Setenv("NYX_PORT", "9999")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 9999, cfg.Port)
}

func TestLoadUsers_MissingFileYieldsEmptyRegistry(t *testing.T) {
	accounts, err := LoadUsers(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.NotNil(t, accounts.Users)
	require.Empty(t, accounts.Users)
}

func TestLoadUsers_ParsesTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.toml")

	content := `
[users.ana]
password_hash = "$2a$10$abcdefghijklmnopqrstuv"
display_name = "Ana Kovač"
role = "accountant"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	accounts, err := LoadUsers(path)
	require.NoError(t, err)
	require.Contains(t, accounts.Users, "ana")
	require.Equal(t, "Ana Kovač", accounts.Users["ana"].DisplayName)
	require.Equal(t, "accountant", accounts.Users["ana"].Role)
}
