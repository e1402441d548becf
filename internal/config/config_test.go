package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SESSION_STORE", "USER_STORE", "REDIS_HOST", "MONGODB_URI", "DATABASE_URL",
		"SESSION_MAX_AGE", "SESSION_UPDATE_AGE", "AUTH_KEYCLOAK_ID", "AUTH_KEYCLOAK_SECRET",
		"AUTH_KEYCLOAK_ISSUER", "AUTH_GITHUB_ID", "AUTH_GITHUB_SECRET", "APP_ENV",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("ENV_FILE", "does-not-exist.env")
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 7*24*time.Hour, cfg.Session.MaxAge)
	require.Equal(t, 4*time.Hour, cfg.Session.UpdateAge)
	require.Equal(t, BackendMemory, cfg.Storage.SessionBackend)
	require.Equal(t, BackendMemory, cfg.Storage.UserBackend)
	require.True(t, cfg.Server.IsDevelopment())
	require.False(t, cfg.Providers.GitHub.Enabled())
	require.Equal(t, "http://localhost:5001/api/auth/callback/github", cfg.Auth.CallbackURL("github"))
}

func TestLoadConfig_ResolvesBackendsFromConnections(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_HOST", "localhost")
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("AUTH_GITHUB_ID", "id")
	t.Setenv("AUTH_GITHUB_SECRET", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, BackendRedis, cfg.Storage.SessionBackend)
	require.Equal(t, BackendSQL, cfg.Storage.UserBackend)
	require.True(t, cfg.Providers.GitHub.Enabled())
}

func TestLoadConfig_RejectsInvalidAges(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_MAX_AGE", "3600")
	t.Setenv("SESSION_UPDATE_AGE", "7200")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfig_RejectsBackendWithoutConnection(t *testing.T) {
	clearEnv(t)
	t.Setenv("SESSION_STORE", "mongo")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "MONGODB_URI")
}

func TestLoadConfig_KeycloakNeedsIssuer(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTH_KEYCLOAK_ID", "kc")
	t.Setenv("AUTH_KEYCLOAK_SECRET", "kc-secret")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "AUTH_KEYCLOAK_ISSUER")
}

func TestProviderCredentials_EnabledNeedsBothValues(t *testing.T) {
	require.False(t, ProviderCredentials{ClientID: "id"}.Enabled())
	require.False(t, ProviderCredentials{ClientSecret: "s"}.Enabled())
	require.True(t, ProviderCredentials{ClientID: "id", ClientSecret: "s"}.Enabled())
}
