package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAppConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("KT_APP_PORT", "")

	cfg, err := GetAppConfig(context.Background(), NewEnvProvider("KT_"))
	require.NoError(t, err)

	assert.Equal(t, Development, cfg.Environment)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StorageDriver)
	assert.Equal(t, DefaultMaxTreeDepth, cfg.MaxTreeDepth)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, []string{"admin", "teacher"}, cfg.MutationRoles)
}

func TestGetAppConfigOverrides(t *testing.T) {
	t.Setenv("KT_APP_PORT", "9090")
	t.Setenv("KT_STORAGE_DRIVER", "SQLite")
	t.Setenv("KT_SQLITE_PATH", "/tmp/tree.db")
	t.Setenv("KT_MAX_TREE_DEPTH", "25")
	t.Setenv("KT_CACHE_TTL", "30s")
	t.Setenv("KT_MUTATION_ROLES", "admin, editor ,")

	cfg, err := GetAppConfig(context.Background(), NewEnvProvider("KT_"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StorageDriver)
	assert.Equal(t, "/tmp/tree.db", cfg.SQLitePath)
	assert.Equal(t, 25, cfg.MaxTreeDepth)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, []string{"admin", "editor"}, cfg.MutationRoles)
}

func TestGetAppConfigInvalid(t *testing.T) {
	testCases := []struct {
		name  string
		key   string
		value string
		field string
	}{
		{name: "Unknown driver", key: "KT_STORAGE_DRIVER", value: "mongo", field: "StorageDriver"},
		{name: "Zero depth", key: "KT_MAX_TREE_DEPTH", value: "0", field: "MaxTreeDepth"},
		{name: "Bad TTL", key: "KT_CACHE_TTL", value: "soon", field: "CacheTTL"},
		{name: "Port out of range", key: "KT_APP_PORT", value: "70000", field: "Port"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := GetAppConfig(context.Background(), NewEnvProvider("KT_"))
			require.Error(t, err)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestDatabaseConfigValidate(t *testing.T) {
	valid := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "tree",
		Password: "Sup3r-Secret-Pass",
		DBName:   "knowledge_tree",
		SSLMode:  "require",
	}
	assert.NoError(t, valid.Validate(Production))

	testCases := []struct {
		name   string
		mutate func(c *DatabaseConfig)
		env    Environment
		field  string
	}{
		{name: "Missing host", mutate: func(c *DatabaseConfig) { c.Host = "" }, env: Development, field: "Host"},
		{name: "Bad port", mutate: func(c *DatabaseConfig) { c.Port = 0 }, env: Development, field: "Port"},
		{name: "Bad SSL mode", mutate: func(c *DatabaseConfig) { c.SSLMode = "maybe" }, env: Development, field: "SSLMode"},
		{name: "Bad db name", mutate: func(c *DatabaseConfig) { c.DBName = "1tree" }, env: Development, field: "DBName"},
		{name: "SSL disabled in production", mutate: func(c *DatabaseConfig) { c.SSLMode = "disable" }, env: Production, field: "SSLMode"},
		{name: "Weak password in production", mutate: func(c *DatabaseConfig) { c.Password = "short" }, env: Production, field: "Password"},
		{name: "Localhost in production", mutate: func(c *DatabaseConfig) { c.Host = "localhost" }, env: Production, field: "Host"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			err := cfg.Validate(tc.env)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

type fakeSecrets struct {
	value string
	calls int
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(f.value)}, nil
}

func TestAWSSecretsProvider(t *testing.T) {
	client := &fakeSecrets{value: `{"DB_HOST":"db.internal","DB_PORT":"5432","DB_USER":"tree","DB_PASSWORD":"pw","DB_NAME":"knowledge_tree","MAX_TREE_DEPTH":"50"}`}
	provider := NewAWSSecretsProvider(client, "knowledge-tree")
	ctx := context.Background()

	cfg, err := GetDatabaseConfig(ctx, provider)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "disable", cfg.SSLMode)

	depth, err := provider.GetInt(ctx, "MAX_TREE_DEPTH")
	require.NoError(t, err)
	assert.Equal(t, 50, depth)

	_, err = provider.GetString(ctx, "MISSING")
	assert.ErrorIs(t, err, ErrKeyNotSet)

	assert.Equal(t, 1, client.calls, "secret should be fetched once and cached")
}

func TestAWSSecretsProviderSchema(t *testing.T) {
	client := &fakeSecrets{value: `{"DB_HOST":"db.internal","DB_PORT":"abc","DB_USER":"tree","DB_PASSWORD":"pw","DB_NAME":"kt"}`}
	provider := NewAWSSecretsProvider(client, "knowledge-tree")

	_, err := provider.GetString(context.Background(), "DB_HOST")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "DB_PORT", verr.Field)
}
