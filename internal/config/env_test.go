package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "", cfg.DataDir)
	assert.Equal(t, "", cfg.DBURL)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, "", cfg.APIKeys)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)

	assert.Equal(t, "sql", cfg.KV.Backend)
	assert.Equal(t, 300.0, cfg.KV.CleanupInterval)
	assert.Equal(t, 0.9, cfg.Merge.AutoAcceptConfidence)
	assert.Equal(t, 5, cfg.Merge.MaxRetries)
	assert.Equal(t, 0.05, cfg.Merge.RetryInitialDelay)
	assert.Equal(t, 2.0, cfg.Merge.RetryBackoffFactor)
	assert.Equal(t, 32, cfg.Resolve.MaxHops)
	assert.Equal(t, 4, cfg.Batch.Parallelism)
	assert.Equal(t, 5.0, cfg.Reporting.LogTimeInterval)
}

func TestEnvDefaults_MatchConfigDefaults(t *testing.T) {
	// Struct tag defaults must be literals; keep them in step with the constants.
	clearEnvVars(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	app := cfg.Normalize().ToAppConfig()

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultRedisURL, cfg.RedisURL)

	assert.Equal(t, NewKVConfig(), app.KV())
	assert.Equal(t, NewMergeConfig(), app.Merge())
	assert.Equal(t, NewReportingConfig(), app.Reporting())
	assert.Equal(t, DefaultBatchParallelism, app.BatchParallelism())
}

func TestLoadFromEnv_OverrideValues(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9000")
	t.Setenv("DATA_DIR", "/custom/data")
	t.Setenv("DB_URL", "postgres://localhost/filegraph")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("API_KEYS", "key1,key2,key3")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "/custom/data", cfg.DataDir)
	assert.Equal(t, "postgres://localhost/filegraph", cfg.DBURL)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "key1,key2,key3", cfg.APIKeys)
}

func TestLoadFromEnv_KV(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("KV_BACKEND", "redis")
	t.Setenv("KV_CLEANUP_INTERVAL", "60")
	t.Setenv("REDIS_URL", "redis://cache:6379/3")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	kv := cfg.ToKVConfig()
	assert.Equal(t, KVBackendRedis, kv.Backend())
	assert.Equal(t, time.Minute, kv.CleanupInterval())
	assert.Equal(t, "redis://cache:6379/3", kv.RedisURL())
}

func TestLoadFromEnv_Merge(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("MERGE_AUTO_ACCEPT_CONFIDENCE", "0.8")
	t.Setenv("MERGE_MAX_RETRIES", "2")
	t.Setenv("MERGE_RETRY_INITIAL_DELAY", "0.5")
	t.Setenv("MERGE_RETRY_BACKOFF_FACTOR", "1.5")
	t.Setenv("RESOLVE_MAX_HOPS", "10")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	m := cfg.ToMergeConfig()
	assert.Equal(t, 0.8, m.AutoAcceptConfidence())
	assert.Equal(t, 2, m.MaxRetries())
	assert.Equal(t, 500*time.Millisecond, m.InitialDelay())
	assert.Equal(t, 1.5, m.BackoffFactor())
	assert.Equal(t, 10, m.MaxHops())
}

func TestLoadFromEnv_BatchAndReporting(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("BATCH_PARALLELISM", "12")
	t.Setenv("REPORTING_LOG_TIME_INTERVAL", "2.5")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	app := cfg.ToAppConfig()
	assert.Equal(t, 12, app.BatchParallelism())
	assert.Equal(t, 2500*time.Millisecond, app.Reporting().LogTimeInterval())
}

func TestLoadFromEnv_InvalidNumber(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("MERGE_MAX_RETRIES", "many")

	_, err := LoadFromEnv()
	assert.Error(t, err)
}

func TestLoadFromEnvWithPrefix(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("FILEGRAPH_PORT", "7070")
	t.Setenv("FILEGRAPH_KV_BACKEND", "redis")

	cfg, err := LoadFromEnvWithPrefix("FILEGRAPH")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "redis", cfg.KV.Backend)
}

func TestEnvConfig_Normalize(t *testing.T) {
	cfg := EnvConfig{
		Host:      " localhost ",
		LogLevel:  "debug",
		LogFormat: " JSON",
		KV:        KVEnv{Backend: "Redis "},
	}.Normalize()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "redis", cfg.KV.Backend)
}

func TestEnvConfig_ToAppConfig(t *testing.T) {
	env := EnvConfig{
		Host:        "localhost",
		Port:        9000,
		DataDir:     "/test/data",
		LogLevel:    "DEBUG",
		LogFormat:   "json",
		APIKeys:     "key1,key2",
		CORSOrigins: "https://a.example, https://b.example",
		KV:          KVEnv{Backend: "redis", CleanupInterval: 10},
		RedisURL:    "redis://cache:6379/1",
		Merge:       MergeEnv{AutoAcceptConfidence: 0.95, MaxRetries: 3, RetryInitialDelay: 0.1, RetryBackoffFactor: 2},
		Resolve:     ResolveEnv{MaxHops: 16},
		Batch:       BatchEnv{Parallelism: 2},
		Reporting:   ReportingEnv{LogTimeInterval: 1},
	}

	cfg := env.ToAppConfig()

	assert.Equal(t, "localhost", cfg.Host())
	assert.Equal(t, 9000, cfg.Port())
	assert.Equal(t, "/test/data", cfg.DataDir())
	assert.Equal(t, DefaultDBURL("/test/data"), cfg.DBURL())
	assert.Equal(t, "DEBUG", cfg.LogLevel())
	assert.Equal(t, LogFormatJSON, cfg.LogFormat())
	assert.Equal(t, []string{"key1", "key2"}, cfg.APIKeys())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
	assert.Equal(t, KVBackendRedis, cfg.KV().Backend())
	assert.Equal(t, 10*time.Second, cfg.KV().CleanupInterval())
	assert.Equal(t, "redis://cache:6379/1", cfg.KV().RedisURL())
	assert.Equal(t, 0.95, cfg.Merge().AutoAcceptConfidence())
	assert.Equal(t, 3, cfg.Merge().MaxRetries())
	assert.Equal(t, 100*time.Millisecond, cfg.Merge().InitialDelay())
	assert.Equal(t, 16, cfg.Merge().MaxHops())
	assert.Equal(t, 2, cfg.BatchParallelism())
	assert.Equal(t, time.Second, cfg.Reporting().LogTimeInterval())
}

func TestParseLogFormat(t *testing.T) {
	tests := []struct {
		input string
		want  LogFormat
	}{
		{"json", LogFormatJSON},
		{"JSON", LogFormatJSON},
		{"pretty", LogFormatPretty},
		{"", LogFormatPretty},
		{"other", LogFormatPretty},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogFormat(tt.input))
		})
	}
}

func TestParseKVBackend(t *testing.T) {
	assert.Equal(t, KVBackendRedis, parseKVBackend("redis"))
	assert.Equal(t, KVBackendRedis, parseKVBackend("REDIS"))
	assert.Equal(t, KVBackendSQL, parseKVBackend("sql"))
	assert.Equal(t, KVBackendSQL, parseKVBackend("memcached"))
}

func TestLoadDotEnv(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")
	content := `DATA_DIR=/from/dotenv
LOG_LEVEL=DEBUG
API_KEYS=key1,key2
`
	err := os.WriteFile(envFile, []byte(content), 0o644)
	require.NoError(t, err)

	clearEnvVars(t)

	err = LoadDotEnv(envFile)
	require.NoError(t, err)

	assert.Equal(t, "/from/dotenv", os.Getenv("DATA_DIR"))
	assert.Equal(t, "DEBUG", os.Getenv("LOG_LEVEL"))
	assert.Equal(t, "key1,key2", os.Getenv("API_KEYS"))
}

func TestLoadDotEnv_NonExistent(t *testing.T) {
	clearEnvVars(t)

	err := LoadDotEnv("/nonexistent/.env")
	assert.NoError(t, err)
}

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	envFile := filepath.Join(tmpDir, ".env")
	content := `DATA_DIR=/config/data
LOG_LEVEL=warn
KV_BACKEND=redis
`
	err := os.WriteFile(envFile, []byte(content), 0o644)
	require.NoError(t, err)

	clearEnvVars(t)

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)

	assert.Equal(t, "/config/data", cfg.DataDir())
	assert.Equal(t, "WARN", cfg.LogLevel())
	assert.Equal(t, KVBackendRedis, cfg.KV().Backend())
}

func clearEnvVars(t *testing.T) {
	t.Helper()

	vars := []string{
		"HOST",
		"PORT",
		"DATA_DIR",
		"DB_URL",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"API_KEYS",
		"CORS_ORIGINS",
		"KV_BACKEND",
		"KV_CLEANUP_INTERVAL",
		"REDIS_URL",
		"MERGE_AUTO_ACCEPT_CONFIDENCE",
		"MERGE_MAX_RETRIES",
		"MERGE_RETRY_INITIAL_DELAY",
		"MERGE_RETRY_BACKOFF_FACTOR",
		"RESOLVE_MAX_HOPS",
		"BATCH_PARALLELISM",
		"REPORTING_LOG_TIME_INTERVAL",
		"FILEGRAPH_PORT",
		"FILEGRAPH_KV_BACKEND",
		"KEY1",
		"KEY2",
		"KEY3",
	}

	for _, v := range vars {
		t.Setenv(v, "")
		_ = os.Unsetenv(v)
	}
}
