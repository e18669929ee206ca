package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tattsum/almuerzo/internal/domain"
)

var envKeys = []string{
	"ALMUERZO_REACTION",
	"ALMUERZO_COUNT_REACTION",
	"ALMUERZO_TIMEOUT",
	"ALMUERZO_DATA",
	"ALMUERZO_METRICS_ADDR",
	"SLACK_BOT_TOKEN",
}

// clearEnv はテスト中だけ関連する環境変数を未設定にする
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "almuerzo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-test")

	path := writeConfig(t, `
reaction: ":almuerzo:"
countReaction: cuenta
defaultReactions: [":pizza:", "sushi"]
timeout: 3600000
apiTimeout: 5000
rateLimit: 2.5
metricsAddr: ":9090"
storage:
  backend: badger
  path: /var/lib/almuerzo
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, domain.Triggers{Main: "almuerzo", Count: "cuenta"}, cfg.Triggers())
	assert.Equal(t, []string{"pizza", "sushi"}, cfg.DefaultReactions)
	assert.Equal(t, time.Hour, cfg.TimeoutDuration())
	assert.Equal(t, 5*time.Second, cfg.APITimeoutDuration())
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, StorageConfig{Backend: BackendBadger, Path: "/var/lib/almuerzo"}, cfg.Storage)
	assert.Equal(t, "xoxb-test", cfg.SlackToken)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "almuerzo", cfg.Reaction)
	assert.Empty(t, cfg.CountReaction)
	assert.Equal(t, 12*time.Hour, cfg.TimeoutDuration())
	assert.Equal(t, 10*time.Second, cfg.APITimeoutDuration())
	assert.Equal(t, BackendFile, cfg.Storage.Backend)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALMUERZO_REACTION", "comida")
	t.Setenv("ALMUERZO_COUNT_REACTION", "cuenta")
	t.Setenv("ALMUERZO_TIMEOUT", "60000")
	t.Setenv("ALMUERZO_DATA", "/tmp/almuerzo.json")
	t.Setenv("ALMUERZO_METRICS_ADDR", "127.0.0.1:9100")

	cfg, err := Load(writeConfig(t, "reaction: almuerzo\n"))
	require.NoError(t, err)

	assert.Equal(t, "comida", cfg.Reaction)
	assert.Equal(t, "cuenta", cfg.CountReaction)
	assert.Equal(t, time.Minute, cfg.TimeoutDuration())
	assert.Equal(t, "/tmp/almuerzo.json", cfg.Storage.Path)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
	}{
		{
			name:    "YAMLが不正",
			content: "reaction: [",
		},
		{
			name:    "timeoutが数値でない",
			content: "reaction: almuerzo\n",
			env:     map[string]string{"ALMUERZO_TIMEOUT": "soon"},
		},
		{
			name:    "トリガーが同じ",
			content: "reaction: almuerzo\ncountReaction: \":almuerzo:\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	t.Run("ファイルがない", func(t *testing.T) {
		clearEnv(t)
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{
			name:   "デフォルト",
			modify: func(c *Config) {},
		},
		{
			name:    "reactionが空",
			modify:  func(c *Config) { c.Reaction = "" },
			wantErr: "reaction が指定されていません",
		},
		{
			name:    "timeoutが0",
			modify:  func(c *Config) { c.Timeout = 0 },
			wantErr: "timeout は正の値にしてください",
		},
		{
			name:    "不明なストレージ",
			modify:  func(c *Config) { c.Storage.Backend = "redis" },
			wantErr: "不明なストレージ",
		},
		{
			name:    "パスが空",
			modify:  func(c *Config) { c.Storage.Path = "" },
			wantErr: "storage.path",
		},
		{
			name:    "rateLimitが負",
			modify:  func(c *Config) { c.RateLimit = -1 },
			wantErr: "rateLimit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
