package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/Tattsum/almuerzo/internal/config"
	"github.com/Tattsum/almuerzo/internal/infrastructure/storage"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		contains string
		wantErr  bool
	}{
		{name: "テキスト", level: "info", format: "text", contains: "msg=hola"},
		{name: "JSON", level: "debug", format: "JSON", contains: `"msg":"hola"`},
		{name: "不明なレベル", level: "verbose", format: "text", wantErr: true},
		{name: "不明な形式", level: "info", format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(tt.level, tt.format, &buf)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			logger.Info("hola")
			assert.Contains(t, buf.String(), tt.contains)
		})
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("warn", "text", &buf)
	require.NoError(t, err)

	logger.Info("oculto")
	logger.Warn("visible")
	assert.NotContains(t, buf.String(), "oculto")
	assert.Contains(t, buf.String(), "visible")
}

func TestOpenStorage(t *testing.T) {
	logger, err := newLogger("error", "text", &bytes.Buffer{})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "almuerzo.json")
	repo, badgerRepo, err := openStorage(cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, badgerRepo)
	assert.IsType(t, &storage.FileRepository{}, repo)

	cfg.Storage = config.StorageConfig{Backend: config.BackendBadger, Path: filepath.Join(t.TempDir(), "db")}
	repo, badgerRepo, err = openStorage(cfg, logger)
	require.NoError(t, err)
	require.NotNil(t, badgerRepo)
	t.Cleanup(func() { badgerRepo.Close() })
	assert.Same(t, badgerRepo, repo)
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCmd()

	names := make([]string, 0, len(cmd.Commands()))
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "recover")

	for _, flag := range []string{"config", "log-level", "log-format", "trace"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestInitTracer(t *testing.T) {
	shutdown, err := initTracer("", &bytes.Buffer{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	var buf bytes.Buffer
	shutdown, err = initTracer("stdout", &buf)
	require.NoError(t, err)
	_, span := otel.Tracer("test").Start(context.Background(), "almuerzo.test")
	span.End()
	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "almuerzo.test")

	_, err = initTracer("jaeger", &bytes.Buffer{})
	assert.Error(t, err)
}
