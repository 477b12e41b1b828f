package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/entitlement/pkg/logger"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(logger.WithOutput(&buf))

	log.Info("hello", slog.String("k", "v"))
	log.Debug("hidden")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "v", record["k"])
	assert.NotContains(t, buf.String(), "hidden", "debug suppressed at default level")
}

func TestNew_TextFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithOutput(&buf),
		logger.WithFormat(logger.FormatText),
		logger.WithLevel(slog.LevelDebug),
	)

	log.Debug("visible")
	assert.Contains(t, buf.String(), "msg=visible")
}

func TestNew_InvalidFormatPanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		logger.New(logger.WithFormat(logger.Format("yaml")))
	})
}

func TestWithService(t *testing.T) {
	t.Parallel()

	t.Run("production is json at info", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithService("entitlement", "production"))

		log.Debug("hidden")
		log.InfoContext(context.Background(), "up")

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "entitlement", record["service"])
		assert.Equal(t, "production", record["env"])
	})

	t.Run("development is text at debug", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		log := logger.New(logger.WithOutput(&buf), logger.WithService("entitlement", "development"))

		log.Debug("visible")
		out := buf.String()
		assert.True(t, strings.Contains(out, "service=entitlement"), out)
		assert.Contains(t, out, "msg=visible")
	})
}
