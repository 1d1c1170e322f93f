package logging

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewService(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		service, err := NewService(Config{Level: Info, Format: "json", OutputPath: "stdout"})

		require.NoError(t, err)
		assert.NotNil(t, service.logger)
		assert.NotNil(t, service.sugar)
	})

	t.Run("console format", func(t *testing.T) {
		service, err := NewService(Config{Level: Debug, Format: "console", OutputPath: "stdout"})

		require.NoError(t, err)
		assert.NotNil(t, service.logger)
	})

	t.Run("file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "folio.log")

		service, err := NewService(Config{Level: Warn, Format: "json", OutputPath: logFile})
		require.NoError(t, err)

		service.Warn("written to file")
		_ = service.Sync()

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "written to file")
	})
}

func TestService_LoggingMethods(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	service := FromZap(zap.New(core))

	tests := []struct {
		name  string
		log   func(string, ...zap.Field)
		level zapcore.Level
	}{
		{"Debug", service.Debug, zapcore.DebugLevel},
		{"Info", service.Info, zapcore.InfoLevel},
		{"Warn", service.Warn, zapcore.WarnLevel},
		{"Error", service.Error, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.log("message", zap.String("key", "value"))

			logs := recorded.TakeAll()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.level, logs[0].Level)
			assert.Equal(t, "message", logs[0].Message)
			assert.Equal(t, "value", logs[0].ContextMap()["key"])
		})
	}
}

func TestService_With(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	service := FromZap(zap.New(core)).With(zap.String("component", "newsletter"))

	service.Info("child entry")

	logs := recorded.TakeAll()
	require.Len(t, logs, 1)
	assert.Equal(t, "newsletter", logs[0].ContextMap()["component"])

	var nilService *Service
	assert.Nil(t, nilService.With(zap.String("a", "b")))
}

func TestService_NilSafety(t *testing.T) {
	var service *Service

	assert.NotPanics(t, func() {
		service.Debug("test")
		service.Info("test")
		service.Warn("test")
		service.Error("test")
		service.Infof("test %s", "value")
		service.Errorf("test %s", "value")
		_ = service.Sync()
	})
	assert.Nil(t, service.Logger())
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zapcore.Level
	}{
		{Debug, zapcore.DebugLevel},
		{Info, zapcore.InfoLevel},
		{Warn, zapcore.WarnLevel},
		{Error, zapcore.ErrorLevel},
		{LogLevel("unknown"), zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestRequestLogger(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core))

	e := echo.New()
	e.Use(RequestLogger(logger, "/healthz"))
	e.GET("/ok", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/missing", func(c echo.Context) error { return c.String(http.StatusNotFound, "nope") })
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/newsletter/unsubscribe/:token", func(c echo.Context) error { return c.String(http.StatusOK, "form") })
	e.GET("/newsletter/confirm", func(c echo.Context) error { return c.String(http.StatusOK, "confirmed") })

	t.Run("success logs at info with user agent fields", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ok", nil)
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		e.ServeHTTP(httptest.NewRecorder(), req)

		logs := recorded.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.InfoLevel, logs[0].Level)
		assert.Equal(t, "request", logs[0].Message)
		assert.Equal(t, "Chrome", logs[0].ContextMap()["browser"])
	})

	t.Run("client error logs at warn", func(t *testing.T) {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

		logs := recorded.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
	})

	t.Run("path token is logged as the route pattern", func(t *testing.T) {
		raw := "deadbeefcafebabe0123456789abcdef0123456789abcdef0123456789abcdef"
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/newsletter/unsubscribe/"+raw, nil))

		logs := recorded.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, "/newsletter/unsubscribe/:token", logs[0].ContextMap()["uri"])
		for _, value := range logs[0].ContextMap() {
			assert.NotContains(t, fmt.Sprint(value), raw)
		}
	})

	t.Run("query token is redacted", func(t *testing.T) {
		raw := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/newsletter/confirm?token="+raw+"&src=mail", nil))

		logs := recorded.TakeAll()
		require.Len(t, logs, 1)
		assert.Equal(t, "/newsletter/confirm?src=mail&token=redacted", logs[0].ContextMap()["uri"])
		assert.NotContains(t, fmt.Sprint(logs[0].ContextMap()), raw)
	})

	t.Run("skipped path is not logged", func(t *testing.T) {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Empty(t, recorded.TakeAll())
	})
}
