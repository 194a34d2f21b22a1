package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMiddlewareLevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{http.StatusOK, zapcore.InfoLevel},
		{http.StatusNotFound, zapcore.WarnLevel},
		{http.StatusConflict, zapcore.WarnLevel},
		{http.StatusServiceUnavailable, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			r := gin.New()
			r.Use(Middleware(zap.New(core)))
			r.GET("/x", func(c *gin.Context) { c.Status(tt.status) })

			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

			entries := logs.FilterMessage("HTTP Request").All()
			if len(entries) != 1 {
				t.Fatalf("entries = %d, want 1", len(entries))
			}
			if entries[0].Level != tt.level {
				t.Fatalf("level = %s, want %s", entries[0].Level, tt.level)
			}
			if got := entries[0].ContextMap()["status"]; got != int64(tt.status) {
				t.Fatalf("status field = %v", got)
			}
		})
	}
}

func TestRequestLoggerCarriesRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("request_id", "req-42") })
	r.Use(Middleware(zap.New(core)))
	r.GET("/x", func(c *gin.Context) {
		FromGin(c).Info("inside handler")
		FromContext(c.Request.Context()).Info("from context")
		c.Status(http.StatusNoContent)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

	for _, msg := range []string{"inside handler", "from context", "HTTP Request"} {
		entries := logs.FilterMessage(msg).All()
		if len(entries) != 1 || entries[0].ContextMap()["request_id"] != "req-42" {
			t.Fatalf("%q entries = %+v", msg, entries)
		}
	}
}

func TestFromContextFallsBackToGlobal(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	FromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()).Info("global")
	if logs.FilterMessage("global").Len() != 1 {
		t.Fatal("expected the global logger without a request logger")
	}
}

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level, env string
		enabled    zapcore.Level
		disabled   zapcore.Level
	}{
		{"debug", "development", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"warn", "production", zapcore.WarnLevel, zapcore.InfoLevel},
		{"", "production", zapcore.InfoLevel, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.env, func(t *testing.T) {
			restore := zap.ReplaceGlobals(zap.NewNop())
			defer restore()

			log, err := New(tt.level, tt.env, "pos-test")
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if !log.Core().Enabled(tt.enabled) || log.Core().Enabled(tt.disabled) {
				t.Fatalf("level %q: enabled(%s)=%v enabled(%s)=%v", tt.level,
					tt.enabled, log.Core().Enabled(tt.enabled), tt.disabled, log.Core().Enabled(tt.disabled))
			}
		})
	}
}
