package logger

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScope(t *testing.T) {
	for _, scope := range []string{"bookings.svc", "invites", ""} {
		attr := Scope(scope)
		assert.Equal(t, "scope", attr.Key)
		assert.Equal(t, scope, attr.Value.String())
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"simple error", errors.New("something went wrong")},
		{"nil error", nil},
		{"joined error", errors.Join(errors.New("outer"), errors.New("inner"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attr := Error(tt.err)
			assert.Equal(t, "error", attr.Key)
			assert.True(t, attr.Value.Any() == tt.err)
		})
	}
}

func TestNewLogger_Levels(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		value    string
		enabled  slog.Level
		disabled *slog.Level
	}{
		{"", slog.LevelInfo, levelPtr(slog.LevelDebug)},
		{"debug", slog.LevelDebug, nil},
		{"DEBUG", slog.LevelDebug, nil},
		{"warn", slog.LevelWarn, levelPtr(slog.LevelInfo)},
		{"warning", slog.LevelWarn, levelPtr(slog.LevelInfo)},
		{"error", slog.LevelError, levelPtr(slog.LevelWarn)},
		{"verbose", slog.LevelInfo, levelPtr(slog.LevelDebug)},
	}

	for _, tt := range tests {
		t.Run("LOG_LEVEL="+tt.value, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.value)
			t.Setenv("GO_ENV", "")

			log := NewLogger()
			assert.True(t, log.Enabled(ctx, tt.enabled))
			if tt.disabled != nil {
				assert.False(t, log.Enabled(ctx, *tt.disabled))
			}
		})
	}
}

func TestNewLogger_ProductionUsesJSON(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("GO_ENV", "production")

	log := NewLogger()
	_, ok := log.Handler().(*slog.JSONHandler)
	assert.True(t, ok, "production logger should use the JSON handler")
}

func levelPtr(l slog.Level) *slog.Level { return &l }
