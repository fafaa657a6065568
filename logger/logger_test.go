package logger

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"debug", "debug", slog.LevelDebug},
		{"info", "info", slog.LevelInfo},
		{"warn", "warn", slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"error", "error", slog.LevelError},
		{"unknown defaults to info", "verbose", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestRedactSensitiveData(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bearer token",
			input: "Authorization: Bearer abc123def456",
			want:  "Authorization: Bearer [REDACTED]",
		},
		{
			name:  "access token json field",
			input: `{"accessToken":"tok_secret_value","expireIn":7200}`,
			want:  `{"accessToken": [REDACTED],"expireIn":7200}`,
		},
		{
			name:  "app secret json field",
			input: `{"appSecret":"shhh"}`,
			want:  `{"appSecret": [REDACTED]}`,
		},
		{
			name:  "dingtalk token header",
			input: "x-acs-dingtalk-access-token: tok123",
			want:  "x-acs-dingtalk-access-token: [REDACTED]",
		},
		{
			name:  "no sensitive data unchanged",
			input: "hello world",
			want:  "hello world",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RedactSensitiveData(tt.input))
		})
	}
}
