package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributeHelpers(t *testing.T) {
	tests := []struct {
		name    string
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{"trace id", TraceID("4bf92f3577b34da6a3ce929d0e0e4736"), KeyTraceID, "4bf92f3577b34da6a3ce929d0e0e4736"},
		{"message id", MessageID("18c2f"), KeyMessageID, "18c2f"},
		{"thread id", ThreadID("18c2e"), KeyThreadID, "18c2e"},
		{"status", Status(StatusSkipped), KeyStatus, "skipped"},
		{"domain", Domain("Jane <jane@Example.com>"), "user_domain", "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKey, tt.attr.Key)
			assert.Equal(t, tt.wantVal, tt.attr.Value.String())
		})
	}
}

func TestWithOperationAndComponent(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	WithComponent(WithOperation(base, "gmail.list"), "poller").Info("hello")

	out := buf.String()
	assert.Contains(t, out, "operation=gmail.list")
	assert.Contains(t, out, "component=poller")
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("quota exceeded"))
	assert.Equal(t, KeyError, attr.Key)
	assert.Equal(t, "quota exceeded", attr.Value.String())

	// nil errors collapse to an empty group that slog omits
	assert.Empty(t, Err(nil).Key)
	assert.Empty(t, TraceID("").Key)
}

func TestAnonymizeEmail(t *testing.T) {
	got := AnonymizeEmail("jane@example.com")
	assert.Len(t, got, 21)
	assert.True(t, strings.HasPrefix(got, "user:"))

	assert.Equal(t, got, AnonymizeEmail("  JANE@example.com "), "hash is case and whitespace insensitive")
	assert.NotEqual(t, got, AnonymizeEmail("other@example.com"))
	assert.Empty(t, AnonymizeEmail(""))
}

func TestUserHash(t *testing.T) {
	attr := UserHash("jane@example.com")
	assert.Equal(t, KeyUserHash, attr.Key)
	assert.NotContains(t, attr.Value.String(), "jane")
}

func TestSanitizeToken(t *testing.T) {
	assert.Equal(t, "<empty>", SanitizeToken(""))
	assert.Equal(t, "[token:6 chars]", SanitizeToken("abc123"))
	assert.NotContains(t, SanitizeToken("ya29.secret"), "secret")
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		email    string
		expected string
	}{
		{"jane@example.com", "example.com"},
		{"Jane Doe <jane@Mail.Example.com>", "mail.example.com"},
		{"invalid", ""},
		{"", ""},
		{"@", ""},
		{"user@", ""},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractDomain(tt.email))
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	t.Run("json output carries service", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(&buf, "info", FormatJSON, "awayreply")
		require.NoError(t, err)

		logger.Info("started")
		assert.Contains(t, buf.String(), `"service":"awayreply"`)
		assert.Contains(t, buf.String(), `"msg":"started"`)
	})

	t.Run("level filters records", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := New(&buf, "warn", FormatText, "")
		require.NoError(t, err)

		logger.Info("dropped")
		logger.Warn("kept")
		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := New(&bytes.Buffer{}, "info", "xml", "")
		assert.Error(t, err)
	})
}
