package orderflow

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSecretToken_LogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	token := SecretToken("page-access-token-12345")
	logger.Info("test message", "token", token)

	output := buf.String()

	if strings.Contains(output, "page-access-token-12345") {
		t.Error("log output should not contain the actual token value")
	}
	if !strings.Contains(output, "[REDACTED]") {
		t.Error("log output should contain [REDACTED]")
	}
}

func TestSecretToken_String(t *testing.T) {
	token := SecretToken("pplx-abc123")
	if got := token.String(); got != "[REDACTED]" {
		t.Errorf("String() = %q, want [REDACTED]", got)
	}
	if got := token.Value(); got != "pplx-abc123" {
		t.Errorf("Value() = %q, want the raw secret", got)
	}
}

func TestNewLogger(t *testing.T) {
	// Empty log file path logs to stdout only.
	logger, err := NewLogger(slog.LevelInfo, "")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger() returned nil logger")
	}
}

func TestNewLogger_CreatesLogDirectory(t *testing.T) {
	t.Chdir(t.TempDir())

	logger, err := NewLogger(slog.LevelInfo, "app.log")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger() returned nil logger")
	}

	if _, err := os.Stat(filepath.Join("logs", "app.log")); err != nil {
		t.Errorf("log file not created: %v", err)
	}
}
