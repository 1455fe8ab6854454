package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/felixgeelhaar/macrocam/internal/errors"
)

func newBufferLogger(level Level, format Format) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:       level,
		Format:      format,
		Output:      NewOutput(&buf),
		ServiceName: "macrocam-test",
	})
	return logger, &buf
}

func decodeEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogLevelFiltering(t *testing.T) {
	tests := []struct {
		name    string
		level   Level
		log     func(*Logger)
		written bool
	}{
		{"debug below info", LevelInfo, func(l *Logger) { l.Debug("d") }, false},
		{"info at info", LevelInfo, func(l *Logger) { l.Info("i") }, true},
		{"warn above info", LevelInfo, func(l *Logger) { l.Warn("w") }, true},
		{"info below error", LevelError, func(l *Logger) { l.Info("i") }, false},
		{"debug at debug", LevelDebug, func(l *Logger) { l.Debug("d") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferLogger(tt.level, FormatJSON)
			tt.log(logger)
			if got := buf.Len() > 0; got != tt.written {
				t.Errorf("written = %v, want %v (output %q)", got, tt.written, buf.String())
			}
		})
	}
}

func TestJSONFormatOutput(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, FormatJSON)
	logger.Info("meal saved", "user_id", "u1", "calories", 420.5)

	entry := decodeEntry(t, buf)
	if entry["msg"] != "meal saved" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["service"] != "macrocam-test" {
		t.Errorf("service = %v", entry["service"])
	}
	if entry["user_id"] != "u1" {
		t.Errorf("user_id = %v", entry["user_id"])
	}
}

func TestTextFormatOutput(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, FormatText)
	logger.Warn("fetch superseded", "seq", 3)

	out := buf.String()
	for _, want := range []string{"level=WARN", "fetch superseded", "seq=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q should contain %q", out, want)
		}
	}
}

func TestWithAndGroup(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, FormatJSON)
	logger.With("component", "capture").WithGroup("result").Info("settled", "calories", 300)

	entry := decodeEntry(t, buf)
	if entry["component"] != "capture" {
		t.Errorf("component = %v", entry["component"])
	}
	group, ok := entry["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected result group, got %v", entry["result"])
	}
	if group["calories"] != float64(300) {
		t.Errorf("result.calories = %v", group["calories"])
	}
}

func TestWithError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantError string
		wantCode  string
		wantCause string
	}{
		{
			name:      "plain error",
			err:       fmt.Errorf("boom"),
			wantError: "boom",
		},
		{
			name:      "coded error",
			err:       errors.NewStoreWriteError(fmt.Errorf("timeout")),
			wantError: "Meal analyzed but could not be saved",
			wantCode:  "STORE-002",
			wantCause: "timeout",
		},
		{
			name:      "wrapped coded error",
			err:       fmt.Errorf("capture: %w", errors.New(errors.ErrCodeAnalysisInvalid, "bad payload")),
			wantError: "bad payload",
			wantCode:  "ANALYSIS-002",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, buf := newBufferLogger(LevelInfo, FormatJSON)
			logger.WithError(tt.err).Info("failed")

			entry := decodeEntry(t, buf)
			if entry["error"] != tt.wantError {
				t.Errorf("error = %v, want %q", entry["error"], tt.wantError)
			}
			if tt.wantCode != "" && entry["error_code"] != tt.wantCode {
				t.Errorf("error_code = %v, want %q", entry["error_code"], tt.wantCode)
			}
			if tt.wantCause != "" && entry["cause"] != tt.wantCause {
				t.Errorf("cause = %v, want %q", entry["cause"], tt.wantCause)
			}
		})
	}
}

func TestWithErrorNil(t *testing.T) {
	logger, _ := newBufferLogger(LevelInfo, FormatJSON)
	if logger.WithError(nil) != logger {
		t.Error("WithError(nil) should return the same logger")
	}
}

func TestLogError(t *testing.T) {
	logger, buf := newBufferLogger(LevelInfo, FormatJSON)

	logger.LogError("ignored", nil)
	if buf.Len() != 0 {
		t.Fatalf("nil error should not be logged, got %q", buf.String())
	}

	logger.LogError("sign in failed", errors.NewAuthFailedError(fmt.Errorf("a"), fmt.Errorf("b")))
	entry := decodeEntry(t, buf)
	if entry["level"] != "ERROR" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["error_code"] != "AUTH-001" {
		t.Errorf("error_code = %v", entry["error_code"])
	}
}

func TestContextMethods(t *testing.T) {
	logger, buf := newBufferLogger(LevelDebug, FormatText)
	ctx := context.Background()

	logger.DebugContext(ctx, "one")
	logger.InfoContext(ctx, "two")
	logger.WarnContext(ctx, "three")
	logger.ErrorContext(ctx, "four")

	out := buf.String()
	for _, want := range []string{"one", "two", "three", "four"} {
		if !strings.Contains(out, want) {
			t.Errorf("output should contain %q", want)
		}
	}
}

func TestEnabled(t *testing.T) {
	logger, _ := newBufferLogger(LevelWarn, FormatJSON)
	ctx := context.Background()

	if logger.Enabled(ctx, LevelInfo) {
		t.Error("info should be disabled at warn level")
	}
	if !logger.Enabled(ctx, LevelError) {
		t.Error("error should be enabled at warn level")
	}
}

func TestNop(t *testing.T) {
	logger := Nop()
	logger.Error("dropped")
	if logger.Config().Output.Writer() == nil {
		t.Error("nop logger should have a writer")
	}
}

func TestOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "client.log")

	out, err := OutputFile(path)
	if err != nil {
		t.Fatalf("OutputFile() error = %v", err)
	}
	logger := New(Config{Level: LevelInfo, Format: FormatJSON, Output: out})
	logger.Info("hello")
	if err := out.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	again, err := OutputFile(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	New(Config{Level: LevelInfo, Format: FormatJSON, Output: again}).Info("world")
	_ = again.Close()

	data := readFile(t, path)
	if strings.Count(data, "\n") != 2 {
		t.Errorf("expected two appended entries, got %q", data)
	}
}

func TestParseLevelAndFormat(t *testing.T) {
	levels := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range levels {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}

	if ParseFormat("text") != FormatText || ParseFormat("json") != FormatJSON || ParseFormat("") != FormatJSON {
		t.Error("ParseFormat mismatch")
	}
	if LevelWarn.String() != "WARN" || Level(42).String() != "UNKNOWN" {
		t.Error("Level.String mismatch")
	}
}

func TestDefaultLogger(t *testing.T) {
	SetDefaultLogger(nil)
	first := DefaultLogger()
	if first == nil {
		t.Fatal("expected fallback logger")
	}
	if DefaultLogger() != first {
		t.Error("fallback logger should be cached")
	}

	custom := Nop()
	SetDefaultLogger(custom)
	t.Cleanup(func() { SetDefaultLogger(nil) })

	if OrDefault(nil) != custom {
		t.Error("OrDefault(nil) should return the default logger")
	}
	other := Nop()
	if OrDefault(other) != other {
		t.Error("OrDefault should keep a non-nil logger")
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
