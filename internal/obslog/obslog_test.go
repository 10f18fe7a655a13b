package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestInitFromEnv_FileSink(t *testing.T) {
	defer Set(nil)
	path := filepath.Join(t.TempDir(), "logs", "arena.log")
	t.Setenv("LOG_TO_CONSOLE", "false")
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("LOG_FILE", path)
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	if err := InitFromEnv(); err != nil {
		t.Fatalf("InitFromEnv: %v", err)
	}
	L().Debug("arena_test_entry")
	Sync()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"msg":"arena_test_entry"`) {
		t.Fatalf("log entry missing: %s", b)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARNING": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSettingsFromEnv(t *testing.T) {
	for _, k := range []string{"LOG_LEVEL", "LOG_FORMAT", "LOG_TO_CONSOLE", "LOG_TO_FILE", "LOG_FILE", "LOG_CALLER"} {
		t.Setenv(k, "")
	}
	s := SettingsFromEnv()
	if s.Format != "legacy" || !s.Caller || !s.Console || s.File != "" || s.Level != zapcore.InfoLevel {
		t.Fatalf("defaults = %+v", s)
	}

	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("LOG_TO_FILE", "1")
	s = SettingsFromEnv()
	if s.Format != "json" || s.Caller || s.File != filepath.Join("logs", "arena.log") {
		t.Fatalf("json settings = %+v", s)
	}
}

func TestBuild_NoSinkFallsBack(t *testing.T) {
	l, err := Build(Settings{Level: zapcore.WarnLevel})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if l.Core().Enabled(zapcore.InfoLevel) || !l.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatalf("level not applied")
	}
}

func TestSetNilRestoresNop(t *testing.T) {
	Set(nil)
	if L() == nil {
		t.Fatalf("L() must never be nil")
	}
}
