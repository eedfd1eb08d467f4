package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestLogPathPrecedence(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("GAPEDIT_CONFIG_HOME", "")
	t.Setenv("GAPEDIT_LOG_FILE", "")
	if got, _ := getLogPath(); got != filepath.Join(dir, "xdg", "gapedit", "gapedit.log") {
		t.Fatalf("getLogPath = %q, want under XDG_CONFIG_HOME", got)
	}
	t.Setenv("GAPEDIT_CONFIG_HOME", filepath.Join(dir, "cfg"))
	if got, _ := getLogPath(); got != filepath.Join(dir, "cfg", "gapedit.log") {
		t.Fatalf("getLogPath = %q, want under GAPEDIT_CONFIG_HOME", got)
	}
	t.Setenv("GAPEDIT_LOG_FILE", filepath.Join(dir, "x.log"))
	if got, _ := getLogPath(); got != filepath.Join(dir, "x.log") {
		t.Fatalf("getLogPath = %q, want GAPEDIT_LOG_FILE", got)
	}
}

func TestInitAppendsToLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "gapedit.log")
	t.Setenv("GAPEDIT_LOG_FILE", path)
	L, S = nil, nil
	t.Cleanup(func() { Use(zap.NewNop()) })
	Info("dropped before init")

	for i := 0; i < 2; i++ {
		if err := Init(false); err != nil {
			t.Fatalf("Init error: %v", err)
		}
		Info("run", "n", i)
		Debug("hidden")
		Close()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	out := string(data)
	if n := strings.Count(out, "logger initialized"); n != 2 {
		t.Fatalf("log has %d init lines, want 2:\n%s", n, out)
	}
	if strings.Contains(out, "dropped before init") || strings.Contains(out, "hidden") {
		t.Fatalf("log = %q, want no pre-init or debug lines", out)
	}
}
