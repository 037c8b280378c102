package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"edupredict/config"
)

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edupredict.log")
	logger, err := New(config.Log{Level: "debug", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Debug("models loaded")
	_ = logger.Sync()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(content), `"msg":"models loaded"`) {
		t.Fatalf("unexpected log content %q", content)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(config.Log{Level: "verbose"}); err == nil {
		t.Fatal("expected level error")
	}
}
