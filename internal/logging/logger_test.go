package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestNewLogger_WritesJSONFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	log, err := NewLogger(Options{Dir: dir, Level: "debug"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	log.Debug("test_message_from_logging_test")
	_ = log.Sync()

	f, err := os.Open(filepath.Join(dir, "uptime.log"))
	if err != nil {
		t.Fatalf("log file missing: %v", err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		t.Fatal("log file is empty")
	}
	var entry map[string]any
	if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["msg"] != "test_message_from_logging_test" || entry["ts"] == nil {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger(Options{Dir: t.TempDir(), Level: "chatty"}); err == nil {
		t.Fatal("unknown level should be rejected")
	}
}

func TestNewLogger_DefaultLevelIsInfo(t *testing.T) {
	log, err := NewLogger(Options{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if log.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug should be disabled by default")
	}
}
