package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestReplaceRestores(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := Replace(zap.New(core))
	L().Info("room_created", zap.String("room_id", "R-AAAAAA"))
	restore()
	L().Info("after_restore")

	if logs.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "room_created" || entry.ContextMap()["room_id"] != "R-AAAAAA" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	restore := Replace(nil)
	defer restore()

	if err := Init(Options{Level: "debug", Format: "json", File: path, NodeID: "n1"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	L().Debug("level_check", zap.Int("n", 1))
	Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"level_check"`) || !strings.Contains(string(raw), `"node":"n1"`) {
		t.Fatalf("unexpected log contents: %s", raw)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"WARNING": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
