package obslog

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInit_FileRotator(t *testing.T) {
	prev := L()
	t.Cleanup(func() { Set(prev) })

	path := filepath.Join(t.TempDir(), "nested", "server.log")
	if err := Init(Options{Level: "debug", Format: "json", ToFile: true, File: path}); err != nil {
		t.Fatalf("init: %v", err)
	}
	L().Info("obslog_test_line", zap.String("k", "v"))
	Sync()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(raw) == 0 {
		t.Fatalf("log file empty")
	}
}

func TestSet_Observer(t *testing.T) {
	prev := L()
	t.Cleanup(func() { Set(prev) })

	core, logs := observer.New(zap.InfoLevel)
	Set(zap.New(core))
	L().Info("match_move", zap.String("session_id", "m1"))
	if logs.FilterMessage("match_move").Len() != 1 {
		t.Fatalf("expected one entry")
	}

	Set(nil)
	L().Info("dropped")
}
