package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"restframe/internal/logging"
)

func TestNewJSONLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "info",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("epoch complete", logging.Int("epoch", 3), logging.Float64("loss", 0.25))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	for _, want := range []string{`"msg":"epoch complete"`, `"epoch":3`, `"level":"info"`} {
		if !strings.Contains(text, want) {
			t.Fatalf("log output missing %q:\n%s", want, text)
		}
	}
}

func TestLevelFiltersDebugRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, err := logging.New(logging.Options{
		Format:      "json",
		Level:       "warn",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Debug("noise")
	logger.Info("still noise")
	logger.Warn("kept")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if strings.Contains(text, "noise") {
		t.Fatalf("suppressed records leaked:\n%s", text)
	}
	if !strings.Contains(text, "kept") {
		t.Fatalf("warn record missing:\n%s", text)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestConsoleFormatIncludesComponent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, err := logging.New(logging.Options{
		Format:      "console",
		Level:       "info",
		OutputPaths: []string{path},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.With(logging.String("component", "trainer")).Info("training started")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "trainer") || !strings.Contains(text, "training started") {
		t.Fatalf("console output missing component or message:\n%s", text)
	}
}

func TestNewNopDiscardsEverything(t *testing.T) {
	logger := logging.NewNop()
	if logger == nil {
		t.Fatal("NewNop returned nil")
	}
	logger.Error("dropped")
}
