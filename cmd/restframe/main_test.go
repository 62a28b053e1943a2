package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"restframe/internal/testsupport"
)

func writeTestConfig(t *testing.T, base string) string {
	t.Helper()
	path := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`
[paths]
log_dir = %q

[training]
latents = 2
batch_size = 8
epochs = 1

[instruments]
names = ["desi"]

[[stage]]
name = "full"
iterations = 1
decoder = true
data = [true]
`, filepath.Join(base, "logs"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	output, err := runCommand(t, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(output, target) {
		t.Fatalf("output does not mention the target path:\n%s", output)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}

	if _, err := runCommand(t, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when the config already exists")
	}
}

func TestConfigValidateAcceptsGeneratedConfig(t *testing.T) {
	base := t.TempDir()
	path := writeTestConfig(t, base)
	output, err := runCommand(t, "--config", path, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(output, "Configuration valid") {
		t.Fatalf("unexpected validate output:\n%s", output)
	}
}

func TestTrainRefusesExistingOutfileWithoutClobber(t *testing.T) {
	base := t.TempDir()
	path := writeTestConfig(t, base)
	outfile := filepath.Join(base, "model.ckpt")
	if err := os.WriteFile(outfile, []byte("existing"), 0o644); err != nil {
		t.Fatalf("seed outfile: %v", err)
	}

	_, err := runCommand(t, "--config", path, "train", base, outfile)
	if err == nil {
		t.Fatal("expected refusal for existing outfile")
	}
	if !strings.Contains(err.Error(), "clobber") {
		t.Fatalf("error should point at --clobber: %v", err)
	}
}

func TestTrainRunsOneEpochEndToEnd(t *testing.T) {
	base := t.TempDir()
	path := writeTestConfig(t, base)
	dataDir := filepath.Join(base, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("mkdir data: %v", err)
	}
	testsupport.WriteSet(t, dataDir, "desi", "train", 10, 24, 0.3, 1)
	testsupport.WriteSet(t, dataDir, "desi", "valid", 4, 24, 0.3, 2)
	outfile := filepath.Join(base, "model.ckpt")

	if _, err := runCommand(t, "--config", path, "train", dataDir, outfile); err != nil {
		t.Fatalf("train: %v", err)
	}
	if _, err := os.Stat(outfile); err != nil {
		t.Fatalf("checkpoint not written: %v", err)
	}

	output, err := runCommand(t, "inspect", outfile)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(output, "Epochs done: 1 of 1") {
		t.Fatalf("inspect summary wrong:\n%s", output)
	}
	if !strings.Contains(output, "fidelity") {
		t.Fatalf("inspect table missing loss terms:\n%s", output)
	}
}

func TestTrainResumesWithClobber(t *testing.T) {
	base := t.TempDir()
	path := writeTestConfig(t, base)
	dataDir := filepath.Join(base, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		t.Fatalf("mkdir data: %v", err)
	}
	testsupport.WriteSet(t, dataDir, "desi", "train", 10, 24, 0.3, 1)
	testsupport.WriteSet(t, dataDir, "desi", "valid", 4, 24, 0.3, 2)
	outfile := filepath.Join(base, "model.ckpt")

	if _, err := runCommand(t, "--config", path, "train", dataDir, outfile); err != nil {
		t.Fatalf("first train: %v", err)
	}
	if _, err := runCommand(t, "--config", path, "train", "--clobber", dataDir, outfile); err != nil {
		t.Fatalf("resumed train: %v", err)
	}

	output, err := runCommand(t, "inspect", outfile)
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if !strings.Contains(output, "Epochs done: 2 of 2") {
		t.Fatalf("resume should extend the history:\n%s", output)
	}
}
