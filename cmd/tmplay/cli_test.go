package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// viper lowercases map keys, so the helper switch is lowercase too.
const helperEnv = "tmplay_cli_helper"

// TestHelperEngine is not a real test. It stands in for the engine binary
// when the test executable is re-run with helperEnv set.
func TestHelperEngine(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	source, _ := io.ReadAll(os.Stdin)
	if len(args) == 0 {
		os.Exit(2)
	}
	switch args[0] {
	case "compile":
		if strings.Contains(string(source), "BROKEN") {
			payload, _ := json.Marshal(map[string]string{"status": "error", "error": "unexpected token at line 1"})
			fmt.Print(string(payload))
			os.Exit(0)
		}
		payload, _ := json.Marshal(map[string]string{
			"status": "success",
			"c_code": "int main(void) { return 0; }\n",
			"dot":    "digraph tm {}\n",
		})
		fmt.Print(string(payload))
	case "run":
		tape := ""
		if len(args) == 3 && args[1] == "--tape" {
			tape = args[2]
		}
		payload, _ := json.Marshal(map[string]any{
			"status": "ACCEPTED",
			"history": []map[string]any{
				{"step": 0, "tape": tape, "head": 0, "state": "q0"},
				{"step": 1, "tape": tape, "head": 1, "state": "accept"},
			},
		})
		fmt.Print(string(payload))
	default:
		os.Exit(2)
	}
	os.Exit(0)
}

func helperConfig(t *testing.T) string {
	t.Helper()
	return writeConfig(t, fmt.Sprintf(`config_version: 1
engine:
  mode: exec
  binary: %q
  args: ["-test.run=^TestHelperEngine$", "--"]
  env:
    %s: "1"
  timeout_seconds: 20
`, os.Args[0], helperEnv))
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCompileCommandWritesArtifacts(t *testing.T) {
	cfg := helperConfig(t)
	dir := t.TempDir()
	cPath := filepath.Join(dir, "output.c")
	dotPath := filepath.Join(dir, "graph.dot")
	out, err := execute(t, "", "compile", "--config", cfg, "--example", "binary-increment", "-o", cPath, "--dot", dotPath)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !strings.Contains(out, "Compilation Successful") {
		t.Fatalf("unexpected output %q", out)
	}
	data, err := os.ReadFile(cPath)
	if err != nil || !strings.Contains(string(data), "int main") {
		t.Fatalf("expected C artifact, got %q (%v)", data, err)
	}
	data, err = os.ReadFile(dotPath)
	if err != nil || !strings.HasPrefix(string(data), "digraph") {
		t.Fatalf("expected dot artifact, got %q (%v)", data, err)
	}
}

func TestCompileCommandReportsFailure(t *testing.T) {
	cfg := helperConfig(t)
	out, err := execute(t, "BROKEN program\n", "compile", "--config", cfg, "-")
	if err != errCompileFailed {
		t.Fatalf("expected errCompileFailed, got %v", err)
	}
	if !strings.Contains(out, "Compilation failed: unexpected token at line 1") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunCommandPlaysHistory(t *testing.T) {
	cfg := helperConfig(t)
	out, err := execute(t, "", "run", "--config", cfg, "--example", "palindrome", "--speed", "1", "--cells", "5")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"[1]", "state accept", "Simulation Complete: ACCEPTED", "Total steps: 2"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRunCommandTapeFlag(t *testing.T) {
	cfg := helperConfig(t)
	out, err := execute(t, "", "run", "--config", cfg, "--example", "palindrome", "--tape", "0110", "--no-play", "--cells", "5")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, " 0 [1] 1  0 ") {
		t.Fatalf("expected the tape flag to reach the engine, got:\n%s", out)
	}
}

func TestRunCommandMissingEngine(t *testing.T) {
	cfg := writeConfig(t, "config_version: 1\nengine:\n  mode: exec\n  binary: /nonexistent/tmlang\n")
	if _, err := execute(t, "", "run", "--config", cfg, "--example", "palindrome"); err == nil {
		t.Fatalf("expected error when the engine binary is missing")
	}
}

func TestExamplesCommand(t *testing.T) {
	out, err := execute(t, "", "examples")
	if err != nil {
		t.Fatalf("examples: %v", err)
	}
	for _, want := range []string{"binary-increment", "unary-add", "palindrome", "(default)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in listing:\n%s", want, out)
		}
	}
	out, err = execute(t, "", "examples", "unary-add")
	if err != nil || strings.TrimSpace(out) == "" {
		t.Fatalf("expected example source, got %q (%v)", out, err)
	}
	if _, err := execute(t, "", "examples", "nope"); err == nil {
		t.Fatalf("expected error for unknown example")
	}
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	out, err := execute(t, "", "config", "init", "--config", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Fatalf("expected written path in output, got %q", out)
	}
	if _, err := execute(t, "", "config", "init", "--config", path); err == nil {
		t.Fatalf("expected error when config exists")
	}
	if _, err := execute(t, "", "config", "init", "--config", path, "--force"); err != nil {
		t.Fatalf("config init --force: %v", err)
	}
	out, err = execute(t, "", "config", "show", "--config", path)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(out, "config_version: 1") || !strings.Contains(out, "27580") {
		t.Fatalf("unexpected config dump:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "pkt.systems/tmplay") {
		t.Fatalf("unexpected version output %q", out)
	}
}
