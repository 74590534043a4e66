package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Grimnirrrr/keratin/pkg/assembly"
	"github.com/Grimnirrrr/keratin/pkg/codec"
	"github.com/Grimnirrrr/keratin/pkg/engine"
	"github.com/Grimnirrrr/keratin/pkg/tier"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func TestJoinArgs(t *testing.T) {
	got := joinArgs([]string{"MR", "sc", "sc", "inc"})
	if got != "MR sc sc inc" {
		t.Fatalf("joinArgs = %q", got)
	}
}

func TestFileStem(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"bear.json", "bear"},
		{"designs/bear.zy", "bear"},
		{"/tmp/save.backup.json", "save.backup"},
		{"noext", "noext"},
	}
	for _, tt := range tests {
		if got := fileStem(tt.path); got != tt.want {
			t.Errorf("fileStem(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestRunChartWritten(t *testing.T) {
	logger = zap.NewNop()
	chartKind = "written"
	chartSVG = false

	output := captureOutput(t, func() {
		if err := runChart(&cobra.Command{}, []string{"MR sc sc inc sc sc inc"}); err != nil {
			t.Errorf("runChart returned error: %v", err)
		}
	})
	if !strings.Contains(output, `"written"`) {
		t.Fatalf("expected written chart JSON, got: %s", output)
	}
}

func TestRunChartSymbolSVG(t *testing.T) {
	logger = zap.NewNop()
	chartKind = "symbol"
	chartSVG = true

	output := captureOutput(t, func() {
		if err := runChart(&cobra.Command{}, []string{"MR sc sc inc"}); err != nil {
			t.Errorf("runChart returned error: %v", err)
		}
	})
	if !strings.Contains(output, "<svg") {
		t.Fatalf("expected SVG output, got: %s", output)
	}
}

func TestRunChartSVGRequiresSymbolKind(t *testing.T) {
	logger = zap.NewNop()
	chartKind = "graph"
	chartSVG = true

	if err := runChart(&cobra.Command{}, []string{"sc sc sc"}); err == nil {
		t.Fatal("expected error for --svg with non-symbol kind")
	}
}

func TestRunChartUnknownKind(t *testing.T) {
	logger = zap.NewNop()
	chartKind = "hologram"
	chartSVG = false

	if err := runChart(&cobra.Command{}, []string{"sc sc sc"}); err == nil {
		t.Fatal("expected error for unknown chart kind")
	}
}

func TestRunEstimate(t *testing.T) {
	logger = zap.NewNop()
	configPath = ""
	estWeight = 4
	estSkill = "intermediate"
	estPrice = 4.99
	estWaste = 0

	output := captureOutput(t, func() {
		if err := runEstimate(&cobra.Command{}, []string{"MR sc sc inc sc sc inc join"}); err != nil {
			t.Errorf("runEstimate returned error: %v", err)
		}
	})
	for _, want := range []string{"stitches", "skeins:", "cost:", "time:"} {
		if !strings.Contains(output, want) {
			t.Errorf("estimate output missing %q: %s", want, output)
		}
	}
}

// writeTestAssembly builds a small valid assembly file and returns its path.
func writeTestAssembly(t *testing.T) string {
	t.Helper()
	s := engine.New(engine.Config{Name: "bear", Tier: tier.Pro})
	for _, name := range []string{"body", "head"} {
		if _, err := s.AddPiece(assembly.NewPiece("", name, name)); err != nil {
			t.Fatalf("AddPiece(%s): %v", name, err)
		}
	}
	data, err := s.ToSafeData()
	if err != nil {
		t.Fatalf("ToSafeData: %v", err)
	}
	path := filepath.Join(t.TempDir(), "bear.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRunValidate(t *testing.T) {
	logger = zap.NewNop()
	path := writeTestAssembly(t)

	output := captureOutput(t, func() {
		if err := runValidate(&cobra.Command{}, []string{path}); err != nil {
			t.Errorf("runValidate returned error: %v", err)
		}
	})
	if !strings.Contains(output, "ok") {
		t.Fatalf("expected ok summary, got: %s", output)
	}
}

func TestRunValidateRejectsGarbage(t *testing.T) {
	logger = zap.NewNop()
	path := filepath.Join(t.TempDir(), "broken.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := runValidate(&cobra.Command{}, []string{path}); err == nil {
		t.Fatal("expected error for unparseable file")
	}
}

func TestRunInstructionsMarkdown(t *testing.T) {
	logger = zap.NewNop()
	docFormat = "markdown"
	path := writeTestAssembly(t)

	output := captureOutput(t, func() {
		if err := runInstructions(&cobra.Command{}, []string{path}); err != nil {
			t.Errorf("runInstructions returned error: %v", err)
		}
	})
	if !strings.Contains(output, "bear") {
		t.Fatalf("expected instructions to mention the assembly, got: %s", output)
	}
}

func TestRunScript(t *testing.T) {
	logger = zap.NewNop()
	configPath = ""
	scriptTier = "studio"

	dir := t.TempDir()
	src := filepath.Join(dir, "bear.zy")
	script := `
(design "bear"
  (piece "body" :type "body" :pattern "MR sc sc sc sc sc sc")
  (piece "head" :type "head")
  (point "neck-joint" :on "body" :compatible (list "universal"))
  (point "neck" :on "head" :compatible (list "universal"))
  (attach :from "body" :from-point "neck-joint" :to "head" :to-point "neck"))
`
	if err := os.WriteFile(src, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	scriptOut = filepath.Join(dir, "bear.json")

	captureOutput(t, func() {
		if err := runScript(&cobra.Command{}, []string{src}); err != nil {
			t.Errorf("runScript returned error: %v", err)
		}
	})

	data, err := os.ReadFile(scriptOut)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	env, err := codec.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal output: %v", err)
	}
	if env.Name != "bear" || len(env.Pieces) != 2 || len(env.Connections) != 1 {
		t.Fatalf("output = %q with %d pieces, %d connections",
			env.Name, len(env.Pieces), len(env.Connections))
	}
}

func TestRunRecoverCleanFile(t *testing.T) {
	logger = zap.NewNop()
	configPath = ""
	recoverCleanSlate = false
	path := writeTestAssembly(t)
	recoverOut = filepath.Join(t.TempDir(), "recovered.json")

	output := captureOutput(t, func() {
		if err := runRecover(&cobra.Command{}, []string{path}); err != nil {
			t.Errorf("runRecover returned error: %v", err)
		}
	})
	if !strings.Contains(output, "original") {
		t.Fatalf("expected original-strategy summary, got: %s", output)
	}

	data, err := os.ReadFile(recoverOut)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	env, err := codec.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal output: %v", err)
	}
	if len(env.Pieces) != 2 {
		t.Fatalf("recovered %d pieces, want 2", len(env.Pieces))
	}
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	origOut := os.Stdout
	origErr := os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, rOut)
		_, _ = io.Copy(&buf, rErr)
		done <- buf.String()
	}()

	fn()

	_ = wOut.Close()
	_ = wErr.Close()
	os.Stdout = origOut
	os.Stderr = origErr
	return <-done
}
