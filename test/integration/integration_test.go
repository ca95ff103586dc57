package integration_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/wayuto/alum/compiler"
	"github.com/wayuto/alum/pkg/bytecode"
)

// scenario is one end-to-end case from testdata/*.yaml.
type scenario struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
	Input  string `yaml:"input"`
	Strict bool   `yaml:"strict"`

	Output string  `yaml:"output"`
	Result *string `yaml:"result"`
	Error  string  `yaml:"error"`
}

type scenarioFile struct {
	Scenarios []scenario `yaml:"scenarios"`
}

func loadScenarios(t *testing.T) map[string][]scenario {
	t.Helper()
	paths, err := filepath.Glob(filepath.Join("testdata", "*.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) == 0 {
		t.Fatal("no scenario files in testdata")
	}

	files := make(map[string][]scenario)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		var f scenarioFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if len(f.Scenarios) == 0 {
			t.Fatalf("%s: no scenarios", path)
		}
		files[strings.TrimSuffix(filepath.Base(path), ".yaml")] = f.Scenarios
	}
	return files
}

// outcome is everything observable about one run.
type outcome struct {
	output string
	result string
	err    error
}

// execute runs source through the whole toolchain: parse, optionally fold,
// compile, round-trip through the artifact encoding, and run.
func execute(sc scenario, optimize bool) outcome {
	var out bytes.Buffer
	prog, err := compiler.Parse(sc.Source)
	if err != nil {
		return outcome{err: err}
	}
	if optimize {
		prog = compiler.Optimize(prog)
	}
	chunk, maxSlot, err := bytecode.NewCompiler(bytecode.Options{Strict: sc.Strict}).Compile(prog)
	if err != nil {
		return outcome{err: err}
	}

	data, err := bytecode.MarshalArtifact(bytecode.NewArtifact(chunk, maxSlot))
	if err != nil {
		return outcome{err: err}
	}
	art, err := bytecode.UnmarshalArtifact(data)
	if err != nil {
		return outcome{err: err}
	}

	m := bytecode.NewMachine(art.Chunk(), art.MaxSlot,
		bytecode.WithInput(strings.NewReader(sc.Input)),
		bytecode.WithOutput(&out))
	result, err := m.Run()
	return outcome{output: out.String(), result: result.String(), err: err}
}

func TestScenarios(t *testing.T) {
	for file, scenarios := range loadScenarios(t) {
		for _, sc := range scenarios {
			for _, optimize := range []bool{true, false} {
				name := file + "/" + sc.Name
				if !optimize {
					name += "/no-opt"
				}
				t.Run(name, func(t *testing.T) {
					got := execute(sc, optimize)

					switch {
					case sc.Error == "" && got.err != nil:
						t.Fatalf("unexpected error: %v", got.err)
					case sc.Error != "" && got.err == nil:
						t.Fatalf("expected error containing %q, run succeeded with output %q", sc.Error, got.output)
					case sc.Error != "" && !strings.Contains(got.err.Error(), sc.Error):
						t.Fatalf("error = %q, want it to contain %q", got.err, sc.Error)
					}

					if got.output != sc.Output {
						t.Errorf("output = %q, want %q", got.output, sc.Output)
					}
					if sc.Result != nil && got.result != *sc.Result {
						t.Errorf("result = %s, want %s", got.result, *sc.Result)
					}
				})
			}
		}
	}
}

// Folding must never change what a program prints.
func TestOptimizerPreservesBehavior(t *testing.T) {
	for _, scenarios := range loadScenarios(t) {
		for _, sc := range scenarios {
			folded, plain := execute(sc, true), execute(sc, false)
			if folded.output != plain.output || folded.result != plain.result {
				t.Errorf("%s: optimized run (%q, %s) differs from plain run (%q, %s)",
					sc.Name, folded.output, folded.result, plain.output, plain.result)
			}
			if (folded.err == nil) != (plain.err == nil) {
				t.Errorf("%s: optimized error %v, plain error %v", sc.Name, folded.err, plain.err)
			}
		}
	}
}
