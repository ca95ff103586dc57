package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/wayuto/alum/cache"
	"github.com/wayuto/alum/compiler"
	"github.com/wayuto/alum/manifest"
	"github.com/wayuto/alum/pkg/ast"
	"github.com/wayuto/alum/pkg/bytecode"
	"github.com/wayuto/alum/pkg/value"
	"github.com/wayuto/alum/preprocess"
)

const (
	artifactExt = ".alumc"
	treeExt     = ".json"
)

type options struct {
	file        string
	printSource bool
	printAST    bool
	disassemble bool
	output      string
	noOpt       bool
	strict      bool
	trace       bool
}

// settings are the flags merged over the manifest.
type settings struct {
	optimize bool
	strict   bool
	trace    bool
	cache    bool
}

func resolveSettings(o options, m *manifest.Manifest) settings {
	return settings{
		optimize: m.Compiler.Optimize && !o.noOpt,
		strict:   m.Compiler.Strict || o.strict,
		trace:    m.Runtime.Trace || o.trace,
		cache:    m.Cache.Enabled,
	}
}

// execute loads, compiles and runs o.file, returning the exit code.
func execute(o options, stdin io.Reader, stdout io.Writer) (int, error) {
	startDir := "."
	if o.file != "" {
		startDir = filepath.Dir(o.file)
	}
	m, err := manifest.FindAndLoad(startDir)
	if err != nil {
		return 1, err
	}
	if m == nil {
		m = manifest.Default()
	}
	if o.file == "" {
		if m.Dir == "" {
			return 1, errors.New("no input file and no alum.toml found")
		}
		o.file = m.EntryPath()
	}

	s := resolveSettings(o, m)
	if s.trace {
		commonlog.SetMaxLevel(commonlog.Debug, "alum", "vm")
	}

	art, err := load(o, m, s, stdout)
	if err != nil {
		return 1, fmt.Errorf("%s: %w", o.file, err)
	}
	if art == nil {
		return 0, nil
	}

	if o.disassemble {
		fmt.Fprint(stdout, art.Chunk().DisassembleWithName(filepath.Base(o.file)))
	}
	if o.output != "" {
		if err := writeArtifact(o.output, art); err != nil {
			return 1, err
		}
		log.Infof("wrote %s", o.output)
	}
	if o.disassemble || o.output != "" {
		return 0, nil
	}

	machine := bytecode.NewMachine(art.Chunk(), art.MaxSlot,
		bytecode.WithInput(stdin),
		bytecode.WithOutput(stdout),
		bytecode.WithTrace(s.trace))
	result, err := machine.Run()
	if err != nil {
		return 1, fmt.Errorf("%s: %w", o.file, err)
	}
	return exitStatus(result), nil
}

// exitStatus maps a program result onto a process exit code. Numbers are
// truncated; values the OS cannot report (negative, NaN or infinite)
// become 1 and anything above 255 becomes 255.
func exitStatus(result value.Literal) int {
	if !result.IsNumber() {
		return 0
	}
	n := math.Trunc(result.Num)
	switch {
	case math.IsNaN(n), math.IsInf(n, 0), n < 0:
		return 1
	case n > 255:
		return 255
	}
	return int(n)
}

// load produces the artifact for o.file. A nil artifact means the request
// was fully served by printing.
func load(o options, m *manifest.Manifest, s settings, stdout io.Writer) (*bytecode.Artifact, error) {
	if strings.HasSuffix(o.file, artifactExt) {
		if o.printSource || o.printAST {
			return nil, errors.New("-p and -a need Alum source input")
		}
		return readArtifact(o.file)
	}

	var prog *ast.Program
	if strings.HasSuffix(o.file, treeExt) {
		if o.printSource {
			return nil, errors.New("-p needs Alum source input")
		}
		data, err := os.ReadFile(o.file)
		if err != nil {
			return nil, err
		}
		if prog, err = ast.Parse(bytes.NewReader(data)); err != nil {
			return nil, err
		}
	} else {
		src, err := readSource(o.file, m)
		if err != nil {
			return nil, err
		}
		if o.printSource {
			fmt.Fprint(stdout, src)
		}
		if prog, err = compiler.Parse(src); err != nil {
			return nil, err
		}
	}

	// Folding for -a rewrites prog, so the key is taken first.
	var key string
	if s.cache {
		key = cache.Key(prog, cache.Options{Optimize: s.optimize, Strict: s.strict})
	}

	if o.printAST {
		shown := prog
		if s.optimize {
			shown = compiler.Optimize(prog)
		}
		data, err := ast.Marshal(shown)
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(stdout, "%s\n", data)
	}
	if (o.printSource || o.printAST) && !o.disassemble && o.output == "" {
		return nil, nil
	}

	return compileProgram(prog, key, m, s)
}

// readSource preprocesses file. Imports resolve inside the project
// directory when there is a manifest, else inside the file's directory.
func readSource(file string, m *manifest.Manifest) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}
	root := filepath.Dir(abs)
	if m.Dir != "" {
		root = m.Dir
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		root, rel = filepath.Dir(abs), filepath.Base(abs)
	}

	var dirs []string
	for _, d := range m.SourceDirPaths() {
		r, err := filepath.Rel(root, d)
		if err != nil || strings.HasPrefix(r, "..") {
			log.Warningf("ignoring source dir %s outside %s", d, root)
			continue
		}
		dirs = append(dirs, filepath.ToSlash(r))
	}

	return preprocess.New(os.DirFS(root), dirs...).Process(filepath.ToSlash(rel))
}

// compileProgram compiles prog, going through the artifact cache under key
// when the manifest enables it. Cache failures only cost the cache.
func compileProgram(prog *ast.Program, key string, m *manifest.Manifest, s settings) (*bytecode.Artifact, error) {
	var store *cache.Store
	if s.cache {
		var err error
		if store, err = cache.Open(m.CachePath()); err != nil {
			log.Warningf("cache disabled: %s", err)
			store = nil
		} else {
			defer store.Close()
			if a, ok, err := store.Get(key); err != nil {
				log.Warningf("cache lookup failed: %s", err)
			} else if ok {
				log.Infof("using cached artifact %s", key[:12])
				return a, nil
			}
		}
	}

	if s.optimize {
		prog = compiler.Optimize(prog)
	}
	chunk, maxSlot, err := bytecode.NewCompiler(bytecode.Options{Strict: s.strict}).Compile(prog)
	if err != nil {
		return nil, err
	}
	art := bytecode.NewArtifact(chunk, maxSlot)

	if store != nil {
		if err := store.Put(key, art); err != nil {
			log.Warningf("cache store failed: %s", err)
		}
	}
	return art, nil
}

func readArtifact(path string) (*bytecode.Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return bytecode.UnmarshalArtifact(data)
}

func writeArtifact(path string, art *bytecode.Artifact) error {
	data, err := bytecode.MarshalArtifact(art)
	if err != nil {
		return fmt.Errorf("encoding artifact: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	return nil
}
