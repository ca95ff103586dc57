// Package preprocess expands $import directives in Alum source files.
//
// A directive is a '$' immediately followed by the word "import", optional
// whitespace and a double-quoted path. It is replaced by the preprocessed
// contents of the named file. Any other '$' is copied through unchanged.
package preprocess

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("alum.preprocess")

const directive = "import"

// CycleError reports a file that imports itself, directly or indirectly.
// Chain lists the files from the first occurrence back to the repeat.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return "import cycle: " + strings.Join(e.Chain, " -> ")
}

// Preprocessor resolves imports against a file system. Paths are
// slash-separated and relative to the root of the file system, as io/fs
// requires.
type Preprocessor struct {
	fsys fs.FS
	dirs []string
}

// New creates a preprocessor reading from fsys. Imports that do not exist
// relative to the importing file are looked up in searchDirs, in order.
func New(fsys fs.FS, searchDirs ...string) *Preprocessor {
	dirs := make([]string, 0, len(searchDirs))
	for _, d := range searchDirs {
		dirs = append(dirs, path.Clean(d))
	}
	return &Preprocessor{fsys: fsys, dirs: dirs}
}

// Process reads name and returns its expanded text.
func (p *Preprocessor) Process(name string) (string, error) {
	name = path.Clean(name)
	data, err := fs.ReadFile(p.fsys, name)
	if err != nil {
		return "", fmt.Errorf("preprocess: %w", err)
	}
	return p.expand(name, string(data), nil)
}

// ProcessSource expands src as if it had been read from name. Imports are
// resolved relative to name, which need not exist.
func (p *Preprocessor) ProcessSource(name, src string) (string, error) {
	return p.expand(path.Clean(name), src, nil)
}

func (p *Preprocessor) expand(name, src string, stack []string) (string, error) {
	stack = append(stack, name)

	var out strings.Builder
	for {
		i := strings.IndexByte(src, '$')
		if i < 0 {
			out.WriteString(src)
			return out.String(), nil
		}
		out.WriteString(src[:i])
		src = src[i:]

		target, n, ok := parseDirective(src)
		if !ok {
			out.WriteByte('$')
			src = src[1:]
			continue
		}
		src = src[n:]

		resolved, err := p.resolve(name, target)
		if err != nil {
			return "", err
		}
		for j, s := range stack {
			if s == resolved {
				chain := append(append([]string{}, stack[j:]...), resolved)
				return "", &CycleError{Chain: chain}
			}
		}

		log.Debugf("%s: importing %s", name, resolved)
		data, err := fs.ReadFile(p.fsys, resolved)
		if err != nil {
			return "", fmt.Errorf("%s: import %q: %w", name, target, err)
		}
		text, err := p.expand(resolved, string(data), stack)
		if err != nil {
			return "", err
		}
		out.WriteString(text)
	}
}

// resolve finds target relative to the importing file, then in the search
// directories. When nothing exists the importer-relative path is returned
// so the read reports it.
func (p *Preprocessor) resolve(importer, target string) (string, error) {
	if strings.HasPrefix(target, "/") {
		return "", fmt.Errorf("%s: import %q: path must be relative", importer, target)
	}
	candidates := []string{path.Join(path.Dir(importer), target)}
	for _, d := range p.dirs {
		candidates = append(candidates, path.Join(d, target))
	}

	for _, c := range candidates {
		if !fs.ValidPath(c) {
			continue
		}
		if _, err := fs.Stat(p.fsys, c); err == nil {
			return c, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%s: import %q: %w", importer, target, err)
		}
	}

	if !fs.ValidPath(candidates[0]) {
		return "", fmt.Errorf("%s: import %q: path leaves the source root", importer, target)
	}
	return candidates[0], nil
}

// parseDirective matches `$import "path"` at the start of s and returns the
// path and the number of bytes consumed.
func parseDirective(s string) (string, int, bool) {
	i := 1
	if !strings.HasPrefix(s[i:], directive) {
		return "", 0, false
	}
	i += len(directive)
	if i < len(s) && isWordByte(s[i]) {
		return "", 0, false
	}
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	if i >= len(s) || s[i] != '"' {
		return "", 0, false
	}
	end := strings.IndexByte(s[i+1:], '"')
	if end < 0 {
		return "", 0, false
	}
	target := s[i+1 : i+1+end]
	if target == "" {
		return "", 0, false
	}
	return target, i + 1 + end + 1, true
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}
