package server

import (
	"errors"
	"fmt"
	"strings"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/wayuto/alum/compiler"
	"github.com/wayuto/alum/pkg/ast"
	"github.com/wayuto/alum/pkg/bytecode"
)

// document is the analysis of one open text document.
type document struct {
	text        string
	expanded    bool // imports were spliced in, so positions do not map to text
	symbols     []symbol
	diagnostics []protocol.Diagnostic
}

// symbol is a name declared in the document.
type symbol struct {
	name   string
	kind   protocol.CompletionItemKind
	detail string
	pos    ast.Position
}

func (d *document) lookup(name string) (symbol, bool) {
	for _, sym := range d.symbols {
		if sym.name == name {
			return sym, true
		}
	}
	return symbol{}, false
}

// analyze runs the front end and compiler over text. The first error stops
// the pipeline; compile warnings are reported alongside it.
func (s *LspServer) analyze(uri protocol.DocumentUri, text string) *document {
	doc := &document{text: text, diagnostics: []protocol.Diagnostic{}}

	src, err := s.pre.ProcessSource(docPath(uri), text)
	if err != nil {
		doc.addError(ast.Position{}, "", err.Error())
		return doc
	}
	doc.expanded = src != text

	prog, err := compiler.Parse(src)
	if err != nil {
		var se *compiler.SyntaxError
		if errors.As(err, &se) {
			doc.addError(se.Pos, "", se.Msg)
		} else {
			doc.addError(ast.Position{}, "", err.Error())
		}
		return doc
	}
	doc.symbols = collectSymbols(prog)

	c := bytecode.NewCompiler(bytecode.Options{Strict: s.opts.Strict})
	_, _, err = c.Compile(compiler.Optimize(prog))
	for _, w := range c.Warnings() {
		doc.add(protocol.DiagnosticSeverityWarning, w.Pos, "", w.Msg)
	}
	if err != nil {
		var ce *bytecode.CompileError
		if errors.As(err, &ce) {
			doc.addError(ce.Pos, ce.Name, ce.Kind.Label()+": "+ce.Msg)
		} else {
			doc.addError(ast.Position{}, "", err.Error())
		}
	}
	return doc
}

func (d *document) addError(pos ast.Position, word, msg string) {
	d.add(protocol.DiagnosticSeverityError, pos, word, msg)
}

func (d *document) add(severity protocol.DiagnosticSeverity, pos ast.Position, word, msg string) {
	// Positions past the document's own text come from imported files.
	if d.expanded {
		pos = ast.Position{}
	}
	source := lspName
	d.diagnostics = append(d.diagnostics, protocol.Diagnostic{
		Range:    wordRange(pos, word),
		Severity: &severity,
		Source:   &source,
		Message:  msg,
	})
}

// collectSymbols lists declared routines, parameters and variables. The
// first declaration of a name wins.
func collectSymbols(prog *ast.Program) []symbol {
	var syms []symbol
	seen := make(map[string]bool)
	add := func(sym symbol) {
		if !seen[sym.name] {
			seen[sym.name] = true
			syms = append(syms, sym)
		}
	}

	for _, n := range prog.Body {
		ast.Walk(n, func(e ast.Expr) bool {
			switch e := e.(type) {
			case *ast.FuncDecl:
				add(symbol{
					name:   e.Name,
					kind:   protocol.CompletionItemKindFunction,
					detail: fmt.Sprintf("fun %s(%s)", e.Name, strings.Join(e.Params, ", ")),
					pos:    e.Pos,
				})
				for _, p := range e.Params {
					add(symbol{
						name:   p,
						kind:   protocol.CompletionItemKindVariable,
						detail: fmt.Sprintf("%s (parameter of %s)", p, e.Name),
					})
				}
			case *ast.VarDecl:
				add(symbol{name: e.Name, kind: protocol.CompletionItemKindVariable, detail: "let " + e.Name, pos: e.Pos})
			case *ast.In:
				add(symbol{name: e.Name, kind: protocol.CompletionItemKindVariable, detail: "in " + e.Name, pos: e.Pos})
			case *ast.Label:
				add(symbol{name: e.Name, kind: protocol.CompletionItemKindReference, detail: e.Name + ":", pos: e.Pos})
			}
			return true
		})
	}
	return syms
}
