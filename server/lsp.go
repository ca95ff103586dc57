// Package server implements the Alum language server.
package server

import (
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/wayuto/alum/compiler"
	"github.com/wayuto/alum/pkg/ast"
	"github.com/wayuto/alum/preprocess"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "alum-lsp"

var lspLog = commonlog.GetLogger("alum.lsp")

// Options configure document analysis.
type Options struct {
	// FS resolves $import paths. Nil means the host file system, rooted
	// at "/".
	FS fs.FS
	// SearchDirs are FS paths searched for imports after the importing
	// file's own directory.
	SearchDirs []string
	// Strict makes label and goto compile errors instead of warnings.
	Strict  bool
	Version string
}

// LspServer publishes diagnostics and answers completion, hover and
// definition requests for open Alum documents.
type LspServer struct {
	opts Options
	pre  *preprocess.Preprocessor

	mu   sync.Mutex
	docs map[string]*document // URI → latest analysis

	handler protocol.Handler
	server  *glspserver.Server
}

// NewLSP creates a new LSP server.
func NewLSP(opts Options) *LspServer {
	if opts.FS == nil {
		opts.FS = os.DirFS("/")
	}
	if opts.Version == "" {
		opts.Version = "0.1.0"
	}
	s := &LspServer{
		opts: opts,
		pre:  preprocess.New(opts.FS, opts.SearchDirs...),
		docs: make(map[string]*document),
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)

	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	lspLog.Info("Alum LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.opts.Version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.update(ctx, params.TextDocument.URI, params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	if text, ok := fullText(params.ContentChanges); ok {
		s.update(ctx, params.TextDocument.URI, text)
	}
	return nil
}

// fullText returns the newest whole-document change. Full sync is the
// only mode advertised, so incremental events are ignored.
func fullText(changes []any) (string, bool) {
	for i := len(changes) - 1; i >= 0; i-- {
		if whole, ok := changes[i].(protocol.TextDocumentContentChangeEventWhole); ok {
			return whole.Text, true
		}
	}
	return "", false
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	// Clear diagnostics for the closed document
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

// update re-analyzes a document and publishes its diagnostics.
func (s *LspServer) update(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	doc := s.analyze(uri, text)

	s.mu.Lock()
	s.docs[string(uri)] = doc
	s.mu.Unlock()

	lspLog.Debugf("%s: %d diagnostics", uri, len(doc.diagnostics))
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: doc.diagnostics,
	})
}

func (s *LspServer) document(uri protocol.DocumentUri) (*document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[string(uri)]
	return doc, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	prefix := extractPrefix(doc.text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return complete(doc, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}
	return hover(doc, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	doc, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}

	word := extractWord(doc.text, params.Position)
	if word == "" {
		return nil, nil
	}

	// Positions in an expanded document point into imported text.
	if doc.expanded {
		return nil, nil
	}
	sym, ok := doc.lookup(word)
	if !ok || !sym.pos.Known() {
		return nil, nil
	}
	return protocol.Location{
		URI:   params.TextDocument.URI,
		Range: wordRange(sym.pos, sym.name),
	}, nil
}

func complete(doc *document, prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	seen := make(map[string]bool)

	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if seen[label] || !strings.HasPrefix(label, prefix) {
			return
		}
		seen[label] = true
		labelCopy := label
		detailCopy := detail
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &kind,
			Detail:     &detailCopy,
			InsertText: &labelCopy,
		})
	}

	for _, sym := range doc.symbols {
		add(sym.name, sym.kind, sym.detail)
	}

	// Identifiers that only appear in text that does not parse yet
	for _, tok := range compiler.Tokenize(doc.text) {
		if tok.Type == compiler.TokenIdentifier {
			add(tok.Literal, protocol.CompletionItemKindVariable, "identifier")
		}
	}

	for kw := range compiler.Keywords {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })

	// Limit results
	const maxItems = 100
	if len(items) > maxItems {
		items = items[:maxItems]
	}

	return items
}

func hover(doc *document, word string) *protocol.Hover {
	var value string
	if sym, ok := doc.lookup(word); ok {
		value = fmt.Sprintf("```alum\n%s\n```", sym.detail)
		if sym.pos.Known() && !doc.expanded {
			value += fmt.Sprintf("\n\nDeclared on line %d", sym.pos.Line)
		}
	} else if _, ok := compiler.Keywords[word]; ok {
		value = fmt.Sprintf("**%s** (keyword)", word)
	} else {
		return nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
	}
}

// --- Document paths ---

// docPath maps a document URI to a path in the server's file system.
// Documents without a file URI resolve imports from the root.
func docPath(uri protocol.DocumentUri) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return "untitled.alum"
	}
	p := strings.TrimPrefix(path.Clean(u.Path), "/")
	if p == "" || p == "." {
		return "untitled.alum"
	}
	return p
}

// --- Cursor helpers ---

func isIdentRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

// identSpan finds the identifier touching pos on its line. It returns the
// line and the byte offsets of the identifier's start, the cursor and the
// identifier's end; start == end when there is none.
func identSpan(text string, pos protocol.Position) (line string, start, cursor, end int) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, 0, 0
	}
	line = lines[pos.Line]
	cursor = min(int(pos.Character), len(line))

	start, end = cursor, cursor
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}
	for end < len(line) && isIdentRune(rune(line[end])) {
		end++
	}
	return line, start, cursor, end
}

// extractPrefix returns the part of the identifier left of the cursor.
func extractPrefix(text string, pos protocol.Position) string {
	line, start, cursor, _ := identSpan(text, pos)
	return line[start:cursor]
}

// extractWord returns the whole identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, start, _, end := identSpan(text, pos)
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}

// wordRange converts a 1-based source position to an LSP range covering
// word. Unknown positions map to the start of the document.
func wordRange(pos ast.Position, word string) protocol.Range {
	if !pos.Known() {
		return protocol.Range{}
	}
	start := protocol.Position{Line: protocol.UInteger(pos.Line - 1), Character: protocol.UInteger(max(pos.Column-1, 0))}
	end := start
	end.Character += protocol.UInteger(max(len(word), 1))
	return protocol.Range{Start: start, End: end}
}
