package server

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf16"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/tapevm/compiler"
)

const lspName = "tape-lsp"

// LspServer publishes lex and parse diagnostics for tape programs and
// describes the command under the cursor.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server.
func NewLSP() *LspServer {
	s := &LspServer{
		docs:    make(map[string]string),
		version: "0.1.0",
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentHover:      s.textDocumentHover,
		TextDocumentFormatting: s.textDocumentFormatting,
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
	commonlog.NewInfoMessage(0, "tape LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.HoverProvider = true
	capabilities.DocumentFormattingProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
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
	uri := params.TextDocument.URI
	text := params.TextDocument.Text

	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()

	s.publishDiagnostics(ctx, uri, text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.mu.Lock()
			s.docs[string(uri)] = whole.Text
			s.mu.Unlock()

			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
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

// --- Language features ---

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return hover(text, params.Position), nil
}

func (s *LspServer) textDocumentFormatting(ctx *glsp.Context, params *protocol.DocumentFormattingParams) ([]protocol.TextEdit, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return format(text), nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnose(text),
	})
}

// --- Document analysis ---

// diagnose compiles text and turns a failure into a single diagnostic
// anchored at the offending character.
func diagnose(text string) []protocol.Diagnostic {
	_, err := compiler.Compile(text)
	if err == nil {
		return []protocol.Diagnostic{}
	}

	offset := 0
	var lexErr *compiler.LexError
	var parseErr *compiler.ParseError
	switch {
	case errors.As(err, &lexErr):
		// Everything before the first occurrence is valid, so it is the
		// character the lexer stopped on.
		offset = strings.IndexRune(text, lexErr.Char)
	case errors.As(err, &parseErr):
		offset = unbalancedBracket(text, parseErr.Kind)
	}
	if offset < 0 {
		offset = 0
	}

	start := positionAt(text, offset)
	end := start
	if offset < len(text) {
		end.Character++
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	return []protocol.Diagnostic{{
		Range:    protocol.Range{Start: start, End: end},
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}}
}

// unbalancedBracket returns the byte offset of the first stray ']' or of the
// innermost '[' left open at end of input.
func unbalancedBracket(text string, kind compiler.ParseErrorKind) int {
	var open []int
	for i, r := range text {
		switch r {
		case '[':
			open = append(open, i)
		case ']':
			if len(open) == 0 {
				if kind == compiler.Mismatched {
					return i
				}
				continue
			}
			open = open[:len(open)-1]
		}
	}
	if kind == compiler.Unclosed && len(open) > 0 {
		return open[len(open)-1]
	}
	return 0
}

// positionAt converts a byte offset into an LSP position (UTF-16 columns).
func positionAt(text string, offset int) protocol.Position {
	var line, col protocol.UInteger
	for i, r := range text {
		if i >= offset {
			break
		}
		if r == '\n' {
			line++
			col = 0
			continue
		}
		col += protocol.UInteger(utf16.RuneLen(r))
	}
	return protocol.Position{Line: line, Character: col}
}

var commandDocs = map[rune]string{
	'>': "move the pointer to the next cell (wraps to the first cell)",
	'<': "move the pointer to the previous cell (wraps to the last cell)",
	'+': "increment the current cell (255 wraps to 0)",
	'-': "decrement the current cell (0 wraps to 255)",
	'.': "write the current cell as one output byte",
	',': "read one input byte into the current cell (0 at end of input)",
	'[': "start a loop: skip to the matching `]` if the current cell is 0",
	']': "end a loop: repeat the body while the current cell is not 0",
}

// hover describes the command character under the cursor.
func hover(text string, pos protocol.Position) *protocol.Hover {
	r, ok := commandAt(text, pos)
	if !ok {
		return nil
	}
	doc, ok := commandDocs[r]
	if !ok {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: fmt.Sprintf("`%c` %s", r, doc),
		},
	}
}

// commandAt returns the character at pos, or the one just before it when
// the cursor sits after a command. pos.Character counts UTF-16 code units.
func commandAt(text string, pos protocol.Position) (rune, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return 0, false
	}
	line := []rune(lines[pos.Line])
	col := runeIndex(line, int(pos.Character))
	if col < len(line) && compiler.IsCommandChar(line[col]) {
		return line[col], true
	}
	if col > 0 && col-1 < len(line) && compiler.IsCommandChar(line[col-1]) {
		return line[col-1], true
	}
	return 0, false
}

// runeIndex converts a UTF-16 column into an index into line.
func runeIndex(line []rune, units int) int {
	i, n := 0, 0
	for i < len(line) && n < units {
		n += utf16.RuneLen(line[i])
		i++
	}
	return i
}

// format replaces the document with its canonical rendering. Documents that
// do not compile are left alone.
func format(text string) []protocol.TextEdit {
	prog, err := compiler.Compile(text)
	if err != nil {
		return nil
	}
	canonical := prog.String() + "\n"
	if canonical == text {
		return []protocol.TextEdit{}
	}
	return []protocol.TextEdit{{
		Range: protocol.Range{
			Start: protocol.Position{Line: 0, Character: 0},
			End:   positionAt(text, len(text)),
		},
		NewText: canonical,
	}}
}

func boolPtr(b bool) *bool {
	return &b
}
