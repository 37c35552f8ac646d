package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/chazu/artvm/assembler"
	"github.com/chazu/artvm/pkg/bytecode"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "artvm-lsp"

// LspServer provides editor features for assembly source.
type LspServer struct {
	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new assembly language server.
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

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
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
	commonlog.NewInfoMessage(0, "artvm LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}

	capabilities.CompletionProvider = &protocol.CompletionOptions{}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

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

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) document(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	return complete(text, params.Position), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.document(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return hover(text, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	if loc := definition(uri, text, word); loc != nil {
		return *loc, nil
	}
	return nil, nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.document(uri)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return references(uri, text, word, params.Context.IncludeDeclaration), nil
}

// --- Source analysis ---

// labelIndex records label definitions and references found by lexing a
// document. Lexing never stops at errors, so the index is available even
// while the document does not assemble.
type labelIndex struct {
	defs map[string]assembler.Position
	refs map[string][]assembler.Position
}

func indexLabels(text string) labelIndex {
	idx := labelIndex{
		defs: make(map[string]assembler.Position),
		refs: make(map[string][]assembler.Position),
	}
	lineStart := true
	for _, tok := range assembler.NewLexer(text).Tokenize() {
		switch tok.Type {
		case assembler.TokenLabel:
			if _, dup := idx.defs[tok.Literal]; !dup {
				idx.defs[tok.Literal] = tok.Pos
			}
		case assembler.TokenIdentifier:
			// The first identifier on a line is the mnemonic.
			if !lineStart && !assembler.IsRegister(tok.Literal) {
				idx.refs[tok.Literal] = append(idx.refs[tok.Literal], tok.Pos)
			}
		}
		lineStart = tok.Type == assembler.TokenNewline || tok.Type == assembler.TokenLabel
	}
	return idx
}

func (idx labelIndex) names() []string {
	names := make([]string, 0, len(idx.defs))
	for name := range idx.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func complete(text string, pos protocol.Position) []protocol.CompletionItem {
	prefix := strings.ToLower(extractPrefix(text, pos))

	var items []protocol.CompletionItem
	add := func(label, detail string, kind protocol.CompletionItemKind) {
		if prefix != "" && !strings.HasPrefix(strings.ToLower(label), prefix) {
			return
		}
		k := kind
		d := detail
		insert := label
		items = append(items, protocol.CompletionItem{
			Label:      label,
			Kind:       &k,
			Detail:     &d,
			InsertText: &insert,
		})
	}

	for _, op := range bytecode.AllOpcodes() {
		info := bytecode.GetOpcodeInfo(op)
		add(info.Name, signature(op), protocol.CompletionItemKindKeyword)
		if info.Alias != "" {
			add(info.Alias, signature(op), protocol.CompletionItemKindKeyword)
		}
	}
	for i := 0; i < bytecode.NumRegisters; i++ {
		add(fmt.Sprintf("r%d", i), "register", protocol.CompletionItemKindVariable)
	}
	idx := indexLabels(text)
	for _, name := range idx.names() {
		add(name, fmt.Sprintf("label (line %d)", idx.defs[name].Line), protocol.CompletionItemKindReference)
	}

	return items
}

// signature renders an opcode's operand layout, e.g. "LDI reg, imm64".
func signature(op bytecode.Opcode) string {
	info := bytecode.GetOpcodeInfo(op)
	kinds := make([]string, 0, info.Arity)
	for i := 0; i < info.Arity; i++ {
		kinds = append(kinds, info.Operands[i].String())
	}
	if len(kinds) == 0 {
		return info.Name
	}
	return info.Name + " " + strings.Join(kinds, ", ")
}

func hover(text, word string) *protocol.Hover {
	var b strings.Builder

	if op, ok := bytecode.LookupMnemonic(strings.ToUpper(word)); ok {
		info := bytecode.GetOpcodeInfo(op)
		fmt.Fprintf(&b, "**%s** `0x%02X`\n\n", info.Name, byte(op))
		fmt.Fprintf(&b, "`%s`\n\n", signature(op))
		fmt.Fprintf(&b, "%d bytes", info.Size)
		if info.Alias != "" {
			fmt.Fprintf(&b, " · alias `%s`", info.Alias)
		}
	} else if pos, ok := indexLabels(text).defs[word]; ok {
		fmt.Fprintf(&b, "**.%s**\n\nDefined on line %d", word, pos.Line)
		if prog, err := assembler.Assemble(text); err == nil {
			fmt.Fprintf(&b, " at offset `0x%04X`", prog.Labels[word])
		}
	} else if assembler.IsRegister(word) {
		fmt.Fprintf(&b, "register **%s**", strings.ToUpper(word))
	} else {
		return nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: b.String(),
		},
	}
}

func definition(uri protocol.DocumentUri, text, word string) *protocol.Location {
	pos, ok := indexLabels(text).defs[word]
	if !ok {
		return nil
	}
	// The label token starts at the '.'; the name follows it.
	loc := location(uri, pos, len(word)+1)
	return &loc
}

func references(uri protocol.DocumentUri, text, word string, includeDecl bool) []protocol.Location {
	idx := indexLabels(text)
	var locations []protocol.Location
	if pos, ok := idx.defs[word]; ok && includeDecl {
		locations = append(locations, location(uri, pos, len(word)+1))
	}
	for _, pos := range idx.refs[word] {
		locations = append(locations, location(uri, pos, len(word)))
	}
	return locations
}

func location(uri protocol.DocumentUri, pos assembler.Position, length int) protocol.Location {
	start := toLSP(pos)
	end := start
	end.Character += protocol.UInteger(length)
	return protocol.Location{URI: uri, Range: protocol.Range{Start: start, End: end}}
}

// toLSP converts a 1-based assembler position to a 0-based LSP position.
func toLSP(pos assembler.Position) protocol.Position {
	p := protocol.Position{}
	if pos.Line > 0 {
		p.Line = protocol.UInteger(pos.Line - 1)
	}
	if pos.Column > 0 {
		p.Character = protocol.UInteger(pos.Column - 1)
	}
	return p
}

// --- Diagnostics ---

// diagnose assembles text and converts a failure into a diagnostic at the
// error's source position.
func diagnose(text string) []protocol.Diagnostic {
	_, err := assembler.Assemble(text)
	if err == nil {
		return []protocol.Diagnostic{}
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	diag := protocol.Diagnostic{
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}

	var asmErr *assembler.Error
	if errors.As(err, &asmErr) {
		start := toLSP(asmErr.Pos)
		end := start
		end.Character += protocol.UInteger(tokenLength(text, asmErr.Pos))
		diag.Range = protocol.Range{Start: start, End: end}
		diag.Code = &protocol.IntegerOrString{Value: asmErr.Kind.String()}
		diag.Message = asmErr.Detail
		if diag.Message == "" {
			diag.Message = asmErr.Kind.String()
		}
	}
	return []protocol.Diagnostic{diag}
}

// tokenLength returns the length of the run of non-space characters at pos,
// or 1 when there is none.
func tokenLength(text string, pos assembler.Position) int {
	if pos.Offset < 0 || pos.Offset >= len(text) {
		return 1
	}
	n := 0
	for _, r := range text[pos.Offset:] {
		if unicode.IsSpace(r) || r == ',' {
			break
		}
		n++
	}
	if n == 0 {
		return 1
	}
	return n
}

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := diagnose(text)
	log.Debugf("%s: %d diagnostics", uri, len(diagnostics))
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// --- Text extraction helpers ---

// extractPrefix returns the word fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && isWordByte(line[start-1]) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor. A leading '.'
// of a label definition is not part of the word.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}

	start := col
	for start > 0 && isWordByte(line[start-1]) {
		start--
	}
	end := col
	for end < len(line) && isWordByte(line[end]) {
		end++
	}
	return line[start:end]
}

func lineAt(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := strings.TrimSuffix(lines[pos.Line], "\r")
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

func isWordByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func boolPtr(b bool) *bool {
	return &b
}
