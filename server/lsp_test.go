package server

import (
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"
)

// ---------------------------------------------------------------------------
// Text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractPrefix(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"mnemonic", "  ld", protocol.Position{Line: 0, Character: 4}, "ld"},
		{"operand", "jmp lo", protocol.Position{Line: 0, Character: 6}, "lo"},
		{"after comma", "cpy r0,r1", protocol.Position{Line: 0, Character: 9}, "r1"},
		{"empty line", "", protocol.Position{Line: 0, Character: 0}, ""},
		{"multi line", "nop\n  hl", protocol.Position{Line: 1, Character: 4}, "hl"},
		{"cursor at start", "hlt", protocol.Position{Line: 0, Character: 0}, ""},
		{"line beyond document", "nop", protocol.Position{Line: 5, Character: 0}, ""},
		{"crlf", "nop\r\n  ldi", protocol.Position{Line: 1, Character: 20}, "ldi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractPrefix(tt.text, tt.pos); got != tt.want {
				t.Errorf("extractPrefix = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractWord(t *testing.T) {
	tests := []struct {
		name string
		text string
		pos  protocol.Position
		want string
	}{
		{"middle", "jmp loop", protocol.Position{Line: 0, Character: 6}, "loop"},
		{"label definition skips dot", ".loop", protocol.Position{Line: 0, Character: 2}, "loop"},
		{"on dot", ".loop", protocol.Position{Line: 0, Character: 1}, "loop"},
		{"whitespace", "nop   hlt", protocol.Position{Line: 0, Character: 4}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractWord(tt.text, tt.pos); got != tt.want {
				t.Errorf("extractWord = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestDiagnose_Clean(t *testing.T) {
	if diags := diagnose(countdown); len(diags) != 0 {
		t.Errorf("diagnostics = %+v, want none", diags)
	}
}

func TestDiagnose_Positions(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		line      protocol.UInteger
		character protocol.UInteger
		length    protocol.UInteger
		code      string
	}{
		{"unknown opcode", "nop\n  frob r0", 1, 2, 4, "unknown opcode"},
		{"undefined label", "jmp missing", 0, 4, 7, "undefined label"},
		{"duplicate label", ".a\nnop\n.a", 2, 0, 2, "duplicate label"},
		{"bad register", "ldi r99, 1", 0, 4, 3, "malformed operand"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := diagnose(tt.text)
			if len(diags) != 1 {
				t.Fatalf("got %d diagnostics, want 1", len(diags))
			}
			d := diags[0]
			if d.Range.Start.Line != tt.line || d.Range.Start.Character != tt.character {
				t.Errorf("start = %+v, want %d:%d", d.Range.Start, tt.line, tt.character)
			}
			if got := d.Range.End.Character - d.Range.Start.Character; got != tt.length {
				t.Errorf("range length = %d, want %d", got, tt.length)
			}
			if d.Code == nil || d.Code.Value != tt.code {
				t.Errorf("code = %v, want %q", d.Code, tt.code)
			}
			if d.Severity == nil || *d.Severity != protocol.DiagnosticSeverityError {
				t.Error("severity should be error")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Language features
// ---------------------------------------------------------------------------

const labelled = ".start\n  ldi r0, 1\n  jmp start\n  je end\n.end\n  hlt"

func TestDefinition(t *testing.T) {
	uri := protocol.DocumentUri("file:///prog.asm")

	loc := definition(uri, labelled, "end")
	if loc == nil {
		t.Fatal("definition of end not found")
	}
	if loc.URI != uri {
		t.Errorf("uri = %q", loc.URI)
	}
	want := protocol.Range{
		Start: protocol.Position{Line: 4, Character: 0},
		End:   protocol.Position{Line: 4, Character: 4},
	}
	if loc.Range != want {
		t.Errorf("range = %+v, want %+v", loc.Range, want)
	}

	if definition(uri, labelled, "nowhere") != nil {
		t.Error("undefined label should have no definition")
	}
	if definition(uri, labelled, "ldi") != nil {
		t.Error("mnemonic should have no definition")
	}
}

func TestReferences(t *testing.T) {
	uri := protocol.DocumentUri("file:///prog.asm")

	refs := references(uri, labelled, "start", false)
	if len(refs) != 1 {
		t.Fatalf("got %d references, want 1", len(refs))
	}
	if refs[0].Range.Start != (protocol.Position{Line: 2, Character: 6}) {
		t.Errorf("reference at %+v", refs[0].Range.Start)
	}

	if got := references(uri, labelled, "start", true); len(got) != 2 {
		t.Errorf("with declaration: got %d, want 2", len(got))
	}
	if got := references(uri, labelled, "r0", true); len(got) != 0 {
		t.Errorf("registers are not label references: %+v", got)
	}
}

func TestComplete(t *testing.T) {
	items := complete(labelled+"\n  jmp st", protocol.Position{Line: 6, Character: 8})
	labels := completionLabels(items)
	if !labels["start"] {
		t.Errorf("expected label completion, got %v", labels)
	}
	if labels["end"] || labels["LDI"] {
		t.Errorf("prefix filter not applied: %v", labels)
	}

	items = complete("  ld", protocol.Position{Line: 0, Character: 4})
	labels = completionLabels(items)
	for _, want := range []string{"LDI", "LD", "LDR"} {
		if !labels[want] {
			t.Errorf("missing %s in %v", want, labels)
		}
	}

	items = complete("cpy r", protocol.Position{Line: 0, Character: 5})
	labels = completionLabels(items)
	if !labels["r0"] || !labels["r15"] {
		t.Errorf("missing registers in %v", labels)
	}
}

func completionLabels(items []protocol.CompletionItem) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it.Label] = true
	}
	return out
}

func TestHover(t *testing.T) {
	h := hover(labelled, "ldi")
	if h == nil {
		t.Fatal("no hover for ldi")
	}
	text := h.Contents.(protocol.MarkupContent).Value
	for _, want := range []string{"**LDI**", "`0x06`", "reg, imm64", "10 bytes"} {
		if !strings.Contains(text, want) {
			t.Errorf("hover %q missing %q", text, want)
		}
	}

	h = hover(labelled, "end")
	if h == nil {
		t.Fatal("no hover for label")
	}
	text = h.Contents.(protocol.MarkupContent).Value
	if !strings.Contains(text, "line 5") || !strings.Contains(text, "0x0014") {
		t.Errorf("label hover = %q", text)
	}

	if hover(labelled, "bogus") != nil {
		t.Error("unknown word should have no hover")
	}
}
