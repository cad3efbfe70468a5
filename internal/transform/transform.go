// Package transform implements the Transformer (spec §4.B): per tailed
// file, it decodes a raw line into a partial document, runs the extract
// and mutate stages, stamps reserved metadata, and emits at most one
// finished document. A line that produces no fields after decode+extract
// is dropped silently: Transform reports the drop through its boolean
// result, and no count of dropped lines is kept.
package transform

import (
	"github.com/elastic/file-to-elasticsearch/internal/config"
	"github.com/elastic/file-to-elasticsearch/internal/document"
)

// Pipeline holds the per-file instruction a Transform call applies.
type Pipeline struct {
	instr config.TailInstruction
	path  string
}

// New builds a Pipeline bound to one tail instruction and the file path
// it reads from (used to stamp _path).
func New(instr config.TailInstruction, path string) *Pipeline {
	return &Pipeline{instr: instr, path: path}
}

// Transform runs the full decode -> extract -> mutate -> stamp pipeline
// on one line. It returns (doc, true) if a document was produced, or
// (nil, false) if the line was dropped (spec §4.B contract: nothing to
// emit if the document is still empty after decode+extract).
func (p *Pipeline) Transform(line string) (*document.Document, bool) {
	doc := runDecoders(p.instr.Decode, line)
	runExtractors(p.instr.Extract, line, doc)

	if doc.Empty() {
		return nil, false
	}

	// _raw/_path are stamped before the mutate stage runs, so prune/remove
	// can affect them, per spec §4.B's explicit ordering note.
	doc.Set(document.MetaRaw, line)
	doc.Set(document.MetaPath, p.path)

	runMutators(p.instr.Mutate, doc)

	if p.instr.Index != "" {
		doc.Set(document.MetaIndex, p.instr.Index)
	}
	if p.instr.Type != "" {
		doc.Set(document.MetaType, p.instr.Type)
	}

	return doc, true
}
