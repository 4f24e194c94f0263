// Package assembler builds the context block forwarded to the chat model
// from a ranked list of retrieved documents.
package assembler

import (
	"strings"

	"github.com/54b3r/docqa-go/internal/rag"
)

// separator joins consecutive document blocks.
const separator = "\n\n"

// Assembler formats ranked documents as "<name>: <text>" blocks in ranking
// order. The zero value applies no size limit.
type Assembler struct {
	// MaxChars bounds the assembled context length in bytes. Documents are
	// dropped from the tail until the result fits. Zero means unlimited.
	MaxChars int
}

// Report describes how an Assemble call treated its input.
type Report struct {
	// Kept is the number of leading documents included in the context.
	Kept int
	// Dropped is the number of trailing documents omitted to stay within MaxChars.
	Dropped int
	// Chars is the length of the assembled context.
	Chars int
}

// New returns an Assembler with the given limit. Negative values are treated as 0.
func New(maxChars int) *Assembler {
	if maxChars < 0 {
		maxChars = 0
	}
	return &Assembler{MaxChars: maxChars}
}

// Assemble returns the context block for docs. An empty input yields "".
func (a *Assembler) Assemble(docs []rag.DocumentRef) string {
	text, _ := a.AssembleWithReport(docs)
	return text
}

// AssembleWithReport is Assemble plus counts of kept and dropped documents.
// A document is either included whole or not at all, and a lower-ranked
// document is never included after a higher-ranked one was dropped. When even
// the top document exceeds MaxChars the result is empty and every document is
// reported as dropped.
func (a *Assembler) AssembleWithReport(docs []rag.DocumentRef) (string, Report) {
	if len(docs) == 0 {
		return "", Report{}
	}

	limit := 0
	if a != nil {
		limit = a.MaxChars
	}

	var b strings.Builder
	kept := 0
	for _, d := range docs {
		block := d.Name + ": " + d.Text
		extra := len(block)
		if kept > 0 {
			extra += len(separator)
		}
		if limit > 0 && b.Len()+extra > limit {
			break
		}
		if kept > 0 {
			b.WriteString(separator)
		}
		b.WriteString(block)
		kept++
	}

	return b.String(), Report{Kept: kept, Dropped: len(docs) - kept, Chars: b.Len()}
}
