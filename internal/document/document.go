// Package document defines the typed document tree produced by the
// transformer and consumed by the bulk queue.
//
// A Document is a mapping from string keys to JSON-compatible values plus a
// fixed set of reserved metadata keys. Metadata is stripped from the
// payload and redirected into the bulk envelope at render time.
package document

import (
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Reserved metadata keys. These are stamped by the transformer and
// stripped from the payload before a document is rendered into a bulk
// record.
const (
	MetaIndex = "_index"
	MetaType  = "_type"
	MetaID    = "_id"
	MetaEpoch = "_epoch"
	MetaRaw   = "_raw"
	MetaPath  = "_path"
)

var reservedKeys = map[string]bool{
	MetaIndex: true,
	MetaType:  true,
	MetaID:    true,
	MetaEpoch: true,
	MetaRaw:   true,
	MetaPath:  true,
}

// IsReserved reports whether key is one of the reserved metadata keys.
func IsReserved(key string) bool {
	return reservedKeys[key]
}

// Document is a mutable, dynamically-typed key/value tree. Nested paths
// are addressed with gjson/sjson dotted-path syntax so extract and mutate
// stages can target `into`-style nested fields without a hand-rolled path
// walker.
type Document struct {
	raw []byte
}

// New returns an empty document.
func New() *Document {
	return &Document{raw: []byte("{}")}
}

// FromJSON builds a document from an already-encoded JSON object.
func FromJSON(b []byte) *Document {
	if len(b) == 0 {
		return New()
	}
	return &Document{raw: b}
}

// Bytes returns the document's current JSON encoding.
func (d *Document) Bytes() []byte {
	if d == nil || len(d.raw) == 0 {
		return []byte("{}")
	}
	return d.raw
}

// Empty reports whether the document has no fields at all.
func (d *Document) Empty() bool {
	if d == nil {
		return true
	}
	result := gjson.ParseBytes(d.raw)
	empty := true
	result.ForEach(func(_, _ gjson.Result) bool {
		empty = false
		return false
	})
	return empty
}

// Get returns the raw gjson.Result at path. Missing fields decode to a
// zero-value Result whose Exists() is false.
func (d *Document) Get(path string) gjson.Result {
	if d == nil {
		return gjson.Result{}
	}
	return gjson.GetBytes(d.raw, path)
}

// GetString returns the string value at path and whether it exists and is
// a string.
func (d *Document) GetString(path string) (string, bool) {
	r := d.Get(path)
	if !r.Exists() || r.Type != gjson.String {
		return "", false
	}
	return r.String(), true
}

// Has reports whether path exists in the document.
func (d *Document) Has(path string) bool {
	return d.Get(path).Exists()
}

// Set assigns value at path, creating intermediate objects as needed.
func (d *Document) Set(path string, value interface{}) {
	raw := d.Bytes()
	out, err := sjson.SetBytes(raw, path, value)
	if err != nil {
		return
	}
	d.raw = out
}

// SetRaw assigns a pre-encoded JSON value at path (used when copying a
// nested object/array verbatim rather than re-encoding it).
func (d *Document) SetRaw(path string, rawValue string) {
	raw := d.Bytes()
	out, err := sjson.SetRawBytes(raw, path, []byte(rawValue))
	if err != nil {
		return
	}
	d.raw = out
}

// Delete removes path from the document. A no-op if the path is absent.
func (d *Document) Delete(path string) {
	if d == nil || !d.Has(path) {
		return
	}
	out, err := sjson.DeleteBytes(d.raw, path)
	if err != nil {
		return
	}
	d.raw = out
}

// Merge copies every top-level key of other into d, overwriting existing
// keys. Used by decoders that merge left-to-right.
func (d *Document) Merge(other *Document) {
	if other == nil {
		return
	}
	result := gjson.ParseBytes(other.Bytes())
	result.ForEach(func(key, value gjson.Result) bool {
		d.SetRaw(key.String(), value.Raw)
		return true
	})
}

// Replace discards d's current content and adopts other's.
func (d *Document) Replace(other *Document) {
	if other == nil {
		d.raw = []byte("{}")
		return
	}
	d.raw = append([]byte(nil), other.Bytes()...)
}

// Keys returns the document's top-level field names.
func (d *Document) Keys() []string {
	var keys []string
	result := gjson.ParseBytes(d.Bytes())
	result.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return keys
}

// Epoch resolves the _epoch metadata field, if present, to a time.Time;
// otherwise it returns now.
func (d *Document) Epoch(now time.Time) time.Time {
	r := d.Get(MetaEpoch)
	if !r.Exists() {
		return now
	}
	switch r.Type {
	case gjson.Number:
		sec := int64(r.Num)
		return time.Unix(sec, 0)
	case gjson.String:
		if t, err := time.Parse(time.RFC3339, r.String()); err == nil {
			return t
		}
	}
	return now
}

// Stripped returns a copy of the document's JSON encoding with every
// reserved metadata key removed. Used when rendering the bulk body: the
// payload must never carry _index/_type/_id/_epoch.
func (d *Document) Stripped() []byte {
	raw := append([]byte(nil), d.Bytes()...)
	var err error
	for key := range reservedKeys {
		if gjson.GetBytes(raw, key).Exists() {
			raw, err = sjson.DeleteBytes(raw, key)
			if err != nil {
				break
			}
		}
	}
	return raw
}
