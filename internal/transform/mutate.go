package transform

import (
	"github.com/tidwall/gjson"

	"github.com/elastic/file-to-elasticsearch/internal/config"
	"github.com/elastic/file-to-elasticsearch/internal/document"
)

// runMutators applies the fixed-order mutate stage (spec §4.B):
// copy, rename, remove, append, prune.
func runMutators(m config.Mutators, doc *document.Document) {
	applyCopy(m.Copy, doc)
	applyRename(m.Rename, doc)
	applyRemove(m.Remove, doc)
	applyAppend(m.Append, doc)
	if m.Prune {
		applyPrune(doc)
	}
}

func applyCopy(copy map[string]interface{}, doc *document.Document) {
	for src, dst := range copy {
		val := doc.Get(src)
		switch targets := dst.(type) {
		case []interface{}:
			for _, t := range targets {
				name, ok := t.(string)
				if !ok {
					continue
				}
				copyOne(doc, src, name, val.Exists())
			}
		case string:
			copyOne(doc, src, targets, val.Exists())
		}
	}
}

func copyOne(doc *document.Document, src, dst string, exists bool) {
	if !exists {
		return
	}
	v := doc.Get(src)
	if v.IsArray() || v.IsObject() {
		doc.SetRaw(dst, v.Raw)
	} else {
		doc.Set(dst, v.Value())
	}
}

func applyRename(rename map[string]string, doc *document.Document) {
	for from, to := range rename {
		v := doc.Get(from)
		if !v.Exists() {
			continue
		}
		if v.IsArray() || v.IsObject() {
			doc.SetRaw(to, v.Raw)
		} else {
			doc.Set(to, v.Value())
		}
		doc.Delete(from)
	}
}

func applyRemove(keys []string, doc *document.Document) {
	for _, k := range keys {
		doc.Delete(k)
	}
}

func applyAppend(kv map[string]interface{}, doc *document.Document) {
	for k, v := range kv {
		doc.Set(k, v)
	}
}

func applyPrune(doc *document.Document) {
	for _, key := range doc.Keys() {
		v := doc.Get(key)
		if !v.Exists() || (v.Type == gjson.String && v.Str == "") {
			doc.Delete(key)
		}
	}
}
