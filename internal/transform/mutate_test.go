package transform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elastic/file-to-elasticsearch/internal/config"
	"github.com/elastic/file-to-elasticsearch/internal/document"
)

func newDoc(t *testing.T, json string) *document.Document {
	t.Helper()
	return document.FromJSON([]byte(json))
}

func TestRunMutatorsAppliesInFixedOrder(t *testing.T) {
	doc := newDoc(t, `{"a":"1","tmp":""}`)
	m := config.Mutators{
		Copy:   map[string]interface{}{"a": "b"},
		Rename: map[string]string{"a": "renamed"},
		Remove: []string{"tmp"},
		Append: map[string]interface{}{"stamped": true},
		Prune:  true,
	}
	runMutators(m, doc)

	// copy ran before rename moved "a" away, so "b" still got the value.
	require.Equal(t, "1", doc.Get("b").String())
	require.False(t, doc.Has("a"))
	require.Equal(t, "1", doc.Get("renamed").String())
	require.False(t, doc.Has("tmp"))
	require.True(t, doc.Get("stamped").Bool())
}

func TestApplyCopyToMultipleDestinations(t *testing.T) {
	doc := newDoc(t, `{"src":"v"}`)
	applyCopy(map[string]interface{}{"src": []interface{}{"d1", "d2"}}, doc)
	require.Equal(t, "v", doc.Get("d1").String())
	require.Equal(t, "v", doc.Get("d2").String())
}

func TestApplyCopyPreservesNestedStructures(t *testing.T) {
	doc := newDoc(t, `{"src":{"nested":1}}`)
	applyCopy(map[string]interface{}{"src": "dst"}, doc)
	require.True(t, doc.Get("dst").IsObject())
	require.EqualValues(t, 1, doc.Get("dst.nested").Int())
}

func TestApplyCopyOfMissingSourceIsNoOp(t *testing.T) {
	doc := document.New()
	applyCopy(map[string]interface{}{"missing": "dst"}, doc)
	require.False(t, doc.Has("dst"))
}

func TestApplyRenameMovesAndDeletes(t *testing.T) {
	doc := newDoc(t, `{"old":"v"}`)
	applyRename(map[string]string{"old": "new"}, doc)
	require.False(t, doc.Has("old"))
	require.Equal(t, "v", doc.Get("new").String())
}

func TestApplyPruneRemovesEmptyStringsOnly(t *testing.T) {
	doc := newDoc(t, `{"empty":"","zero":0,"present":"x"}`)
	applyPrune(doc)
	require.False(t, doc.Has("empty"))
	require.True(t, doc.Has("zero"))
	require.True(t, doc.Has("present"))
}
