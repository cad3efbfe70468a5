package transform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elastic/file-to-elasticsearch/internal/config"
	"github.com/elastic/file-to-elasticsearch/internal/document"
)

func TestTransformDropsEmptyDocuments(t *testing.T) {
	p := New(config.TailInstruction{}, "/var/log/app.log")
	_, ok := p.Transform("line with nothing decodable")
	require.False(t, ok)
}

func TestTransformStampsRawAndPathBeforeMutate(t *testing.T) {
	instr := config.TailInstruction{
		Decode: []string{"json"},
		Mutate: config.Mutators{Remove: []string{document.MetaRaw}},
	}
	p := New(instr, "/var/log/app.log")
	doc, ok := p.Transform(`{"a":1}`)
	require.True(t, ok)
	// mutate's "remove" ran after the stamp, so _raw was actually removable.
	require.False(t, doc.Has(document.MetaRaw))
	path, _ := doc.GetString(document.MetaPath)
	require.Equal(t, "/var/log/app.log", path)
}

func TestTransformAppliesIndexAndTypeOverrides(t *testing.T) {
	instr := config.TailInstruction{
		Decode: []string{"json"},
		Index:  "custom-index",
		Type:   "custom-type",
	}
	p := New(instr, "/var/log/app.log")
	doc, ok := p.Transform(`{"a":1}`)
	require.True(t, ok)

	idx, _ := doc.GetString(document.MetaIndex)
	require.Equal(t, "custom-index", idx)
	typ, _ := doc.GetString(document.MetaType)
	require.Equal(t, "custom-type", typ)
}

func TestTransformFullPipeline(t *testing.T) {
	instr := config.TailInstruction{
		Decode: []string{"json"},
		Extract: []config.Extractor{
			{By: "split", From: "path", SplitOn: "/", Into: "segments"},
		},
		Mutate: config.Mutators{
			Rename: map[string]string{"msg": "message"},
		},
	}
	p := New(instr, "/var/log/app.log")
	doc, ok := p.Transform(`{"path":"a/b/c","msg":"hi"}`)
	require.True(t, ok)

	require.Equal(t, "c", doc.Get("segments.2").String())
	m, _ := doc.GetString("message")
	require.Equal(t, "hi", m)
	require.False(t, doc.Has("msg"))
}
