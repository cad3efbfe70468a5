package transform

import (
	"encoding/json"
	"strings"

	"github.com/elastic/file-to-elasticsearch/internal/document"
)

// decodeJSON locates the first '{' in the line and decodes the object
// starting there, merging the result into doc. A decode failure simply
// skips this decoder rather than aborting the whole line (spec §4.B).
//
// The original source indexed the brace with its arguments swapped
// (`index('{', $line)` instead of `index($line, '{')`) and so never found
// it; spec §9 calls this out explicitly and directs implementers to fix
// it. This searches the line for the byte, not the other way around.
func decodeJSON(line string, doc *document.Document) {
	idx := strings.IndexByte(line, '{')
	if idx < 0 {
		return
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(line[idx:]), &m); err != nil {
		return
	}
	encoded, err := json.Marshal(m)
	if err != nil {
		return
	}
	doc.Merge(document.FromJSON(encoded))
}

// decodeSyslog parses the line as an RFC3164-flavoured syslog message into
// a flat key/value map, replacing (not merging into) the prior document
// (spec §4.B). Grounded on the free-form token/key=value extraction style
// of _examples/other_examples/b3fb5fae_ChristianF88-cidrx__cidrx-src-logparser-parser.go.go,
// adapted here to the specific fixed syslog header shape rather than a
// generic grammar, since no syslog-parsing library appears in the
// retrieval pack.
func decodeSyslog(line string, doc *document.Document) {
	fields := parseSyslog(line)
	if len(fields) == 0 {
		return
	}
	fresh := document.New()
	for k, v := range fields {
		fresh.Set(k, v)
	}
	doc.Replace(fresh)
}

// runDecoders applies the ordered decoder list, merging results
// left-to-right into a single growing document.
func runDecoders(decoders []string, line string) *document.Document {
	doc := document.New()
	for _, name := range decoders {
		switch name {
		case "json":
			decodeJSON(line, doc)
		case "syslog":
			decodeSyslog(line, doc)
		}
	}
	return doc
}
