package transform

import (
	"regexp"
	"strings"
	"sync"

	"github.com/elastic/file-to-elasticsearch/internal/config"
	"github.com/elastic/file-to-elasticsearch/internal/document"
)

var whenCache = newRegexCache()
var splitCache = newRegexCache()

// regexCache avoids recompiling the same `when`/`split_on` pattern for
// every line of a high-volume file. Safe for concurrent use since
// multiple tailed files are processed on independent goroutines.
type regexCache struct {
	mu    sync.Mutex
	cache map[string]*regexp.Regexp
}

func newRegexCache() *regexCache {
	return &regexCache{cache: make(map[string]*regexp.Regexp)}
}

func (c *regexCache) get(pattern string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.cache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.cache[pattern] = re
	return re, nil
}

// runExtractors applies the ordered extract list to doc, using line as
// the fallback source (spec §4.B extract stage).
func runExtractors(extractors []config.Extractor, line string, doc *document.Document) {
	for _, ex := range extractors {
		applyExtractor(ex, line, doc)
	}
}

func applyExtractor(ex config.Extractor, line string, doc *document.Document) {
	source := line
	if ex.From != "" {
		v, ok := doc.GetString(ex.From)
		if !ok {
			return
		}
		source = v
	}
	if ex.When != "" {
		re, err := whenCache.get(ex.When)
		if err != nil || !re.MatchString(source) {
			return
		}
	}
	switch ex.By {
	case "split":
		applySplit(ex, source, doc)
	case "regex":
		// Reserved for future use; accepted and ignored without error
		// per spec §4.B.
	}
}

func applySplit(ex config.Extractor, source string, doc *document.Document) {
	if ex.SplitOn == "" {
		return
	}
	re, err := splitCache.get(ex.SplitOn)
	if err != nil {
		return
	}
	parts := re.Split(source, -1)

	if len(ex.SplitParts) > 0 {
		for i, name := range ex.SplitParts {
			if i >= len(parts) {
				break
			}
			if isNullName(name) {
				continue
			}
			part := parts[i]
			if part == "" {
				continue
			}
			if ex.Into != "" {
				doc.Set(ex.Into+"."+name, part)
			} else {
				doc.Set(name, part)
			}
		}
		return
	}

	target := ex.Into
	if target == "" {
		target = ex.From
	}
	if target == "" {
		return
	}
	if len(parts) == 1 {
		doc.Set(target, parts[0])
		return
	}
	values := make([]interface{}, len(parts))
	for i, p := range parts {
		values[i] = p
	}
	doc.Set(target, values)
}

func isNullName(name string) bool {
	lower := strings.ToLower(name)
	return lower == "null" || lower == "undef"
}
