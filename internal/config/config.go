// Package config decodes the YAML tail-configuration file (spec §6) into
// the structures the indexer and transformer consume. Loading the file
// from disk and merging CLI flags is the external CLI's job; this
// package only defines the shape and defaults.
package config

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Extractor is one entry of a tail instruction's extract stage.
type Extractor struct {
	By         string            `yaml:"by"`
	From       string            `yaml:"from,omitempty"`
	When       string            `yaml:"when,omitempty"`
	SplitOn    string            `yaml:"split_on,omitempty"`
	SplitParts []string          `yaml:"split_parts,omitempty"`
	Into       string            `yaml:"into,omitempty"`
}

// Mutators holds the mutate stage configuration for one tail instruction.
type Mutators struct {
	Copy   map[string]interface{} `yaml:"copy,omitempty"`
	Rename map[string]string      `yaml:"rename,omitempty"`
	Remove []string               `yaml:"remove,omitempty"`
	Append map[string]interface{} `yaml:"append,omitempty"`
	Prune  bool                   `yaml:"prune,omitempty"`
}

// TailInstruction is one entry of the `tail:` list: a source file plus its
// decode/extract/mutate pipeline and optional index/type overrides.
type TailInstruction struct {
	File     string      `yaml:"file"`
	Interval float64     `yaml:"interval"`
	Index    string      `yaml:"index,omitempty"`
	Type     string      `yaml:"type,omitempty"`
	Decode   []string    `yaml:"decode,omitempty"`
	Extract  []Extractor `yaml:"extract,omitempty"`
	Mutate   Mutators    `yaml:"mutate,omitempty"`
}

// PollInterval returns the configured poll interval, defaulting to one
// second when unset.
func (t TailInstruction) PollInterval() time.Duration {
	if t.Interval <= 0 {
		return time.Second
	}
	return time.Duration(t.Interval * float64(time.Second))
}

// ElasticsearchConfig is the `elasticsearch:` block of the YAML file.
type ElasticsearchConfig struct {
	Servers        []string `yaml:"servers"`
	Timeout        float64  `yaml:"timeout"`
	FlushInterval  float64  `yaml:"flush_interval"`
	FlushSize      int      `yaml:"flush_size"`
	Index          string   `yaml:"index"`
	Type           string   `yaml:"type"`
	BatchDir       string   `yaml:"batch_dir,omitempty"`
	BatchDiskSpace int64    `yaml:"batch_disk_space,omitempty"`
}

// File is the top-level decoded YAML document (spec §6).
type File struct {
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Tail          []TailInstruction   `yaml:"tail"`
}

// Load parses raw YAML bytes into a File. Returns a config error (fatal
// at startup per spec §7) if the YAML is malformed or there are no tail
// instructions at all.
func Load(raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errors.Wrap(err, "parsing tail configuration")
	}
	if len(f.Tail) == 0 {
		return nil, errors.New("no tailable inputs configured")
	}
	return &f, nil
}

// IndexerConfig is the resolved, defaulted, jittered configuration handed
// to the indexer session (spec §3 "Indexer Config").
type IndexerConfig struct {
	FlushInterval   time.Duration
	FlushSize       int
	DefaultIndex    string
	DefaultType     string
	BatchDir        string
	BatchDiskSpace  int64 // 0 means unbounded
	Servers         []string
	Timeout         time.Duration
	StatsInterval   time.Duration
	DynamicTemplates []DynamicTemplate
}

// DynamicTemplate is one entry the dispatcher should ensure exists on the
// cluster before ingestion begins (spec §4.D "Dynamic templates").
type DynamicTemplate struct {
	Name string
	Body []byte
}

const (
	defaultFlushInterval = 30 * time.Second
	defaultFlushSize     = 500
	defaultIndexPattern  = "logs-%Y.%m.%d"
	defaultType          = "log"
	defaultTimeout       = 10 * time.Second
	defaultStatsInterval = 60 * time.Second
	minJitter            = 1.00
	maxJitter            = 1.45
)

// FromFile builds a fully-defaulted, jittered IndexerConfig from a parsed
// YAML File and a fallback batch directory (supplied by the CLI when the
// YAML's own `elasticsearch.batch_dir` is unset).
func FromFile(f *File, defaultBatchDir string) IndexerConfig {
	cfg := IndexerConfig{
		FlushInterval:    durationOrDefault(f.Elasticsearch.FlushInterval, defaultFlushInterval),
		FlushSize:        intOrDefault(f.Elasticsearch.FlushSize, defaultFlushSize),
		DefaultIndex:     stringOrDefault(f.Elasticsearch.Index, defaultIndexPattern),
		DefaultType:      stringOrDefault(f.Elasticsearch.Type, defaultType),
		BatchDir:         stringOrDefault(f.Elasticsearch.BatchDir, defaultBatchDir),
		BatchDiskSpace:   f.Elasticsearch.BatchDiskSpace,
		Servers:          f.Elasticsearch.Servers,
		Timeout:          durationOrDefault(f.Elasticsearch.Timeout, defaultTimeout),
		StatsInterval:    defaultStatsInterval,
	}
	return ApplyJitter(cfg, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// ApplyJitter multiplies FlushSize and FlushInterval by a uniform random
// factor in [1.00, 1.45) to desynchronize co-deployed instances (spec
// §4.C, §9). Exposed separately from FromFile so tests can supply a seeded
// rand.Rand for deterministic assertions.
func ApplyJitter(cfg IndexerConfig, r *rand.Rand) IndexerConfig {
	factor := minJitter + r.Float64()*(maxJitter-minJitter)
	cfg.FlushSize = int(float64(cfg.FlushSize) * factor)
	cfg.FlushInterval = time.Duration(float64(cfg.FlushInterval) * factor)
	return cfg
}

func durationOrDefault(seconds float64, d time.Duration) time.Duration {
	if seconds <= 0 {
		return d
	}
	return time.Duration(seconds * float64(time.Second))
}

func intOrDefault(v, d int) int {
	if v <= 0 {
		return d
	}
	return v
}

func stringOrDefault(v, d string) string {
	if v == "" {
		return d
	}
	return v
}
