// Package cache persists the aggregated mission for the presentation layer.
package cache

import (
	"bytes"
	"crypto/md5"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/MikeSquared-Agency/debrief/internal/mission"
)

const (
	Version  = "1.0"
	DataFile = "aggregated-cache.json"
	MetaFile = "cache-meta.json"
)

//go:embed schema/aggregated-cache.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("aggregated-cache.schema.json", schemaJSON)
	})
	return schema, schemaErr
}

// Document is the content of aggregated-cache.json.
type Document struct {
	Version      string          `json:"version"`
	Generated    int64           `json:"generated"`
	GeneratedISO string          `json:"generatedIso"`
	FileCount    int             `json:"fileCount"`
	Files        []string        `json:"files"`
	Failures     []Failure       `json:"failures"`
	Mission      Mission         `json:"mission"`
	Metrics      mission.Metrics `json:"metrics"`
}

type Mission struct {
	Name      string                  `json:"name"`
	StartTime float64                 `json:"startTime"`
	Duration  float64                 `json:"duration"`
	Events    []mission.MergedEvent   `json:"events"`
	Links     []mission.Link          `json:"links"`
	Sources   []mission.SourceSummary `json:"sources"`
}

// Failure is a recording that could not be ingested.
type Failure struct {
	Index int    `json:"index"` // 1-based position in the run's file list
	File  string `json:"file"`
	Error string `json:"error"`
}

// FileHash identifies the version of an input recording.
type FileHash struct {
	Hash     string `json:"hash"`
	Size     int64  `json:"size"`
	Modified int64  `json:"modified"`
}

// Meta is the content of cache-meta.json.
type Meta struct {
	Version    string              `json:"version"`
	Generated  int64               `json:"generated"`
	FileHashes map[string]FileHash `json:"fileHashes"`
}

// Writer writes the cache files into Dir.
type Writer struct {
	Dir string
	now func() time.Time
}

func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir, now: time.Now}
}

// Write stores the mission and the hashes of every discovered input file.
// Files that failed ingestion are still listed and hashed so a changed file
// invalidates the cache.
func (w *Writer) Write(m *mission.AggregatedMission, files []string, failures []Failure) (Document, error) {
	now := w.now()

	hashes := make(map[string]FileHash, len(files))
	names := make([]string, 0, len(files))
	for _, f := range files {
		h, err := HashFile(f)
		if err != nil {
			return Document{}, err
		}
		hashes[filepath.Base(f)] = h
		names = append(names, filepath.Base(f))
	}
	if failures == nil {
		failures = []Failure{}
	}
	events, links, sources := m.Events, m.Links, m.Sources
	if events == nil {
		events = []mission.MergedEvent{}
	}
	if links == nil {
		links = []mission.Link{}
	}
	if sources == nil {
		sources = []mission.SourceSummary{}
	}

	doc := Document{
		Version:      Version,
		Generated:    now.Unix(),
		GeneratedISO: now.UTC().Format(time.RFC3339),
		FileCount:    len(files),
		Files:        names,
		Failures:     failures,
		Mission: Mission{
			Name:      m.Name,
			StartTime: m.StartTime,
			Duration:  m.Duration,
			Events:    events,
			Links:     links,
			Sources:   sources,
		},
		Metrics: m.Metrics,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Document{}, fmt.Errorf("marshal cache: %w", err)
	}
	if err := Validate(data); err != nil {
		return Document{}, err
	}

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return Document{}, fmt.Errorf("mkdir: %w", err)
	}
	if err := writeAtomic(filepath.Join(w.Dir, DataFile), data); err != nil {
		return Document{}, err
	}

	meta, err := json.MarshalIndent(Meta{Version: Version, Generated: now.Unix(), FileHashes: hashes}, "", "  ")
	if err != nil {
		return Document{}, fmt.Errorf("marshal meta: %w", err)
	}
	if err := writeAtomic(filepath.Join(w.Dir, MetaFile), meta); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate checks an encoded document against the cache schema.
func Validate(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile cache schema: %w", err)
	}
	var instance any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return fmt.Errorf("decode cache: %w", err)
	}
	if err := s.Validate(instance); err != nil {
		return fmt.Errorf("cache schema: %w", err)
	}
	return nil
}

// Read loads and validates the document written by Write.
func Read(dir string) (Document, error) {
	data, err := os.ReadFile(filepath.Join(dir, DataFile))
	if err != nil {
		return Document{}, fmt.Errorf("read cache: %w", err)
	}
	if err := Validate(data); err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("parse cache: %w", err)
	}
	return doc, nil
}

// ReadMeta loads cache-meta.json.
func ReadMeta(dir string) (Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return Meta{}, fmt.Errorf("read meta: %w", err)
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, fmt.Errorf("parse meta: %w", err)
	}
	return m, nil
}

// Stale reports whether files differ from those recorded in meta.
func (m Meta) Stale(files []string) (bool, error) {
	if len(files) != len(m.FileHashes) {
		return true, nil
	}
	for _, f := range files {
		prev, ok := m.FileHashes[filepath.Base(f)]
		if !ok {
			return true, nil
		}
		cur, err := HashFile(f)
		if err != nil {
			return false, err
		}
		if cur.Hash != prev.Hash || cur.Size != prev.Size {
			return true, nil
		}
	}
	return false, nil
}

// HashFile returns the md5, size and modification time of path.
func HashFile(path string) (FileHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileHash{}, fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileHash{}, fmt.Errorf("stat %s: %w", path, err)
	}
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return FileHash{}, fmt.Errorf("hash %s: %w", path, err)
	}
	return FileHash{
		Hash:     hex.EncodeToString(h.Sum(nil)),
		Size:     info.Size(),
		Modified: info.ModTime().Unix(),
	}, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp.Name(), path)
}
