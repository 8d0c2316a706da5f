package instrument

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"bracketbot/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const entrySchema = `{
  "type": "object",
  "required": ["symbol"],
  "properties": {
    "symbol": {"type": "string", "pattern": "^[A-Z0-9]+$"},
    "tick_size": {"type": "string", "pattern": "^[0-9]*\\.?[0-9]+$"},
    "step_size": {"type": "string", "pattern": "^[0-9]*\\.?[0-9]+$"},
    "max_leverage": {"type": "integer", "minimum": 0, "maximum": 125}
  }
}`

var compiledEntrySchema = mustCompileSchema(entrySchema)

// FileConfig maps the instruments YAML file.
type FileConfig struct {
	Instruments map[string]Spec `yaml:"instruments"`
}

// Snapshot is an immutable view of the file-defined instruments.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Specs    map[string]Spec
}

// Registry resolves specs with precedence file > exchange > builtin default.
// The file is watched and reloaded on change; a reload that fails keeps the
// previous snapshot.
type Registry struct {
	path string

	mu       sync.RWMutex
	snapshot Snapshot
	exchange map[string]Spec
}

// NewRegistry loads path when it exists. An empty path or a missing file
// yields a registry serving exchange and builtin specs only.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: strings.TrimSpace(path), exchange: make(map[string]Spec)}
	if r.path == "" {
		return r, nil
	}
	if _, err := os.Stat(r.path); errors.Is(err, fs.ErrNotExist) {
		logger.Warnf("instrument file %s not found, using builtin filters", r.path)
		return r, nil
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read instrument config failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.Reload(); err != nil {
			logger.Errorf("instrument reload failed (%s): %v", evt.Name, err)
		}
	})
	v.WatchConfig()
	return r, nil
}

// Reload re-reads the instruments file and swaps the snapshot atomically.
func (r *Registry) Reload() error {
	cfg, err := readInstrumentFile(r.path)
	if err != nil {
		return err
	}
	specs := make(map[string]Spec, len(cfg.Instruments))
	for name, spec := range cfg.Instruments {
		spec.Symbol = normalize(name)
		if err := validateEntry(spec); err != nil {
			return fmt.Errorf("instrument %s: %w", spec.Symbol, err)
		}
		specs[spec.Symbol] = spec
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Specs:    specs,
	}
	r.mu.Unlock()
	logger.Infof("Instrument registry loaded %d symbols from %s", len(specs), filepath.Base(r.path))
	return nil
}

// Merge records filters fetched from the exchange. Entries that fail
// validation are skipped.
func (r *Registry) Merge(specs []Spec) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	merged := 0
	for _, spec := range specs {
		spec.Symbol = normalize(spec.Symbol)
		spec = spec.overlay(Default(spec.Symbol))
		if err := spec.Validate(); err != nil {
			logger.Warnf("instrument merge skipped: %v", err)
			continue
		}
		r.exchange[spec.Symbol] = spec
		merged++
	}
	return merged
}

// Lookup returns the spec for symbol. ok is false when only the builtin
// default was available.
func (r *Registry) Lookup(symbol string) (Spec, bool) {
	symbol = normalize(symbol)
	base := Default(symbol)
	r.mu.RLock()
	defer r.mu.RUnlock()
	known := false
	if ex, found := r.exchange[symbol]; found {
		base = ex
		known = true
	}
	if spec, found := r.snapshot.Specs[symbol]; found {
		return spec.overlay(base), true
	}
	return base, known
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := Snapshot{
		Version:  r.snapshot.Version,
		LoadedAt: r.snapshot.LoadedAt,
		Specs:    make(map[string]Spec, len(r.snapshot.Specs)),
	}
	for k, v := range r.snapshot.Specs {
		out.Specs[k] = v
	}
	return out
}

// Symbols lists every symbol with a non-default spec.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	for s := range r.exchange {
		seen[s] = struct{}{}
	}
	for s := range r.snapshot.Specs {
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func readInstrumentFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read instrument config failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse instrument config failed: %w", err)
	}
	return cfg, nil
}

// validateEntry checks the entry against the JSON schema, then the decimal
// semantics the schema cannot express. Omitted fields fall back later.
func validateEntry(spec Spec) error {
	raw, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	for _, key := range []string{"tick_size", "step_size"} {
		if s, _ := doc[key].(string); s == "" {
			delete(doc, key)
		}
	}
	if err := compiledEntrySchema.Validate(doc); err != nil {
		return err
	}
	return spec.overlay(Default(spec.Symbol)).Validate()
}

func mustCompileSchema(src string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("instrument.json", strings.NewReader(src)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("instrument.json")
}
