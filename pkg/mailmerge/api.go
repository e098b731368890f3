package mailmerge

import (
	"io"
	"os"
	"path/filepath"
)

// Engine bundles the placeholder registry, the template cache and the
// engine configuration. Use New or NewWithOptions to create one.
type Engine struct {
	config   *Config
	cache    *TemplateCache
	registry *Registry
	logger   *Logger
}

// New creates an engine from the global configuration with an empty
// registry.
func New() *Engine {
	return NewWithConfig(GetGlobalConfig())
}

// NewWithConfig creates an engine with a custom configuration.
func NewWithConfig(config *Config) *Engine {
	config = NewConfigWithDefaults(config)
	return &Engine{
		config: config,
		cache: NewTemplateCacheWithConfig(CacheConfig{
			MaxSize: config.CacheMaxSize,
			TTL:     config.CacheTTL,
		}),
		registry: NewRegistry(),
		logger:   GetLogger(),
	}
}

// Option represents a configuration option for the engine.
type Option func(*Engine)

// WithConfig returns an option that sets the engine configuration.
func WithConfig(config *Config) Option {
	return func(e *Engine) {
		e.config = NewConfigWithDefaults(config)
		e.cache = NewTemplateCacheWithConfig(CacheConfig{
			MaxSize: e.config.CacheMaxSize,
			TTL:     e.config.CacheTTL,
		})
	}
}

// WithRegistry returns an option that sets the placeholder registry.
func WithRegistry(reg *Registry) Option {
	return func(e *Engine) {
		if reg != nil {
			e.registry = reg
		}
	}
}

// WithLogger returns an option that sets the engine's logger.
func WithLogger(logger *Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCache returns an option that sets the cache size (0 disables caching).
func WithCache(maxSize int) Option {
	return func(e *Engine) {
		e.config.CacheMaxSize = maxSize
		e.cache = NewTemplateCacheWithConfig(CacheConfig{
			MaxSize: maxSize,
			TTL:     e.config.CacheTTL,
		})
	}
}

// NewWithOptions creates a new engine with the specified options.
func NewWithOptions(opts ...Option) *Engine {
	engine := New()
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// Config returns the engine's configuration.
func (e *Engine) Config() *Config {
	return e.config
}

// Registry returns the engine's placeholder registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Separator returns the configured composition separator.
func (e *Engine) Separator() Separator {
	sep, _ := ParseSeparator(e.config.Separator)
	return sep
}

// Prepare parses template bytes, reusing a cached template with the same
// content when one exists.
func (e *Engine) Prepare(name string, data []byte) (*Template, error) {
	key := contentHash(data)

	if t, ok := e.cache.Get(key); ok {
		e.logger.Debug("template cache hit for %s", name)
		return t.withName(name), nil
	}

	t, err := prepare(name, data, key)
	if err != nil {
		return nil, err
	}
	e.cache.Set(key, t)
	e.logger.WithFields(Fields{"template": name, "parts": len(t.textParts)}).Debug("template prepared")
	return t, nil
}

// PrepareReader reads and prepares a template from r.
func (e *Engine) PrepareReader(name string, r io.Reader) (*Template, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, NewDocumentError("prepare", name, err)
	}
	return e.Prepare(name, data)
}

// PrepareFile reads and prepares a template from disk.
func (e *Engine) PrepareFile(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDocumentError("prepare", path, err)
	}
	return e.Prepare(filepath.Base(path), data)
}

// Substitute fills doc with the record's values using the engine registry.
func (e *Engine) Substitute(doc *Document, rec Record) Stats {
	return e.SubstituteWith(doc, e.registry, rec)
}

// SubstituteWith is Substitute with an explicit registry, for callers whose
// placeholders come from the data source rather than from configuration.
func (e *Engine) SubstituteWith(doc *Document, reg *Registry, rec Record) Stats {
	stats := Substitute(doc, reg, rec)
	if stats.Unresolved > 0 || stats.Missing > 0 {
		e.logger.WithFields(Fields{
			"row":        rec.Row(),
			"missing":    stats.Missing,
			"unresolved": stats.Unresolved,
		}).Debug("substitution anomalies")
	}
	return stats
}

// Merge creates a fresh document from t and fills it with rec.
func (e *Engine) Merge(t *Template, rec Record) (*Document, Stats) {
	return e.MergeWith(t, e.registry, rec)
}

// MergeWith is Merge with an explicit registry.
func (e *Engine) MergeWith(t *Template, reg *Registry, rec Record) (*Document, Stats) {
	doc := t.NewDocument()
	return doc, e.SubstituteWith(doc, reg, rec)
}

// NewComposer starts a composition using the configured separator.
func (e *Engine) NewComposer(base *Document) *Composer {
	return NewComposer(base, e.Separator())
}

// Compose concatenates docs using the configured separator.
func (e *Engine) Compose(docs []*Document) (*Document, error) {
	return Compose(docs, e.Separator())
}

// ClearCache removes all templates from the cache.
func (e *Engine) ClearCache() {
	e.cache.Clear()
}
