package xsd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
	"github.com/golang/groupcache/lru"
)

const defaultDocumentCacheSize = 128

// DocumentCache keeps recently loaded schema documents by resolved
// location. Cached trees are shared and must not be modified.
type DocumentCache struct {
	mu     sync.Mutex
	cache  *lru.Cache
	logger *slog.Logger
}

// NewDocumentCache creates a cache holding at most maxEntries documents.
// Zero means no limit.
func NewDocumentCache(maxEntries int) *DocumentCache {
	return &DocumentCache{cache: lru.New(maxEntries), logger: slog.Default()}
}

// SetLogger sets the logger used for cache events. Nil restores the
// default logger.
func (dc *DocumentCache) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.logger = logger
}

// Get returns the cached document for location, calling load on a miss.
// Failed loads are not cached.
func (dc *DocumentCache) Get(location string, load func() (*xmlnode.Node, error)) (*xmlnode.Node, error) {
	dc.mu.Lock()
	if v, ok := dc.cache.Get(location); ok {
		logger := dc.logger
		dc.mu.Unlock()
		logger.Debug("schema document cache hit", "location", location)
		return v.(*xmlnode.Node), nil
	}
	dc.mu.Unlock()

	root, err := load()
	if err != nil {
		return nil, err
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.cache.Add(location, root)
	return root, nil
}

// Remove drops a document from the cache
func (dc *DocumentCache) Remove(location string) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.cache.Remove(location)
}

// Clear removes all cached documents
func (dc *DocumentCache) Clear() {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.cache.Clear()
}

// Len returns the number of cached documents
func (dc *DocumentCache) Len() int {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	return dc.cache.Len()
}

// SchemaCache holds resolved schemas by location, loading each one once.
type SchemaCache struct {
	mu       sync.RWMutex
	schemas  map[string]*schemaEntry
	BasePath string // Base path for resolving relative schema locations
	opts     []Option
}

// schemaEntry holds a schema and its loader
type schemaEntry struct {
	loader func() (*Schema, error)
	once   sync.Once
	schema *Schema
	err    error
}

// NewSchemaCache creates a new schema cache. opts apply to every schema it
// loads.
func NewSchemaCache(basePath string, opts ...Option) *SchemaCache {
	return &SchemaCache{
		schemas:  make(map[string]*schemaEntry),
		BasePath: basePath,
		opts:     opts,
	}
}

// Get retrieves a schema from cache or loads it if not present
func (sc *SchemaCache) Get(location string) (*Schema, error) {
	resolvedPath := sc.resolvePath(location)

	sc.mu.Lock()
	entry, exists := sc.schemas[resolvedPath]
	if !exists {
		entry = &schemaEntry{
			loader: func() (*Schema, error) {
				return LoadSchema(resolvedPath, sc.opts...)
			},
		}
		sc.schemas[resolvedPath] = entry
	}
	sc.mu.Unlock()

	entry.once.Do(func() {
		entry.schema, entry.err = entry.loader()
	})
	return entry.schema, entry.err
}

// Put stores a schema built elsewhere under location.
func (sc *SchemaCache) Put(location string, schema *Schema) {
	entry := &schemaEntry{schema: schema}
	entry.once.Do(func() {})
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.schemas[sc.resolvePath(location)] = entry
}

// Clear removes all cached schemas
func (sc *SchemaCache) Clear() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.schemas = make(map[string]*schemaEntry)
}

// Remove removes a specific schema from cache
func (sc *SchemaCache) Remove(location string) {
	resolvedPath := sc.resolvePath(location)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	delete(sc.schemas, resolvedPath)
}

// resolvePath resolves a schema location to an absolute path
func (sc *SchemaCache) resolvePath(location string) string {
	if filepath.IsAbs(location) || isURL(location) {
		return location
	}
	if sc.BasePath != "" {
		return filepath.Join(sc.BasePath, location)
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return location
	}
	return abs
}

// SchemaRegistry maps namespaces to the schemas declaring their elements,
// so that documents of several services can be decoded by one registry.
type SchemaRegistry struct {
	mu            sync.RWMutex
	namespaces    map[string]*Schema
	defaultSchema *Schema
	cache         *SchemaCache
}

// NewSchemaRegistry creates a new schema registry
func NewSchemaRegistry(opts ...Option) *SchemaRegistry {
	return &SchemaRegistry{
		namespaces: make(map[string]*Schema),
		cache:      NewSchemaCache("", opts...),
	}
}

// Register registers a schema for every namespace it declares
func (sr *SchemaRegistry) Register(schema *Schema) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	for _, ns := range schema.Namespaces() {
		sr.namespaces[ns] = schema
	}
}

// RegisterFile loads a schema through the cache and registers it
func (sr *SchemaRegistry) RegisterFile(location string) (*Schema, error) {
	schema, err := sr.cache.Get(location)
	if err != nil {
		return nil, err
	}
	sr.Register(schema)
	return schema, nil
}

// SetDefault sets the default schema for elements without namespaces
func (sr *SchemaRegistry) SetDefault(schema *Schema) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.defaultSchema = schema
}

// GetForNamespace retrieves the schema for a namespace
func (sr *SchemaRegistry) GetForNamespace(namespace string) (*Schema, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	if schema, ok := sr.namespaces[namespace]; ok {
		return schema, true
	}
	if namespace == "" && sr.defaultSchema != nil {
		return sr.defaultSchema, true
	}
	return nil, false
}

// Namespaces returns the registered namespaces in sorted order
func (sr *SchemaRegistry) Namespaces() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	out := make([]string, 0, len(sr.namespaces))
	for ns := range sr.namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// Decode parses an instance document with the schema registered for the
// namespace of its root element.
func (sr *SchemaRegistry) Decode(node *xmlnode.Node) (any, *Element, error) {
	root := node
	if root.IsDocument() {
		if root = root.FirstChild(); root == nil {
			return nil, nil, fmt.Errorf("empty document")
		}
	}
	schema, ok := sr.GetForNamespace(root.Name.Space)
	if !ok {
		return nil, nil, &LookupError{
			Kind:      ErrUnknownElement,
			Name:      qnameOf(root.Name),
			Available: sr.Namespaces(),
		}
	}
	return schema.Decode(root)
}
