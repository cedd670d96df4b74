package xsd

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
)

// Source is a loaded schema document.
type Source struct {
	// Location is the resolved location of the document. It identifies the
	// document for deduplication and is the base for its own relative
	// schemaLocation values.
	Location string
	Root     *xmlnode.Node
}

// Loader fetches the documents named by xs:import and xs:include. base is
// the location of the referencing document, or "" for the root document.
type Loader interface {
	Load(location, base string) (*Source, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(location, base string) (*Source, error)

func (f LoaderFunc) Load(location, base string) (*Source, error) {
	return f(location, base)
}

// FileLoader loads schema documents from the file system and, when
// AllowRemote is set, over http(s).
type FileLoader struct {
	// Base directory for resolving relative paths of root documents
	BaseDir string

	// Whether to allow remote schema loading
	AllowRemote bool

	// Cache holds decoded documents by resolved location. Nil disables
	// caching.
	Cache *DocumentCache

	httpClient *http.Client
}

// NewFileLoader creates a loader rooted at baseDir with a document cache.
func NewFileLoader(baseDir string) *FileLoader {
	return &FileLoader{
		BaseDir:     baseDir,
		AllowRemote: false, // Disabled by default for security
		Cache:       NewDocumentCache(defaultDocumentCacheSize),
		httpClient:  &http.Client{},
	}
}

// SetLogger routes the loader's cache events to logger.
func (fl *FileLoader) SetLogger(logger *slog.Logger) {
	if fl.Cache != nil {
		fl.Cache.SetLogger(logger)
	}
}

// Load resolves location against base and returns the decoded document.
func (fl *FileLoader) Load(location, base string) (*Source, error) {
	if base != "" {
		location = resolveRelative(location, base)
	}
	abs, err := fl.resolveLocation(location)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve location %s: %w", location, err)
	}
	load := func() (*xmlnode.Node, error) { return fl.loadDocument(abs) }
	var root *xmlnode.Node
	if fl.Cache != nil {
		root, err = fl.Cache.Get(abs, load)
	} else {
		root, err = load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load schema from %s: %w", abs, err)
	}
	return &Source{Location: abs, Root: root}, nil
}

// resolveLocation resolves a location to an absolute path or URL
func (fl *FileLoader) resolveLocation(location string) (string, error) {
	if isURL(location) {
		if !fl.AllowRemote {
			return "", fmt.Errorf("remote schema loading is disabled")
		}
		return location, nil
	}
	if filepath.IsAbs(location) {
		return location, nil
	}
	if fl.BaseDir != "" {
		return filepath.Abs(filepath.Join(fl.BaseDir, location))
	}
	return filepath.Abs(location)
}

// loadDocument loads an XML document from a location
func (fl *FileLoader) loadDocument(location string) (*xmlnode.Node, error) {
	var reader io.ReadCloser

	if isURL(location) {
		client := fl.httpClient
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Get(location)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", location, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, location)
		}
		reader = resp.Body
	} else {
		file, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", location, err)
		}
		reader = file
	}
	defer reader.Close()

	return xmlnode.Decode(reader)
}

func isURL(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// resolveRelative resolves a relative location based on a base location
func resolveRelative(relative, base string) string {
	if filepath.IsAbs(relative) || isURL(relative) {
		return relative
	}
	if isURL(base) {
		baseURL, err := url.Parse(base)
		if err != nil {
			return relative
		}
		relURL, err := baseURL.Parse(relative)
		if err != nil {
			return relative
		}
		return relURL.String()
	}
	return filepath.Join(filepath.Dir(base), relative)
}

// MapLoader serves schema documents from memory, keyed by location.
// Relative locations resolve against the directory of the referencing
// document's key.
type MapLoader map[string]string

func (m MapLoader) Load(location, base string) (*Source, error) {
	key := location
	if base != "" && !path.IsAbs(location) && !isURL(location) {
		key = path.Join(path.Dir(base), location)
	}
	text, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("schema %s not found", key)
	}
	root, err := xmlnode.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", key, err)
	}
	return &Source{Location: key, Root: root}, nil
}
