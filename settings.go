package xsd

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v2"
)

// Settings control how tolerant the codec is of non-conformant documents.
type Settings struct {
	// Strict rejects unconsumed children. When false they are kept on the
	// value object under RawElementsField.
	Strict bool `yaml:"strict"`
	// LenientNamespaces matches elements by local name when the qualified
	// name does not match.
	LenientNamespaces bool `yaml:"lenient_namespaces"`
	// IgnoreSequenceOrder lets an element of a sequence match anywhere in
	// the remaining children instead of only at the head.
	IgnoreSequenceOrder bool `yaml:"ignore_sequence_order"`
	// ValidateFacetsOnParse checks facets on parsed simple values. Rendering
	// always checks them.
	ValidateFacetsOnParse bool `yaml:"validate_facets_on_parse"`
}

// DefaultSettings returns strict parsing with lenient namespace matching.
func DefaultSettings() Settings {
	return Settings{
		Strict:            true,
		LenientNamespaces: true,
	}
}

// LoadSettings reads settings from YAML. Keys that are absent keep their
// default value.
func LoadSettings(data []byte) (Settings, error) {
	s := DefaultSettings()
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	return s, nil
}

// Option configures schema construction.
type Option func(*options)

type options struct {
	loader   Loader
	location string
	settings Settings
	builtins *BuiltinRegistry
	logger   *slog.Logger
}

func defaultOptions() options {
	return options{
		settings: DefaultSettings(),
		builtins: Builtins(),
		logger:   slog.Default(),
	}
}

// WithLoader sets the loader used for xs:import and xs:include.
func WithLoader(l Loader) Option {
	return func(o *options) { o.loader = l }
}

// WithLocation sets the location of the root document, used as the base for
// relative schemaLocation values.
func WithLocation(location string) Option {
	return func(o *options) { o.location = location }
}

// WithSettings replaces the default settings.
func WithSettings(s Settings) Option {
	return func(o *options) { o.settings = s }
}

// WithBuiltins replaces the builtin type registry.
func WithBuiltins(r *BuiltinRegistry) Option {
	return func(o *options) { o.builtins = r }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
