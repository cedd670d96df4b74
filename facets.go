package xsd

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
	"github.com/shopspring/decimal"
)

// FacetValidator validates a typed value against one facet constraint.
// lexical is the canonical text of the value.
type FacetValidator interface {
	Validate(value any, lexical string) error
	Name() string
}

// boundFacet is implemented by facets whose constraint value must be decoded
// with the base type's codec.
type boundFacet interface {
	bind(base SimpleValueType, node *xmlnode.Node) error
}

// PatternFacet validates the lexical form against regular expressions.
// Patterns from the same derivation step are alternatives.
type PatternFacet struct {
	Patterns []string
	regexes  []*regexp.Regexp
}

func (f *PatternFacet) Name() string {
	return "pattern"
}

func (f *PatternFacet) compile() error {
	if len(f.regexes) == len(f.Patterns) {
		return nil
	}
	f.regexes = f.regexes[:0]
	for _, p := range f.Patterns {
		// XSD patterns are implicitly anchored
		re, err := regexp.Compile("^(?:" + convertXSDRegex(p) + ")$")
		if err != nil {
			return fmt.Errorf("invalid pattern %q: %w", p, err)
		}
		f.regexes = append(f.regexes, re)
	}
	return nil
}

func (f *PatternFacet) Validate(value any, lexical string) error {
	for _, re := range f.regexes {
		if re.MatchString(lexical) {
			return nil
		}
	}
	return fmt.Errorf("value '%s' does not match pattern '%s'", lexical, strings.Join(f.Patterns, "|"))
}

// convertXSDRegex converts XSD regex syntax to Go regex syntax
func convertXSDRegex(pattern string) string {
	replacer := strings.NewReplacer(
		`\i`, `[_:A-Za-z]`,
		`\I`, `[^_:A-Za-z]`,
		`\c`, `[_:A-Za-z0-9.\-]`,
		`\C`, `[^_:A-Za-z0-9.\-]`,
	)
	return replacer.Replace(pattern)
}

// EnumerationFacet restricts values to a fixed set.
type EnumerationFacet struct {
	Values  []string
	decoded []any
}

func (f *EnumerationFacet) Name() string {
	return "enumeration"
}

func (f *EnumerationFacet) bind(base SimpleValueType, node *xmlnode.Node) error {
	f.decoded = f.decoded[:0]
	for _, v := range f.Values {
		d, err := base.ParseValue(node, v)
		if err != nil {
			return fmt.Errorf("enumeration value '%s': %w", v, err)
		}
		f.decoded = append(f.decoded, d)
	}
	return nil
}

func (f *EnumerationFacet) Validate(value any, lexical string) error {
	for i, allowed := range f.Values {
		if lexical == allowed {
			return nil
		}
		if i < len(f.decoded) && ValuesEqual(value, f.decoded[i]) {
			return nil
		}
	}
	return fmt.Errorf("value '%s' is not in enumeration %v", lexical, f.Values)
}

// LengthFacet validates exact length
type LengthFacet struct {
	Value int
}

func (f *LengthFacet) Name() string {
	return "length"
}

func (f *LengthFacet) Validate(value any, lexical string) error {
	if n := valueLength(value, lexical); n != f.Value {
		return fmt.Errorf("length must be exactly %d, got %d", f.Value, n)
	}
	return nil
}

// MinLengthFacet validates minimum length
type MinLengthFacet struct {
	Value int
}

func (f *MinLengthFacet) Name() string {
	return "minLength"
}

func (f *MinLengthFacet) Validate(value any, lexical string) error {
	if n := valueLength(value, lexical); n < f.Value {
		return fmt.Errorf("length must be at least %d, got %d", f.Value, n)
	}
	return nil
}

// MaxLengthFacet validates maximum length
type MaxLengthFacet struct {
	Value int
}

func (f *MaxLengthFacet) Name() string {
	return "maxLength"
}

func (f *MaxLengthFacet) Validate(value any, lexical string) error {
	if n := valueLength(value, lexical); n > f.Value {
		return fmt.Errorf("length must be at most %d, got %d", f.Value, n)
	}
	return nil
}

// valueLength measures octets for binary values, items for lists and
// characters otherwise.
func valueLength(value any, lexical string) int {
	switch v := value.(type) {
	case []byte:
		return len(v)
	case string:
		return utf8.RuneCountInString(v)
	}
	if list, ok := asList(value); ok {
		return len(list)
	}
	return utf8.RuneCountInString(lexical)
}

// rangeFacet holds the shared state of the four bound facets.
type rangeFacet struct {
	Value string
	bound any
}

func (f *rangeFacet) bind(base SimpleValueType, node *xmlnode.Node) error {
	v, err := base.ParseValue(node, f.Value)
	if err != nil {
		return fmt.Errorf("invalid bound '%s': %w", f.Value, err)
	}
	f.bound = v
	return nil
}

func (f *rangeFacet) compare(value any, lexical string) (int, error) {
	if f.bound == nil {
		return compareValues(lexical, f.Value)
	}
	return compareValues(value, f.bound)
}

// MinInclusiveFacet validates minimum value (inclusive)
type MinInclusiveFacet struct{ rangeFacet }

func (f *MinInclusiveFacet) Name() string {
	return "minInclusive"
}

func (f *MinInclusiveFacet) Validate(value any, lexical string) error {
	cmp, err := f.compare(value, lexical)
	if err != nil {
		return err
	}
	if cmp < 0 {
		return fmt.Errorf("value must be >= %s, got %s", f.Value, lexical)
	}
	return nil
}

// MaxInclusiveFacet validates maximum value (inclusive)
type MaxInclusiveFacet struct{ rangeFacet }

func (f *MaxInclusiveFacet) Name() string {
	return "maxInclusive"
}

func (f *MaxInclusiveFacet) Validate(value any, lexical string) error {
	cmp, err := f.compare(value, lexical)
	if err != nil {
		return err
	}
	if cmp > 0 {
		return fmt.Errorf("value must be <= %s, got %s", f.Value, lexical)
	}
	return nil
}

// MinExclusiveFacet validates minimum value (exclusive)
type MinExclusiveFacet struct{ rangeFacet }

func (f *MinExclusiveFacet) Name() string {
	return "minExclusive"
}

func (f *MinExclusiveFacet) Validate(value any, lexical string) error {
	cmp, err := f.compare(value, lexical)
	if err != nil {
		return err
	}
	if cmp <= 0 {
		return fmt.Errorf("value must be > %s, got %s", f.Value, lexical)
	}
	return nil
}

// MaxExclusiveFacet validates maximum value (exclusive)
type MaxExclusiveFacet struct{ rangeFacet }

func (f *MaxExclusiveFacet) Name() string {
	return "maxExclusive"
}

func (f *MaxExclusiveFacet) Validate(value any, lexical string) error {
	cmp, err := f.compare(value, lexical)
	if err != nil {
		return err
	}
	if cmp >= 0 {
		return fmt.Errorf("value must be < %s, got %s", f.Value, lexical)
	}
	return nil
}

// TotalDigitsFacet validates total number of digits
type TotalDigitsFacet struct {
	Value int
}

func (f *TotalDigitsFacet) Name() string {
	return "totalDigits"
}

func (f *TotalDigitsFacet) Validate(value any, lexical string) error {
	intDigits, fracDigits, err := decimalDigits(value, lexical)
	if err != nil {
		return err
	}
	if total := intDigits + fracDigits; total > f.Value {
		return fmt.Errorf("total digits must be at most %d, got %d", f.Value, total)
	}
	return nil
}

// FractionDigitsFacet validates number of fraction digits
type FractionDigitsFacet struct {
	Value int
}

func (f *FractionDigitsFacet) Name() string {
	return "fractionDigits"
}

func (f *FractionDigitsFacet) Validate(value any, lexical string) error {
	_, fracDigits, err := decimalDigits(value, lexical)
	if err != nil {
		return err
	}
	if fracDigits > f.Value {
		return fmt.Errorf("fraction digits must be at most %d, got %d", f.Value, fracDigits)
	}
	return nil
}

// decimalDigits counts significant integer and fraction digits, ignoring
// leading and trailing zeros.
func decimalDigits(value any, lexical string) (int, int, error) {
	d, ok := toDecimal(value)
	if !ok {
		var err error
		d, err = decimal.NewFromString(lexical)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid numeric value: %s", lexical)
		}
	}
	s := d.Abs().String()
	intPart, fracPart, _ := strings.Cut(s, ".")
	intPart = strings.TrimLeft(intPart, "0")
	fracPart = strings.TrimRight(fracPart, "0")
	return len(intPart), len(fracPart), nil
}

// WhiteSpaceFacet handles whitespace normalization
type WhiteSpaceFacet struct {
	Value string // "preserve", "replace", or "collapse"
}

func (f *WhiteSpaceFacet) Name() string {
	return "whiteSpace"
}

// Validate is a no-op: whitespace is normalized before other facets run.
func (f *WhiteSpaceFacet) Validate(value any, lexical string) error {
	return nil
}

// compareValues orders two values of the same value space.
func compareValues(a, b any) (int, error) {
	switch av := a.(type) {
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			break
		}
		return av.Compare(bv), nil
	case Duration:
		bv, ok := b.(Duration)
		if !ok {
			break
		}
		c, ok := av.compare(bv)
		if !ok {
			return 0, fmt.Errorf("durations %s and %s are not ordered", av, bv)
		}
		return c, nil
	case string:
		bv, ok := b.(string)
		if !ok {
			break
		}
		if da, err := decimal.NewFromString(av); err == nil {
			if db, err := decimal.NewFromString(bv); err == nil {
				return da.Cmp(db), nil
			}
		}
		return strings.Compare(av, bv), nil
	}
	da, okA := toDecimal(a)
	db, okB := toDecimal(b)
	if okA && okB {
		return da.Cmp(db), nil
	}
	return 0, fmt.Errorf("cannot compare %T with %T", a, b)
}

// ParseFacet returns the validator for a restriction facet child, or nil
// when name is not a facet.
func ParseFacet(name string, value string) (FacetValidator, error) {
	atoi := func() (int, error) {
		v, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || v < 0 {
			return 0, fmt.Errorf("facet %s requires a non-negative integer, got '%s'", name, value)
		}
		return v, nil
	}
	switch name {
	case "pattern":
		return &PatternFacet{Patterns: []string{value}}, nil
	case "enumeration":
		return &EnumerationFacet{Values: []string{value}}, nil
	case "length":
		v, err := atoi()
		return &LengthFacet{Value: v}, err
	case "minLength":
		v, err := atoi()
		return &MinLengthFacet{Value: v}, err
	case "maxLength":
		v, err := atoi()
		return &MaxLengthFacet{Value: v}, err
	case "minInclusive":
		return &MinInclusiveFacet{rangeFacet{Value: value}}, nil
	case "maxInclusive":
		return &MaxInclusiveFacet{rangeFacet{Value: value}}, nil
	case "minExclusive":
		return &MinExclusiveFacet{rangeFacet{Value: value}}, nil
	case "maxExclusive":
		return &MaxExclusiveFacet{rangeFacet{Value: value}}, nil
	case "totalDigits":
		v, err := atoi()
		return &TotalDigitsFacet{Value: v}, err
	case "fractionDigits":
		v, err := atoi()
		return &FractionDigitsFacet{Value: v}, err
	case "whiteSpace":
		switch value {
		case "preserve", "replace", "collapse":
			return &WhiteSpaceFacet{Value: value}, nil
		}
		return nil, fmt.Errorf("invalid whiteSpace value '%s'", value)
	}
	return nil, nil
}

// IsFacet reports whether name is a restriction facet element.
func IsFacet(name string) bool {
	switch name {
	case "pattern", "enumeration", "length", "minLength", "maxLength",
		"minInclusive", "maxInclusive", "minExclusive", "maxExclusive",
		"totalDigits", "fractionDigits", "whiteSpace":
		return true
	}
	return false
}

// FacetSet is the set of facets declared by one restriction step.
type FacetSet struct {
	facets []FacetValidator
	node   *xmlnode.Node // restriction node, for QName valued bounds
}

// Add parses and records a facet. Repeated pattern and enumeration facets
// merge into one validator.
func (fs *FacetSet) Add(name, value string) error {
	f, err := ParseFacet(name, value)
	if err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("unknown facet %s", name)
	}
	for _, existing := range fs.facets {
		switch e := existing.(type) {
		case *PatternFacet:
			if p, ok := f.(*PatternFacet); ok {
				e.Patterns = append(e.Patterns, p.Patterns...)
				return nil
			}
		case *EnumerationFacet:
			if en, ok := f.(*EnumerationFacet); ok {
				e.Values = append(e.Values, en.Values...)
				return nil
			}
		}
	}
	fs.facets = append(fs.facets, f)
	return nil
}

// Facets returns the validators in declaration order.
func (fs *FacetSet) Facets() []FacetValidator {
	if fs == nil {
		return nil
	}
	return fs.facets
}

// Len returns the number of validators.
func (fs *FacetSet) Len() int {
	if fs == nil {
		return 0
	}
	return len(fs.facets)
}

// WhiteSpace returns the whiteSpace facet value, or "" when absent.
func (fs *FacetSet) WhiteSpace() string {
	for _, f := range fs.Facets() {
		if ws, ok := f.(*WhiteSpaceFacet); ok {
			return ws.Value
		}
	}
	return ""
}

// Enumeration returns the allowed lexical values, if restricted.
func (fs *FacetSet) Enumeration() []string {
	for _, f := range fs.Facets() {
		if e, ok := f.(*EnumerationFacet); ok {
			return e.Values
		}
	}
	return nil
}

// bind decodes bound and enumeration values with the base type's codec and
// compiles patterns.
func (fs *FacetSet) bind(base SimpleValueType) error {
	for _, f := range fs.Facets() {
		if p, ok := f.(*PatternFacet); ok {
			if err := p.compile(); err != nil {
				return err
			}
		}
		if b, ok := f.(boundFacet); ok && base != nil {
			if err := b.bind(base, fs.node); err != nil {
				return fmt.Errorf("%s: %w", f.Name(), err)
			}
		}
	}
	return nil
}

// Validate runs the facets in order and returns the first violation.
func (fs *FacetSet) Validate(value any, lexical string) error {
	for _, f := range fs.Facets() {
		if err := f.Validate(value, lexical); err != nil {
			return fmt.Errorf("%s constraint violated: %w", f.Name(), err)
		}
	}
	return nil
}
