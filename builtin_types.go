package xsd

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// BuiltinType is one of the types predefined in the XML Schema namespace.
type BuiltinType struct {
	name       QName
	whiteSpace string
	validate   func(string) error
	decode     func(text string, node *xmlnode.Node) (any, error)
	encode     func(value any, node *xmlnode.Node) (string, error)
}

func (b *BuiltinType) Name() QName    { return b.name }
func (b *BuiltinType) IsGlobal() bool { return true }

// WhiteSpace returns the whiteSpace facet value of the type.
func (b *BuiltinType) WhiteSpace() string { return b.whiteSpace }

func (b *BuiltinType) Signature(s *Schema) string {
	return s.prefixedName(b.name)
}

func (b *BuiltinType) signature(s *Schema, standalone bool) string {
	return s.prefixedName(b.name)
}

func (b *BuiltinType) resolveType() (Type, error) { return b, nil }

// FormatValue converts a Go value into the canonical lexical form.
func (b *BuiltinType) FormatValue(node *xmlnode.Node, value any) (string, error) {
	if s, ok := value.(string); ok {
		s = NormalizeWhiteSpace(s, b.whiteSpace)
		if err := b.validate(s); err != nil {
			return "", err
		}
		return s, nil
	}
	text, err := b.encode(value, node)
	if err != nil {
		return "", fmt.Errorf("%s: %w", b.name.Local, err)
	}
	if err := b.validate(text); err != nil {
		return "", err
	}
	return text, nil
}

// ParseValue decodes lexical text into the Go value of the type.
func (b *BuiltinType) ParseValue(node *xmlnode.Node, text string) (any, error) {
	text = NormalizeWhiteSpace(text, b.whiteSpace)
	if err := b.validate(text); err != nil {
		return nil, err
	}
	return b.decode(text, node)
}

func (b *BuiltinType) renderValue(node *xmlnode.Node, value any, r *renderState) error {
	text, err := b.FormatValue(node, value)
	if err != nil {
		return validationErrorf(r.path, "cvc-datatype-valid.1.2.1", "%v", err)
	}
	node.Text = text
	return nil
}

func (b *BuiltinType) parseNode(node *xmlnode.Node, p *parseState) (any, error) {
	if node.Text == "" {
		return nil, nil
	}
	return b.ParseValue(node, node.Text)
}

// BuiltinRegistry is an immutable set of predefined types keyed by name.
type BuiltinRegistry struct {
	types map[QName]Type
}

var defaultBuiltins = sync.OnceValue(NewBuiltinRegistry)

// Builtins returns the shared default registry.
func Builtins() *BuiltinRegistry {
	return defaultBuiltins()
}

// NewBuiltinRegistry builds a registry holding every predefined type plus
// xs:anyType.
func NewBuiltinRegistry() *BuiltinRegistry {
	r := &BuiltinRegistry{types: make(map[QName]Type)}
	add := func(local, ws string, validate func(string) error, decode func(string, *xmlnode.Node) (any, error), encode func(any, *xmlnode.Node) (string, error)) {
		r.types[xsdName(local)] = &BuiltinType{
			name:       xsdName(local),
			whiteSpace: ws,
			validate:   validate,
			decode:     decode,
			encode:     encode,
		}
	}

	// Primitive types
	add("anySimpleType", "preserve", validateString, decodeString, encodeString)
	add("string", "preserve", validateString, decodeString, encodeString)
	add("boolean", "collapse", validateBoolean, decodeBoolean, encodeBoolean)
	add("decimal", "collapse", validateDecimal, decodeDecimal, encodeDecimal)
	add("float", "collapse", validateFloat, decodeFloat(32), encodeFloat(32))
	add("double", "collapse", validateDouble, decodeFloat(64), encodeFloat(64))
	add("duration", "collapse", validateDuration, decodeDuration, encodeDuration)
	add("dateTime", "collapse", validateDateTime, decodeDateTime, encodeTime(dateTimeLayout))
	add("time", "collapse", validateTime, decodeTimeOfDay, encodeTime(timeLayout))
	add("date", "collapse", validateDate, decodeDate, encodeTime(dateLayout))
	add("gYearMonth", "collapse", validateGYearMonth, decodeString, encodeGregorian("2006-01"))
	add("gYear", "collapse", validateGYear, decodeString, encodeGregorian("2006"))
	add("gMonthDay", "collapse", validateGMonthDay, decodeString, encodeGregorian("--01-02"))
	add("gDay", "collapse", validateGDay, decodeString, encodeGregorian("---02"))
	add("gMonth", "collapse", validateGMonth, decodeString, encodeGregorian("--01"))
	add("hexBinary", "collapse", validateHexBinary, decodeHexBinary, encodeHexBinary)
	add("base64Binary", "collapse", validateBase64Binary, decodeBase64Binary, encodeBase64Binary)
	add("anyURI", "collapse", validateString, decodeString, encodeString)
	add("QName", "collapse", validateQName, decodeQName, encodeQName)
	add("NOTATION", "collapse", validateQName, decodeQName, encodeQName)

	// Derived types - strings
	add("normalizedString", "replace", validateNormalizedString, decodeString, encodeString)
	add("token", "collapse", validateToken, decodeString, encodeString)
	add("language", "collapse", validateLanguage, decodeString, encodeLanguage)
	add("Name", "collapse", validateName, decodeString, encodeString)
	add("NCName", "collapse", validateNCName, decodeString, encodeString)
	add("ID", "collapse", validateNCName, decodeString, encodeString)
	add("IDREF", "collapse", validateNCName, decodeString, encodeString)
	add("IDREFS", "collapse", validateListOf(validateNCName), decodeTokens, encodeTokens)
	add("ENTITY", "collapse", validateNCName, decodeString, encodeString)
	add("ENTITIES", "collapse", validateListOf(validateNCName), decodeTokens, encodeTokens)
	add("NMTOKEN", "collapse", validateNMTOKEN, decodeString, encodeString)
	add("NMTOKENS", "collapse", validateListOf(validateNMTOKEN), decodeTokens, encodeTokens)

	// Derived types - numeric
	add("integer", "collapse", validateIntegerRange(nil, nil), decodeInt, encodeInteger)
	add("nonPositiveInteger", "collapse", validateIntegerRange(nil, big.NewInt(0)), decodeInt, encodeInteger)
	add("negativeInteger", "collapse", validateIntegerRange(nil, big.NewInt(-1)), decodeInt, encodeInteger)
	add("long", "collapse", validateIntegerRange(big.NewInt(math.MinInt64), big.NewInt(math.MaxInt64)), decodeInt, encodeInteger)
	add("int", "collapse", validateIntegerRange(big.NewInt(math.MinInt32), big.NewInt(math.MaxInt32)), decodeInt, encodeInteger)
	add("short", "collapse", validateIntegerRange(big.NewInt(math.MinInt16), big.NewInt(math.MaxInt16)), decodeInt, encodeInteger)
	add("byte", "collapse", validateIntegerRange(big.NewInt(math.MinInt8), big.NewInt(math.MaxInt8)), decodeInt, encodeInteger)
	add("nonNegativeInteger", "collapse", validateIntegerRange(big.NewInt(0), nil), decodeUint, encodeInteger)
	add("positiveInteger", "collapse", validateIntegerRange(big.NewInt(1), nil), decodeUint, encodeInteger)
	add("unsignedLong", "collapse", validateIntegerRange(big.NewInt(0), new(big.Int).SetUint64(math.MaxUint64)), decodeUint, encodeInteger)
	add("unsignedInt", "collapse", validateIntegerRange(big.NewInt(0), big.NewInt(math.MaxUint32)), decodeUint, encodeInteger)
	add("unsignedShort", "collapse", validateIntegerRange(big.NewInt(0), big.NewInt(math.MaxUint16)), decodeUint, encodeInteger)
	add("unsignedByte", "collapse", validateIntegerRange(big.NewInt(0), big.NewInt(math.MaxUint8)), decodeUint, encodeInteger)

	r.types[xsdName("anyType")] = &AnyType{}
	return r
}

// Lookup returns the builtin type with the given name.
func (r *BuiltinRegistry) Lookup(name QName) (Type, bool) {
	t, ok := r.types[name]
	return t, ok
}

// Names returns the registered type names sorted by local name.
func (r *BuiltinRegistry) Names() []QName {
	names := make([]QName, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i].Local < names[j].Local })
	return names
}

// NormalizeWhiteSpace applies a whiteSpace facet value.
func NormalizeWhiteSpace(value, whiteSpace string) string {
	switch whiteSpace {
	case "replace":
		return strings.Map(func(r rune) rune {
			if r == '\t' || r == '\n' || r == '\r' {
				return ' '
			}
			return r
		}, value)
	case "collapse":
		return strings.Join(strings.Fields(value), " ")
	default:
		return value
	}
}

var (
	decimalPattern    = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	integerPattern    = regexp.MustCompile(`^[+-]?\d+$`)
	durationPattern   = regexp.MustCompile(`^(-)?P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)
	timePattern       = regexp.MustCompile(`^(\d{2}):(\d{2}):(\d{2})(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	datePattern       = regexp.MustCompile(`^-?\d{4,}-\d{2}-\d{2}(Z|[+-]\d{2}:\d{2})?$`)
	dateTimePattern   = regexp.MustCompile(`^-?\d{4,}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	gYearMonthPattern = regexp.MustCompile(`^-?\d{4,}-(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	gYearPattern      = regexp.MustCompile(`^-?\d{4,}(Z|[+-]\d{2}:\d{2})?$`)
	gMonthDayPattern  = regexp.MustCompile(`^--(\d{2})-(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	gDayPattern       = regexp.MustCompile(`^---(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
	gMonthPattern     = regexp.MustCompile(`^--(\d{2})(Z|[+-]\d{2}:\d{2})?$`)
)

// Lexical validators

func validateString(value string) error {
	return nil
}

func validateBoolean(value string) error {
	switch value {
	case "true", "false", "1", "0":
		return nil
	}
	return fmt.Errorf("invalid boolean value: %s", value)
}

func validateDecimal(value string) error {
	if !decimalPattern.MatchString(value) {
		return fmt.Errorf("invalid decimal value: %s", value)
	}
	return nil
}

func validateFloat(value string) error {
	if _, err := parseXSDFloat(value, 32); err != nil {
		return fmt.Errorf("invalid float value: %s", value)
	}
	return nil
}

func validateDouble(value string) error {
	if _, err := parseXSDFloat(value, 64); err != nil {
		return fmt.Errorf("invalid double value: %s", value)
	}
	return nil
}

func validateDuration(value string) error {
	m := durationPattern.FindStringSubmatch(value)
	if m == nil || strings.HasSuffix(value, "T") {
		return fmt.Errorf("invalid duration value: %s", value)
	}
	for _, part := range m[2:] {
		if part != "" {
			return nil
		}
	}
	return fmt.Errorf("duration must have at least one component: %s", value)
}

func validateDateTime(value string) error {
	if !dateTimePattern.MatchString(value) {
		return fmt.Errorf("invalid dateTime value: %s", value)
	}
	if _, err := decodeDateTime(value, nil); err != nil {
		return fmt.Errorf("invalid dateTime value: %s", value)
	}
	return nil
}

func validateTime(value string) error {
	m := timePattern.FindStringSubmatch(value)
	if m == nil {
		return fmt.Errorf("invalid time value: %s", value)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	second, _ := strconv.Atoi(m[3])
	if hour > 23 || minute > 59 || second > 59 {
		if !(hour == 24 && minute == 0 && second == 0) {
			return fmt.Errorf("invalid time value: %s", value)
		}
	}
	return nil
}

func validateDate(value string) error {
	if !datePattern.MatchString(value) {
		return fmt.Errorf("invalid date value: %s", value)
	}
	if strings.HasPrefix(value, "-") {
		// years before 0001 are allowed but not representable as time.Time
		return nil
	}
	if _, err := decodeDate(value, nil); err != nil {
		return fmt.Errorf("invalid date value: %s", value)
	}
	return nil
}

func validateGYearMonth(value string) error {
	m := gYearMonthPattern.FindStringSubmatch(value)
	if m == nil || !inRange(m[1], 1, 12) {
		return fmt.Errorf("invalid gYearMonth value: %s", value)
	}
	return nil
}

func validateGYear(value string) error {
	if !gYearPattern.MatchString(value) {
		return fmt.Errorf("invalid gYear value: %s", value)
	}
	return nil
}

func validateGMonthDay(value string) error {
	m := gMonthDayPattern.FindStringSubmatch(value)
	if m == nil || !inRange(m[1], 1, 12) || !inRange(m[2], 1, 31) {
		return fmt.Errorf("invalid gMonthDay value: %s", value)
	}
	return nil
}

func validateGDay(value string) error {
	m := gDayPattern.FindStringSubmatch(value)
	if m == nil || !inRange(m[1], 1, 31) {
		return fmt.Errorf("invalid gDay value: %s", value)
	}
	return nil
}

func validateGMonth(value string) error {
	m := gMonthPattern.FindStringSubmatch(value)
	if m == nil || !inRange(m[1], 1, 12) {
		return fmt.Errorf("invalid gMonth value: %s", value)
	}
	return nil
}

func inRange(digits string, lo, hi int) bool {
	n, err := strconv.Atoi(digits)
	return err == nil && n >= lo && n <= hi
}

func validateHexBinary(value string) error {
	if len(value)%2 != 0 {
		return fmt.Errorf("hexBinary must have even number of characters: %s", value)
	}
	if _, err := hex.DecodeString(value); err != nil {
		return fmt.Errorf("invalid hexBinary value: %s", value)
	}
	return nil
}

func validateBase64Binary(value string) error {
	if _, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(value, " ", "")); err != nil {
		return fmt.Errorf("invalid base64Binary value: %s", value)
	}
	return nil
}

func validateQName(value string) error {
	prefix, local, found := strings.Cut(value, ":")
	if found {
		if validateNCName(prefix) != nil || validateNCName(local) != nil {
			return fmt.Errorf("invalid QName: %s", value)
		}
		return nil
	}
	if validateNCName(value) != nil {
		return fmt.Errorf("invalid QName: %s", value)
	}
	return nil
}

func validateNormalizedString(value string) error {
	if strings.ContainsAny(value, "\r\n\t") {
		return fmt.Errorf("normalizedString cannot contain CR, LF, or TAB")
	}
	return nil
}

func validateToken(value string) error {
	if err := validateNormalizedString(value); err != nil {
		return err
	}
	if strings.HasPrefix(value, " ") || strings.HasSuffix(value, " ") {
		return fmt.Errorf("token cannot have leading or trailing spaces")
	}
	if strings.Contains(value, "  ") {
		return fmt.Errorf("token cannot have multiple consecutive spaces")
	}
	return nil
}

func validateLanguage(value string) error {
	if _, err := language.Parse(value); err != nil {
		return fmt.Errorf("invalid language tag %s: %w", value, err)
	}
	return nil
}

func validateName(value string) error {
	if value == "" {
		return fmt.Errorf("Name cannot be empty")
	}
	for i, r := range value {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' && r != ':' {
				return fmt.Errorf("Name must start with letter, underscore, or colon: %s", value)
			}
			continue
		}
		if !isNameChar(r) {
			return fmt.Errorf("invalid character in Name: %s", string(r))
		}
	}
	return nil
}

func validateNCName(value string) error {
	if err := validateName(value); err != nil {
		return err
	}
	if strings.Contains(value, ":") {
		return fmt.Errorf("NCName cannot contain colons: %s", value)
	}
	return nil
}

func validateNMTOKEN(value string) error {
	if value == "" {
		return fmt.Errorf("NMTOKEN cannot be empty")
	}
	for _, r := range value {
		if !isNameChar(r) {
			return fmt.Errorf("invalid character in NMTOKEN: %s", string(r))
		}
	}
	return nil
}

func isNameChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_' || r == ':'
}

func validateListOf(item func(string) error) func(string) error {
	return func(value string) error {
		fields := strings.Fields(value)
		if len(fields) == 0 {
			return fmt.Errorf("list cannot be empty")
		}
		for _, f := range fields {
			if err := item(f); err != nil {
				return err
			}
		}
		return nil
	}
}

// validateIntegerRange checks the integer lexical space and optional
// inclusive bounds.
func validateIntegerRange(min, max *big.Int) func(string) error {
	return func(value string) error {
		if !integerPattern.MatchString(value) {
			return fmt.Errorf("invalid integer value: %s", value)
		}
		i, ok := new(big.Int).SetString(strings.TrimPrefix(value, "+"), 10)
		if !ok {
			return fmt.Errorf("invalid integer value: %s", value)
		}
		if min != nil && i.Cmp(min) < 0 {
			return fmt.Errorf("value %s is below the minimum %s", value, min)
		}
		if max != nil && i.Cmp(max) > 0 {
			return fmt.Errorf("value %s is above the maximum %s", value, max)
		}
		return nil
	}
}

// Decoders

func decodeString(text string, _ *xmlnode.Node) (any, error) {
	return text, nil
}

func decodeTokens(text string, _ *xmlnode.Node) (any, error) {
	return strings.Fields(text), nil
}

func decodeBoolean(text string, _ *xmlnode.Node) (any, error) {
	return text == "true" || text == "1", nil
}

func decodeDecimal(text string, _ *xmlnode.Node) (any, error) {
	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal value: %s", text)
	}
	return d, nil
}

func decodeInt(text string, _ *xmlnode.Node) (any, error) {
	n, err := strconv.ParseInt(strings.TrimPrefix(text, "+"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("integer value out of range: %s", text)
	}
	return n, nil
}

func decodeUint(text string, _ *xmlnode.Node) (any, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(text, "+"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("integer value out of range: %s", text)
	}
	return n, nil
}

func parseXSDFloat(text string, bits int) (float64, error) {
	switch text {
	case "INF", "+INF":
		return math.Inf(1), nil
	case "-INF":
		return math.Inf(-1), nil
	case "NaN":
		return math.NaN(), nil
	}
	if strings.ContainsAny(text, "xXpP_") || strings.EqualFold(text, "inf") || strings.EqualFold(text, "infinity") || strings.EqualFold(text, "nan") {
		return 0, fmt.Errorf("invalid float value: %s", text)
	}
	return strconv.ParseFloat(text, bits)
}

func decodeFloat(bits int) func(string, *xmlnode.Node) (any, error) {
	return func(text string, _ *xmlnode.Node) (any, error) {
		return parseXSDFloat(text, bits)
	}
}

func decodeDuration(text string, _ *xmlnode.Node) (any, error) {
	return ParseDuration(text)
}

func decodeHexBinary(text string, _ *xmlnode.Node) (any, error) {
	return hex.DecodeString(text)
}

func decodeBase64Binary(text string, _ *xmlnode.Node) (any, error) {
	return base64.StdEncoding.DecodeString(strings.ReplaceAll(text, " ", ""))
}

func decodeQName(text string, node *xmlnode.Node) (any, error) {
	if node == nil {
		return QName{Local: text}, nil
	}
	name, err := node.ResolveQName(text)
	if err != nil {
		return nil, err
	}
	return qnameOf(name), nil
}

// Time values without a timezone use floatingZone so that formatting
// reproduces the absence of a timezone designator.
var floatingZone = time.FixedZone("", 0)

const (
	dateTimeLayout = "2006-01-02T15:04:05.999999999"
	dateLayout     = "2006-01-02"
	timeLayout     = "15:04:05.999999999"
)

func splitZone(text string) (string, *time.Location, error) {
	if strings.HasSuffix(text, "Z") {
		return text[:len(text)-1], time.UTC, nil
	}
	if n := len(text); n >= 6 && (text[n-6] == '+' || text[n-6] == '-') && text[n-3] == ':' {
		hours, err1 := strconv.Atoi(text[n-5 : n-3])
		minutes, err2 := strconv.Atoi(text[n-2:])
		if err1 != nil || err2 != nil || hours > 14 || minutes > 59 {
			return "", nil, fmt.Errorf("invalid timezone in %s", text)
		}
		offset := hours*3600 + minutes*60
		if text[n-6] == '-' {
			offset = -offset
		}
		return text[:n-6], time.FixedZone("", offset), nil
	}
	return text, floatingZone, nil
}

func decodeWithLayout(layout, text string) (time.Time, error) {
	rest, loc, err := splitZone(text)
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(layout, rest, loc)
}

func decodeDateTime(text string, _ *xmlnode.Node) (any, error) {
	return decodeWithLayout(dateTimeLayout, text)
}

func decodeDate(text string, _ *xmlnode.Node) (any, error) {
	return decodeWithLayout(dateLayout, text)
}

func decodeTimeOfDay(text string, _ *xmlnode.Node) (any, error) {
	if strings.HasPrefix(text, "24:00:00") {
		text = "00" + text[2:]
	}
	return decodeWithLayout(timeLayout, text)
}

// Encoders

func encodeString(value any, _ *xmlnode.Node) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	if d, ok := toDecimal(value); ok {
		return d.String(), nil
	}
	return fmt.Sprint(value), nil
}

func encodeLanguage(value any, node *xmlnode.Node) (string, error) {
	if tag, ok := value.(language.Tag); ok {
		return tag.String(), nil
	}
	return encodeString(value, node)
}

func encodeTokens(value any, node *xmlnode.Node) (string, error) {
	if list, ok := asList(value); ok {
		parts := make([]string, len(list))
		for i, item := range list {
			s, err := encodeString(item, node)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, " "), nil
	}
	return encodeString(value, node)
}

func encodeBoolean(value any, _ *xmlnode.Node) (string, error) {
	if b, ok := value.(bool); ok {
		return strconv.FormatBool(b), nil
	}
	if d, ok := toDecimal(value); ok {
		switch {
		case d.IsZero():
			return "false", nil
		case d.Equal(decimal.NewFromInt(1)):
			return "true", nil
		}
	}
	return "", fmt.Errorf("cannot encode %T as boolean", value)
}

func encodeDecimal(value any, _ *xmlnode.Node) (string, error) {
	d, ok := toDecimal(value)
	if !ok {
		return "", fmt.Errorf("cannot encode %T as decimal", value)
	}
	return d.String(), nil
}

func encodeInteger(value any, _ *xmlnode.Node) (string, error) {
	if i, ok := value.(*big.Int); ok {
		return i.String(), nil
	}
	d, ok := toDecimal(value)
	if !ok {
		return "", fmt.Errorf("cannot encode %T as integer", value)
	}
	if !d.IsInteger() {
		return "", fmt.Errorf("value %s is not an integer", d)
	}
	return d.String(), nil
}

func encodeFloat(bits int) func(any, *xmlnode.Node) (string, error) {
	return func(value any, _ *xmlnode.Node) (string, error) {
		var f float64
		switch v := value.(type) {
		case float64:
			f = v
		case float32:
			f = float64(v)
		case decimal.Decimal:
			f = v.InexactFloat64()
		default:
			d, ok := toDecimal(value)
			if !ok {
				return "", fmt.Errorf("cannot encode %T as float", value)
			}
			f = d.InexactFloat64()
		}
		switch {
		case math.IsInf(f, 1):
			return "INF", nil
		case math.IsInf(f, -1):
			return "-INF", nil
		case math.IsNaN(f):
			return "NaN", nil
		}
		return strconv.FormatFloat(f, 'G', -1, bits), nil
	}
}

func encodeDuration(value any, _ *xmlnode.Node) (string, error) {
	switch v := value.(type) {
	case Duration:
		return v.String(), nil
	case *Duration:
		return v.String(), nil
	case time.Duration:
		return DurationOf(v).String(), nil
	}
	return "", fmt.Errorf("cannot encode %T as duration", value)
}

func formatZone(t time.Time) string {
	if t.Location() == floatingZone {
		return ""
	}
	_, offset := t.Zone()
	if offset == 0 {
		if t.Location() == time.UTC || t.Location().String() == "" {
			return "Z"
		}
	}
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%c%02d:%02d", sign, offset/3600, (offset%3600)/60)
}

func encodeTime(layout string) func(any, *xmlnode.Node) (string, error) {
	return func(value any, _ *xmlnode.Node) (string, error) {
		t, ok := value.(time.Time)
		if !ok {
			return "", fmt.Errorf("cannot encode %T as %s", value, layout)
		}
		return t.Format(layout) + formatZone(t), nil
	}
}

func encodeGregorian(layout string) func(any, *xmlnode.Node) (string, error) {
	return func(value any, node *xmlnode.Node) (string, error) {
		if t, ok := value.(time.Time); ok {
			return t.Format(layout) + formatZone(t), nil
		}
		return encodeString(value, node)
	}
}

func encodeHexBinary(value any, _ *xmlnode.Node) (string, error) {
	b, ok := value.([]byte)
	if !ok {
		return "", fmt.Errorf("cannot encode %T as hexBinary", value)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

func encodeBase64Binary(value any, _ *xmlnode.Node) (string, error) {
	b, ok := value.([]byte)
	if !ok {
		return "", fmt.Errorf("cannot encode %T as base64Binary", value)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func encodeQName(value any, node *xmlnode.Node) (string, error) {
	var q QName
	switch v := value.(type) {
	case QName:
		q = v
	case *QName:
		q = *v
	default:
		return "", fmt.Errorf("cannot encode %T as QName", value)
	}
	if q.Namespace == "" || node == nil {
		return q.Local, nil
	}
	return node.PrefixFor(q.Namespace, "") + ":" + q.Local, nil
}

func decimalFromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, false
	}
	return decimal.NewFromFloat(f), true
}

func decimalFromUint(n uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
}
