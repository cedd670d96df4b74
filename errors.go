package xsd

import (
	"errors"
	"fmt"
	"strings"
)

// Lookup failure kinds. A *LookupError matches one of these with errors.Is.
var (
	ErrUnknownType           = errors.New("unknown type")
	ErrUnknownElement        = errors.New("unknown element")
	ErrUnknownAttribute      = errors.New("unknown attribute")
	ErrUnknownGroup          = errors.New("unknown group")
	ErrUnknownAttributeGroup = errors.New("unknown attributeGroup")
)

// SchemaSyntaxError reports a malformed or unsupported schema construct.
// Schema construction stops at the first one.
type SchemaSyntaxError struct {
	Construct   string // local name of the offending schema element
	Message     string
	Location    string // schema document location, if known
	Line        int
	Unsupported bool
}

func (e *SchemaSyntaxError) Error() string {
	var b strings.Builder
	if e.Location != "" {
		b.WriteString(e.Location)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d", e.Line)
		}
		b.WriteString(": ")
	} else if e.Line > 0 {
		fmt.Fprintf(&b, "line %d: ", e.Line)
	}
	if e.Construct != "" {
		fmt.Fprintf(&b, "<%s>: ", e.Construct)
	}
	b.WriteString(e.Message)
	return b.String()
}

// LookupError reports a name that is not present in any schema registry.
type LookupError struct {
	Kind      error
	Name      QName
	Available []string // known namespaces, to hint at prefix mistakes
}

func (e *LookupError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.Name)
	if len(e.Available) > 0 {
		msg += fmt.Sprintf(" (known namespaces: %s)", strings.Join(e.Available, ", "))
	}
	return msg
}

func (e *LookupError) Unwrap() error { return e.Kind }

// UnexpectedElementError is returned when a required content member cannot
// consume the next XML child.
type UnexpectedElementError struct {
	Got      QName
	Expected QName
	Line     int
}

func (e *UnexpectedElementError) Error() string {
	if e.Got.IsZero() {
		return fmt.Sprintf("missing element, expected %s", e.Expected)
	}
	if e.Expected.IsZero() {
		return fmt.Sprintf("unexpected element %s", e.Got)
	}
	return fmt.Sprintf("unexpected element %s, expected %s", e.Got, e.Expected)
}

// ValidationError reports a value that cannot be rendered: a missing
// required field, an occurrence count out of bounds or a facet violation.
type ValidationError struct {
	Message string
	Path    []string
	Code    string // W3C cvc-* rule, when one applies
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if len(e.Path) > 0 {
		msg = fmt.Sprintf("%s (%s)", msg, e.PathString())
	}
	return msg
}

// PathString returns the dotted field path.
func (e *ValidationError) PathString() string {
	var b strings.Builder
	for i, p := range e.Path {
		if strings.HasPrefix(p, "[") {
			b.WriteString(p)
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(p)
	}
	return b.String()
}

// XMLParseError wraps a failure raised while parsing an instance document,
// adding the source line of the node being parsed.
type XMLParseError struct {
	Line int
	Err  error
}

func (e *XMLParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return e.Err.Error()
}

func (e *XMLParseError) Unwrap() error { return e.Err }

func validationErrorf(path []string, code, format string, args ...any) *ValidationError {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
		Path:    append([]string(nil), path...),
		Code:    code,
	}
}

func syntaxErrorf(construct string, line int, format string, args ...any) *SchemaSyntaxError {
	return &SchemaSyntaxError{
		Construct: construct,
		Line:      line,
		Message:   fmt.Sprintf(format, args...),
	}
}

// wrapParseError attaches line context once; errors already carrying it pass
// through.
func wrapParseError(err error, line int) error {
	var pe *XMLParseError
	if errors.As(err, &pe) {
		return err
	}
	return &XMLParseError{Line: line, Err: err}
}
