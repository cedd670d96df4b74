package xsd

import (
	"errors"
	"fmt"
	"strings"
)

// Diagnostic represents a rustc-style diagnostic for a schema or codec
// error
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Position Position `json:"position"`
	Tag      string   `json:"tag,omitempty"`
	Path     string   `json:"path,omitempty"`
	SpecRef  string   `json:"spec_ref,omitempty"`
	Hints    []string `json:"hints,omitempty"`
}

// Severity represents the severity level of a diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Position contains source position information
type Position struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// DiagnosticConverter converts errors returned by this package to
// rustc-style diagnostics
type DiagnosticConverter struct {
	fileName string
}

// NewDiagnosticConverter creates a converter reporting positions in
// fileName
func NewDiagnosticConverter(fileName string) *DiagnosticConverter {
	return &DiagnosticConverter{fileName: fileName}
}

// Convert converts an error to a diagnostic
func (dc *DiagnosticConverter) Convert(err error) Diagnostic {
	diag := Diagnostic{
		Severity: SeverityError,
		Code:     "E000",
		Message:  err.Error(),
		Position: Position{File: dc.fileName},
	}

	var pe *XMLParseError
	if errors.As(err, &pe) {
		diag.Position.Line = pe.Line
		diag.Message = pe.Err.Error()
	}

	var (
		se *SchemaSyntaxError
		le *LookupError
		ue *UnexpectedElementError
		ve *ValidationError
	)
	switch {
	case errors.As(err, &se):
		diag.Code = "E100"
		if se.Unsupported {
			diag.Code = "E101"
			diag.Hints = append(diag.Hints, "this construct is not supported by the schema builder")
		}
		diag.Message = se.Message
		diag.Tag = se.Construct
		if se.Location != "" {
			diag.Position.File = se.Location
		}
		diag.Position.Line = se.Line
	case errors.As(err, &le):
		diag.Code = dc.mapErrorCode(le.Kind.Error())
		if len(le.Available) > 0 {
			diag.Hints = append(diag.Hints,
				fmt.Sprintf("known namespaces: %s", strings.Join(le.Available, ", ")),
				"check the namespace prefix of the name")
		}
	case errors.As(err, &ue):
		diag.Code = "E201"
		if ue.Line > 0 {
			diag.Position.Line = ue.Line
		}
		if !ue.Expected.IsZero() {
			diag.Hints = append(diag.Hints, fmt.Sprintf("Expected: %s", ue.Expected))
		}
	case errors.As(err, &ve):
		diag.Code = dc.mapErrorCode(ve.Code)
		diag.Path = ve.PathString()
		diag.SpecRef = dc.getSpecRef(ve.Code)
		diag.Hints = dc.generateHints(ve)
	}
	return diag
}

// mapErrorCode maps cvc codes and lookup kinds to short codes
func (dc *DiagnosticConverter) mapErrorCode(code string) string {
	codeMap := map[string]string{
		"cvc-complex-type.2.4.a":   "E201", // Invalid child element
		"cvc-complex-type.2.4.b":   "E202", // Missing required element
		"cvc-complex-type.2.4.d":   "E203", // Unexpected element
		"cvc-complex-type.4":       "E204", // Missing required attribute
		"cvc-elt.3.1":              "E205", // Nil on a non-nillable element
		"cvc-elt.5.2.2.2.2":        "E206", // Fixed value mismatch
		"cvc-attribute.3":          "E207", // Invalid attribute value
		"cvc-facet-valid":          "E208", // Facet violation
		"cvc-wildcard.2":           "E209", // Wildcard namespace mismatch
		"cvc-au":                   "E210", // Fixed attribute value mismatch
		"cvc-datatype-valid.1.2.1": "E211", // Lexical form not valid for the type

		ErrUnknownType.Error():           "E300",
		ErrUnknownElement.Error():        "E301",
		ErrUnknownAttribute.Error():      "E302",
		ErrUnknownGroup.Error():          "E303",
		ErrUnknownAttributeGroup.Error(): "E304",
	}
	if mapped, ok := codeMap[code]; ok {
		return mapped
	}
	if code == "" {
		return "E200"
	}
	return "E" + strings.ReplaceAll(code, ".", "_")
}

// getSpecRef returns a reference to the XML Schema rule
func (dc *DiagnosticConverter) getSpecRef(code string) string {
	if strings.HasPrefix(code, "cvc-") {
		return "W3C XML Schema 1.0 Part 1, " + code
	}
	return ""
}

// generateHints creates helpful hints based on the error
func (dc *DiagnosticConverter) generateHints(ve *ValidationError) []string {
	var hints []string
	switch ve.Code {
	case "cvc-complex-type.2.4.b":
		hints = append(hints, "set the field or make the element optional (minOccurs=\"0\")")
	case "cvc-complex-type.2.4.d":
		hints = append(hints, "remove items or raise maxOccurs")
	case "cvc-elt.3.1":
		hints = append(hints, "only elements declared nillable=\"true\" accept Nil")
	case "cvc-complex-type.4":
		hints = append(hints, "required attributes must be set on the value")
	}
	if len(ve.Path) > 0 {
		hints = append(hints, fmt.Sprintf("field: %s", ve.PathString()))
	}
	return hints
}

// ErrorFormatter provides rustc-style error formatting
type ErrorFormatter struct {
	Color bool
}

// Format formats a diagnostic in rustc style
func (ef *ErrorFormatter) Format(diag Diagnostic, source string) string {
	var sb strings.Builder

	severity := string(diag.Severity)
	if ef.Color {
		switch diag.Severity {
		case SeverityError:
			severity = "\033[31;1merror\033[0m" // Red
		case SeverityWarning:
			severity = "\033[33;1mwarning\033[0m" // Yellow
		case SeverityInfo:
			severity = "\033[36;1minfo\033[0m" // Cyan
		}
	}

	sb.WriteString(fmt.Sprintf("%s[%s]: %s\n", severity, diag.Code, diag.Message))

	if diag.Position.Line > 0 {
		sb.WriteString(fmt.Sprintf(" --> %s:%d\n", diag.Position.File, diag.Position.Line))
	} else if diag.Position.File != "" {
		sb.WriteString(fmt.Sprintf(" --> %s\n", diag.Position.File))
	}

	if source != "" && diag.Position.Line > 0 {
		lines := strings.Split(source, "\n")
		if diag.Position.Line <= len(lines) {
			sb.WriteString(fmt.Sprintf("%4d | ", diag.Position.Line))
			sb.WriteString(lines[diag.Position.Line-1] + "\n")
			if diag.Position.Column > 0 {
				sb.WriteString("     | ")
				sb.WriteString(strings.Repeat(" ", diag.Position.Column-1))
				if ef.Color {
					sb.WriteString("\033[31;1m^\033[0m") // Red caret
				} else {
					sb.WriteString("^")
				}
				sb.WriteString("\n")
			}
		}
	}

	if len(diag.Hints) > 0 {
		sb.WriteString("     |\n")
		for _, hint := range diag.Hints {
			sb.WriteString("     = help: " + hint + "\n")
		}
	}

	if diag.SpecRef != "" {
		sb.WriteString("     = note: see " + diag.SpecRef + "\n")
	}

	return sb.String()
}
