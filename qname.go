package xsd

import (
	"encoding/xml"
	"strings"
)

// Well-known namespaces
const (
	XSDNamespace = "http://www.w3.org/2001/XMLSchema"
	XSINamespace = "http://www.w3.org/2001/XMLSchema-instance"
	XMLNamespace = "http://www.w3.org/XML/1998/namespace"
)

// QName represents a qualified name
type QName struct {
	Namespace string
	Local     string
}

// String returns the Clark notation of the name: {namespace}local.
func (q QName) String() string {
	if q.Namespace == "" {
		return q.Local
	}
	return "{" + q.Namespace + "}" + q.Local
}

// IsZero reports whether q is the empty name (anonymous constructs).
func (q QName) IsZero() bool {
	return q.Namespace == "" && q.Local == ""
}

// XMLName converts q to an encoding/xml name.
func (q QName) XMLName() xml.Name {
	return xml.Name{Space: q.Namespace, Local: q.Local}
}

// ParseQName parses Clark notation ({ns}local) or a bare local name.
func ParseQName(s string) QName {
	if strings.HasPrefix(s, "{") {
		if end := strings.Index(s, "}"); end > 0 {
			return QName{Namespace: s[1:end], Local: s[end+1:]}
		}
	}
	return QName{Local: s}
}

func qnameOf(name xml.Name) QName {
	return QName{Namespace: name.Space, Local: name.Local}
}

func xsdName(local string) QName {
	return QName{Namespace: XSDNamespace, Local: local}
}

func xsiName(local string) QName {
	return QName{Namespace: XSINamespace, Local: local}
}
