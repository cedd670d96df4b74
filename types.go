package xsd

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
)

// Type is a node of the type graph: a builtin, simple or complex type.
type Type interface {
	// Name returns the qualified name, or the zero QName for anonymous
	// types.
	Name() QName
	IsGlobal() bool
	// Signature describes the structure of the type, using the prefixes
	// assigned by s.
	Signature(s *Schema) string

	signature(s *Schema, standalone bool) string
	resolveType() (Type, error)
	renderValue(node *xmlnode.Node, value any, r *renderState) error
	parseNode(node *xmlnode.Node, p *parseState) (any, error)
}

// SimpleValueType is a type whose content is a single text value.
type SimpleValueType interface {
	Type
	FormatValue(node *xmlnode.Node, value any) (string, error)
	ParseValue(node *xmlnode.Node, text string) (any, error)
}

// Unbounded is the MaxOccurs value of maxOccurs="unbounded".
const Unbounded = -1

type resolveState int

const (
	unresolved resolveState = iota
	resolving
	resolved
)

// renderState carries the field path of the value being rendered.
type renderState struct {
	schema *Schema
	path   []string
}

func (r *renderState) push(name string) func() {
	r.path = append(r.path, name)
	return func() { r.path = r.path[:len(r.path)-1] }
}

func (r *renderState) pushIndex(i int) func() {
	return r.push("[" + strconv.Itoa(i) + "]")
}

// parseState carries the settings for one parse call.
type parseState struct {
	schema   *Schema
	settings Settings
	logger   *slog.Logger
}

// UnresolvedType stands in for a type="..." reference whose target was not
// yet visited.
type UnresolvedType struct {
	name   QName
	schema *Schema
}

func (u *UnresolvedType) Name() QName    { return u.name }
func (u *UnresolvedType) IsGlobal() bool { return true }

func (u *UnresolvedType) Signature(s *Schema) string {
	return s.prefixedName(u.name)
}

func (u *UnresolvedType) signature(s *Schema, standalone bool) string {
	return s.prefixedName(u.name)
}

// target looks the name up without resolving the result.
func (u *UnresolvedType) target() (Type, error) {
	return u.schema.GetType(u.name)
}

func (u *UnresolvedType) resolveType() (Type, error) {
	t, err := u.target()
	if err != nil {
		return nil, err
	}
	return t.resolveType()
}

func (u *UnresolvedType) renderValue(node *xmlnode.Node, value any, r *renderState) error {
	return &LookupError{Kind: ErrUnknownType, Name: u.name}
}

func (u *UnresolvedType) parseNode(node *xmlnode.Node, p *parseState) (any, error) {
	return nil, &LookupError{Kind: ErrUnknownType, Name: u.name}
}

// deref replaces a placeholder by the type it names. The returned type may
// still be unresolved.
func deref(t Type) (Type, error) {
	for {
		u, ok := t.(*UnresolvedType)
		if !ok {
			return t, nil
		}
		next, err := u.target()
		if err != nil {
			return nil, err
		}
		t = next
	}
}

// resolveRef derefs and resolves t.
func resolveRef(t Type) (Type, error) {
	t, err := deref(t)
	if err != nil {
		return nil, err
	}
	return t.resolveType()
}

// AnyType is xs:anyType: content passes through unchanged unless the
// instance names its type with xsi:type.
type AnyType struct{}

func (a *AnyType) Name() QName    { return xsdName("anyType") }
func (a *AnyType) IsGlobal() bool { return true }

func (a *AnyType) Signature(s *Schema) string {
	return s.prefixedName(a.Name())
}

func (a *AnyType) signature(s *Schema, standalone bool) string {
	return s.prefixedName(a.Name())
}

func (a *AnyType) resolveType() (Type, error) { return a, nil }

func (a *AnyType) renderValue(node *xmlnode.Node, value any, r *renderState) error {
	switch v := value.(type) {
	case *AnyObject:
		if v.Type == nil {
			setXSINil(node)
			return nil
		}
		if err := v.Type.renderValue(node, v.Value, r); err != nil {
			return err
		}
		setXSIType(node, v.Type.Name())
		return nil
	case *Object:
		if v.Type() == nil {
			return validationErrorf(r.path, "", "cannot render an untyped record as anyType")
		}
		if err := v.Type().renderValue(node, v, r); err != nil {
			return err
		}
		if !v.Type().Name().IsZero() {
			setXSIType(node, v.Type().Name())
		}
		return nil
	case *xmlnode.Node:
		node.Append(v.Clone())
		return nil
	case []*xmlnode.Node:
		for _, child := range v {
			node.Append(child.Clone())
		}
		return nil
	}
	text, err := encodeString(value, node)
	if err != nil {
		return validationErrorf(r.path, "", "%v", err)
	}
	node.Text = text
	return nil
}

func (a *AnyType) parseNode(node *xmlnode.Node, p *parseState) (any, error) {
	if hasXSINil(node) {
		return nil, nil
	}
	if xsiType, ok := node.Attr(XSINamespace, "type"); ok && p.schema != nil {
		name, err := node.ResolveQName(xsiType)
		if err != nil {
			return nil, err
		}
		t, err := p.schema.GetType(qnameOf(name))
		if err != nil {
			p.logger.Warn("unknown xsi:type, keeping raw content", "type", xsiType, "error", err)
			return rawContent(node), nil
		}
		if _, same := t.(*AnyType); same {
			return rawContent(node), nil
		}
		v, err := t.parseNode(node, p)
		if err != nil {
			return nil, err
		}
		if _, ok := t.(*ComplexType); ok {
			return v, nil
		}
		return &AnyObject{Type: t, Value: v}, nil
	}
	return rawContent(node), nil
}

func rawContent(node *xmlnode.Node) any {
	if len(node.Children) > 0 {
		children := make([]*xmlnode.Node, len(node.Children))
		for i, c := range node.Children {
			children[i] = c.Clone()
		}
		return children
	}
	if node.Text == "" {
		return nil
	}
	return node.Text
}

func setXSIType(node *xmlnode.Node, name QName) {
	node.PrefixFor(XSINamespace, "xsi")
	value := name.Local
	if name.Namespace != "" {
		value = node.PrefixFor(name.Namespace, "") + ":" + name.Local
	}
	node.SetAttr(XSINamespace, "type", value)
}

func occursString(n int) string {
	if n == Unbounded {
		return "unbounded"
	}
	return strconv.Itoa(n)
}

func typeLabel(t Type) string {
	if t == nil {
		return "<nil>"
	}
	if n := t.Name(); !n.IsZero() {
		return n.String()
	}
	return fmt.Sprintf("anonymous %T", t)
}

func setXSINil(node *xmlnode.Node) {
	node.PrefixFor(XSINamespace, "xsi")
	node.SetAttr(XSINamespace, "nil", "true")
}

func hasXSINil(node *xmlnode.Node) bool {
	v, ok := node.Attr(XSINamespace, "nil")
	return ok && (v == "true" || v == "1")
}
