package xsd

import (
	"fmt"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
)

// attributeMember is an entry of a complex type's attribute list. Resolution
// flattens groups and references into *Attribute and *AnyAttribute values.
type attributeMember interface {
	resolveAttributes() ([]attributeMember, error)
}

// Attribute is an attribute declaration.
type Attribute struct {
	name       string
	qname      QName
	typ        Type
	required   bool
	prohibited bool
	dflt       *string
	fixed      *string
	global     bool
	state      resolveState
}

// NewAttribute returns a local attribute declaration.
func NewAttribute(name QName, t Type, required bool) *Attribute {
	return &Attribute{name: name.Local, qname: name, typ: t, required: required}
}

func (a *Attribute) Name() string   { return a.name }
func (a *Attribute) QName() QName   { return a.qname }
func (a *Attribute) Type() Type     { return a.typ }
func (a *Attribute) Required() bool { return a.required }

// Default returns the default value of the attribute, if declared.
func (a *Attribute) Default() (string, bool) {
	if a.dflt == nil {
		return "", false
	}
	return *a.dflt, true
}

func (a *Attribute) resolveAttributes() ([]attributeMember, error) {
	if a.state == unresolved {
		a.state = resolving
		t, err := resolveRef(a.typ)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", a.qname, err)
		}
		if _, ok := t.(SimpleValueType); !ok {
			return nil, fmt.Errorf("attribute %s: type %s is not a simple type", a.qname, typeLabel(t))
		}
		a.typ = t
		a.state = resolved
	}
	return []attributeMember{a}, nil
}

func (a *Attribute) signature(s *Schema) string {
	if a.typ.IsGlobal() {
		return s.prefixedName(a.typ.Name())
	}
	return a.typ.signature(s, false)
}

func (a *Attribute) render(node *xmlnode.Node, value any, r *renderState) error {
	if value == nil {
		if a.required {
			return validationErrorf(r.path, "cvc-complex-type.4", "attribute %s is required", a.name)
		}
		return nil
	}
	text, err := a.typ.(SimpleValueType).FormatValue(node, value)
	if err != nil {
		return validationErrorf(r.path, "cvc-attribute.3", "attribute %s: %v", a.name, err)
	}
	if a.fixed != nil {
		if err := a.checkFixed(node, value); err != nil {
			return validationErrorf(r.path, "cvc-au", "%v", err)
		}
	}
	node.SetAttr(a.qname.Namespace, a.qname.Local, text)
	return nil
}

func (a *Attribute) parse(node *xmlnode.Node, text string, p *parseState) (any, error) {
	v, err := parseSimpleText(a.typ, node, text, p.settings.ValidateFacetsOnParse)
	if err != nil {
		return nil, fmt.Errorf("attribute %s: %w", a.name, err)
	}
	if a.fixed != nil {
		if err := a.checkFixed(node, v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// valueConstraint returns the default, or else the fixed, lexical value.
func (a *Attribute) valueConstraint() (string, bool) {
	if a.dflt != nil {
		return *a.dflt, true
	}
	if a.fixed != nil {
		return *a.fixed, true
	}
	return "", false
}

func (a *Attribute) checkFixed(node *xmlnode.Node, value any) error {
	want, err := a.typ.(SimpleValueType).ParseValue(node, *a.fixed)
	if err != nil {
		return err
	}
	if !ValuesEqual(value, want) {
		return fmt.Errorf("value of attribute %s must be %q", a.name, *a.fixed)
	}
	return nil
}

// AttributeRef is an attribute ref="..." placeholder. use, default and fixed
// given on the reference override the global declaration.
type AttributeRef struct {
	ref        QName
	required   bool
	prohibited bool
	dflt       *string
	fixed      *string
	schema     *Schema
}

func (ar *AttributeRef) resolveAttributes() ([]attributeMember, error) {
	global, err := ar.schema.GetAttribute(ar.ref)
	if err != nil {
		return nil, err
	}
	if _, err := global.resolveAttributes(); err != nil {
		return nil, err
	}
	a := *global
	a.required = ar.required
	a.prohibited = ar.prohibited
	if ar.dflt != nil {
		a.dflt = ar.dflt
	}
	if ar.fixed != nil {
		a.fixed = ar.fixed
	}
	return []attributeMember{&a}, nil
}

// AttributeGroup is a named, reusable set of attributes.
type AttributeGroup struct {
	name    QName
	members []attributeMember
	state   resolveState
}

func (g *AttributeGroup) Name() QName { return g.name }

// Attributes returns the flattened attribute declarations of the group.
func (g *AttributeGroup) Attributes() ([]*Attribute, error) {
	members, err := g.resolveAttributes()
	if err != nil {
		return nil, err
	}
	var out []*Attribute
	for _, m := range members {
		if a, ok := m.(*Attribute); ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (g *AttributeGroup) resolveAttributes() ([]attributeMember, error) {
	switch g.state {
	case resolved:
		return g.members, nil
	case resolving:
		return nil, fmt.Errorf("attributeGroup %s references itself", g.name)
	}
	g.state = resolving
	members, err := resolveAttributeList(g.members)
	if err != nil {
		return nil, err
	}
	g.members = members
	g.state = resolved
	return members, nil
}

// AttributeGroupRef is an attributeGroup ref="..." placeholder.
type AttributeGroupRef struct {
	ref    QName
	schema *Schema
}

func (gr *AttributeGroupRef) resolveAttributes() ([]attributeMember, error) {
	g, err := gr.schema.GetAttributeGroup(gr.ref)
	if err != nil {
		return nil, err
	}
	return g.resolveAttributes()
}

// resolveAttributeList flattens members into attributes and wildcards.
func resolveAttributeList(members []attributeMember) ([]attributeMember, error) {
	var out []attributeMember
	for _, m := range members {
		flat, err := m.resolveAttributes()
		if err != nil {
			return nil, err
		}
		out = append(out, flat...)
	}
	return out, nil
}

func attributeKey(m attributeMember) string {
	switch m := m.(type) {
	case *Attribute:
		return m.qname.String()
	case *AnyAttribute:
		return "##any"
	}
	return fmt.Sprintf("%p", m)
}

// mergeAttributes applies derived over base: a derived attribute replaces
// the base attribute of the same name in place, new ones are appended and
// prohibited ones are dropped.
func mergeAttributes(base, derived []attributeMember) []attributeMember {
	out := append([]attributeMember(nil), base...)
	index := make(map[string]int, len(out))
	for i, m := range out {
		index[attributeKey(m)] = i
	}
	for _, m := range derived {
		key := attributeKey(m)
		if i, ok := index[key]; ok {
			out[i] = m
			continue
		}
		index[key] = len(out)
		out = append(out, m)
	}
	kept := out[:0]
	for _, m := range out {
		if a, ok := m.(*Attribute); ok && a.prohibited {
			continue
		}
		kept = append(kept, m)
	}
	return kept
}
