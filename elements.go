package xsd

import (
	"fmt"
	"sync"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
)

// Element is an element declaration, global or local to a content model.
type Element struct {
	occurs
	name     string // field name in the parent value
	qname    QName
	typ      Type
	nillable bool
	abstract bool
	global   bool
	dflt     *string
	fixed    *string
	// substitutes is shared by every copy of a global element: it memoizes
	// the members of its substitution group met while parsing.
	substitutes *sync.Map
	state       resolveState
	schema      *Schema
}

// NewElement returns a local element declaration. Schemas build their
// elements from xs:element; this is for content models built in code.
func NewElement(name QName, t Type, minOccurs, maxOccurs int) *Element {
	return &Element{
		occurs:      occurs{min: minOccurs, max: maxOccurs},
		name:        name.Local,
		qname:       name,
		typ:         t,
		substitutes: &sync.Map{},
	}
}

func (e *Element) Name() string   { return e.name }
func (e *Element) QName() QName   { return e.qname }
func (e *Element) Type() Type     { return e.typ }
func (e *Element) IsGlobal() bool { return e.global }
func (e *Element) Nillable() bool { return e.nillable }
func (e *Element) Abstract() bool { return e.abstract }

// Default returns the default value of the element, if declared.
func (e *Element) Default() (string, bool) {
	if e.dflt == nil {
		return "", false
	}
	return *e.dflt, true
}

// Fixed returns the fixed value of the element, if declared.
func (e *Element) Fixed() (string, bool) {
	if e.fixed == nil {
		return "", false
	}
	return *e.fixed, true
}

// withOccurs copies the element with other occurrence bounds, as used by
// element references.
func (e *Element) withOccurs(minOccurs, maxOccurs int) *Element {
	c := *e
	c.occurs = occurs{min: minOccurs, max: maxOccurs}
	return &c
}

func (e *Element) resolveParticle() (Particle, error) {
	if e.state != unresolved {
		return e, nil
	}
	e.state = resolving
	// Assign the target before resolving it so that a cycle through this
	// element sees the real type.
	t, err := deref(e.typ)
	if err != nil {
		return nil, fmt.Errorf("element %s: %w", e.qname, err)
	}
	e.typ = t
	if e.typ, err = t.resolveType(); err != nil {
		return nil, fmt.Errorf("element %s: %w", e.qname, err)
	}
	e.state = resolved
	return e, nil
}

// Signature describes the element and its type, such as
// ns0:container(foo: xsd:string).
func (e *Element) Signature(s *Schema) string {
	return e.signature(s, true)
}

func (e *Element) signature(s *Schema, standalone bool) string {
	var value string
	if e.typ.IsGlobal() {
		value = s.prefixedName(e.typ.Name())
	} else {
		value = e.typ.signature(s, false)
		if _, ok := e.typ.(*ComplexType); ok && !standalone {
			value = "{" + value + "}"
		}
	}
	if standalone {
		value = s.prefixedName(e.qname) + "(" + value + ")"
	}
	if e.repeats() {
		return value + "[]"
	}
	return value
}

// NewObject builds a value of the element's complex type from named fields.
func (e *Element) NewObject(fields map[string]any) (*Object, error) {
	ct, ok := e.typ.(*ComplexType)
	if !ok {
		return nil, fmt.Errorf("element %s has simple type %s", e.qname, typeLabel(e.typ))
	}
	return ct.NewObject(fields)
}

// NewObjectArgs builds a value of the element's complex type from
// positional field values.
func (e *Element) NewObjectArgs(args ...any) (*Object, error) {
	ct, ok := e.typ.(*ComplexType)
	if !ok {
		return nil, fmt.Errorf("element %s has simple type %s", e.qname, typeLabel(e.typ))
	}
	return ct.NewObjectArgs(args...)
}

// Render appends the XML form of value to parent. Nothing is appended when
// rendering fails.
func (e *Element) Render(parent *xmlnode.Node, value any) error {
	r := &renderState{schema: e.schema, path: []string{e.name}}
	start := len(parent.Children)
	if err := e.render(parent, value, r); err != nil {
		parent.Children = parent.Children[:start]
		return err
	}
	return nil
}

// Parse decodes node, which must be an instance of the element. A document
// node is replaced by its root element.
func (e *Element) Parse(node *xmlnode.Node, s *Schema) (any, error) {
	if s == nil {
		s = e.schema
	}
	if node.IsDocument() {
		if node = node.FirstChild(); node == nil {
			return nil, fmt.Errorf("empty document")
		}
	}
	return e.parseElementNode(node, s.newParseState(), false)
}

func (e *Element) render(parent *xmlnode.Node, value any, r *renderState) error {
	if e.repeats() && value != nil && !isNil(value) {
		items, ok := asList(value)
		if !ok {
			items = []any{value}
		}
		if err := e.checkCount(len(items), e.name, r); err != nil {
			return err
		}
		for i, item := range items {
			pop := r.pushIndex(i)
			err := e.renderItem(parent, item, r)
			pop()
			if err != nil {
				return err
			}
		}
		return nil
	}
	if value == nil && e.min > 0 && !e.nillable {
		return validationErrorf(r.path, "cvc-complex-type.2.4.b", "missing element %s", e.name)
	}
	return e.renderItem(parent, value, r)
}

func (e *Element) renderItem(parent *xmlnode.Node, value any, r *renderState) error {
	switch {
	case isNil(value):
		if !e.nillable {
			return validationErrorf(r.path, "cvc-elt.3.1", "element %s is not nillable", e.name)
		}
		setXSINil(parent.AddChild(e.qname.Namespace, e.qname.Local))
		return nil
	case value == nil:
		if e.min == 0 {
			return nil
		}
		child := parent.AddChild(e.qname.Namespace, e.qname.Local)
		if e.nillable {
			setXSINil(child)
		}
		return nil
	}

	child := parent.AddChild(e.qname.Namespace, e.qname.Local)
	t, dynamic := e.dynamicType(value)
	if ao, ok := value.(*AnyObject); ok && dynamic {
		value = ao.Value
	}
	if err := t.renderValue(child, value, r); err != nil {
		return err
	}
	if dynamic && !t.Name().IsZero() {
		setXSIType(child, t.Name())
	}
	if e.fixed != nil {
		if err := e.checkFixed(child, value); err != nil {
			return validationErrorf(r.path, "cvc-elt.5.2.2.2.2", "%v", err)
		}
	}
	return nil
}

// dynamicType returns the type a value renders with when it differs from
// the declared type.
func (e *Element) dynamicType(value any) (Type, bool) {
	if _, ok := e.typ.(*AnyType); ok {
		return e.typ, false
	}
	switch v := value.(type) {
	case *AnyObject:
		if v.Type != nil && v.Type != e.typ {
			return v.Type, true
		}
	case *Object:
		if ct := v.Type(); ct != nil && Type(ct) != e.typ {
			return ct, true
		}
	}
	return e.typ, false
}

func (e *Element) checkFixed(node *xmlnode.Node, value any) error {
	st, ok := e.typ.(SimpleValueType)
	if !ok {
		return nil
	}
	want, err := st.ParseValue(node, *e.fixed)
	if err != nil {
		return err
	}
	if !ValuesEqual(value, want) {
		return fmt.Errorf("value of element %s must be %q", e.name, *e.fixed)
	}
	return nil
}

func (e *Element) parseQueue(q *nodeQueue, p *parseState) (any, error) {
	var results []any
	for n := 0; e.more(n) && q.Len() > 0; n++ {
		i, target := e.match(q, p)
		if i < 0 {
			if n == 0 && e.min > 0 {
				head := q.head()
				return nil, &UnexpectedElementError{Got: qnameOf(head.Name), Expected: e.qname, Line: head.Line}
			}
			break
		}
		node := q.take(i)
		v, err := target.parseElementNode(node, p, true)
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return occurrenceResult(e.occurs, results), nil
}

// match finds the next child this element accepts. Only the head is
// considered unless sequence order is ignored.
func (e *Element) match(q *nodeQueue, p *parseState) (int, *Element) {
	limit := 1
	if p.settings.IgnoreSequenceOrder {
		limit = q.Len()
	}
	for i := 0; i < limit; i++ {
		if target := e.matchNode(q.nodes[i], p); target != nil {
			return i, target
		}
	}
	return -1, nil
}

func (e *Element) matchNode(node *xmlnode.Node, p *parseState) *Element {
	name := qnameOf(node.Name)
	if name == e.qname {
		return e
	}
	if sub := e.substitute(name, p); sub != nil {
		return sub
	}
	if p.settings.LenientNamespaces && name.Local == e.qname.Local {
		p.logger.Warn("matched element by local name",
			"expected", e.qname.String(), "got", name.String(), "line", node.Line)
		return e
	}
	return nil
}

// substitute returns the member of this element's substitution group named
// name, remembering it for later lookups.
func (e *Element) substitute(name QName, p *parseState) *Element {
	if e.substitutes == nil || p.schema == nil {
		return nil
	}
	if v, ok := e.substitutes.Load(name); ok {
		return v.(*Element)
	}
	sub, ok := p.schema.substitutionFor(e.qname, name)
	if !ok {
		return nil
	}
	e.substitutes.Store(name, sub)
	p.logger.Debug("substitution element discovered", "head", e.qname.String(), "element", name.String())
	return sub
}

func (e *Element) parseElementNode(node *xmlnode.Node, p *parseState, allowNone bool) (any, error) {
	if hasXSINil(node) {
		return Nil, nil
	}
	t := e.typ
	if _, ok := t.(*AnyType); !ok {
		t = e.instanceType(node, p)
	}

	var v any
	var err error
	if ct, ok := t.(*ComplexType); ok {
		v, err = ct.parseElement(node, p, allowNone)
	} else {
		v, err = t.parseNode(node, p)
	}
	if err != nil {
		return nil, wrapParseError(err, node.Line)
	}

	st, simple := t.(SimpleValueType)
	if v == nil && simple && len(node.Children) == 0 {
		lexical := e.dflt
		if lexical == nil {
			lexical = e.fixed
		}
		if lexical != nil {
			if v, err = st.ParseValue(node, *lexical); err != nil {
				return nil, wrapParseError(err, node.Line)
			}
		}
	}
	if e.fixed != nil && v != nil && simple {
		if err := e.checkFixed(node, v); err != nil {
			return nil, wrapParseError(err, node.Line)
		}
	}
	return v, nil
}

// instanceType applies an xsi:type override. Unknown names keep the
// declared type.
func (e *Element) instanceType(node *xmlnode.Node, p *parseState) Type {
	xsiType, ok := node.Attr(XSINamespace, "type")
	if !ok || p.schema == nil {
		return e.typ
	}
	name, err := node.ResolveQName(xsiType)
	if err != nil {
		p.logger.Warn("ignoring xsi:type", "value", xsiType, "error", err)
		return e.typ
	}
	t, err := p.schema.GetType(qnameOf(name))
	if err != nil {
		p.logger.Warn("ignoring unknown xsi:type", "type", xsiType, "element", e.qname.String())
		return e.typ
	}
	return t
}

// ElementRef is an element ref="..." placeholder, replaced by a copy of the
// global element when the schema resolves.
type ElementRef struct {
	occurs
	ref    QName
	schema *Schema
}

func (er *ElementRef) resolveParticle() (Particle, error) {
	el, err := er.schema.GetElement(er.ref)
	if err != nil {
		return nil, err
	}
	if _, err := el.resolveParticle(); err != nil {
		return nil, err
	}
	return el.withOccurs(er.min, er.max), nil
}

func (er *ElementRef) signature(s *Schema, standalone bool) string {
	return s.prefixedName(er.ref)
}

func (er *ElementRef) render(parent *xmlnode.Node, value any, r *renderState) error {
	return &LookupError{Kind: ErrUnknownElement, Name: er.ref}
}

func (er *ElementRef) parseQueue(q *nodeQueue, p *parseState) (any, error) {
	return nil, &LookupError{Kind: ErrUnknownElement, Name: er.ref}
}
