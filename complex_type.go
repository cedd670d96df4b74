package xsd

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
)

// Derivation is the relation between a complex type and its base.
type Derivation int

const (
	DerivationNone Derivation = iota
	DerivationExtension
	DerivationRestriction
)

func (d Derivation) String() string {
	switch d {
	case DerivationExtension:
		return "extension"
	case DerivationRestriction:
		return "restriction"
	}
	return "none"
}

// simpleContentField is the field holding the text of a complex type with
// simple content.
const simpleContentField = "_value_1"

// ComplexType is a complex type definition. Its content is an indicator, or
// a synthesized element for simple content.
type ComplexType struct {
	name       QName
	content    Particle
	attributes []attributeMember
	base       Type
	derivation Derivation
	// facets restrict the simple content of the base.
	facets   *FacetSet
	abstract bool
	mixed    bool
	state    resolveState
	fields   *fieldCache
}

type attributeField struct {
	name string
	attr attributeMember
}

type fieldCache struct {
	once       sync.Once
	nested     []namedParticle
	elements   []namedParticle
	attributes []attributeField
	byName     map[string]any // name -> Particle or attributeMember
}

// NewComplexType returns a complex type with the given content model and
// attributes. Schemas build their types from xs:complexType; this is for
// content models built in code.
func NewComplexType(name QName, content Indicator, attributes ...*Attribute) *ComplexType {
	ct := newComplexType(name)
	if content != nil {
		ct.content = content
	}
	for _, a := range attributes {
		ct.attributes = append(ct.attributes, a)
	}
	return ct
}

func newComplexType(name QName) *ComplexType {
	return &ComplexType{name: name, fields: &fieldCache{}}
}

func (ct *ComplexType) Name() QName            { return ct.name }
func (ct *ComplexType) IsGlobal() bool         { return !ct.name.IsZero() }
func (ct *ComplexType) Base() Type             { return ct.base }
func (ct *ComplexType) Derivation() Derivation { return ct.derivation }
func (ct *ComplexType) Abstract() bool         { return ct.abstract }

// Content returns the content model: an Indicator, a simple content
// *Element, or nil.
func (ct *ComplexType) Content() Particle { return ct.content }

// Attributes returns the resolved attribute declarations.
func (ct *ComplexType) Attributes() []*Attribute {
	var out []*Attribute
	for _, m := range ct.attributes {
		if a, ok := m.(*Attribute); ok {
			out = append(out, a)
		}
	}
	return out
}

// SimpleContent reports whether the type holds text rather than elements.
func (ct *ComplexType) SimpleContent() bool {
	_, ok := ct.content.(*Element)
	return ok
}

// FieldNames returns the names of the value object fields: content fields
// first, then attributes.
func (ct *ComplexType) FieldNames() []string {
	f := ct.fieldNames()
	names := make([]string, 0, len(f.elements)+len(f.attributes))
	for _, e := range f.elements {
		names = append(names, e.name)
	}
	for _, a := range f.attributes {
		names = append(names, a.name)
	}
	return names
}

func (ct *ComplexType) fieldNames() *fieldCache {
	f := ct.fields
	f.once.Do(func() {
		switch c := ct.content.(type) {
		case nil:
		case *Element:
			f.nested = []namedParticle{{name: simpleContentField, particle: c}}
		case Indicator:
			if c.MaxOccurs() != 1 {
				f.nested = []namedParticle{{name: "_value_1", particle: c}}
			} else {
				f.nested = []namedParticle{{particle: c}}
			}
		}
		f.byName = make(map[string]any)
		for _, np := range f.nested {
			if np.name == "" {
				f.elements = append(f.elements, np.particle.(Indicator).fields()...)
				continue
			}
			f.elements = append(f.elements, np)
		}
		for _, e := range f.elements {
			f.byName[e.name] = e.particle
		}

		anyNames := &attributeNames{}
		for _, m := range ct.attributes {
			var name string
			switch m := m.(type) {
			case *Attribute:
				name = m.name
				if _, clash := f.byName[name]; clash {
					name = "attr__" + name
				}
			case *AnyAttribute:
				name = anyNames.next()
			}
			f.attributes = append(f.attributes, attributeField{name: name, attr: m})
			f.byName[name] = m
		}
	})
	return f
}

type attributeNames struct{ n int }

func (g *attributeNames) next() string {
	g.n++
	return fmt.Sprintf("_attr_%d", g.n)
}

// Signature describes the fields of the type, such as
// ns0:Person(name: xsd:string, age: xsd:int).
func (ct *ComplexType) Signature(s *Schema) string {
	return ct.signature(s, true)
}

func (ct *ComplexType) signature(s *Schema, standalone bool) string {
	f := ct.fieldNames()
	var parts []string
	for _, np := range f.nested {
		if np.name == simpleContentField && ct.SimpleContent() {
			parts = append(parts, np.name+": "+np.particle.signature(s, false))
			continue
		}
		if part := np.particle.signature(s, false); part != "" {
			parts = append(parts, part)
		}
	}
	for _, af := range f.attributes {
		switch a := af.attr.(type) {
		case *Attribute:
			parts = append(parts, af.name+": "+a.signature(s))
		case *AnyAttribute:
			parts = append(parts, af.name+": "+a.signature(s))
		}
	}
	value := strings.Join(parts, ", ")
	if standalone {
		return s.prefixedName(ct.name) + "(" + value + ")"
	}
	return value
}

func (ct *ComplexType) resolveType() (Type, error) {
	if ct.state != unresolved {
		return ct, nil
	}
	ct.state = resolving

	attrs, err := resolveAttributeList(ct.attributes)
	if err != nil {
		return nil, fmt.Errorf("complex type %s: %w", typeLabel(ct), err)
	}
	ct.attributes = attrs

	if ct.base != nil {
		base, err := resolveRef(ct.base)
		if err != nil {
			return nil, fmt.Errorf("complex type %s: %w", typeLabel(ct), err)
		}
		ct.base = base
		switch ct.derivation {
		case DerivationExtension:
			err = ct.extend(base)
		case DerivationRestriction:
			err = ct.restrict(base)
		}
		if err != nil {
			return nil, fmt.Errorf("complex type %s: %w", typeLabel(ct), err)
		}
	}
	ct.attributes = mergeAttributes(nil, ct.attributes)

	if ct.content != nil {
		content, err := ct.content.resolveParticle()
		if err != nil {
			return nil, fmt.Errorf("complex type %s: %w", typeLabel(ct), err)
		}
		ct.content = content
	}
	ct.state = resolved
	return ct, nil
}

func simpleContentElement(t Type) *Element {
	return NewElement(QName{Local: simpleContentField}, t, 1, 1)
}

// extend merges the base into ct: base attributes first, base content
// before the derived content.
func (ct *ComplexType) extend(base Type) error {
	baseCT, ok := base.(*ComplexType)
	if !ok {
		if _, simple := base.(SimpleValueType); !simple {
			if _, isAny := base.(*AnyType); isAny {
				return nil
			}
			return fmt.Errorf("cannot extend %s", typeLabel(base))
		}
		if ct.content == nil {
			ct.content = simpleContentElement(base)
		}
		return nil
	}

	ct.attributes = mergeAttributes(baseCT.attributes, ct.attributes)

	switch {
	case baseCT.content == nil:
	case ct.content == nil:
		ct.content = baseCT.content
	default:
		merged, err := mergeContent(baseCT.content, ct.content)
		if err != nil {
			return err
		}
		ct.content = merged
	}
	return nil
}

// mergeContent combines base and derived content models for an extension.
func mergeContent(base, derived Particle) (Particle, error) {
	baseInd, ok := base.(Indicator)
	if !ok {
		return nil, fmt.Errorf("cannot add element content to a type with simple content")
	}
	derivedInd, ok := derived.(Indicator)
	if !ok {
		return nil, fmt.Errorf("unexpected derived content %T", derived)
	}

	if _, ok := baseInd.(*Choice); ok {
		if seq, ok := derivedInd.(*Sequence); ok && !seq.repeats() {
			merged := seq.clone(seq.min, seq.max).(*Sequence)
			merged.insert(0, baseInd)
			return merged, nil
		}
		return NewSequence(1, 1, baseInd, derivedInd), nil
	}
	if _, ok := derivedInd.(*Choice); ok {
		if seq, ok := baseInd.(*Sequence); ok && !seq.repeats() {
			merged := seq.clone(seq.min, seq.max).(*Sequence)
			merged.particles = append(merged.particles, derivedInd)
			return merged, nil
		}
		return NewSequence(1, 1, baseInd, derivedInd), nil
	}

	merged, ok := derivedInd.clone(derivedInd.MinOccurs(), derivedInd.MaxOccurs()).(*Sequence)
	if !ok || merged.repeats() {
		return NewSequence(1, 1, baseInd, derivedInd), nil
	}
	if baseSeq, ok := baseInd.(*Sequence); ok && !baseSeq.repeats() {
		merged.particles = append(baseSeq.Particles(), merged.particles...)
		return merged, nil
	}
	merged.insert(0, baseInd)
	return merged, nil
}

// restrict applies a restriction of base: derived attributes win and the
// content is the derived content, or else the base content.
func (ct *ComplexType) restrict(base Type) error {
	baseCT, ok := base.(*ComplexType)
	if !ok {
		if _, simple := base.(SimpleValueType); simple && ct.content == nil {
			ct.content = simpleContentElement(ct.restrictedSimple(base))
		}
		return nil
	}
	ct.attributes = mergeAttributes(baseCT.attributes, ct.attributes)
	if ct.content != nil {
		return nil
	}
	if el, ok := baseCT.content.(*Element); ok && ct.facets.Len() > 0 {
		if _, err := el.resolveParticle(); err != nil {
			return err
		}
		ct.content = simpleContentElement(ct.restrictedSimple(el.typ))
		return nil
	}
	ct.content = baseCT.content
	return nil
}

// restrictedSimple derives an anonymous simple type carrying the facets of
// a simpleContent restriction.
func (ct *ComplexType) restrictedSimple(base Type) Type {
	if ct.facets.Len() == 0 {
		return base
	}
	return &SimpleType{variety: VarietyRestriction, base: base, facets: ct.facets}
}

// NewObject builds a value of the type from named fields. Nested maps for
// complex fields become objects of the field's type. Unknown names are an
// error.
func (ct *ComplexType) NewObject(fields map[string]any) (*Object, error) {
	f := ct.fieldNames()
	obj := ct.emptyObject()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		member, ok := f.byName[k]
		if !ok && k != RawElementsField {
			return nil, fmt.Errorf("%s got an unexpected field %q, signature: %s",
				typeLabel(ct), k, ct.signature(nil, false))
		}
		v, err := convertField(member, fields[k])
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		obj.Set(k, v)
	}
	return obj, nil
}

// NewObjectArgs builds a value of the type from positional values, taken
// in field order.
func (ct *ComplexType) NewObjectArgs(args ...any) (*Object, error) {
	names := ct.FieldNames()
	if len(args) > len(names) {
		return nil, fmt.Errorf("%s takes %d positional values but %d were given",
			typeLabel(ct), len(names), len(args))
	}
	fields := make(map[string]any, len(args))
	for i, a := range args {
		fields[names[i]] = a
	}
	return ct.NewObject(fields)
}

// emptyObject returns an object holding every field: nil, or an empty list
// for repeated fields.
func (ct *ComplexType) emptyObject() *Object {
	f := ct.fieldNames()
	obj := newObject(ct)
	for _, e := range f.elements {
		if e.particle.MaxOccurs() != 1 {
			obj.Set(e.name, []any{})
		} else {
			obj.Set(e.name, nil)
		}
	}
	for _, a := range f.attributes {
		obj.Set(a.name, nil)
	}
	return obj
}

// convertField turns nested maps into objects of the member's type.
func convertField(member any, v any) (any, error) {
	switch m := member.(type) {
	case *Element:
		ct, ok := m.typ.(*ComplexType)
		if !ok {
			return v, nil
		}
		return convertEach(v, func(item any) (any, error) {
			if fields, ok := item.(map[string]any); ok {
				return ct.NewObject(fields)
			}
			return item, nil
		})
	case Indicator:
		return convertEach(v, func(item any) (any, error) {
			if fields, ok := item.(map[string]any); ok {
				return newRecord(m, fields)
			}
			return item, nil
		})
	}
	return v, nil
}

func convertEach(v any, convert func(any) (any, error)) (any, error) {
	if _, ok := v.(map[string]any); ok {
		return convert(v)
	}
	items, ok := asList(v)
	if !ok {
		return v, nil
	}
	out := make([]any, len(items))
	for i, item := range items {
		c, err := convert(item)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// newRecord builds the value of one occurrence of a repeated indicator.
func newRecord(ind Indicator, fields map[string]any) (*Object, error) {
	byName := make(map[string]Particle)
	for _, f := range ind.fields() {
		byName[f.name] = f.particle
	}
	rec := NewRecord()
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p, ok := byName[k]
		if !ok {
			return nil, fmt.Errorf("unexpected field %q", k)
		}
		v, err := convertField(p, fields[k])
		if err != nil {
			return nil, err
		}
		rec.Set(k, v)
	}
	return rec, nil
}

// coerce accepts the value shapes a complex type renders from.
func (ct *ComplexType) coerce(value any) (*Object, error) {
	switch v := value.(type) {
	case *Object:
		return v, nil
	case map[string]any:
		return ct.NewObject(v)
	case nil:
		return ct.emptyObject(), nil
	}
	if ct.SimpleContent() {
		obj := ct.emptyObject()
		obj.Set(simpleContentField, value)
		return obj, nil
	}
	return nil, fmt.Errorf("cannot render %T as %s", value, typeLabel(ct))
}

func (ct *ComplexType) renderValue(node *xmlnode.Node, value any, r *renderState) error {
	obj, err := ct.coerce(value)
	if err != nil {
		return validationErrorf(r.path, "", "%v", err)
	}
	f := ct.fieldNames()

	for _, af := range f.attributes {
		v, _ := obj.Lookup(af.name)
		pop := r.push(af.name)
		switch a := af.attr.(type) {
		case *Attribute:
			err = a.render(node, v, r)
		case *AnyAttribute:
			err = a.render(node, v, r)
		}
		pop()
		if err != nil {
			return err
		}
	}

	if el, ok := ct.content.(*Element); ok {
		v := obj.Get(simpleContentField)
		if v == nil {
			return nil
		}
		pop := r.push(simpleContentField)
		defer pop()
		return el.typ.renderValue(node, v, r)
	}

	for _, np := range f.nested {
		if np.name == "" {
			err = np.particle.render(node, obj, r)
		} else {
			pop := r.push(np.name)
			err = np.particle.render(node, obj.Get(np.name), r)
			pop()
		}
		if err != nil {
			return err
		}
	}

	if raw, ok := obj.Get(RawElementsField).([]*xmlnode.Node); ok {
		for _, n := range raw {
			node.Append(n.Clone())
		}
	}
	return nil
}

func (ct *ComplexType) parseNode(node *xmlnode.Node, p *parseState) (any, error) {
	return ct.parseElement(node, p, false)
}

// parseElement decodes the attributes and children of node. With allowNone,
// an element without children and attributes parses to nil.
func (ct *ComplexType) parseElement(node *xmlnode.Node, p *parseState, allowNone bool) (any, error) {
	f := ct.fieldNames()
	if len(f.elements) == 0 && len(f.attributes) == 0 {
		return nil, nil
	}
	obj := ct.emptyObject()

	if el, ok := ct.content.(*Element); ok {
		v, err := el.typ.parseNode(node, p)
		if err != nil {
			return nil, err
		}
		obj.Set(simpleContentField, v)
	} else {
		if allowNone && len(node.Children) == 0 && len(node.Attrs) == 0 {
			return nil, nil
		}
		q := newNodeQueue(node.Children)
		for _, np := range f.nested {
			v, err := np.particle.parseQueue(q, p)
			if err != nil {
				if isUnexpected(err) {
					return nil, &XMLParseError{Line: node.Line, Err: err}
				}
				return nil, err
			}
			if np.name == "" {
				mergeRecord(obj, v)
			} else {
				obj.Set(np.name, v)
			}
		}
		if q.Len() > 0 {
			head := q.head()
			if p.settings.Strict {
				return nil, &XMLParseError{
					Line: head.Line,
					Err:  &UnexpectedElementError{Got: qnameOf(head.Name), Line: head.Line},
				}
			}
			p.logger.Warn("keeping unexpected elements",
				"type", typeLabel(ct), "first", qnameOf(head.Name).String(), "count", q.Len())
			obj.Set(RawElementsField, append([]*xmlnode.Node(nil), q.nodes...))
		}
	}

	if err := ct.parseAttributes(node, obj, f, p); err != nil {
		return nil, err
	}
	return obj, nil
}

func (ct *ComplexType) parseAttributes(node *xmlnode.Node, obj *Object, f *fieldCache, p *parseState) error {
	declared := make(map[QName]bool)
	var wildcards []attributeField
	for _, af := range f.attributes {
		a, ok := af.attr.(*Attribute)
		if !ok {
			wildcards = append(wildcards, af)
			continue
		}
		declared[a.qname] = true
		text, found := node.Attr(a.qname.Namespace, a.qname.Local)
		if !found && a.qname.Namespace != "" && p.settings.LenientNamespaces {
			if text, found = node.Attr("", a.qname.Local); found {
				declared[QName{Local: a.qname.Local}] = true
			}
		}
		if !found {
			lexical, ok := a.valueConstraint()
			if !ok {
				continue
			}
			text = lexical
		}
		v, err := a.parse(node, text, p)
		if err != nil {
			return &XMLParseError{Line: node.Line, Err: err}
		}
		obj.Set(af.name, v)
	}
	for _, af := range wildcards {
		if m := af.attr.(*AnyAttribute).parse(node, declared); m != nil {
			obj.Set(af.name, m)
		}
	}
	return nil
}
