package xsd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
)

// visitor walks one schema document in document order and fills the
// schema registries. References to components not yet visited become
// placeholders that resolve later.
type visitor struct {
	schema *Schema
	doc    *schemaDocument
}

func (v *visitor) syntaxError(node *xmlnode.Node, format string, args ...any) *SchemaSyntaxError {
	err := syntaxErrorf(node.Name.Local, node.Line, format, args...)
	err.Location = v.doc.location
	return err
}

func (v *visitor) unsupported(node *xmlnode.Node) *SchemaSyntaxError {
	err := v.syntaxError(node, "unsupported construct %s", node.Name.Local)
	err.Unsupported = true
	return err
}

func (v *visitor) visitSchema(root *xmlnode.Node) error {
	for _, child := range root.Children {
		if child.Name.Space != XSDNamespace {
			continue
		}
		var err error
		switch child.Name.Local {
		case "annotation", "notation":
		case "import":
			err = v.visitImport(child)
		case "include":
			err = v.visitInclude(child)
		case "element":
			_, err = v.visitElement(child, true)
		case "attribute":
			_, err = v.visitAttribute(child, true)
		case "simpleType":
			_, err = v.visitSimpleType(child, true)
		case "complexType":
			_, err = v.visitComplexType(child, true)
		case "group":
			_, err = v.visitGroup(child, true)
		case "attributeGroup":
			_, err = v.visitAttributeGroup(child, true)
		default:
			err = v.unsupported(child)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (v *visitor) visitImport(node *xmlnode.Node) error {
	s := v.schema
	namespace := attrValue(node, "namespace")
	location := attrValue(node, "schemaLocation")

	if namespace == XSDNamespace {
		s.logger.Debug("skipping import of the XML Schema namespace")
		return nil
	}
	if location == "" {
		if _, known := s.documents[namespace]; !known {
			s.logger.Warn("import without schemaLocation", "namespace", namespace)
		}
		return nil
	}
	if s.loader == nil {
		s.logger.Warn("no loader for import, skipping", "namespace", namespace, "location", location)
		return nil
	}
	src, err := s.loader.Load(location, v.doc.location)
	if err != nil {
		s.logger.Warn("failed to import schema", "location", location, "error", err)
		return nil
	}
	if s.loaded[src.Location] {
		return nil
	}
	root := src.Root
	if root.IsDocument() {
		root = root.FirstChild()
	}
	if root != nil {
		if tns := attrValue(root, "targetNamespace"); namespace != "" && tns != namespace {
			return v.syntaxError(node,
				"the namespace %q of the import does not match the targetNamespace %q of %s", namespace, tns, src.Location)
		}
	}
	s.logger.Debug("importing schema", "namespace", namespace, "location", src.Location)
	return s.addDocument(src.Root, src.Location, "")
}

func (v *visitor) visitInclude(node *xmlnode.Node) error {
	s := v.schema
	location := attrValue(node, "schemaLocation")
	if s.loader == nil {
		return v.syntaxError(node, "cannot include %s: no loader configured", location)
	}
	src, err := s.loader.Load(location, v.doc.location)
	if err != nil {
		return fmt.Errorf("failed to include %s: %w", location, err)
	}
	if s.loaded[src.Location] {
		return nil
	}
	root := src.Root
	if root.IsDocument() {
		root = root.FirstChild()
	}
	if root != nil {
		if tns := attrValue(root, "targetNamespace"); tns != "" && tns != v.doc.targetNamespace {
			return v.syntaxError(node,
				"included schema %s has targetNamespace %q, expected %q", src.Location, tns, v.doc.targetNamespace)
		}
	}
	return s.addDocument(src.Root, src.Location, v.doc.targetNamespace)
}

// qnameAttr resolves a QName valued attribute against the namespace
// declarations in scope at node.
func (v *visitor) qnameAttr(node *xmlnode.Node, value string) (QName, error) {
	name, err := node.ResolveQName(value)
	if err != nil {
		return QName{}, v.syntaxError(node, "%v", err)
	}
	q := qnameOf(name)
	if q.Namespace == "" && v.doc.chameleon && !strings.Contains(value, ":") {
		q.Namespace = v.doc.targetNamespace
	}
	return q, nil
}

// typeRef returns the type named by value, or a placeholder when it is not
// defined yet.
func (v *visitor) typeRef(node *xmlnode.Node, value string) (Type, error) {
	name, err := v.qnameAttr(node, value)
	if err != nil {
		return nil, err
	}
	s := v.schema
	if t, ok := s.builtinRegistry().Lookup(name); ok {
		return t, nil
	}
	if t, ok := s.types[name]; ok {
		return t, nil
	}
	return &UnresolvedType{name: name, schema: s}, nil
}

func (v *visitor) builtin(local string) Type {
	t, _ := v.schema.builtinRegistry().Lookup(xsdName(local))
	return t
}

func (v *visitor) occurs(node *xmlnode.Node) (occurs, error) {
	o := occurs{min: 1, max: 1}
	if value, ok := node.Attr("", "minOccurs"); ok {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return o, v.syntaxError(node, "invalid minOccurs %q", value)
		}
		o.min = n
	}
	if value, ok := node.Attr("", "maxOccurs"); ok {
		if value == "unbounded" {
			o.max = Unbounded
		} else {
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return o, v.syntaxError(node, "invalid maxOccurs %q", value)
			}
			o.max = n
		}
	}
	return o, nil
}

func boolAttr(node *xmlnode.Node, name string) bool {
	value := attrValue(node, name)
	return value == "true" || value == "1"
}

func optionalAttr(node *xmlnode.Node, name string) *string {
	if value, ok := node.Attr("", name); ok {
		return &value
	}
	return nil
}

// checkRefOnly rejects the attributes that may not accompany ref.
func (v *visitor) checkRefOnly(node *xmlnode.Node, forbidden ...string) error {
	for _, name := range forbidden {
		if hasAttr(node, name) {
			return v.syntaxError(node, "the attribute %s is not allowed when ref is present", name)
		}
	}
	return nil
}

func (v *visitor) register(kind string, name QName, exists bool) {
	if exists {
		v.schema.logger.Warn("duplicate global declaration, replacing the earlier one", "kind", kind, "name", name.String())
	}
}

func (v *visitor) visitElement(node *xmlnode.Node, global bool) (Particle, error) {
	s := v.schema
	o, err := v.occurs(node)
	if err != nil {
		return nil, err
	}

	if ref, ok := node.Attr("", "ref"); ok && !global {
		if err := v.checkRefOnly(node, "name", "type", "nillable", "default", "fixed", "form", "block"); err != nil {
			return nil, err
		}
		name, err := v.qnameAttr(node, ref)
		if err != nil {
			return nil, err
		}
		return &ElementRef{occurs: o, ref: name, schema: s}, nil
	}

	local := attrValue(node, "name")
	if local == "" {
		return nil, v.syntaxError(node, "element must have a name")
	}
	qualified := global
	switch attrValue(node, "form") {
	case "qualified":
		qualified = true
	case "":
		qualified = qualified || v.doc.elementFormQualified
	}
	qname := QName{Local: local}
	if qualified {
		qname.Namespace = v.doc.targetNamespace
	}

	el := &Element{
		occurs:      o,
		name:        local,
		qname:       qname,
		nillable:    boolAttr(node, "nillable"),
		abstract:    boolAttr(node, "abstract"),
		global:      global,
		dflt:        optionalAttr(node, "default"),
		fixed:       optionalAttr(node, "fixed"),
		substitutes: &sync.Map{},
		schema:      s,
	}
	if global {
		el.occurs = occurs{min: 1, max: 1}
	}

	for _, child := range xsdChildren(node) {
		switch child.Name.Local {
		case "annotation", "unique", "key", "keyref":
		case "simpleType":
			if el.typ, err = v.visitSimpleType(child, false); err != nil {
				return nil, err
			}
		case "complexType":
			if el.typ, err = v.visitComplexType(child, false); err != nil {
				return nil, err
			}
		default:
			return nil, v.unsupported(child)
		}
	}
	if typeName, ok := node.Attr("", "type"); ok && el.typ == nil {
		if el.typ, err = v.typeRef(node, typeName); err != nil {
			return nil, err
		}
	}

	if head, ok := node.Attr("", "substitutionGroup"); ok && global {
		headName, err := v.qnameAttr(node, head)
		if err != nil {
			return nil, err
		}
		s.substitutionGroups[headName] = append(s.substitutionGroups[headName], qname)
		if el.typ == nil {
			s.untypedMembers[el] = headName
		}
	}
	if el.typ == nil {
		el.typ = v.builtin("anyType")
	}

	if global {
		_, exists := s.elements[qname]
		v.register("element", qname, exists)
		s.elements[qname] = el
	}
	v.doc.elements = append(v.doc.elements, el)
	return el, nil
}

func (v *visitor) visitAttribute(node *xmlnode.Node, global bool) (attributeMember, error) {
	s := v.schema
	use := attrValue(node, "use")

	if ref, ok := node.Attr("", "ref"); ok && !global {
		if err := v.checkRefOnly(node, "name", "type", "form"); err != nil {
			return nil, err
		}
		name, err := v.qnameAttr(node, ref)
		if err != nil {
			return nil, err
		}
		return &AttributeRef{
			ref:        name,
			required:   use == "required",
			prohibited: use == "prohibited",
			dflt:       optionalAttr(node, "default"),
			fixed:      optionalAttr(node, "fixed"),
			schema:     s,
		}, nil
	}

	local := attrValue(node, "name")
	if local == "" {
		return nil, v.syntaxError(node, "attribute must have a name")
	}
	qualified := global
	switch attrValue(node, "form") {
	case "qualified":
		qualified = true
	case "":
		qualified = qualified || v.doc.attributeFormQualified
	}
	qname := QName{Local: local}
	if qualified {
		qname.Namespace = v.doc.targetNamespace
	}

	a := &Attribute{
		name:       local,
		qname:      qname,
		required:   use == "required",
		prohibited: use == "prohibited",
		dflt:       optionalAttr(node, "default"),
		fixed:      optionalAttr(node, "fixed"),
		global:     global,
	}
	var err error
	for _, child := range xsdChildren(node) {
		switch child.Name.Local {
		case "annotation":
		case "simpleType":
			if a.typ, err = v.visitSimpleType(child, false); err != nil {
				return nil, err
			}
		default:
			return nil, v.unsupported(child)
		}
	}
	if typeName, ok := node.Attr("", "type"); ok && a.typ == nil {
		if a.typ, err = v.typeRef(node, typeName); err != nil {
			return nil, err
		}
	}
	if a.typ == nil {
		a.typ = v.builtin("anySimpleType")
	}

	if global {
		_, exists := s.attributes[qname]
		v.register("attribute", qname, exists)
		s.attributes[qname] = a
	}
	return a, nil
}

// globalName returns the qualified name of a top level component.
func (v *visitor) globalName(node *xmlnode.Node, global bool) (QName, error) {
	if !global {
		return QName{}, nil
	}
	local := attrValue(node, "name")
	if local == "" {
		return QName{}, v.syntaxError(node, "global %s must have a name", node.Name.Local)
	}
	return QName{Namespace: v.doc.targetNamespace, Local: local}, nil
}

func (v *visitor) visitSimpleType(node *xmlnode.Node, global bool) (Type, error) {
	name, err := v.globalName(node, global)
	if err != nil {
		return nil, err
	}
	st := &SimpleType{name: name}

	found := false
	for _, child := range xsdChildren(node) {
		switch child.Name.Local {
		case "annotation":
			continue
		case "restriction":
			err = v.visitSimpleRestriction(st, child)
		case "list":
			err = v.visitList(st, child)
		case "union":
			err = v.visitUnion(st, child)
		default:
			return nil, v.unsupported(child)
		}
		if err != nil {
			return nil, err
		}
		found = true
	}
	if !found {
		return nil, v.syntaxError(node, "simpleType must have a restriction, list or union")
	}

	if global {
		_, exists := v.schema.types[name]
		v.register("simpleType", name, exists)
		v.schema.types[name] = st
	}
	return st, nil
}

func (v *visitor) visitSimpleRestriction(st *SimpleType, node *xmlnode.Node) error {
	st.variety = VarietyRestriction
	facets, inline, err := v.visitFacets(node)
	if err != nil {
		return err
	}
	st.facets = facets
	switch base, ok := node.Attr("", "base"); {
	case ok:
		st.base, err = v.typeRef(node, base)
		return err
	case inline != nil:
		st.base = inline
		return nil
	}
	return v.syntaxError(node, "restriction must have a base type")
}

// visitFacets collects the facets of a restriction and its inline simple
// type, if any.
func (v *visitor) visitFacets(node *xmlnode.Node) (*FacetSet, Type, error) {
	facets := &FacetSet{node: node}
	var inline Type
	var err error
	for _, child := range xsdChildren(node) {
		name := child.Name.Local
		switch {
		case name == "annotation":
		case name == "simpleType":
			if inline, err = v.visitSimpleType(child, false); err != nil {
				return nil, nil, err
			}
		case IsFacet(name):
			if err := facets.Add(name, attrValue(child, "value")); err != nil {
				return nil, nil, v.syntaxError(child, "%v", err)
			}
		case name == "attribute", name == "attributeGroup", name == "anyAttribute",
			name == "sequence", name == "choice", name == "all", name == "group":
			// content of a complex restriction, visited by the caller
		default:
			return nil, nil, v.unsupported(child)
		}
	}
	return facets, inline, nil
}

func (v *visitor) visitList(st *SimpleType, node *xmlnode.Node) error {
	st.variety = VarietyList
	var err error
	if itemType, ok := node.Attr("", "itemType"); ok {
		st.itemType, err = v.typeRef(node, itemType)
		return err
	}
	for _, child := range xsdChildren(node) {
		if child.Name.Local == "simpleType" {
			st.itemType, err = v.visitSimpleType(child, false)
			return err
		}
	}
	return v.syntaxError(node, "list must have an itemType")
}

func (v *visitor) visitUnion(st *SimpleType, node *xmlnode.Node) error {
	st.variety = VarietyUnion
	for _, member := range strings.Fields(attrValue(node, "memberTypes")) {
		t, err := v.typeRef(node, member)
		if err != nil {
			return err
		}
		st.members = append(st.members, t)
	}
	for _, child := range xsdChildren(node) {
		if child.Name.Local != "simpleType" {
			continue
		}
		t, err := v.visitSimpleType(child, false)
		if err != nil {
			return err
		}
		st.members = append(st.members, t)
	}
	if len(st.members) == 0 {
		return v.syntaxError(node, "union must have member types")
	}
	return nil
}

func (v *visitor) visitComplexType(node *xmlnode.Node, global bool) (*ComplexType, error) {
	name, err := v.globalName(node, global)
	if err != nil {
		return nil, err
	}
	ct := newComplexType(name)
	ct.abstract = boolAttr(node, "abstract")
	ct.mixed = boolAttr(node, "mixed")

	for _, child := range xsdChildren(node) {
		switch child.Name.Local {
		case "annotation":
		case "simpleContent":
			err = v.visitSimpleContent(ct, child)
		case "complexContent":
			err = v.visitComplexContent(ct, child)
		case "sequence", "choice", "all", "group":
			ct.content, err = v.visitIndicator(child)
		case "attribute", "attributeGroup", "anyAttribute":
			err = v.visitAttributeMember(&ct.attributes, child)
		default:
			err = v.unsupported(child)
		}
		if err != nil {
			return nil, err
		}
	}

	if global {
		_, exists := v.schema.types[name]
		v.register("complexType", name, exists)
		v.schema.types[name] = ct
	}
	return ct, nil
}

func (v *visitor) visitAttributeMember(members *[]attributeMember, node *xmlnode.Node) error {
	var m attributeMember
	var err error
	switch node.Name.Local {
	case "attribute":
		m, err = v.visitAttribute(node, false)
	case "attributeGroup":
		m, err = v.visitAttributeGroup(node, false)
	case "anyAttribute":
		m, err = v.visitAnyAttribute(node)
	}
	if err != nil {
		return err
	}
	*members = append(*members, m)
	return nil
}

// derivation returns the restriction or extension child of a content
// node.
func (v *visitor) derivation(node *xmlnode.Node) (*xmlnode.Node, Derivation, Type, error) {
	for _, child := range xsdChildren(node) {
		var d Derivation
		switch child.Name.Local {
		case "annotation":
			continue
		case "restriction":
			d = DerivationRestriction
		case "extension":
			d = DerivationExtension
		default:
			return nil, 0, nil, v.unsupported(child)
		}
		base, ok := child.Attr("", "base")
		if !ok {
			return nil, 0, nil, v.syntaxError(child, "%s must have a base type", child.Name.Local)
		}
		t, err := v.typeRef(child, base)
		if err != nil {
			return nil, 0, nil, err
		}
		return child, d, t, nil
	}
	return nil, 0, nil, v.syntaxError(node, "%s must have a restriction or extension", node.Name.Local)
}

func (v *visitor) visitSimpleContent(ct *ComplexType, node *xmlnode.Node) error {
	child, d, base, err := v.derivation(node)
	if err != nil {
		return err
	}
	ct.base, ct.derivation = base, d

	if d == DerivationRestriction {
		facets, inline, err := v.visitFacets(child)
		if err != nil {
			return err
		}
		ct.facets = facets
		if inline != nil {
			ct.content = simpleContentElement(&SimpleType{variety: VarietyRestriction, base: inline, facets: facets})
		}
	}
	for _, member := range xsdChildren(child) {
		switch member.Name.Local {
		case "attribute", "attributeGroup", "anyAttribute":
			if err := v.visitAttributeMember(&ct.attributes, member); err != nil {
				return err
			}
		case "annotation":
		default:
			if d == DerivationExtension {
				return v.unsupported(member)
			}
		}
	}
	return nil
}

func (v *visitor) visitComplexContent(ct *ComplexType, node *xmlnode.Node) error {
	if boolAttr(node, "mixed") {
		ct.mixed = true
	}
	child, d, base, err := v.derivation(node)
	if err != nil {
		return err
	}
	ct.base, ct.derivation = base, d

	for _, member := range xsdChildren(child) {
		switch member.Name.Local {
		case "annotation":
		case "sequence", "choice", "all", "group":
			if ct.content, err = v.visitIndicator(member); err != nil {
				return err
			}
		case "attribute", "attributeGroup", "anyAttribute":
			if err := v.visitAttributeMember(&ct.attributes, member); err != nil {
				return err
			}
		default:
			return v.unsupported(member)
		}
	}
	return nil
}

// visitIndicator builds a sequence, choice, all or group reference.
func (v *visitor) visitIndicator(node *xmlnode.Node) (Particle, error) {
	if node.Name.Local == "group" {
		return v.visitGroup(node, false)
	}
	o, err := v.occurs(node)
	if err != nil {
		return nil, err
	}
	var particles []Particle
	for _, child := range xsdChildren(node) {
		var p Particle
		switch name := child.Name.Local; {
		case name == "annotation":
			continue
		case name == "element":
			p, err = v.visitElement(child, false)
		case name == "any":
			p, err = v.visitAny(child)
		case node.Name.Local == "all":
			return nil, v.syntaxError(child, "%s is not allowed in xs:all", name)
		case name == "sequence", name == "choice", name == "group":
			p, err = v.visitIndicator(child)
		default:
			return nil, v.unsupported(child)
		}
		if err != nil {
			return nil, err
		}
		particles = append(particles, p)
	}

	switch node.Name.Local {
	case "sequence":
		return NewSequence(o.min, o.max, particles...), nil
	case "choice":
		return NewChoice(o.min, o.max, particles...), nil
	case "all":
		return NewAll(o.min, o.max, particles...), nil
	}
	return nil, v.unsupported(node)
}

func (v *visitor) visitGroup(node *xmlnode.Node, global bool) (Particle, error) {
	s := v.schema
	if ref, ok := node.Attr("", "ref"); ok && !global {
		o, err := v.occurs(node)
		if err != nil {
			return nil, err
		}
		name, err := v.qnameAttr(node, ref)
		if err != nil {
			return nil, err
		}
		return &GroupRef{occurs: o, ref: name, schema: s}, nil
	}

	name, err := v.globalName(node, true)
	if err != nil {
		return nil, err
	}
	g := &Group{occurs: occurs{min: 1, max: 1}, name: name}
	for _, child := range xsdChildren(node) {
		switch child.Name.Local {
		case "annotation":
		case "sequence", "choice", "all":
			if g.child != nil {
				return nil, v.syntaxError(node, "group must have exactly one sequence, choice or all")
			}
			p, err := v.visitIndicator(child)
			if err != nil {
				return nil, err
			}
			g.child = p.(Indicator)
		default:
			return nil, v.unsupported(child)
		}
	}
	if g.child == nil {
		return nil, v.syntaxError(node, "group must have exactly one sequence, choice or all")
	}

	_, exists := s.groups[name]
	v.register("group", name, exists)
	s.groups[name] = g
	return g, nil
}

func (v *visitor) visitAttributeGroup(node *xmlnode.Node, global bool) (attributeMember, error) {
	s := v.schema
	if ref, ok := node.Attr("", "ref"); ok && !global {
		name, err := v.qnameAttr(node, ref)
		if err != nil {
			return nil, err
		}
		return &AttributeGroupRef{ref: name, schema: s}, nil
	}

	name, err := v.globalName(node, true)
	if err != nil {
		return nil, err
	}
	g := &AttributeGroup{name: name}
	for _, child := range xsdChildren(node) {
		switch child.Name.Local {
		case "annotation":
		case "attribute", "attributeGroup", "anyAttribute":
			if err := v.visitAttributeMember(&g.members, child); err != nil {
				return nil, err
			}
		default:
			return nil, v.unsupported(child)
		}
	}

	_, exists := s.attributeGroups[name]
	v.register("attributeGroup", name, exists)
	s.attributeGroups[name] = g
	return g, nil
}

func (v *visitor) visitAny(node *xmlnode.Node) (*Any, error) {
	o, err := v.occurs(node)
	if err != nil {
		return nil, err
	}
	pc, err := parseProcessContents(attrValue(node, "processContents"))
	if err != nil {
		return nil, v.syntaxError(node, "%v", err)
	}
	return &Any{
		occurs:          o,
		Namespace:       ParseNamespaceConstraint(attrValue(node, "namespace")),
		ProcessContents: pc,
		targetNamespace: v.doc.targetNamespace,
	}, nil
}

func (v *visitor) visitAnyAttribute(node *xmlnode.Node) (*AnyAttribute, error) {
	pc, err := parseProcessContents(attrValue(node, "processContents"))
	if err != nil {
		return nil, v.syntaxError(node, "%v", err)
	}
	return &AnyAttribute{
		Namespace:       ParseNamespaceConstraint(attrValue(node, "namespace")),
		ProcessContents: pc,
		targetNamespace: v.doc.targetNamespace,
	}, nil
}

// IsUnsupported reports whether err stems from a schema construct the
// builder does not implement.
func IsUnsupported(err error) bool {
	var se *SchemaSyntaxError
	return errors.As(err, &se) && se.Unsupported
}
