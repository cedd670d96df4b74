package xsd

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/agentflare-ai/go-xsdbind/xmlnode"
)

// Schema is a resolved XSD schema: the global components of one root
// document and of every document it imports or includes.
type Schema struct {
	documents          map[string][]*schemaDocument // by target namespace
	types              map[QName]Type
	elements           map[QName]*Element
	attributes         map[QName]*Attribute
	groups             map[QName]*Group
	attributeGroups    map[QName]*AttributeGroup
	substitutionGroups map[QName][]QName // head element -> members
	// substitution members declared without a type take the type of
	// their head.
	untypedMembers map[*Element]QName

	namespaces []string          // target namespaces in visit order
	prefixes   map[string]string // namespace -> ns0, ns1, ...
	loaded     map[string]bool   // document locations already visited

	builtins *BuiltinRegistry
	settings Settings
	logger   *slog.Logger
	loader   Loader
}

// schemaDocument is one visited xs:schema.
type schemaDocument struct {
	location               string
	targetNamespace        string
	chameleon              bool // included without a targetNamespace of its own
	elementFormQualified   bool
	attributeFormQualified bool
	// elements holds every element declared by the document, global or
	// local, for the final resolve sweep.
	elements []*Element
}

func newSchema(o options) *Schema {
	return &Schema{
		documents:          make(map[string][]*schemaDocument),
		types:              make(map[QName]Type),
		elements:           make(map[QName]*Element),
		attributes:         make(map[QName]*Attribute),
		groups:             make(map[QName]*Group),
		attributeGroups:    make(map[QName]*AttributeGroup),
		substitutionGroups: make(map[QName][]QName),
		untypedMembers:     make(map[*Element]QName),
		prefixes:           make(map[string]string),
		loaded:             make(map[string]bool),
		builtins:           o.builtins,
		settings:           o.settings,
		logger:             o.logger,
		loader:             o.loader,
	}
}

// Parse builds a schema from a parsed XSD document.
func Parse(doc xmldom.Document, opts ...Option) (*Schema, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	root, err := xmlnode.FromDocument(doc)
	if err != nil {
		return nil, err
	}
	return ParseNode(root, opts...)
}

// ParseNode builds a schema from an xs:schema node or a document holding
// one. Imports and includes are fetched with the loader set by WithLoader.
func ParseNode(root *xmlnode.Node, opts ...Option) (*Schema, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	s := newSchema(o)
	if err := s.addDocument(root, o.location, ""); err != nil {
		return nil, err
	}
	if err := s.resolve(); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadSchema loads the schema at location. Without a loader option the
// document and its imports are read with a FileLoader.
func LoadSchema(location string, opts ...Option) (*Schema, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.loader == nil {
		o.loader = NewFileLoader("")
		opts = append(opts, WithLoader(o.loader))
	}
	src, err := o.loader.Load(location, "")
	if err != nil {
		return nil, err
	}
	return ParseNode(src.Root, append(opts, WithLocation(src.Location))...)
}

// addDocument validates and visits one schema document. chameleon is the
// namespace taken by an included document without a targetNamespace.
func (s *Schema) addDocument(root *xmlnode.Node, location, chameleon string) error {
	if root != nil && root.IsDocument() {
		root = root.FirstChild()
	}
	if root == nil {
		return &SchemaSyntaxError{Location: location, Message: "no root element"}
	}
	if root.Name.Space != XSDNamespace || root.Name.Local != "schema" {
		return &SchemaSyntaxError{
			Location: location,
			Line:     root.Line,
			Message:  fmt.Sprintf("not an XSD schema document: root element is %s", qnameOf(root.Name)),
		}
	}
	if location != "" {
		s.loaded[location] = true
	}

	if errs := NewSchemaValidator(location).ValidateSchema(root); len(errs) > 0 {
		return errs[0]
	}

	tns := attrValue(root, "targetNamespace")
	doc := &schemaDocument{
		location:               location,
		targetNamespace:        tns,
		elementFormQualified:   attrValue(root, "elementFormDefault") == "qualified",
		attributeFormQualified: attrValue(root, "attributeFormDefault") == "qualified",
	}
	if tns == "" && chameleon != "" {
		doc.targetNamespace = chameleon
		doc.chameleon = true
	}
	s.documents[doc.targetNamespace] = append(s.documents[doc.targetNamespace], doc)
	s.registerNamespace(doc.targetNamespace)

	v := &visitor{schema: s, doc: doc}
	if err := v.visitSchema(root); err != nil {
		var se *SchemaSyntaxError
		if errors.As(err, &se) && se.Location == "" {
			se.Location = location
		}
		return err
	}
	return nil
}

func (s *Schema) registerNamespace(ns string) {
	for _, known := range s.namespaces {
		if known == ns {
			return
		}
	}
	s.namespaces = append(s.namespaces, ns)
	if ns != "" && ns != XSDNamespace {
		s.prefixes[ns] = fmt.Sprintf("ns%d", len(s.prefixes))
	}
}

// resolve replaces every reference of the visited documents by its target.
// Registries are walked in name order so that errors are deterministic.
func (s *Schema) resolve() error {
	for _, el := range sortedElements(s.untypedMembers) {
		if err := s.inheritHeadType(el, map[*Element]bool{}); err != nil {
			return err
		}
	}
	for _, name := range sortedNames(s.types) {
		t, err := s.types[name].resolveType()
		if err != nil {
			return err
		}
		s.types[name] = t
	}
	for _, name := range sortedNames(s.attributeGroups) {
		if _, err := s.attributeGroups[name].resolveAttributes(); err != nil {
			return err
		}
	}
	for _, name := range sortedNames(s.attributes) {
		if _, err := s.attributes[name].resolveAttributes(); err != nil {
			return err
		}
	}
	for _, name := range sortedNames(s.groups) {
		if _, err := s.groups[name].resolveParticle(); err != nil {
			return err
		}
	}
	for _, name := range sortedNames(s.elements) {
		if _, err := s.elements[name].resolveParticle(); err != nil {
			return err
		}
	}
	for _, ns := range s.namespaces {
		for _, doc := range s.documents[ns] {
			for _, el := range doc.elements {
				if _, err := el.resolveParticle(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// inheritHeadType gives a substitution member without a declared type the
// type of its head element.
func (s *Schema) inheritHeadType(el *Element, seen map[*Element]bool) error {
	headName, ok := s.untypedMembers[el]
	if !ok {
		return nil
	}
	if seen[el] {
		return fmt.Errorf("element %s: circular substitutionGroup", el.qname)
	}
	seen[el] = true
	head, err := s.GetElement(headName)
	if err != nil {
		return fmt.Errorf("element %s: %w", el.qname, err)
	}
	if err := s.inheritHeadType(head, seen); err != nil {
		return err
	}
	el.typ = head.typ
	delete(s.untypedMembers, el)
	return nil
}

func sortedNames[V any](m map[QName]V) []QName {
	names := make([]QName, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sortQNames(names)
	return names
}

func sortedElements(m map[*Element]QName) []*Element {
	out := make([]*Element, 0, len(m))
	for el := range m {
		out = append(out, el)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].qname.String() < out[j].qname.String() })
	return out
}

func sortQNames(names []QName) {
	sort.Slice(names, func(i, j int) bool { return names[i].String() < names[j].String() })
}

// Settings returns the parse settings of the schema.
func (s *Schema) Settings() Settings { return s.settings }

// Namespaces returns the target namespaces of the visited documents in
// visit order.
func (s *Schema) Namespaces() []string {
	return append([]string(nil), s.namespaces...)
}

// GetType returns the builtin or global type with the given name.
func (s *Schema) GetType(name QName) (Type, error) {
	if t, ok := s.builtinRegistry().Lookup(name); ok {
		return t, nil
	}
	if t, ok := s.types[name]; ok {
		return t, nil
	}
	return nil, s.lookupError(ErrUnknownType, name)
}

// GetElement returns the global element with the given name.
func (s *Schema) GetElement(name QName) (*Element, error) {
	if el, ok := s.elements[name]; ok {
		return el, nil
	}
	return nil, s.lookupError(ErrUnknownElement, name)
}

// GetAttribute returns the global attribute with the given name.
func (s *Schema) GetAttribute(name QName) (*Attribute, error) {
	if a, ok := s.attributes[name]; ok {
		return a, nil
	}
	if name.Namespace == XMLNamespace {
		if a, ok := xmlAttributes[name.Local]; ok {
			return a, nil
		}
	}
	return nil, s.lookupError(ErrUnknownAttribute, name)
}

// GetGroup returns the named model group.
func (s *Schema) GetGroup(name QName) (*Group, error) {
	if g, ok := s.groups[name]; ok {
		return g, nil
	}
	return nil, s.lookupError(ErrUnknownGroup, name)
}

// GetAttributeGroup returns the named attribute group.
func (s *Schema) GetAttributeGroup(name QName) (*AttributeGroup, error) {
	if g, ok := s.attributeGroups[name]; ok {
		return g, nil
	}
	return nil, s.lookupError(ErrUnknownAttributeGroup, name)
}

// xmlAttributes are the attributes of the xml namespace, available without
// importing xml.xsd.
var xmlAttributes = func() map[string]*Attribute {
	m := make(map[string]*Attribute)
	for _, local := range []string{"lang", "space", "base", "id"} {
		name := QName{Namespace: XMLNamespace, Local: local}
		t, _ := Builtins().Lookup(xsdName("string"))
		a := NewAttribute(name, t, false)
		a.global = true
		a.state = resolved
		m[local] = a
	}
	return m
}()

func (s *Schema) lookupError(kind error, name QName) *LookupError {
	var available []string
	for _, ns := range s.namespaces {
		if ns != "" {
			available = append(available, ns)
		}
	}
	sort.Strings(available)
	return &LookupError{Kind: kind, Name: name, Available: available}
}

func (s *Schema) builtinRegistry() *BuiltinRegistry {
	if s.builtins == nil {
		return Builtins()
	}
	return s.builtins
}

// ElementNames returns the names of the global elements in sorted order.
func (s *Schema) ElementNames() []QName {
	return sortedNames(s.elements)
}

// TypeNames returns the names of the global types in sorted order.
func (s *Schema) TypeNames() []QName {
	return sortedNames(s.types)
}

// SubstitutionGroup returns the direct members of the substitution group
// headed by the named element.
func (s *Schema) SubstitutionGroup(head QName) []QName {
	return append([]QName(nil), s.substitutionGroups[head]...)
}

// substitutionFor returns the element named name when it may replace head,
// directly or through a chain of substitution groups.
func (s *Schema) substitutionFor(head, name QName) (*Element, bool) {
	seen := map[QName]bool{head: true}
	queue := []QName{head}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, member := range s.substitutionGroups[current] {
			if member == name {
				el, ok := s.elements[member]
				return el, ok
			}
			if !seen[member] {
				seen[member] = true
				queue = append(queue, member)
			}
		}
	}
	return nil, false
}

// PrefixedName formats name with the prefix assigned to its namespace:
// xsd for XML Schema, ns0, ns1, ... for target namespaces in visit order.
// Namespaces the schema does not know are written in Clark notation.
func (s *Schema) PrefixedName(name QName) string {
	return s.prefixedName(name)
}

func (s *Schema) prefixedName(name QName) string {
	switch name.Namespace {
	case "":
		return name.Local
	case XSDNamespace:
		return "xsd:" + name.Local
	}
	if s != nil {
		if prefix, ok := s.prefixes[name.Namespace]; ok {
			return prefix + ":" + name.Local
		}
	}
	return name.String()
}

func (s *Schema) newParseState() *parseState {
	if s == nil {
		return &parseState{settings: DefaultSettings(), logger: slog.Default()}
	}
	return &parseState{schema: s, settings: s.settings, logger: s.logger}
}

// Decode parses an instance document with the global element named by its
// root.
func (s *Schema) Decode(node *xmlnode.Node) (any, *Element, error) {
	if node.IsDocument() {
		if node = node.FirstChild(); node == nil {
			return nil, nil, fmt.Errorf("empty document")
		}
	}
	name := qnameOf(node.Name)
	el, err := s.GetElement(name)
	if err != nil && s.settings.LenientNamespaces {
		el = s.elementByLocalName(name.Local)
	}
	if el == nil {
		return nil, nil, err
	}
	v, err := el.Parse(node, s)
	if err != nil {
		return nil, el, err
	}
	return v, el, nil
}

// elementByLocalName returns the only global element with the given local
// name, if there is exactly one.
func (s *Schema) elementByLocalName(local string) *Element {
	var found *Element
	for name, el := range s.elements {
		if name.Local != local {
			continue
		}
		if found != nil {
			return nil
		}
		found = el
	}
	if found != nil {
		s.logger.Warn("matched root element by local name", "element", found.qname.String())
	}
	return found
}

// Encode renders value as a document rooted at the named global element.
func (s *Schema) Encode(name QName, value any) (*xmlnode.Node, error) {
	el, err := s.GetElement(name)
	if err != nil {
		return nil, err
	}
	doc := xmlnode.NewDocument()
	if err := el.Render(doc, value); err != nil {
		return nil, err
	}
	return doc, nil
}
