package xsd

import (
	"fmt"
	"strconv"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
)

// SchemaValidator validates that an XSD schema document conforms to XSD rules
type SchemaValidator struct {
	errors   []error
	location string
	idMap    map[string]*xmlnode.Node // Track ID values for uniqueness
}

// NewSchemaValidator creates a new schema validator. location is reported
// in the errors.
func NewSchemaValidator(location string) *SchemaValidator {
	return &SchemaValidator{
		location: location,
		idMap:    make(map[string]*xmlnode.Node),
	}
}

// ValidateSchema validates that a schema document conforms to XSD rules.
// Every error is a *SchemaSyntaxError.
func (sv *SchemaValidator) ValidateSchema(root *xmlnode.Node) []error {
	sv.errors = nil
	sv.idMap = make(map[string]*xmlnode.Node)

	if root != nil && root.IsDocument() {
		root = root.FirstChild()
	}
	if root == nil {
		return []error{&SchemaSyntaxError{Location: sv.location, Message: "no root element"}}
	}

	if root.Name.Space != XSDNamespace || root.Name.Local != "schema" {
		sv.addErrorAt(root, "document root must be xs:schema element")
		return sv.errors
	}

	sv.validateElement(root)
	return sv.errors
}

// validateElement recursively validates an element and its children
func (sv *SchemaValidator) validateElement(elem *xmlnode.Node) {
	if elem.Name.Space != XSDNamespace {
		return
	}

	sv.validateIDAttribute(elem)

	switch elem.Name.Local {
	case "schema":
	case "simpleType":
		sv.validateSimpleType(elem)
	case "complexType":
		sv.validateComplexType(elem)
	case "element":
		sv.validateElementDecl(elem)
	case "attribute":
		sv.validateAttributeDecl(elem)
	case "restriction":
		sv.validateRestriction(elem)
	case "extension":
		sv.validateExtension(elem)
	case "sequence", "choice", "all":
		sv.validateModelGroup(elem)
	case "group":
		sv.validateGroup(elem)
	case "attributeGroup":
		sv.validateAttributeGroup(elem)
	case "import":
	case "include":
		sv.validateInclude(elem)
	case "annotation":
		// documentation and appinfo hold foreign content
		return
	case "any":
		sv.validateAny(elem)
	case "anyAttribute":
		sv.validateAnyAttribute(elem)
	case "unique", "key", "keyref":
		sv.validateIdentityConstraint(elem)
	case "selector", "field":
		sv.validateXPathElement(elem)
	case "notation":
		sv.validateNotation(elem)
	case "union":
		sv.validateUnion(elem)
	case "list":
		sv.validateList(elem)
	case "enumeration", "pattern", "length", "minLength", "maxLength",
		"minInclusive", "maxInclusive", "minExclusive", "maxExclusive",
		"totalDigits", "fractionDigits", "whiteSpace":
		sv.validateFacet(elem)
	case "simpleContent", "complexContent":
		sv.validateContentModel(elem)
	case "redefine", "override", "openContent", "defaultOpenContent", "assert",
		"assertion", "alternative", "explicitTimezone":
		// known constructs the schema builder reports as unsupported
		return
	default:
		sv.addErrorAt(elem, fmt.Sprintf("unknown XSD element: %s", elem.Name.Local))
		return
	}

	for _, child := range elem.Children {
		sv.validateElement(child)
	}
}

func attrValue(elem *xmlnode.Node, name string) string {
	v, _ := elem.Attr("", name)
	return v
}

func xsdChildren(elem *xmlnode.Node) []*xmlnode.Node {
	var out []*xmlnode.Node
	for _, child := range elem.Children {
		if child.Name.Space == XSDNamespace {
			out = append(out, child)
		}
	}
	return out
}

func hasXSDChild(elem *xmlnode.Node, names ...string) bool {
	for _, child := range xsdChildren(elem) {
		for _, name := range names {
			if child.Name.Local == name {
				return true
			}
		}
	}
	return false
}

func isTopLevel(elem *xmlnode.Node) bool {
	parent := elem.Parent()
	return parent != nil && parent.Name.Space == XSDNamespace && parent.Name.Local == "schema"
}

// validateIDAttribute validates ID attribute values
func (sv *SchemaValidator) validateIDAttribute(elem *xmlnode.Node) {
	id, ok := elem.Attr("", "id")
	if !ok {
		return
	}
	if id == "" {
		sv.addErrorAt(elem, "id attribute cannot be empty")
		return
	}
	if !isValidNCName(id) {
		sv.addErrorAt(elem, fmt.Sprintf("invalid id value '%s': must be a valid NCName", id))
		return
	}
	if existing, exists := sv.idMap[id]; exists {
		sv.addErrorAt(elem, fmt.Sprintf("duplicate id value '%s' (first defined on line %d)", id, existing.Line))
		return
	}
	sv.idMap[id] = elem
}

// isValidNCName checks if a string is a valid NCName (non-colonized name)
func isValidNCName(s string) bool {
	return validateNCName(s) == nil
}

// validateSimpleType validates xs:simpleType element
func (sv *SchemaValidator) validateSimpleType(elem *xmlnode.Node) {
	name := attrValue(elem, "name")
	if isTopLevel(elem) {
		if name == "" {
			sv.addErrorAt(elem, "global simpleType must have a name attribute")
		} else if !isValidNCName(name) {
			sv.addErrorAt(elem, fmt.Sprintf("invalid simpleType name '%s': must be a valid NCName", name))
		}
	} else if name != "" {
		sv.addErrorAt(elem, "local simpleType must not have a name attribute")
	}

	count := 0
	for _, child := range xsdChildren(elem) {
		switch child.Name.Local {
		case "restriction", "list", "union":
			count++
		}
	}
	if count == 0 {
		sv.addErrorAt(elem, "simpleType must have exactly one of: restriction, list, or union")
	} else if count > 1 {
		sv.addErrorAt(elem, "simpleType cannot have more than one of: restriction, list, or union")
	}
}

// validateComplexType validates xs:complexType element
func (sv *SchemaValidator) validateComplexType(elem *xmlnode.Node) {
	name := attrValue(elem, "name")
	if isTopLevel(elem) {
		if name == "" {
			sv.addErrorAt(elem, "global complexType must have a name attribute")
		} else if !isValidNCName(name) {
			sv.addErrorAt(elem, fmt.Sprintf("invalid complexType name '%s': must be a valid NCName", name))
		}
	} else if name != "" {
		sv.addErrorAt(elem, "local complexType must not have a name attribute")
	}

	sv.validateBoolean(elem, "mixed")
	sv.validateBoolean(elem, "abstract")
}

func (sv *SchemaValidator) validateBoolean(elem *xmlnode.Node, attr string) {
	v, ok := elem.Attr("", attr)
	if !ok {
		return
	}
	switch v {
	case "true", "false", "1", "0":
		return
	}
	sv.addErrorAt(elem, fmt.Sprintf("invalid %s value '%s': must be 'true' or 'false'", attr, v))
}

// validateElementDecl validates xs:element element
func (sv *SchemaValidator) validateElementDecl(elem *xmlnode.Node) {
	name := attrValue(elem, "name")
	ref := attrValue(elem, "ref")

	if name != "" && ref != "" {
		sv.addErrorAt(elem, "element cannot have both 'name' and 'ref' attributes")
	}
	if isTopLevel(elem) {
		if name == "" {
			sv.addErrorAt(elem, "global element must have a name attribute")
		}
	} else if name == "" && ref == "" {
		sv.addErrorAt(elem, "local element must have a name or ref attribute")
	}
	if name != "" && !isValidNCName(name) {
		sv.addErrorAt(elem, fmt.Sprintf("invalid element name '%s': must be a valid NCName", name))
	}

	sv.validateOccurrences(elem)
	sv.validateBoolean(elem, "nillable")
	sv.validateBoolean(elem, "abstract")

	if hasAttr(elem, "type") && hasXSDChild(elem, "simpleType", "complexType") {
		sv.addErrorAt(elem, "element cannot have both 'type' attribute and inline type definition")
	}
	if hasAttr(elem, "default") && hasAttr(elem, "fixed") {
		sv.addErrorAt(elem, "element cannot have both 'default' and 'fixed' attributes")
	}
}

func hasAttr(elem *xmlnode.Node, name string) bool {
	_, ok := elem.Attr("", name)
	return ok
}

// validateAttributeDecl validates xs:attribute element
func (sv *SchemaValidator) validateAttributeDecl(elem *xmlnode.Node) {
	name := attrValue(elem, "name")
	ref := attrValue(elem, "ref")

	if name != "" && ref != "" {
		sv.addErrorAt(elem, "attribute cannot have both 'name' and 'ref' attributes")
	}
	if name == "" && ref == "" {
		sv.addErrorAt(elem, "attribute must have a name or ref attribute")
	}
	if name != "" && !isValidNCName(name) {
		sv.addErrorAt(elem, fmt.Sprintf("invalid attribute name '%s': must be a valid NCName", name))
	}

	if use, ok := elem.Attr("", "use"); ok {
		if use != "optional" && use != "required" && use != "prohibited" {
			sv.addErrorAt(elem, fmt.Sprintf("invalid use value '%s': must be 'optional', 'required', or 'prohibited'", use))
		}
	}

	if hasAttr(elem, "default") && hasAttr(elem, "fixed") {
		sv.addErrorAt(elem, "attribute cannot have both 'default' and 'fixed' attributes")
	}
	if hasAttr(elem, "type") && hasXSDChild(elem, "simpleType") {
		sv.addErrorAt(elem, "attribute cannot have both 'type' attribute and inline type definition")
	}
}

// validateOccurrences validates minOccurs and maxOccurs attributes
func (sv *SchemaValidator) validateOccurrences(elem *xmlnode.Node) {
	minVal, maxVal := 1, 1

	if minStr, ok := elem.Attr("", "minOccurs"); ok {
		if !isNonNegativeInteger(minStr) {
			sv.addErrorAt(elem, fmt.Sprintf("invalid minOccurs value '%s': must be non-negative integer", minStr))
			return
		}
		n, err := strconv.Atoi(minStr)
		if err != nil {
			sv.addErrorAt(elem, fmt.Sprintf("invalid minOccurs value '%s': must be a valid integer", minStr))
			return
		}
		minVal = n
	}

	maxStr, ok := elem.Attr("", "maxOccurs")
	if ok && maxStr == "unbounded" {
		return
	}
	if ok {
		if !isNonNegativeInteger(maxStr) {
			sv.addErrorAt(elem, fmt.Sprintf("invalid maxOccurs value '%s': must be non-negative integer or 'unbounded'", maxStr))
			return
		}
		n, err := strconv.Atoi(maxStr)
		if err != nil {
			sv.addErrorAt(elem, fmt.Sprintf("invalid maxOccurs value '%s': must be a valid integer", maxStr))
			return
		}
		maxVal = n
	}
	if minVal > maxVal {
		sv.addErrorAt(elem, fmt.Sprintf("minOccurs (%d) cannot be greater than maxOccurs (%d)", minVal, maxVal))
	}
}

// isNonNegativeInteger checks if string is a non-negative integer
func isNonNegativeInteger(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// validateRestriction validates xs:restriction element
func (sv *SchemaValidator) validateRestriction(elem *xmlnode.Node) {
	if hasAttr(elem, "base") {
		return
	}
	parent := elem.Parent()
	if parent != nil && parent.Name.Local == "simpleType" && hasXSDChild(elem, "simpleType") {
		return
	}
	sv.addErrorAt(elem, "restriction must have either 'base' attribute or inline simpleType")
}

// validateExtension validates xs:extension element
func (sv *SchemaValidator) validateExtension(elem *xmlnode.Node) {
	if !hasAttr(elem, "base") {
		sv.addErrorAt(elem, "extension must have 'base' attribute")
	}
}

// validateModelGroup validates xs:sequence, xs:choice, xs:all elements
func (sv *SchemaValidator) validateModelGroup(elem *xmlnode.Node) {
	sv.validateOccurrences(elem)

	if elem.Name.Local != "all" {
		return
	}
	if minOccurs, ok := elem.Attr("", "minOccurs"); ok && minOccurs != "0" && minOccurs != "1" {
		sv.addErrorAt(elem, "xs:all minOccurs must be 0 or 1")
	}
	if maxOccurs, ok := elem.Attr("", "maxOccurs"); ok && maxOccurs != "1" {
		sv.addErrorAt(elem, "xs:all maxOccurs must be 1")
	}
	for _, child := range xsdChildren(elem) {
		if child.Name.Local != "element" {
			continue
		}
		if childMax, ok := child.Attr("", "maxOccurs"); ok && childMax != "0" && childMax != "1" {
			sv.addErrorAt(child, "elements within xs:all must have maxOccurs of 0 or 1 (XSD 1.0)")
		}
	}
}

// validateGroup validates xs:group element
func (sv *SchemaValidator) validateGroup(elem *xmlnode.Node) {
	name := attrValue(elem, "name")
	ref := attrValue(elem, "ref")

	if name != "" && ref != "" {
		sv.addErrorAt(elem, "group cannot have both 'name' and 'ref' attributes")
	}
	if isTopLevel(elem) {
		if name == "" {
			sv.addErrorAt(elem, "global group must have a name attribute")
		}
	} else if ref == "" {
		sv.addErrorAt(elem, "group reference must have 'ref' attribute")
	}
	if name != "" && !isValidNCName(name) {
		sv.addErrorAt(elem, fmt.Sprintf("invalid group name '%s': must be a valid NCName", name))
	}
	if ref != "" {
		sv.validateOccurrences(elem)
	}
}

// validateAttributeGroup validates xs:attributeGroup element
func (sv *SchemaValidator) validateAttributeGroup(elem *xmlnode.Node) {
	name := attrValue(elem, "name")
	ref := attrValue(elem, "ref")

	if name != "" && ref != "" {
		sv.addErrorAt(elem, "attributeGroup cannot have both 'name' and 'ref' attributes")
	}
	if name == "" && ref == "" {
		sv.addErrorAt(elem, "attributeGroup must have a name or ref attribute")
	}
	if name != "" && !isValidNCName(name) {
		sv.addErrorAt(elem, fmt.Sprintf("invalid attributeGroup name '%s': must be a valid NCName", name))
	}
}

// validateInclude validates xs:include element
func (sv *SchemaValidator) validateInclude(elem *xmlnode.Node) {
	if attrValue(elem, "schemaLocation") == "" {
		sv.addErrorAt(elem, "include must have 'schemaLocation' attribute")
	}
}

// validateAny validates xs:any element
func (sv *SchemaValidator) validateAny(elem *xmlnode.Node) {
	sv.validateOccurrences(elem)
	sv.validateProcessContents(elem)
}

// validateAnyAttribute validates xs:anyAttribute element
func (sv *SchemaValidator) validateAnyAttribute(elem *xmlnode.Node) {
	sv.validateProcessContents(elem)
}

func (sv *SchemaValidator) validateProcessContents(elem *xmlnode.Node) {
	if pc, ok := elem.Attr("", "processContents"); ok {
		if _, err := parseProcessContents(pc); err != nil || pc == "" {
			sv.addErrorAt(elem, fmt.Sprintf("invalid processContents value '%s': must be 'strict', 'lax', or 'skip'", pc))
		}
	}
}

// validateIdentityConstraint validates xs:unique, xs:key, xs:keyref elements
func (sv *SchemaValidator) validateIdentityConstraint(elem *xmlnode.Node) {
	kind := elem.Name.Local
	name := attrValue(elem, "name")
	if name == "" {
		sv.addErrorAt(elem, fmt.Sprintf("%s must have 'name' attribute", kind))
	} else if !isValidNCName(name) {
		sv.addErrorAt(elem, fmt.Sprintf("invalid %s name '%s': must be a valid NCName", kind, name))
	}

	if kind == "keyref" && attrValue(elem, "refer") == "" {
		sv.addErrorAt(elem, "keyref must have 'refer' attribute")
	}

	hasSelector := false
	fieldCount := 0
	for _, child := range xsdChildren(elem) {
		switch child.Name.Local {
		case "selector":
			hasSelector = true
		case "field":
			fieldCount++
		}
	}
	if !hasSelector {
		sv.addErrorAt(elem, fmt.Sprintf("%s must have a selector child element", kind))
	}
	if fieldCount == 0 {
		sv.addErrorAt(elem, fmt.Sprintf("%s must have at least one field child element", kind))
	}
}

// validateXPathElement validates xs:selector and xs:field elements
func (sv *SchemaValidator) validateXPathElement(elem *xmlnode.Node) {
	if attrValue(elem, "xpath") == "" {
		sv.addErrorAt(elem, fmt.Sprintf("%s must have 'xpath' attribute", elem.Name.Local))
	}
}

// validateNotation validates xs:notation element
func (sv *SchemaValidator) validateNotation(elem *xmlnode.Node) {
	name := attrValue(elem, "name")
	if name == "" {
		sv.addErrorAt(elem, "notation must have 'name' attribute")
	} else if !isValidNCName(name) {
		sv.addErrorAt(elem, fmt.Sprintf("invalid notation name '%s': must be a valid NCName", name))
	}
	if attrValue(elem, "public") == "" && attrValue(elem, "system") == "" {
		sv.addErrorAt(elem, "notation must have either 'public' or 'system' attribute")
	}
}

// validateUnion validates xs:union element
func (sv *SchemaValidator) validateUnion(elem *xmlnode.Node) {
	if attrValue(elem, "memberTypes") == "" && !hasXSDChild(elem, "simpleType") {
		sv.addErrorAt(elem, "union must have either 'memberTypes' attribute or inline simpleType elements")
	}
}

// validateList validates xs:list element
func (sv *SchemaValidator) validateList(elem *xmlnode.Node) {
	itemType := attrValue(elem, "itemType")
	hasInlineType := hasXSDChild(elem, "simpleType")

	if itemType == "" && !hasInlineType {
		sv.addErrorAt(elem, "list must have either 'itemType' attribute or inline simpleType element")
	} else if itemType != "" && hasInlineType {
		sv.addErrorAt(elem, "list cannot have both 'itemType' attribute and inline simpleType element")
	}
}

// validateFacet validates facet elements
func (sv *SchemaValidator) validateFacet(elem *xmlnode.Node) {
	if !hasAttr(elem, "value") {
		sv.addErrorAt(elem, fmt.Sprintf("%s facet must have 'value' attribute", elem.Name.Local))
	}
	sv.validateBoolean(elem, "fixed")
}

// validateContentModel validates xs:simpleContent and xs:complexContent
func (sv *SchemaValidator) validateContentModel(elem *xmlnode.Node) {
	hasRestriction := hasXSDChild(elem, "restriction")
	hasExtension := hasXSDChild(elem, "extension")

	if !hasRestriction && !hasExtension {
		sv.addErrorAt(elem, fmt.Sprintf("%s must have either restriction or extension child", elem.Name.Local))
	} else if hasRestriction && hasExtension {
		sv.addErrorAt(elem, fmt.Sprintf("%s cannot have both restriction and extension children", elem.Name.Local))
	}
	if elem.Name.Local == "complexContent" {
		sv.validateBoolean(elem, "mixed")
	}
}

// addErrorAt adds an error with element context
func (sv *SchemaValidator) addErrorAt(elem *xmlnode.Node, msg string) {
	name := attrValue(elem, "name")
	if name == "" {
		name = attrValue(elem, "ref")
	}
	if name != "" {
		msg = fmt.Sprintf("%s: %s", name, msg)
	}
	sv.errors = append(sv.errors, &SchemaSyntaxError{
		Construct: elem.Name.Local,
		Message:   msg,
		Location:  sv.location,
		Line:      elem.Line,
	})
}
