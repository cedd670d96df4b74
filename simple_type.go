package xsd

import (
	"fmt"
	"strings"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
)

// Variety is the derivation method of a user defined simple type.
type Variety int

const (
	VarietyRestriction Variety = iota
	VarietyList
	VarietyUnion
)

func (v Variety) String() string {
	switch v {
	case VarietyList:
		return "list"
	case VarietyUnion:
		return "union"
	}
	return "restriction"
}

// SimpleType is a simple type derived by restriction, list or union.
type SimpleType struct {
	name     QName
	variety  Variety
	base     Type
	itemType Type
	members  []Type
	facets   *FacetSet
	state    resolveState
}

func (st *SimpleType) Name() QName      { return st.name }
func (st *SimpleType) IsGlobal() bool   { return !st.name.IsZero() }
func (st *SimpleType) Variety() Variety { return st.variety }
func (st *SimpleType) Base() Type       { return st.base }
func (st *SimpleType) ItemType() Type   { return st.itemType }
func (st *SimpleType) MemberTypes() []Type {
	return append([]Type(nil), st.members...)
}
func (st *SimpleType) Facets() *FacetSet { return st.facets }

func (st *SimpleType) Signature(s *Schema) string {
	return st.signature(s, true)
}

func (st *SimpleType) signature(s *Schema, standalone bool) string {
	if !st.name.IsZero() {
		return s.prefixedName(st.name)
	}
	switch st.variety {
	case VarietyList:
		return st.itemType.signature(s, false) + "[]"
	case VarietyUnion:
		parts := make([]string, len(st.members))
		for i, m := range st.members {
			parts[i] = m.signature(s, false)
		}
		return "(" + strings.Join(parts, " | ") + ")"
	}
	return st.base.signature(s, false)
}

func (st *SimpleType) resolveType() (Type, error) {
	if st.state != unresolved {
		return st, nil
	}
	st.state = resolving

	simple := func(t Type, role string) (Type, error) {
		r, err := resolveRef(t)
		if err != nil {
			return nil, err
		}
		if _, ok := r.(SimpleValueType); !ok {
			return nil, fmt.Errorf("simple type %s: %s %s is not a simple type", typeLabel(st), role, typeLabel(r))
		}
		return r, nil
	}

	var err error
	switch st.variety {
	case VarietyRestriction:
		if st.base, err = simple(st.base, "base"); err != nil {
			return nil, err
		}
		if err := st.facets.bind(st.base.(SimpleValueType)); err != nil {
			return nil, fmt.Errorf("simple type %s: %w", typeLabel(st), err)
		}
	case VarietyList:
		if st.itemType, err = simple(st.itemType, "itemType"); err != nil {
			return nil, err
		}
	case VarietyUnion:
		for i, m := range st.members {
			if st.members[i], err = simple(m, "memberType"); err != nil {
				return nil, err
			}
		}
	}
	st.state = resolved
	return st, nil
}

// FormatValue converts value to text and checks every facet of the
// derivation chain.
func (st *SimpleType) FormatValue(node *xmlnode.Node, value any) (string, error) {
	switch st.variety {
	case VarietyList:
		items, ok := asList(value)
		if !ok {
			s, isString := value.(string)
			if !isString {
				return "", fmt.Errorf("list type %s expects a slice, got %T", typeLabel(st), value)
			}
			for _, f := range strings.Fields(s) {
				items = append(items, f)
			}
		}
		item := st.itemType.(SimpleValueType)
		parts := make([]string, len(items))
		for i, v := range items {
			text, err := item.FormatValue(node, v)
			if err != nil {
				return "", fmt.Errorf("list item %d: %w", i, err)
			}
			parts[i] = text
		}
		return strings.Join(parts, " "), nil

	case VarietyUnion:
		var errs []string
		for _, m := range st.members {
			text, err := m.(SimpleValueType).FormatValue(node, value)
			if err == nil {
				return text, nil
			}
			errs = append(errs, err.Error())
		}
		return "", fmt.Errorf("value %v matches no member of union: %s", value, strings.Join(errs, "; "))
	}

	base := st.base.(SimpleValueType)
	text, err := base.FormatValue(node, value)
	if err != nil {
		return "", err
	}
	if ws := st.facets.WhiteSpace(); ws != "" {
		text = NormalizeWhiteSpace(text, ws)
	}
	if st.facets.Len() > 0 {
		typed, err := st.parseText(node, text, false)
		if err != nil {
			return "", err
		}
		if err := st.facets.Validate(typed, text); err != nil {
			return "", err
		}
	}
	return text, nil
}

// ParseValue decodes text and checks facets.
func (st *SimpleType) ParseValue(node *xmlnode.Node, text string) (any, error) {
	return st.parseText(node, text, true)
}

func (st *SimpleType) parseText(node *xmlnode.Node, text string, checkFacets bool) (any, error) {
	switch st.variety {
	case VarietyList:
		fields := strings.Fields(text)
		items := make([]any, 0, len(fields))
		for _, f := range fields {
			v, err := parseSimpleText(st.itemType, node, f, checkFacets)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil

	case VarietyUnion:
		for _, m := range st.members {
			if v, err := parseSimpleText(m, node, text, checkFacets); err == nil {
				return v, nil
			}
		}
		return nil, fmt.Errorf("value '%s' matches no member of union %s", text, typeLabel(st))
	}

	if ws := st.facets.WhiteSpace(); ws != "" {
		text = NormalizeWhiteSpace(text, ws)
	}
	v, err := parseSimpleText(st.base, node, text, checkFacets)
	if err != nil {
		return nil, err
	}
	if checkFacets {
		if err := st.facets.Validate(v, text); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func parseSimpleText(t Type, node *xmlnode.Node, text string, checkFacets bool) (any, error) {
	switch t := t.(type) {
	case *SimpleType:
		return t.parseText(node, text, checkFacets)
	case SimpleValueType:
		return t.ParseValue(node, text)
	}
	return nil, fmt.Errorf("%s is not a simple type", typeLabel(t))
}

func (st *SimpleType) renderValue(node *xmlnode.Node, value any, r *renderState) error {
	text, err := st.FormatValue(node, value)
	if err != nil {
		return validationErrorf(r.path, "cvc-facet-valid", "%v", err)
	}
	node.Text = text
	return nil
}

func (st *SimpleType) parseNode(node *xmlnode.Node, p *parseState) (any, error) {
	if node.Text == "" && st.variety != VarietyList {
		return nil, nil
	}
	return st.parseText(node, node.Text, p.settings.ValidateFacetsOnParse)
}
