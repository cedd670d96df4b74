package xsd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
)

// ProcessContentsMode defines how wildcard content should be processed
type ProcessContentsMode string

const (
	// StrictProcess requires the element/attribute to be validated against its declaration
	StrictProcess ProcessContentsMode = "strict"
	// LaxProcess validates if a declaration is found, otherwise allows it
	LaxProcess ProcessContentsMode = "lax"
	// SkipProcess allows the element/attribute without validation
	SkipProcess ProcessContentsMode = "skip"
)

// WildcardNamespaceConstraint represents namespace constraints for wildcards
type WildcardNamespaceConstraint struct {
	Mode       string   // "##any", "##other", "##targetNamespace", "##local", or "list"
	Namespaces []string // Explicit list of allowed namespaces (when not using ##modes)
}

// ParseNamespaceConstraint parses a namespace attribute value into a constraint
func ParseNamespaceConstraint(value string) *WildcardNamespaceConstraint {
	if value == "" {
		value = "##any"
	}
	constraint := &WildcardNamespaceConstraint{Mode: value}
	if !strings.HasPrefix(value, "##") || len(strings.Fields(value)) > 1 {
		constraint.Namespaces = strings.Fields(value)
		constraint.Mode = "list"
	}
	return constraint
}

// Matches checks if a namespace matches this constraint
func (c *WildcardNamespaceConstraint) Matches(namespace, targetNamespace string) bool {
	switch c.Mode {
	case "##any":
		return true
	case "##other":
		return namespace != targetNamespace && namespace != ""
	case "##targetNamespace":
		return namespace == targetNamespace
	case "##local":
		return namespace == ""
	case "list":
		for _, ns := range c.Namespaces {
			switch ns {
			case namespace:
				return true
			case "##targetNamespace":
				if namespace == targetNamespace {
					return true
				}
			case "##local":
				if namespace == "" {
					return true
				}
			}
		}
	}
	return false
}

func (c *WildcardNamespaceConstraint) String() string {
	if c.Mode == "list" {
		return strings.Join(c.Namespaces, " ")
	}
	return c.Mode
}

func parseProcessContents(value string) (ProcessContentsMode, error) {
	switch ProcessContentsMode(value) {
	case "":
		return StrictProcess, nil
	case StrictProcess, LaxProcess, SkipProcess:
		return ProcessContentsMode(value), nil
	}
	return "", fmt.Errorf("invalid processContents value %q", value)
}

// Any is the xs:any element wildcard.
type Any struct {
	occurs
	Namespace       *WildcardNamespaceConstraint
	ProcessContents ProcessContentsMode
	targetNamespace string
}

func (a *Any) resolveParticle() (Particle, error) { return a, nil }

func (a *Any) signature(s *Schema, standalone bool) string {
	if a.repeats() {
		return "ANY[]"
	}
	return "ANY"
}

// parseQueue consumes children from the head of q while their namespace is
// allowed by the wildcard.
func (a *Any) parseQueue(q *nodeQueue, p *parseState) (any, error) {
	var results []any
	for n := 0; a.more(n) && q.Len() > 0; n++ {
		if !a.Namespace.Matches(q.head().Name.Space, a.targetNamespace) {
			break
		}
		node := q.take(0)
		v, err := a.parseNode(node, p)
		if err != nil {
			return nil, wrapParseError(err, node.Line)
		}
		results = append(results, v)
	}
	return occurrenceResult(a.occurs, results), nil
}

// parseNode decodes a wildcard child through the global element of the same
// name. Children without a declaration, or skipped, stay raw nodes.
func (a *Any) parseNode(node *xmlnode.Node, p *parseState) (any, error) {
	if a.ProcessContents == SkipProcess || p.schema == nil {
		return node.Clone(), nil
	}
	if xsiType, ok := node.Attr(XSINamespace, "type"); ok {
		if name, err := node.ResolveQName(xsiType); err == nil {
			if t, err := p.schema.GetType(qnameOf(name)); err == nil {
				v, err := t.parseNode(node, p)
				if err != nil {
					return nil, err
				}
				return &AnyObject{Type: t, Value: v}, nil
			}
		}
	}
	name := qnameOf(node.Name)
	el, err := p.schema.GetElement(name)
	if err != nil {
		p.logger.Debug("no declaration for wildcard element, keeping raw node", "element", name.String())
		return node.Clone(), nil
	}
	v, err := el.parseElementNode(node, p, false)
	if err != nil {
		return nil, err
	}
	return &AnyObject{Element: el, Value: v}, nil
}

func (a *Any) render(parent *xmlnode.Node, value any, r *renderState) error {
	if value == nil {
		if a.min > 0 {
			return validationErrorf(r.path, "cvc-complex-type.2.4.b", "missing element for xs:any")
		}
		return nil
	}
	if nodes, ok := value.([]*xmlnode.Node); ok {
		if err := a.checkCount(len(nodes), "xs:any", r); err != nil {
			return err
		}
		for _, n := range nodes {
			parent.Append(n.Clone())
		}
		return nil
	}
	if a.repeats() {
		if items, ok := asList(value); ok {
			if err := a.checkCount(len(items), "xs:any", r); err != nil {
				return err
			}
			for i, item := range items {
				pop := r.pushIndex(i)
				err := a.renderItem(parent, item, r)
				pop()
				if err != nil {
					return err
				}
			}
			return nil
		}
	}
	return a.renderItem(parent, value, r)
}

func (a *Any) renderItem(parent *xmlnode.Node, value any, r *renderState) error {
	switch v := value.(type) {
	case nil, NilValue:
		return nil
	case *xmlnode.Node:
		parent.Append(v.Clone())
		return nil
	case *AnyObject:
		if v.Element == nil {
			return validationErrorf(r.path, "", "value for xs:any has no element: %v", v)
		}
		if !a.Namespace.Matches(v.Element.qname.Namespace, a.targetNamespace) {
			return validationErrorf(r.path, "cvc-wildcard.2",
				"element %s is not allowed by namespace constraint %s", v.Element.qname, a.Namespace)
		}
		return v.Element.render(parent, v.Value, r)
	}
	return validationErrorf(r.path, "", "unsupported value %T for xs:any", value)
}

// AnyAttribute is the xs:anyAttribute wildcard. Matching attributes are
// collected into a map[QName]string.
type AnyAttribute struct {
	Namespace       *WildcardNamespaceConstraint
	ProcessContents ProcessContentsMode
	targetNamespace string
}

func (a *AnyAttribute) resolveAttributes() ([]attributeMember, error) {
	return []attributeMember{a}, nil
}

// parse collects the attributes of node that no declared attribute claimed.
func (a *AnyAttribute) parse(node *xmlnode.Node, declared map[QName]bool) map[QName]string {
	var out map[QName]string
	for _, attr := range node.Attrs {
		name := qnameOf(attr.Name)
		if declared[name] || name.Namespace == XSINamespace || name.Namespace == xmlnode.XMLNSNamespace {
			continue
		}
		if !a.Namespace.Matches(name.Namespace, a.targetNamespace) {
			continue
		}
		if out == nil {
			out = make(map[QName]string)
		}
		out[name] = attr.Value
	}
	return out
}

func (a *AnyAttribute) render(node *xmlnode.Node, value any, r *renderState) error {
	set := func(name QName, text string) {
		node.SetAttr(name.Namespace, name.Local, text)
	}
	switch v := value.(type) {
	case nil:
		return nil
	case map[QName]string:
		names := make([]QName, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool { return names[i].String() < names[j].String() })
		for _, name := range names {
			set(name, v[name])
		}
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			set(ParseQName(k), v[k])
		}
	default:
		return validationErrorf(r.path, "", "unsupported value %T for xs:anyAttribute", value)
	}
	return nil
}

func (a *AnyAttribute) signature(s *Schema) string {
	return "{}"
}
