package xmlnode

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"aqwari.net/xml/xmltree"
	"github.com/agentflare-ai/go-xmldom"
)

// Decode parses an XML document and returns its document container.
func Decode(r io.Reader) (*Node, error) {
	doc, err := xmldom.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode XML: %w", err)
	}
	return FromDocument(doc)
}

// DecodeString is a convenience wrapper around Decode.
func DecodeString(s string) (*Node, error) {
	return Decode(strings.NewReader(s))
}

// DecodeBytes is a convenience wrapper around Decode.
func DecodeBytes(b []byte) (*Node, error) {
	return Decode(bytes.NewReader(b))
}

// FromDocument converts a parsed DOM document into a node tree.
func FromDocument(doc xmldom.Document) (*Node, error) {
	root := doc.DocumentElement()
	if root == nil {
		return nil, fmt.Errorf("document has no root element")
	}
	container := NewDocument()
	container.Append(FromElement(root))
	return container, nil
}

// FromElement converts a DOM element and its descendants.
func FromElement(el xmldom.Element) *Node {
	return fromElement(el, nil)
}

func fromElement(el xmldom.Element, parent *Node) *Node {
	n := &Node{
		Name: xml.Name{
			Space: string(el.NamespaceURI()),
			Local: string(el.LocalName()),
		},
		parent: parent,
	}
	line, _, _ := el.Position()
	n.Line = line

	attrs := el.Attributes()
	for i := uint(0); i < attrs.Length(); i++ {
		attr := attrs.Item(i)
		if attr == nil {
			continue
		}
		value := string(attr.NodeValue())
		if prefix, ok := namespaceDecl(attr); ok {
			n.DeclareNamespace(prefix, value)
			continue
		}
		n.Attrs = append(n.Attrs, xml.Attr{
			Name: xml.Name{
				Space: string(attr.NamespaceURI()),
				Local: string(attr.LocalName()),
			},
			Value: value,
		})
	}
	n.Prefix = elementPrefix(el, n)

	var text strings.Builder
	nodes := el.ChildNodes()
	for i := uint(0); i < nodes.Length(); i++ {
		node := nodes.Item(i)
		if node == nil {
			continue
		}
		switch node.NodeType() {
		case 3, 4: // TEXT_NODE, CDATA_SECTION_NODE
			text.WriteString(string(node.NodeValue()))
		}
	}
	n.Text = text.String()

	children := el.Children()
	for i := uint(0); i < children.Length(); i++ {
		child := children.Item(i)
		if child == nil {
			continue
		}
		n.Children = append(n.Children, fromElement(child, n))
	}
	return n
}

// namespaceDecl reports whether attr is a namespace declaration and returns
// the declared prefix. The decoder stores xmlns:p="..." with namespace
// "xmlns" and local name p, while DOMs built by hand use the qualified name.
func namespaceDecl(attr xmldom.Node) (string, bool) {
	space := string(attr.NamespaceURI())
	local := string(attr.LocalName())
	name := string(attr.NodeName())
	switch {
	case space == "xmlns" || space == XMLNSNamespace:
		if local == "xmlns" {
			return "", true
		}
		return local, true
	case string(attr.Prefix()) == "xmlns":
		return local, true
	case name == "xmlns":
		return "", true
	case strings.HasPrefix(name, "xmlns:"):
		return strings.TrimPrefix(name, "xmlns:"), true
	}
	return "", false
}

// elementPrefix recovers the prefix an element was written with. The DOM
// keeps it only when the element was created with a qualified name, so
// otherwise the namespace is mapped back through the declarations in scope.
func elementPrefix(el xmldom.Element, n *Node) string {
	if p := string(el.Prefix()); p != "" {
		return p
	}
	if tag := string(el.NodeName()); strings.Contains(tag, ":") {
		p, _, _ := strings.Cut(tag, ":")
		return p
	}
	if n.Name.Space == "" {
		return ""
	}
	if def, ok := n.LookupNamespace(""); ok && def == n.Name.Space {
		return ""
	}
	if p, ok := n.LookupPrefix(n.Name.Space); ok {
		return p
	}
	return ""
}

// FromXMLTree converts an element parsed with aqwari.net/xml/xmltree.
// Prefixes used inside attribute values and text are resolved through the
// xmltree scope and redeclared on the node so they survive the conversion.
func FromXMLTree(el *xmltree.Element) *Node {
	n := &Node{Name: el.Name}
	for _, a := range el.StartElement.Attr {
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			n.DeclareNamespace("", a.Value)
		case a.Name.Space == "xmlns":
			n.DeclareNamespace(a.Name.Local, a.Value)
		default:
			n.Attrs = append(n.Attrs, a)
			n.importPrefix(el, a.Value)
		}
	}
	if len(el.Children) == 0 {
		n.Text = string(el.Content)
		n.importPrefix(el, n.Text)
	}
	for i := range el.Children {
		n.Append(FromXMLTree(&el.Children[i]))
	}
	return n
}

// ParseXMLTree parses data with xmltree and converts the result into a
// document container.
func ParseXMLTree(data []byte) (*Node, error) {
	root, err := xmltree.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	doc := NewDocument()
	doc.Append(FromXMLTree(root))
	return doc, nil
}

func (n *Node) importPrefix(el *xmltree.Element, value string) {
	prefix, _, found := strings.Cut(strings.TrimSpace(value), ":")
	if !found || prefix == "" || strings.ContainsAny(prefix, " /\t\n") {
		return
	}
	if _, ok := n.LookupNamespace(prefix); ok {
		return
	}
	if name := el.Resolve(prefix + ":x"); name.Space != "" {
		n.DeclareNamespace(prefix, name.Space)
	}
}
