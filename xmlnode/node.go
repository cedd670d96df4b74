// Package xmlnode is a small mutable XML element tree used by the schema
// codec. Nodes keep their namespace declarations so that QName valued text
// (xsi:type, xs:QName content) can be resolved and written back.
package xmlnode

import (
	"encoding/xml"
	"fmt"
	"strings"
)

const (
	// XMLNamespace is the namespace bound to the reserved xml prefix.
	XMLNamespace = "http://www.w3.org/XML/1998/namespace"
	// XMLNSNamespace is the namespace of namespace declarations.
	XMLNSNamespace = "http://www.w3.org/2000/xmlns/"
)

// Node is an element in the tree. A node with an empty Name acts as a
// document container: its children are the top level elements.
type Node struct {
	Name     xml.Name
	Prefix   string // preferred prefix when encoding
	Attrs    []xml.Attr
	Children []*Node
	Text     string
	Line     int

	parent *Node
	ns     []binding
}

type binding struct {
	prefix string
	uri    string
}

// NewDocument returns an empty document container.
func NewDocument() *Node {
	return &Node{}
}

// New creates a detached element.
func New(space, local string) *Node {
	return &Node{Name: xml.Name{Space: space, Local: local}}
}

// IsDocument reports whether n is a document container.
func (n *Node) IsDocument() bool {
	return n.Name.Local == ""
}

// Parent returns the parent node or nil.
func (n *Node) Parent() *Node {
	return n.parent
}

// Root returns the top most element, skipping a document container.
func (n *Node) Root() *Node {
	cur := n
	for cur.parent != nil && !cur.parent.IsDocument() {
		cur = cur.parent
	}
	return cur
}

// AddChild creates a new element under n and returns it.
func (n *Node) AddChild(space, local string) *Node {
	child := New(space, local)
	n.Append(child)
	return child
}

// Append adds child as the last child of n, detaching it from any previous
// parent.
func (n *Node) Append(child *Node) {
	if child.parent != nil {
		child.parent.remove(child)
	}
	child.parent = n
	n.Children = append(n.Children, child)
}

func (n *Node) remove(child *Node) {
	for i, c := range n.Children {
		if c == child {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// FirstChild returns the first child element or nil.
func (n *Node) FirstChild() *Node {
	if len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}

// Attr returns the value of the attribute {space}local.
func (n *Node) Attr(space, local string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Space == space && a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets or replaces the attribute {space}local.
func (n *Node) SetAttr(space, local, value string) {
	for i, a := range n.Attrs {
		if a.Name.Space == space && a.Name.Local == local {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, xml.Attr{Name: xml.Name{Space: space, Local: local}, Value: value})
}

// RemoveAttr deletes the attribute {space}local if present.
func (n *Node) RemoveAttr(space, local string) {
	for i, a := range n.Attrs {
		if a.Name.Space == space && a.Name.Local == local {
			n.Attrs = append(n.Attrs[:i], n.Attrs[i+1:]...)
			return
		}
	}
}

// DeclareNamespace binds prefix to uri on n. The empty prefix sets the
// default namespace.
func (n *Node) DeclareNamespace(prefix, uri string) {
	for i, b := range n.ns {
		if b.prefix == prefix {
			n.ns[i].uri = uri
			return
		}
	}
	n.ns = append(n.ns, binding{prefix: prefix, uri: uri})
}

// Namespaces returns the prefix to namespace bindings declared on n itself.
func (n *Node) Namespaces() map[string]string {
	m := make(map[string]string, len(n.ns))
	for _, b := range n.ns {
		m[b.prefix] = b.uri
	}
	return m
}

// LookupNamespace resolves prefix against the declarations in scope at n.
func (n *Node) LookupNamespace(prefix string) (string, bool) {
	switch prefix {
	case "xml":
		return XMLNamespace, true
	case "xmlns":
		return XMLNSNamespace, true
	}
	for cur := n; cur != nil; cur = cur.parent {
		for _, b := range cur.ns {
			if b.prefix == prefix {
				return b.uri, true
			}
		}
	}
	return "", false
}

// LookupPrefix finds a prefix in scope at n that is bound to uri. Prefixes
// shadowed by a nearer declaration are skipped.
func (n *Node) LookupPrefix(uri string) (string, bool) {
	if uri == XMLNamespace {
		return "xml", true
	}
	for cur := n; cur != nil; cur = cur.parent {
		for _, b := range cur.ns {
			if b.uri != uri || b.prefix == "" {
				continue
			}
			if bound, _ := n.LookupNamespace(b.prefix); bound == uri {
				return b.prefix, true
			}
		}
	}
	return "", false
}

// PrefixFor returns a prefix bound to uri in scope at n, declaring a new one
// on the root element when none exists. preferred is used for the new
// declaration when it is free.
func (n *Node) PrefixFor(uri, preferred string) string {
	if p, ok := n.LookupPrefix(uri); ok {
		return p
	}
	root := n.Root()
	if root.IsDocument() {
		root = n
	}
	prefix := preferred
	if prefix == "" || root.prefixTaken(prefix) {
		for i := 0; ; i++ {
			prefix = fmt.Sprintf("ns%d", i)
			if !root.prefixTaken(prefix) {
				break
			}
		}
	}
	root.DeclareNamespace(prefix, uri)
	return prefix
}

func (n *Node) prefixTaken(prefix string) bool {
	taken := false
	n.walk(func(c *Node) {
		for _, b := range c.ns {
			if b.prefix == prefix {
				taken = true
			}
		}
	})
	return taken
}

func (n *Node) walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.walk(fn)
	}
}

// ResolveQName resolves a prefixed name such as "tns:Item" using the
// declarations in scope at n. Unprefixed names take the default namespace.
func (n *Node) ResolveQName(value string) (xml.Name, error) {
	value = strings.TrimSpace(value)
	prefix, local, found := strings.Cut(value, ":")
	if !found {
		uri, _ := n.LookupNamespace("")
		return xml.Name{Space: uri, Local: value}, nil
	}
	uri, ok := n.LookupNamespace(prefix)
	if !ok {
		return xml.Name{}, fmt.Errorf("undeclared namespace prefix %q in %q", prefix, value)
	}
	return xml.Name{Space: uri, Local: local}, nil
}

// Clone returns a deep copy of n detached from its parent. Namespace
// declarations in scope at n are copied onto the clone.
func (n *Node) Clone() *Node {
	c := n.clone()
	seen := map[string]bool{}
	for _, b := range c.ns {
		seen[b.prefix] = true
	}
	for cur := n.parent; cur != nil; cur = cur.parent {
		for _, b := range cur.ns {
			if !seen[b.prefix] {
				seen[b.prefix] = true
				c.ns = append(c.ns, b)
			}
		}
	}
	return c
}

func (n *Node) clone() *Node {
	c := &Node{
		Name:   n.Name,
		Prefix: n.Prefix,
		Text:   n.Text,
		Line:   n.Line,
		Attrs:  append([]xml.Attr(nil), n.Attrs...),
		ns:     append([]binding(nil), n.ns...),
	}
	for _, child := range n.Children {
		cc := child.clone()
		cc.parent = c
		c.Children = append(c.Children, cc)
	}
	return c
}

// String returns the encoded form of n.
func (n *Node) String() string {
	data, err := Marshal(n)
	if err != nil {
		return fmt.Sprintf("<!-- %v -->", err)
	}
	return string(data)
}
