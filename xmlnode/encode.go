package xmlnode

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Encoder writes node trees as XML text.
type Encoder struct {
	w      *bufio.Writer
	indent string
	header bool
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Indent sets the per level indentation. An empty string disables pretty
// printing.
func (e *Encoder) Indent(indent string) {
	e.indent = indent
}

// Header controls whether the XML declaration is written first.
func (e *Encoder) Header(on bool) {
	e.header = on
}

// Encode writes n. A document container writes each of its children.
func (e *Encoder) Encode(n *Node) error {
	if e.header {
		if _, err := e.w.WriteString(xml.Header); err != nil {
			return err
		}
	}
	scope := inheritedScope(n)
	if n.IsDocument() {
		for i, child := range n.Children {
			if i > 0 && e.indent != "" {
				e.w.WriteByte('\n')
			}
			if err := e.encode(child, scope, 0); err != nil {
				return err
			}
		}
	} else if err := e.encode(n, scope, 0); err != nil {
		return err
	}
	return e.w.Flush()
}

// Marshal returns the compact encoding of n.
func Marshal(n *Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalIndent is like Marshal but indents nested elements.
func MarshalIndent(n *Node, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.Indent(indent)
	if err := enc.Encode(n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// inheritedScope collects the bindings declared on the ancestors of n so a
// subtree encodes with the prefixes it would have in the full document.
func inheritedScope(n *Node) map[string]string {
	scope := map[string]string{"": ""}
	var chain []*Node
	for cur := n.parent; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, b := range chain[i].ns {
			scope[b.prefix] = b.uri
		}
	}
	return scope
}

type decl struct {
	prefix string
	uri    string
}

func (e *Encoder) encode(n *Node, parent map[string]string, depth int) error {
	scope := make(map[string]string, len(parent)+len(n.ns))
	for k, v := range parent {
		scope[k] = v
	}
	var decls []decl
	declare := func(prefix, uri string) {
		for i, d := range decls {
			if d.prefix == prefix {
				decls[i].uri = uri
				scope[prefix] = uri
				return
			}
		}
		decls = append(decls, decl{prefix, uri})
		scope[prefix] = uri
	}
	for _, b := range n.ns {
		declare(b.prefix, b.uri)
	}

	tag := n.Name.Local
	switch {
	case n.Name.Space == "":
		if scope[""] != "" {
			declare("", "")
		}
	case n.Prefix != "" && scope[n.Prefix] == n.Name.Space:
		tag = n.Prefix + ":" + tag
	case n.Prefix == "" && scope[""] == n.Name.Space:
	default:
		prefix, ok := findPrefix(scope, n.Name.Space)
		if !ok {
			prefix = n.Prefix
			if prefix == "" {
				prefix = freePrefix(scope)
			}
			declare(prefix, n.Name.Space)
		}
		tag = prefix + ":" + tag
	}

	type attr struct {
		name  string
		value string
	}
	attrs := make([]attr, 0, len(n.Attrs))
	for _, a := range n.Attrs {
		name := a.Name.Local
		switch a.Name.Space {
		case "":
		case XMLNamespace:
			name = "xml:" + name
		default:
			prefix, ok := findPrefix(scope, a.Name.Space)
			if !ok {
				prefix = freePrefix(scope)
				declare(prefix, a.Name.Space)
			}
			name = prefix + ":" + name
		}
		attrs = append(attrs, attr{name, a.Value})
	}

	if e.indent != "" && depth > 0 {
		e.w.WriteByte('\n')
		e.w.WriteString(strings.Repeat(e.indent, depth))
	}
	e.w.WriteByte('<')
	e.w.WriteString(tag)
	for _, d := range decls {
		if d.prefix == "" {
			e.w.WriteString(` xmlns="`)
		} else {
			e.w.WriteString(` xmlns:` + d.prefix + `="`)
		}
		if err := escapeAttr(e.w, d.uri); err != nil {
			return err
		}
		e.w.WriteByte('"')
	}
	for _, a := range attrs {
		e.w.WriteString(" " + a.name + `="`)
		if err := escapeAttr(e.w, a.value); err != nil {
			return err
		}
		e.w.WriteByte('"')
	}

	text := n.Text
	if len(n.Children) > 0 && strings.TrimSpace(text) == "" {
		text = ""
	}
	if text == "" && len(n.Children) == 0 {
		_, err := e.w.WriteString("/>")
		return err
	}
	e.w.WriteByte('>')
	if text != "" {
		if err := xml.EscapeText(e.w, []byte(text)); err != nil {
			return err
		}
	}
	for _, child := range n.Children {
		if err := e.encode(child, scope, depth+1); err != nil {
			return fmt.Errorf("%s: %w", tag, err)
		}
	}
	if e.indent != "" && len(n.Children) > 0 {
		e.w.WriteByte('\n')
		e.w.WriteString(strings.Repeat(e.indent, depth))
	}
	e.w.WriteString("</" + tag + ">")
	return nil
}

func escapeAttr(w io.Writer, s string) error {
	return xml.EscapeText(w, []byte(s))
}

func findPrefix(scope map[string]string, uri string) (string, bool) {
	var found []string
	for p, u := range scope {
		if u == uri && p != "" {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		return "", false
	}
	sort.Strings(found)
	return found[0], true
}

func freePrefix(scope map[string]string) string {
	for i := 0; ; i++ {
		p := fmt.Sprintf("ns%d", i)
		if _, taken := scope[p]; !taken {
			return p
		}
	}
}
