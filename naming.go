package xsd

import "fmt"

// valueNames hands out the synthetic field names used for repeated or
// anonymous content members: _value_1, _value_2, ...
type valueNames struct {
	n int
}

func (g *valueNames) next() string {
	g.n++
	return fmt.Sprintf("_value_%d", g.n)
}

// reserve skips past a _value_N name already used by a spliced member.
func (g *valueNames) reserve(name string) {
	var n int
	if _, err := fmt.Sscanf(name, "_value_%d", &n); err == nil && n > g.n {
		g.n = n
	}
}

// uniqueNames keeps field names unique within one content model. The first
// use of a name is returned unchanged; later uses get a __N suffix.
type uniqueNames struct {
	seen map[string]int
}

func newUniqueNames() *uniqueNames {
	return &uniqueNames{seen: make(map[string]int)}
}

func (g *uniqueNames) name(base string) string {
	n, ok := g.seen[base]
	g.seen[base] = n + 1
	if !ok {
		return base
	}
	return fmt.Sprintf("%s__%d", base, n)
}

// reserve marks a name as used without renaming it.
func (g *uniqueNames) reserve(name string) {
	if _, ok := g.seen[name]; !ok {
		g.seen[name] = 1
	}
}
