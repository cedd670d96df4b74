package xsd

import (
	"sync"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
)

// Particle is a member of a content model: an element, a wildcard or an
// indicator.
type Particle interface {
	MinOccurs() int
	MaxOccurs() int

	resolveParticle() (Particle, error)
	signature(s *Schema, standalone bool) string
	// render writes value as children of parent.
	render(parent *xmlnode.Node, value any, r *renderState) error
	// parseQueue consumes the children it matches from the head of q.
	parseQueue(q *nodeQueue, p *parseState) (any, error)
}

// Indicator is a content model combinator: sequence, all, choice or group.
type Indicator interface {
	Particle
	Particles() []Particle

	// nested pairs each member with its field name. Members spliced into
	// the parent value have an empty name.
	nested() []namedParticle
	// fields flattens nested, replacing spliced members by their fields.
	fields() []namedParticle
	clone(minOccurs, maxOccurs int) Indicator
}

type namedParticle struct {
	name     string
	particle Particle
}

// occurs holds minOccurs and maxOccurs.
type occurs struct {
	min int
	max int
}

func (o occurs) MinOccurs() int { return o.min }
func (o occurs) MaxOccurs() int { return o.max }

func (o occurs) repeats() bool { return o.max != 1 }

// more reports whether another occurrence may follow n parsed ones.
func (o occurs) more(n int) bool {
	return o.max == Unbounded || n < o.max
}

// checkCount validates the length of a repeated value.
func (o occurs) checkCount(n int, what string, r *renderState) error {
	if n < o.min {
		return validationErrorf(r.path, "cvc-complex-type.2.4.b",
			"expected at least %d items of %s (minOccurs check), %d found", o.min, what, n)
	}
	if o.max != Unbounded && n > o.max {
		return validationErrorf(r.path, "cvc-complex-type.2.4.d",
			"expected at most %d items of %s (maxOccurs check), %d found", o.max, what, n)
	}
	return nil
}

// nameCache computes the field names of an indicator once, after the
// schema is resolved.
type nameCache struct {
	once   sync.Once
	nested []namedParticle
	fields []namedParticle
}

func (c *nameCache) get(particles func() []Particle) *nameCache {
	c.once.Do(func() {
		c.nested = nameParticles(particles())
		for _, np := range c.nested {
			if np.name == "" {
				c.fields = append(c.fields, np.particle.(Indicator).fields()...)
				continue
			}
			c.fields = append(c.fields, np)
		}
	})
	return c
}

// nameParticles assigns field names. Elements keep their name, made unique
// with a __N suffix; wildcards and repeated indicators get _value_N; a
// single nested indicator is spliced and its own fields reserve their
// names.
func nameParticles(particles []Particle) []namedParticle {
	values := &valueNames{}
	unique := newUniqueNames()
	out := make([]namedParticle, 0, len(particles))
	for _, p := range particles {
		switch p := p.(type) {
		case *Element:
			out = append(out, namedParticle{name: unique.name(p.name), particle: p})
		case Indicator:
			if p.MaxOccurs() != 1 {
				out = append(out, namedParticle{name: values.next(), particle: p})
				continue
			}
			for _, f := range p.fields() {
				unique.reserve(f.name)
				values.reserve(f.name)
			}
			out = append(out, namedParticle{particle: p})
		default:
			out = append(out, namedParticle{name: values.next(), particle: p})
		}
	}
	return out
}

// nodeQueue is the list of XML children not yet consumed by a content
// model. Copies share the backing array; removal always allocates.
type nodeQueue struct {
	nodes []*xmlnode.Node
}

func newNodeQueue(nodes []*xmlnode.Node) *nodeQueue {
	return &nodeQueue{nodes: nodes}
}

func (q *nodeQueue) Len() int { return len(q.nodes) }

func (q *nodeQueue) head() *xmlnode.Node {
	if len(q.nodes) == 0 {
		return nil
	}
	return q.nodes[0]
}

func (q *nodeQueue) take(i int) *xmlnode.Node {
	n := q.nodes[i]
	if i == 0 {
		q.nodes = q.nodes[1:]
		return n
	}
	rest := make([]*xmlnode.Node, 0, len(q.nodes)-1)
	rest = append(rest, q.nodes[:i]...)
	q.nodes = append(rest, q.nodes[i+1:]...)
	return n
}

func (q *nodeQueue) copy() *nodeQueue {
	return &nodeQueue{nodes: q.nodes}
}

// mergeRecord copies the fields of a spliced member's result into obj.
func mergeRecord(obj *Object, v any) {
	rec, ok := v.(*Object)
	if !ok || rec == nil {
		return
	}
	for _, k := range rec.keys {
		obj.Set(k, rec.values[k])
	}
}

// nodeMatches compares the tag of node with name. lenient is true when only
// the local names are equal and lenient namespace matching allowed it.
func nodeMatches(node *xmlnode.Node, name QName, p *parseState) (match, lenient bool) {
	got := qnameOf(node.Name)
	if got == name {
		return true, false
	}
	if p.settings.LenientNamespaces && got.Local == name.Local {
		return true, true
	}
	return false, false
}

// renderMembers renders the nested members of an indicator for one
// occurrence value.
func renderMembers(parent *xmlnode.Node, members []namedParticle, value any, r *renderState) error {
	for _, np := range members {
		if np.name == "" {
			if err := np.particle.render(parent, value, r); err != nil {
				return err
			}
			continue
		}
		v, _ := lookupField(value, np.name)
		if v == nil && np.particle.MinOccurs() == 0 {
			continue
		}
		pop := r.push(np.name)
		err := np.particle.render(parent, v, r)
		pop()
		if err != nil {
			return err
		}
	}
	return nil
}

// occurrenceValues splits the value of a possibly repeated indicator into
// one value per occurrence.
func occurrenceValues(o occurs, value any, what string, r *renderState) ([]any, error) {
	if !o.repeats() {
		return []any{value}, nil
	}
	if value == nil {
		if o.min > 0 {
			return nil, validationErrorf(r.path, "cvc-complex-type.2.4.b", "missing value for %s", what)
		}
		return nil, nil
	}
	items, ok := asList(value)
	if !ok {
		items = []any{value}
	}
	if err := o.checkCount(len(items), what, r); err != nil {
		return nil, err
	}
	return items, nil
}
