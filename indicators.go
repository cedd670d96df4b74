package xsd

import (
	"strings"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
)

// indicator is the state shared by sequence, all and choice.
type indicator struct {
	occurs
	particles []Particle
	state     resolveState
	names     *nameCache
}

func newIndicator(minOccurs, maxOccurs int, particles []Particle) indicator {
	return indicator{
		occurs:    occurs{min: minOccurs, max: maxOccurs},
		particles: particles,
		names:     &nameCache{},
	}
}

// Particles returns the members in declaration order.
func (ind *indicator) Particles() []Particle {
	return append([]Particle(nil), ind.particles...)
}

func (ind *indicator) nested() []namedParticle {
	return ind.names.get(func() []Particle { return ind.particles }).nested
}

func (ind *indicator) fields() []namedParticle {
	return ind.names.get(func() []Particle { return ind.particles }).fields
}

// copyWith returns a copy with new occurrence bounds and fresh name cache.
func (ind *indicator) copyWith(minOccurs, maxOccurs int) indicator {
	return newIndicator(minOccurs, maxOccurs, ind.Particles())
}

// resolveMembers replaces references among the members by their targets.
func (ind *indicator) resolveMembers() error {
	if ind.state != unresolved {
		return nil
	}
	ind.state = resolving
	for i, p := range ind.particles {
		r, err := p.resolveParticle()
		if err != nil {
			return err
		}
		ind.particles[i] = r
	}
	ind.state = resolved
	return nil
}

func (ind *indicator) insert(i int, p Particle) {
	ind.particles = append(ind.particles[:i], append([]Particle{p}, ind.particles[i:]...)...)
}

// isUnexpected reports a content mismatch raised directly by a member, as
// opposed to one raised while parsing the member's own content.
func isUnexpected(err error) bool {
	_, ok := err.(*UnexpectedElementError)
	return ok
}

// Sequence requires its members in declaration order.
type Sequence struct {
	indicator
}

// NewSequence returns a sequence of particles.
func NewSequence(minOccurs, maxOccurs int, particles ...Particle) *Sequence {
	return &Sequence{newIndicator(minOccurs, maxOccurs, particles)}
}

func (s *Sequence) clone(minOccurs, maxOccurs int) Indicator {
	return &Sequence{s.copyWith(minOccurs, maxOccurs)}
}

func (s *Sequence) resolveParticle() (Particle, error) {
	if err := s.resolveMembers(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sequence) signature(schema *Schema, standalone bool) string {
	return orderSignature(schema, s.nested(), s.repeats())
}

func orderSignature(schema *Schema, members []namedParticle, repeats bool) string {
	parts := make([]string, 0, len(members))
	for _, np := range members {
		if _, ok := np.particle.(Indicator); ok {
			if part := np.particle.signature(schema, false); part != "" {
				parts = append(parts, part)
			}
			continue
		}
		parts = append(parts, np.name+": "+np.particle.signature(schema, false))
	}
	part := strings.Join(parts, ", ")
	if repeats {
		return "[" + part + "]"
	}
	return part
}

func (s *Sequence) render(parent *xmlnode.Node, value any, r *renderState) error {
	items, err := occurrenceValues(s.occurs, value, "sequence", r)
	if err != nil {
		return err
	}
	for i, item := range items {
		pop := func() {}
		if s.repeats() {
			pop = r.pushIndex(i)
		}
		err := renderMembers(parent, s.nested(), item, r)
		pop()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequence) parseQueue(q *nodeQueue, p *parseState) (any, error) {
	var results []any
occurrences:
	for n := 0; s.more(n) && q.Len() > 0; n++ {
		start := q.copy()
		item := NewRecord()
		for _, np := range s.nested() {
			v, err := np.particle.parseQueue(q, p)
			if err != nil {
				if !isUnexpected(err) {
					return nil, err
				}
				// An optional occurrence that does not match ends the
				// repetition and leaves its children to what follows.
				partial := q.Len() < start.Len()
				if n >= s.min && (p.settings.Strict || !partial) {
					q.nodes = start.nodes
					break occurrences
				}
				if p.settings.Strict {
					return nil, err
				}
				p.logger.Warn("skipping unmatched sequence member", "field", np.name, "error", err)
				v = nil
			}
			if np.name == "" {
				mergeRecord(item, v)
			} else {
				item.Set(np.name, v)
			}
		}
		// An occurrence that consumed nothing ends the repetition.
		if q.Len() == start.Len() {
			break
		}
		results = append(results, item)
	}
	return occurrenceResult(s.occurs, results), nil
}

func occurrenceResult(o occurs, results []any) any {
	if !o.repeats() {
		if len(results) == 0 {
			return nil
		}
		return results[0]
	}
	if results == nil {
		return []any{}
	}
	return results
}

// All accepts its element members in any order, each at most once.
type All struct {
	indicator
}

// NewAll returns an all group of particles.
func NewAll(minOccurs, maxOccurs int, particles ...Particle) *All {
	return &All{newIndicator(minOccurs, maxOccurs, particles)}
}

func (a *All) clone(minOccurs, maxOccurs int) Indicator {
	return &All{a.copyWith(minOccurs, maxOccurs)}
}

func (a *All) resolveParticle() (Particle, error) {
	if err := a.resolveMembers(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *All) signature(schema *Schema, standalone bool) string {
	return orderSignature(schema, a.nested(), a.repeats())
}

func (a *All) render(parent *xmlnode.Node, value any, r *renderState) error {
	items, err := occurrenceValues(a.occurs, value, "all", r)
	if err != nil {
		return err
	}
	for i, item := range items {
		pop := func() {}
		if a.repeats() {
			pop = r.pushIndex(i)
		}
		err := renderMembers(parent, a.nested(), item, r)
		pop()
		if err != nil {
			return err
		}
	}
	return nil
}

// parseQueue buckets the children by tag and lets every member parse its
// own bucket. Children no member claims stay in q.
func (a *All) parseQueue(q *nodeQueue, p *parseState) (any, error) {
	members := a.nested()
	buckets := make([][]*xmlnode.Node, len(members))
	original := q.nodes
	var rest []*xmlnode.Node
	consumed := false
	for _, node := range original {
		i := a.claim(members, node, p)
		if i < 0 {
			rest = append(rest, node)
			continue
		}
		buckets[i] = append(buckets[i], node)
		consumed = true
	}
	q.nodes = rest

	item := NewRecord()
	var unclaimed []*xmlnode.Node
	for i, np := range members {
		var v any
		var err error
		if _, ok := np.particle.(*Element); ok {
			bucket := newNodeQueue(buckets[i])
			v, err = np.particle.parseQueue(bucket, p)
			unclaimed = append(unclaimed, bucket.nodes...)
		} else {
			v, err = np.particle.parseQueue(q, p)
		}
		if err != nil {
			return nil, err
		}
		if np.name == "" {
			mergeRecord(item, v)
		} else {
			item.Set(np.name, v)
		}
	}
	q.nodes = inDocumentOrder(original, q.nodes, unclaimed)
	if a.repeats() {
		if !consumed {
			return []any{}, nil
		}
		return []any{item}, nil
	}
	if !consumed {
		return nil, nil
	}
	return item, nil
}

// inDocumentOrder returns the nodes of the remaining lists in the order they
// have in original.
func inDocumentOrder(original []*xmlnode.Node, remaining ...[]*xmlnode.Node) []*xmlnode.Node {
	keep := make(map[*xmlnode.Node]bool)
	for _, nodes := range remaining {
		for _, n := range nodes {
			keep[n] = true
		}
	}
	if len(keep) == 0 {
		return nil
	}
	out := make([]*xmlnode.Node, 0, len(keep))
	for _, n := range original {
		if keep[n] {
			out = append(out, n)
		}
	}
	return out
}

// claim returns the index of the element member matching node, preferring
// an exact name match over a lenient one.
func (a *All) claim(members []namedParticle, node *xmlnode.Node, p *parseState) int {
	lenientIndex := -1
	for i, np := range members {
		el, ok := np.particle.(*Element)
		if !ok {
			continue
		}
		match, lenient := nodeMatches(node, el.qname, p)
		if !match {
			continue
		}
		if !lenient {
			return i
		}
		if lenientIndex < 0 {
			lenientIndex = i
		}
	}
	if lenientIndex >= 0 {
		p.logger.Warn("matched element by local name", "element", qnameOf(node.Name).String(), "line", node.Line)
	}
	return lenientIndex
}

// Choice accepts exactly one of its alternatives per occurrence.
type Choice struct {
	indicator
}

// NewChoice returns a choice between particles.
func NewChoice(minOccurs, maxOccurs int, particles ...Particle) *Choice {
	return &Choice{newIndicator(minOccurs, maxOccurs, particles)}
}

func (c *Choice) clone(minOccurs, maxOccurs int) Indicator {
	return &Choice{c.copyWith(minOccurs, maxOccurs)}
}

func (c *Choice) resolveParticle() (Particle, error) {
	if err := c.resolveMembers(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Choice) signature(schema *Schema, standalone bool) string {
	members := c.nested()
	parts := make([]string, len(members))
	for i, np := range members {
		if _, ok := np.particle.(Indicator); ok && np.name == "" {
			parts[i] = "{" + np.particle.signature(schema, false) + "}"
			continue
		}
		parts[i] = "{" + np.name + ": " + np.particle.signature(schema, false) + "}"
	}
	part := "(" + strings.Join(parts, " | ") + ")"
	if c.repeats() {
		return part + "[]"
	}
	return part
}

// Select returns the index of the alternative a value renders with: the
// first alternative whose fields are present in value. It returns -1 when
// no alternative matches.
func (c *Choice) Select(value any) int {
	for i, np := range c.nested() {
		if np.name != "" {
			if v, ok := lookupField(value, np.name); ok && !isEmptyValue(v) {
				return i
			}
			continue
		}
		present, complete := shapeOf(np.particle.(Indicator), value)
		if complete && present > 0 {
			return i
		}
	}
	return -1
}

// shapeOf counts the fields of ind set in value and reports whether every
// required field is set.
func shapeOf(ind Indicator, value any) (present int, complete bool) {
	if g, ok := ind.(*Group); ok {
		ind = g.child
	}
	if ch, ok := ind.(*Choice); ok {
		if ch.Select(value) >= 0 {
			return 1, true
		}
		return 0, emptiable(ch)
	}
	complete = true
	for _, np := range ind.nested() {
		if np.name == "" {
			sub := np.particle.(Indicator)
			n, ok := shapeOf(sub, value)
			present += n
			if !ok && sub.MinOccurs() > 0 {
				complete = false
			}
			continue
		}
		if v, ok := lookupField(value, np.name); ok && !isEmptyValue(v) {
			present++
		} else if np.particle.MinOccurs() > 0 {
			complete = false
		}
	}
	return present, complete
}

// emptiable reports whether p may match no content at all.
func emptiable(p Particle) bool {
	if p.MinOccurs() == 0 {
		return true
	}
	switch p := p.(type) {
	case *Choice:
		for _, np := range p.nested() {
			if emptiable(np.particle) {
				return true
			}
		}
		return false
	case Indicator:
		for _, np := range p.nested() {
			if !emptiable(np.particle) {
				return false
			}
		}
		return true
	}
	return false
}

func (c *Choice) render(parent *xmlnode.Node, value any, r *renderState) error {
	items, err := occurrenceValues(c.occurs, value, "choice", r)
	if err != nil {
		return err
	}
	members := c.nested()
	for i, item := range items {
		pop := func() {}
		if c.repeats() {
			pop = r.pushIndex(i)
		}
		err := c.renderItem(parent, members, item, r)
		pop()
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Choice) renderItem(parent *xmlnode.Node, members []namedParticle, item any, r *renderState) error {
	idx := c.Select(item)
	if idx < 0 {
		if emptiable(c) {
			return nil
		}
		return validationErrorf(r.path, "cvc-complex-type.2.4.b", "missing choice values")
	}
	np := members[idx]
	if np.name == "" {
		return np.particle.render(parent, item, r)
	}
	v, _ := lookupField(item, np.name)
	pop := r.push(np.name)
	defer pop()
	return np.particle.render(parent, v, r)
}

// parseQueue tries every alternative on a copy of the queue and commits to
// the one consuming the most children. The first declared wins a tie.
func (c *Choice) parseQueue(q *nodeQueue, p *parseState) (any, error) {
	members := c.nested()
	var results []any
	for n := 0; c.more(n) && q.Len() > 0; n++ {
		best, bestConsumed := -1, 0
		var bestQueue *nodeQueue
		var bestValue any
		for i, np := range members {
			local := q.copy()
			v, err := np.particle.parseQueue(local, p)
			if err != nil {
				if isUnexpected(err) {
					continue
				}
				return nil, err
			}
			if consumed := q.Len() - local.Len(); consumed > bestConsumed {
				best, bestConsumed = i, consumed
				bestQueue, bestValue = local, v
			}
		}
		if best < 0 {
			break
		}
		q.nodes = bestQueue.nodes
		if name := members[best].name; name != "" {
			rec := NewRecord()
			rec.Set(name, bestValue)
			bestValue = rec
		} else if bestValue == nil {
			bestValue = NewRecord()
		}
		results = append(results, bestValue)
	}
	return occurrenceResult(c.occurs, results), nil
}

// Group is a named model group. It forwards to its single child indicator.
type Group struct {
	occurs
	name  QName
	child Indicator
	state resolveState
}

func (g *Group) Name() QName { return g.name }

// Child returns the indicator the group wraps.
func (g *Group) Child() Indicator { return g.child }

func (g *Group) Particles() []Particle { return g.child.Particles() }

func (g *Group) nested() []namedParticle { return g.child.nested() }
func (g *Group) fields() []namedParticle { return g.child.fields() }

func (g *Group) clone(minOccurs, maxOccurs int) Indicator {
	return &Group{
		occurs: occurs{min: minOccurs, max: maxOccurs},
		name:   g.name,
		child:  g.child,
		state:  g.state,
	}
}

func (g *Group) resolveParticle() (Particle, error) {
	if g.state != unresolved {
		return g, nil
	}
	g.state = resolving
	child, err := g.child.resolveParticle()
	if err != nil {
		return nil, err
	}
	g.child = child.(Indicator)
	g.state = resolved
	return g, nil
}

func (g *Group) signature(schema *Schema, standalone bool) string {
	inner := g.child.signature(schema, false)
	if standalone {
		return schema.prefixedName(g.name) + "(" + inner + ")"
	}
	if g.repeats() {
		return "[" + inner + "]"
	}
	return inner
}

// Signature describes the structure of the group.
func (g *Group) Signature(schema *Schema) string {
	return g.signature(schema, true)
}

func (g *Group) render(parent *xmlnode.Node, value any, r *renderState) error {
	if !g.repeats() {
		return g.child.render(parent, value, r)
	}
	items, err := occurrenceValues(g.occurs, value, "group "+g.name.Local, r)
	if err != nil {
		return err
	}
	for i, item := range items {
		pop := r.pushIndex(i)
		err := g.child.render(parent, item, r)
		pop()
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *Group) parseQueue(q *nodeQueue, p *parseState) (any, error) {
	if !g.repeats() {
		start := q.copy()
		v, err := g.child.parseQueue(q, p)
		if err != nil && g.min == 0 && isUnexpected(err) {
			q.nodes = start.nodes
			return nil, nil
		}
		return v, err
	}
	var results []any
	for n := 0; g.more(n) && q.Len() > 0; n++ {
		start := q.copy()
		v, err := g.child.parseQueue(q, p)
		if err != nil {
			if n >= g.min && isUnexpected(err) {
				q.nodes = start.nodes
				break
			}
			return nil, err
		}
		if q.Len() == start.Len() {
			break
		}
		if list, ok := v.([]any); ok {
			results = append(results, list...)
		} else {
			results = append(results, v)
		}
	}
	return occurrenceResult(g.occurs, results), nil
}

// GroupRef is a group ref="..." placeholder, replaced by a copy of the
// named group when the schema resolves.
type GroupRef struct {
	occurs
	ref    QName
	schema *Schema
}

func (gr *GroupRef) resolveParticle() (Particle, error) {
	g, err := gr.schema.GetGroup(gr.ref)
	if err != nil {
		return nil, err
	}
	resolvedGroup, err := g.resolveParticle()
	if err != nil {
		return nil, err
	}
	return resolvedGroup.(*Group).clone(gr.min, gr.max), nil
}

func (gr *GroupRef) signature(s *Schema, standalone bool) string {
	return s.prefixedName(gr.ref)
}

func (gr *GroupRef) render(parent *xmlnode.Node, value any, r *renderState) error {
	return &LookupError{Kind: ErrUnknownGroup, Name: gr.ref}
}

func (gr *GroupRef) parseQueue(q *nodeQueue, p *parseState) (any, error) {
	return nil, &LookupError{Kind: ErrUnknownGroup, Name: gr.ref}
}
