package projection

import "strconv"

// Namer allocates identifiers for declared state and generated accessors.
// Names must be unique across one compiled unit.
type Namer interface {
	StateName() string
	AccessorName() string
}

// Counter is a Namer backed by a single counter, so state and accessor names
// never collide with each other. It is not safe for concurrent use; tree
// construction is single-threaded.
type Counter struct {
	next int
}

// NewNamer returns a fresh Counter.
func NewNamer() *Counter {
	return &Counter{}
}

// StateName implements Namer.
func (c *Counter) StateName() string { return c.name("propKey") }

// AccessorName implements Namer.
func (c *Counter) AccessorName() string { return c.name("nodeProp") }

func (c *Counter) name(prefix string) string {
	n := c.next
	c.next++
	return prefix + strconv.Itoa(n)
}
