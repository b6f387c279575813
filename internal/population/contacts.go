package population

import (
	"math/rand/v2"

	"github.com/nvandessel/episim/internal/dist"
	"github.com/nvandessel/episim/internal/params"
)

// Contacts is one layer of the contact network. Edges are undirected: each
// pair is stored once and transmission is checked in both directions.
type Contacts struct {
	Layer params.Layer
	P1    []int
	P2    []int

	offsets   []int
	neighbors []int
}

// NewContacts creates an empty layer.
func NewContacts(layer params.Layer) *Contacts {
	return &Contacts{Layer: layer}
}

// Add appends an edge between a and b. Self-loops are ignored.
func (c *Contacts) Add(a, b int) {
	if a == b {
		return
	}
	c.P1 = append(c.P1, a)
	c.P2 = append(c.P2, b)
	c.offsets = nil
}

// Len is the number of edges.
func (c *Contacts) Len() int {
	return len(c.P1)
}

// Neighbors returns everyone sharing an edge with i. The index is built on
// first use; n is the population size.
func (c *Contacts) Neighbors(n, i int) []int {
	if c.offsets == nil {
		c.buildIndex(n)
	}
	if i < 0 || i >= n {
		return nil
	}
	return c.neighbors[c.offsets[i]:c.offsets[i+1]]
}

func (c *Contacts) buildIndex(n int) {
	degree := make([]int, n+1)
	for k := range c.P1 {
		degree[c.P1[k]+1]++
		degree[c.P2[k]+1]++
	}
	for i := 1; i <= n; i++ {
		degree[i] += degree[i-1]
	}
	c.offsets = degree
	c.neighbors = make([]int, 2*len(c.P1))
	fill := make([]int, n)
	copy(fill, degree[:n])
	for k := range c.P1 {
		a, b := c.P1[k], c.P2[k]
		c.neighbors[fill[a]] = b
		fill[a]++
		c.neighbors[fill[b]] = a
		fill[b]++
	}
}

// randomContacts connects each member to Poisson(mean/2) random other
// members, giving an average degree of mean.
func randomContacts(rng *rand.Rand, layer params.Layer, members []int, mean float64) *Contacts {
	c := NewContacts(layer)
	if len(members) < 2 || mean <= 0 {
		return c
	}
	for _, a := range members {
		k := dist.Poisson(rng, mean/2)
		for j := 0; j < k; j++ {
			b := members[rng.IntN(len(members))]
			c.Add(a, b)
		}
	}
	return c
}

// clusteredContacts partitions members into fully connected clusters whose
// sizes are 1 + Poisson(mean), so every member has about mean contacts.
func clusteredContacts(rng *rand.Rand, layer params.Layer, members []int, mean float64) *Contacts {
	c := NewContacts(layer)
	order := make([]int, len(members))
	copy(order, members)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	for start := 0; start < len(order); {
		size := 1 + dist.Poisson(rng, mean)
		end := min(start+size, len(order))
		for i := start; i < end; i++ {
			for j := i + 1; j < end; j++ {
				c.Add(order[i], order[j])
			}
		}
		start = end
	}
	return c
}
