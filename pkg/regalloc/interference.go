package regalloc

// Graph is the interference graph over virtual register ids, stored as a
// lower-triangular bit matrix. Two registers interfere if they are both live
// at the same point.
type Graph struct {
	n    int
	bits []uint64
}

// NewGraph returns an empty graph over register ids 0..n-1.
func NewGraph(n int) *Graph {
	cells := n * (n - 1) / 2
	return &Graph{n: n, bits: make([]uint64, (cells+63)/64)}
}

// Size returns the number of register ids the graph covers.
func (g *Graph) Size() int { return g.n }

func (g *Graph) bit(a, b int) int {
	if a < b {
		a, b = b, a
	}
	return a*(a-1)/2 + b
}

// AddEdge records that a and b interfere.
func (g *Graph) AddEdge(a, b int) {
	if a == b || a >= g.n || b >= g.n {
		return // No self-edges
	}
	k := g.bit(a, b)
	g.bits[k/64] |= 1 << uint(k%64)
}

// Interferes returns true if there is an interference edge
func (g *Graph) Interferes(a, b int) bool {
	if a == b || a >= g.n || b >= g.n {
		return false
	}
	k := g.bit(a, b)
	return g.bits[k/64]&(1<<uint(k%64)) != 0
}

// Neighbors returns the registers interfering with v in ascending order.
func (g *Graph) Neighbors(v int) []int {
	var out []int
	for u := 0; u < g.n; u++ {
		if g.Interferes(v, u) {
			out = append(out, u)
		}
	}
	return out
}

// Degree returns the number of neighbors for a register
func (g *Graph) Degree(v int) int {
	return len(g.Neighbors(v))
}

// Analysis is the live-range information the allocator consumes, indexed by
// virtual register id.
type Analysis struct {
	Graph     *Graph
	SpillCost []int
	// Preferred names a register, usually a live-range pseudo-register, whose
	// color the allocator tries first. 0 means no hint.
	Preferred []int
}

// NewAnalysis returns an empty analysis for n register ids.
func NewAnalysis(n int) *Analysis {
	return &Analysis{
		Graph:     NewGraph(n),
		SpillCost: make([]int, n),
		Preferred: make([]int, n),
	}
}
