package ilp

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

type branchDirection string

const (
	branchDown branchDirection = "down"
	branchUp   branchDirection = "up"
)

// relaxation is the linear program a single node owns: the constraint system
// shared read-only with sibling nodes, plus this node's variable bounds.
// The bound slices are copied for every child; the matrices are only ever
// replaced wholesale (by a cut round), never mutated in place.
type relaxation struct {
	c []float64
	A *mat.Dense // rows are >= constraints
	b []float64

	lower []float64 // per-variable lower bounds, >= 0
	upper []float64 // per-variable upper bounds, +Inf when unbounded
}

func (r relaxation) copy() relaxation {
	out := r
	out.lower = append([]float64(nil), r.lower...)
	out.upper = append([]float64(nil), r.upper...)
	return out
}

// withCuts returns a relaxation with the given inequalities appended as new
// constraint rows. The receiver's matrix is left untouched so siblings that
// still reference it are unaffected.
func (r relaxation) withCuts(cuts []cut) relaxation {
	m0, n := r.A.Dims()

	rows := mat.NewDense(len(cuts), n, nil)
	rhs := make([]float64, 0, m0+len(cuts))
	rhs = append(rhs, r.b...)
	for i, ct := range cuts {
		rows.SetRow(i, ct.pi)
		rhs = append(rhs, ct.pi0)
	}

	stacked := mat.NewDense(m0+len(cuts), n, nil)
	stacked.Stack(r.A, rows)

	out := r.copy()
	out.A = stacked
	out.b = rhs
	return out
}

// A boundingExtension runs after the base relaxation solve of a node and may
// tighten the node's relaxation and re-solve. Extensions replace inheritance
// chains with an explicit, ordered, independently testable list.
type boundingExtension interface {
	afterBound(n *node, orc relaxationOracle, opts SolveOptions) error
}

type node struct {
	// assigned by the driver for instrumentation purposes.
	id     int64
	parent int64

	depth       int
	rel         relaxation
	integrality []bool
	eps         float64

	// provenance of the branch that created this node; bIdx is -1 for the
	// root and otherwise bIdx, bDir and bVal are all set.
	bIdx int
	bDir branchDirection
	bVal float64

	// the parent's bound at branch time. Doubles as this node's initial
	// lower bound (valid by relaxation monotonicity) and as the baseline for
	// pseudo-cost updates once the node is bounded.
	parentBound float64

	// derived state, populated by bound().
	bounded     bool
	lpFeasible  bool
	mipFeasible bool
	unbounded   bool
	lowerBound  float64
	x           []float64

	// warm-start basis inherited from the parent, replaced on bound().
	basis []int

	// most recent oracle solution, kept for tableau access by extensions.
	relaxSol *lpSolution

	extensions []boundingExtension
}

func newRootNode(p MILPproblem, opts SolveOptions, exts []boundingExtension) *node {
	n := len(p.c)
	upper := make([]float64, n)
	for i := range upper {
		upper[i] = math.Inf(1)
	}

	return &node{
		rel: relaxation{
			c:     p.c,
			A:     p.A,
			b:     p.b,
			lower: make([]float64, n),
			upper: upper,
		},
		integrality: p.integralityConstraints,
		eps:         opts.Epsilon,
		bIdx:        -1,
		parentBound: math.Inf(-1),
		lowerBound:  math.Inf(-1),
		extensions:  exts,
	}
}

// bound solves the node's relaxation and populates the derived state, then
// runs the bounding extensions in order. Infeasibility is a normal outcome;
// only numerical breakdown in the oracle comes back as an error.
func (n *node) bound(orc relaxationOracle, opts SolveOptions) error {
	sol, err := orc.solve(n.rel, n.basis, 0)
	if err != nil {
		return err
	}

	n.applySolution(sol)
	n.bounded = true

	if !n.lpFeasible || n.unbounded || n.mipFeasible {
		return nil
	}

	for _, ext := range n.extensions {
		if err := ext.afterBound(n, orc, opts); err != nil {
			return err
		}
	}

	return nil
}

func (n *node) applySolution(sol *lpSolution) {
	n.relaxSol = sol

	switch {
	case sol.unbounded:
		n.lpFeasible = true
		n.mipFeasible = false
		n.unbounded = true
		n.lowerBound = math.Inf(-1)
		n.x = nil

	case !sol.feasible:
		n.lpFeasible = false
		n.mipFeasible = false
		n.lowerBound = math.Inf(1)
		n.x = nil

	default:
		n.lpFeasible = true
		n.x = sol.x
		n.lowerBound = sol.z
		n.basis = sol.basis
		n.mipFeasible = integerFeasible(n.integrality, sol.x, n.eps)
	}
}

// branch selects a variable through the given strategy and produces the two
// tightened children. Calling it on a node that is not bounded, not feasible,
// or already integral is a contract error.
func (n *node) branch(strat brancher, orc relaxationOracle, opts SolveOptions) (map[branchDirection]*node, error) {
	if !n.bounded {
		panic("ilp: must bound a node before branching")
	}
	if !n.lpFeasible || n.mipFeasible || n.unbounded {
		panic("ilp: can only branch on a feasible, fractional node")
	}

	idx, err := strat.selectIndex(n, orc, opts)
	if err != nil {
		return nil, err
	}

	return n.baseBranch(idx), nil
}

// baseBranch creates the two children for a branch on idx: "down" with the
// variable's upper bound floored and "up" with its lower bound ceilinged.
// All other bounds equal the parent's.
func (n *node) baseBranch(idx int) map[branchDirection]*node {
	val := n.x[idx]

	down := n.child(idx, branchDown, val)
	down.rel.upper[idx] = math.Floor(val)

	up := n.child(idx, branchUp, val)
	up.rel.lower[idx] = math.Ceil(val)

	return map[branchDirection]*node{
		branchDown: down,
		branchUp:   up,
	}
}

func (n *node) child(idx int, dir branchDirection, val float64) *node {
	if idx < 0 || idx >= len(n.rel.c) || !n.integrality[idx] {
		panic("ilp: must branch on a declared integer variable")
	}
	if !isFractional(val, n.eps) {
		panic("ilp: index branched on must be fractional")
	}
	if val < n.rel.lower[idx]-1 || val > n.rel.upper[idx]+1 {
		panic(fmt.Sprintf("ilp: branch value %v outside one unit of bounds [%v, %v]",
			val, n.rel.lower[idx], n.rel.upper[idx]))
	}

	return &node{
		parent:      n.id,
		depth:       n.depth + 1,
		rel:         n.rel.copy(),
		integrality: n.integrality,
		eps:         n.eps,
		bIdx:        idx,
		bDir:        dir,
		bVal:        val,
		parentBound: n.lowerBound,
		lowerBound:  n.lowerBound,
		basis:       append([]int(nil), n.basis...),
		extensions:  n.extensions,
	}
}

// lessNodes is the priority-queue comparator: ascending lower bound. Nodes
// with equal lower bounds are equal for ordering purposes only.
func lessNodes(a, b *node) bool {
	return a.lowerBound < b.lowerBound
}

// isFractional reports whether v lies more than eps away from the nearest
// integer in either direction.
func isFractional(v, eps float64) bool {
	return math.Min(v-math.Floor(v), math.Ceil(v)-v) > eps
}

func fraction(v float64) float64 {
	return v - math.Floor(v)
}

// mostFractionalIndex picks the integer-declared variable whose fractional
// part is closest to one half, breaking ties towards the lowest index.
// Returns -1 when no declared variable is fractional.
func mostFractionalIndex(x []float64, integrality []bool, eps float64) int {
	best := -1
	bestDist := math.Inf(1)

	for i := range x {
		if !integrality[i] || !isFractional(x[i], eps) {
			continue
		}
		d := math.Abs(fraction(x[i]) - 0.5)
		if d < bestDist {
			best, bestDist = i, d
		}
	}

	return best
}

// check whether the solution vector is feasible in light of the integrality
// constraints for each variable.
func integerFeasible(constraints []bool, solution []float64, eps float64) bool {
	if len(constraints) != len(solution) {
		panic(fmt.Sprint("constraints vector and solution vector not of equal size: ", constraints, solution))
	}
	for i := range solution {
		if constraints[i] && isFractional(solution[i], eps) {
			return false
		}
	}
	return true
}
