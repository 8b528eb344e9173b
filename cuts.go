package ilp

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// cut is the valid inequality pi * x >= pi0 over the structural variables.
type cut struct {
	pi  []float64
	pi0 float64
}

// cutCheckVolumeLimit caps the number of lattice points the independent
// validity check is willing to enumerate.
const cutCheckVolumeLimit = 4096

// cutGenerator derives Gomory mixed-integer cuts from a node's optimal
// tableau, strengthens each cut's right-hand side with a nested, node-limited
// branch-and-bound search, and appends the survivors to the node's
// relaxation. It runs as a bounding extension after the base solve.
//
// The slack-substitution step of the derivation is known to be fragile, so
// every cut must additionally pass an independent validity check before it is
// accepted.
type cutGenerator struct {
	// node budget for each nested strengthening search.
	nodeLimit int

	// incumbent returns a known integer feasible point of the outer search,
	// or nil. Any cut violated by it is provably invalid.
	incumbent func() []float64
}

func (g *cutGenerator) afterBound(n *node, orc relaxationOracle, opts SolveOptions) error {
	if !n.lpFeasible || n.unbounded || n.mipFeasible {
		return nil
	}

	cuts := findGomoryCuts(n, n.relaxSol)
	if len(cuts) == 0 {
		return nil
	}

	g.strengthen(cuts, n, opts)

	var accepted []cut
	for _, ct := range cuts {
		if g.validCut(ct, n) {
			accepted = append(accepted, ct)
		}
	}
	if len(accepted) == 0 {
		return nil
	}

	n.rel = n.rel.withCuts(accepted)

	// re-solve against the tightened relaxation before handing the node back
	sol, err := orc.solve(n.rel, n.basis, 0)
	if err != nil {
		return err
	}
	n.applySolution(sol)

	return nil
}

// findGomoryCuts derives one Gomory mixed-integer cut per tableau row whose
// basic variable is integer-declared and fractional. Requires Ax >= b and
// x >= 0; the slack variables satisfy s = Ax - b and are substituted out so
// each cut is expressed over the structural variables alone.
func findGomoryCuts(n *node, sol *lpSolution) []cut {
	nStruct := len(n.rel.c)
	m, cols := sol.tab.Dims()

	basic := make(map[int]bool, m)
	for _, j := range sol.basis {
		basic[j] = true
	}

	var cuts []cut
	for r := 0; r < m; r++ {
		bi := sol.basicVariable(r)
		if bi >= nStruct || !n.integrality[bi] || !isFractional(sol.x[bi], n.eps) {
			continue
		}

		f0 := fraction(sol.x[bi])
		row := sol.tableauRow(r)

		// structural variable coefficients
		pi := make([]float64, nStruct)
		for j := 0; j < nStruct; j++ {
			if basic[j] {
				// 0 for basic variables avoids amplifying numerical noise
				continue
			}
			a := row[j]
			if n.integrality[j] {
				fj := fraction(a)
				if fj <= f0 {
					pi[j] = fj / f0
				} else {
					pi[j] = (1 - fj) / (1 - f0)
				}
			} else {
				if a > 0 {
					pi[j] = a / f0
				} else {
					pi[j] = -a / (1 - f0)
				}
			}
		}

		// slack variable coefficients
		piSlack := make([]float64, cols-nStruct)
		for k := range piSlack {
			a := row[nStruct+k]
			if a > 0 {
				piSlack[k] = a / f0
			} else {
				piSlack[k] = -a / (1 - f0)
			}
		}

		// substitute out the slacks: s = Ax - b, so
		// pi^T x + piSlack^T (Ax - b) >= 1 becomes
		// (pi + A^T piSlack)^T x >= 1 + piSlack^T b
		var folded mat.VecDense
		folded.MulVec(sol.fullA.T(), mat.NewVecDense(len(piSlack), piSlack))
		for j := range pi {
			pi[j] += folded.AtVec(j)
		}
		pi0 := 1 + dot(piSlack, sol.fullB)

		cuts = append(cuts, cut{pi: pi, pi0: pi0})
	}

	return cuts
}

// strengthen tightens each cut's right-hand side in place. The nested
// searches are fully independent engine instances, so one cut round runs
// them concurrently.
func (g *cutGenerator) strengthen(cuts []cut, n *node, opts SolveOptions) {
	eg := new(errgroup.Group)
	eg.SetLimit(runtime.NumCPU())

	for i := range cuts {
		i := i
		eg.Go(func() error {
			if rhs, ok := g.optimizeCut(cuts[i].pi, n, opts); ok && rhs > cuts[i].pi0 {
				// max keeps the most restrictive valid right-hand side;
				// strengthening never loosens a cut.
				cuts[i].pi0 = rhs
			}
			return nil
		})
	}

	// strengthening failures leave the original right-hand side in place
	_ = eg.Wait()
}

// optimizeCut minimizes pi * x over the node's current constraint system with
// the original integrality restrictions, under a small node budget. The
// nested search's proven lower bound is the strongest right-hand side that
// provably keeps every integer feasible point on the cut's feasible side; the
// incumbent objective would only certify a feasible point beyond the cut.
func (g *cutGenerator) optimizeCut(pi []float64, n *node, opts SolveOptions) (float64, bool) {
	sol := n.relaxSol

	nested := MILPproblem{
		c:                      pi,
		A:                      sol.fullA,
		b:                      sol.fullB,
		integralityConstraints: n.integrality,
	}

	res, err := nested.Solve(SolveOptions{
		NodeLimit: g.nodeLimit,
		Epsilon:   n.eps,
	})
	if err != nil {
		return 0, false
	}

	switch {
	case res.Status == StatusOptimal:
		return res.Objective, true
	case math.IsInf(res.LowerBound, 0):
		// an integer-infeasible or unresolved nested search offers no finite
		// right-hand side; an infinite one would poison the relaxation
		return 0, false
	default:
		return res.LowerBound, true
	}
}

// validCut is the independent check the derivation's known fragility
// demands. A cut is rejected when it fails to cut off the node's fractional
// vertex, when the outer incumbent violates it, or when enumerating the
// node's integer box finds a feasible lattice point it excludes.
func (g *cutGenerator) validCut(ct cut, n *node) bool {
	if dot(ct.pi, n.x) >= ct.pi0-n.eps {
		// does not separate the current vertex; useless even if valid
		return false
	}

	if g.incumbent != nil {
		if inc := g.incumbent(); inc != nil && dot(ct.pi, inc) < ct.pi0-n.eps {
			return false
		}
	}

	return g.latticeCheck(ct, n)
}

// latticeCheck enumerates the integer points of the node's box, when the box
// is finite and small enough, and verifies none that satisfy the node's
// constraints violate the cut. Problems with continuous variables or large
// boxes pass by default; the runtime check is best-effort, the property
// tests carry the full obligation.
func (g *cutGenerator) latticeCheck(ct cut, n *node) bool {
	nv := len(n.rel.c)

	lo := make([]int, nv)
	hi := make([]int, nv)
	volume := 1
	for i := 0; i < nv; i++ {
		if !n.integrality[i] || math.IsInf(n.rel.upper[i], 1) {
			return true
		}
		lo[i] = int(math.Ceil(n.rel.lower[i] - n.eps))
		hi[i] = int(math.Floor(n.rel.upper[i] + n.eps))
		if hi[i] < lo[i] {
			return true
		}
		volume *= hi[i] - lo[i] + 1
		if volume > cutCheckVolumeLimit {
			return true
		}
	}

	sol := n.relaxSol
	point := make([]float64, nv)

	var walk func(i int) bool
	walk = func(i int) bool {
		if i == nv {
			if !satisfiesSystem(sol.fullA, sol.fullB, point, n.eps) {
				return true
			}
			return dot(ct.pi, point) >= ct.pi0-n.eps
		}
		for v := lo[i]; v <= hi[i]; v++ {
			point[i] = float64(v)
			if !walk(i + 1) {
				return false
			}
		}
		return true
	}

	return walk(0)
}

func satisfiesSystem(A *mat.Dense, b []float64, x []float64, eps float64) bool {
	m, _ := A.Dims()
	for i := 0; i < m; i++ {
		if dot(A.RawRowView(i), x) < b[i]-eps {
			return false
		}
	}
	return true
}
