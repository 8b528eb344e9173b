package ilp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// errNumericalFailure marks relaxation-solver breakdowns (singular bases,
// ill-conditioned systems). It abandons the affected node only; the search
// continues and reports degraded confidence.
var errNumericalFailure = errors.New("ilp: numerical failure in relaxation solve")

// supportTol is the threshold above which a variable counts as part of the
// optimal solution's support during basis reconstruction.
const supportTol = 1e-9

// lpSolution is everything the engine needs from one relaxation solve.
type lpSolution struct {
	feasible  bool
	unbounded bool
	z         float64
	x         []float64 // structural variables only
	basis     []int     // basic column indices of the standard-form system

	// tableau data for cut generation; populated only on a feasible solve.
	// tab has one column per structural variable followed by one per slack,
	// where slack k satisfies s_k = (fullA x)_k - fullB_k.
	tab       *mat.Dense
	basicRows []int // basic column index per tableau row

	// the >= system actually solved: the node's constraint rows followed by
	// its materialized finite variable-bound rows.
	fullA *mat.Dense
	fullB []float64
}

// tableauRow returns row i of the simplex tableau.
func (s *lpSolution) tableauRow(i int) []float64 {
	return s.tab.RawRowView(i)
}

// basicVariable returns the column index of the variable basic in row i.
func (s *lpSolution) basicVariable(i int) int {
	return s.basicRows[i]
}

// relaxationOracle solves a node's LP relaxation. warmBasis may carry the
// parent's basis; implementations use it only when it is still a feasible
// basis for the given system. iterLimit caps simplex effort where the
// backend supports it and is advisory otherwise.
type relaxationOracle interface {
	solve(rel relaxation, warmBasis []int, iterLimit int) (*lpSolution, error)
}

// simplexOracle backs the relaxationOracle contract with gonum's simplex
// solver. gonum exposes neither an iteration cap nor the final basis, so the
// cap is advisory and the basis is reconstructed from the optimal point.
type simplexOracle struct{}

// solve ignores iterLimit: lp.Simplex exposes no iteration control, so
// strong-branch probes run to completion here.
func (simplexOracle) solve(rel relaxation, warmBasis []int, _ int) (*lpSolution, error) {
	fullA, fullB := materializeBounds(rel)
	cN, aN, bN := standardForm(rel.c, fullA, fullB)

	m := len(fullB)

	// a parent basis is only usable when its shape still matches and it is
	// basic feasible for this system. gonum requires feasibility of any
	// supplied initial basis, and a branched child usually invalidates the
	// parent's vertex, so this check gates every warm start.
	var initial []int
	if len(warmBasis) == m && basisFeasible(aN, bN, warmBasis) {
		initial = warmBasis
	}

	z, xFull, err := lp.Simplex(cN, aN, bN, 0, initial)
	if err != nil && initial != nil && !errors.Is(err, lp.ErrInfeasible) && !errors.Is(err, lp.ErrUnbounded) {
		// retry cold before declaring the node lost
		z, xFull, err = lp.Simplex(cN, aN, bN, 0, nil)
	}

	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return &lpSolution{feasible: false}, nil
	case errors.Is(err, lp.ErrUnbounded):
		return &lpSolution{feasible: true, unbounded: true, z: math.Inf(-1)}, nil
	case err != nil:
		return nil, fmt.Errorf("%w: %v", errNumericalFailure, err)
	}

	basis, err := reconstructBasis(aN, xFull)
	if err != nil {
		return nil, err
	}

	tab, err := tableau(aN, basis)
	if err != nil {
		return nil, err
	}

	return &lpSolution{
		feasible:  true,
		z:         z,
		x:         xFull[:len(rel.c)],
		basis:     basis,
		tab:       tab,
		basicRows: basis,
		fullA:     fullA,
		fullB:     fullB,
	}, nil
}

// materializeBounds appends the node's finite variable bounds to the
// constraint system as >= rows: x_i >= l_i for positive lower bounds and
// -x_i >= -u_i for finite upper bounds.
func materializeBounds(rel relaxation) (*mat.Dense, []float64) {
	m0, n := rel.A.Dims()

	var nExtra int
	for i := 0; i < n; i++ {
		if rel.lower[i] > 0 {
			nExtra++
		}
		if !math.IsInf(rel.upper[i], 1) {
			nExtra++
		}
	}

	if nExtra == 0 {
		return rel.A, rel.b
	}

	fullA := mat.NewDense(m0+nExtra, n, nil)
	fullA.Slice(0, m0, 0, n).(*mat.Dense).Copy(rel.A)

	fullB := make([]float64, 0, m0+nExtra)
	fullB = append(fullB, rel.b...)

	row := m0
	for i := 0; i < n; i++ {
		if rel.lower[i] > 0 {
			fullA.Set(row, i, 1)
			fullB = append(fullB, rel.lower[i])
			row++
		}
	}
	for i := 0; i < n; i++ {
		if !math.IsInf(rel.upper[i], 1) {
			fullA.Set(row, i, -1)
			fullB = append(fullB, -rel.upper[i])
			row++
		}
	}

	return fullA, fullB
}

// standardForm converts the >= system Ax >= b into the equality system
// [A | -I][x; s] = b with surplus variables s >= 0, the shape the simplex
// backend consumes. The surplus variables get zero objective coefficients.
func standardForm(c []float64, A *mat.Dense, b []float64) ([]float64, *mat.Dense, []float64) {
	m, n := A.Dims()

	cN := make([]float64, n+m)
	copy(cN, c)

	aN := mat.NewDense(m, n+m, nil)
	aN.Slice(0, m, 0, n).(*mat.Dense).Copy(A)
	for i := 0; i < m; i++ {
		aN.Set(i, n+i, -1)
	}

	bN := make([]float64, m)
	copy(bN, b)

	return cN, aN, bN
}

// basisFeasible reports whether the candidate basis is nonsingular and its
// basic solution is nonnegative for the system aN x = bN.
func basisFeasible(aN *mat.Dense, bN []float64, basis []int) bool {
	m, cols := aN.Dims()
	if len(basis) != m {
		return false
	}

	B := mat.NewDense(m, m, nil)
	for k, j := range basis {
		if j < 0 || j >= cols {
			return false
		}
		B.SetCol(k, mat.Col(nil, j, aN))
	}

	var xb mat.VecDense
	if err := xb.SolveVec(B, mat.NewVecDense(m, bN)); err != nil {
		return false
	}

	for i := 0; i < m; i++ {
		if xb.AtVec(i) < -supportTol {
			return false
		}
	}
	return true
}

// reconstructBasis recovers a basis from the optimal point: the solution's
// support must be basic, and the set is completed to m linearly independent
// columns by a Gram-Schmidt sweep over the remaining columns.
func reconstructBasis(aN *mat.Dense, xFull []float64) ([]int, error) {
	m, cols := aN.Dims()

	var basis []int
	var ortho [][]float64

	accept := func(j int) bool {
		col := mat.Col(nil, j, aN)
		for _, q := range ortho {
			d := dot(q, col)
			for i := range col {
				col[i] -= d * q[i]
			}
		}
		nrm := math.Sqrt(dot(col, col))
		if nrm <= supportTol {
			return false
		}
		for i := range col {
			col[i] /= nrm
		}
		ortho = append(ortho, col)
		basis = append(basis, j)
		return true
	}

	for j := 0; j < cols; j++ {
		if xFull[j] > supportTol {
			if len(basis) == m || !accept(j) {
				return nil, fmt.Errorf("%w: optimal support is not a basis", errNumericalFailure)
			}
		}
	}

	for j := 0; j < cols && len(basis) < m; j++ {
		if xFull[j] > supportTol {
			continue
		}
		accept(j)
	}

	if len(basis) != m {
		return nil, fmt.Errorf("%w: could not complete basis", errNumericalFailure)
	}

	return basis, nil
}

// tableau computes B^-1 * aN for the given basis. Row r expresses the basic
// variable basis[r] in terms of the nonbasic columns.
func tableau(aN *mat.Dense, basis []int) (*mat.Dense, error) {
	m, _ := aN.Dims()

	B := mat.NewDense(m, m, nil)
	for k, j := range basis {
		B.SetCol(k, mat.Col(nil, j, aN))
	}

	var tab mat.Dense
	if err := tab.Solve(B, aN); err != nil {
		return nil, fmt.Errorf("%w: singular basis matrix: %v", errNumericalFailure, err)
	}

	return &tab, nil
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
