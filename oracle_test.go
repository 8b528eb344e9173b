package ilp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func rootRelaxation(p *MILPproblem) relaxation {
	n := len(p.c)
	upper := make([]float64, n)
	for i := range upper {
		upper[i] = math.Inf(1)
	}
	return relaxation{c: p.c, A: p.A, b: p.b, lower: make([]float64, n), upper: upper}
}

func Test_simplexOracle_feasible(t *testing.T) {
	sol, err := simplexOracle{}.solve(rootRelaxation(noBranchProblem(t)), nil, 0)
	require.NoError(t, err)

	assert.True(t, sol.feasible)
	assert.False(t, sol.unbounded)
	assert.InDelta(t, -2, sol.z, 1e-9)
	assert.InDeltaSlice(t, []float64{1, 1, 0}, sol.x, 1e-9)

	// tableau spans the structural and slack columns of the solved system
	m := len(sol.fullB)
	require.Len(t, sol.basis, m)
	r, c := sol.tab.Dims()
	assert.Equal(t, m, r)
	assert.Equal(t, len(sol.x)+m, c)

	// each tableau row's basic column must reduce to a unit vector
	for i := 0; i < m; i++ {
		for k := 0; k < m; k++ {
			want := 0.0
			if k == i {
				want = 1.0
			}
			assert.InDelta(t, want, sol.tab.At(k, sol.basicVariable(i)), 1e-9)
		}
	}
}

func Test_simplexOracle_infeasible(t *testing.T) {
	sol, err := simplexOracle{}.solve(rootRelaxation(infeasibleProblem(t)), nil, 0)
	require.NoError(t, err)

	assert.False(t, sol.feasible)
	assert.False(t, sol.unbounded)
}

func Test_simplexOracle_unbounded(t *testing.T) {
	rel := relaxation{
		c:     []float64{-1},
		A:     mat.NewDense(1, 1, []float64{1}),
		b:     []float64{0},
		lower: []float64{0},
		upper: []float64{math.Inf(1)},
	}

	sol, err := simplexOracle{}.solve(rel, nil, 0)
	require.NoError(t, err)
	assert.True(t, sol.unbounded)
}

func Test_simplexOracle_boundsRestrictTheSolve(t *testing.T) {
	rel := rootRelaxation(smallBranchProblem(t))
	rel.upper[2] = 1

	sol, err := simplexOracle{}.solve(rel, nil, 0)
	require.NoError(t, err)

	assert.True(t, sol.feasible)
	assert.InDelta(t, -2.25, sol.z, 1e-9)
	assert.InDeltaSlice(t, []float64{0, 1.25, 1}, sol.x, 1e-9)
}

func Test_simplexOracle_badWarmBasisFallsBackToColdStart(t *testing.T) {
	rel := rootRelaxation(noBranchProblem(t))

	// wrong length and out-of-range bases must both be ignored
	for _, warm := range [][]int{{0}, {0, 1, 99}} {
		sol, err := simplexOracle{}.solve(rel, warm, 0)
		require.NoError(t, err)
		assert.True(t, sol.feasible)
		assert.InDelta(t, -2, sol.z, 1e-9)
	}
}

func Test_materializeBounds(t *testing.T) {
	rel := relaxation{
		c:     []float64{1, 1},
		A:     mat.NewDense(1, 2, []float64{1, 1}),
		b:     []float64{1},
		lower: []float64{0, 2},
		upper: []float64{3, math.Inf(1)},
	}

	fullA, fullB := materializeBounds(rel)

	r, c := fullA.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 2, c)

	// original row, then the lower bound on x2, then the upper bound on x1
	assert.Equal(t, []float64{1, 1}, fullA.RawRowView(0))
	assert.Equal(t, []float64{0, 1}, fullA.RawRowView(1))
	assert.Equal(t, []float64{-1, 0}, fullA.RawRowView(2))
	assert.Equal(t, []float64{1, 2, -3}, fullB)
}

func Test_materializeBounds_noFiniteBounds(t *testing.T) {
	rel := rootRelaxation(noBranchProblem(t))

	fullA, fullB := materializeBounds(rel)
	assert.Equal(t, rel.A, fullA)
	assert.Equal(t, rel.b, fullB)
}

func Test_standardForm(t *testing.T) {
	A := mat.NewDense(2, 2, []float64{
		1, 2,
		3, 4,
	})

	cN, aN, bN := standardForm([]float64{5, 6}, A, []float64{7, 8})

	assert.Equal(t, []float64{5, 6, 0, 0}, cN)
	assert.Equal(t, []float64{7, 8}, bN)

	expected := mat.NewDense(2, 4, []float64{
		1, 2, -1, 0,
		3, 4, 0, -1,
	})
	assert.True(t, mat.Equal(expected, aN))
}

func Test_basisFeasible(t *testing.T) {
	// x1 - s = 1 with basis {x1} has the basic solution x1 = 1 >= 0
	aN := mat.NewDense(1, 2, []float64{1, -1})

	assert.True(t, basisFeasible(aN, []float64{1}, []int{0}))

	// basis {s} gives s = -1 < 0
	assert.False(t, basisFeasible(aN, []float64{1}, []int{1}))

	// malformed bases
	assert.False(t, basisFeasible(aN, []float64{1}, []int{0, 1}))
	assert.False(t, basisFeasible(aN, []float64{1}, []int{7}))
}

func Test_reconstructBasis(t *testing.T) {
	aN := mat.NewDense(2, 4, []float64{
		1, 0, -1, 0,
		0, 1, 0, -1,
	})

	basis, err := reconstructBasis(aN, []float64{2, 3, 0, 0})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1}, basis)

	// degenerate point: the support is completed with independent columns
	basis, err = reconstructBasis(aN, []float64{2, 0, 0, 0})
	require.NoError(t, err)
	require.Len(t, basis, 2)
	assert.Equal(t, 0, basis[0])
}
