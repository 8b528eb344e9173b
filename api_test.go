package ilp

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblem_checkExpression(t *testing.T) {

	// a true case
	prob := NewProblem()
	v := prob.AddVariable(1, false)

	expr1 := expression{
		variable: v,
		coef:     2,
	}
	assert.True(t, prob.checkExpression(expr1))

	// an expression with a new variable not declared in the problem
	expr2 := expression{
		variable: &Variable{Coefficient: 1, Integer: false},
		coef:     1,
	}
	assert.False(t, prob.checkExpression(expr2))

}

func TestProblem_AddConstraint_panics(t *testing.T) {
	prob := NewProblem()
	prob.AddVariable(1, false)

	assert.Panics(t, func() { prob.AddConstraint(nil, 1) })

	foreign := &Variable{Coefficient: 1}
	assert.Panics(t, func() {
		prob.AddConstraint([]expression{{coef: 1, variable: foreign}}, 1)
	})
}

// constraints on a mix of continuous and integer variables
func TestProblem_ToSolveable(t *testing.T) {

	// build an abstract Problem
	prob := NewProblem()

	// add the variables
	v1 := prob.AddVariable(-1, false)
	v2 := prob.AddVariable(-2, true)
	v3 := prob.AddVariable(1, true)

	// add the constraints
	prob.AddConstraint([]expression{
		{
			coef:     1,
			variable: v1,
		},
		{
			coef:     2,
			variable: v3,
		},
	},
		5,
	)
	prob.AddConstraint([]expression{
		{
			coef:     3,
			variable: v2,
		},
	},
		2,
	)

	solveable, err := prob.ToSolveable()
	require.NoError(t, err)

	assert.Equal(t, []float64{-1, -2, 1}, solveable.c)
	assert.True(t, mat.Equal(mat.NewDense(2, 3, []float64{
		1, 0, 2,
		0, 3, 0,
	}), solveable.A))
	assert.Equal(t, []float64{5, 2}, solveable.b)
	assert.Equal(t, []bool{false, true, true}, solveable.integralityConstraints)
}

// repeated references to the same variable within one constraint are summed
func TestProblem_ToSolveable_summedCoefficients(t *testing.T) {
	prob := NewProblem()
	v := prob.AddVariable(1, false)

	prob.AddConstraint([]expression{
		{coef: 1, variable: v},
		{coef: 2, variable: v},
	}, 4)

	solveable, err := prob.ToSolveable()
	require.NoError(t, err)
	assert.Equal(t, float64(3), solveable.A.At(0, 0))
}

func TestProblem_ToSolveable_noConstraints(t *testing.T) {
	prob := NewProblem()
	prob.AddVariable(1, false)

	_, err := prob.ToSolveable()
	assert.ErrorIs(t, err, ErrNoConstraints)
}

// a small end to end run through the abstract layer
func TestProblem_buildAndSolve(t *testing.T) {
	prob := NewProblem()

	v1 := prob.AddVariable(-1, true)
	v2 := prob.AddVariable(-1, true)

	// 2x1 + 2x2 <= 3, stated in the >= sense
	prob.AddConstraint([]expression{
		NewExpression(-2, v1),
		NewExpression(-2, v2),
	}, -3)

	solveable, err := prob.ToSolveable()
	require.NoError(t, err)

	res, err := solveable.Solve(SolveOptions{})
	require.NoError(t, err)

	assert.Equal(t, StatusOptimal, res.Status)
	assert.InDelta(t, -1, res.Objective, 1e-9)
}
