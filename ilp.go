// Package ilp implements the search core of a mixed integer linear program
// solver: best-first branch-and-bound over LP relaxations, with optional
// Gomory mixed-integer cut generation and nested cut strengthening.
//
// The engine requires problems stated as
//
//	minimize  c^T x
//	s.t.      Ax >= b
//	          x >= 0
//
// with the integrality constraint applied to a declared subset of variables.
// The >= sense and nonnegativity are preconditions of the cut derivation and
// are enforced at construction.
package ilp

import (
	"errors"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

type MILPproblem struct {
	c []float64
	A *mat.Dense
	b []float64

	// which variables to apply the integrality constraint to. Same order as c.
	integralityConstraints []bool
}

// Construction-time contract violations. These are never coerced or deferred:
// a malformed problem fails before the first relaxation is solved.
var (
	ErrNoVariables          = errors.New("ilp: problem has no variables")
	ErrMismatchedDimensions = errors.New("ilp: problem dimensions do not agree")
	ErrBadIntegerIndex      = errors.New("ilp: integer index out of range or duplicated")
	ErrNoConstraints        = errors.New("ilp: no constraint rows remain after presolve")
)

// NewMILPProblem assembles a solveable problem from the raw matrices.
// integerIndices lists the variables carrying the integrality constraint and
// must be distinct and within range.
func NewMILPProblem(c []float64, A *mat.Dense, b []float64, integerIndices []int) (*MILPproblem, error) {
	integrality := make([]bool, len(c))
	for _, idx := range integerIndices {
		if idx < 0 || idx >= len(c) || integrality[idx] {
			return nil, ErrBadIntegerIndex
		}
		integrality[idx] = true
	}

	p := &MILPproblem{
		c:                      c,
		A:                      A,
		b:                      b,
		integralityConstraints: integrality,
	}

	if err := p.validate(); err != nil {
		return nil, err
	}

	return p, nil
}

func (p MILPproblem) validate() error {
	if len(p.c) == 0 {
		return ErrNoVariables
	}

	if p.A == nil || len(p.b) == 0 {
		return ErrNoConstraints
	}

	rA, cA := p.A.Dims()
	if rA != len(p.b) || cA != len(p.c) {
		return ErrMismatchedDimensions
	}

	if len(p.integralityConstraints) != len(p.c) {
		return ErrMismatchedDimensions
	}

	return nil
}

// SolutionStatus is the terminal state of a search. Resource exhaustion is
// never conflated with proven optimality.
type SolutionStatus string

const (
	StatusOptimal    SolutionStatus = "optimal"
	StatusInfeasible SolutionStatus = "infeasible"
	StatusUnbounded  SolutionStatus = "unbounded"
	StatusNodeLimit  SolutionStatus = "node_limit_reached"
	StatusTimeLimit  SolutionStatus = "time_limit_reached"
)

// selectable branching heuristics
type BranchHeuristic int

const (
	BRANCH_MOST_FRACTIONAL BranchHeuristic = 0
	BRANCH_STRONG          BranchHeuristic = 1
	BRANCH_PSEUDOCOST      BranchHeuristic = 2
)

type SolveOptions struct {
	// heuristic used to pick the variable to branch on.
	BranchHeuristic BranchHeuristic

	// GomoryCuts enables cut generation at every fractional node. Off by
	// default: the derivation can produce invalid inequalities in edge cases,
	// so enabling it also enables an independent validity check on each cut.
	GomoryCuts bool

	// node budget for each nested cut-strengthening search.
	CutOptimizationNodeLimit int

	// simplex iteration cap for tentative strong-branch solves. Advisory:
	// backends without iteration control run the solve to completion.
	StrongBranchIterations int

	// NodeLimit caps the number of nodes processed; 0 means no limit.
	NodeLimit int

	// TimeLimit caps wall-clock search time; 0 means no limit.
	TimeLimit time.Duration

	// tolerance below which a value counts as integral.
	Epsilon float64

	// Middleware receives every node decision the driver makes.
	Middleware bnbMiddleware
}

func (o SolveOptions) withDefaults() SolveOptions {
	if o.CutOptimizationNodeLimit <= 0 {
		o.CutOptimizationNodeLimit = 10
	}
	if o.StrongBranchIterations <= 0 {
		o.StrongBranchIterations = 50
	}
	if o.Epsilon <= 0 {
		o.Epsilon = 1e-7
	}
	if o.Middleware == nil {
		o.Middleware = dummyMiddleware{}
	}
	return o
}

type MILPSolution struct {
	Status SolutionStatus

	// objective value and point of the incumbent; NaN/nil when the search
	// found no integer feasible solution.
	Objective float64
	Solution  []float64

	// proven bounds on the optimal objective at termination. For an optimal
	// status the two coincide; under a budget status their difference is the
	// optimality gap.
	LowerBound float64
	UpperBound float64

	// number of nodes dropped after a numerical failure in the relaxation
	// solver. Nonzero means the reported bounds hold with degraded confidence.
	AbandonedNodes int
}

// Solve runs branch-and-bound on the problem and reports the best integer
// feasible solution found together with a proven lower bound.
func (p MILPproblem) Solve(opts SolveOptions) (MILPSolution, error) {
	opts = opts.withDefaults()

	pre, infeasible, err := presolve(p)
	if err != nil {
		return MILPSolution{}, err
	}
	if infeasible {
		return MILPSolution{
			Status:     StatusInfeasible,
			Objective:  math.NaN(),
			LowerBound: math.Inf(1),
			UpperBound: math.Inf(1),
		}, nil
	}

	tree := newSearchTree(pre, opts, simplexOracle{})
	return tree.run()
}
