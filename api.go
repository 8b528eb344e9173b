package ilp

import (
	"gonum.org/v1/gonum/mat"
)

// Problem is the abstract model-building API. Constraints are stated in the
// >= sense the engine requires; declare all variables before referencing
// them in constraints.
type Problem struct {
	Variables   []*Variable
	Constraints []Constraint
}

type Variable struct {
	// coefficient of the variable in the objective function
	Coefficient float64

	// integrality constraint
	Integer bool
}

// an expression of a variable and an arbitrary float for use in defining
// constraints, e.g. "-1 * x1"
type expression struct {
	coef     float64
	variable *Variable
}

type Constraint struct {
	// expressions will be summed together to form the LHS of ...
	expressions []expression

	// ... a constraint with a certain RHS, in the >= sense
	atLeast float64
}

func NewProblem() Problem {
	return Problem{}
}

// add a variable and return a reference to that variable
func (p *Problem) AddVariable(coef float64, integer bool) *Variable {
	v := Variable{
		Coefficient: coef,
		Integer:     integer,
	}

	p.Variables = append(p.Variables, &v)

	return &v
}

// NewExpression forms the term coef * v for use in a constraint.
func NewExpression(coef float64, v *Variable) expression {
	return expression{coef: coef, variable: v}
}

// AddConstraint adds the constraint sum(expressions) >= atLeast.
func (p *Problem) AddConstraint(expr []expression, atLeast float64) {
	if len(expr) == 0 {
		panic("must add expressions")
	}

	for _, e := range expr {
		if !p.checkExpression(e) {
			panic("provided expression contains a variable that has not been declared to this problem yet")
		}
	}

	p.Constraints = append(p.Constraints, Constraint{
		expressions: expr,
		atLeast:     atLeast,
	})
}

// Check whether the expression is legal considering the variables currently
// present in the problem
func (p *Problem) checkExpression(e expression) bool {

	// check whether the pointer to the variable provided is currently included in the Problem
	for _, v := range p.Variables {
		if v == e.variable {
			return true
		}
	}

	return false
}

// ToSolveable converts the abstract problem to the matrix form the engine
// consumes.
func (p *Problem) ToSolveable() (*MILPproblem, error) {
	index := make(map[*Variable]int, len(p.Variables))
	c := make([]float64, len(p.Variables))
	var integerIndices []int

	for i, v := range p.Variables {
		index[v] = i
		c[i] = v.Coefficient
		if v.Integer {
			integerIndices = append(integerIndices, i)
		}
	}

	if len(p.Constraints) == 0 {
		return nil, ErrNoConstraints
	}

	A := mat.NewDense(len(p.Constraints), len(p.Variables), nil)
	b := make([]float64, len(p.Constraints))

	for i, constr := range p.Constraints {
		for _, e := range constr.expressions {
			j := index[e.variable]
			A.Set(i, j, A.At(i, j)+e.coef)
		}
		b[i] = constr.atLeast
	}

	return NewMILPProblem(c, A, b, integerIndices)
}
