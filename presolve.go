package ilp

import (
	"gonum.org/v1/gonum/mat"
)

// presolve validates the problem and applies the root-level simplifications
// that need no postsolve step. The returned flag reports infeasibility proven
// without solving a single relaxation.
func presolve(p MILPproblem) (MILPproblem, bool, error) {
	if err := p.validate(); err != nil {
		return MILPproblem{}, false, err
	}

	A, b, infeasible, err := removeEmptyRows(p.A, p.b)
	if err != nil || infeasible {
		return MILPproblem{}, infeasible, err
	}

	return MILPproblem{
		c:                      p.c,
		A:                      A,
		b:                      b,
		integralityConstraints: p.integralityConstraints,
	}, false, nil
}

// removeEmptyRows drops constraint rows without a nonzero coefficient. An
// empty row with a positive right-hand side can never be satisfied, proving
// the whole problem infeasible up front.
func removeEmptyRows(A *mat.Dense, b []float64) (*mat.Dense, []float64, bool, error) {
	aRows, aCols := A.Dims()

	var nonEmptyRows []int
	for i := 0; i < aRows; i++ {
		nonzero := false
		for j := 0; j < aCols; j++ {
			if A.At(i, j) != 0 {
				nonzero = true
				break
			}
		}

		if nonzero {
			nonEmptyRows = append(nonEmptyRows, i)
			continue
		}

		if b[i] > 0 {
			return nil, nil, true, nil
		}
	}

	if len(nonEmptyRows) == 0 {
		return nil, nil, false, ErrNoConstraints
	}

	// if no empty rows were found, return a copy of A
	if len(nonEmptyRows) == aRows {
		bNew := make([]float64, aRows)
		copy(bNew, b)
		return mat.DenseCopyOf(A), bNew, false, nil
	}

	var newAData []float64
	var bNew []float64
	for _, r := range nonEmptyRows {
		// RawRowView returns a slice backed by the same array as the receiver
		newAData = append(newAData, A.RawRowView(r)...)
		bNew = append(bNew, b[r])
	}

	ANew := mat.NewDense(len(nonEmptyRows), aCols, newAData)

	return ANew, bNew, false, nil
}
