package ilp

import (
	"fmt"
	"math"
)

// brancher selects the variable index a node should branch on.
type brancher interface {
	selectIndex(n *node, orc relaxationOracle, opts SolveOptions) (int, error)
}

func newBrancher(h BranchHeuristic, pcosts *pseudoCostStore) brancher {
	switch h {
	case BRANCH_MOST_FRACTIONAL:
		return mostFractionalBrancher{}
	case BRANCH_STRONG:
		return strongBrancher{}
	case BRANCH_PSEUDOCOST:
		return pseudoCostBrancher{store: pcosts}
	default:
		panic("provided branching heuristic config variable unknown")
	}
}

func fractionalIndices(n *node) []int {
	var out []int
	for i := range n.x {
		if n.integrality[i] && isFractional(n.x[i], n.eps) {
			out = append(out, i)
		}
	}
	return out
}

// mostFractionalBrancher picks the variable whose fractional part is closest
// to one half. O(number of integer variables) per call.
type mostFractionalBrancher struct{}

func (mostFractionalBrancher) selectIndex(n *node, _ relaxationOracle, _ SolveOptions) (int, error) {
	idx := mostFractionalIndex(n.x, n.integrality, n.eps)
	if idx < 0 {
		panic("ilp: no fractional integer variable to branch on")
	}
	return idx, nil
}

// strongBrancher tentatively branches on every fractional candidate, solves
// both children under the advisory iteration cap, and picks the candidate
// with the best worst-case bound improvement.
type strongBrancher struct{}

func (strongBrancher) selectIndex(n *node, orc relaxationOracle, opts SolveOptions) (int, error) {
	candidates := fractionalIndices(n)
	if len(candidates) == 0 {
		panic("ilp: no fractional integer variable to branch on")
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	bestIdx := -1
	bestScore := math.Inf(-1)

	for _, idx := range candidates {
		worst := math.Inf(1)

		for _, child := range n.baseBranch(idx) {
			sol, err := orc.solve(child.rel, child.basis, opts.StrongBranchIterations)

			var improvement float64
			switch {
			case err != nil || sol.unbounded:
				// numerical trouble on a probe is not worth aborting the
				// search over; score the direction as no improvement.
				improvement = 0
			case !sol.feasible:
				// an infeasible child prunes immediately, the best outcome.
				improvement = math.Inf(1)
			default:
				improvement = sol.z - n.lowerBound
				if improvement < -n.eps {
					// children are feasibility-restrictions of the parent, so
					// a bound regression indicates a defect. Fail loudly.
					panic(fmt.Sprintf("ilp: strong branch child bound %v below parent bound %v",
						sol.z, n.lowerBound))
				}
			}

			if improvement < worst {
				worst = improvement
			}
		}

		if worst > bestScore {
			bestScore, bestIdx = worst, idx
		}
	}

	return bestIdx, nil
}

// pseudoCostStore keeps per-variable, per-direction running averages of the
// objective degradation per unit of fractional distance observed across the
// search. It is owned by the driver and handed into the brancher, never
// ambient state.
type pseudoCostStore struct {
	stats map[branchDirection]map[int]*costStat
}

type costStat struct {
	sum float64
	n   int
}

func newPseudoCostStore() *pseudoCostStore {
	return &pseudoCostStore{
		stats: map[branchDirection]map[int]*costStat{
			branchDown: {},
			branchUp:   {},
		},
	}
}

// observe records the true degradation per unit fractional distance seen
// after an actual branch on idx in the given direction.
func (s *pseudoCostStore) observe(idx int, dir branchDirection, perUnit float64) {
	st, ok := s.stats[dir][idx]
	if !ok {
		st = &costStat{}
		s.stats[dir][idx] = st
	}
	st.sum += perUnit
	st.n++
}

// estimate returns the average observed degradation per unit distance for
// (idx, dir). Variables without history fall back to the direction-wide mean
// and then to 1, so early selections degrade towards most-fractional order.
func (s *pseudoCostStore) estimate(idx int, dir branchDirection) float64 {
	if st, ok := s.stats[dir][idx]; ok && st.n > 0 {
		return st.sum / float64(st.n)
	}

	var sum float64
	var n int
	for _, st := range s.stats[dir] {
		sum += st.sum
		n += st.n
	}
	if n > 0 {
		return sum / float64(n)
	}
	return 1
}

// pseudoCostBrancher scores each fractional candidate with its estimated
// bound degradation in both directions and selects the candidate maximizing
// the worst case.
type pseudoCostBrancher struct {
	store *pseudoCostStore
}

func (p pseudoCostBrancher) selectIndex(n *node, _ relaxationOracle, _ SolveOptions) (int, error) {
	candidates := fractionalIndices(n)
	if len(candidates) == 0 {
		panic("ilp: no fractional integer variable to branch on")
	}

	bestIdx := -1
	bestScore := math.Inf(-1)

	for _, idx := range candidates {
		f := fraction(n.x[idx])
		down := p.store.estimate(idx, branchDown) * f
		up := p.store.estimate(idx, branchUp) * (1 - f)

		score := math.Min(down, up)
		if score > bestScore {
			bestScore, bestIdx = score, idx
		}
	}

	return bestIdx, nil
}
