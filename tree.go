package ilp

import (
	"container/heap"
	"errors"
	"math"
	"time"
)

// Branch-and-bound decisions made by the driver, one per processed node.
type bnbDecision string

const (
	SUBPROBLEM_NOT_FEASIBLE         bnbDecision = "subproblem has no feasible solution"
	SUBPROBLEM_ABANDONED            bnbDecision = "subproblem abandoned after numerical failure"
	SUBPROBLEM_UNBOUNDED            bnbDecision = "subproblem relaxation is unbounded"
	WORSE_THAN_INCUMBENT            bnbDecision = "worse than incumbent"
	BETTER_THAN_INCUMBENT_BRANCHING bnbDecision = "better than incumbent but not integer feasible, so branching"
	BETTER_THAN_INCUMBENT_FEASIBLE  bnbDecision = "better than incumbent and integer feasible, so replacing incumbent"
	INITIAL_RELAXATION_UNBOUNDED    bnbDecision = "initial relaxation is unbounded"
	SEARCH_BUDGET_EXHAUSTED         bnbDecision = "search budget exhausted"
)

// openNodes is the priority queue of unexplored nodes: ascending lower bound,
// with insertion order breaking ties deterministically. The comparator is
// explicit; nodes are never compared outside this queue.
type openNodes struct {
	items []*openNode
}

type openNode struct {
	n   *node
	seq int64
}

func (q *openNodes) Len() int { return len(q.items) }

func (q *openNodes) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.n.lowerBound != b.n.lowerBound {
		return lessNodes(a.n, b.n)
	}
	return a.seq < b.seq
}

func (q *openNodes) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *openNodes) Push(x any) { q.items = append(q.items, x.(*openNode)) }

func (q *openNodes) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return item
}

// searchTree owns the global search state: the open queue, the incumbent,
// the pseudo-cost history and the termination policy.
type searchTree struct {
	problem MILPproblem
	opts    SolveOptions
	oracle  relaxationOracle

	queue    openNodes
	seq      int64
	nextID   int64
	deadline time.Time

	incumbent *node
	pcosts    *pseudoCostStore
	brancher  brancher

	processed int
	abandoned int
}

func newSearchTree(p MILPproblem, opts SolveOptions, orc relaxationOracle) *searchTree {
	t := &searchTree{
		problem: p,
		opts:    opts,
		oracle:  orc,
		pcosts:  newPseudoCostStore(),
	}
	t.brancher = newBrancher(opts.BranchHeuristic, t.pcosts)

	if opts.TimeLimit > 0 {
		t.deadline = time.Now().Add(opts.TimeLimit)
	}

	return t
}

func (t *searchTree) push(n *node) {
	n.id = t.nextID
	t.nextID++
	t.seq++
	heap.Push(&t.queue, &openNode{n: n, seq: t.seq})
}

func (t *searchTree) pop() *node {
	return heap.Pop(&t.queue).(*openNode).n
}

// incumbentX exposes the incumbent point to the cut generator's validity
// check without sharing the node itself.
func (t *searchTree) incumbentX() []float64 {
	if t.incumbent == nil {
		return nil
	}
	return t.incumbent.x
}

// globalLowerBound is the proven bound valid at any moment of the search:
// the minimum over open-queue lower bounds and the incumbent objective.
// Queued bounds are stale parent values pruned lazily at pop, so the queue
// minimum alone can exceed the incumbent and must be clamped by it.
func (t *searchTree) globalLowerBound() float64 {
	lb := math.Inf(1)
	for _, it := range t.queue.items {
		if it.n.lowerBound < lb {
			lb = it.n.lowerBound
		}
	}
	if t.incumbent != nil && t.incumbent.lowerBound < lb {
		lb = t.incumbent.lowerBound
	}
	return lb
}

// run drives the Open -> Bounding -> Branching state machine until the queue
// empties or a budget runs out.
func (t *searchTree) run() (MILPSolution, error) {
	var exts []boundingExtension
	if t.opts.GomoryCuts {
		exts = append(exts, &cutGenerator{
			nodeLimit: t.opts.CutOptimizationNodeLimit,
			incumbent: t.incumbentX,
		})
	}

	t.push(newRootNode(t.problem, t.opts, exts))

	for t.queue.Len() > 0 {
		if status, exhausted := t.budgetExhausted(); exhausted {
			// this decision belongs to no node; the sentinel id keeps it out
			// of per-node renderings
			t.opts.Middleware.ProcessDecision(nodeSummary{id: -1, parent: -1, bIdx: -1}, SEARCH_BUDGET_EXHAUSTED)
			return t.report(status), nil
		}

		n := t.pop()
		t.processed++

		if err := n.bound(t.oracle, t.opts); err != nil {
			if errors.Is(err, errNumericalFailure) {
				t.abandoned++
				t.opts.Middleware.ProcessDecision(summarize(n), SUBPROBLEM_ABANDONED)
				continue
			}
			return MILPSolution{}, err
		}

		t.recordPseudoCost(n)

		switch {
		case n.unbounded:
			if n.depth == 0 {
				t.opts.Middleware.ProcessDecision(summarize(n), INITIAL_RELAXATION_UNBOUNDED)
				return t.report(StatusUnbounded), nil
			}
			// an unbounded relaxation below a bounded root signals numerical
			// trouble, not true unboundedness
			t.abandoned++
			t.opts.Middleware.ProcessDecision(summarize(n), SUBPROBLEM_UNBOUNDED)

		case !n.lpFeasible:
			t.opts.Middleware.ProcessDecision(summarize(n), SUBPROBLEM_NOT_FEASIBLE)

		case t.incumbent != nil && n.lowerBound >= t.incumbent.lowerBound:
			t.opts.Middleware.ProcessDecision(summarize(n), WORSE_THAN_INCUMBENT)

		case n.mipFeasible:
			// strictly better, or there is no incumbent yet
			t.incumbent = n
			t.opts.Middleware.ProcessDecision(summarize(n), BETTER_THAN_INCUMBENT_FEASIBLE)

		default:
			children, err := n.branch(t.brancher, t.oracle, t.opts)
			if err != nil {
				if errors.Is(err, errNumericalFailure) {
					t.abandoned++
					t.opts.Middleware.ProcessDecision(summarize(n), SUBPROBLEM_ABANDONED)
					continue
				}
				return MILPSolution{}, err
			}

			t.opts.Middleware.ProcessDecision(summarize(n), BETTER_THAN_INCUMBENT_BRANCHING)
			t.push(children[branchDown])
			t.push(children[branchUp])
		}
	}

	if t.incumbent != nil {
		return t.report(StatusOptimal), nil
	}
	return t.report(StatusInfeasible), nil
}

func (t *searchTree) budgetExhausted() (SolutionStatus, bool) {
	if t.opts.NodeLimit > 0 && t.processed >= t.opts.NodeLimit {
		return StatusNodeLimit, true
	}
	if !t.deadline.IsZero() && time.Now().After(t.deadline) {
		return StatusTimeLimit, true
	}
	return "", false
}

// recordPseudoCost feeds the true observed degradation of an actual branch
// back into the pseudo-cost history.
func (t *searchTree) recordPseudoCost(n *node) {
	if n.bIdx < 0 || !n.lpFeasible || n.unbounded {
		return
	}

	var dist float64
	switch n.bDir {
	case branchDown:
		dist = fraction(n.bVal)
	case branchUp:
		dist = 1 - fraction(n.bVal)
	}
	if dist <= n.eps || math.IsInf(n.parentBound, -1) {
		return
	}

	t.pcosts.observe(n.bIdx, n.bDir, (n.lowerBound-n.parentBound)/dist)
}

func (t *searchTree) report(status SolutionStatus) MILPSolution {
	out := MILPSolution{
		Status:         status,
		Objective:      math.NaN(),
		UpperBound:     math.Inf(1),
		AbandonedNodes: t.abandoned,
	}

	if t.incumbent != nil {
		out.Objective = t.incumbent.lowerBound
		out.Solution = t.incumbent.x
		out.UpperBound = t.incumbent.lowerBound
	}

	switch status {
	case StatusOptimal:
		out.LowerBound = t.incumbent.lowerBound
	case StatusInfeasible:
		out.LowerBound = math.Inf(1)
	case StatusUnbounded:
		out.LowerBound = math.Inf(-1)
		out.UpperBound = math.Inf(-1)
	default:
		out.LowerBound = t.globalLowerBound()
	}

	return out
}
