package pss

import "fmt"

// CheckWellFormed runs a handful of structural invariants a Result
// should always satisfy regardless of the module it was built from,
// returning every violation found rather than stopping at the first
// one. It is meant for tests and for a caller building confidence in a
// new Builder change, not for production diagnostics (those go through
// diag.Bag during Build itself).
func CheckWellFormed(r *Result) []error {
	var errs []error

	for name, sg := range r.Subgraphs {
		errs = append(errs, checkCallPairing(name, sg)...)
		errs = append(errs, checkPhiCompleteness(name, sg)...)
		errs = append(errs, checkReturnsReachJoin(name, sg)...)
	}
	return errs
}

// checkCallPairing verifies every CALL/CALL_FUNCPTR node's Paired link
// points back at a CALL_RETURN whose own Paired link points back at it,
// except a pointer-returning external call, which is paired with
// itself and has no CALL_RETURN at all.
func checkCallPairing(fnName string, sg *Subgraph) []error {
	var errs []error
	walkNodes(sg.Entry, map[*Node]bool{}, func(n *Node) {
		if n.Kind != CALL && n.Kind != CALL_FUNCPTR {
			return
		}
		if n.Paired == n {
			return
		}
		if n.Paired == nil {
			errs = append(errs, fmt.Errorf("%s: %s has no paired CALL_RETURN", fnName, n))
			return
		}
		if n.Paired.Kind != CALL_RETURN {
			errs = append(errs, fmt.Errorf("%s: %s paired with non-CALL_RETURN %s", fnName, n, n.Paired))
			return
		}
		if n.Paired.Paired != n {
			errs = append(errs, fmt.Errorf("%s: %s and %s are not mutually paired", fnName, n, n.Paired))
		}
	})
	return errs
}

// checkPhiCompleteness verifies every PHI node has at least one operand
// once resolvePendingPhis has run (a Phi with zero incoming values is
// still wired to UnknownMemoryNode, so len(Operands) == 0 would mean the
// resolution pass never reached it).
func checkPhiCompleteness(fnName string, sg *Subgraph) []error {
	var errs []error
	walkNodes(sg.Entry, map[*Node]bool{}, func(n *Node) {
		if n.Kind != PHI {
			return
		}
		if len(n.Operands) == 0 {
			errs = append(errs, fmt.Errorf("%s: %s has no operands; resolvePendingPhis did not run on it", fnName, n))
		}
	})
	return errs
}

// checkReturnsReachJoin verifies every RETURN node collected in
// sg.Returns has sg.Join among its Successors.
func checkReturnsReachJoin(fnName string, sg *Subgraph) []error {
	var errs []error
	for _, ret := range sg.Returns {
		found := false
		for _, s := range ret.Successors {
			if s == sg.Join {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Errorf("%s: %s does not reach the function's join node", fnName, ret))
		}
	}
	return errs
}

// walkNodes visits every node reachable from start via Successors,
// exactly once. It also follows Paired as a belt-and-suspenders check:
// a CALL/CALL_FUNCPTR node is already wired into its block's Successors
// chain, but an unresolved-indirect-call CALL_RETURN also needs its
// CALL half visited even when nothing else points at it.
func walkNodes(start *Node, visited map[*Node]bool, visit func(*Node)) {
	if start == nil || visited[start] {
		return
	}
	visited[start] = true
	visit(start)
	for _, s := range start.Successors {
		walkNodes(s, visited, visit)
	}
	if start.Paired != nil {
		walkNodes(start.Paired, visited, visit)
	}
}

// Determinism checks that building the same module twice produces
// Results with the same shape: equal subgraph/global name sets and
// equal node counts per subgraph. It does not compare Node IDs, which
// are Builder-local counters and not meant to be stable across builds.
func Determinism(a, b *Result) []error {
	var errs []error
	if len(a.Subgraphs) != len(b.Subgraphs) {
		errs = append(errs, fmt.Errorf("subgraph count differs: %d vs %d", len(a.Subgraphs), len(b.Subgraphs)))
	}
	if len(a.Globals) != len(b.Globals) {
		errs = append(errs, fmt.Errorf("global count differs: %d vs %d", len(a.Globals), len(b.Globals)))
	}
	for name := range a.Globals {
		if _, ok := b.Globals[name]; !ok {
			errs = append(errs, fmt.Errorf("global %q missing from second build", name))
		}
	}
	for name, sgA := range a.Subgraphs {
		sgB, ok := b.Subgraphs[name]
		if !ok {
			errs = append(errs, fmt.Errorf("subgraph %q missing from second build", name))
			continue
		}
		countA := countReachable(sgA.Entry)
		countB := countReachable(sgB.Entry)
		if countA != countB {
			errs = append(errs, fmt.Errorf("subgraph %q: node count differs: %d vs %d", name, countA, countB))
		}
	}
	return errs
}

func countReachable(start *Node) int {
	n := 0
	walkNodes(start, map[*Node]bool{}, func(*Node) { n++ })
	return n
}
