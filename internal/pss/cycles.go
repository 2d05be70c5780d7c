package pss

import (
	"sort"

	"github.com/yourbasic/graph"

	"pssbuild/internal/ir"
)

// detectRecursion builds a call graph over module's functions (direct
// calls only; an indirect call's possible targets aren't known until
// points-to has already run, so they can't feed a pre-build cycle
// check) and reports which functions belong to a cycle: either a
// self-call or a strongly connected component with more than one
// member.
//
// A recursive function still gets a Subgraph and a Join node, built the
// same way as any other function; what changes is only that the Join
// node's points-to set is a fixpoint over an unbounded number of calls
// rather than a single merge, which is worth telling the caller about.
func detectRecursion(module *ir.Module) map[string]bool {
	funcs := make([]*ir.Function, 0, len(module.Functions))
	index := make(map[*ir.Function]int, len(module.Functions))
	for _, f := range module.Functions {
		index[f] = len(funcs)
		funcs = append(funcs, f)
	}

	g := graph.New(len(funcs))
	for _, f := range funcs {
		if f.IsDeclaration {
			continue
		}
		for _, blk := range f.Blocks {
			for _, instr := range blk.Instrs {
				if instr.Opcode != ir.OpCall {
					continue
				}
				callee := instr.DirectCallee()
				if callee == nil {
					continue
				}
				j, ok := index[callee]
				if !ok {
					continue
				}
				g.Add(index[f], j)
			}
		}
	}

	recursive := map[string]bool{}
	for _, component := range graph.StrongComponents(g) {
		if len(component) > 1 {
			for _, v := range component {
				recursive[funcs[v].Name] = true
			}
			continue
		}
		v := component[0]
		g.Visit(v, func(w int, _ int64) bool {
			if w == v {
				recursive[funcs[v].Name] = true
				return true
			}
			return false
		})
	}
	return recursive
}

// sortedFunctionNames is a small helper build.go's diagnostic pass uses
// to report recursive functions in a deterministic order.
func sortedFunctionNames(set map[string]bool) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
