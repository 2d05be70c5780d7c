package pss

import "pssbuild/internal/ir"

// buildFunctionBody lowers every block reachable from the function's
// entry block, wires control flow between them (eliding blocks with no
// pointer-relevant instructions, per elideTargets below), and resolves
// the Phi incoming-value list once every block referenced by a Phi has
// been lowered.
func (b *Builder) buildFunctionBody(sg *Subgraph) {
	bodyEntries := b.elideTargets(sg, sg.Func.Entry, map[*ir.Block]bool{})
	head := sg.Entry
	if sg.ArgsFirst != nil {
		// A function with pointer-typed or variadic parameters runs
		// through its argument PHI chain before its own body.
		sg.Entry.addSuccessor(sg.ArgsFirst)
		head = sg.ArgsLast
	}
	for _, t := range bodyEntries {
		head.addSuccessor(t)
	}

	visited := map[*ir.Block]bool{sg.Func.Entry: true}
	queue := []*ir.Block{sg.Func.Entry}
	for len(queue) > 0 {
		blk := queue[0]
		queue = queue[1:]
		span := b.lowerBlockInstrs(sg, blk)

		if span.Last != nil && span.Last.Kind == RETURN {
			// A return ends this block's control flow: it feeds the
			// function's join node, never a successor block.
			continue
		}
		for _, succ := range blk.Successors {
			targets := b.elideTargets(sg, succ, map[*ir.Block]bool{})
			if span.Last != nil {
				for _, target := range targets {
					span.Last.addSuccessor(target)
				}
			}
			if !visited[succ] {
				visited[succ] = true
				queue = append(queue, succ)
			}
		}
		if len(blk.Successors) == 0 && (span.Last == nil || span.Last.Kind != RETURN) {
			// Falls off the end of the function with no explicit return
			// and no successor: treat it as an implicit void return.
			if span.Last != nil {
				span.Last.addSuccessor(sg.Join)
			}
		}
	}

	b.resolvePendingPhis(sg)
}

// elideTargets resolves what jumping to blk actually reaches: blk's own
// first lowered node if it has any pointer-relevant instructions, or
// (transitively, following every successor of an empty block with a
// visited set to guard against an empty-block cycle) the entry node of
// each non-empty block reached that way. A chain of empty blocks that
// dead-ends with no successor resolves to the function's join node; an
// empty-block cycle with no exit contributes no target.
func (b *Builder) elideTargets(sg *Subgraph, blk *ir.Block, visited map[*ir.Block]bool) []*Node {
	if visited[blk] {
		return nil
	}
	visited[blk] = true

	span := b.lowerBlockInstrs(sg, blk)
	if span.First != nil {
		return []*Node{span.First}
	}
	if len(blk.Successors) == 0 {
		return []*Node{sg.Join}
	}
	var targets []*Node
	for _, succ := range blk.Successors {
		targets = append(targets, b.elideTargets(sg, succ, visited)...)
	}
	return targets
}

func (s *blockSpan) effectiveFirst(fallback *Node) *Node {
	if s.First != nil {
		return s.First
	}
	return fallback
}

// lowerBlockInstrs lowers blk's instructions into a chain of Nodes the
// first time it's asked to, memoizing the result so a block reached
// through two different predecessors (or referenced by a Phi before the
// BFS walk gets to it) is only ever lowered once.
func (b *Builder) lowerBlockInstrs(sg *Subgraph, blk *ir.Block) *blockSpan {
	if span, ok := sg.blockSpans[blk]; ok {
		return span
	}
	span := &blockSpan{}
	sg.blockSpans[blk] = span // inserted before lowering: guards re-entrant calls from ensureInstrLowered

	var prev *Node
	for _, instr := range blk.Instrs {
		n := b.lowerInstr(sg, instr)
		if n == nil {
			continue
		}
		entry := n
		if n.chainEntry != nil {
			entry = n.chainEntry
		}
		if span.First == nil {
			span.First = entry
		}
		if prev != nil {
			prev.addSuccessor(entry)
		}
		prev = n
		if n.Kind == RETURN {
			sg.Returns = append(sg.Returns, n)
			n.addSuccessor(sg.Join)
		}
	}
	span.Last = prev
	return span
}

// ensureInstrLowered lowers instr's owning block on demand, used when a
// Phi's incoming value or a forward reference names an instruction the
// BFS walk over blocks hasn't reached yet.
func (b *Builder) ensureInstrLowered(sg *Subgraph, instr *ir.Instr) {
	blk, ok := sg.instrOwner[instr]
	if !ok {
		return
	}
	b.lowerBlockInstrs(sg, blk)
}

// resolvePendingPhis wires each Phi node's operands once every block a
// Phi can reference has had a chance to be lowered (a Phi inside a loop
// header may list an incoming value defined later in program order than
// the Phi itself).
func (b *Builder) resolvePendingPhis(sg *Subgraph) {
	for _, pending := range sg.phiPending {
		for _, inc := range pending.instr.Incoming {
			pending.node.addOperand(b.getOperand(sg, inc.Value))
		}
		if len(pending.instr.Incoming) == 0 {
			pending.node.addOperand(UnknownMemoryNode)
		}
	}
}
