package layout

import (
	"fortio.org/safecast"

	"pssbuild/internal/ir"
)

// AccumulateConstantOffset implements ir.DataLayout. It walks a GEP index
// chain the way LLVM's APInt accumulator does: the first index steps by
// whole elements of baseTy, every later index steps into the field/array
// element the previous step landed on. Any dynamic index, any negative
// constant index, or any intermediate overflow makes the whole chain
// unresolved.
func (e *Engine) AccumulateConstantOffset(baseTy *ir.Type, indices []ir.GEPIndex) (uint64, bool) {
	if baseTy == nil || len(indices) == 0 {
		return 0, false
	}
	var total uint64
	cur := baseTy

	first := indices[0]
	if !first.IsConst {
		return 0, false
	}
	n, err := safecast.Conv[uint64](first.Const)
	if err != nil {
		return 0, false
	}
	elemSize, _, sizeErr := e.sizeAlignOf(cur, newSizeState())
	if sizeErr != nil {
		return 0, false
	}
	step := elemSize * n
	if elemSize != 0 && step/elemSize != n {
		return 0, false
	}
	total = step

	for _, idx := range indices[1:] {
		if !idx.IsConst {
			return 0, false
		}
		switch cur.Kind {
		case ir.TypeStruct:
			fi, err := safecast.Conv[int](idx.Const)
			if err != nil {
				return 0, false
			}
			off, ok := e.fieldOffset(cur, fi)
			if !ok || total+off < total {
				return 0, false
			}
			total += off
			cur = cur.Fields[fi]

		case ir.TypeArray:
			n, err := safecast.Conv[uint64](idx.Const)
			if err != nil {
				return 0, false
			}
			elemSize, _, sizeErr := e.sizeAlignOf(cur.ArrayElem, newSizeState())
			if sizeErr != nil {
				return 0, false
			}
			step := elemSize * n
			if (elemSize != 0 && step/elemSize != n) || total+step < total {
				return 0, false
			}
			total += step
			cur = cur.ArrayElem

		default:
			return 0, false
		}
	}
	return total, true
}
