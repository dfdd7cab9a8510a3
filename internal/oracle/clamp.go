package oracle

// Cache is the slab's oracle cache: the last parsed price, the
// last-effective (post-clamp) price, the slot it was computed at, and an
// optional circuit-breaker cap.
type Cache struct {
	LastPrice        uint64
	LastEffective     uint64
	LastEffectiveSlot uint64
	// CapPerSlot, when nonzero, is the maximum absolute movement of the
	// effective index per slot, enforced by ClampTowardWithDt.
	CapPerSlot uint64
}

// ClampTowardWithDt rate-limits the effective index toward the raw mark
// price:
//
//   - dt == 0 or cap == 0: index is returned unchanged (a no-op; this is what
//     prevents a second crank in the same slot from moving the index again).
//   - index == 0: bootstrap, return mark unchanged (initial discovery).
//   - otherwise: move index toward mark by at most cap*dt.
//
// Movement is bounded by |cap*dt|, the result is monotonic in mark, and a
// zero dt is always a no-op.
func ClampTowardWithDt(index, mark, cap, dt uint64) uint64 {
	if dt == 0 || cap == 0 {
		return index
	}
	if index == 0 {
		return mark
	}

	limit := saturatingMul(cap, dt)

	if mark >= index {
		delta := mark - index
		if delta > limit {
			delta = limit
		}
		return index + delta
	}

	delta := index - mark
	if delta > limit {
		delta = limit
	}
	return index - delta
}

func saturatingMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	product := a * b
	if product/a != b {
		return ^uint64(0)
	}
	return product
}
