//go:build unsafe_close

package dispatcher

import "percolator/internal/slab"

// UnsafeCloseSlab tears down the market unconditionally, skipping every
// balance/account-table precondition CloseSlab enforces. It exists only so
// a test harness can reset a slab between scenarios without constructing a
// fully wound-down market; it must never be compiled into a production
// build, which is why it lives behind the unsafe_close build tag instead of
// a runtime flag.
func (m *Market) UnsafeCloseSlab() {
	*m.Slab = slab.Slab{}
}
