package lockfree

// minCapacity is the smallest ring the queue will build. A single slot cannot
// tell "produced" apart from "free for the next lap".
const minCapacity = 2

// roundCapacity returns max(2, next power of two >= requested).
//
// Only the MSB of (requested-1) matters: smearing it into every lower bit and
// adding one gives the power of two.
func roundCapacity(requested uint64) uint64 {
	if requested <= minCapacity {
		return minCapacity
	}
	n := requested - 1
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	n++
	// requested above 1<<63 overflows to 0.
	if n == 0 {
		panic("lockfree: requested capacity overflows uint64")
	}
	return n
}
