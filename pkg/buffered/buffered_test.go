package buffered

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZeroSizeKeepsOneSlot(t *testing.T) {
	q := New[int](0)
	require.Equal(t, uint64(1), q.Cap())
	require.True(t, q.Enqueue(1))
	require.False(t, q.Enqueue(2))
	v, ok := q.Dequeue()
	require.True(t, ok)
	require.Equal(t, 1, v)
	_, ok = q.Dequeue()
	require.False(t, ok)
}
