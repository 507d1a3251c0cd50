package opid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOrdering(t *testing.T) {
	var cases = []struct {
		a, b   OpID
		expect int
	}{
		{OpID{1, 1}, OpID{1, 2}, -1},
		{OpID{1, 9}, OpID{2, 1}, -1},
		{OpID{2, 1}, OpID{1, 9}, 1},
		{OpID{3, 7}, OpID{3, 7}, 0},
		{Minimum, OpID{1, 1}, -1},
	}
	for _, tc := range cases {
		require.Equal(t, tc.expect, tc.a.Compare(tc.b), "%s vs %s", tc.a, tc.b)
		require.Equal(t, tc.expect == -1, tc.a.Less(tc.b))
	}
}

func TestMinOf(t *testing.T) {
	require.Equal(t, OpID{1, 2}, MinOf(OpID{1, 2}, OpID{1, 3}))
	require.Equal(t, OpID{1, 2}, MinOf(OpID{1, 3}, OpID{1, 2}))
	require.Equal(t, Minimum, MinOf(OpID{1, 1}, Minimum))
}

func TestSentinel(t *testing.T) {
	require.True(t, Minimum.IsMin())
	require.False(t, OpID{0, 1}.IsMin())
	require.Equal(t, "0.0", Minimum.String())
	require.Equal(t, "2.13", OpID{2, 13}.String())
}
