package brackets

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func players(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("p%02d", i+1)
	}
	return out
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name      string
		input     []string
		matchSize int
		expected  [][]string
	}{
		{name: "empty", input: nil, matchSize: 2, expected: [][]string{}},
		{name: "single player dropped", input: []string{"a"}, matchSize: 2, expected: [][]string{}},
		{name: "even field", input: []string{"a", "b", "c", "d"}, matchSize: 2, expected: [][]string{{"a", "b"}, {"c", "d"}}},
		{name: "odd tail dropped", input: []string{"a", "b", "c"}, matchSize: 2, expected: [][]string{{"a", "b"}}},
		{name: "groups of three", input: []string{"a", "b", "c", "d", "e", "f", "g"}, matchSize: 3, expected: [][]string{{"a", "b", "c"}, {"d", "e", "f"}}},
		{name: "non positive size defaults to pairs", input: []string{"a", "b"}, matchSize: 0, expected: [][]string{{"a", "b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Partition(tt.input, tt.matchSize))
		})
	}
}

func TestPartitionDoesNotAliasInput(t *testing.T) {
	in := []string{"a", "b"}
	groups := Partition(in, 2)
	groups[0][0] = "x"
	assert.Equal(t, "a", in[0])
}

func TestUnpaired(t *testing.T) {
	assert.Nil(t, Unpaired([]string{"a", "b"}, 2))
	assert.Equal(t, []string{"c"}, Unpaired([]string{"a", "b", "c"}, 2))
	assert.Equal(t, []string{"d", "e"}, Unpaired([]string{"a", "b", "c", "d", "e"}, 3))
}

func TestFillWithBye(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "even unchanged", input: []string{"a", "b"}, expected: []string{"a", "b"}},
		{name: "odd padded", input: []string{"a", "b", "c"}, expected: []string{"a", "b", "c", Bye}},
		{name: "single padded", input: []string{"a"}, expected: []string{"a", Bye}},
		{name: "odd with bye present", input: []string{"a", Bye, "c"}, expected: []string{"a", Bye, "c"}},
		{name: "empty", input: []string{}, expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := append([]string{}, tt.input...)
			assert.Equal(t, tt.expected, FillWithBye(in))
			assert.Equal(t, tt.input, in, "input must not be modified")
		})
	}
}

func TestFillThenPartitionCoversEveryPlayer(t *testing.T) {
	for n := 1; n <= 40; n++ {
		field := players(n)
		pairs := Partition(FillWithBye(field), MatchSize)
		require.Len(t, pairs, (n+1)/2, "n=%d", n)

		seen := make(map[string]int)
		for _, pair := range pairs {
			require.Len(t, pair, MatchSize)
			for _, p := range pair {
				if p != Bye {
					seen[p]++
				}
			}
		}
		require.Len(t, seen, n)
		for p, count := range seen {
			assert.Equal(t, 1, count, "player %s placed %d times", p, count)
		}
	}
}

func TestByePairHelpers(t *testing.T) {
	assert.True(t, IsByePair([]string{"a", Bye}))
	assert.False(t, IsByePair([]string{"a", "b"}))
	assert.Equal(t, "a", soloOf([]string{"a", Bye}))
}

func TestMatchID(t *testing.T) {
	assert.Equal(t, "spring-cup-r1-m0", MatchID("spring-cup", 1, 0))
	assert.Equal(t, "t-r3-m12", MatchID("t", 3, 12))
	assert.Equal(t, MatchID("t", 2, 1), MatchID("t", 2, 1))
}

func TestParseMatchID(t *testing.T) {
	tid, round, index, ok := ParseMatchID(MatchID("cup-rally-2", 3, 11))
	require.True(t, ok)
	assert.Equal(t, "cup-rally-2", tid)
	assert.Equal(t, 3, round)
	assert.Equal(t, 11, index)

	_, _, _, ok = ParseMatchID("not-a-match")
	assert.False(t, ok)
}
