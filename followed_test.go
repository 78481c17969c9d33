package lattice

import (
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFollowedSet_AppendNewest(t *testing.T) {
	t.Parallel()

	var f followedSet
	f.appendNewest([]EntityID{2, 3, 4})
	f.appendNewest([]EntityID{7, 9})
	f.appendNewest(nil)

	assert.Equal(t, []EntityID{2, 3, 4, 7, 9}, f.entities)
	assert.Panics(t, func() { f.appendNewest([]EntityID{5}) })
}

func TestFollowedSet_MergeInsert(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		initial []EntityID
		batch   []EntityID
		want    []EntityID
	}{
		{name: "into empty", initial: nil, batch: []EntityID{3, 5}, want: []EntityID{3, 5}},
		{name: "all newer takes fast path", initial: []EntityID{2, 4}, batch: []EntityID{6, 8}, want: []EntityID{2, 4, 6, 8}},
		{name: "interleaved", initial: []EntityID{2, 6, 10}, batch: []EntityID{4, 8}, want: []EntityID{2, 4, 6, 8, 10}},
		{name: "batch before head", initial: []EntityID{5, 6}, batch: []EntityID{2, 3}, want: []EntityID{2, 3, 5, 6}},
		{name: "duplicates collapse", initial: []EntityID{2, 4, 6}, batch: []EntityID{4, 5, 6}, want: []EntityID{2, 4, 5, 6}},
		{name: "empty batch", initial: []EntityID{2}, batch: nil, want: []EntityID{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := followedSet{entities: slices.Clone(tt.initial)}
			f.mergeInsert(tt.batch)
			assert.Equal(t, tt.want, f.entities)
			assert.True(t, slices.IsSorted(f.entities))
		})
	}
}

func TestFollowedSet_DifferenceRemove(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		initial []EntityID
		remove  []EntityID
		want    []EntityID
	}{
		{name: "middle", initial: []EntityID{2, 3, 4, 5}, remove: []EntityID{3, 4}, want: []EntityID{2, 5}},
		{name: "absent ids are ignored", initial: []EntityID{2, 5}, remove: []EntityID{3, 4, 6}, want: []EntityID{2, 5}},
		{name: "everything", initial: []EntityID{2, 3}, remove: []EntityID{2, 3}, want: []EntityID{}},
		{name: "empty removal", initial: []EntityID{2, 3}, remove: nil, want: []EntityID{2, 3}},
		{name: "head and tail", initial: []EntityID{2, 3, 4}, remove: []EntityID{2, 4}, want: []EntityID{3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := followedSet{entities: slices.Clone(tt.initial)}
			f.differenceRemove(tt.remove)
			assert.Equal(t, tt.want, f.entities)
		})
	}
}

func TestFollowedSet_Contains(t *testing.T) {
	t.Parallel()

	f := followedSet{entities: []EntityID{2, 5, 9}}
	assert.True(t, f.contains(5))
	assert.False(t, f.contains(4))
}

// Split must cover the set exactly once, in order, with range sizes
// differing by at most one.
func TestFollowedSet_Split(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		size int
		n    int
	}{
		{name: "even split", size: 12, n: 4},
		{name: "remainder goes to the front", size: 10, n: 4},
		{name: "more ranges than entities", size: 3, n: 8},
		{name: "single range", size: 5, n: 1},
		{name: "empty set", size: 0, n: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var f followedSet
			for i := 0; i < tt.size; i++ {
				f.entities = append(f.entities, EntityID(2+i))
			}

			ranges := f.split(tt.n)
			require.Len(t, ranges, tt.n)

			var flat []EntityID
			minLen, maxLen := tt.size, 0
			for _, r := range ranges {
				flat = append(flat, r...)
				minLen = min(minLen, len(r))
				maxLen = max(maxLen, len(r))
			}
			assert.Equal(t, f.entities, flat)
			if tt.size > 0 {
				assert.LessOrEqual(t, maxLen-minLen, 1)
			}

			for i, r := range ranges {
				want := tt.size / tt.n
				if i < tt.size%tt.n {
					want++
				}
				assert.Len(t, r, want)
			}
		})
	}
}

// ForEachPar must visit each followed entity exactly once.
func TestFollowedEntities_ForEachParExactlyOnce(t *testing.T) {
	t.Parallel()

	var f followedSet
	for i := 0; i < 10000; i++ {
		f.entities = append(f.entities, EntityID(2+i))
	}
	view := FollowedEntities{set: &f, workers: 4}

	var mu sync.Mutex
	seen := make(map[EntityID]int, 10000)
	view.ForEachPar(func(id EntityID) {
		mu.Lock()
		seen[id]++
		mu.Unlock()
	})

	require.Len(t, seen, 10000)
	for id, count := range seen {
		require.Equal(t, 1, count, "entity %d visited %d times", id, count)
	}
}

func TestFollowedEntities_IterAscending(t *testing.T) {
	t.Parallel()

	f := followedSet{entities: []EntityID{2, 4, 9}}
	view := FollowedEntities{set: &f, workers: 1}

	var got []EntityID
	for id := range view.Iter() {
		got = append(got, id)
	}
	assert.Equal(t, []EntityID{2, 4, 9}, got)
	assert.Equal(t, 3, view.Len())
	assert.True(t, view.Contains(4))
	assert.False(t, view.Contains(3))
}
