package pagination

import (
	"encoding/base64"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

func itemKey(i item) (time.Time, uuid.UUID) { return i.CreatedAt, i.ID }

// less reports whether a sorts after b in (created_at DESC, id DESC) order.
func less(a, b item) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.String() > b.ID.String()
}

// fetch mimics the keyset query the document store runs.
func fetch(all []item, cur *Cursor, limit int) []item {
	sorted := append([]item(nil), all...)
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })

	if cur == nil {
		if len(sorted) > limit+1 {
			return sorted[:limit+1]
		}
		return sorted
	}

	pos := item{ID: cur.LastID, CreatedAt: cur.LastValue}
	if cur.Direction == DirectionNext {
		var out []item
		for _, it := range sorted {
			if less(pos, it) {
				out = append(out, it)
				if len(out) == limit+1 {
					break
				}
			}
		}
		return out
	}

	var newer []item
	for _, it := range sorted {
		if less(it, pos) {
			newer = append(newer, it)
		}
	}
	if len(newer) > limit+1 {
		newer = newer[len(newer)-(limit+1):]
	}
	return newer
}

func makeItems(n int, base time.Time, sameTimestampEvery int) []item {
	items := make([]item, n)
	for i := range items {
		ts := base.Add(-time.Duration(i) * time.Minute)
		if sameTimestampEvery > 0 {
			ts = base.Add(-time.Duration(i/sameTimestampEvery) * time.Minute)
		}
		items[i] = item{ID: uuid.New(), CreatedAt: ts}
	}
	return items
}

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()
	c := Cursor{
		LastValue: time.Date(2026, time.October, 3, 14, 5, 6, 123456789, time.UTC),
		LastID:    uuid.New(),
		Direction: DirectionPrev,
	}

	decoded, err := Decode(Encode(c))
	require.NoError(t, err)
	assert.True(t, c.LastValue.Equal(decoded.LastValue))
	assert.Equal(t, c.LastID, decoded.LastID)
	assert.Equal(t, c.Direction, decoded.Direction)
}

func TestDecode_GarbageNeverPanics(t *testing.T) {
	t.Parallel()
	valid := Encode(Cursor{LastValue: time.Now().UTC(), LastID: uuid.New(), Direction: DirectionNext})

	inputs := []string{
		"",
		"not-base64!!",
		base64.URLEncoding.EncodeToString([]byte("not json")),
		base64.URLEncoding.EncodeToString([]byte(`{"last_value":"yesterday"}`)),
		base64.URLEncoding.EncodeToString([]byte(`{"last_value":"2026-01-01T00:00:00Z","last_id":"00000000-0000-0000-0000-000000000000","direction":"next"}`)),
		base64.URLEncoding.EncodeToString([]byte(`{"last_value":"2026-01-01T00:00:00Z","last_id":"` + uuid.NewString() + `","direction":"sideways"}`)),
		valid[:len(valid)/2],
		valid + "x",
	}

	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, err := Decode(in)
			assert.ErrorIs(t, err, ErrInvalidCursor, "input %q", in)
			c, ok := DecodeOrStart(in)
			assert.False(t, ok)
			assert.Nil(t, c)
		})
	}
}

func TestClampLimit(t *testing.T) {
	t.Parallel()
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, DefaultLimit, ClampLimit(-5))
	assert.Equal(t, 1, ClampLimit(1))
	assert.Equal(t, 42, ClampLimit(42))
	assert.Equal(t, MaxLimit, ClampLimit(1000))
}

func TestBuildPage_EmptyResult(t *testing.T) {
	t.Parallel()
	page := BuildPage[item](nil, 10, nil, itemKey)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
	assert.False(t, page.HasNext)
	assert.Nil(t, page.NextCursor)
	assert.Nil(t, page.PrevCursor)
}

func TestBuildPage_FirstPage(t *testing.T) {
	t.Parallel()
	all := makeItems(5, time.Now().UTC(), 0)

	page := BuildPage(fetch(all, nil, 3), 3, nil, itemKey)
	require.Len(t, page.Items, 3)
	assert.True(t, page.HasNext)
	assert.False(t, page.HasPrev)
	require.NotNil(t, page.NextCursor)
	assert.Nil(t, page.PrevCursor, "no prev cursor without an incoming cursor")

	next, err := Decode(*page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, page.Items[2].ID, next.LastID)
	assert.Equal(t, DirectionNext, next.Direction)
}

func TestForwardIterationCoversEveryItemOnce(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		name      string
		n, limit  int
		sameEvery int
	}{
		{"distinct_timestamps", 23, 5, 0},
		{"exact_multiple", 20, 5, 0},
		{"shared_timestamps", 31, 4, 3},
		{"single_page", 3, 10, 0},
		{"limit_one", 7, 1, 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			all := makeItems(tc.n, time.Now().UTC(), tc.sameEvery)
			seen := map[uuid.UUID]int{}

			var cur *Cursor
			for pages := 0; pages <= tc.n; pages++ {
				page := BuildPage(fetch(all, cur, tc.limit), tc.limit, cur, itemKey)
				for _, it := range page.Items {
					seen[it.ID]++
				}
				if !page.HasNext {
					assert.Nil(t, page.NextCursor)
					break
				}
				require.NotNil(t, page.NextCursor)
				decoded, ok := DecodeOrStart(*page.NextCursor)
				require.True(t, ok)
				cur = decoded
			}

			assert.Len(t, seen, tc.n)
			for id, count := range seen {
				assert.Equal(t, 1, count, "item %s seen %d times", id, count)
			}
		})
	}
}

func TestBackwardPageReturnsPrecedingItems(t *testing.T) {
	t.Parallel()
	all := makeItems(9, time.Now().UTC(), 0)
	sorted := fetch(all, nil, 100)

	first := BuildPage(fetch(all, nil, 3), 3, nil, itemKey)
	c1, _ := DecodeOrStart(*first.NextCursor)
	second := BuildPage(fetch(all, c1, 3), 3, c1, itemKey)
	require.NotNil(t, second.PrevCursor)
	assert.True(t, second.HasPrev)

	back, ok := DecodeOrStart(*second.PrevCursor)
	require.True(t, ok)
	prev := BuildPage(fetch(all, back, 3), 3, back, itemKey)

	require.Len(t, prev.Items, 3)
	for i := range prev.Items {
		assert.Equal(t, sorted[i].ID, prev.Items[i].ID)
	}
	assert.False(t, prev.HasPrev, "first page has nothing before it")
	assert.Nil(t, prev.PrevCursor)
	assert.True(t, prev.HasNext)
	require.NotNil(t, prev.NextCursor)
}
