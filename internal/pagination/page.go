package pagination

import (
	"time"

	"github.com/google/uuid"
)

// Page is one slice of a cursor-paginated listing.
type Page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"next_cursor"`
	PrevCursor *string `json:"prev_cursor"`
	HasNext    bool    `json:"has_next"`
	HasPrev    bool    `json:"has_prev"`
	Limit      int     `json:"limit"`
}

// KeyFunc extracts the sort value and tie-breaking ID of an item.
type KeyFunc[T any] func(item T) (time.Time, uuid.UUID)

// BuildPage assembles a page from rows fetched with limit+1. Rows must be
// ordered newest first. For a backward cursor the rows are the limit+1
// items closest to the cursor, so the overflow row is the first one.
func BuildPage[T any](rows []T, limit int, cur *Cursor, key KeyFunc[T]) Page[T] {
	page := Page[T]{Items: rows, Limit: limit}
	hasMore := len(rows) > limit
	backward := cur != nil && cur.Direction == DirectionPrev

	if hasMore {
		if backward {
			page.Items = rows[len(rows)-limit:]
		} else {
			page.Items = rows[:limit]
		}
	}
	if page.Items == nil {
		page.Items = []T{}
	}

	if backward {
		page.HasPrev = hasMore
		page.HasNext = true
	} else {
		page.HasNext = hasMore
		page.HasPrev = cur != nil
	}

	if len(page.Items) == 0 {
		if backward {
			page.HasNext = false
		}
		page.HasPrev = false
		return page
	}

	if page.HasNext {
		last := page.Items[len(page.Items)-1]
		page.NextCursor = cursorFor(last, DirectionNext, key)
	}
	if page.HasPrev {
		first := page.Items[0]
		page.PrevCursor = cursorFor(first, DirectionPrev, key)
	}
	return page
}

func cursorFor[T any](item T, dir Direction, key KeyFunc[T]) *string {
	ts, id := key(item)
	token := Encode(Cursor{LastValue: ts, LastID: id, Direction: dir})
	return &token
}
