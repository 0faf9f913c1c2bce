package model

import "math/rand"

// Queue is the ordered playback queue plus repeat/shuffle state (spec.md §3).
// Invariant: 0 <= CurrentIndex < len(Items) whenever Items is non-empty.
type Queue struct {
	Items        []QueueItem
	RepeatMode   RepeatMode
	Shuffle      bool
	CurrentIndex int

}

// NewQueue builds a Queue positioned at startIndex (clamped into range).
func NewQueue(items []QueueItem, startIndex int) *Queue {
	q := &Queue{Items: items}
	if startIndex < 0 {
		startIndex = 0
	}
	if len(items) > 0 && startIndex >= len(items) {
		startIndex = len(items) - 1
	}
	q.CurrentIndex = startIndex
	return q
}

// Current returns the item at CurrentIndex, or ok=false if the queue is empty.
func (q *Queue) Current() (QueueItem, bool) {
	if len(q.Items) == 0 {
		return QueueItem{}, false
	}
	return q.Items[q.CurrentIndex], true
}

// SetShuffle rewrites Items' effective order while preserving which
// QueueItem CurrentIndex points at (spec.md §3 invariant, and §8 testable
// property 3: toggling shuffle twice returns to an order with the same
// current item).
func (q *Queue) SetShuffle(on bool, rng *rand.Rand) {
	if q.Shuffle == on {
		return
	}
	if len(q.Items) == 0 {
		q.Shuffle = on
		return
	}

	currentItem := q.Items[q.CurrentIndex]

	if on {
		if rng == nil {
			rng = rand.New(rand.NewSource(1))
		}
		perm := rng.Perm(len(q.Items))
		newItems := make([]QueueItem, len(q.Items))
		for i, srcIdx := range perm {
			newItems[i] = q.Items[srcIdx]
		}
		q.Items = newItems
	}
	// Turning shuffle off intentionally leaves Items in their last-seen
	// order (there is no separately stored "original" order once shuffled);
	// what matters for the invariant is that CurrentIndex still names the
	// same QueueItem after the toggle, which the lookup below guarantees.

	q.Shuffle = on
	q.CurrentIndex = q.indexOf(currentItem)
}

func (q *Queue) indexOf(item QueueItem) int {
	for i, it := range q.Items {
		if it.TrackID == item.TrackID && it.PositionInQueue == item.PositionInQueue {
			return i
		}
	}
	return 0
}

// Next advances the queue per RepeatMode, returning the new current item and
// whether playback should continue (false means "stop": repeat-off reached
// the end).
func (q *Queue) Next() (QueueItem, bool) {
	if len(q.Items) == 0 {
		return QueueItem{}, false
	}

	switch q.RepeatMode {
	case RepeatOne:
		item, _ := q.Current()
		return item, true
	case RepeatAll:
		q.CurrentIndex = (q.CurrentIndex + 1) % len(q.Items)
		item, _ := q.Current()
		return item, true
	default: // RepeatOff
		if q.CurrentIndex+1 >= len(q.Items) {
			return QueueItem{}, false
		}
		q.CurrentIndex++
		item, _ := q.Current()
		return item, true
	}
}

// Prev rewinds the queue one position. At the start it wraps to the last
// item under RepeatAll and stays on the first item otherwise.
func (q *Queue) Prev() (QueueItem, bool) {
	if len(q.Items) == 0 {
		return QueueItem{}, false
	}
	if q.CurrentIndex > 0 {
		q.CurrentIndex--
	} else if q.RepeatMode == RepeatAll {
		q.CurrentIndex = len(q.Items) - 1
	}
	item, _ := q.Current()
	return item, true
}

// PeekNext returns what Next() would move to, without mutating the queue.
// Used by the player's preload policy (spec.md §4.6).
func (q *Queue) PeekNext() (QueueItem, bool) {
	if len(q.Items) == 0 {
		return QueueItem{}, false
	}
	switch q.RepeatMode {
	case RepeatOne:
		return q.Current()
	case RepeatAll:
		idx := (q.CurrentIndex + 1) % len(q.Items)
		return q.Items[idx], true
	default:
		if q.CurrentIndex+1 >= len(q.Items) {
			return QueueItem{}, false
		}
		return q.Items[q.CurrentIndex+1], true
	}
}
