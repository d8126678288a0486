package routing

import "github.com/azybler/delivery_router/pkg/geo"

// MinHeap is a concrete-typed min-heap for the A* frontier.
// Avoids interface boxing overhead of container/heap.
type MinHeap struct {
	items []PQItem
}

// PQItem is a priority queue entry. Priority is cost-so-far plus the
// heuristic; Cost is the cost-so-far at push time, used to spot stale entries.
type PQItem struct {
	Coord    geo.Coord
	Cost     float64
	Priority float64
}

func (h *MinHeap) Len() int { return len(h.items) }

func (h *MinHeap) Push(c geo.Coord, cost, priority float64) {
	h.items = append(h.items, PQItem{Coord: c, Cost: cost, Priority: priority})
	h.siftUp(len(h.items) - 1)
}

func (h *MinHeap) Pop() PQItem {
	n := len(h.items)
	item := h.items[0]
	h.items[0] = h.items[n-1]
	h.items = h.items[:n-1]
	if len(h.items) > 0 {
		h.siftDown(0)
	}
	return item
}

// less orders by priority, then by coordinate so ties pop deterministically.
func (h *MinHeap) less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Coord.Compare(b.Coord) < 0
}

func (h *MinHeap) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.less(i, parent) {
			break
		}
		h.items[i], h.items[parent] = h.items[parent], h.items[i]
		i = parent
	}
}

func (h *MinHeap) siftDown(i int) {
	n := len(h.items)
	for {
		smallest := i
		left := 2*i + 1
		right := 2*i + 2
		if left < n && h.less(left, smallest) {
			smallest = left
		}
		if right < n && h.less(right, smallest) {
			smallest = right
		}
		if smallest == i {
			break
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}
