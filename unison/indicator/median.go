package indicator

import "math"

// Median maintains the running median of the last n pushed values in
// O(log n) per push. Based on the paired-heap mediator by Colin Raffel
// (https://github.com/craffel/median-filter, MIT).
//
// The two heaps share one contiguous array addressed with a zero-centred
// index: a min-heap on [1..n/2] holds the upper half, a max-heap on
// [-n/2..-1] holds the lower half and index 0 holds the pivot. pos tracks
// the heap index of every data slot so the value overwritten on window
// wrap-around can be located and re-sifted in place.
type Median struct {
	data  []float64
	pos   []int // heap index per data slot
	heap  []int // data slot per heap index, offset by size/2
	size  int
	minCt int
	maxCt int
	idx   int // data slot the next push overwrites
	count int
}

func NewMedian(n int) (*Median, error) {
	if n < 1 || n == math.MaxInt {
		return nil, ErrInvalidSize
	}
	m := &Median{
		data: make([]float64, n),
		pos:  make([]int, n),
		heap: make([]int, n),
		size: n,
	}
	// Seed the heap map so slot i lands on heap index ceil(i/2),
	// alternating between the min and max side. The balanced layout is
	// what keeps the sift invariants intact before saturation.
	for i := 0; i < n; i++ {
		el := (i + 1) / 2
		if i&1 != 0 {
			el = -el
		}
		m.pos[i] = el
		m.setHeap(el, i)
	}
	return m, nil
}

func (m *Median) heapAt(i int) int {
	return m.heap[i+m.size/2]
}

func (m *Median) setHeap(i, slot int) {
	m.heap[i+m.size/2] = slot
}

func (m *Median) less(i, j int) bool {
	return m.data[m.heapAt(i)] < m.data[m.heapAt(j)]
}

func (m *Median) exchange(i, j int) {
	hi, hj := m.heapAt(i), m.heapAt(j)
	m.setHeap(i, hj)
	m.setHeap(j, hi)
	m.pos[hi] = j
	m.pos[hj] = i
}

// cmpExch swaps the elements at heap indices i and j when i sorts below j.
func (m *Median) cmpExch(i, j int) bool {
	if m.less(i, j) {
		m.exchange(i, j)
		return true
	}
	return false
}

func (m *Median) minSortUp(i int) bool {
	for i > 0 && m.cmpExch(i, i/2) {
		i /= 2
	}
	return i == 0
}

func (m *Median) minSortDown(i int) {
	for {
		i *= 2
		if i > m.minCt {
			return
		}
		if i < m.minCt && m.less(i+1, i) {
			i++
		}
		if !m.cmpExch(i, i/2) {
			return
		}
	}
}

func (m *Median) maxSortUp(i int) bool {
	for i < 0 && m.cmpExch(i/2, i) {
		i /= 2
	}
	return i == 0
}

func (m *Median) maxSortDown(i int) {
	for {
		i *= 2
		if i < -m.maxCt {
			return
		}
		if i > -m.maxCt && m.less(i, i-1) {
			i--
		}
		if !m.cmpExch(i/2, i) {
			return
		}
	}
}

func (m *Median) Push(v float64) {
	p := m.pos[m.idx]
	old := m.data[m.idx]
	if m.count <= m.idx {
		m.count++
	}
	m.data[m.idx] = v
	m.idx = (m.idx + 1) % m.size
	switch {
	case p > 0: // slot sits in the min heap
		if m.minCt < (m.size-1)/2 {
			m.minCt++
		} else if v > old {
			m.minSortDown(p)
			return
		}
		if m.minSortUp(p) && m.cmpExch(0, -1) {
			m.maxSortDown(-1)
		}
	case p < 0: // slot sits in the max heap
		if m.maxCt < m.size/2 {
			m.maxCt++
		} else if v < old {
			m.maxSortDown(p)
			return
		}
		if m.maxSortUp(p) && m.minCt != 0 && m.cmpExch(1, 0) {
			m.minSortDown(1)
		}
	default: // slot is the pivot
		if m.maxCt != 0 && m.maxSortUp(-1) {
			m.maxSortDown(-1)
		}
		if m.minCt != 0 && m.minSortUp(1) {
			m.minSortDown(1)
		}
	}
}

// Value reports the median of the current window contents: the pivot when
// the window holds an odd count, otherwise the mean of the pivot and the
// top of the max heap.
func (m *Median) Value() (float64, bool) {
	if m.count == 0 {
		return 0, false
	}
	v := m.data[m.heapAt(0)]
	if m.minCt < m.maxCt {
		return (v + m.data[m.heapAt(-1)]) / 2, true
	}
	return v, true
}
