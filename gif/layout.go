package gif

import "slices"

// Breakpoints maps a minimum container width to a column count.
type Breakpoints map[int]int

// DefaultBreakpoints returns {128:2, 256:3, 512:4, 768:5}.
func DefaultBreakpoints() Breakpoints {
	return Breakpoints{
		128: 2,
		256: 3,
		512: 4,
		768: 5,
	}
}

// Columns returns the column count of the largest breakpoint not wider than width.
// When width is below every breakpoint the largest breakpoint's count is used.
func (b Breakpoints) Columns(width int) int {
	widths := make([]int, 0, len(b))
	for w := range b {
		widths = append(widths, w)
	}
	slices.Sort(widths)

	cols, last := 0, 1
	for _, w := range widths {
		last = b[w]
		if width >= w {
			cols = last
		}
	}

	if cols <= 0 {
		cols = last
	}
	return max(cols, 1)
}

// Scroll is the scroll position of the result list.
type Scroll struct {
	Top          float64 `json:"top"`
	ScrollHeight float64 `json:"scroll_height"`
	ClientHeight float64 `json:"client_height"`
}

// Reached reports whether Top has reached threshold of the scrollable height.
func (s Scroll) Reached(threshold float64) bool {
	return s.Top >= (s.ScrollHeight-s.ClientHeight)*threshold
}
