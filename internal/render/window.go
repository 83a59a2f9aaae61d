// Package render computes the visible window over an event log. Only the
// rows intersecting the viewport are materialized, so the cost of a redraw
// is bounded by the viewport height rather than the log length.
package render

import (
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/weiawesome/chatter/internal/chatlog"
	"github.com/weiawesome/chatter/internal/domain"
)

const (
	chatRowBaseHeight = 32
	presenceRowHeight = 20
	charCellWidth     = 8

	defaultViewportWidth  = 800
	defaultViewportHeight = 600
)

// ScrollToEnd is an offset past any reachable height. Passing it to a
// window method pins the view to the newest entry.
const ScrollToEnd = 1 << 30

// Window memoizes per-entry height estimates and their prefix sums over a
// log it does not own. Estimates depend on viewport width, so a width
// change discards them and remeasures from index 0.
type Window struct {
	log *chatlog.Log

	mu      sync.Mutex
	width   int
	height  int
	heights []int
	offsets []int // offsets[i] is the top of entry i; len(offsets) == len(heights)+1
}

func NewWindow(l *chatlog.Log) *Window {
	return &Window{
		log:     l,
		width:   defaultViewportWidth,
		height:  defaultViewportHeight,
		offsets: []int{0},
	}
}

// SetViewport records the viewport dimensions. A width change invalidates
// every memoized height; a height-only change keeps them.
func (w *Window) SetViewport(width, height int) {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if width != w.width {
		w.heights = w.heights[:0]
		w.offsets = w.offsets[:1]
	}
	w.width = width
	w.height = height
}

func (w *Window) Viewport() (width, height int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width, w.height
}

// TotalHeight is the summed height of every entry at the current width.
func (w *Window) TotalHeight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.measure()
	return w.offsets[len(w.offsets)-1]
}

// BottomOffset is the scroll offset that aligns the newest entry with the
// bottom edge of the viewport.
func (w *Window) BottomOffset() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.measure()
	return w.clamp(ScrollToEnd)
}

// VisibleRange returns the half-open entry index range [start, end)
// intersecting the viewport at the given scroll offset.
func (w *Window) VisibleRange(offset int) (start, end int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.measure()
	return w.visibleRange(w.clamp(offset))
}

// Snapshot materializes the rows visible at the given offset. ScrollToEnd
// (or any offset past the bottom) anchors the window to the newest entry.
// It cannot fail; a stale height estimate merely shifts rows until the
// next measure.
func (w *Window) Snapshot(offset int) domain.WindowMessage {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.measure()

	off := w.clamp(offset)
	start, end := w.visibleRange(off)

	rows := make([]domain.WindowRow, 0, end-start)
	entries := w.log.Slice(start, end)
	for i, e := range entries {
		idx := start + i
		if idx >= len(w.heights) {
			break
		}
		rows = append(rows, domain.WindowRow{
			Index:  idx,
			Entry:  e,
			Top:    w.offsets[idx],
			Height: w.heights[idx],
		})
	}

	return domain.WindowMessage{
		Type:        domain.MsgTypeWindow,
		TotalHeight: w.offsets[len(w.offsets)-1],
		Offset:      off,
		Rows:        rows,
	}
}

// measure extends the memoized heights to cover every log entry. The log
// only ever grows, except for Clear, which resets the memo entirely.
func (w *Window) measure() {
	n := w.log.Len()
	if n < len(w.heights) {
		w.heights = w.heights[:0]
		w.offsets = w.offsets[:1]
	}
	for i := len(w.heights); i < n; i++ {
		e, ok := w.log.At(i)
		if !ok {
			break
		}
		h := w.estimate(e)
		w.heights = append(w.heights, h)
		w.offsets = append(w.offsets, w.offsets[len(w.offsets)-1]+h)
	}
}

// estimate approximates a rendered row height. Presence rows are a fixed
// small height. Chat rows wrap: the line count comes from the character
// count of "username: body" over the columns that fit the current width,
// which keeps the estimate non-decreasing in content length and
// non-increasing in width.
func (w *Window) estimate(e domain.Entry) int {
	if e.Kind != domain.KindChat {
		return presenceRowHeight
	}
	cols := w.width / charCellWidth
	if cols < 1 {
		cols = 1
	}
	runes := utf8.RuneCountInString(e.Username) + 2 + utf8.RuneCountInString(e.Body)
	lines := (runes + cols - 1) / cols
	if lines < 1 {
		lines = 1
	}
	return lines * chatRowBaseHeight
}

func (w *Window) clamp(offset int) int {
	bottom := w.offsets[len(w.offsets)-1] - w.height
	if offset > bottom {
		offset = bottom
	}
	if offset < 0 {
		offset = 0
	}
	return offset
}

func (w *Window) visibleRange(offset int) (int, int) {
	n := len(w.heights)
	if n == 0 {
		return 0, 0
	}
	// First entry whose bottom edge lies below the top of the viewport.
	start := sort.Search(n, func(i int) bool {
		return w.offsets[i+1] > offset
	})
	// First entry whose top edge lies below the bottom of the viewport.
	end := sort.Search(n, func(i int) bool {
		return w.offsets[i] >= offset+w.height
	})
	return start, end
}
