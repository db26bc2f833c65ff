package mailbox

import (
	"errors"
	"fmt"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 50

// PageSizes lists the allowed page sizes in ascending order.
var PageSizes = []int{25, 50, 100, 200}

// ErrInvalidPageSize is returned when a page size is not one of PageSizes.
var ErrInvalidPageSize = errors.New("invalid page size")

// ValidPageSize reports whether n is one of PageSizes.
func ValidPageSize(n int) bool {
	for _, s := range PageSizes {
		if s == n {
			return true
		}
	}
	return false
}

// ClampPageSize returns the allowed page size closest to n. Values <= 0
// map to DefaultPageSize; ties resolve to the smaller size.
func ClampPageSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	best := PageSizes[0]
	for _, s := range PageSizes[1:] {
		if abs(s-n) < abs(best-n) {
			best = s
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Window is the pagination window of one view.
//
// Total is the result count of the whole mailbox or search (not the page)
// and Count the number of items on the page that was served.
type Window struct {
	Offset   int
	PageSize int
	Total    int
	Count    int
}

// NewWindow returns the first page at DefaultPageSize.
func NewWindow() Window {
	return Window{PageSize: DefaultPageSize}
}

// SetWindow returns w moved to offset with the given page size. Negative
// offsets become 0 and offsets are aligned down to a page boundary.
func (w Window) SetWindow(offset, pageSize int) (Window, error) {
	if !ValidPageSize(pageSize) {
		return w, fmt.Errorf("%w: %d (allowed %v)", ErrInvalidPageSize, pageSize, PageSizes)
	}
	if offset < 0 {
		offset = 0
	}
	w.PageSize = pageSize
	w.Offset = offset - offset%pageSize
	return w, nil
}

// ApplyFetchResult records a server response. The server's offset replaces
// the client's: a stale client offset may point past the end after remote
// deletions. The second return value reports that the served page is empty
// although it is not the first one, and the caller must prune.
func (w Window) ApplyFetchResult(total, count, serverOffset int) (Window, bool) {
	w.Total = total
	w.Count = count
	w.Offset = serverOffset
	return w, count == 0 && serverOffset > 0
}

// Page returns the 1-based page number.
func (w Window) Page() int {
	if w.PageSize <= 0 {
		return 1
	}
	return w.Offset/w.PageSize + 1
}

// Pages returns the number of pages needed for Total, at least 1.
func (w Window) Pages() int {
	if w.PageSize <= 0 || w.Total <= 0 {
		return 1
	}
	return (w.Total + w.PageSize - 1) / w.PageSize
}

// HasNext reports whether a page exists after the current one.
func (w Window) HasNext() bool {
	return w.Offset+w.PageSize < w.Total
}

// HasPrevious reports whether the window is past the first page.
func (w Window) HasPrevious() bool {
	return w.Offset > 0
}

// NextOffset returns the offset of the following page.
func (w Window) NextOffset() int {
	return w.Offset + w.PageSize
}

// PreviousOffset returns the offset of the preceding page, never below 0.
func (w Window) PreviousOffset() int {
	if w.Offset-w.PageSize < 0 {
		return 0
	}
	return w.Offset - w.PageSize
}

// FirstPage reports whether the window starts at offset 0.
func (w Window) FirstPage() bool {
	return w.Offset == 0
}
