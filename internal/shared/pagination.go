package shared

// ListWindow carries limit/offset extracted from a request. Limits are clamped
// so a single page can never exceed MaxPageSize rows.
type ListWindow struct {
	Limit  int
	Offset int
}

// MaxPageSize bounds a single listing page.
const MaxPageSize = 100

// NewListWindow normalises raw limit/offset values.
func NewListWindow(limit, offset int) ListWindow {
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return ListWindow{Limit: limit, Offset: offset}
}
