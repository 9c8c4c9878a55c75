package domain

import "time"

type Book struct {
	ID              int32      `json:"id"`
	Title           string     `json:"title"`
	Genre           string     `json:"genre,omitempty"`
	TotalCopies     int32      `json:"total_copies"`
	CopiesAvailable int32      `json:"copies_available"`
	CopiesOnRent    int32      `json:"copies_on_rent"`
	NextAvailableOn *time.Time `json:"next_available_on,omitempty"`
}

// CheckCounters verifies the inventory invariant available + on_rent == total.
func (b *Book) CheckCounters() error {
	if b.CopiesAvailable < 0 || b.CopiesOnRent < 0 {
		return InvariantViolation("book %d has negative counters (available=%d, on_rent=%d)", b.ID, b.CopiesAvailable, b.CopiesOnRent)
	}
	if b.CopiesAvailable+b.CopiesOnRent != b.TotalCopies {
		return InvariantViolation("book %d counters out of balance: %d + %d != %d", b.ID, b.CopiesAvailable, b.CopiesOnRent, b.TotalCopies)
	}
	return nil
}

type Author struct {
	ID      int32  `json:"id"`
	PenName string `json:"pen_name"`
	Email   string `json:"email"`
}
