package domain

const (
	DefaultPageSize int32 = 20
	MaxPageSize     int32 = 100
)

// NormalizePage defaults a missing page to 1 and a missing page size to DefaultPageSize,
// and clamps larger page sizes to MaxPageSize.
func NormalizePage(page, pageSize int32) (int32, int32) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}
