package database

const (
	SortCreatedDesc = "created_desc"
	SortCreatedAsc  = "created_asc"
	SortFilenameNat = "filename_nat"
)

// DefaultSortOrder is newest-first, matching the gallery index view.
const DefaultSortOrder = SortCreatedDesc

// IsValidSortOrder checks if a string is a valid sort order constant
func IsValidSortOrder(order string) bool {
	switch order {
	case SortCreatedDesc, SortCreatedAsc, SortFilenameNat:
		return true
	default:
		return false
	}
}
