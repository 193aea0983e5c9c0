package shared

import "regexp"

var decimalPattern = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

// ValidDecimal reports whether s is a plain decimal literal. Monetary values
// travel as text end to end so their exact representation survives storage
// and audit snapshots.
func ValidDecimal(s string) bool {
	return decimalPattern.MatchString(s)
}
