package auth

import "slices"

// missingPermissions returns the required actions not present in granted,
// preserving the order they were required in.
func missingPermissions(granted, required []string) []string {
	var missing []string
	for _, p := range required {
		if !slices.Contains(granted, p) {
			missing = append(missing, p)
		}
	}
	return missing
}

// hasAnyRole reports whether the caller holds at least one of the wanted roles.
func hasAnyRole(have, want []string) bool {
	for _, w := range want {
		if slices.Contains(have, w) {
			return true
		}
	}
	return false
}
