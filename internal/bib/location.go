package bib

import "strings"

// IsOffsiteLocation reports whether a location code denotes offsite
// (ReCAP) storage. Any code beginning with "off" or "scsb" is offsite,
// case-insensitively. The check is pure: it depends only on the code.
func IsOffsiteLocation(code string) bool {
	lower := strings.ToLower(code)
	return strings.HasPrefix(lower, "off") || strings.HasPrefix(lower, "scsb")
}

// Locations carries location-code classification that cannot be derived
// from the code itself. It is built once at startup from configuration
// and read-only afterwards.
type Locations struct {
	clancy map[string]bool
}

// NewLocations builds a Locations table from the Clancy/CaiaSoft-managed
// location-code allow-list.
func NewLocations(clancyCodes []string) *Locations {
	clancy := make(map[string]bool, len(clancyCodes))
	for _, code := range clancyCodes {
		clancy[code] = true
	}
	return &Locations{clancy: clancy}
}

// IsClancyLocation reports whether material at this location is housed in a
// CaiaSoft-managed repository. This is independent of offsite status: a
// location is Clancy-managed only if it appears in the configured allow-list.
func (l *Locations) IsClancyLocation(code string) bool {
	if l == nil {
		return false
	}
	return l.clancy[code]
}
