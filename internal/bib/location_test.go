package bib

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsOffsiteLocation(t *testing.T) {
	tests := []struct {
		code    string
		offsite bool
	}{
		{"off,glx", true},
		{"off,ave", true},
		{"OFF,GLX", true},
		{"scsb-nypl", true},
		{"scsb-pul", true},
		{"scsbhl", true},
		{"glx", false},
		{"avery", false},
		{"", false},
		{"xoff", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.offsite, IsOffsiteLocation(tt.code), "code %q", tt.code)
	}
}

func TestLocations_IsClancyLocation(t *testing.T) {
	locations := NewLocations([]string{"off,avda", "off,far"})

	assert.True(t, locations.IsClancyLocation("off,avda"))
	assert.True(t, locations.IsClancyLocation("off,far"))
	assert.False(t, locations.IsClancyLocation("off,glx"))
	assert.False(t, locations.IsClancyLocation(""))

	// A nil table classifies nothing as Clancy.
	var none *Locations
	assert.False(t, none.IsClancyLocation("off,avda"))
}
