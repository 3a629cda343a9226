package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickCamera(t *testing.T) {
	profiles := map[string]string{
		"Zoe":  "dev-3",
		"Emma": "dev-1",
		"Liam": "dev-2",
	}

	tests := []struct {
		name     string
		babyName string
		wantID   string
		wantName string
	}{
		{"exact match", "Liam", "dev-2", "Liam"},
		{"case-insensitive match", "emma", "dev-1", "Emma"},
		{"no match falls back to first by name", "Noah", "dev-1", "Emma"},
		{"empty name falls back to first by name", "", "dev-1", "Emma"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, name := pickCamera(profiles, tt.babyName)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestPickCameraIsStable(t *testing.T) {
	// Map iteration order varies between runs; the fallback must not.
	profiles := map[string]string{
		"Bea": "dev-b", "Ada": "dev-a", "Cal": "dev-c", "Dot": "dev-d",
	}
	for i := 0; i < 20; i++ {
		id, name := pickCamera(profiles, "")
		assert.Equal(t, "dev-a", id)
		assert.Equal(t, "Ada", name)
	}
}
