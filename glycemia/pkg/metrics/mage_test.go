package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExcursionStateStep(t *testing.T) {
	values := []float64{100, 100.5, 150, 200, 120, 125}
	threshold := 10.0

	var s ExcursionState
	var amp float64
	var reversed bool

	// Noise leaves the state alone.
	s, _, reversed = s.Step(values, 1, threshold)
	assert.Equal(t, ExcursionState{Direction: Undetermined}, s)
	assert.False(t, reversed)

	// First significant delta fixes the direction.
	s, _, reversed = s.Step(values, 2, threshold)
	assert.Equal(t, ExcursionState{Direction: Rising, Start: 1}, s)
	assert.False(t, reversed)

	// Same direction continues the swing.
	s, _, reversed = s.Step(values, 3, threshold)
	assert.Equal(t, ExcursionState{Direction: Rising, Start: 1}, s)
	assert.False(t, reversed)

	// Reversal closes the swing from index 1 to index 3.
	s, amp, reversed = s.Step(values, 4, threshold)
	assert.True(t, reversed)
	assert.InDelta(t, 99.5, amp, 1e-9)
	assert.Equal(t, ExcursionState{Direction: Falling, Start: 3}, s)

	s, _, reversed = s.Step(values, 5, threshold)
	assert.False(t, reversed)
	assert.Equal(t, Falling, s.Direction)
}

func TestMAGE(t *testing.T) {
	tests := []struct {
		name          string
		values        []float64
		mean          float64
		count         int
		lowConfidence bool
	}{
		{"empty", nil, 0, 0, true},
		{"single", []float64{100}, 0, 0, true},
		{"constant", []float64{120, 120, 120, 120, 120}, 0, 0, true},
		{"alternating", []float64{40, 250, 40, 250, 40, 250, 40, 250, 40, 250}, 210, 8, false},
		{"monotonic", []float64{40, 140, 240, 340}, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := MAGE(tt.values)
			assert.InDelta(t, tt.mean, ex.Mean, 1e-9)
			assert.Equal(t, tt.count, ex.Count)
			assert.Equal(t, tt.lowConfidence, ex.LowConfidence)
		})
	}
}

func TestMAGESmallReversalIgnored(t *testing.T) {
	// The 40 mg/dL blip stays under the SD threshold and is noise.
	values := []float64{0, 0, 0, 40, 0, 0, 0, 200, 0}
	ex := MAGE(values)
	assert.Greater(t, ex.Threshold, 40.0)
	assert.Equal(t, 1, ex.Count)
	assert.InDelta(t, 200, ex.Mean, 1e-9)
}
