package defs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gopkg.in/yaml.v3"
)

func TestGlucoseConfigRange(t *testing.T) {
	tests := []struct {
		name string
		gc   GlucoseConfig
		want TargetRange
		goal float64
	}{
		{"default", GlucoseConfig{}, DefaultTargetRange, 70},
		{"pregnancy", GlucoseConfig{Population: Pregnancy, Low: 10, High: 20}, TargetRange{Low: 63, High: 140}, 90},
		{"elderly", GlucoseConfig{Population: Elderly}, DefaultTargetRange, 50},
		{"custom", GlucoseConfig{Population: Custom, Low: 80, High: 160}, TargetRange{Low: 80, High: 160}, 70},
		{"custom goal", GlucoseConfig{Population: Custom, Low: 80, High: 160, Goal: 60}, TargetRange{Low: 80, High: 160}, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.gc.Range())
			assert.Equal(t, tt.goal, tt.gc.TIRGoal())
		})
	}
}

func TestGlucoseConfigCVTarget(t *testing.T) {
	assert.Equal(t, 36.0, GlucoseConfig{}.CVTarget())
	assert.Equal(t, 33.0, GlucoseConfig{Population: Custom, CV: 33}.CVTarget())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, (&Config{}).Validate())
	assert.NoError(t, (&Config{Glucose: GlucoseConfig{Population: Pediatric}, Timezone: "America/Toronto"}).Validate())

	assert.Error(t, (&Config{Glucose: GlucoseConfig{Population: "toddler"}}).Validate())
	assert.Error(t, (&Config{Glucose: GlucoseConfig{Population: Custom, Low: 180, High: 70}}).Validate())
	assert.Error(t, (&Config{Batch: BatchConfig{MaxParallel: -1}}).Validate())
	assert.Error(t, (&Config{Timezone: "Mars/Olympus"}).Validate())
	assert.Error(t, (&Config{Glucose: GlucoseConfig{Goal: 120}}).Validate())
	assert.Error(t, (&Config{Glucose: GlucoseConfig{CV: -1}}).Validate())
}

func TestConfigYAML(t *testing.T) {
	in := `
glucose:
  population: custom
  low: 72
  high: 162
  tirGoal: 65
  cvTarget: 33
batch:
  maxParallel: 8
  timeout: 90s
timezone: UTC
`
	var c Config
	assert.NoError(t, yaml.Unmarshal([]byte(in), &c))
	assert.NoError(t, c.Validate())
	assert.Equal(t, TargetRange{Low: 72, High: 162}, c.Glucose.Range())
	assert.Equal(t, 65.0, c.Glucose.TIRGoal())
	assert.Equal(t, 33.0, c.Glucose.CVTarget())
	assert.Equal(t, 90*time.Second, c.Batch.Timeout)
	assert.Equal(t, time.UTC, c.Location())
}

func TestTargetRangeValid(t *testing.T) {
	assert.True(t, DefaultTargetRange.Valid())
	assert.False(t, TargetRange{Low: 100, High: 100}.Valid())
}
