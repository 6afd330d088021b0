package defs

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const DefaultDB = "ichor"

// DefaultCVTarget is the coefficient of variation ceiling when none is configured.
const DefaultCVTarget = 36

// Intervals.
const (
	LookbackInterval   = -24 * time.Hour
	DownloaderInterval = 1 * time.Minute
	AnalyzerInterval   = 1 * time.Hour
	TimeoutInterval    = 2 * time.Second
	FileTimeout        = 5 * time.Minute
)

// Channels.
const (
	ReportsChannel = "reports"
)

type Config struct {
	Dexcom   DexcomConfig  `yaml:"dexcom"`
	Discord  DiscordConfig `yaml:"discord"`
	Mongo    MongoConfig   `yaml:"mongo"`
	Glucose  GlucoseConfig `yaml:"glucose"`
	Batch    BatchConfig   `yaml:"batch"`
	HTTP     HTTPConfig    `yaml:"http"`
	Timezone string        `yaml:"timezone"`
	Logger   *zap.Logger   `yaml:"-"`
}

type DexcomConfig struct {
	Account  string `yaml:"account"`
	Password string `yaml:"password"`
}

type DiscordConfig struct {
	Token   string `yaml:"token"`
	Guild   string `yaml:"guild"`
	Channel string `yaml:"channel"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// GlucoseConfig resolves the target range. A known population overrides
// Low and High; "custom" (or empty with explicit bounds) keeps them.
// Goal and CV override the population's TIR goal and the CV ceiling.
type GlucoseConfig struct {
	Population Population `yaml:"population" validate:"omitempty,oneof=adult pediatric elderly pregnancy custom"`
	Low        float64    `yaml:"low" validate:"gte=0"`
	High       float64    `yaml:"high" validate:"gte=0"`
	Goal       float64    `yaml:"tirGoal" validate:"gte=0,lte=100"`
	CV         float64    `yaml:"cvTarget" validate:"gte=0,lte=100"`
}

type BatchConfig struct {
	MaxParallel int           `yaml:"maxParallel" validate:"gte=0,lte=64"`
	Timeout     time.Duration `yaml:"timeout" validate:"gte=0"`
	OutputDir   string        `yaml:"outputDir"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Range returns the target range the engine should use.
func (gc GlucoseConfig) Range() TargetRange {
	if p, ok := populations[gc.Population]; ok {
		return p.Range
	}
	if gc.Low == 0 && gc.High == 0 {
		return DefaultTargetRange
	}
	return TargetRange{Low: gc.Low, High: gc.High}
}

// TIRGoal returns the configured goal, or the time in range percentage
// recommended for the population.
func (gc GlucoseConfig) TIRGoal() float64 {
	if gc.Goal > 0 {
		return gc.Goal
	}
	if p, ok := populations[gc.Population]; ok {
		return p.TIRGoal
	}
	return populations[Adult].TIRGoal
}

func (gc GlucoseConfig) CVTarget() float64 {
	if gc.CV > 0 {
		return gc.CV
	}
	return DefaultCVTarget
}

// Validate checks struct tags and the resolved target range.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if tr := c.Glucose.Range(); !tr.Valid() {
		return fmt.Errorf("invalid config: target range %.1f-%.1f", tr.Low, tr.High)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
	}
	return nil
}

// Location returns the configured time zone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
