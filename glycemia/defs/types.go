package defs

import (
	"io"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reading is a single sensor glucose value in mg/dL.
type Reading struct {
	ID    *primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Time  time.Time           `bson:"time" json:"time"`
	Value float64             `bson:"value" json:"value"`
	Trend string              `bson:"trend,omitempty" json:"trend,omitempty"`
}

// Valid reports whether the value is finite and non-negative.
func (r Reading) Valid() bool {
	return !math.IsNaN(r.Value) && !math.IsInf(r.Value, 0) && r.Value >= 0
}

type TargetRange struct {
	Low  float64 `bson:"low" json:"low" yaml:"low"`
	High float64 `bson:"high" json:"high" yaml:"high"`
}

var DefaultTargetRange = TargetRange{Low: 70, High: 180}

func (tr TargetRange) Valid() bool {
	for _, v := range []float64{tr.Low, tr.High} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return tr.Low < tr.High
}

type Population string

const (
	Adult     Population = "adult"
	Pediatric Population = "pediatric"
	Elderly   Population = "elderly"
	Pregnancy Population = "pregnancy"
	Custom    Population = "custom"
)

type populationPreset struct {
	Range   TargetRange
	TIRGoal float64
}

var populations = map[Population]populationPreset{
	Adult:     {Range: TargetRange{Low: 70, High: 180}, TIRGoal: 70},
	Pediatric: {Range: TargetRange{Low: 70, High: 180}, TIRGoal: 60},
	Elderly:   {Range: TargetRange{Low: 70, High: 180}, TIRGoal: 50},
	Pregnancy: {Range: TargetRange{Low: 63, High: 140}, TIRGoal: 90},
}

// Discord message types, kept independent of arikawa.

type MessageData struct {
	Content         string
	Embeds          []EmbedData
	Files           []FileData
	MentionEveryone bool
}

type EmbedData struct {
	Title       string
	Description string
	Fields      []EmbedField
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

type FileData struct {
	Name   string
	Reader io.Reader
}

func EmptyEmbed() EmbedField {
	return EmbedField{Name: "\u200b", Value: "\u200b", Inline: true}
}
