// Package measure implements the measurement conversion engine: directed
// single-hop unit conversions over a configured converter table, plus the
// display rounding rules for shopping-friendly quantities.
package measure

import (
	"fmt"
	"math"

	"mealweek/internal/shared"
)

// System classifies a measure type.
type System int

const (
	SystemUnknown System = iota
	SystemMetric
	SystemImperial
)

// ConvertType classifies a conversion edge.
type ConvertType int

const (
	ConvertUnknown ConvertType = iota
	// ConvertSystem is an exact factor multiplication (grams to ounces).
	ConvertSystem
	// ConvertUpscale converts to a coarser shopping unit and applies only
	// when the result reaches one whole target unit.
	ConvertUpscale
)

// Type describes a unit of measure.
type Type struct {
	ID         int64
	Name       string
	ShortLabel string
	System     System
	// RoundingDenominator is the display scale: 4 rounds to quarters,
	// 3 to thirds, 0 leaves the amount untouched.
	RoundingDenominator int
}

// Converter is a directed edge in the conversion table.
type Converter struct {
	SourceID int64
	TargetID int64
	Factor   float64
	Type     ConvertType
}

type edgeKey struct {
	source int64
	target int64
}

// Engine converts quantities between measures using direct edges only; there
// is no multi-hop path search.
type Engine struct {
	types map[int64]Type
	edges map[edgeKey]Converter
}

// NewEngine builds an engine from a measure-type list and a converter table.
func NewEngine(types []Type, converters []Converter) *Engine {
	e := &Engine{
		types: make(map[int64]Type, len(types)),
		edges: make(map[edgeKey]Converter, len(converters)),
	}
	for _, t := range types {
		e.types[t.ID] = t
	}
	for _, c := range converters {
		e.edges[edgeKey{c.SourceID, c.TargetID}] = c
	}
	return e
}

// Conversion is the outcome of a Convert call. MeasureID is the measure the
// amount ended up in: the target for applied conversions, the source when an
// upscale stayed below its threshold.
type Conversion struct {
	Amount    float64
	MeasureID int64
}

// Convert converts amount from the source measure to the target measure.
// Identity conversions always succeed. An upscale edge whose result would be
// below one target unit leaves the amount in the source measure.
func (e *Engine) Convert(amount float64, sourceID, targetID int64) (Conversion, error) {
	if sourceID == targetID {
		return Conversion{Amount: amount, MeasureID: sourceID}, nil
	}

	conv, ok := e.edges[edgeKey{sourceID, targetID}]
	if !ok || conv.Type == ConvertUnknown {
		return Conversion{}, fmt.Errorf("measure %d to %d: %w", sourceID, targetID, shared.ErrNoConversionPath)
	}

	converted := amount * conv.Factor
	if conv.Type == ConvertUpscale && converted < 1 {
		return Conversion{Amount: amount, MeasureID: sourceID}, nil
	}
	return Conversion{Amount: converted, MeasureID: targetID}, nil
}

// Round snaps amount to the measure's display scale. Intermediate sums must
// never be rounded; callers apply this only when producing a user-facing
// quantity.
func (e *Engine) Round(amount float64, measureID int64) float64 {
	t, ok := e.types[measureID]
	if !ok || t.RoundingDenominator == 0 {
		return amount
	}
	d := float64(t.RoundingDenominator)
	return math.Round(amount*d) / d
}

// Type returns the measure type record for id.
func (e *Engine) Type(id int64) (Type, bool) {
	t, ok := e.types[id]
	return t, ok
}

// Label returns the short display label for a measure, or an empty string for
// an unknown id.
func (e *Engine) Label(id int64) string {
	return e.types[id].ShortLabel
}
