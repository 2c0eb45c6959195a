package measure

import (
	"context"
	"fmt"

	"mealweek/internal/database"
)

// LoadEngine reads the measure-type and converter tables and builds an Engine.
func LoadEngine(ctx context.Context, d *database.DB) (*Engine, error) {
	rows, err := d.SQL.QueryContext(ctx,
		"SELECT id, name, short_label, system, rounding_denominator FROM measure_types")
	if err != nil {
		return nil, fmt.Errorf("failed to load measure types: %w", err)
	}
	defer rows.Close()

	var types []Type
	for rows.Next() {
		var t Type
		if err := rows.Scan(&t.ID, &t.Name, &t.ShortLabel, &t.System, &t.RoundingDenominator); err != nil {
			return nil, fmt.Errorf("failed to scan measure type: %w", err)
		}
		types = append(types, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read measure types: %w", err)
	}

	convRows, err := d.SQL.QueryContext(ctx,
		"SELECT source_measure_id, target_measure_id, factor, convert_type FROM measure_converters")
	if err != nil {
		return nil, fmt.Errorf("failed to load measure converters: %w", err)
	}
	defer convRows.Close()

	var converters []Converter
	for convRows.Next() {
		var c Converter
		if err := convRows.Scan(&c.SourceID, &c.TargetID, &c.Factor, &c.Type); err != nil {
			return nil, fmt.Errorf("failed to scan measure converter: %w", err)
		}
		converters = append(converters, c)
	}
	if err := convRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read measure converters: %w", err)
	}

	return NewEngine(types, converters), nil
}
