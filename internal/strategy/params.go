package strategy

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParamSource serves per-strategy parameter overrides by strategy name.
// Strategies keep their built-in defaults for anything the source omits.
type ParamSource interface {
	Params(name string) map[string]decimal.Decimal
}

// StaticParams is a fixed strategy-name -> parameters table. Lookup is
// case-insensitive, matching the catalog's name handling.
type StaticParams map[string]map[string]decimal.Decimal

// NewStaticParams converts the raw configuration shape (strategy name ->
// parameter name -> value) into a lookup table.
func NewStaticParams(raw map[string]map[string]float64) StaticParams {
	table := make(StaticParams, len(raw))
	for name, values := range raw {
		params := make(map[string]decimal.Decimal, len(values))
		for key, value := range values {
			params[strings.ToLower(key)] = decimal.NewFromFloat(value)
		}
		table[strings.ToLower(strings.TrimSpace(name))] = params
	}
	return table
}

func (p StaticParams) Params(name string) map[string]decimal.Decimal {
	return p[strings.ToLower(strings.TrimSpace(name))]
}
