package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidParam is returned when a parameter is missing its declared
	// range or is not recognised by the strategy kind.
	ErrInvalidParam = errors.New("invalid strategy parameter")

	// ErrUnknownKind is returned for an unregistered strategy identifier.
	ErrUnknownKind = errors.New("unknown strategy kind")
)

// ParamSpec declares one numeric parameter of a strategy kind.
type ParamSpec struct {
	Name        string  `json:"name"`
	Default     float64 `json:"default"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Integer     bool    `json:"integer"`
	Description string  `json:"description"`
}

// Params is a validated parameter set.
type Params map[string]float64

// Int returns the named parameter as an int.
func (p Params) Int(name string) int {
	return int(p[name])
}

// Decimal returns the named parameter as a decimal.
func (p Params) Decimal(name string) decimal.Decimal {
	return decimal.NewFromFloat(p[name])
}

// Validate fills defaults and checks every value against its declared range.
// Unknown names are rejected so typos in config do not pass silently.
func Validate(specs []ParamSpec, in map[string]float64) (Params, error) {
	known := make(map[string]ParamSpec, len(specs))
	out := make(Params, len(specs))
	for _, s := range specs {
		known[s.Name] = s
		out[s.Name] = s.Default
	}

	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic error reporting

	for _, name := range names {
		v := in[name]
		s, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q", ErrInvalidParam, name)
		}
		if math.IsNaN(v) || v < s.Min || v > s.Max {
			return nil, fmt.Errorf("%w: %s=%v outside [%v, %v]", ErrInvalidParam, name, v, s.Min, s.Max)
		}
		if s.Integer && v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: %s=%v must be an integer", ErrInvalidParam, name, v)
		}
		out[name] = v
	}
	return out, nil
}
