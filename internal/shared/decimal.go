package shared

import (
	"errors"
	"math"
	"regexp"
	"strconv"
)

var (
	ErrNotDecimal        = errors.New("not an invariant decimal")
	ErrDecimalOutOfRange = errors.New("out of range")
)

// invariantDecimal is the only accepted numeric text form: optional sign,
// digits, optional '.' fraction and exponent. No grouping, no comma decimals,
// no NaN, Inf or hex.
var invariantDecimal = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// ParseDecimal parses s independent of any locale into a finite float.
func ParseDecimal(s string) (float64, error) {
	if !invariantDecimal.MatchString(s) {
		return 0, ErrNotDecimal
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, ErrDecimalOutOfRange
	}
	return f, nil
}
