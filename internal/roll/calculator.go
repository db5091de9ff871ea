// Package roll contains the pure threshold arithmetic that turns a point
// balance into a stacked roll range.
package roll

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Band is the fixed width of a stacked roll range below its maximum.
const Band = 100

// ErrNotNumeric is returned by ParsePoints when the input cannot be read
// as a number.
var ErrNotNumeric = errors.New("points value is not numeric")

// Calculator derives roll ranges from point balances. Points above
// ReserveThreshold are banked rather than rolled.
type Calculator struct {
	ReserveThreshold int
}

// RollPoints returns the portion of a balance actually used for rolling.
func (c Calculator) RollPoints(points int) int {
	return min(c.ReserveThreshold, points)
}

// Reserve returns the points banked above the rolling cap.
func (c Calculator) Reserve(points int) int {
	return max(0, points-c.ReserveThreshold)
}

// MaxStackedRoll returns the upper bound of the stacked roll range, never
// below 1.
func (c Calculator) MaxStackedRoll(points int) int {
	return max(1, min(c.ReserveThreshold, points))
}

// MinStackedRoll returns the lower bound of the stacked roll range, a fixed
// Band below the maximum and floored at 1.
func (c Calculator) MinStackedRoll(points int) int {
	return max(1, c.MaxStackedRoll(points)-Band)
}

// IsStackedRoll reports whether [low, high] is a legitimate stacked roll
// range for some point balance, as opposed to an ordinary roll.
func (c Calculator) IsStackedRoll(low, high int) bool {
	return high == c.MaxStackedRoll(high) &&
		high <= c.ReserveThreshold &&
		low == c.MinStackedRoll(high)
}

// ParsePoints reads a point value from imported text. Fractional values are
// floored, negative values clamp to 0, values beyond the int range clamp to
// MaxInt, and anything non-numeric (including NaN and infinities) fails with
// ErrNotNumeric.
func ParsePoints(raw string) (int, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, raw)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNotNumeric, raw)
	}
	f = math.Floor(f)
	// Converting an out-of-range float to int is not defined; clamp first.
	switch {
	case f <= 0:
		return 0, nil
	case f >= float64(math.MaxInt):
		return math.MaxInt, nil
	}
	return int(f), nil
}

// ClampPoints floors a point value at zero. Balances are never negative.
func ClampPoints(n int) int {
	return max(0, n)
}
