// Package stats summarizes ownership distributions.
package stats

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a distribution of values. StdDev is the sample standard
// deviation and is zero for fewer than two values.
type Summary struct {
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summarize computes the summary of values.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{
		N:   len(values),
		Min: floats.Min(values),
		Max: floats.Max(values),
	}
	if len(values) == 1 {
		s.Mean = values[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	return s
}

// String renders the spread relative to the mean.
func (s Summary) String() string {
	if s.N == 0 || s.Mean == 0 {
		return fmt.Sprintf("n %d stddev %.4f", s.N, s.StdDev)
	}
	return fmt.Sprintf("max %.2f min %.2f stddev %.4f", s.Max/s.Mean, s.Min/s.Mean, s.StdDev)
}
