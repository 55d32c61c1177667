package cluster

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes each column to zero mean and unit population
// variance. Columns with zero variance get a scale of 1.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitScaler computes column means and population standard deviations of X.
func FitScaler(X [][]float64) Scaler {
	if len(X) == 0 {
		return Scaler{}
	}
	dims := len(X[0])
	s := Scaler{Mean: make([]float64, dims), Scale: make([]float64, dims)}

	col := make([]float64, len(X))
	for j := 0; j < dims; j++ {
		for i, row := range X {
			col[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.Mean[j] = mean
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.Scale[j] = std
	}
	return s
}

// Dims returns the number of columns the scaler was fitted on.
func (s Scaler) Dims() int { return len(s.Mean) }

// Transform returns (x - mean) / scale.
func (s Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// TransformAll applies Transform to every row.
func (s Scaler) TransformAll(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = s.Transform(row)
	}
	return out
}

// Inverse maps a standardized vector back to raw feature units.
func (s Scaler) Inverse(z []float64) []float64 {
	out := make([]float64, len(z))
	for j, v := range z {
		out[j] = v*s.Scale[j] + s.Mean[j]
	}
	return out
}

// Validate checks the scaler has dims columns of finite values with
// non-zero scale.
func (s Scaler) Validate(dims int) error {
	if len(s.Mean) != dims || len(s.Scale) != dims {
		return fmt.Errorf("scaler has %d/%d columns, want %d", len(s.Mean), len(s.Scale), dims)
	}
	for j := range dims {
		if !finite(s.Mean[j]) || !finite(s.Scale[j]) || s.Scale[j] == 0 {
			return fmt.Errorf("scaler column %d is degenerate (mean=%v scale=%v)", j, s.Mean[j], s.Scale[j])
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
