package utils

import (
	"math"
	"math/rand"
)

// briefSamplingSeed fixes the generator so descriptor sample layouts are
// reproducible across runs.
const briefSamplingSeed = 42

// SampleNIntegersUniform samples n integers uniformly in [vMin, vMax].
func SampleNIntegersUniform(n int, vMin, vMax float64) []int {
	//nolint:gosec
	r := rand.New(rand.NewSource(briefSamplingSeed))
	samples := make([]int, n)
	for i := range samples {
		samples[i] = int(math.Round(vMin + r.Float64()*(vMax-vMin)))
	}
	return samples
}

// SampleNIntegersNormal samples n integers from a normal distribution fitted
// so that nearly all mass lies in [vMin, vMax]; samples are clamped to that range.
func SampleNIntegersNormal(n int, vMin, vMax float64) []int {
	//nolint:gosec
	r := rand.New(rand.NewSource(briefSamplingSeed))
	mu := (vMin + vMax) / 2
	sigma := (vMax - vMin) / 4
	samples := make([]int, n)
	for i := range samples {
		v := math.Round(r.NormFloat64()*sigma + mu)
		samples[i] = int(ClampF64(v, vMin, vMax))
	}
	return samples
}

// SampleNRegularlySpaced returns n integers regularly spaced in [vMin, vMax].
func SampleNRegularlySpaced(n int, vMin, vMax float64) []int {
	step := (vMax - vMin) / float64(n)
	samples := make([]int, n)
	for i := range samples {
		samples[i] = int(math.Round(vMin + float64(i)*step))
	}
	return samples
}
