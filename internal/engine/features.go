package engine

import (
	"fmt"
	"math"
)

// DefaultVectorSize is the feature vector length used unless configured.
const DefaultVectorSize = 128

const maxByte = 255.0

// FeatureVector is a fixed-length sequence of values in [0,1].
type FeatureVector []float64

// BuildFeatures stretches a digest into a vector of the given size. Element i
// is the mean of digest[i mod n] and digest[(i*3) mod n], scaled by 1/255.
func BuildFeatures(d Digest, size int) (FeatureVector, error) {
	if len(d) == 0 {
		return nil, ErrEmptyDigest
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSize, size)
	}

	n := len(d)
	v := make(FeatureVector, size)
	for i := range v {
		a := float64(d[i%n])
		b := float64(d[(i*3)%n])
		v[i] = (a + b) / 2 / maxByte
	}
	return v, nil
}

// Validate checks the vector has exactly size elements, all finite and in [0,1].
func (v FeatureVector) Validate(size int) error {
	if len(v) != size {
		return fmt.Errorf("%w: length %d, want %d", ErrInvalidFeatures, len(v), size)
	}
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 || x > 1 {
			return fmt.Errorf("%w: element %d = %v out of [0,1]", ErrInvalidFeatures, i, x)
		}
	}
	return nil
}

// Float32 converts the vector for float32 kernels.
func (v FeatureVector) Float32() []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
