// Package workload provides the synthetic CPU-bound work a scheduler cycle
// measures.
package workload

import (
	"math/rand/v2"

	"codeberg.org/mutker/telemetrylab/internal/errors"
)

const (
	// DefaultSize is the edge length of the convolution matrix.
	DefaultSize = 256

	minSize = 3
)

const ErrInvalidSize = errors.ErrorCode("workload_invalid_size")

// Workload performs one cycle's worth of work. Run must not block on I/O
// and must return in bounded time for a given intensity.
type Workload interface {
	Run(intensity int) error
}

// Func adapts a function to Workload.
type Func func(intensity int) error

func (f Func) Run(intensity int) error { return f(intensity) }

// laplacian is the 3x3 discrete Laplacian kernel.
var laplacian = [3][3]float32{
	{0, 1, 0},
	{1, -4, 1},
	{0, 1, 0},
}

// Convolution applies a 3x3 kernel across a freshly allocated random
// Size x Size matrix, intensity times.
type Convolution struct {
	Size int

	rng *rand.Rand
}

// NewConvolution creates a convolution workload. A non-positive size uses
// DefaultSize.
func NewConvolution(size int) (*Convolution, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if size < minSize {
		return nil, errors.New().WithData(ErrInvalidSize, size)
	}
	return &Convolution{
		Size: size,
		rng:  rand.New(rand.NewPCG(uint64(size), 0x5eed)),
	}, nil
}

// Run allocates the input and output matrices and performs intensity
// passes. Intensity below 1 is treated as 1.
func (c *Convolution) Run(intensity int) error {
	if c.Size < minSize {
		return errors.New().WithData(ErrInvalidSize, c.Size)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewPCG(uint64(c.Size), 0x5eed))
	}
	intensity = max(1, intensity)

	n := c.Size
	input := make([][]float32, n)
	output := make([][]float32, n)
	for i := range input {
		input[i] = make([]float32, n)
		output[i] = make([]float32, n)
		for j := range input[i] {
			input[i][j] = c.rng.Float32()
		}
	}

	for range intensity {
		convolve(input, output)
	}
	return nil
}

func convolve(input, output [][]float32) {
	n := len(input)
	for i := 1; i < n-1; i++ {
		for j := 1; j < n-1; j++ {
			var sum float32
			for ki := 0; ki < 3; ki++ {
				for kj := 0; kj < 3; kj++ {
					sum += input[i+ki-1][j+kj-1] * laplacian[ki][kj]
				}
			}
			output[i][j] = sum
		}
	}
}
