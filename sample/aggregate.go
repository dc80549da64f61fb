// Package sample reduces the accepted frames of one capture attempt to a
// representative batch.
package sample

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// MinSamples is the smallest input Aggregate accepts.
const MinSamples = 3

var ErrInsufficientSamples = errors.New("insufficient samples")

// Sample is anything with a quality score.
type Sample interface {
	Quality() float64
}

// Batch is the first, last and best middle sample of a time ordered list.
type Batch[S Sample] struct {
	First      S
	Last       S
	BestMiddle S
	// BestMiddleIndex is the index of BestMiddle in the input.
	BestMiddleIndex int
	SampleCount     int
	// QualityVariance is the population standard deviation of quality over
	// every sample, first and last included.
	QualityVariance float64
}

// Aggregate builds a Batch from samples, which must be time ordered. It does
// not retain or modify samples.
func Aggregate[S Sample](samples []S) (*Batch[S], error) {
	n := len(samples)
	if n < MinSamples {
		return nil, errors.Wrapf(ErrInsufficientSamples, "Got %d samples, need %d", n, MinSamples)
	}

	qualities := make([]float64, n)
	for i, s := range samples {
		qualities[i] = s.Quality()
	}

	best := 1
	for i := 2; i <= n-2; i++ {
		if qualities[i] > qualities[best] {
			best = i
		}
	}

	return &Batch[S]{
		First:           samples[0],
		Last:            samples[n-1],
		BestMiddle:      samples[best],
		BestMiddleIndex: best,
		SampleCount:     n,
		QualityVariance: math.Sqrt(stat.PopVariance(qualities, nil)),
	}, nil
}
