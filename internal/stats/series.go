package stats

import (
	"golang.org/x/exp/constraints"

	"commcoop/internal/model"
)

type Number interface {
	constraints.Integer | constraints.Float
}

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean[T Number](values []T) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += float64(v)
	}
	return total / float64(len(values))
}

// Max returns the largest value, or the zero value for an empty slice.
func Max[T Number](values []T) T {
	var best T
	for i, v := range values {
		if i == 0 || v > best {
			best = v
		}
	}
	return best
}

// MovingAverage smooths values with a trailing window. The first window-1
// points average over what is available so far.
func MovingAverage[T Number](values []T, window int) []float64 {
	if window <= 1 {
		window = 1
	}
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += float64(v)
		if i >= window {
			sum -= float64(values[i-window])
		}
		n := i + 1
		if n > window {
			n = window
		}
		out[i] = sum / float64(n)
	}
	return out
}

// Series is the generation-indexed record of a run.
type Series []model.GenerationStats

func (s Series) Last() (model.GenerationStats, bool) {
	if len(s) == 0 {
		return model.GenerationStats{}, false
	}
	return s[len(s)-1], true
}

func (s Series) ProportionCooperate() []float64 {
	return s.column(func(g model.GenerationStats) float64 { return g.ProportionCooperate })
}

func (s Series) ProportionDefect() []float64 {
	return s.column(func(g model.GenerationStats) float64 { return g.ProportionDefect })
}

func (s Series) MeanChatLength() []float64 {
	return s.column(func(g model.GenerationStats) float64 { return g.MeanChatLength })
}

func (s Series) Diversity() []int {
	out := make([]int, len(s))
	for i, g := range s {
		out[i] = g.Diversity
	}
	return out
}

func (s Series) column(get func(model.GenerationStats) float64) []float64 {
	out := make([]float64, len(s))
	for i, g := range s {
		out[i] = get(g)
	}
	return out
}
