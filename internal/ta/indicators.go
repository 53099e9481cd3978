package ta

import (
	"math"
	"slices"

	"market-radar/internal/domain"
)

type Kind string

const (
	KindSMA Kind = "SMA"
	KindEMA Kind = "EMA"
)

const dateLayout = "2006-01-02"

type MovingAveragePoint struct {
	Date      string  `json:"date"`
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

type MovingAverages struct {
	Periods []int                        `json:"periods"`
	SMA     map[int][]MovingAveragePoint `json:"sma"`
	EMA     map[int][]MovingAveragePoint `json:"ema"`
}

// Series returns the points for one (kind, window) pair.
func (m MovingAverages) Series(kind Kind, window int) []MovingAveragePoint {
	switch kind {
	case KindSMA:
		return m.SMA[window]
	case KindEMA:
		return m.EMA[window]
	default:
		return nil
	}
}

// SimpleMovingAverage averages the trailing window closes for every index
// from window-1 onwards. Non-numeric closes count as zero but keep their slot.
func SimpleMovingAverage(series []domain.PricePoint, window int) []MovingAveragePoint {
	out := []MovingAveragePoint{}
	if window < 1 || len(series) < window {
		return out
	}

	// Sum each window independently.
	out = make([]MovingAveragePoint, 0, len(series)-window+1)
	for i := window - 1; i < len(series); i++ {
		var sum float64
		for _, p := range series[i-window+1 : i+1] {
			sum += numericClose(p)
		}
		out = append(out, newPoint(series[i], sum/float64(window)))
	}
	return out
}

// ExponentialMovingAverage seeds with the SMA of the first window points and
// then applies ema = close*k + ema*(1-k), k = 2/(window+1). Points with a
// non-numeric close are skipped without touching the running value.
func ExponentialMovingAverage(series []domain.PricePoint, window int) []MovingAveragePoint {
	out := []MovingAveragePoint{}
	if window < 1 || len(series) < window {
		return out
	}

	var seed float64
	for _, p := range series[:window] {
		seed += numericClose(p)
	}
	ema := seed / float64(window)
	k := 2.0 / float64(window+1)

	out = make([]MovingAveragePoint, 0, len(series)-window+1)
	out = append(out, newPoint(series[window-1], ema))
	for _, p := range series[window:] {
		if !isNumeric(p.Close) {
			continue
		}
		ema = p.Close*k + ema*(1-k)
		out = append(out, newPoint(p, ema))
	}
	return out
}

// ComputeMovingAverages builds SMA and EMA series for every distinct period.
// Non-positive periods are ignored.
func ComputeMovingAverages(series []domain.PricePoint, periods []int) MovingAverages {
	uniq := make([]int, 0, len(periods))
	for _, p := range periods {
		if p > 0 && !slices.Contains(uniq, p) {
			uniq = append(uniq, p)
		}
	}
	slices.Sort(uniq)

	result := MovingAverages{
		Periods: uniq,
		SMA:     make(map[int][]MovingAveragePoint, len(uniq)),
		EMA:     make(map[int][]MovingAveragePoint, len(uniq)),
	}
	for _, p := range uniq {
		result.SMA[p] = SimpleMovingAverage(series, p)
		result.EMA[p] = ExponentialMovingAverage(series, p)
	}
	return result
}

func newPoint(p domain.PricePoint, value float64) MovingAveragePoint {
	return MovingAveragePoint{
		Date:      p.Date.UTC().Format(dateLayout),
		Timestamp: p.Date.Unix(),
		Value:     round2(value),
	}
}

func numericClose(p domain.PricePoint) float64 {
	if !isNumeric(p.Close) {
		return 0
	}
	return p.Close
}

func isNumeric(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
