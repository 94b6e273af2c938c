package choke

import (
	"math"
	"time"
)

// Estimator returns the new average queue size after folding in the sample
// nQueued. m is the number of samples the old average is aged by: 1 for a
// back to back arrival, more when packets would have arrived and left while
// the queue was idle.
func Estimator(qAvg float64, nQueued int, m float64, weight float64) float64 {
	return qAvg*math.Pow(1.0-weight, m) + weight*float64(nQueued)
}

// avgEstimator tracks the EWMA of the queue size.
type avgEstimator struct {
	qAvg   float64
	weight float64
	// ptc is the link's packet rate in packets per second.
	ptc float64

	idle      bool
	idleSince time.Time
}

func newAvgEstimator(weight float64, bandwidth Bitrate, meanPktSize int) avgEstimator {
	return avgEstimator{
		weight: weight,
		ptc:    float64(bandwidth) / (8.0 * float64(meanPktSize)),
		idle:   true,
	}
}

// update folds an arrival that found nQueued in the queue into the average.
func (e *avgEstimator) update(nQueued int, now time.Time) float64 {
	e.qAvg = Estimator(e.qAvg, nQueued, e.samples(now), e.weight)
	e.idle = false
	return e.qAvg
}

// samples returns the aging exponent for an arrival at now.
func (e *avgEstimator) samples(now time.Time) float64 {
	if !e.idle || e.idleSince.IsZero() {
		return 1
	}
	idle := now.Sub(e.idleSince)
	if idle <= 0 {
		return 1
	}
	return math.Floor(e.ptc*idle.Seconds()) + 1
}

// markIdle records that the queue drained at now.
func (e *avgEstimator) markIdle(now time.Time) {
	e.idle = true
	e.idleSince = now
}
