package choke

import (
	"math"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEstimator(t *testing.T) {
	require.InDelta(t, 0.02, Estimator(0, 10, 1, 0.002), 1e-12)
	require.InDelta(t, 10*0.998+0.002*10, Estimator(10, 10, 1, 0.002), 1e-12)
	// aging by several samples at once matches repeated empty samples
	want := 8.0
	for range 5 {
		want = Estimator(want, 0, 1, 0.1)
	}
	require.InDelta(t, want, Estimator(8, 0, 5, 0.1), 1e-12)
}

func TestEstimatorBounds(t *testing.T) {
	f := func(avg uint16, n uint16, m uint8, w uint16) bool {
		weight := (float64(w%999) + 1) / 1000
		qAvg := float64(avg)
		hi := math.Max(qAvg, float64(n))

		// one sample is a weighted mean of the old average and the sample
		got := Estimator(qAvg, int(n), 1, weight)
		if got < math.Min(qAvg, float64(n))-1e-9 || got > hi+1e-9 {
			return false
		}
		// aging over idle samples only ever pulls the old average down
		got = Estimator(qAvg, int(n), float64(m%10)+1, weight)
		return got >= weight*float64(n)-1e-9 && got <= hi+1e-9
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestAvgEstimatorIdleCompensation(t *testing.T) {
	// 1.5Mbps with 500 byte packets drains 375 packets per second
	e := newAvgEstimator(0.002, 1500*Kbps, 500)
	require.InDelta(t, 375, e.ptc, 1e-9)

	start := time.Unix(1000, 0)
	// first arrival: no idle period has been recorded
	require.Equal(t, 1.0, e.samples(start))
	e.qAvg = 10
	e.update(10, start)
	require.Equal(t, 1.0, e.samples(start.Add(time.Second)))

	e.markIdle(start)
	now := start.Add(100 * time.Millisecond)
	require.Equal(t, 38.0, e.samples(now))

	before := e.qAvg
	got := e.update(0, now)
	require.InDelta(t, before*math.Pow(0.998, 38), got, 1e-12)

	// busy again, back to one sample per arrival
	require.Equal(t, 1.0, e.samples(now.Add(time.Second)))
}

func TestAvgEstimatorIdleClockSkew(t *testing.T) {
	e := newAvgEstimator(0.002, 1500*Kbps, 500)
	now := time.Unix(1000, 0)
	e.markIdle(now)
	require.Equal(t, 1.0, e.samples(now))
	require.Equal(t, 1.0, e.samples(now.Add(-time.Second)))
}
