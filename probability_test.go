package choke

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"
)

func TestCalculatePNew(t *testing.T) {
	// minTh 5, maxTh 15, lInterm 50
	vA, vB, maxP := 1.0/10, -5.0/10, 1.0/50

	require.Equal(t, 1.0, CalculatePNew(20, 15, vA, vB, maxP))
	require.Equal(t, 1.0, CalculatePNew(15, 15, vA, vB, maxP))
	require.InDelta(t, 0.5*maxP, CalculatePNew(10, 15, vA, vB, maxP), 1e-12)
	require.Zero(t, CalculatePNew(5, 15, vA, vB, maxP))
	// below minTh the ramp would go negative
	require.Zero(t, CalculatePNew(0, 15, vA, vB, maxP))
}

func TestCalculatePNewMonotonic(t *testing.T) {
	vA, vB, maxP := 1.0/10, -5.0/10, 1.0/50
	f := func(a, b uint16) bool {
		lo, hi := float64(min(a, b))/100, float64(max(a, b))/100
		pLo := CalculatePNew(lo, 15, vA, vB, maxP)
		pHi := CalculatePNew(hi, 15, vA, vB, maxP)
		return pLo <= pHi && pLo >= 0 && pHi <= 1
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestModifyP(t *testing.T) {
	tcs := []struct {
		name  string
		p     float64
		count int
		wait  bool
		want  float64
	}{
		{name: "wait below one interval", p: 0.01, count: 50, wait: true, want: 0},
		{name: "wait within second interval", p: 0.01, count: 150, wait: true, want: 0.01 / 0.5},
		{name: "wait past second interval", p: 0.01, count: 250, wait: true, want: 1},
		{name: "no wait", p: 0.01, count: 50, wait: false, want: 0.01 / 0.5},
		{name: "no wait past interval", p: 0.01, count: 100, wait: false, want: 1},
		{name: "first arrival", p: 0.01, count: 0, wait: false, want: 0.01},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			got := ModifyP(tc.p, tc.count, 0, 500, tc.wait, QueueModePackets, 500)
			require.InDelta(t, tc.want, got, 1e-12)
		})
	}
}

func TestModifyPByteMode(t *testing.T) {
	// 25000 bytes at 500 bytes per packet count as 50 packets
	got := ModifyP(0.01, 1, 25_000, 500, false, QueueModeBytes, 250)
	require.InDelta(t, 0.02*250/500, got, 1e-12)

	// integer division: 24999 bytes is 49 packets
	got = ModifyP(0.01, 1, 24_999, 500, false, QueueModeBytes, 500)
	require.InDelta(t, 0.01/0.51, got, 1e-12)

	// a certain drop is not scaled by packet size
	require.Equal(t, 1.0, ModifyP(1, 1, 500, 500, false, QueueModeBytes, 100))

	// large packets are capped at 1
	require.Equal(t, 1.0, ModifyP(0.4, 1, 500, 500, false, QueueModeBytes, 5000))
}

func TestModifyPIsProbability(t *testing.T) {
	f := func(p float64, count uint16, countBytes uint32, size uint16, wait, bytes bool) bool {
		mode := QueueModePackets
		if bytes {
			mode = QueueModeBytes
		}
		got := ModifyP(p, int(count), int(countBytes), 500, wait, mode, int(size))
		return got >= 0 && got <= 1
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestModifyPNonDecreasingInCount(t *testing.T) {
	f := func(p16 uint16, a, b uint16, wait bool) bool {
		p := float64(p16) / 65535
		lo, hi := int(min(a, b)), int(max(a, b))
		pLo := ModifyP(p, lo, 0, 500, wait, QueueModePackets, 500)
		pHi := ModifyP(p, hi, 0, 500, wait, QueueModePackets, 500)
		return pLo <= pHi
	}
	require.NoError(t, quick.Check(f, nil))
}
