package choke

import "math"

// CalculatePNew returns the base early drop probability for the average queue
// size qAvg. It ramps linearly from 0 at the min threshold to maxP at maxTh,
// where vA and vB are the slope and intercept of the ramp normalized to
// [0, 1]. At or above maxTh it is 1.
func CalculatePNew(qAvg, maxTh, vA, vB, maxP float64) float64 {
	if qAvg >= maxTh {
		return 1.0
	}
	return clampProbability((vA*qAvg + vB) * maxP)
}

// ModifyP spreads the base probability p over the packets accepted since the
// last drop, so that drops come at roughly even intervals instead of in
// clusters. count and countBytes are the packets and bytes seen since that
// drop; size is the arriving packet's size. With wait set, no packet is
// dropped until about 1/p packets have been accepted.
func ModifyP(p float64, count, countBytes, meanPktSize int, wait bool, mode QueueMode, size int) float64 {
	n := float64(count)
	if mode == QueueModeBytes {
		n = float64(countBytes / meanPktSize)
	}

	if wait {
		switch {
		case n*p < 1.0:
			p = 0
		case n*p < 2.0:
			p /= 2.0 - n*p
		default:
			p = 1.0
		}
	} else {
		if n*p < 1.0 {
			p /= 1.0 - n*p
		} else {
			p = 1.0
		}
	}

	if mode == QueueModeBytes && p < 1.0 {
		p = p * float64(size) / float64(meanPktSize)
	}
	return clampProbability(p)
}

func clampProbability(p float64) float64 {
	switch {
	case p > 1.0:
		return 1.0
	case p < 0 || math.IsNaN(p):
		return 0
	}
	return p
}
