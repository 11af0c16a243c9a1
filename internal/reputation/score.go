package reputation

import (
	"math"
	"time"
)

const secondsPerDay = 86400

// Score computes an agent's reputation from the current record and the
// configured weights:
//
//	stake*stakeWeight + vouches*vouchWeight + ageDays*longevityBonus
//	  - disputesLost*disputePenalty
//
// All arithmetic saturates at the uint64 boundary and the result floors at
// zero. The function is pure: calling it twice on an unchanged record yields
// the identical score.
func Score(agent Agent, params Params, now time.Time) uint64 {
	stakeComponent := satMul(agent.TotalStakedFor, uint64(params.StakeWeight))
	vouchComponent := satMul(uint64(agent.TotalVouchesReceived), uint64(params.VouchWeight))
	penalty := satMul(uint64(agent.DisputesLost), uint64(params.DisputePenalty))

	ageSeconds := now.Unix() - agent.RegisteredAt.Unix()
	if ageSeconds < 0 {
		ageSeconds = 0
	}
	ageDays := uint64(ageSeconds) / secondsPerDay
	longevityComponent := satMul(ageDays, uint64(params.LongevityBonus))

	score := satAdd(satAdd(stakeComponent, vouchComponent), longevityComponent)
	if penalty >= score {
		return 0
	}
	return score - penalty
}

// rescore recomputes and caches an agent's reputation.
func rescore(agent Agent, params Params, now time.Time) Agent {
	agent.ReputationScore = Score(agent, params, now)
	return agent
}

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func satMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxUint64/b {
		return math.MaxUint64
	}
	return a * b
}

func satSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func satDec32(v uint32) uint32 {
	if v == 0 {
		return 0
	}
	return v - 1
}

func satInc32(v uint32) uint32 {
	if v == math.MaxUint32 {
		return v
	}
	return v + 1
}
