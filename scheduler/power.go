package scheduler

import "math"

// PowerSchedule ties mutation round count to vote/visit score via a
// log-scaled bucket, per original_source/src/power_sched.rs (SPEC_FULL
// supplement): rounds = clamp(floor(log2(max(score,1))) + 1, 1, MaxPowerFactor).
// A linear scale was considered and rejected because a single very
// high-voted entry would otherwise starve every other corpus member of
// mutation time.
func PowerSchedule(score float64) int {
	if score <= 1 {
		return 1
	}
	rounds := int(math.Floor(math.Log2(score))) + 1
	if rounds < 1 {
		rounds = 1
	}
	if rounds > MaxPowerFactor {
		rounds = MaxPowerFactor
	}
	return rounds
}
