// Package policy maps temperatures to fan speeds using a step table.
package policy

import "time"

// MaxSpeed is the highest speed the fan accepts.
const MaxSpeed = 100

// Thresholds maps a temperature in whole degrees Celsius to the fan speed
// that applies from that temperature upwards.
type Thresholds map[int]uint8

// DefaultThresholds returns the table used when none is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		55: 10,
		60: 55,
		65: 100,
	}
}

// Decide returns the speed of the entry with the greatest temperature not
// above temp, or 0 when no entry qualifies. The current speed does not
// influence the step lookup; it only matters for Cooldown.
func Decide(temp int, thresholds Thresholds, _ uint8) uint8 {
	var (
		speed uint8
		best  int
		found bool
	)

	for t, s := range thresholds {
		if t <= temp && (!found || t > best) {
			best, speed, found = t, s, true
		}
	}

	return speed
}

// Cooldown returns how long to hold the current speed before committing
// target. Slowing down waits for delay, anything else applies immediately.
func Cooldown(target, current uint8, delay time.Duration) time.Duration {
	if target < current {
		return delay
	}

	return 0
}
