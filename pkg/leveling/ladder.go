// Package leveling holds the XP ladder math and the per-user XP records
// that feed level cards.
package leveling

import "math"

const baseXP = 100

// XPForLevel returns the total XP required to reach level. Each step up
// the ladder costs ceil(100 * 1.1^(step-1)); level 1 is free.
func XPForLevel(level int) int {
	total := 0
	for i := 1; i < level; i++ {
		total += int(math.Ceil(baseXP * math.Pow(1.1, float64(i-1))))
	}
	return total
}

// LevelForXP returns the largest level whose cumulative cost fits in xp.
// Always at least 1.
func LevelForXP(xp int) int {
	level := 1
	for XPForLevel(level+1) <= xp {
		level++
	}
	return level
}

// Progress splits xp into (earned inside the current level, total needed
// to clear it).
func Progress(xp int) (into, needed int) {
	level := LevelForXP(xp)
	floor := XPForLevel(level)
	return xp - floor, XPForLevel(level+1) - floor
}
