// Package xp implements reviewer experience-point leveling.
package xp

// thresholds[i] is the total XP required to reach level i+1.
var thresholds = []int{0, 100, 250, 500, 1000, 2000, 4000, 8000}

// MaxLevel is the highest reachable level.
var MaxLevel = len(thresholds)

// LevelFor returns the level for a total XP amount. Levels start at 1.
func LevelFor(points int) int {
	level := 1
	for i := 1; i < len(thresholds); i++ {
		if points >= thresholds[i] {
			level = i + 1
		}
	}
	return level
}

// Progress returns the current level, the XP earned past that level's
// threshold, and the XP still needed for the next level. needed is 0 at the
// top level.
func Progress(points int) (level, into, needed int) {
	level = LevelFor(points)
	into = points - thresholds[level-1]
	if level == MaxLevel {
		return level, into, 0
	}
	return level, into, thresholds[level] - points
}

// PointsForRating returns the XP a reviewer earns when the owner rates their
// feedback with the given star count (1-5). Unrated feedback earns nothing.
func PointsForRating(stars int) int {
	if stars < 1 || stars > 5 {
		return 0
	}
	return stars * 10
}
