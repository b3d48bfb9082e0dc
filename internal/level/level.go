// Package level maps cumulative XP to a tier label. Every caller that needs a
// level goes through Of; the thresholds live nowhere else.
package level

const (
	Beginner     = "Beginner"
	Intermediate = "Intermediate"
	Advanced     = "Advanced"

	intermediateThreshold int64 = 1000
	advancedThreshold     int64 = 3000
)

// Info is the result of the policy for one XP total.
type Info struct {
	Label string `json:"label"`
	// Tier orders labels: 0 Beginner, 1 Intermediate, 2 Advanced.
	Tier int `json:"tier"`
	// NextThreshold is the XP needed for the next tier. Advanced has no next
	// tier, so it reports the current total.
	NextThreshold int64 `json:"next_threshold"`
}

// Of returns the level for xp. Negative totals are Beginner.
func Of(xp int64) Info {
	switch {
	case xp >= advancedThreshold:
		return Info{Label: Advanced, Tier: 2, NextThreshold: xp}
	case xp >= intermediateThreshold:
		return Info{Label: Intermediate, Tier: 1, NextThreshold: advancedThreshold}
	default:
		return Info{Label: Beginner, Tier: 0, NextThreshold: intermediateThreshold}
	}
}
