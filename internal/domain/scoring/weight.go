package scoring

import (
	"sort"

	"github.com/okian/skyrank/internal/domain/model"
)

// Config holds the tunables score functions read. It is passed in explicitly
// so scoring never depends on process-wide settings.
type Config struct {
	// CropDivisors maps a crop collection to the amount worth one weight point.
	CropDivisors map[string]float64
	// FarmingLevel50Bonus applies at farming level 50 and above,
	// FarmingLevel60Bonus replaces it at 60.
	FarmingLevel50Bonus float64
	FarmingLevel60Bonus float64

	cropOrder []string
}

// Crops lists the crops with their own collection leaderboards.
var Crops = []string{
	"wheat", "carrot", "potato", "pumpkin", "melon",
	"mushroom", "cocoa", "cactus", "sugar_cane", "nether_wart",
}

// DefaultConfig returns the stock farming weight constants.
func DefaultConfig() Config {
	return Config{
		CropDivisors: map[string]float64{
			"wheat":       100_000,
			"carrot":      302_061,
			"potato":      300_000,
			"pumpkin":     98_284,
			"melon":       485_308,
			"mushroom":    90_178,
			"cocoa":       267_174,
			"cactus":      177_254,
			"sugar_cane":  200_000,
			"nether_wart": 250_000,
		},
		FarmingLevel50Bonus: 100,
		FarmingLevel60Bonus: 250,
	}
}

func (c Config) withDefaults() Config {
	if len(c.CropDivisors) == 0 {
		c.CropDivisors = DefaultConfig().CropDivisors
	}
	// Summing in a fixed order keeps weights reproducible to the last digit.
	c.cropOrder = make([]string, 0, len(c.CropDivisors))
	for crop := range c.CropDivisors {
		c.cropOrder = append(c.cropOrder, crop)
	}
	sort.Strings(c.cropOrder)
	return c
}

// FarmingWeight computes a member's farming weight: one point per divisor's
// worth of each crop, plus the level bonus. ok=false when the member has no
// farming data at all.
func FarmingWeight(cfg *Config, m *model.MemberState) (float64, bool) {
	if m == nil || (m.Collections == nil && m.FarmingLevel == 0) {
		return 0, false
	}
	var weight float64
	for _, crop := range cfg.cropOrder {
		divisor := cfg.CropDivisors[crop]
		if divisor <= 0 {
			continue
		}
		weight += m.Collections[crop] / divisor
	}
	switch {
	case m.FarmingLevel >= 60:
		weight += cfg.FarmingLevel60Bonus
	case m.FarmingLevel >= 50:
		weight += cfg.FarmingLevel50Bonus
	}
	return weight, true
}
