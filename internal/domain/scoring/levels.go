package scoring

// levelXP is the experience needed to go from level i to i+1.
var levelXP = [...]float64{
	50, 125, 200, 300, 500, 750, 1_000, 1_500, 2_000, 3_500,
	5_000, 7_500, 10_000, 15_000, 20_000, 30_000, 50_000, 75_000, 100_000, 200_000,
	300_000, 400_000, 500_000, 600_000, 700_000, 800_000, 900_000, 1_000_000, 1_100_000, 1_200_000,
	1_300_000, 1_400_000, 1_500_000, 1_600_000, 1_700_000, 1_800_000, 1_900_000, 2_000_000, 2_100_000, 2_200_000,
	2_300_000, 2_400_000, 2_500_000, 2_600_000, 2_750_000, 2_900_000, 3_100_000, 3_400_000, 3_700_000, 4_000_000,
	4_300_000, 4_600_000, 4_900_000, 5_200_000, 5_500_000, 5_800_000, 6_100_000, 6_400_000, 6_700_000, 7_000_000,
}

var sixtyCapSkills = map[string]bool{"farming": true, "mining": true, "combat": true, "enchanting": true}

func levelCap(skill string) int {
	if sixtyCapSkills[skill] {
		return 60
	}
	return 50
}

// Level converts total experience to a fractional level, capped at maxLevel.
func Level(xp float64, maxLevel int) float64 {
	if maxLevel > len(levelXP) {
		maxLevel = len(levelXP)
	}
	for lvl := 0; lvl < maxLevel; lvl++ {
		need := levelXP[lvl]
		if xp < need {
			return float64(lvl) + xp/need
		}
		xp -= need
	}
	return float64(maxLevel)
}
