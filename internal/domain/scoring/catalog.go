package scoring

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/okian/skyrank/internal/domain/leaderboard"
	"github.com/okian/skyrank/internal/domain/model"
)

// Entry pairs a definition with the function that scores it.
type Entry struct {
	Definition leaderboard.Definition
	Score      ScoreFunc
}

var (
	skills          = []string{"farming", "mining", "combat", "foraging", "fishing", "enchanting", "alchemy", "taming", "carpentry", "runecrafting", "social"}
	cosmeticSkills  = map[string]bool{"runecrafting": true, "social": true}
	slayers         = []string{"zombie", "spider", "wolf", "enderman", "blaze", "vampire"}
	dungeonClasses  = []string{"healer", "mage", "berserk", "archer", "tank"}
	currentOnly     = []leaderboard.IntervalType{leaderboard.IntervalCurrent}
	currentMonthly  = []leaderboard.IntervalType{leaderboard.IntervalCurrent, leaderboard.IntervalMonthly}
	oneUnit         = decimal.NewFromInt(1)
	smallestDecimal = decimal.New(1, -decimalPlaces)
)

// Catalog returns the built-in leaderboards and their score functions.
func Catalog() []Entry {
	var out []Entry

	for _, skill := range skills {
		out = append(out, Entry{
			Definition: memberXP("skill-"+dash(skill), title(skill)+" Experience", title(skill), "skills"),
			Score:      mapValue(func(m *model.MemberState) map[string]float64 { return m.Skills }, skill),
		})
	}
	out = append(out,
		Entry{
			Definition: memberXP("skill-total", "Total Skill Experience", "Total XP", "skills"),
			Score:      totalSkillXP,
		},
		Entry{
			Definition: leaderboard.Definition{
				ID: "skill-average", Title: "Skill Average", ShortTitle: "Average", Category: "skills",
				DataType: leaderboard.Decimal, MinimumScore: smallestDecimal,
				IntervalTypes: currentOnly, EntityKind: model.KindMember,
			},
			Score: skillAverage,
		},
	)

	for _, boss := range slayers {
		out = append(out, Entry{
			Definition: memberXP("slayer-"+boss, title(boss)+" Slayer Experience", title(boss), "slayers"),
			Score:      mapValue(func(m *model.MemberState) map[string]float64 { return m.Slayers }, boss),
		})
	}
	out = append(out, Entry{
		Definition: memberXP("slayer-total", "Total Slayer Experience", "Slayer XP", "slayers"),
		Score:      totalSlayerXP,
	})

	out = append(out, Entry{
		Definition: memberXP("catacombs-xp", "Catacombs Experience", "Catacombs", "dungeons"),
		Score:      catacombsXP,
	})
	for _, class := range dungeonClasses {
		out = append(out, Entry{
			Definition: memberXP("class-"+class, title(class)+" Class Experience", title(class), "dungeons"),
			Score:      classXP(class),
		})
	}

	for _, crop := range Crops {
		out = append(out, Entry{
			Definition: memberXP("crop-"+dash(crop), title(crop)+" Collection", title(crop), "farming"),
			Score:      mapValue(func(m *model.MemberState) map[string]float64 { return m.Collections }, crop),
		})
	}
	out = append(out, Entry{
		Definition: leaderboard.Definition{
			ID: "farming-weight", Title: "Farming Weight", ShortTitle: "Weight", Category: "farming",
			DataType: leaderboard.Decimal, MinimumScore: oneUnit,
			IntervalTypes: currentMonthly, EntityKind: model.KindMember, UseIncreaseForInterval: true,
		},
		Score: func(cfg *Config, s *model.Snapshot) (float64, bool) { return FarmingWeight(cfg, s.Member) },
	})

	out = append(out,
		Entry{
			Definition: leaderboard.Definition{
				ID: "profile-bank", Title: "Bank Balance", ShortTitle: "Bank", Category: "profile",
				DataType: leaderboard.Integer, MinimumScore: oneUnit,
				IntervalTypes: currentOnly, EntityKind: model.KindProfile,
			},
			Score: bankBalance,
		},
		Entry{
			Definition: leaderboard.Definition{
				ID: "profile-minions", Title: "Unique Minions", ShortTitle: "Minions", Category: "profile",
				DataType: leaderboard.Integer, MinimumScore: oneUnit,
				IntervalTypes: currentMonthly, EntityKind: model.KindProfile, UseIncreaseForInterval: true,
			},
			Score: uniqueMinions,
		},
		Entry{
			Definition: leaderboard.Definition{
				ID: "profile-farming-weight", Title: "Profile Farming Weight", ShortTitle: "Weight", Category: "profile",
				DataType: leaderboard.Decimal, MinimumScore: oneUnit,
				IntervalTypes: currentMonthly, EntityKind: model.KindProfile, UseIncreaseForInterval: true,
			},
			Score: profileFarmingWeight,
		},
	)
	return out
}

// Split returns the definitions and the score functions of entries.
func Split(entries []Entry) ([]leaderboard.Definition, map[string]ScoreFunc) {
	defs := make([]leaderboard.Definition, 0, len(entries))
	funcs := make(map[string]ScoreFunc, len(entries))
	for _, e := range entries {
		defs = append(defs, e.Definition)
		funcs[e.Definition.ID] = e.Score
	}
	return defs, funcs
}

// memberXP is the common shape of experience leaderboards: integer, ranked
// over current and monthly gains.
func memberXP(id, titleText, short, category string) leaderboard.Definition {
	return leaderboard.Definition{
		ID:                     id,
		Title:                  titleText,
		ShortTitle:             short,
		Category:               category,
		DataType:               leaderboard.Integer,
		MinimumScore:           oneUnit,
		IntervalTypes:          currentMonthly,
		EntityKind:             model.KindMember,
		UseIncreaseForInterval: true,
	}
}

func mapValue(pick func(*model.MemberState) map[string]float64, key string) ScoreFunc {
	return func(_ *Config, s *model.Snapshot) (float64, bool) {
		if s.Member == nil {
			return 0, false
		}
		v, ok := pick(s.Member)[key]
		return v, ok
	}
}

func totalSkillXP(_ *Config, s *model.Snapshot) (float64, bool) {
	if s.Member == nil || len(s.Member.Skills) == 0 {
		return 0, false
	}
	var total float64
	for skill, xp := range s.Member.Skills {
		if !cosmeticSkills[skill] {
			total += xp
		}
	}
	return total, true
}

func skillAverage(_ *Config, s *model.Snapshot) (float64, bool) {
	if s.Member == nil || len(s.Member.Skills) == 0 {
		return 0, false
	}
	var sum float64
	var n int
	for _, skill := range skills {
		if cosmeticSkills[skill] {
			continue
		}
		sum += Level(s.Member.Skills[skill], levelCap(skill))
		n++
	}
	return sum / float64(n), true
}

func totalSlayerXP(_ *Config, s *model.Snapshot) (float64, bool) {
	if s.Member == nil || len(s.Member.Slayers) == 0 {
		return 0, false
	}
	var total float64
	for _, xp := range s.Member.Slayers {
		total += xp
	}
	return total, true
}

func catacombsXP(_ *Config, s *model.Snapshot) (float64, bool) {
	if s.Member == nil || s.Member.Dungeons == nil {
		return 0, false
	}
	return s.Member.Dungeons.CatacombsXP, true
}

func classXP(class string) ScoreFunc {
	return func(_ *Config, s *model.Snapshot) (float64, bool) {
		if s.Member == nil || s.Member.Dungeons == nil {
			return 0, false
		}
		v, ok := s.Member.Dungeons.Classes[class]
		return v, ok
	}
}

func bankBalance(_ *Config, s *model.Snapshot) (float64, bool) {
	if s.Profile == nil || s.Profile.BankBalance == nil {
		return 0, false
	}
	return *s.Profile.BankBalance, true
}

func uniqueMinions(_ *Config, s *model.Snapshot) (float64, bool) {
	if s.Profile == nil {
		return 0, false
	}
	return float64(s.Profile.UniqueMinions), true
}

func profileFarmingWeight(cfg *Config, s *model.Snapshot) (float64, bool) {
	if s.Profile == nil {
		return 0, false
	}
	var total float64
	var found bool
	for _, m := range s.Profile.Members {
		if w, ok := FarmingWeight(cfg, m); ok {
			total += w
			found = true
		}
	}
	return total, found
}

func dash(s string) string { return strings.ReplaceAll(s, "_", "-") }

func title(s string) string {
	words := strings.Split(s, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
