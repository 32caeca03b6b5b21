package loadgen

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/okian/skyrank/internal/domain/model"
	"github.com/okian/skyrank/pkg/logger"
)

// XP tiers, as [min, min+span).
var xpTiers = []struct{ min, span int64 }{
	{1_000, 50_000},          // new players, most common
	{50_000, 2_000_000},      // casual
	{1_000, 50_000},          // new players again to skew the mix low
	{2_000_000, 20_000_000},  // regulars
	{20_000_000, 90_000_000}, // grinders, rare
}

func randInt(n int64) int64 {
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0
	}
	return v.Int64()
}

// generateXP draws an XP value from a skewed mix of tiers.
func generateXP() int64 {
	tier := xpTiers[randInt(int64(len(xpTiers)))]
	return tier.min + randInt(tier.span)
}

// generateMembers creates cfg.Members members with distinct player and
// profile ids.
func generateMembers(ctx context.Context, cfg *Config, stats *Stats) ([]member, error) {
	logger.Get().Info(ctx, "generating members", logger.Int("members", cfg.Members), logger.String("skill", cfg.Skill))

	out := make([]member, 0, cfg.Members)
	for i := 0; i < cfg.Members; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("context cancelled during generation: %w", err)
		}
		m, err := generateMember(cfg, i)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	stats.Generated = len(out)
	return out, nil
}

func generateMember(cfg *Config, index int) (member, error) {
	player, profile := uuid.NewString(), uuid.NewString()
	key, err := model.MemberKey(player, profile)
	if err != nil {
		return member{}, fmt.Errorf("member %d: %w", index, err)
	}

	xp := generateXP()
	snap := model.Snapshot{
		Kind:        model.KindMember,
		PlayerUUID:  player,
		ProfileUUID: profile,
		Member: &model.MemberState{
			Skills: map[string]float64{cfg.Skill: float64(xp)},
		},
	}
	if len(cfg.GameModes) > 0 {
		snap.GameMode = cfg.GameModes[index%len(cfg.GameModes)]
	}

	return member{
		Key: key,
		XP:  xp,
		Change: model.EntityChange{
			ChangeID: fmt.Sprintf("loadgen-%d-%s", index, uuid.NewString()),
			Snapshot: snap,
		},
	}, nil
}
