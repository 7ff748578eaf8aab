package credits

import (
	"math"

	"marquee/internal/catalog"
)

// Star power tiers, from weakest to strongest.
const (
	TierNone            = "none"
	TierCharacterActors = "character_actors"
	TierBList           = "b_list"
	TierAList           = "a_list"
	TierMegaStar        = "mega_star"
)

var tierThresholds = []struct {
	min  float64
	tier string
}{
	{40, TierMegaStar},
	{20, TierAList},
	{10, TierBList},
	{5, TierCharacterActors},
}

// scoreAnchors are (top-3 average popularity, score) points. The first four
// interior anchors sit on the tier thresholds.
var scoreAnchors = [][2]float64{
	{0, 0}, {5, 20}, {10, 40}, {20, 60}, {40, 80}, {80, 100},
}

// StarPowerTier buckets a top-3 average popularity.
func StarPowerTier(top3 float64) string {
	for _, t := range tierThresholds {
		if top3 >= t.min {
			return t.tier
		}
	}
	return TierNone
}

// StarPowerScore interpolates a continuous 0-100 score between the tier
// anchors.
func StarPowerScore(top3 float64) float64 {
	if math.IsNaN(top3) || top3 <= 0 {
		return 0
	}
	for i := 1; i < len(scoreAnchors); i++ {
		lo, hi := scoreAnchors[i-1], scoreAnchors[i]
		if top3 <= hi[0] {
			frac := (top3 - lo[0]) / (hi[0] - lo[0])
			return round1(lo[1] + frac*(hi[1]-lo[1]))
		}
	}
	return 100
}

// Aggregate computes cast statistics over credits in billing order. An empty
// cast yields zero values and the none tier.
func Aggregate(itemID int64, cast []catalog.CastCredit) catalog.CastStats {
	stats := catalog.CastStats{ItemID: itemID, CastCount: len(cast), StarPowerTier: TierNone}
	if len(cast) == 0 {
		return stats
	}

	sum := 0.0
	stats.MinPopularity = math.Inf(1)
	for _, c := range cast {
		p := max(c.Popularity, 0)
		sum += p
		stats.MaxPopularity = max(stats.MaxPopularity, p)
		stats.MinPopularity = min(stats.MinPopularity, p)
	}
	stats.AvgPopularity = round1(sum / float64(len(cast)))

	top := min(3, len(cast))
	topSum := 0.0
	for _, c := range cast[:top] {
		topSum += max(c.Popularity, 0)
	}
	stats.Top3AvgPopularity = round1(topSum / float64(top))
	stats.StarPowerTier = StarPowerTier(stats.Top3AvgPopularity)
	stats.StarPowerScore = StarPowerScore(stats.Top3AvgPopularity)
	return stats
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
