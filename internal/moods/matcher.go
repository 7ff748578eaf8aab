package moods

import (
	"math"

	"marquee/internal/catalog"
	"marquee/internal/textutil"
)

// Sub-match ceilings. Genre, pacing and intensity sum to 100 before the
// quality bonus; the total is clamped.
const (
	genreWeight       = 40
	secondaryGenre    = 20
	pacingWeight      = 30
	intensityWeight   = 30
	qualityBonusScale = 20
)

// Target is a mood with its genre names resolved to canonical IDs.
type Target struct {
	Mood      catalog.Mood
	Preferred map[int64]bool
	Avoided   map[int64]bool
}

// Resolve maps a mood's genre names through the folded-name index. Names the
// index does not know are dropped.
func Resolve(mood catalog.Mood, index map[string]int64) Target {
	return Target{
		Mood:      mood,
		Preferred: resolveNames(mood.PreferredGenres, index),
		Avoided:   resolveNames(mood.AvoidedGenres, index),
	}
}

func resolveNames(names []string, index map[string]int64) map[int64]bool {
	out := make(map[int64]bool, len(names))
	for _, name := range names {
		if id, ok := index[textutil.Fold(name)]; ok {
			out[id] = true
		}
	}
	return out
}

// Score rates how well an item fits a mood on 0-100.
func Score(p catalog.MoodProfile, t Target) int {
	total := genreMatch(p, t) +
		proximity(p.Pacing, t.Mood.PacingPreference, pacingWeight) +
		proximity(p.Intensity, t.Mood.IntensityLevel*10, intensityWeight) +
		qualityBonusScale*float64(clamp(p.Quality, 0, 100))/100
	return clamp(int(math.Round(total)), 0, 100)
}

// genreMatch gives full credit when the primary genre is preferred and
// partial credit when another genre is. An avoided primary genre scores zero.
func genreMatch(p catalog.MoodProfile, t Target) float64 {
	if primary := p.PrimaryGenreID; primary != 0 {
		if t.Avoided[primary] {
			return 0
		}
		if t.Preferred[primary] {
			return genreWeight
		}
	}
	for _, id := range p.GenreIDs {
		if id != p.PrimaryGenreID && t.Preferred[id] {
			return secondaryGenre
		}
	}
	return 0
}

// proximity falls off linearly from weight at zero distance to nothing at a
// distance of 100.
func proximity(value, target int, weight float64) float64 {
	d := math.Abs(float64(value - target))
	return weight * math.Max(0, 1-d/100)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
