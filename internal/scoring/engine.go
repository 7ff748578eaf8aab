// Package scoring computes the heuristic score set for an item. Compute is a
// pure function of the item's stored attributes; Stage wires it to the
// catalog.
package scoring

import (
	"math"
	"strings"
	"time"

	"marquee/internal/catalog"
	"marquee/internal/credits"
	"marquee/internal/textutil"
)

const neutral = 50

// VFX categories, by score.
const (
	VFXMinimal   = "minimal"
	VFXLight     = "light"
	VFXModerate  = "moderate"
	VFXHeavy     = "heavy"
	VFXSpectacle = "spectacle"
)

// CultThreshold is the cult score at which an item counts as a cult title.
const CultThreshold = 50

// secondaryDiscount down-weights the secondary rating relative to the
// provider's own vote average at equal vote volume.
const secondaryDiscount = 0.8

// Input is everything the engine reads about one item.
type Input struct {
	Runtime     int
	Genres      []string
	Keywords    []string
	VoteAverage float64
	VoteCount   int
	Popularity  float64
	Budget      int64
	Revenue     int64
	ReleaseYear int
	// ReferenceYear anchors age-based adjustments.
	ReferenceYear int
	Cast          *catalog.CastStats
	Ratings       *catalog.SecondaryRating
}

// InputFor assembles engine input from stored records. cast and ratings may
// be nil.
func InputFor(item *catalog.Item, cast *catalog.CastStats, ratings *catalog.SecondaryRating, now time.Time) Input {
	return Input{
		Runtime:       item.Runtime,
		Genres:        item.Genres,
		Keywords:      item.Keywords,
		VoteAverage:   item.VoteAverage,
		VoteCount:     item.VoteCount,
		Popularity:    item.Popularity,
		Budget:        item.Budget,
		Revenue:       item.Revenue,
		ReleaseYear:   item.Year(),
		ReferenceYear: now.Year(),
		Cast:          cast,
		Ratings:       ratings,
	}
}

type features struct {
	primary  string
	genres   []string
	keywords []string
}

func newFeatures(in Input) features {
	f := features{}
	for _, g := range in.Genres {
		if folded := textutil.Fold(g); folded != "" {
			f.genres = append(f.genres, folded)
		}
	}
	if len(f.genres) > 0 {
		f.primary = f.genres[0]
	}
	for _, k := range in.Keywords {
		if folded := textutil.Fold(k); folded != "" {
			f.keywords = append(f.keywords, folded)
		}
	}
	return f
}

// apply sums rule.step for each keyword matching any term, bounded by
// rule.limit.
func (f features) apply(rule keywordRule) int {
	total := 0
	for _, k := range f.keywords {
		for _, term := range rule.terms {
			if strings.Contains(k, term) {
				total += rule.step
				break
			}
		}
	}
	return clampInt(total, -rule.limit, rule.limit)
}

// Compute produces the full score set. ItemID and ComputedAt are left for the
// caller.
func Compute(in Input) catalog.ScoreSet {
	f := newFeatures(in)
	composite := Composite(in)
	set := catalog.ScoreSet{
		Pacing:          pacing(in.Runtime, f),
		Intensity:       intensity(f),
		EmotionalDepth:  emotionalDepth(in, f),
		DialogueDensity: dialogueDensity(f),
		AttentionDemand: attentionDemand(in.Runtime, f),
		Quality:         quality(in, composite),
		Composite:       composite,
		Confidence:      Confidence(in),
		StarPowerTier:   credits.TierNone,
	}
	if in.Cast != nil {
		set.StarPowerTier = in.Cast.StarPowerTier
		set.StarPowerScore = in.Cast.StarPowerScore
	}
	set.VFXScore = vfxScore(in, f)
	set.VFXCategory = VFXCategory(set.VFXScore)
	set.CultScore = cultScore(in, f)
	set.Cult = set.CultScore >= CultThreshold
	return set
}

// runtimePacing is the runtime bracket contribution, centred on the neutral
// baseline. Unknown runtime stays neutral.
func runtimePacing(runtime int) int {
	switch {
	case runtime <= 0:
		return neutral
	case runtime < 90:
		return neutral + 25
	case runtime < 100:
		return neutral + 10
	case runtime <= 120:
		return neutral
	case runtime <= 150:
		return neutral - 15
	default:
		return neutral - 25
	}
}

func genreBase(table map[string]int, genre string) int {
	if v, ok := table[genre]; ok {
		return v
	}
	return neutral
}

// pacing averages the runtime bracket with the primary genre's pacing, then
// applies keyword signals.
func pacing(runtime int, f features) int {
	avg := float64(runtimePacing(runtime)+genreBase(genrePacing, f.primary)) / 2
	avg += float64(clampInt(f.apply(fastKeywords)+f.apply(slowKeywords), -15, 15))
	return round5(avg)
}

// intensity starts from the primary genre's level.
func intensity(f features) int {
	score := genreBase(genreIntensity, f.primary)
	for _, g := range f.genres {
		if g != f.primary && (g == "horror" || g == "thriller" || g == "war") {
			score += 5
			break
		}
	}
	score += f.apply(intenseKeywords) + f.apply(gentleKeywords)
	return round5(float64(score))
}

// emotionalDepth rewards dramatic genres, heavy themes and long, well
// received titles.
func emotionalDepth(in Input, f features) int {
	score := neutral + depthByGenre[f.primary] + f.apply(depthKeywords)
	if in.Runtime > 130 {
		score += 5
	}
	if in.VoteAverage >= 7.5 && in.VoteCount >= 500 {
		score += 5
	}
	return round5(float64(score))
}

// dialogueDensity estimates how talk-driven a title is.
func dialogueDensity(f features) int {
	score := neutral + dialogueByGenre[f.primary] + f.apply(talkyKeywords) + f.apply(silentKeywords)
	return round5(float64(score))
}

// attentionDemand estimates how much focus a title asks of the viewer.
func attentionDemand(runtime int, f features) int {
	score := neutral + attentionByGenre[f.primary] + f.apply(complexKeywords)
	switch {
	case runtime > 150:
		score += 10
	case runtime > 120:
		score += 5
	case runtime > 0 && runtime < 90:
		score -= 5
	}
	return round5(float64(score))
}

// quality maps the composite rating onto 0-100. Thinly voted items are pulled
// halfway toward neutral.
func quality(in Input, composite *float64) int {
	if composite == nil {
		return neutral
	}
	q := *composite * 10
	if in.VoteCount < 50 {
		q = (q + neutral) / 2
	}
	return clampInt(int(math.Round(q)), 0, 100)
}

type source struct {
	value  float64
	weight float64
	points int
}

// sources lists the rating sources that count for an item. Composite and
// Confidence both read this list, so a source contributes to both or neither.
func sources(in Input) []source {
	var out []source
	add := func(s source) {
		if s.weight > 0 {
			out = append(out, s)
		}
	}
	if in.VoteCount > 0 && in.VoteAverage > 0 {
		add(source{value: in.VoteAverage, weight: math.Min(float64(in.VoteCount)/1000, 3), points: primaryPoints(in.VoteCount)})
	}
	if r := in.Ratings; r != nil && r.Found {
		if r.IMDbRating != nil {
			weight := 0.5
			if r.IMDbVotes != nil {
				weight = math.Min(float64(*r.IMDbVotes)/10000, 2)
			}
			add(source{value: *r.IMDbRating, weight: weight * secondaryDiscount, points: 25})
		}
		if r.RottenTomatoes != nil {
			add(source{value: float64(*r.RottenTomatoes) / 10, weight: 1, points: 20})
		}
		if r.Metacritic != nil {
			add(source{value: float64(*r.Metacritic) / 10, weight: 1, points: 15})
		}
	}
	return out
}

func primaryPoints(votes int) int {
	switch {
	case votes >= 1000:
		return 40
	case votes >= 100:
		return 25
	default:
		return 10
	}
}

// Composite is the weighted average of every available rating source on a
// 0-10 scale, rounded to two decimals. It is nil when no source is available.
func Composite(in Input) *float64 {
	var sum, weights float64
	for _, s := range sources(in) {
		sum += clampFloat(s.value, 0, 10) * s.weight
		weights += s.weight
	}
	if weights == 0 {
		return nil
	}
	v := math.Round(sum/weights*100) / 100
	return &v
}

// Confidence scores source coverage: fixed points per available source, with
// the primary source scaled by vote volume. It is 0 exactly when Composite is
// nil.
func Confidence(in Input) int {
	points := 0
	for _, s := range sources(in) {
		points += s.points
	}
	return min(points, 100)
}

// vfxScore estimates visual effects weight from genres, budget and keywords.
func vfxScore(in Input, f features) int {
	score := 20
	for i, g := range f.genres {
		if i == 0 {
			score += vfxByGenre[g]
			continue
		}
		score += vfxByGenre[g] / 2
	}
	switch {
	case in.Budget >= 150_000_000:
		score += 25
	case in.Budget >= 75_000_000:
		score += 15
	case in.Budget >= 30_000_000:
		score += 5
	case in.Budget > 0 && in.Budget < 5_000_000:
		score -= 10
	}
	score += f.apply(effectsKeywords)
	return clampInt(score, 0, 100)
}

// VFXCategory buckets a VFX score.
func VFXCategory(score int) string {
	switch {
	case score >= 80:
		return VFXSpectacle
	case score >= 60:
		return VFXHeavy
	case score >= 40:
		return VFXModerate
	case score >= 20:
		return VFXLight
	default:
		return VFXMinimal
	}
}

// cultScore rewards well-loved titles that never found a mass audience.
func cultScore(in Input, f features) int {
	score := 0
	if in.VoteAverage >= 7 && in.Popularity < 20 && in.VoteCount >= 100 && in.VoteCount <= 5000 {
		score += 30
	}
	score += f.apply(cultKeywords) + f.apply(oddballKeywords)
	if in.ReleaseYear > 0 && in.ReferenceYear-in.ReleaseYear >= 20 && in.VoteAverage >= 7 {
		score += 15
	}
	if cultGenres[f.primary] {
		score += 5
	}
	if in.Budget > 0 && in.Revenue > 0 && in.Revenue < in.Budget && in.VoteAverage >= 7 {
		score += 15
	}
	return clampInt(score, 0, 100)
}

func round5(v float64) int {
	return clampInt(int(math.Round(v/5))*5, 0, 100)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func clampFloat(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
