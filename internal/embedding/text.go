package embedding

import (
	"fmt"
	"strings"

	"marquee/internal/catalog"
	"marquee/internal/credits"
	"marquee/internal/textutil"
)

// BuildText renders the descriptive string embedded for an item, truncated to
// limit runes on a word boundary. scores and cast may be nil.
func BuildText(item *catalog.Item, scores *catalog.ScoreSet, cast *catalog.CastStats, limit int) string {
	var b strings.Builder
	b.WriteString(item.DisplayTitle())
	if year := item.Year(); year > 0 {
		fmt.Fprintf(&b, " (%d)", year)
	}
	b.WriteString(".")

	if len(item.Genres) > 0 {
		fmt.Fprintf(&b, " Genres: %s.", strings.Join(item.Genres, ", "))
	}
	if scores != nil {
		fmt.Fprintf(&b, " Feels: %s, %s, %s.",
			pacingPhrase(scores.Pacing), intensityPhrase(scores.Intensity), depthPhrase(scores.EmotionalDepth))
	}
	fmt.Fprintf(&b, " Runtime: %s.", runtimeBracket(item.Runtime))

	tier := credits.TierNone
	if cast != nil {
		tier = cast.StarPowerTier
	} else if scores != nil && scores.StarPowerTier != "" {
		tier = scores.StarPowerTier
	}
	fmt.Fprintf(&b, " Cast: %s.", castPhrase(tier))

	if overview := strings.TrimSpace(item.Overview); overview != "" {
		b.WriteString(" Overview: ")
		b.WriteString(overview)
	}
	return textutil.TruncateWords(b.String(), limit)
}

func pacingPhrase(p int) string {
	switch {
	case p >= 70:
		return "fast-paced"
	case p >= 45:
		return "steady pacing"
	default:
		return "slow-burning"
	}
}

func intensityPhrase(i int) string {
	switch {
	case i >= 70:
		return "intense"
	case i >= 40:
		return "some tension"
	default:
		return "light-hearted"
	}
}

func depthPhrase(d int) string {
	switch {
	case d >= 70:
		return "emotionally rich"
	case d >= 45:
		return "some emotional weight"
	default:
		return "easygoing"
	}
}

func runtimeBracket(runtime int) string {
	switch {
	case runtime <= 0:
		return "unknown length"
	case runtime < 90:
		return "short"
	case runtime <= 120:
		return "standard length"
	case runtime <= 150:
		return "long"
	default:
		return "epic length"
	}
}

func castPhrase(tier string) string {
	switch tier {
	case credits.TierMegaStar:
		return "mega-star cast"
	case credits.TierAList:
		return "A-list cast"
	case credits.TierBList:
		return "recognizable cast"
	case credits.TierCharacterActors:
		return "character actors"
	default:
		return "little-known cast"
	}
}
