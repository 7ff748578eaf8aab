package scoring

// Per-genre baselines keyed by folded genre name. Genres missing from a
// table score the neutral 50.
var genrePacing = map[string]int{
	"action":          80,
	"adventure":       70,
	"animation":       65,
	"comedy":          60,
	"crime":           60,
	"documentary":     35,
	"drama":           40,
	"family":          55,
	"fantasy":         60,
	"history":         35,
	"horror":          70,
	"music":           55,
	"mystery":         50,
	"romance":         45,
	"science fiction": 65,
	"thriller":        75,
	"tv movie":        50,
	"war":             55,
	"western":         50,
}

var genreIntensity = map[string]int{
	"action":          75,
	"adventure":       60,
	"animation":       25,
	"comedy":          20,
	"crime":           65,
	"documentary":     35,
	"drama":           45,
	"family":          15,
	"fantasy":         50,
	"history":         50,
	"horror":          85,
	"music":           25,
	"mystery":         60,
	"romance":         30,
	"science fiction": 60,
	"thriller":        80,
	"tv movie":        40,
	"war":             85,
	"western":         55,
}

// Additive adjustments from the primary genre.
var depthByGenre = map[string]int{
	"drama":     20,
	"romance":   10,
	"war":       10,
	"history":   5,
	"music":     5,
	"comedy":    -10,
	"action":    -10,
	"horror":    -10,
	"animation": -5,
	"family":    -5,
}

var dialogueByGenre = map[string]int{
	"drama":           15,
	"comedy":          15,
	"documentary":     15,
	"romance":         10,
	"mystery":         10,
	"crime":           5,
	"action":          -20,
	"horror":          -10,
	"animation":       -5,
	"science fiction": -5,
	"western":         -5,
	"war":             -5,
}

var attentionByGenre = map[string]int{
	"mystery":         15,
	"science fiction": 10,
	"thriller":        10,
	"crime":           5,
	"drama":           5,
	"history":         5,
	"documentary":     5,
	"action":          -5,
	"romance":         -10,
	"animation":       -10,
	"comedy":          -15,
	"family":          -15,
}

// vfxByGenre applies in full for the primary genre and at half weight for
// the others.
var vfxByGenre = map[string]int{
	"science fiction": 30,
	"fantasy":         25,
	"animation":       25,
	"action":          20,
	"adventure":       20,
	"horror":          5,
	"war":             5,
	"documentary":     -10,
	"drama":           -10,
	"romance":         -10,
}

var cultGenres = map[string]bool{
	"horror":          true,
	"science fiction": true,
	"fantasy":         true,
	"comedy":          true,
}

// keywordRule adjusts a score by step for every keyword containing one of
// terms, bounded by limit in either direction.
type keywordRule struct {
	terms []string
	step  int
	limit int
}

var (
	fastKeywords = keywordRule{
		terms: []string{"chase", "heist", "race against time", "escape", "shootout", "martial arts", "explosion", "fight"},
		step:  5, limit: 15,
	}
	slowKeywords = keywordRule{
		terms: []string{"slow burn", "meditative", "contemplative", "character study", "minimalism", "road trip"},
		step:  -5, limit: 15,
	}
	intenseKeywords = keywordRule{
		terms: []string{"violence", "murder", "gore", "serial killer", "revenge", "torture", "survival", "terror", "kidnapping", "war"},
		step:  5, limit: 20,
	}
	gentleKeywords = keywordRule{
		terms: []string{"friendship", "feel-good", "holiday", "christmas", "family", "pets", "wedding"},
		step:  -5, limit: 15,
	}
	depthKeywords = keywordRule{
		terms: []string{"grief", "loss", "death", "redemption", "loneliness", "illness", "based on true story", "relationship", "coming of age"},
		step:  5, limit: 20,
	}
	talkyKeywords = keywordRule{
		terms: []string{"courtroom", "conversation", "based on play", "politics", "journalism", "interview", "dialogue"},
		step:  5, limit: 15,
	}
	silentKeywords = keywordRule{
		terms: []string{"silent film", "no dialogue"},
		step:  -20, limit: 20,
	}
	complexKeywords = keywordRule{
		terms: []string{"nonlinear timeline", "twist", "time travel", "conspiracy", "puzzle", "dream", "mind bending", "unreliable narrator", "parallel world"},
		step:  5, limit: 20,
	}
	effectsKeywords = keywordRule{
		terms: []string{"superhero", "based on comic", "space", "alien", "robot", "dinosaur", "monster", "magic", "dragon", "cgi", "visual effects", "explosion"},
		step:  5, limit: 20,
	}
	cultKeywords = keywordRule{
		terms: []string{"cult film", "cult classic"},
		step:  40, limit: 40,
	}
	oddballKeywords = keywordRule{
		terms: []string{"midnight movie", "b movie", "camp", "surreal", "absurd", "low budget", "grindhouse"},
		step:  10, limit: 30,
	}
)
