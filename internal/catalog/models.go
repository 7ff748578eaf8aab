package catalog

import (
	"strconv"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
)

// Status is the lifecycle status of a catalog item. It is derived from the
// completeness flags and never written directly.
type Status string

const (
	StatusPending  Status = "pending"
	StatusFetching Status = "fetching"
	StatusScoring  Status = "scoring"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// Statuses lists every lifecycle status in progression order.
func Statuses() []Status {
	return []Status{StatusPending, StatusFetching, StatusScoring, StatusComplete, StatusError}
}

// Flag names one completeness flag column.
type Flag string

const (
	FlagCredits    Flag = "has_credits"
	FlagKeywords   Flag = "has_keywords"
	FlagScores     Flag = "has_scores"
	FlagEmbeddings Flag = "has_embeddings"
)

// Flags returns every completeness flag.
func Flags() []Flag {
	return []Flag{FlagCredits, FlagKeywords, FlagScores, FlagEmbeddings}
}

func (f Flag) valid() bool {
	switch f {
	case FlagCredits, FlagKeywords, FlagScores, FlagEmbeddings:
		return true
	default:
		return false
	}
}

// Error kinds written by the store itself. Provider-derived kinds come from
// services.Classify.
const (
	ErrorKindRetriesExhausted = "retries_exhausted"
)

// Item is one catalog title.
type Item struct {
	ID               int64
	ProviderID       int64
	Title            string
	OriginalTitle    string
	Overview         string
	ReleaseDate      string
	Runtime          int
	OriginalLanguage string
	IMDbID           string
	PosterPath       string
	Popularity       float64
	VoteAverage      float64
	VoteCount        int
	Budget           int64
	Revenue          int64
	Genres           []string
	PrimaryGenre     string
	Keywords         []string
	LeadActor        string
	Director         string
	TrailerKey       string
	HasCredits       bool
	HasKeywords      bool
	HasScores        bool
	HasEmbeddings    bool
	Status           Status
	ErrorKind        string
	ErrorMessage     string
	DiscoveredBy     string

	MetadataFetchedAt *time.Time
	CreditsFetchedAt  *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AllFlags reports whether every completeness flag is set.
func (i Item) AllFlags() bool {
	return i.HasCredits && i.HasKeywords && i.HasScores && i.HasEmbeddings
}

// MissingFlags lists the completeness flags that are still false.
func (i Item) MissingFlags() []Flag {
	var missing []Flag
	if !i.HasCredits {
		missing = append(missing, FlagCredits)
	}
	if !i.HasKeywords {
		missing = append(missing, FlagKeywords)
	}
	if !i.HasScores {
		missing = append(missing, FlagScores)
	}
	if !i.HasEmbeddings {
		missing = append(missing, FlagEmbeddings)
	}
	return missing
}

// Year returns the release year, or 0 when the release date is unknown.
func (i Item) Year() int {
	if len(i.ReleaseDate) < 4 {
		return 0
	}
	year, err := strconv.Atoi(i.ReleaseDate[:4])
	if err != nil {
		return 0
	}
	return year
}

// DisplayTitle returns the best human-readable label for logs and tables.
func (i Item) DisplayTitle() string {
	if title := strings.TrimSpace(i.Title); title != "" {
		return title
	}
	return "provider:" + strconv.FormatInt(i.ProviderID, 10)
}

// NewItem is a discovery candidate to insert.
type NewItem struct {
	ProviderID   int64
	Title        string
	ReleaseDate  string
	Popularity   float64
	VoteAverage  float64
	VoteCount    int
	DiscoveredBy string
}

// Metadata is the flattened provider detail record written by the metadata
// stage.
type Metadata struct {
	Title            string
	OriginalTitle    string
	Overview         string
	ReleaseDate      string
	Runtime          int
	OriginalLanguage string
	IMDbID           string
	PosterPath       string
	Popularity       float64
	VoteAverage      float64
	VoteCount        int
	Budget           int64
	Revenue          int64
	Genres           []string
	Keywords         []string
	LeadActor        string
	Director         string
	TrailerKey       string
}

// PrimaryGenre is the first genre, by provider ordering.
func (m Metadata) PrimaryGenre() string {
	if len(m.Genres) == 0 {
		return ""
	}
	return m.Genres[0]
}

// Genre is a canonical provider genre.
type Genre struct {
	ID   int64
	Name string
}

// Keyword is a canonical keyword keyed by its deterministic hash.
type Keyword struct {
	ID   int64
	Name string
}

// CastCredit is one billed cast member.
type CastCredit struct {
	Order      int
	PersonID   int64
	Name       string
	Character  string
	Popularity float64
}

// CrewCredit is one crew member.
type CrewCredit struct {
	PersonID   int64
	Name       string
	Job        string
	Department string
}

// CastStats aggregates popularity across an item's stored cast.
type CastStats struct {
	ItemID            int64
	CastCount         int
	AvgPopularity     float64
	MaxPopularity     float64
	MinPopularity     float64
	Top3AvgPopularity float64
	StarPowerTier     string
	StarPowerScore    float64
	ComputedAt        time.Time
}

// SecondaryRating holds the secondary-ratings provider values. Nil pointers
// are ratings the provider did not return.
type SecondaryRating struct {
	ItemID         int64
	Found          bool
	IMDbRating     *float64
	IMDbVotes      *int
	RottenTomatoes *int
	Metacritic     *int
	FetchedAt      time.Time
}

// ScoreSet is the heuristic scoring output for one item.
type ScoreSet struct {
	ItemID          int64
	Pacing          int
	Intensity       int
	EmotionalDepth  int
	DialogueDensity int
	AttentionDemand int
	Quality         int
	StarPowerTier   string
	StarPowerScore  float64
	VFXCategory     string
	VFXScore        int
	Cult            bool
	CultScore       int
	// Composite is nil when no rating source was available.
	Composite  *float64
	Confidence int
	ComputedAt time.Time
}

// Embedding is the stored vector for one item.
type Embedding struct {
	ItemID    int64
	Model     string
	Vector    pgvector.Vector
	CreatedAt time.Time
}

// Dimensions returns the vector length.
func (e Embedding) Dimensions() int {
	return len(e.Vector.Slice())
}

// Mood is a curated compatibility target.
type Mood struct {
	ID               int64
	Slug             string
	Name             string
	Description      string
	PacingPreference int
	IntensityLevel   int
	PreferredGenres  []string
	AvoidedGenres    []string
}

// MoodScore is one cell of the item x mood matrix.
type MoodScore struct {
	ItemID int64
	MoodID int64
	Score  int
}

// MoodProfile is the slice of an item's scores that mood matching reads.
type MoodProfile struct {
	ItemID    int64
	Pacing    int
	Intensity int
	Quality   int
	// GenreIDs are the linked genres among those the genre table resolved.
	GenreIDs []int64
	// PrimaryGenreID is the linked genre matching the provider's first
	// genre, or 0 when that genre did not resolve.
	PrimaryGenreID int64
}

// RunStatus is the terminal classification of an orchestrator run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// RunStep records one stage execution inside a run.
type RunStep struct {
	Stage      string `json:"stage"`
	Outcome    string `json:"outcome"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// Run is one orchestrator invocation.
type Run struct {
	ID             string
	Mode           string
	StartedAt      time.Time
	FinishedAt     *time.Time
	Status         RunStatus
	StepsCompleted int
	StepsFailed    int
	StepsSkipped   int
	ProviderCalls  map[string]int64
	Steps          []RunStep
	Errors         []string
}

// Usage is the number of provider calls one stage process made.
type Usage struct {
	RunID    string
	Stage    string
	Provider string
	Calls    int64
}

// RetryEntry is a deferred per-item retry.
type RetryEntry struct {
	ItemID        int64
	Stage         string
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
}

// ReconcileResult reports one flag-versus-table reconciliation.
type ReconcileResult struct {
	Flag   Flag
	Source string
	// Raised counts flags set because derived data already existed.
	Raised int
	// Orphaned counts set flags whose derived data is missing. They are
	// reported, never cleared.
	Orphaned int
}
