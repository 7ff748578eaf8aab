package tmdb

import (
	"github.com/goccy/go-json"

	"marquee/internal/services"
)

// Result is one entry of a paginated list endpoint.
type Result struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	Popularity  float64 `json:"popularity"`
	VoteAverage float64 `json:"vote_average"`
	VoteCount   int     `json:"vote_count"`
}

// Page is a paginated list response.
type Page struct {
	Page         int      `json:"page"`
	Results      []Result `json:"results"`
	TotalPages   int      `json:"total_pages"`
	TotalResults int      `json:"total_results"`
}

// Genre is one entry of the provider's genre taxonomy.
type Genre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Keyword is a provider keyword. Its ID is not durable and is ignored.
type Keyword struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CastMember is one billed performer.
type CastMember struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Character  string  `json:"character"`
	Order      int     `json:"order"`
	Popularity float64 `json:"popularity"`
}

// CrewMember is one crew credit.
type CrewMember struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Job        string  `json:"job"`
	Department string  `json:"department"`
	Popularity float64 `json:"popularity"`
}

// Credits is the credits sub-resource.
type Credits struct {
	ID   int64        `json:"id"`
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// Video is one hosted video attached to a title.
type Video struct {
	Key      string `json:"key"`
	Name     string `json:"name"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
}

// ExternalIDs carries cross references to other providers.
type ExternalIDs struct {
	IMDbID string `json:"imdb_id"`
}

// MovieDetails is the detail record with appended sub-resources kept raw.
type MovieDetails struct {
	ID               int64   `json:"id"`
	IMDbID           string  `json:"imdb_id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title"`
	Overview         string  `json:"overview"`
	ReleaseDate      string  `json:"release_date"`
	Runtime          int     `json:"runtime"`
	OriginalLanguage string  `json:"original_language"`
	PosterPath       string  `json:"poster_path"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	Budget           int64   `json:"budget"`
	Revenue          int64   `json:"revenue"`
	Genres           []Genre `json:"genres"`

	RawCredits     json.RawMessage `json:"credits"`
	RawKeywords    json.RawMessage `json:"keywords"`
	RawExternalIDs json.RawMessage `json:"external_ids"`
	RawVideos      json.RawMessage `json:"videos"`
}

// Credits decodes the appended credits block. A missing block yields empty
// credits.
func (d *MovieDetails) Credits() (*Credits, error) {
	var credits Credits
	if err := decodeNested(d.RawCredits, &credits, "credits"); err != nil {
		return nil, err
	}
	return &credits, nil
}

// Keywords decodes the appended keywords block.
func (d *MovieDetails) Keywords() ([]Keyword, error) {
	var block struct {
		Keywords []Keyword `json:"keywords"`
	}
	if err := decodeNested(d.RawKeywords, &block, "keywords"); err != nil {
		return nil, err
	}
	return block.Keywords, nil
}

// ExternalIDs decodes the appended external IDs block.
func (d *MovieDetails) ExternalIDs() (*ExternalIDs, error) {
	var ids ExternalIDs
	if err := decodeNested(d.RawExternalIDs, &ids, "external_ids"); err != nil {
		return nil, err
	}
	return &ids, nil
}

// Videos decodes the appended videos block.
func (d *MovieDetails) Videos() ([]Video, error) {
	var block struct {
		Results []Video `json:"results"`
	}
	if err := decodeNested(d.RawVideos, &block, "videos"); err != nil {
		return nil, err
	}
	return block.Results, nil
}

func decodeNested(raw json.RawMessage, out any, field string) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return services.Wrap(services.ErrDataQuality, "tmdb", "decode "+field, "", err)
	}
	return nil
}
