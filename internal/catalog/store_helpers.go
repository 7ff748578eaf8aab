package catalog

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const itemColumns = "id, provider_id, title, original_title, overview, release_date, runtime, original_language, imdb_id, poster_path, popularity, vote_average, vote_count, budget, revenue, genre_names, primary_genre, keyword_names, lead_actor, director, trailer_key, has_credits, has_keywords, has_scores, has_embeddings, status, error_kind, error_message, discovered_by, metadata_fetched_at, credits_fetched_at, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		item             Item
		originalTitle    sql.NullString
		overview         sql.NullString
		releaseDate      sql.NullString
		originalLanguage sql.NullString
		imdbID           sql.NullString
		posterPath       sql.NullString
		genresRaw        sql.NullString
		primaryGenre     sql.NullString
		keywordsRaw      sql.NullString
		leadActor        sql.NullString
		director         sql.NullString
		trailerKey       sql.NullString
		hasCredits       int
		hasKeywords      int
		hasScores        int
		hasEmbeddings    int
		status           string
		errorKind        sql.NullString
		errorMessage     sql.NullString
		discoveredBy     sql.NullString
		metadataRaw      sql.NullString
		creditsRaw       sql.NullString
		createdRaw       sql.NullString
		updatedRaw       sql.NullString
	)
	if err := scanner.Scan(
		&item.ID,
		&item.ProviderID,
		&item.Title,
		&originalTitle,
		&overview,
		&releaseDate,
		&item.Runtime,
		&originalLanguage,
		&imdbID,
		&posterPath,
		&item.Popularity,
		&item.VoteAverage,
		&item.VoteCount,
		&item.Budget,
		&item.Revenue,
		&genresRaw,
		&primaryGenre,
		&keywordsRaw,
		&leadActor,
		&director,
		&trailerKey,
		&hasCredits,
		&hasKeywords,
		&hasScores,
		&hasEmbeddings,
		&status,
		&errorKind,
		&errorMessage,
		&discoveredBy,
		&metadataRaw,
		&creditsRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item.OriginalTitle = originalTitle.String
	item.Overview = overview.String
	item.ReleaseDate = releaseDate.String
	item.OriginalLanguage = originalLanguage.String
	item.IMDbID = imdbID.String
	item.PosterPath = posterPath.String
	item.Genres = decodeStrings(genresRaw.String)
	item.PrimaryGenre = primaryGenre.String
	item.Keywords = decodeStrings(keywordsRaw.String)
	item.LeadActor = leadActor.String
	item.Director = director.String
	item.TrailerKey = trailerKey.String
	item.HasCredits = hasCredits != 0
	item.HasKeywords = hasKeywords != 0
	item.HasScores = hasScores != 0
	item.HasEmbeddings = hasEmbeddings != 0
	item.Status = Status(status)
	item.ErrorKind = errorKind.String
	item.ErrorMessage = errorMessage.String
	item.DiscoveredBy = discoveredBy.String
	item.MetadataFetchedAt = parseNullableTime(metadataRaw)
	item.CreditsFetchedAt = parseNullableTime(creditsRaw)
	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	return &item, nil
}

func collectItems(rows *sql.Rows) ([]*Item, error) {
	defer rows.Close()
	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nowString() string {
	return formatTime(time.Now())
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

func int64Args(values []int64) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
