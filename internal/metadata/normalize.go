package metadata

import (
	"strings"

	"marquee/internal/catalog"
	"marquee/internal/services/tmdb"
)

// Normalize flattens a provider detail record into catalog metadata. Nested
// blocks that fail to decode are returned as warnings and left empty; the
// rest of the record is still usable.
func Normalize(details *tmdb.MovieDetails) (catalog.Metadata, []error) {
	var warnings []error
	md := catalog.Metadata{
		Title:            strings.TrimSpace(details.Title),
		OriginalTitle:    strings.TrimSpace(details.OriginalTitle),
		Overview:         strings.TrimSpace(details.Overview),
		ReleaseDate:      details.ReleaseDate,
		Runtime:          details.Runtime,
		OriginalLanguage: details.OriginalLanguage,
		IMDbID:           strings.TrimSpace(details.IMDbID),
		PosterPath:       details.PosterPath,
		Popularity:       details.Popularity,
		VoteAverage:      details.VoteAverage,
		VoteCount:        details.VoteCount,
		Budget:           details.Budget,
		Revenue:          details.Revenue,
	}

	for _, g := range details.Genres {
		if name := strings.TrimSpace(g.Name); name != "" {
			md.Genres = append(md.Genres, name)
		}
	}

	if keywords, err := details.Keywords(); err != nil {
		warnings = append(warnings, err)
	} else {
		seen := make(map[string]struct{}, len(keywords))
		for _, k := range keywords {
			name := strings.TrimSpace(k.Name)
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			md.Keywords = append(md.Keywords, name)
		}
	}

	if credits, err := details.Credits(); err != nil {
		warnings = append(warnings, err)
	} else {
		md.LeadActor = LeadActor(credits.Cast)
		md.Director = Director(credits.Crew)
	}

	if md.IMDbID == "" {
		if ids, err := details.ExternalIDs(); err != nil {
			warnings = append(warnings, err)
		} else {
			md.IMDbID = strings.TrimSpace(ids.IMDbID)
		}
	}

	if videos, err := details.Videos(); err != nil {
		warnings = append(warnings, err)
	} else {
		md.TrailerKey = TrailerKey(videos)
	}

	return md, warnings
}

// LeadActor returns the top-billed cast member's name.
func LeadActor(cast []tmdb.CastMember) string {
	best := -1
	for i, c := range cast {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		if best < 0 || c.Order < cast[best].Order {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return strings.TrimSpace(cast[best].Name)
}

// Director returns the first crew member credited with the Director job.
func Director(crew []tmdb.CrewMember) string {
	for _, c := range crew {
		if strings.EqualFold(c.Job, "Director") && strings.TrimSpace(c.Name) != "" {
			return strings.TrimSpace(c.Name)
		}
	}
	return ""
}

// TrailerKey returns the key of the first video typed Trailer.
func TrailerKey(videos []tmdb.Video) string {
	for _, v := range videos {
		if strings.EqualFold(v.Type, "Trailer") && v.Key != "" {
			return v.Key
		}
	}
	return ""
}
