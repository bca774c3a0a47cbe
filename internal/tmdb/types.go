package tmdb

import (
	"strconv"
	"strings"
)

const (
	imageBaseURL      = "https://image.tmdb.org/t/p/"
	defaultPosterSize = "w342"
	maxSuggestions    = 10
)

// Movie is one search hit as returned by the upstream API.
type Movie struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	ReleaseDate string  `json:"release_date"`
	PosterPath  *string `json:"poster_path"`
	Overview    string  `json:"overview"`
}

// SearchResponse mirrors the upstream search payload and is proxied verbatim.
type SearchResponse struct {
	Page         int     `json:"page"`
	Results      []Movie `json:"results"`
	TotalPages   int     `json:"total_pages"`
	TotalResults int     `json:"total_results"`
}

// Suggestion is a search hit reshaped for the add-movie form.
type Suggestion struct {
	TMDBID      int64   `json:"tmdb_id"`
	Title       string  `json:"title"`
	Year        *int    `json:"year"`
	PosterURL   *string `json:"poster_url"`
	Description string  `json:"description"`
}

// PosterURL builds the image CDN URL for a poster path. Size defaults to w342.
func PosterURL(posterPath *string, size string) *string {
	if posterPath == nil || *posterPath == "" {
		return nil
	}
	if size == "" {
		size = defaultPosterSize
	}
	url := imageBaseURL + size + *posterPath
	return &url
}

// ReleaseYear extracts the year from a YYYY-MM-DD release date.
func ReleaseYear(releaseDate string) *int {
	head, _, _ := strings.Cut(strings.TrimSpace(releaseDate), "-")
	year, err := strconv.Atoi(head)
	if err != nil {
		return nil
	}
	return &year
}

// Suggestions maps the first ten search hits to add-movie suggestions.
func Suggestions(response SearchResponse) []Suggestion {
	limit := len(response.Results)
	if limit > maxSuggestions {
		limit = maxSuggestions
	}
	suggestions := make([]Suggestion, 0, limit)
	for _, movie := range response.Results[:limit] {
		suggestions = append(suggestions, Suggestion{
			TMDBID:      movie.ID,
			Title:       movie.Title,
			Year:        ReleaseYear(movie.ReleaseDate),
			PosterURL:   PosterURL(movie.PosterPath, defaultPosterSize),
			Description: movie.Overview,
		})
	}
	return suggestions
}
