package club

import (
	"time"

	"github.com/shopspring/decimal"
)

// VisibilityState is the per (movie, viewer) review visibility state.
type VisibilityState string

const (
	// StateNotReviewed means the viewer has no watched rating for the movie;
	// other members' ratings stay locked.
	StateNotReviewed VisibilityState = "not_reviewed"
	// StateReviewed means the viewer has a watched rating and may see everyone's.
	StateReviewed VisibilityState = "reviewed"
)

// MovieView is a movie as rendered for one viewer.
type MovieView struct {
	ID           string
	TMDBID       *int64
	Title        string
	Year         *int
	PosterURL    *string
	Description  *string
	AddedBy      string
	CreatedAt    time.Time
	IsCurrent    bool
	State        VisibilityState
	Own          *RatingView
	Others       []RatingView
	AverageScore *float64
}

// RatingView is a rating as rendered for one viewer. Locked views carry
// only the author's identity.
type RatingView struct {
	UserID      string
	DisplayName string
	AvatarURL   *string
	Locked      bool
	Watched     *bool
	Score       *float64
	ScoreColor  string
	Review      *string
	UpdatedAt   *time.Time
}

// StateFor reports the viewer's visibility state for a movie's ratings.
func StateFor(viewerID UserID, ratings []Rating) VisibilityState {
	for _, rating := range ratings {
		if rating.UserID == viewerID.String() && rating.Watched {
			return StateReviewed
		}
	}
	return StateNotReviewed
}

// ApplyVisibility renders the unfiltered listing for a viewer. Until the
// viewer has a watched rating for a movie, every other member's score,
// watched flag and review on that movie are withheld.
func ApplyVisibility(viewerID UserID, movies []Movie) []MovieView {
	views := make([]MovieView, 0, len(movies))
	for _, movie := range movies {
		views = append(views, viewMovie(viewerID, movie))
	}
	return views
}

func viewMovie(viewerID UserID, movie Movie) MovieView {
	state := StateFor(viewerID, movie.Ratings)
	view := MovieView{
		ID:          movie.ID,
		TMDBID:      movie.TMDBID,
		Title:       movie.Title,
		Year:        movie.Year,
		PosterURL:   movie.PosterURL,
		Description: movie.Description,
		AddedBy:     movie.AddedBy,
		CreatedAt:   movie.CreatedAt,
		IsCurrent:   movie.IsCurrent,
		State:       state,
		Others:      make([]RatingView, 0, len(movie.Ratings)),
	}

	scores := make([]decimal.Decimal, 0, len(movie.Ratings))
	for _, rating := range movie.Ratings {
		if rating.UserID == viewerID.String() {
			own := openRating(rating)
			view.Own = &own
			if rating.Watched && rating.Score.Valid {
				scores = append(scores, rating.Score.Decimal)
			}
			continue
		}
		if state != StateReviewed {
			view.Others = append(view.Others, lockedRating(rating))
			continue
		}
		view.Others = append(view.Others, openRating(rating))
		if rating.Watched && rating.Score.Valid {
			scores = append(scores, rating.Score.Decimal)
		}
	}

	if state == StateReviewed && len(scores) > 0 {
		average := decimal.Avg(scores[0], scores[1:]...).Round(1)
		value, _ := average.Float64()
		view.AverageScore = &value
	}
	return view
}

func openRating(rating Rating) RatingView {
	watched := rating.Watched
	updatedAt := rating.UpdatedAt
	view := RatingView{
		UserID:      rating.UserID,
		DisplayName: rating.Profile.DisplayName,
		AvatarURL:   rating.Profile.AvatarURL,
		Watched:     &watched,
		Review:      rating.Review,
		UpdatedAt:   &updatedAt,
	}
	if rating.Score.Valid {
		score, _ := rating.Score.Decimal.Float64()
		view.Score = &score
		view.ScoreColor = ScoreColor(score)
	}
	return view
}

func lockedRating(rating Rating) RatingView {
	return RatingView{
		UserID:      rating.UserID,
		DisplayName: rating.Profile.DisplayName,
		AvatarURL:   rating.Profile.AvatarURL,
		Locked:      true,
	}
}
