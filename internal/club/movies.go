package club

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ListMoviesWithRatings returns every movie with all ratings and their
// profiles, current movie first then newest first. Ratings are not filtered
// here; callers apply the visibility policy before rendering.
// A failed read is logged and degrades to an empty list.
func (s *Service) ListMoviesWithRatings(ctx context.Context) []Movie {
	if err := s.ready(opListMovies); err != nil {
		return []Movie{}
	}

	var movies []Movie
	err := s.db.WithContext(ctx).
		Preload("Ratings").
		Preload("Ratings.Profile").
		Order("is_current DESC").
		Order("created_at DESC").
		Find(&movies).Error
	if err != nil {
		s.logError(opListMovies, "query_failed", err)
		return []Movie{}
	}
	return movies
}

// ListProfiles returns all club members, oldest first. A failed read degrades to an empty list.
func (s *Service) ListProfiles(ctx context.Context) []Profile {
	if err := s.ready(opListProfiles); err != nil {
		return []Profile{}
	}

	var profiles []Profile
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&profiles).Error; err != nil {
		s.logError(opListProfiles, "query_failed", err)
		return []Profile{}
	}
	return profiles
}

// AddMovie stores a new movie added by the viewer.
func (s *Service) AddMovie(ctx context.Context, viewer Viewer, draft MovieDraft) (Movie, error) {
	if err := s.ready(opAddMovie); err != nil {
		return Movie{}, err
	}
	if err := s.requireViewer(opAddMovie, viewer); err != nil {
		return Movie{}, err
	}

	title := strings.TrimSpace(draft.Title)
	if title == "" {
		return Movie{}, newServiceError(opAddMovie, "title_required", KindValidation, "Title is required", ErrTitleRequired)
	}

	movieID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddMovie, "id_generation_failed", err)
		return Movie{}, newServiceError(opAddMovie, "id_generation_failed", KindUpstream, "Failed to add movie", err)
	}

	movie := Movie{
		ID:          movieID,
		TMDBID:      parseLooseInt64(draft.TMDBID),
		Title:       title,
		Year:        parseLooseInt(draft.Year),
		PosterURL:   optionalText(draft.PosterURL),
		Description: optionalText(draft.Description),
		AddedBy:     viewer.UserID.String(),
		CreatedAt:   s.now(),
		IsCurrent:   false,
	}

	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&movie).Error; err != nil {
		s.logError(opAddMovie, "insert_failed", err, zap.String("title", title))
		return Movie{}, newServiceError(opAddMovie, "insert_failed", KindUpstream, "Failed to add movie", err)
	}

	s.notifyChanged(ctx, viewer)
	return movie, nil
}

// DeleteMovie removes a movie unless it is the current movie or any member
// has watched it. Unwatched placeholder ratings are removed with it.
func (s *Service) DeleteMovie(ctx context.Context, viewer Viewer, movieID MovieID) error {
	if err := s.ready(opDeleteMovie); err != nil {
		return err
	}
	if err := s.requireViewer(opDeleteMovie, viewer); err != nil {
		return err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var movie Movie
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "is_current").
			Where("id = ?", movieID.String()).
			Take(&movie).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opDeleteMovie, "not_found", KindNotFound, "Movie not found", ErrMovieNotFound)
		}
		if err != nil {
			s.logError(opDeleteMovie, "movie_select_failed", err, zap.String("movie_id", movieID.String()))
			return newServiceError(opDeleteMovie, "movie_select_failed", KindUpstream, "Movie not found", err)
		}

		if movie.IsCurrent {
			return newServiceError(opDeleteMovie, "is_current", KindConflict, "Cannot delete the currently watching movie", ErrMovieIsCurrent)
		}

		var watchedCount int64
		if err := tx.Model(&Rating{}).
			Where("movie_id = ? AND watched = ?", movieID.String(), true).
			Count(&watchedCount).Error; err != nil {
			s.logError(opDeleteMovie, "rating_check_failed", err, zap.String("movie_id", movieID.String()))
			return newServiceError(opDeleteMovie, "rating_check_failed", KindUpstream, "Failed to check reviews", err)
		}
		if watchedCount > 0 {
			return newServiceError(opDeleteMovie, "has_reviews", KindConflict, "Cannot delete a movie that has reviews", ErrMovieHasReviews)
		}

		if err := tx.Where("movie_id = ?", movieID.String()).Delete(&Rating{}).Error; err != nil {
			s.logError(opDeleteMovie, "rating_delete_failed", err, zap.String("movie_id", movieID.String()))
			return newServiceError(opDeleteMovie, "rating_delete_failed", KindUpstream, "Failed to delete movie", err)
		}
		if err := tx.Where("id = ?", movieID.String()).Delete(&Movie{}).Error; err != nil {
			s.logError(opDeleteMovie, "movie_delete_failed", err, zap.String("movie_id", movieID.String()))
			return newServiceError(opDeleteMovie, "movie_delete_failed", KindUpstream, "Failed to delete movie", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.notifyChanged(ctx, viewer)
	return nil
}

// SetCurrentMovie flags the movie as currently watching and clears the flag
// on every other movie in the same transaction, so at most one movie is current.
func (s *Service) SetCurrentMovie(ctx context.Context, viewer Viewer, movieID MovieID) error {
	if err := s.ready(opSetCurrentMovie); err != nil {
		return err
	}
	if err := s.requireViewer(opSetCurrentMovie, viewer); err != nil {
		return err
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var movie Movie
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", movieID.String()).
			Take(&movie).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opSetCurrentMovie, "not_found", KindNotFound, "Movie not found", ErrMovieNotFound)
		}
		if err != nil {
			s.logError(opSetCurrentMovie, "movie_select_failed", err, zap.String("movie_id", movieID.String()))
			return newServiceError(opSetCurrentMovie, "movie_select_failed", KindUpstream, "Failed to set current movie", err)
		}

		if err := tx.Model(&Movie{}).
			Where("is_current = ? AND id <> ?", true, movieID.String()).
			Update("is_current", false).Error; err != nil {
			s.logError(opSetCurrentMovie, "clear_previous_failed", err, zap.String("movie_id", movieID.String()))
			return newServiceError(opSetCurrentMovie, "clear_previous_failed", KindUpstream, "Failed to set current movie", err)
		}
		if err := tx.Model(&Movie{}).
			Where("id = ?", movieID.String()).
			Update("is_current", true).Error; err != nil {
			s.logError(opSetCurrentMovie, "update_failed", err, zap.String("movie_id", movieID.String()))
			return newServiceError(opSetCurrentMovie, "update_failed", KindUpstream, "Failed to set current movie", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.notifyChanged(ctx, viewer)
	return nil
}

// ClearCurrentMovie unflags the movie. Clearing a movie that is not current is a no-op.
func (s *Service) ClearCurrentMovie(ctx context.Context, viewer Viewer, movieID MovieID) error {
	if err := s.ready(opClearCurrentMovie); err != nil {
		return err
	}
	if err := s.requireViewer(opClearCurrentMovie, viewer); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).
		Model(&Movie{}).
		Where("id = ?", movieID.String()).
		Update("is_current", false).Error; err != nil {
		s.logError(opClearCurrentMovie, "update_failed", err, zap.String("movie_id", movieID.String()))
		return newServiceError(opClearCurrentMovie, "update_failed", KindUpstream, "Failed to clear current movie", err)
	}

	s.notifyChanged(ctx, viewer)
	return nil
}

func optionalText(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// parseLooseInt64 reads an optional leading integer ("2023", "2023-05", " 42 ").
// Input without leading digits yields nil instead of an error.
func parseLooseInt64(value string) *int64 {
	trimmed := strings.TrimSpace(value)
	end := 0
	if end < len(trimmed) && (trimmed[end] == '-' || trimmed[end] == '+') {
		end++
	}
	digitsStart := end
	for end < len(trimmed) && trimmed[end] >= '0' && trimmed[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return nil
	}
	parsed, err := strconv.ParseInt(trimmed[:end], 10, 64)
	if err != nil {
		return nil
	}
	return &parsed
}

func parseLooseInt(value string) *int {
	parsed := parseLooseInt64(value)
	if parsed == nil {
		return nil
	}
	converted := int(*parsed)
	return &converted
}
