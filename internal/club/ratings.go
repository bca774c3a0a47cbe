package club

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RatingPatch describes the subset of rating fields an operation sets.
// Nil fields are left untouched on an existing rating.
type RatingPatch struct {
	Watched *bool
	// ToggleWatched flips the stored watched flag instead of setting it.
	ToggleWatched bool
	Score         *Score
	ClearScore    bool
	Review        *string
}

// defaultWatched is the watched value for a rating created by this patch
// when the patch does not set it. Every creation path marks the movie as
// watched except a review-text-only patch, which leaves it unwatched.
func (p RatingPatch) defaultWatched() bool {
	reviewOnly := p.Review != nil && p.Watched == nil && !p.ToggleWatched && p.Score == nil && !p.ClearScore
	return !reviewOnly
}

// SubmitReview records a watched rating with score and optional review text.
func (s *Service) SubmitReview(ctx context.Context, viewer Viewer, movieID MovieID, score float64, review string) (Rating, error) {
	validated, err := NewScore(score)
	if err != nil {
		return Rating{}, newServiceError(opSubmitReview, "score_out_of_range", KindValidation, "Score must be between 0 and 10", err)
	}
	watched := true
	text := review
	return s.upsert(ctx, opSubmitReview, viewer, movieID, RatingPatch{
		Watched: &watched,
		Score:   &validated,
		Review:  &text,
	})
}

// ToggleWatched flips the viewer's watched flag. A missing rating is created as watched.
func (s *Service) ToggleWatched(ctx context.Context, viewer Viewer, movieID MovieID) (Rating, error) {
	return s.upsert(ctx, opToggleWatched, viewer, movieID, RatingPatch{ToggleWatched: true})
}

// UpdateScore sets or, when score is nil, clears the viewer's score.
func (s *Service) UpdateScore(ctx context.Context, viewer Viewer, movieID MovieID, score *float64) (Rating, error) {
	patch := RatingPatch{ClearScore: score == nil}
	if score != nil {
		validated, err := NewScore(*score)
		if err != nil {
			return Rating{}, newServiceError(opUpdateScore, "score_out_of_range", KindValidation, "Score must be between 0 and 10", err)
		}
		patch.Score = &validated
	}
	return s.upsert(ctx, opUpdateScore, viewer, movieID, patch)
}

// UpdateReview sets the viewer's review text. Empty text clears it.
func (s *Service) UpdateReview(ctx context.Context, viewer Viewer, movieID MovieID, review string) (Rating, error) {
	text := review
	return s.upsert(ctx, opUpdateReview, viewer, movieID, RatingPatch{Review: &text})
}

// UpsertRating applies an arbitrary patch to the viewer's rating for the movie.
func (s *Service) UpsertRating(ctx context.Context, viewer Viewer, movieID MovieID, patch RatingPatch) (Rating, error) {
	return s.upsert(ctx, opUpsertRating, viewer, movieID, patch)
}

func (s *Service) upsert(ctx context.Context, operation string, viewer Viewer, movieID MovieID, patch RatingPatch) (Rating, error) {
	if err := s.ready(operation); err != nil {
		return Rating{}, err
	}
	if err := s.requireViewer(operation, viewer); err != nil {
		return Rating{}, err
	}

	fields := []zap.Field{
		zap.String("user_id", viewer.UserID.String()),
		zap.String("movie_id", movieID.String()),
	}

	var stored Rating
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var movieCount int64
		if err := tx.Model(&Movie{}).Where("id = ?", movieID.String()).Count(&movieCount).Error; err != nil {
			s.logError(operation, "movie_select_failed", err, fields...)
			return newServiceError(operation, "movie_select_failed", KindUpstream, "Failed to save rating", err)
		}
		if movieCount == 0 {
			return newServiceError(operation, "movie_not_found", KindNotFound, "Movie not found", ErrMovieNotFound)
		}

		var existing Rating
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("movie_id = ? AND user_id = ?", movieID.String(), viewer.UserID.String()).
			Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			created, createErr := s.insertRating(tx, operation, viewer, movieID, patch)
			if createErr != nil {
				return createErr
			}
			stored = created
			return nil
		case err != nil:
			s.logError(operation, "rating_select_failed", err, fields...)
			return newServiceError(operation, "rating_select_failed", KindUpstream, "Failed to save rating", err)
		}

		updated, updateErr := s.updateRating(tx, operation, existing, patch)
		if updateErr != nil {
			return updateErr
		}
		stored = updated
		return nil
	})
	if txErr != nil {
		return Rating{}, txErr
	}

	s.notifyChanged(ctx, viewer)
	return stored, nil
}

func (s *Service) insertRating(tx *gorm.DB, operation string, viewer Viewer, movieID MovieID, patch RatingPatch) (Rating, error) {
	ratingID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, "id_generation_failed", err)
		return Rating{}, newServiceError(operation, "id_generation_failed", KindUpstream, "Failed to save rating", err)
	}

	rating := Rating{
		ID:        ratingID,
		MovieID:   movieID.String(),
		UserID:    viewer.UserID.String(),
		Watched:   patch.defaultWatched(),
		UpdatedAt: s.now(),
	}
	if patch.Watched != nil {
		rating.Watched = *patch.Watched
	}
	if patch.Score != nil {
		rating.Score = patch.Score.nullable()
	}
	if patch.Review != nil {
		rating.Review = optionalReview(*patch.Review)
	}

	// FOR UPDATE cannot lock a row that does not exist yet, so a concurrent
	// first write for the same member lands here as a conflict and the patch
	// is applied to the row that won.
	err = tx.Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "movie_id"}, {Name: "user_id"}},
			DoUpdates: patch.conflictAssignments(rating.UpdatedAt),
		}).
		Create(&rating).Error
	if err != nil {
		s.logError(operation, "rating_insert_failed", err,
			zap.String("user_id", viewer.UserID.String()),
			zap.String("movie_id", movieID.String()))
		return Rating{}, newServiceError(operation, "rating_insert_failed", KindUpstream, "Failed to save rating", err)
	}

	var stored Rating
	if err := tx.Where("movie_id = ? AND user_id = ?", movieID.String(), viewer.UserID.String()).Take(&stored).Error; err != nil {
		s.logError(operation, "rating_reload_failed", err,
			zap.String("user_id", viewer.UserID.String()),
			zap.String("movie_id", movieID.String()))
		return Rating{}, newServiceError(operation, "rating_reload_failed", KindUpstream, "Failed to save rating", err)
	}
	return stored, nil
}

// conflictAssignments mirrors updateRating as an ON CONFLICT DO UPDATE set.
func (p RatingPatch) conflictAssignments(updatedAt time.Time) clause.Set {
	set := clause.Set{}
	switch {
	case p.ToggleWatched:
		set = append(set, clause.Assignment{Column: clause.Column{Name: "watched"}, Value: gorm.Expr("NOT movie_ratings.watched")})
	case p.Watched != nil:
		set = append(set, clause.Assignment{Column: clause.Column{Name: "watched"}, Value: *p.Watched})
	}
	if p.Score != nil {
		set = append(set, clause.Assignment{Column: clause.Column{Name: "score"}, Value: p.Score.nullable()})
	} else if p.ClearScore {
		set = append(set, clause.Assignment{Column: clause.Column{Name: "score"}, Value: nil})
	}
	if p.Review != nil {
		var review interface{}
		if text := optionalReview(*p.Review); text != nil {
			review = *text
		}
		set = append(set, clause.Assignment{Column: clause.Column{Name: "review"}, Value: review})
	}
	return append(set, clause.Assignment{Column: clause.Column{Name: "updated_at"}, Value: updatedAt})
}

func (s *Service) updateRating(tx *gorm.DB, operation string, existing Rating, patch RatingPatch) (Rating, error) {
	updated := existing
	updates := map[string]interface{}{}

	switch {
	case patch.ToggleWatched:
		updated.Watched = !existing.Watched
		updates["watched"] = updated.Watched
	case patch.Watched != nil:
		updated.Watched = *patch.Watched
		updates["watched"] = updated.Watched
	}
	if patch.Score != nil {
		updated.Score = patch.Score.nullable()
		updates["score"] = updated.Score
	} else if patch.ClearScore {
		updated.Score.Valid = false
		updates["score"] = nil
	}
	if patch.Review != nil {
		updated.Review = optionalReview(*patch.Review)
		if updated.Review == nil {
			updates["review"] = nil
		} else {
			updates["review"] = *updated.Review
		}
	}

	updated.UpdatedAt = s.now()
	updates["updated_at"] = updated.UpdatedAt

	if err := tx.Model(&Rating{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		s.logError(operation, "rating_update_failed", err,
			zap.String("rating_id", existing.ID))
		return Rating{}, newServiceError(operation, "rating_update_failed", KindUpstream, "Failed to save rating", err)
	}
	return updated, nil
}

func optionalReview(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	text := value
	return &text
}
