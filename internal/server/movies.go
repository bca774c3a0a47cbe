package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/movieclub/internal/club"
	"github.com/gin-gonic/gin"
)

type ratingPayload struct {
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"display_name,omitempty"`
	AvatarURL   *string    `json:"avatar_url,omitempty"`
	Locked      bool       `json:"locked"`
	Watched     *bool      `json:"watched,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	ScoreColor  string     `json:"score_color,omitempty"`
	Review      *string    `json:"review,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type moviePayload struct {
	ID           string          `json:"id"`
	TMDBID       *int64          `json:"tmdb_id"`
	Title        string          `json:"title"`
	Year         *int            `json:"year"`
	PosterURL    *string         `json:"poster_url"`
	Description  *string         `json:"description"`
	AddedBy      string          `json:"added_by"`
	CreatedAt    time.Time       `json:"created_at"`
	IsCurrent    bool            `json:"is_current"`
	State        string          `json:"visibility"`
	Own          *ratingPayload  `json:"own_rating"`
	Others       []ratingPayload `json:"ratings"`
	AverageScore *float64        `json:"average_score,omitempty"`
}

type profilePayload struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url"`
	CreatedAt   time.Time `json:"created_at"`
}

type storedRatingPayload struct {
	ID        string    `json:"id"`
	MovieID   string    `json:"movie_id"`
	UserID    string    `json:"user_id"`
	Watched   bool      `json:"watched"`
	Score     *float64  `json:"score"`
	Review    *string   `json:"review"`
	UpdatedAt time.Time `json:"updated_at"`
}

// looseText accepts a JSON string, number or null and keeps its text, so
// numeric form fields can be parsed leniently downstream.
type looseText string

func (t *looseText) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*t = ""
		return nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		*t = looseText(text)
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return err
	}
	*t = looseText(number.String())
	return nil
}

type addMovieRequest struct {
	Title       string    `json:"title"`
	Year        looseText `json:"year"`
	TMDBID      looseText `json:"tmdb_id"`
	PosterURL   string    `json:"poster_url"`
	Description string    `json:"description"`
}

type submitReviewRequest struct {
	Score  *float64 `json:"score"`
	Review string   `json:"review"`
}

type updateScoreRequest struct {
	Score *float64 `json:"score"`
}

type updateReviewRequest struct {
	Review string `json:"review"`
}

type patchRatingRequest struct {
	Watched    *bool    `json:"watched"`
	Score      *float64 `json:"score"`
	ClearScore bool     `json:"clear_score"`
	Review     *string  `json:"review"`
}

func (h *httpHandler) handleListMovies(c *gin.Context) {
	viewer := h.viewer(c)
	views := club.ApplyVisibility(viewer.UserID, h.club.ListMoviesWithRatings(c.Request.Context()))
	movies := make([]moviePayload, 0, len(views))
	for _, view := range views {
		movies = append(movies, toMoviePayload(view))
	}
	c.JSON(http.StatusOK, gin.H{"movies": movies})
}

func (h *httpHandler) handleListProfiles(c *gin.Context) {
	profiles := h.club.ListProfiles(c.Request.Context())
	payload := make([]profilePayload, 0, len(profiles))
	for _, profile := range profiles {
		payload = append(payload, toProfilePayload(profile))
	}
	c.JSON(http.StatusOK, gin.H{"profiles": payload})
}

func (h *httpHandler) handleAddMovie(c *gin.Context) {
	var request addMovieRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "")
		return
	}
	movie, err := h.club.AddMovie(c.Request.Context(), h.viewer(c), club.MovieDraft{
		Title:       request.Title,
		Year:        string(request.Year),
		TMDBID:      string(request.TMDBID),
		PosterURL:   request.PosterURL,
		Description: request.Description,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "movie": toMoviePayload(club.ApplyVisibility(h.viewer(c).UserID, []club.Movie{movie})[0])})
}

func (h *httpHandler) handleDeleteMovie(c *gin.Context) {
	movieID, ok := h.movieID(c)
	if !ok {
		return
	}
	if err := h.club.DeleteMovie(c.Request.Context(), h.viewer(c), movieID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleSetCurrent(c *gin.Context) {
	movieID, ok := h.movieID(c)
	if !ok {
		return
	}
	if err := h.club.SetCurrentMovie(c.Request.Context(), h.viewer(c), movieID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleClearCurrent(c *gin.Context) {
	movieID, ok := h.movieID(c)
	if !ok {
		return
	}
	if err := h.club.ClearCurrentMovie(c.Request.Context(), h.viewer(c), movieID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleSubmitReview(c *gin.Context) {
	movieID, ok := h.movieID(c)
	if !ok {
		return
	}
	var request submitReviewRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "")
		return
	}
	if request.Score == nil {
		respondInvalidRequest(c, "Score is required")
		return
	}
	rating, err := h.club.SubmitReview(c.Request.Context(), h.viewer(c), movieID, *request.Score, request.Review)
	h.respondRating(c, rating, err)
}

func (h *httpHandler) handleToggleWatched(c *gin.Context) {
	movieID, ok := h.movieID(c)
	if !ok {
		return
	}
	rating, err := h.club.ToggleWatched(c.Request.Context(), h.viewer(c), movieID)
	h.respondRating(c, rating, err)
}

func (h *httpHandler) handleUpdateScore(c *gin.Context) {
	movieID, ok := h.movieID(c)
	if !ok {
		return
	}
	var request updateScoreRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "")
		return
	}
	rating, err := h.club.UpdateScore(c.Request.Context(), h.viewer(c), movieID, request.Score)
	h.respondRating(c, rating, err)
}

func (h *httpHandler) handleUpdateReview(c *gin.Context) {
	movieID, ok := h.movieID(c)
	if !ok {
		return
	}
	var request updateReviewRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "")
		return
	}
	rating, err := h.club.UpdateReview(c.Request.Context(), h.viewer(c), movieID, request.Review)
	h.respondRating(c, rating, err)
}

func (h *httpHandler) handlePatchRating(c *gin.Context) {
	movieID, ok := h.movieID(c)
	if !ok {
		return
	}
	var request patchRatingRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondInvalidRequest(c, "")
		return
	}
	if request.Watched == nil && request.Score == nil && !request.ClearScore && request.Review == nil {
		respondInvalidRequest(c, "Nothing to update")
		return
	}
	patch := club.RatingPatch{
		Watched:    request.Watched,
		ClearScore: request.ClearScore && request.Score == nil,
		Review:     request.Review,
	}
	if request.Score != nil {
		score, err := club.NewScore(*request.Score)
		if err != nil {
			h.respondError(c, club.NewServiceError("club.upsert_rating", "score_out_of_range", club.KindValidation, "Score must be between 0 and 10", err))
			return
		}
		patch.Score = &score
	}
	rating, err := h.club.UpsertRating(c.Request.Context(), h.viewer(c), movieID, patch)
	h.respondRating(c, rating, err)
}

func (h *httpHandler) movieID(c *gin.Context) (club.MovieID, bool) {
	movieID, err := club.NewMovieID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Movie not found", "code": "invalid_movie_id"})
		return "", false
	}
	return movieID, true
}

func (h *httpHandler) respondRating(c *gin.Context, rating club.Rating, err error) {
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "rating": toStoredRatingPayload(rating)})
}

func toMoviePayload(view club.MovieView) moviePayload {
	payload := moviePayload{
		ID:           view.ID,
		TMDBID:       view.TMDBID,
		Title:        view.Title,
		Year:         view.Year,
		PosterURL:    view.PosterURL,
		Description:  view.Description,
		AddedBy:      view.AddedBy,
		CreatedAt:    view.CreatedAt,
		IsCurrent:    view.IsCurrent,
		State:        string(view.State),
		Others:       make([]ratingPayload, 0, len(view.Others)),
		AverageScore: view.AverageScore,
	}
	if view.Own != nil {
		own := toRatingPayload(*view.Own)
		payload.Own = &own
	}
	for _, other := range view.Others {
		payload.Others = append(payload.Others, toRatingPayload(other))
	}
	return payload
}

func toRatingPayload(view club.RatingView) ratingPayload {
	return ratingPayload{
		UserID:      view.UserID,
		DisplayName: view.DisplayName,
		AvatarURL:   view.AvatarURL,
		Locked:      view.Locked,
		Watched:     view.Watched,
		Score:       view.Score,
		ScoreColor:  view.ScoreColor,
		Review:      view.Review,
		UpdatedAt:   view.UpdatedAt,
	}
}

func toProfilePayload(profile club.Profile) profilePayload {
	return profilePayload{
		ID:          profile.ID,
		DisplayName: profile.DisplayName,
		AvatarURL:   profile.AvatarURL,
		CreatedAt:   profile.CreatedAt,
	}
}

func toStoredRatingPayload(rating club.Rating) storedRatingPayload {
	payload := storedRatingPayload{
		ID:        rating.ID,
		MovieID:   rating.MovieID,
		UserID:    rating.UserID,
		Watched:   rating.Watched,
		Review:    rating.Review,
		UpdatedAt: rating.UpdatedAt,
	}
	if rating.Score.Valid {
		score, _ := strconv.ParseFloat(rating.Score.Decimal.StringFixed(1), 64)
		payload.Score = &score
	}
	return payload
}
