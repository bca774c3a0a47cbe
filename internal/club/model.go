package club

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidMovieID indicates that a movie identifier is empty or exceeds storage bounds.
	ErrInvalidMovieID = errors.New("club: invalid movie id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("club: invalid user id")
)

// MovieID represents a validated movie identifier.
type MovieID string

// NewMovieID validates raw input and returns a MovieID.
func NewMovieID(rawInput string) (MovieID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidMovieID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidMovieID, maxIdentifierLength)
	}
	return MovieID(trimmed), nil
}

// String returns the underlying string identifier.
func (id MovieID) String() string {
	return string(id)
}

// UserID represents a validated profile identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Profile is the club member record. One profile exists per canonical user.
type Profile struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	DisplayName string    `gorm:"column:display_name;size:320;not null"`
	AvatarURL   *string   `gorm:"column:avatar_url;size:512"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName provides the explicit table binding for GORM.
func (Profile) TableName() string {
	return "profiles"
}

// Movie is a title on the club list.
type Movie struct {
	ID          string    `gorm:"column:id;primaryKey;size:190;not null"`
	TMDBID      *int64    `gorm:"column:tmdb_id"`
	Title       string    `gorm:"column:title;size:512;not null"`
	Year        *int      `gorm:"column:year"`
	PosterURL   *string   `gorm:"column:poster_url;size:1024"`
	Description *string   `gorm:"column:description;type:text"`
	AddedBy     string    `gorm:"column:added_by;size:190;not null;index"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index:idx_movies_listing,priority:2"`
	IsCurrent   bool      `gorm:"column:is_current;not null;default:false;index:idx_movies_listing,priority:1"`

	Ratings []Rating `gorm:"foreignKey:MovieID;references:ID"`
}

// TableName provides the explicit table binding for GORM.
func (Movie) TableName() string {
	return "movies"
}

// Rating is a single member's watched flag, score and review for a movie.
// At most one rating exists per (movie, user).
type Rating struct {
	ID        string              `gorm:"column:id;primaryKey;size:190;not null"`
	MovieID   string              `gorm:"column:movie_id;size:190;not null;uniqueIndex:idx_movie_ratings_movie_user,priority:1"`
	UserID    string              `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_movie_ratings_movie_user,priority:2;index"`
	Watched   bool                `gorm:"column:watched;not null;default:false"`
	Score     decimal.NullDecimal `gorm:"column:score;type:decimal(3,1)"`
	Review    *string             `gorm:"column:review;type:text"`
	UpdatedAt time.Time           `gorm:"column:updated_at;not null"`

	Profile Profile `gorm:"foreignKey:UserID;references:ID"`
}

// TableName provides the explicit table binding for GORM.
func (Rating) TableName() string {
	return "movie_ratings"
}

// MovieDraft carries raw user input for a new movie. Numeric fields are
// kept as text and parsed leniently.
type MovieDraft struct {
	Title       string
	Year        string
	TMDBID      string
	PosterURL   string
	Description string
}
