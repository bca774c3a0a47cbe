package club

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew        = "club.service.new"
	opListMovies        = "club.list_movies"
	opListProfiles      = "club.list_profiles"
	opAddMovie          = "club.add_movie"
	opDeleteMovie       = "club.delete_movie"
	opSetCurrentMovie   = "club.set_current_movie"
	opClearCurrentMovie = "club.clear_current_movie"
	opUpsertRating      = "club.upsert_rating"
	opSubmitReview      = "club.submit_review"
	opToggleWatched     = "club.toggle_watched"
	opUpdateScore       = "club.update_score"
	opUpdateReview      = "club.update_review"
)

// IDProvider issues identifiers for new rows.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return uuidProvider{}
}

func (uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// ChangeNotifier is told when the movie listing changed so clients can re-fetch it.
type ChangeNotifier interface {
	MoviesChanged(ctx context.Context, actorID string)
}

// Viewer is the authenticated member on whose behalf an operation runs.
// It is passed explicitly to every operation instead of being looked up
// from ambient request state.
type Viewer struct {
	UserID UserID
}

// NewViewer builds a viewer from a session subject.
func NewViewer(rawUserID string) (Viewer, error) {
	userID, err := NewUserID(rawUserID)
	if err != nil {
		return Viewer{}, err
	}
	return Viewer{UserID: userID}, nil
}

func (v Viewer) authenticated() bool {
	return v.UserID != ""
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Notifier   ChangeNotifier
	Logger     *zap.Logger
}

// Service implements the club's movie and rating operations.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	notifier   ChangeNotifier
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", KindUpstream, "", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", KindUpstream, "", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		notifier:   cfg.Notifier,
		logger:     logger,
	}, nil
}

func (s *Service) ready(operation string) error {
	if s == nil || s.db == nil {
		s.logError(operation, "missing_database", errMissingDatabase)
		return newServiceError(operation, "missing_database", KindUpstream, "", errMissingDatabase)
	}
	return nil
}

func (s *Service) requireViewer(operation string, viewer Viewer) error {
	if !viewer.authenticated() {
		return newServiceError(operation, "unauthenticated", KindUnauthenticated, "Not authenticated", ErrUnauthenticated)
	}
	return nil
}

func (s *Service) now() time.Time {
	return s.clock().UTC()
}

func (s *Service) notifyChanged(ctx context.Context, viewer Viewer) {
	if s.notifier == nil {
		return
	}
	s.notifier.MoviesChanged(ctx, viewer.UserID.String())
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("club service error", attrs...)
}
