package club

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type sequentialIDProvider struct {
	mu     sync.Mutex
	prefix string
	next   int
}

func (p *sequentialIDProvider) NewID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	return fmt.Sprintf("%s-%d", p.prefix, p.next), nil
}

type failingIDProvider struct{}

func (failingIDProvider) NewID() (string, error) {
	return "", errors.New("exhausted ids")
}

type recordingNotifier struct {
	mu     sync.Mutex
	actors []string
}

func (n *recordingNotifier) MoviesChanged(_ context.Context, actorID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.actors = append(n.actors, actorID)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.actors)
}

var profileSequence int

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	databasePath := filepath.Join(t.TempDir(), "club.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(&Profile{}, &Movie{}, &Rating{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *recordingNotifier) {
	t.Helper()
	db := openTestDatabase(t)
	notifier := &recordingNotifier{}
	clockNow := time.Date(2025, 12, 18, 1, 0, 0, 0, time.UTC)
	service, err := NewService(ServiceConfig{
		Database:   db,
		IDProvider: &sequentialIDProvider{prefix: "id"},
		Notifier:   notifier,
		Logger:     zap.NewNop(),
		Clock: func() time.Time {
			clockNow = clockNow.Add(time.Second)
			return clockNow
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service, db, notifier
}

func mustCreateProfile(t *testing.T, db *gorm.DB, id, displayName string) Viewer {
	t.Helper()
	profileSequence++
	createdAt := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(profileSequence) * time.Minute)
	if err := db.Create(&Profile{ID: id, DisplayName: displayName, CreatedAt: createdAt}).Error; err != nil {
		t.Fatalf("failed to create profile %s: %v", id, err)
	}
	viewer, err := NewViewer(id)
	if err != nil {
		t.Fatalf("unexpected viewer error: %v", err)
	}
	return viewer
}

func mustAddMovie(t *testing.T, service *Service, viewer Viewer, title string) MovieID {
	t.Helper()
	movie, err := service.AddMovie(context.Background(), viewer, MovieDraft{Title: title})
	if err != nil {
		t.Fatalf("failed to add movie %q: %v", title, err)
	}
	movieID, err := NewMovieID(movie.ID)
	if err != nil {
		t.Fatalf("unexpected movie id error: %v", err)
	}
	return movieID
}

func loadRatings(t *testing.T, db *gorm.DB, movieID MovieID, userID UserID) []Rating {
	t.Helper()
	var ratings []Rating
	if err := db.Where("movie_id = ? AND user_id = ?", movieID.String(), userID.String()).Find(&ratings).Error; err != nil {
		t.Fatalf("failed to load ratings: %v", err)
	}
	return ratings
}

func requireKind(t *testing.T, err error, kind ErrorKind) *ServiceError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected service error, got %T: %v", err, err)
	}
	if serviceErr.Kind() != kind {
		t.Fatalf("expected kind %s, got %s (%v)", kind, serviceErr.Kind(), err)
	}
	return serviceErr
}
